package events

import (
	"context"
	"errors"
	"testing"

	"github.com/larder/larder-backend/pkg/logger"
	"github.com/larder/larder-backend/pkg/messaging"
	"github.com/larder/larder-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPantryEventPublisher_NilIsSafe(t *testing.T) {
	var p *PantryEventPublisher
	l := testutil.FixtureLedger()
	it := testutil.DefaultItemFixture().Build(l)
	u := l.Restock(it, testutil.Decimal("1"), nil)

	assert.NotPanics(t, func() {
		p.PublishItemCreated(context.Background(), it, "manual")
		p.PublishItemUpdated(context.Background(), it.ID, []string{"name"})
		p.PublishRestocked(context.Background(), it, u, "")
		p.PublishConsumed(context.Background(), it, u, "")
		p.PublishBatchesReplaced(context.Background(), it, u, "")
		p.PublishItemDeleted(context.Background(), it, "")
		p.PublishExpiring(context.Background(), it, 2)
		p.PublishExpired(context.Background(), it, -1)
	})
}

func TestPantryEventPublisher_ItemCreated(t *testing.T) {
	sink := testutil.NewMockPublisher()
	p := NewPantryEventPublisherWithSink(sink, logger.Nop())
	it := testutil.DefaultItemFixture().Build(testutil.FixtureLedger())

	p.PublishItemCreated(context.Background(), it, "recognition")

	payloads := sink.EventsOfType(messaging.EventItemCreated)
	require.Len(t, payloads, 1)
	data := payloads[0].(messaging.ItemCreatedEvent)
	assert.Equal(t, it.ID, data.ItemID)
	assert.Equal(t, "Milk", data.Name)
	assert.Equal(t, "recognition", data.Source)
	assert.True(t, data.CurrentQuantity.Equal(testutil.Decimal("2")))
	require.NotNil(t, data.ExpiryDate)
	assert.Equal(t, "2025-01-20", *data.ExpiryDate)
}

func TestPantryEventPublisher_StockChanged(t *testing.T) {
	sink := testutil.NewMockPublisher()
	p := NewPantryEventPublisherWithSink(sink, logger.Nop())
	l := testutil.FixtureLedger()
	it := testutil.DefaultItemFixture().Build(l)

	restock := l.Restock(it, testutil.Decimal("1.5"), nil)
	p.PublishRestocked(context.Background(), it, restock, "user-1")

	consume := l.Consume(it, testutil.Decimal("2"))
	p.PublishConsumed(context.Background(), it, consume, "user-1")

	restocked := sink.EventsOfType(messaging.EventItemRestocked)
	require.Len(t, restocked, 1)
	r := restocked[0].(messaging.StockChangedEvent)
	assert.Equal(t, restock.BatchID, r.BatchID)
	assert.True(t, r.Delta.Equal(testutil.Decimal("1.5")))
	assert.True(t, r.CurrentQuantity.Equal(testutil.Decimal("3.5")))
	assert.Equal(t, 2, r.BatchCount)
	assert.Equal(t, "user-1", r.PerformedBy)

	consumed := sink.EventsOfType(messaging.EventItemConsumed)
	require.Len(t, consumed, 1)
	c := consumed[0].(messaging.StockChangedEvent)
	assert.True(t, c.Delta.Equal(testutil.Decimal("-2")))
	assert.True(t, c.CurrentQuantity.Equal(testutil.Decimal("1.5")))
	assert.Equal(t, 1, c.BatchCount)
	assert.Nil(t, c.ExpiryDate)
}

func TestPantryEventPublisher_ItemUpdatedSkipsEmptyFieldList(t *testing.T) {
	sink := testutil.NewMockPublisher()
	p := NewPantryEventPublisherWithSink(sink, logger.Nop())

	p.PublishItemUpdated(context.Background(), "item-1", nil)
	sink.AssertNoEventsPublished(t)

	p.PublishItemUpdated(context.Background(), "item-1", []string{"notes"})
	sink.AssertEventPublished(t, messaging.EventItemUpdated)
}

func TestPantryEventPublisher_ExpiryRequiresDate(t *testing.T) {
	sink := testutil.NewMockPublisher()
	p := NewPantryEventPublisherWithSink(sink, logger.Nop())
	l := testutil.FixtureLedger()

	undated := testutil.ItemFixture{Name: "Rice", Unit: "kg", Quantity: "1"}.Build(l)
	p.PublishExpiring(context.Background(), undated, 1)
	sink.AssertNoEventsPublished(t)

	dated := testutil.DefaultItemFixture().Build(l)
	p.PublishExpired(context.Background(), dated, -3)
	payloads := sink.EventsOfType(messaging.EventItemExpired)
	require.Len(t, payloads, 1)
	data := payloads[0].(messaging.ItemExpiryEvent)
	assert.Equal(t, "2025-01-20", data.ExpiryDate)
	assert.Equal(t, -3, data.DaysUntil)
	assert.Equal(t, "l", data.Unit)
}

func TestPantryEventPublisher_SinkErrorIsSwallowed(t *testing.T) {
	sink := testutil.NewMockPublisher()
	sink.Err = errors.New("channel closed")
	p := NewPantryEventPublisherWithSink(sink, logger.Nop())
	it := testutil.DefaultItemFixture().Build(testutil.FixtureLedger())

	assert.NotPanics(t, func() {
		p.PublishItemDeleted(context.Background(), it, "")
	})
	assert.Empty(t, sink.Events())
}
