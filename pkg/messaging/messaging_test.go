package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larder/larder-backend/pkg/logger"
)

type recordedPublish struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	published []recordedPublish
	err       error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, recordedPublish{exchange: exchange, key: key, msg: msg})
	return nil
}

type fakeAcknowledger struct {
	acked    int
	nacked   int
	requeued bool
	rejected int
}

func (a *fakeAcknowledger) Ack(uint64, bool) error { a.acked++; return nil }
func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeued = requeue
	return nil
}
func (a *fakeAcknowledger) Reject(uint64, bool) error { a.rejected++; return nil }

func newTestConsumer() *Consumer {
	return &Consumer{
		queueName:  "pantry-service.test",
		handlers:   make(map[string]MessageHandler),
		maxRetries: 3,
		logger:     logger.Nop(),
	}
}

func delivery(t *testing.T, ack amqp.Acknowledger, event *Event, headers amqp.Table) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, Headers: headers}
}

func TestNewEvent(t *testing.T) {
	data := ItemDeletedEvent{ItemID: "item-1", Name: "Milk"}

	event, err := NewEvent(EventItemDeleted, "pantry-service", "corr-1", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventItemDeleted, event.Type)
	assert.Equal(t, "pantry-service", event.Source)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.False(t, event.Timestamp.IsZero())

	var decoded ItemDeletedEvent
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, data, decoded)
}

func TestGenerateEventID_Unique(t *testing.T) {
	assert.NotEqual(t, GenerateEventID(), GenerateEventID())
}

func TestRecognitionItemProposedEvent_AcceptsNumericQuantity(t *testing.T) {
	raw := `{"name":"Eggs","quantity":12,"unit":"pcs","category":"dairy","expiry_date":"2026-11-02"}`

	var data RecognitionItemProposedEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &data))

	assert.True(t, data.Quantity.Equal(decimal.NewFromInt(12)))
	require.NotNil(t, data.ExpiryDate)
	assert.Equal(t, "2026-11-02", *data.ExpiryDate)
	assert.Nil(t, data.QuantityPerPack)
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{channel: ch, exchange: ExchangePantryEvents, source: "pantry-service", logger: logger.Nop()}

	ctx := WithCorrelationID(context.Background(), "corr-42")
	err := p.Publish(ctx, EventItemRestocked, StockChangedEvent{ItemID: "item-1", Delta: decimal.NewFromInt(2)})
	require.NoError(t, err)

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, ExchangePantryEvents, got.exchange)
	assert.Equal(t, EventItemRestocked, got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "corr-42", got.msg.CorrelationId)

	var event Event
	require.NoError(t, json.Unmarshal(got.msg.Body, &event))
	assert.Equal(t, got.msg.MessageId, event.ID)
	assert.Equal(t, "pantry-service", event.Source)

	var data StockChangedEvent
	require.NoError(t, event.UnmarshalData(&data))
	assert.Equal(t, "item-1", data.ItemID)
	assert.True(t, data.Delta.Equal(decimal.NewFromInt(2)))
}

func TestPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := &Publisher{channel: ch, exchange: ExchangePantryEvents, source: "pantry-service", logger: logger.Nop()}

	err := p.Publish(context.Background(), EventItemConsumed, StockChangedEvent{ItemID: "item-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestConsumer_HandleMessage(t *testing.T) {
	event, err := NewEvent(EventRecognitionItemProposed, "recognition-service", "corr-7", RecognitionItemProposedEvent{Name: "Bread"})
	require.NoError(t, err)

	t.Run("acks on success and propagates correlation id", func(t *testing.T) {
		c := newTestConsumer()
		var gotCorrelation string
		c.RegisterHandler(EventRecognitionItemProposed, func(ctx context.Context, _ *Event) error {
			gotCorrelation = CorrelationID(ctx)
			return nil
		})

		ack := &fakeAcknowledger{}
		c.handleMessage(context.Background(), delivery(t, ack, event, nil))

		assert.Equal(t, 1, ack.acked)
		assert.Equal(t, "corr-7", gotCorrelation)
	})

	t.Run("acks unknown event types", func(t *testing.T) {
		c := newTestConsumer()
		ack := &fakeAcknowledger{}
		c.handleMessage(context.Background(), delivery(t, ack, event, nil))
		assert.Equal(t, 1, ack.acked)
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		c := newTestConsumer()
		ack := &fakeAcknowledger{}
		c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")})
		assert.Equal(t, 1, ack.rejected)
	})

	t.Run("requeues transient failures", func(t *testing.T) {
		c := newTestConsumer()
		c.RegisterHandler(EventRecognitionItemProposed, func(context.Context, *Event) error {
			return errors.New("store unavailable")
		})

		ack := &fakeAcknowledger{}
		c.handleMessage(context.Background(), delivery(t, ack, event, nil))
		assert.Equal(t, 1, ack.nacked)
		assert.True(t, ack.requeued)
	})

	t.Run("dead-letters permanent failures", func(t *testing.T) {
		c := newTestConsumer()
		c.RegisterHandler(EventRecognitionItemProposed, func(context.Context, *Event) error {
			return Permanent(errors.New("name is required"))
		})

		ack := &fakeAcknowledger{}
		c.handleMessage(context.Background(), delivery(t, ack, event, nil))
		assert.Equal(t, 1, ack.rejected)
		assert.Zero(t, ack.nacked)
	})

	t.Run("dead-letters after max retries", func(t *testing.T) {
		c := newTestConsumer()
		c.RegisterHandler(EventRecognitionItemProposed, func(context.Context, *Event) error {
			return errors.New("still failing")
		})

		headers := amqp.Table{"x-death": []interface{}{amqp.Table{"count": int64(3)}}}
		ack := &fakeAcknowledger{}
		c.handleMessage(context.Background(), delivery(t, ack, event, headers))
		assert.Equal(t, 1, ack.rejected)
	})
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("bad payload")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}

func TestDeadLetterQueueName(t *testing.T) {
	assert.Equal(t, "dlq.pantry-service", DeadLetterQueueName("pantry-service"))
}
