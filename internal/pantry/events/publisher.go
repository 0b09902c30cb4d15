package events

import (
	"context"

	"github.com/larder/larder-backend/internal/ledger"
	"github.com/larder/larder-backend/pkg/logger"
	"github.com/larder/larder-backend/pkg/messaging"
)

// Source is the AppId stamped on every pantry event
const Source = "pantry-service"

// PantryEventPublisher publishes pantry item events. A nil publisher is
// valid and drops everything, which is how the service runs without RabbitMQ.
type PantryEventPublisher struct {
	publisher messaging.EventSink
	logger    *logger.Logger
}

// NewPantryEventPublisher declares the pantry exchange and returns a publisher bound to it
func NewPantryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PantryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePantryEvents, Source, log)
	if err != nil {
		return nil, err
	}

	return NewPantryEventPublisherWithSink(publisher, log), nil
}

// NewPantryEventPublisherWithSink wraps an arbitrary sink
func NewPantryEventPublisherWithSink(sink messaging.EventSink, log *logger.Logger) *PantryEventPublisher {
	return &PantryEventPublisher{
		publisher: sink,
		logger:    log.WithComponent("pantry_events"),
	}
}

// PublishItemCreated publishes an item created event. source tells a manual
// entry apart from an accepted recognition proposal.
func (p *PantryEventPublisher) PublishItemCreated(ctx context.Context, it *ledger.Item, source string) {
	if p == nil {
		return
	}

	data := messaging.ItemCreatedEvent{
		ItemID:          it.ID,
		Name:            it.Name,
		Category:        it.Category,
		Unit:            it.Unit,
		CurrentQuantity: it.CurrentQuantity(),
		ExpiryDate:      dateString(it.ExpiryDate()),
		Source:          source,
	}

	p.publish(ctx, messaging.EventItemCreated, it.ID, data)
}

// PublishItemUpdated publishes the names of the descriptive fields that changed
func (p *PantryEventPublisher) PublishItemUpdated(ctx context.Context, itemID string, fields []string) {
	if p == nil || len(fields) == 0 {
		return
	}

	p.publish(ctx, messaging.EventItemUpdated, itemID, messaging.ItemUpdatedEvent{
		ItemID: itemID,
		Fields: fields,
	})
}

// PublishRestocked publishes a restock
func (p *PantryEventPublisher) PublishRestocked(ctx context.Context, it *ledger.Item, u ledger.Update, performedBy string) {
	p.publishStockChanged(ctx, messaging.EventItemRestocked, it, u, performedBy)
}

// PublishConsumed publishes a consumption, whether FEFO or from a chosen batch
func (p *PantryEventPublisher) PublishConsumed(ctx context.Context, it *ledger.Item, u ledger.Update, performedBy string) {
	p.publishStockChanged(ctx, messaging.EventItemConsumed, it, u, performedBy)
}

// PublishBatchesReplaced publishes a manual batch edit
func (p *PantryEventPublisher) PublishBatchesReplaced(ctx context.Context, it *ledger.Item, u ledger.Update, performedBy string) {
	p.publishStockChanged(ctx, messaging.EventItemBatchesReplaced, it, u, performedBy)
}

func (p *PantryEventPublisher) publishStockChanged(ctx context.Context, eventType string, it *ledger.Item, u ledger.Update, performedBy string) {
	if p == nil {
		return
	}

	data := messaging.StockChangedEvent{
		ItemID:          it.ID,
		ItemName:        it.Name,
		BatchID:         u.BatchID,
		Delta:           u.Delta,
		CurrentQuantity: u.CurrentQuantity,
		BatchCount:      len(u.Batches),
		ExpiryDate:      dateString(u.ExpiryDate),
		PerformedBy:     performedBy,
	}

	p.publish(ctx, eventType, it.ID, data)
}

// PublishItemDeleted publishes an item deletion
func (p *PantryEventPublisher) PublishItemDeleted(ctx context.Context, it *ledger.Item, performedBy string) {
	if p == nil {
		return
	}

	p.publish(ctx, messaging.EventItemDeleted, it.ID, messaging.ItemDeletedEvent{
		ItemID:      it.ID,
		Name:        it.Name,
		PerformedBy: performedBy,
	})
}

// PublishExpiring publishes an item whose nearest expiry falls inside the warning window
func (p *PantryEventPublisher) PublishExpiring(ctx context.Context, it *ledger.Item, daysUntil int) {
	p.publishExpiry(ctx, messaging.EventItemExpiring, it, daysUntil)
}

// PublishExpired publishes an item whose nearest expiry has passed
func (p *PantryEventPublisher) PublishExpired(ctx context.Context, it *ledger.Item, daysUntil int) {
	p.publishExpiry(ctx, messaging.EventItemExpired, it, daysUntil)
}

func (p *PantryEventPublisher) publishExpiry(ctx context.Context, eventType string, it *ledger.Item, daysUntil int) {
	if p == nil {
		return
	}
	expiry := it.ExpiryDate()
	if expiry == nil {
		return
	}

	data := messaging.ItemExpiryEvent{
		ItemID:          it.ID,
		ItemName:        it.Name,
		ExpiryDate:      expiry.String(),
		DaysUntil:       daysUntil,
		CurrentQuantity: it.CurrentQuantity(),
		Unit:            it.Unit,
	}

	p.publish(ctx, eventType, it.ID, data)
}

func (p *PantryEventPublisher) publish(ctx context.Context, eventType, itemID string, data interface{}) {
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("item_id", itemID).
			Msg("failed to publish pantry event")
	}
}

func dateString(d *ledger.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
