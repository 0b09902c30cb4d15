package consumers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/larder/larder-backend/internal/ledger"
	"github.com/larder/larder-backend/internal/pantry/service"
	"github.com/larder/larder-backend/pkg/actor"
	"github.com/larder/larder-backend/pkg/cache"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/larder/larder-backend/pkg/logger"
	"github.com/larder/larder-backend/pkg/messaging"
)

// RecognitionQueue is the queue this service reads recognition proposals from
const RecognitionQueue = "pantry-service.recognition"

// processedTTL bounds how long a handled event id is remembered
const processedTTL = 24 * time.Hour

// ItemCreator is the part of the pantry service the consumer needs
type ItemCreator interface {
	CreateItem(ctx context.Context, in ledger.NewItem, source string) (*service.ItemView, error)
}

// RecognitionConsumer turns recognition proposals into pantry items
type RecognitionConsumer struct {
	consumer *messaging.Consumer
	creator  ItemCreator
	cache    *cache.Client
	logger   *logger.Logger
}

// NewRecognitionConsumer creates a consumer bound to the recognition exchange.
// dedupe may be nil; when set, redelivered events are recognised by id and
// do not create a second item.
func NewRecognitionConsumer(rmq *messaging.RabbitMQ, creator ItemCreator, dedupe *cache.Client, log *logger.Logger) (*RecognitionConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, RecognitionQueue, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeRecognitionEvents, messaging.EventRecognitionItemProposed); err != nil {
		return nil, err
	}

	c := newRecognitionConsumer(creator, dedupe, log)
	c.consumer = consumer
	consumer.RegisterHandler(messaging.EventRecognitionItemProposed, c.handleItemProposed)

	return c, nil
}

func newRecognitionConsumer(creator ItemCreator, dedupe *cache.Client, log *logger.Logger) *RecognitionConsumer {
	return &RecognitionConsumer{
		creator: creator,
		cache:   dedupe,
		logger:  log.WithComponent("recognition_consumer"),
	}
}

// Start starts consuming messages
func (c *RecognitionConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *RecognitionConsumer) handleItemProposed(ctx context.Context, event *messaging.Event) error {
	var data messaging.RecognitionItemProposedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return messaging.Permanent(fmt.Errorf("decode recognition proposal: %w", err))
	}

	in, err := proposalToNewItem(data)
	if err != nil {
		return messaging.Permanent(err)
	}

	log := c.logger.WithCorrelationID(event.CorrelationID)

	claimed, err := c.claim(ctx, event.ID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Info().Str("event_id", event.ID).Msg("recognition proposal already handled")
		return nil
	}

	ctx = messaging.WithCorrelationID(ctx, event.CorrelationID)
	ctx = actor.WithActor(ctx, actor.System(service.SourceRecognition))
	view, err := c.creator.CreateItem(ctx, in, service.SourceRecognition)
	if err != nil {
		c.release(ctx, event.ID)
		if errors.Is(err, errors.ErrValidation) {
			return messaging.Permanent(err)
		}
		return err
	}

	log.Info().
		Str("event_id", event.ID).
		Str("item_id", view.Item.ID).
		Str("name", in.Name).
		Float64("confidence", data.Confidence).
		Msg("created pantry item from recognition proposal")

	return nil
}

func proposalToNewItem(data messaging.RecognitionItemProposedEvent) (ledger.NewItem, error) {
	in := ledger.NewItem{
		Name:            strings.TrimSpace(data.Name),
		Category:        strings.TrimSpace(data.Category),
		Unit:            strings.TrimSpace(data.Unit),
		QuantityPerPack: data.QuantityPerPack,
		Quantity:        data.Quantity,
	}

	if in.Name == "" {
		return in, fmt.Errorf("recognition proposal has no name")
	}
	if in.Unit == "" {
		return in, fmt.Errorf("recognition proposal for %q has no unit", in.Name)
	}
	if in.Quantity.IsNegative() {
		return in, fmt.Errorf("recognition proposal for %q has negative quantity %s", in.Name, in.Quantity)
	}

	if data.ExpiryDate != nil && strings.TrimSpace(*data.ExpiryDate) != "" {
		d, err := ledger.ParseDate(*data.ExpiryDate)
		if err != nil {
			return in, fmt.Errorf("recognition proposal for %q: %w", in.Name, err)
		}
		in.ExpiryDate = &d
	}

	return in, nil
}

func (c *RecognitionConsumer) processedKey(eventID string) string {
	return c.cache.Key("recognition:processed:" + eventID)
}

// claim marks an event id as being handled. Without a cache every event is claimed.
func (c *RecognitionConsumer) claim(ctx context.Context, eventID string) (bool, error) {
	if c.cache == nil || eventID == "" {
		return true, nil
	}
	ok, err := c.cache.SetNX(ctx, c.processedKey(eventID), time.Now().UTC().Format(time.RFC3339), processedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim recognition event %s: %w", eventID, err)
	}
	return ok, nil
}

// release forgets a claim so a retried delivery is handled again
func (c *RecognitionConsumer) release(ctx context.Context, eventID string) {
	if c.cache == nil || eventID == "" {
		return
	}
	if err := c.cache.Del(ctx, c.processedKey(eventID)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("event_id", eventID).Msg("failed to release recognition claim")
	}
}
