package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	// Pantry events
	EventItemCreated         = "pantry.item.created"
	EventItemUpdated         = "pantry.item.updated"
	EventItemRestocked       = "pantry.item.restocked"
	EventItemConsumed        = "pantry.item.consumed"
	EventItemBatchesReplaced = "pantry.item.batches_replaced"
	EventItemDeleted         = "pantry.item.deleted"
	EventItemExpiring        = "pantry.item.expiring"
	EventItemExpired         = "pantry.item.expired"

	// Recognition events
	EventRecognitionItemProposed = "recognition.item.proposed"
)

// Exchange names
const (
	ExchangePantryEvents      = "pantry.events"
	ExchangeRecognitionEvents = "recognition.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Pantry Events

// ItemCreatedEvent is published when an item is added to the pantry
type ItemCreatedEvent struct {
	ItemID          string          `json:"item_id"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Unit            string          `json:"unit"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	ExpiryDate      *string         `json:"expiry_date,omitempty"`
	Source          string          `json:"source"`
}

// ItemUpdatedEvent is published when descriptive fields change
type ItemUpdatedEvent struct {
	ItemID string   `json:"item_id"`
	Fields []string `json:"fields"`
}

// StockChangedEvent is published after a restock, a consumption, or a manual
// batch edit. Delta is positive for restocks and negative for consumption.
type StockChangedEvent struct {
	ItemID          string          `json:"item_id"`
	ItemName        string          `json:"item_name"`
	BatchID         string          `json:"batch_id,omitempty"`
	Delta           decimal.Decimal `json:"delta"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	BatchCount      int             `json:"batch_count"`
	ExpiryDate      *string         `json:"expiry_date,omitempty"`
	PerformedBy     string          `json:"performed_by,omitempty"`
}

// ItemDeletedEvent is published when an item and all its batches are removed
type ItemDeletedEvent struct {
	ItemID      string `json:"item_id"`
	Name        string `json:"name"`
	PerformedBy string `json:"performed_by,omitempty"`
}

// ItemExpiryEvent is published by the expiry scanner for items whose nearest
// expiry is within the warning window or already past
type ItemExpiryEvent struct {
	ItemID          string          `json:"item_id"`
	ItemName        string          `json:"item_name"`
	ExpiryDate      string          `json:"expiry_date"`
	DaysUntil       int             `json:"days_until"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	Unit            string          `json:"unit"`
}

// Recognition Events

// RecognitionItemProposedEvent is published by the recognition service when a
// photo or receipt yields a candidate pantry item
type RecognitionItemProposedEvent struct {
	Name            string           `json:"name"`
	Quantity        decimal.Decimal  `json:"quantity"`
	Unit            string           `json:"unit"`
	Category        string           `json:"category"`
	QuantityPerPack *decimal.Decimal `json:"quantity_per_pack,omitempty"`
	ExpiryDate      *string          `json:"expiry_date,omitempty"`
	Confidence      float64          `json:"confidence,omitempty"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}
