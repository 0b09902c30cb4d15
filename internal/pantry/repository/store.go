package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/larder/larder-backend/internal/ledger"
)

// Store persists the whole item collection. Save replaces everything that
// was stored before; Load of a store that was never saved returns an empty
// collection.
type Store interface {
	Load(ctx context.Context) (ledger.Collection, error)
	Save(ctx context.Context, items ledger.Collection) error
	Name() string
}

// encodeItem renders one item in the persisted record format
func encodeItem(it *ledger.Item) (string, error) {
	data, err := json.Marshal(it)
	if err != nil {
		return "", fmt.Errorf("failed to encode item %s: %w", it.ID, err)
	}
	return string(data), nil
}

// decodeItem parses a persisted record; key fills in a missing id
func decodeItem(key, document string) (*ledger.Item, error) {
	var it ledger.Item
	if err := json.Unmarshal([]byte(document), &it); err != nil {
		return nil, fmt.Errorf("failed to decode item %s: %w", key, err)
	}
	if it.ID == "" {
		it.ID = key
	}
	return &it, nil
}
