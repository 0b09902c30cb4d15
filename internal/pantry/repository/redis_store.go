package repository

import (
	"context"
	"fmt"

	"github.com/larder/larder-backend/internal/ledger"
	"github.com/larder/larder-backend/pkg/cache"
	"github.com/larder/larder-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the collection in one hash, field per item id.
// It backs the cloud-sync replica.
type RedisStore struct {
	client *cache.Client
	key    string
	logger *logger.Logger
}

// NewRedisStore creates a store on the <prefix>items hash
func NewRedisStore(client *cache.Client, log *logger.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		key:    client.Key("items"),
		logger: log,
	}
}

func (s *RedisStore) Name() string { return "redis" }

// Load reads every field of the hash
func (s *RedisStore) Load(ctx context.Context) (ledger.Collection, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.key, err)
	}

	items := make(ledger.Collection, len(fields))
	for id, doc := range fields {
		it, err := decodeItem(id, doc)
		if err != nil {
			return nil, err
		}
		items[it.ID] = it
	}

	return items, nil
}

// Save swaps the hash contents atomically inside MULTI/EXEC
func (s *RedisStore) Save(ctx context.Context, items ledger.Collection) error {
	values := make([]interface{}, 0, len(items)*2)
	for id, it := range items {
		doc, err := encodeItem(it)
		if err != nil {
			return err
		}
		values = append(values, id, doc)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", s.key, err)
	}

	s.logger.Debug().Str("key", s.key).Int("items", len(items)).Msg("pantry replicated")
	return nil
}
