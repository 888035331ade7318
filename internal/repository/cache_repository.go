package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/crew-bid-api/pkg/errors"
)

// CacheRepository keeps JSON documents such as bid sessions in Redis with a
// sliding expiry.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Load reads key into dest. A positive ttl restarts the key's expiry in the
// same round trip (GETEX), so idle timers reset on every read.
func (r *CacheRepository) Load(ctx context.Context, key string, dest interface{}, ttl time.Duration) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	var cmd *redis.StringCmd
	if ttl > 0 {
		cmd = r.client.GetEx(ctx, key, ttl)
	} else {
		cmd = r.client.Get(ctx, key)
	}
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return appErrors.ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis getex %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		// a document written by an incompatible build is treated as absent
		r.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Store writes value as JSON under key with the given expiry.
func (r *CacheRepository) Store(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// maxUpdateAttempts bounds optimistic retries when another writer touches the
// key between WATCH and EXEC.
const maxUpdateAttempts = 5

// Update replaces key with the value fn derives from its current JSON (nil when
// absent). The read and the write run under WATCH, so a concurrent writer makes
// the transaction retry with fresh input instead of being overwritten.
func (r *CacheRepository) Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte) (interface{}, error)) error {
	if r.client == nil {
		_, err := fn(nil)
		return err
	}
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			current = nil
		case err != nil:
			return fmt.Errorf("redis get %s: %w", key, err)
		}
		value, err := fn(current)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal cache value for %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		r.logger.Debug("cache update contended; retrying", zap.String("key", key), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("redis update %s: %w", key, redis.TxFailedErr)
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
