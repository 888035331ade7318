package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/crew-bid-api/pkg/errors"
)

// CacheRepository abstracts a keyed document store with sliding expiry.
type CacheRepository interface {
	Load(ctx context.Context, key string, dest interface{}, ttl time.Duration) error
	Store(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte) (interface{}, error)) error
}

// CacheService wraps a CacheRepository with session metrics and a default TTL.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewCacheService constructs a cache service. A nil repo disables it.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger}
}

// Enabled indicates whether a backing repository is configured.
func (s *CacheService) Enabled() bool {
	return s != nil && s.repo != nil
}

// Fetch loads key into dest and restarts its expiry. It reports whether the
// key was present; a miss is not an error.
func (s *CacheService) Fetch(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Load(ctx, key, dest, s.defaultTTL)
	duration := time.Since(start)
	switch {
	case err == nil:
		s.metrics.RecordCacheOperation(true, duration)
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		s.metrics.RecordCacheOperation(false, duration)
		return false, nil
	default:
		s.logger.Warn("cache fetch failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Put stores value under key. A non-positive ttl uses the default.
func (s *CacheService) Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Store(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache put failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Update atomically rewrites key from its current JSON. A non-positive ttl
// uses the default.
func (s *CacheService) Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte) (interface{}, error)) error {
	if !s.Enabled() {
		_, err := fn(nil)
		return err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Update(ctx, key, ttl, fn)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache update failed", zap.String("key", key), zap.Error(err))
	}
	return err
}
