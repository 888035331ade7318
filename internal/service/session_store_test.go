package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crew-bid-api/internal/models"
	appErrors "github.com/noah-isme/crew-bid-api/pkg/errors"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestSessionStore(ttl time.Duration, capacity int) (*MemorySessionStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)}
	store := NewMemorySessionStore(ttl, capacity, NewMetricsService())
	store.now = clock.Now
	return store, clock
}

func TestMemorySessionStoreIdleExpiry(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestSessionStore(30*time.Minute, 10)
	require.NoError(t, store.Save(ctx, &models.BidSession{ID: "s1", Month: testMonth}))

	clock.now = clock.now.Add(20 * time.Minute)
	_, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	// the read above restarted the idle timer
	clock.now = clock.now.Add(20 * time.Minute)
	_, err = store.Get(ctx, "s1")
	require.NoError(t, err)

	clock.now = clock.now.Add(31 * time.Minute)
	_, err = store.Get(ctx, "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionNotFound.Status, appErrors.FromError(err).Status)
	assert.Zero(t, store.Len())
}

func TestMemorySessionStoreCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestSessionStore(time.Hour, 2)
	require.NoError(t, store.Save(ctx, &models.BidSession{ID: "a"}))
	clock.now = clock.now.Add(time.Minute)
	require.NoError(t, store.Save(ctx, &models.BidSession{ID: "b"}))
	clock.now = clock.now.Add(time.Minute)
	_, err := store.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, &models.BidSession{ID: "c"}))

	assert.Equal(t, 2, store.Len())
	_, err = store.Get(ctx, "b")
	assert.Error(t, err)
	_, err = store.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemorySessionStoreSweep(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestSessionStore(10*time.Minute, 10)
	require.NoError(t, store.Save(ctx, &models.BidSession{ID: "old"}))
	clock.now = clock.now.Add(8 * time.Minute)
	require.NoError(t, store.Save(ctx, &models.BidSession{ID: "fresh"}))
	clock.now = clock.now.Add(5 * time.Minute)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
	_, err := store.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestMemorySessionStoreRejectsMissingID(t *testing.T) {
	store, _ := newTestSessionStore(time.Minute, 1)
	assert.Error(t, store.Save(context.Background(), &models.BidSession{}))
	assert.Error(t, store.Save(context.Background(), nil))
}

type memoryCacheRepo struct {
	items     map[string][]byte
	refreshed []string
	failWith  error
}

func (m *memoryCacheRepo) Load(_ context.Context, key string, dest interface{}, ttl time.Duration) error {
	if m.failWith != nil {
		return m.failWith
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if ttl > 0 {
		m.refreshed = append(m.refreshed, key)
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Store(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCacheRepo) Update(_ context.Context, key string, _ time.Duration, fn func(current []byte) (interface{}, error)) error {
	if m.failWith != nil {
		return m.failWith
	}
	value, err := fn(m.items[key])
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func addArtifact(hash string) func(*models.BidSession) *models.BidSession {
	return func(previous *models.BidSession) *models.BidSession {
		next := &models.BidSession{Artifacts: map[string]models.ExportArtifact{}}
		if previous != nil {
			for h, a := range previous.Artifacts {
				next.Artifacts[h] = a
			}
		}
		next.Artifacts[hash] = models.ExportArtifact{Hash: hash}
		return next
	}
}

func TestMemorySessionStoreConcurrentUpdatesKeepEveryArtifact(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(time.Hour, 10, NewMetricsService())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(ctx, "s1", addArtifact(fmt.Sprintf("h%02d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	session, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, session.Artifacts, 16)
	assert.Equal(t, "s1", session.ID)
}

func TestMemorySessionStoreUpdateTreatsExpiredAsAbsent(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestSessionStore(10*time.Minute, 10)
	_, err := store.Update(ctx, "s1", addArtifact("old"))
	require.NoError(t, err)
	clock.now = clock.now.Add(11 * time.Minute)

	session, err := store.Update(ctx, "s1", addArtifact("new"))

	require.NoError(t, err)
	assert.NotContains(t, session.Artifacts, "old")
	assert.Contains(t, session.Artifacts, "new")
	_, err = store.Update(ctx, "", addArtifact("x"))
	assert.Error(t, err)
}

func TestRedisSessionStoreUpdateMergesWithStoredSession(t *testing.T) {
	ctx := context.Background()
	repo := &memoryCacheRepo{items: map[string][]byte{}}
	store := NewRedisSessionStore(NewCacheService(repo, NewMetricsService(), time.Minute, nil), time.Minute)

	_, err := store.Update(ctx, "s1", addArtifact("h1"))
	require.NoError(t, err)
	session, err := store.Update(ctx, "s1", addArtifact("h2"))
	require.NoError(t, err)

	assert.Equal(t, "s1", session.ID)
	loaded, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, loaded.Artifacts, "h1")
	assert.Contains(t, loaded.Artifacts, "h2")

	repo.failWith = errors.New("connection refused")
	_, err = store.Update(ctx, "s1", addArtifact("h3"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := &memoryCacheRepo{items: map[string][]byte{}}
	store := NewRedisSessionStore(NewCacheService(repo, NewMetricsService(), time.Minute, nil), time.Minute)

	session := &models.BidSession{
		ID:        "s1",
		Month:     testMonth,
		Artifacts: map[string]models.ExportArtifact{"h1": {Hash: "h1", Content: "# BID LAYERS 2026-03\n"}},
	}
	require.NoError(t, store.Save(ctx, session))

	loaded, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "# BID LAYERS 2026-03\n", loaded.Artifacts["h1"].Content)
	assert.Equal(t, []string{"bid:session:s1"}, repo.refreshed)

	_, err = store.Get(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionNotFound.Status, appErrors.FromError(err).Status)
}

func TestRedisSessionStoreBackendFailure(t *testing.T) {
	repo := &memoryCacheRepo{items: map[string][]byte{}, failWith: errors.New("i/o timeout")}
	store := NewRedisSessionStore(NewCacheService(repo, nil, time.Minute, nil), time.Minute)

	_, err := store.Get(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
