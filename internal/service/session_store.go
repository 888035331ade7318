package service

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/noah-isme/crew-bid-api/internal/models"
	appErrors "github.com/noah-isme/crew-bid-api/pkg/errors"
)

const sessionKeyPrefix = "bid:session:"

// SessionStore retains compile results for explain and export follow-ups.
// Get refreshes the idle timer and returns ErrSessionNotFound for unknown or
// expired sessions. Update derives the next session from the current one
// (nil when absent) without losing a concurrent writer's changes; fn may run
// more than once and must not have side effects.
type SessionStore interface {
	Save(ctx context.Context, session *models.BidSession) error
	Get(ctx context.Context, id string) (*models.BidSession, error)
	Update(ctx context.Context, id string, fn func(previous *models.BidSession) *models.BidSession) (*models.BidSession, error)
}

type sessionEntry struct {
	session    *models.BidSession
	lastAccess time.Time
	element    *list.Element
}

// MemorySessionStore keeps sessions in process with an idle timeout and a
// capacity bound. The least recently used session is evicted when full.
type MemorySessionStore struct {
	ttl      time.Duration
	capacity int
	metrics  *MetricsService
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*sessionEntry
	order *list.List
}

// NewMemorySessionStore constructs an in-memory store.
func NewMemorySessionStore(ttl time.Duration, capacity int, metrics *MetricsService) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemorySessionStore{
		ttl:      ttl,
		capacity: capacity,
		metrics:  metrics,
		now:      time.Now,
		items:    make(map[string]*sessionEntry),
		order:    list.New(),
	}
}

// Save stores or replaces a session.
func (s *MemorySessionStore) Save(_ context.Context, session *models.BidSession) error {
	if session == nil || session.ID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "session id is required")
	}
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(session)
	s.metrics.ObserveCacheWrite(time.Since(start))
	return nil
}

// Update applies fn under the store lock.
func (s *MemorySessionStore) Update(_ context.Context, id string, fn func(previous *models.BidSession) *models.BidSession) (*models.BidSession, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session id is required")
	}
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var previous *models.BidSession
	if entry, ok := s.items[id]; ok {
		if s.now().Sub(entry.lastAccess) > s.ttl {
			s.removeLocked(id)
			s.metrics.RecordSessionEvictions(1)
		} else {
			previous = entry.session
		}
	}
	next := fn(previous)
	next.ID = id
	s.saveLocked(next)
	s.metrics.ObserveCacheWrite(time.Since(start))
	return next, nil
}

func (s *MemorySessionStore) saveLocked(session *models.BidSession) {
	now := s.now()
	session.LastAccess = now.UTC()
	if entry, ok := s.items[session.ID]; ok {
		entry.session = session
		entry.lastAccess = now
		s.order.MoveToFront(entry.element)
	} else {
		entry := &sessionEntry{session: session, lastAccess: now}
		entry.element = s.order.PushFront(session.ID)
		s.items[session.ID] = entry
	}
	evicted := 0
	for len(s.items) > s.capacity {
		oldest := s.order.Back()
		s.removeLocked(oldest.Value.(string))
		evicted++
	}
	s.metrics.RecordSessionEvictions(evicted)
}

// Get returns a session and refreshes its idle timer.
func (s *MemorySessionStore) Get(_ context.Context, id string) (*models.BidSession, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[id]
	now := s.now()
	if ok && now.Sub(entry.lastAccess) > s.ttl {
		s.removeLocked(id)
		s.metrics.RecordSessionEvictions(1)
		ok = false
	}
	if !ok {
		s.metrics.RecordCacheOperation(false, time.Since(start))
		return nil, appErrors.Clone(appErrors.ErrSessionNotFound, "bid session not found or expired")
	}
	entry.lastAccess = now
	entry.session.LastAccess = now.UTC()
	s.order.MoveToFront(entry.element)
	s.metrics.RecordCacheOperation(true, time.Since(start))
	return entry.session, nil
}

// Sweep drops every session idle for longer than the TTL and returns how many
// were removed.
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for e := s.order.Back(); e != nil; {
		prev := e.Prev()
		id := e.Value.(string)
		if now.Sub(s.items[id].lastAccess) <= s.ttl {
			// list is in access order, everything ahead is fresher
			break
		}
		s.removeLocked(id)
		removed++
		e = prev
	}
	s.metrics.RecordSessionEvictions(removed)
	return removed
}

// Len reports the number of retained sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemorySessionStore) removeLocked(id string) {
	entry, ok := s.items[id]
	if !ok {
		return
	}
	s.order.Remove(entry.element)
	delete(s.items, id)
}

// RedisSessionStore keeps sessions in Redis so several instances can answer
// follow-up queries. The TTL is refreshed on every read.
type RedisSessionStore struct {
	cache *CacheService
	ttl   time.Duration
}

// NewRedisSessionStore constructs a Redis backed store. cache must use the
// same ttl as its default so reads slide the expiry by the idle window.
func NewRedisSessionStore(cache *CacheService, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisSessionStore{cache: cache, ttl: ttl}
}

// Save stores the session under its id.
func (s *RedisSessionStore) Save(ctx context.Context, session *models.BidSession) error {
	if session == nil || session.ID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "session id is required")
	}
	session.LastAccess = time.Now().UTC()
	if err := s.cache.Put(ctx, sessionKey(session.ID), session, s.ttl); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store bid session")
	}
	return nil
}

// Get loads a session and restarts its TTL.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*models.BidSession, error) {
	var session models.BidSession
	hit, err := s.cache.Fetch(ctx, sessionKey(id), &session)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bid session")
	}
	if !hit {
		return nil, appErrors.Clone(appErrors.ErrSessionNotFound, "bid session not found or expired")
	}
	session.LastAccess = time.Now().UTC()
	return &session, nil
}

// Update rewrites the session under WATCH so concurrent compiles into one
// session keep each other's artifacts.
func (s *RedisSessionStore) Update(ctx context.Context, id string, fn func(previous *models.BidSession) *models.BidSession) (*models.BidSession, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session id is required")
	}
	var next *models.BidSession
	err := s.cache.Update(ctx, sessionKey(id), s.ttl, func(current []byte) (interface{}, error) {
		var previous *models.BidSession
		if current != nil {
			var decoded models.BidSession
			if err := json.Unmarshal(current, &decoded); err == nil {
				previous = &decoded
			}
		}
		next = fn(previous)
		next.ID = id
		next.LastAccess = time.Now().UTC()
		return next, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store bid session")
	}
	return next, nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}
