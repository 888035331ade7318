package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcomeLog struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (l *outcomeLog) record(_ Job, o Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, o)
}

func (l *outcomeLog) snapshot() []Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Outcome(nil), l.outcomes...)
}

func TestQueueProcessesJobs(t *testing.T) {
	var handled int32
	log := &outcomeLog{}
	q := NewQueue("test", func(_ context.Context, _ Job) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{Workers: 2, OnResult: log.record})
	q.Start(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Job{ID: id}))
	}
	q.Stop()

	assert.Equal(t, int32(3), atomic.LoadInt32(&handled))
	assert.Equal(t, []Outcome{OutcomeSucceeded, OutcomeSucceeded, OutcomeSucceeded}, log.snapshot())
}

func TestQueueDeduplicatesInFlightIDs(t *testing.T) {
	release := make(chan struct{})
	var handled int32
	q := NewQueue("test", func(_ context.Context, _ Job) error {
		<-release
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "same"}))
	require.NoError(t, q.Enqueue(Job{ID: "same"}))
	close(release)
	q.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&handled))
}

func TestQueueRetriesThenFails(t *testing.T) {
	var attempts int32
	log := &outcomeLog{}
	q := NewQueue("test", func(_ context.Context, _ Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("disk unavailable")
	}, QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond, OnResult: log.record})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "x"}))
	q.Stop()

	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, []Outcome{OutcomeRetried, OutcomeRetried, OutcomeFailed}, log.snapshot())
}

func TestQueueRejectsWhenFullOrStopped(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("test", func(_ context.Context, _ Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	require.ErrorIs(t, q.Enqueue(Job{ID: "early"}), ErrQueueStopped)

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	require.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(Job{ID: "2"}))
	require.ErrorIs(t, q.Enqueue(Job{ID: "3"}), ErrQueueFull)

	close(block)
	q.Stop()
	require.ErrorIs(t, q.Enqueue(Job{ID: "4"}), ErrQueueStopped)
}

func TestQueueOutlivesStartContext(t *testing.T) {
	var handled int32
	q := NewQueue("test", func(_ context.Context, _ Job) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()

	require.NoError(t, q.Enqueue(Job{ID: "after-signal"}))
	q.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&handled))
}
