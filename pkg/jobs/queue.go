package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room. Callers on
	// a request path drop the job rather than wait.
	ErrQueueFull = errors.New("jobs: queue full")
	// ErrQueueStopped is returned once Stop has been called or before Start.
	ErrQueueStopped = errors.New("jobs: queue not running")
)

// Job is a queued background task. ID doubles as the dedup key: a job whose ID
// is already pending or running is accepted without being queued twice.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// Outcome is reported to QueueConfig.OnResult after every attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRetried   Outcome = "retried"
	OutcomeFailed    Outcome = "failed"
)

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	// DrainTimeout bounds how long Stop keeps working through buffered jobs.
	DrainTimeout time.Duration
	OnResult     func(Job, Outcome)
	Logger       *zap.Logger
}

// Queue is an in-memory, non-blocking job dispatcher backed by goroutines.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	jobs chan Job
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	running  bool
	active   int
	inflight map[string]struct{}
}

// NewQueue builds a queue around handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		name:     name,
		handler:  handler,
		cfg:      cfg,
		logger:   cfg.Logger.With(zap.String("queue", name)),
		jobs:     make(chan Job, cfg.BufferSize),
		inflight: make(map[string]struct{}),
	}
}

// Start launches the workers. Calling it again is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running || q.stop != nil {
		return
	}
	q.ctx, q.stop = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.running = true
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop refuses new jobs, works through what is buffered for at most
// DrainTimeout, then cancels the workers and waits for them.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	deadline := time.NewTimer(q.cfg.DrainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
drain:
	for q.pending() > 0 {
		select {
		case <-deadline.C:
			q.logger.Warn("queue drain timed out", zap.Int("pending", q.pending()))
			break drain
		case <-tick.C:
		}
	}
	q.stop()
	q.wg.Wait()
	q.logger.Info("queue stopped")
}

// Enqueue hands a job to the workers without blocking. A job whose ID is
// already in flight is absorbed and reported as accepted.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return fmt.Errorf("%w: %s", ErrQueueStopped, q.name)
	}
	if job.ID != "" {
		if _, dup := q.inflight[job.ID]; dup {
			return nil
		}
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		q.active++
		if job.ID != "" {
			q.inflight[job.ID] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, q.name)
	}
}

func (q *Queue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(job)
		}
	}
}

func (q *Queue) run(job Job) {
	for {
		err := q.handler(q.ctx, job)
		if err == nil {
			q.finish(job, OutcomeSucceeded)
			return
		}
		if job.Attempt >= q.cfg.MaxRetries || q.ctx.Err() != nil {
			q.logger.Error("job failed",
				zap.String("job_id", job.ID),
				zap.String("type", job.Type),
				zap.Int("attempts", job.Attempt+1),
				zap.Error(err))
			q.finish(job, OutcomeFailed)
			return
		}
		job.Attempt++
		q.report(job, OutcomeRetried)
		backoff := q.cfg.RetryDelay << (job.Attempt - 1)
		q.logger.Warn("job failed, retrying",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Int("attempt", job.Attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-q.ctx.Done():
			timer.Stop()
			q.finish(job, OutcomeFailed)
			return
		case <-timer.C:
		}
	}
}

func (q *Queue) finish(job Job, outcome Outcome) {
	q.mu.Lock()
	q.active--
	delete(q.inflight, job.ID)
	q.mu.Unlock()
	q.report(job, outcome)
}

func (q *Queue) report(job Job, outcome Outcome) {
	if q.cfg.OnResult != nil {
		q.cfg.OnResult(job, outcome)
	}
}
