package offline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultMaxAttempts = 5
	defaultCapacity    = 256
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity
var ErrQueueFull = errors.New("offline queue full")

// Op is one deferred unit of work awaiting connectivity
type Op struct {
	ID       string
	Name     string
	Attempts int
	Run      func(ctx context.Context) error

	enqueuedAt time.Time
}

// Queue holds requests made while offline and replays them in FIFO
// order when connectivity returns. Each op executes at most once per
// drain pass; failures wait for the next pass and are dropped after
// too many attempts.
type Queue struct {
	mu          sync.Mutex
	ops         []*Op
	draining    bool
	maxAttempts int
	capacity    int
	nowFunc     func() time.Time
}

type QueueOption func(*Queue)

// WithMaxAttempts sets how many drain passes an op may fail before
// being dropped
func WithMaxAttempts(attempts int) QueueOption {
	return func(q *Queue) {
		q.maxAttempts = attempts
	}
}

// WithCapacity bounds how many ops may wait at once
func WithCapacity(capacity int) QueueOption {
	return func(q *Queue) {
		q.capacity = capacity
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) QueueOption {
	return func(q *Queue) {
		q.nowFunc = now
	}
}

// NewQueue creates an empty offline queue
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		maxAttempts: defaultMaxAttempts,
		capacity:    defaultCapacity,
		nowFunc:     time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends an op to the queue and returns its ID
func (q *Queue) Enqueue(name string, run func(ctx context.Context) error) (string, error) {
	if run == nil {
		return "", errors.New("run cannot be nil")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) >= q.capacity {
		log.Warn().Str("op", name).Msg("offline queue full, dropping request")
		return "", ErrQueueFull
	}

	op := &Op{
		ID:         uuid.NewString(),
		Name:       name,
		Run:        run,
		enqueuedAt: q.nowFunc(),
	}
	q.ops = append(q.ops, op)
	return op.ID, nil
}

// Len returns how many ops are waiting
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Drain executes the currently queued ops in FIFO order. Ops enqueued
// while the pass runs wait for the next one. Failed ops keep their
// order at the front of the queue for the next pass; an op that fails
// maxAttempts times is dropped. Only one drain runs at a time.
func (q *Queue) Drain(ctx context.Context) (executed, failed int) {
	q.mu.Lock()
	if q.draining || len(q.ops) == 0 {
		q.mu.Unlock()
		return 0, 0
	}
	q.draining = true
	batch := q.ops
	q.ops = nil
	q.mu.Unlock()

	var retained []*Op
	for i, op := range batch {
		if err := ctx.Err(); err != nil {
			// Connectivity pass aborted; everything not yet run stays
			// queued untouched.
			retained = append(retained, batch[i:]...)
			break
		}

		op.Attempts++
		if err := op.Run(ctx); err != nil {
			failed++
			if op.Attempts >= q.maxAttempts {
				log.Error().
					Str("op", op.Name).
					Int("attempts", op.Attempts).
					Err(err).
					Msg("dropping offline request after repeated failures")
				continue
			}
			log.Warn().Str("op", op.Name).Err(err).Msg("offline request failed, keeping for next pass")
			retained = append(retained, op)
			continue
		}
		executed++
	}

	q.mu.Lock()
	q.ops = append(retained, q.ops...)
	q.draining = false
	q.mu.Unlock()

	if executed > 0 || failed > 0 {
		log.Debug().Int("executed", executed).Int("failed", failed).Msg("offline queue drained")
	}
	return executed, failed
}
