package workqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/Amund211/atlas/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// DefaultHardCap is the queue length at which the owning thread has fallen hopelessly behind
const DefaultHardCap = 8192

type item struct {
	run  func()
	fail func(error)
}

// Queue hands closures from background goroutines to the owning (render) thread.
//
// Producers call Submit or Call from any goroutine. Only the owning thread calls RunUpTo, Drop and Exhausted.
type Queue struct {
	hardCap int

	mu     sync.Mutex
	items  []item
	closed bool

	metrics queueMetricsCollection
}

func New(hardCap int) (*Queue, error) {
	if hardCap <= 0 {
		hardCap = DefaultHardCap
	}

	metrics, err := setupQueueMetrics(otel.Meter("atlas/workqueue"))
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	return &Queue{
		hardCap: hardCap,
		metrics: metrics,
	}, nil
}

// Submit queues fn to run on the owning thread
func (q *Queue) Submit(fn func()) error {
	return q.enqueue(item{run: fn, fail: func(error) {}})
}

func (q *Queue) enqueue(it item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("work queue: %w", domain.ErrClosed)
	}

	q.items = append(q.items, it)
	return nil
}

type outcome[T any] struct {
	value T
	err   error
}

// Call runs fn on the owning thread and waits for its result.
//
// If ctx is done before fn starts, fn is skipped. If ctx is done while fn runs, the result is discarded.
func Call[T any](ctx context.Context, q *Queue, fn func() (T, error)) (T, error) {
	var empty T

	result := make(chan outcome[T], 1)
	err := q.enqueue(item{
		run: func() {
			if err := ctx.Err(); err != nil {
				result <- outcome[T]{err: err}
				return
			}
			value, err := fn()
			result <- outcome[T]{value: value, err: err}
		},
		fail: func(err error) {
			result <- outcome[T]{err: err}
		},
	})
	if err != nil {
		return empty, err
	}

	select {
	case r := <-result:
		return r.value, r.err
	case <-ctx.Done():
		return empty, ctx.Err()
	}
}

func (q *Queue) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item{}, false
	}
	it := q.items[0]
	q.items[0] = item{}
	q.items = q.items[1:]
	return it, true
}

// RunUpTo runs at most n queued closures in FIFO order and returns how many ran
func (q *Queue) RunUpTo(ctx context.Context, n int) int {
	ran := 0
	for ran < n {
		it, ok := q.pop()
		if !ok {
			break
		}
		runItem(it)
		ran++
	}

	if ran > 0 {
		q.metrics.executed.Add(ctx, int64(ran))
	}
	return ran
}

func runItem(it item) {
	defer func() {
		if r := recover(); r != nil {
			it.fail(fmt.Errorf("panic in work item: %v\n%s", r, debug.Stack()))
		}
	}()
	it.run()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

func (q *Queue) HardCap() int {
	return q.hardCap
}

// Exhausted reports whether the queue has reached its hard cap
func (q *Queue) Exhausted() bool {
	return q.Len() >= q.hardCap
}

// Drop discards every queued closure. Goroutines waiting in Call receive domain.ErrResourceExhausted.
// Returns the number of dropped closures.
func (q *Queue) Drop(ctx context.Context) int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	err := fmt.Errorf("work queue dropped: %w", domain.ErrResourceExhausted)
	for _, it := range items {
		it.fail(err)
	}

	q.metrics.dropped.Add(ctx, int64(len(items)))
	return len(items)
}

// Close rejects further submissions and drops anything still queued
func (q *Queue) Close(ctx context.Context) int {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	return q.Drop(ctx)
}

type queueMetricsCollection struct {
	executed metric.Int64Counter
	dropped  metric.Int64Counter
}

func setupQueueMetrics(meter metric.Meter) (queueMetricsCollection, error) {
	executed, err := meter.Int64Counter(
		"workqueue/executed",
		metric.WithDescription("Work items run on the owning thread"),
	)
	if err != nil {
		return queueMetricsCollection{}, fmt.Errorf("failed to create metric: %w", err)
	}

	dropped, err := meter.Int64Counter(
		"workqueue/dropped",
		metric.WithDescription("Work items discarded without running"),
	)
	if err != nil {
		return queueMetricsCollection{}, fmt.Errorf("failed to create metric: %w", err)
	}

	return queueMetricsCollection{
		executed: executed,
		dropped:  dropped,
	}, nil
}
