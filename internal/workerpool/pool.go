package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/logging"
	"github.com/Amund211/atlas/internal/reporting"
)

// Task is a unit of background work. A returned error is logged and reported, it does not stop the pool.
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines in submission order.
//
// Submit never blocks: tasks that can't be started immediately wait in an unbounded backlog.
type Pool struct {
	name       string
	numWorkers int
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	ready   *sync.Cond
	backlog []Task
	closed  bool

	running atomic.Int64
	wg      sync.WaitGroup
}

// New starts a pool with numWorkers goroutines. numWorkers <= 0 uses one worker per CPU.
func New(name string, numWorkers int, logger *slog.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	logger = logger.With(slog.String("pool", name))
	ctx := reporting.AddComponentToContext(reporting.AddHubToContext(context.Background()), name)
	ctx = logging.AddToContext(ctx, logger)
	ctx, cancel := context.WithCancel(ctx)

	p := &Pool{
		name:       name,
		numWorkers: numWorkers,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	p.ready = sync.NewCond(&p.mu)

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		task, ok := p.next()
		if !ok {
			return
		}

		p.running.Add(1)
		err := p.run(task)
		p.running.Add(-1)

		if err != nil {
			reporting.Report(p.ctx, fmt.Errorf("%s: task failed: %w", p.name, err))
		}
	}
}

func (p *Pool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.backlog) == 0 && !p.closed {
		p.ready.Wait()
	}
	if p.closed {
		return nil, false
	}

	task := p.backlog[0]
	p.backlog[0] = nil
	p.backlog = p.backlog[1:]
	return task, true
}

func (p *Pool) run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Recovered panic in task", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return task(p.ctx)
}

// Submit queues task for execution. Returns domain.ErrClosed after Close.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("%s: %w", p.name, domain.ErrClosed)
	}

	p.backlog = append(p.backlog, task)
	p.ready.Signal()
	return nil
}

// Backlog returns the number of tasks waiting for a free worker
func (p *Pool) Backlog() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.backlog)
}

// Running returns the number of tasks currently executing
func (p *Pool) Running() int {
	return int(p.running.Load())
}

func (p *Pool) Workers() int {
	return p.numWorkers
}

// Close discards the backlog, cancels the context of running tasks and waits for them to return.
// Returns the number of discarded tasks.
func (p *Pool) Close() int {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0
	}
	p.closed = true
	dropped := len(p.backlog)
	p.backlog = nil
	p.ready.Broadcast()
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	p.logger.Debug("Closed worker pool", "dropped", dropped)
	return dropped
}
