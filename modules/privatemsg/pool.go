package privatemsg

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
)

// Pool errors.
var (
	ErrPoolStopped = errors.New("task pool stopped")
	ErrQueueFull   = errors.New("task queue full")
)

// Task is one unit of background work. OnDone, when set, is always called
// with the result of Run.
type Task struct {
	Name   string
	Run    func(ctx context.Context) error
	OnDone func(err error)
}

// Pool runs tasks on a fixed number of workers fed by a bounded queue.
// Tasks run on the pool's own context, so cancelling the submitter's
// context has no effect on them.
type Pool struct {
	workers int
	queue   chan Task
	logger  types.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
	stopped bool
}

// NewPool creates a pool with the given worker count and queue size.
func NewPool(workers, queueSize int, logger types.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers: workers,
		queue:   make(chan Task, queueSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPoolStopped
	}
	if p.running {
		return fmt.Errorf("pool is already running")
	}
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i + 1)
	}
	p.logger.Info("Task pool started", "workers", p.workers, "queue", cap(p.queue))
	return nil
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for task := range p.queue {
		p.execute(id, task)
	}
}

func (p *Pool) execute(workerID int, task Task) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task %s panicked: %v", task.Name, r)
			}
		}()
		err = task.Run(p.ctx)
	}()

	if err != nil {
		p.logger.Debug("Task failed", "worker", workerID, "task", task.Name, "error", err)
	}
	if task.OnDone != nil {
		task.OnDone(err)
	}
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued tasks.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Stop refuses new tasks and waits for queued ones to finish. When ctx
// expires first, running tasks are cancelled and ctx.Err is returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	running := p.running
	close(p.queue)
	p.mu.Unlock()

	if !running {
		p.cancel()
		for task := range p.queue {
			if task.OnDone != nil {
				task.OnDone(ErrPoolStopped)
			}
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("Task pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("Timeout waiting for task pool to drain", "pending", len(p.queue))
		return ctx.Err()
	}
}
