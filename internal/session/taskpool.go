package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("task pool is stopped")

// Task is a unit of background work run by the pool.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
	// OnPanic is called with the recovered value if Run panics.
	OnPanic func(err error)
}

// QueueStats reports the current state of the task queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Running   int64 `json:"running"`
	Overflow  int64 `json:"overflow"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// TaskPoolOptions configures the task pool.
type TaskPoolOptions struct {
	Workers   int
	QueueSize int
	// Timeout bounds each task. Zero means no per-task deadline.
	Timeout time.Duration
	Log     zerolog.Logger
}

// TaskPool runs tasks on a fixed number of workers fed by a bounded queue.
// Tasks submitted while the queue is full run on their own goroutine.
type TaskPool struct {
	tasks  chan Task
	opts   TaskPoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	running   atomic.Int64
	overflow  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewTaskPool creates a task pool. Call Start to launch the workers.
func NewTaskPool(opts TaskPoolOptions) *TaskPool {
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskPool{
		tasks:  make(chan Task, opts.QueueSize),
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (p *TaskPool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info().Int("workers", p.opts.Workers).Int("queue_size", p.opts.QueueSize).Msg("task pool started")
}

// Stop rejects new tasks, lets workers drain the queue and waits for them.
func (p *TaskPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	p.log.Info().
		Int64("completed", p.completed.Load()).
		Int64("failed", p.failed.Load()).
		Msg("task pool stopped")
}

// Submit dispatches a task. It is queued for the workers when there is room
// and otherwise started on a goroutine of its own. The only error is
// ErrPoolStopped.
func (p *TaskPool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolStopped
	}
	select {
	case p.tasks <- t:
		return nil
	default:
	}

	// Added under the read lock so Stop's Wait covers it.
	p.wg.Add(1)
	p.overflow.Add(1)
	go func() {
		defer p.wg.Done()
		p.execute(t, p.log.With().Bool("overflow", true).Logger())
	}()
	return nil
}

// Stats returns current queue statistics.
func (p *TaskPool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(p.tasks),
		Running:   p.running.Load(),
		Overflow:  p.overflow.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Workers returns the number of worker goroutines.
func (p *TaskPool) Workers() int { return p.opts.Workers }

func (p *TaskPool) worker(id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", id).Logger()

	for t := range p.tasks {
		p.execute(t, log)
	}
}

func (p *TaskPool) execute(t Task, log zerolog.Logger) {
	p.running.Add(1)
	defer p.running.Add(-1)

	if err := p.run(t); err != nil {
		p.failed.Add(1)
		log.Warn().Err(err).Str("task", t.Name).Msg("task failed")
		return
	}
	p.completed.Add(1)
}

func (p *TaskPool) run(t Task) (err error) {
	ctx := p.ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
			if t.OnPanic != nil {
				t.OnPanic(err)
			}
		}
	}()
	return t.Run(ctx)
}
