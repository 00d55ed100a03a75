// Package dispatch runs tasks that asked to leave the event loop on a fixed
// set of worker goroutines draining one shared FIFO queue.
package dispatch

import (
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FumingPower3925/tws/internal/metrics"
)

var (
	// ErrNoWorkers is returned by Submit on a pool started with zero workers.
	// It signals a misconfigured embedder, not a per-request failure.
	ErrNoWorkers = errors.New("dispatch: switch-thread requested but the pool has no workers")
	// ErrPoolClosed is returned by Submit after Close.
	ErrPoolClosed = errors.New("dispatch: pool closed")
)

// Task is one unit of work. Tasks run outside the queue lock.
type Task func()

// Pool is a fixed-size worker pool over a single FIFO queue.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool

	size   int
	group  errgroup.Group
	logger *zap.Logger
}

// New starts a pool with size workers. A size of zero is valid and yields a
// pool whose Submit always fails with ErrNoWorkers.
func New(size int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		size:   max(size, 0),
		logger: logger,
	}
	p.cond = sync.NewCond(&p.mu)
	for id := 0; id < p.size; id++ {
		p.group.Go(func() error {
			p.work(id)
			return nil
		})
	}
	if p.size > 0 {
		logger.Debug("worker pool started", zap.Int("workers", p.size))
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Submit appends t to the queue and wakes one waiting worker.
func (p *Pool) Submit(t Task) error {
	if p.size == 0 {
		return ErrNoWorkers
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.queue = append(p.queue, t)
	metrics.DispatchQueueDepth.Set(float64(len(p.queue)))
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

// Close stops accepting tasks, lets the workers drain what is queued and
// waits for them to exit.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	err := p.group.Wait()
	p.logger.Debug("worker pool stopped", zap.Int("workers", p.size))
	return err
}

// work pops one task at a time and runs it without holding the lock, so the
// lock is only contended at enqueue and dequeue.
func (p *Pool) work(id int) {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		metrics.DispatchQueueDepth.Set(float64(len(p.queue)))
		p.mu.Unlock()

		p.run(id, t)
	}
}

func (p *Pool) run(id int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Int("worker", id), zap.Any("panic", r))
		}
	}()
	t()
}
