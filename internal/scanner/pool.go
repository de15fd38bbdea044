package scanner

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDrainTimeout is returned when the pool had to force-cancel tasks that
// were still running past the grace period.
var ErrDrainTimeout = errors.New("scanner: pool drained with forced cancellation")

// Pool is a bounded worker pool scoped to one scan cycle. Submit hands a
// task to a worker (blocking when all workers are busy, which bounds load
// on the mailbox provider and the backend); Drain waits for completion with
// a grace timeout and cancels stragglers.
type Pool struct {
	tasks  chan func(context.Context)
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool starts the given number of workers.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	poolCtx, cancel := context.WithCancel(ctx)
	p := &Pool{
		tasks:  make(chan func(context.Context)),
		ctx:    poolCtx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task(p.ctx)
	}
}

// Submit queues one task. It must not be called after Drain.
func (p *Pool) Submit(task func(context.Context)) {
	if task == nil {
		return
	}
	p.tasks <- task
}

// Drain stops accepting work and waits up to the grace period for running
// tasks to finish. Tasks still running after the grace period get their
// context cancelled; Drain then waits for them to observe it and returns
// ErrDrainTimeout.
func (p *Pool) Drain(grace time.Duration) error {
	close(p.tasks)
	defer p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if grace <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		p.cancel()
		<-done
		return ErrDrainTimeout
	}
}
