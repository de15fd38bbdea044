// Package runner schedules the bridge's recurring background tasks (inbox
// scan, dedup refresh, ticket-cache invalidation) on independent cadences.
package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner executes registered tasks on their cron schedules.
type Runner struct {
	cron     *cron.Cron
	registry *TaskRegistry
	logger   *log.Logger
	wg       sync.WaitGroup
}

// NewRunner creates a runner for the given registry.
func NewRunner(registry *TaskRegistry) *Runner {
	return &Runner{
		cron:     cron.New(),
		registry: registry,
		logger:   log.New(os.Stdout, "[RUNNER] ", log.LstdFlags),
	}
}

// Start schedules every registered task and blocks until the context is
// cancelled or a termination signal arrives.
func (r *Runner) Start(ctx context.Context) error {
	for _, task := range r.registry.All() {
		task := task
		r.logger.Printf("scheduling %s (%s)", task.Name(), task.Schedule())
		if _, err := r.cron.AddFunc(task.Schedule(), func() {
			r.executeTask(ctx, task)
		}); err != nil {
			return fmt.Errorf("schedule task %s: %w", task.Name(), err)
		}
	}

	r.cron.Start()
	r.logger.Println("task runner started")

	return r.waitForShutdown(ctx)
}

// executeTask runs one task execution with its timeout. Errors are logged
// only; the schedule is the retry mechanism.
func (r *Runner) executeTask(ctx context.Context, task Task) {
	r.wg.Add(1)
	defer r.wg.Done()

	taskCtx := ctx
	if timeout := task.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := task.Run(taskCtx); err != nil {
		r.logger.Printf("task %s failed after %v: %v", task.Name(), time.Since(start), err)
	}
}

// Stop stops scheduling new executions and waits for running ones.
func (r *Runner) Stop() {
	stopped := r.cron.Stop()
	r.wg.Wait()
	<-stopped.Done()
	r.logger.Println("task runner stopped")
}

func (r *Runner) waitForShutdown(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		r.logger.Printf("received signal: %v", sig)
		r.Stop()
		return nil
	case <-ctx.Done():
		r.Stop()
		return ctx.Err()
	}
}
