// Package runner schedules background tasks on cron expressions.
package runner

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one scheduled background job.
type Task interface {
	// Name identifies the task in logs.
	Name() string
	// Schedule is a cron expression with a seconds field.
	Schedule() string
	// Timeout bounds one run.
	Timeout() time.Duration
	// Run executes the task. The context carries the timeout.
	Run(ctx context.Context) error
}

// Runner drives registered tasks on their schedules. Runs of the same task
// never overlap; a run still in flight when the next tick fires is skipped.
type Runner struct {
	cron    *cron.Cron
	logger  *log.Logger
	mu      sync.Mutex
	running map[string]bool
}

// New creates a runner.
func New() *Runner {
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  log.New(log.Writer(), "[RUNNER] ", log.LstdFlags),
		running: make(map[string]bool),
	}
}

// Register adds a task to the schedule.
func (r *Runner) Register(t Task) error {
	_, err := r.cron.AddFunc(t.Schedule(), func() {
		r.execute(t)
	})
	if err != nil {
		return err
	}
	r.logger.Printf("registered task %s (%s)", t.Name(), t.Schedule())
	return nil
}

// Start begins executing schedules.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Runner) execute(t Task) {
	name := t.Name()

	r.mu.Lock()
	if r.running[name] {
		r.mu.Unlock()
		r.logger.Printf("task %s still running, skipping tick", name)
		return
	}
	r.running[name] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.running, name)
		r.mu.Unlock()
	}()

	ctx := context.Background()
	if d := t.Timeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	if err := t.Run(ctx); err != nil {
		r.logger.Printf("task %s failed after %v: %v", name, time.Since(start), err)
		return
	}
	r.logger.Printf("task %s completed in %v", name, time.Since(start))
}
