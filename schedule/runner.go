package schedule

import (
	"context"
	"sync"
	"time"
)

// Task is one periodic maintenance job. Run receives the tick time and
// returns how many records it affected.
type Task struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context, now time.Time) (int, error)
}

// Runner drives a set of tasks, one goroutine per task.
type Runner struct {
	tasks []Task

	// Logf receives task outcomes. Nil disables logging.
	Logf func(format string, args ...any)

	// Now is the clock; nil means time.Now.
	Now func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewRunner creates a runner over tasks. Tasks with a nil Run or a
// non-positive Every are skipped.
func NewRunner(tasks ...Task) *Runner {
	kept := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Run == nil || t.Every <= 0 {
			continue
		}
		kept = append(kept, t)
	}
	return &Runner{tasks: kept}
}

// Start launches the task loops. It is a no-op on an already-started or
// empty runner.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || len(r.tasks) == 0 {
		r.started = true
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, task := range r.tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			r.loop(ctx, task)
		}(task)
	}
	go func() {
		wg.Wait()
		close(r.done)
	}()
}

// Stop cancels the loops and waits for in-flight runs to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Runner) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, task)
		}
	}
}

// RunAll executes every task once, immediately. Useful at startup and in
// deployments that schedule sweeps externally (cron, k8s jobs).
func (r *Runner) RunAll(ctx context.Context) {
	for _, task := range r.tasks {
		r.runOnce(ctx, task)
	}
}

func (r *Runner) runOnce(ctx context.Context, task Task) {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	n, err := task.Run(ctx, now)
	if r.Logf == nil {
		return
	}
	if err != nil {
		r.Logf("task %s failed: %v", task.Name, err)
		return
	}
	if n > 0 {
		r.Logf("task %s removed %d records", task.Name, n)
	}
}
