package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/recipeimport/internal/logging"
)

// ErrRunnerClosed is returned by Go after Shutdown.
var ErrRunnerClosed = errors.New("runner is shut down")

// Task is a unit of detached background work.
type Task func(ctx context.Context)

// Runner launches detached tasks that outlive the request that started them.
// Tasks are never cancelled by callers; only Shutdown cancels them, once its
// deadline has passed.
type Runner struct {
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// NewRunner creates a Runner.
func NewRunner(logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{log: logging.OrDiscard(logger), ctx: ctx, cancel: cancel}
}

// Go starts task in its own goroutine. A panic inside task is logged and
// swallowed.
func (r *Runner) Go(name string, task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("task panicked", "task", name, "err", fmt.Sprint(rec))
			}
		}()
		start := time.Now()
		task(r.ctx)
		r.log.Debug("task finished", "task", name, "duration", time.Since(start))
	}()
	return nil
}

// Shutdown stops accepting tasks and waits for running ones up to deadline,
// after which their context is cancelled.
func (r *Runner) Shutdown(deadline time.Duration) {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		defer r.cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			r.wg.Wait()
		}()

		if deadline <= 0 {
			<-done
			return
		}

		timer := time.NewTimer(deadline)
		defer timer.Stop()
		select {
		case <-done:
			return
		case <-timer.C:
			r.log.Warn("runner shutdown deadline reached; cancelling running tasks")
		}
	})
}
