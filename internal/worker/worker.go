// Package worker implements the cooperative background worker lifecycle:
// initialize, execute with a shared cancellation token, cleanup on every
// exit path.
package worker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
)

// MaxPollInterval is the longest a task may go between cancellation polls.
// Part of the worker contract, not an implicit assumption.
const MaxPollInterval = 250 * time.Millisecond

// Token is the shared cancellation flag for one worker invocation.
// The scheduler writes it, the task reads it. Cancellation is cooperative:
// Execute must poll Cancelled at bounded intervals and return promptly.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	reason    string
}

// NewToken creates a fresh token. Exactly one token per worker invocation.
func NewToken() *Token {
	return &Token{}
}

// Cancel requests cancellation with an optional reason. The first reason
// wins; later calls are no-ops.
func (t *Token) Cancel(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.cancelled = true
	t.reason = reason
}

// Cancelled reports whether cancellation was requested.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Reason returns the cancellation reason, if any.
func (t *Token) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Sleep waits for d, polling the token at MaxPollInterval. Returns
// domain.ErrCancelled if cancellation was requested during the wait.
func (t *Token) Sleep(d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		if t.Cancelled() {
			return domain.ErrCancelled
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining > MaxPollInterval {
			remaining = MaxPollInterval
		}
		time.Sleep(remaining)
	}
}

// Task is a unit of background work with a three-phase lifecycle.
type Task interface {
	// Name identifies the task in logs and notifications.
	Name() string

	// Init acquires resources. An error here skips Execute.
	Init() error

	// Execute performs the work, polling tok at intervals no longer than
	// MaxPollInterval. Returns domain.ErrCancelled on cancellation.
	Execute(tok *Token) error

	// Cleanup releases anything acquired in Init or Execute. Runs exactly
	// once regardless of how the lifecycle ended.
	Cleanup()
}

// Outcome is how a worker invocation ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Notifier observes a worker's lifecycle transitions. Notifications are
// delivered in order started -> progress* -> terminal, marshaled onto the
// runner's coordination goroutine.
type Notifier interface {
	TaskStarted(name string)
	TaskProgress(name, message string)
	TaskFinished(name string, outcome Outcome, err error)
}

// Handle tracks a running worker invocation.
type Handle struct {
	token *Token
	done  chan struct{}

	mu      sync.Mutex
	outcome Outcome
	err     error
}

// Cancel requests cooperative cancellation of the invocation.
func (h *Handle) Cancel(reason string) {
	h.token.Cancel(reason)
}

// Done is closed when the lifecycle (including Cleanup and the terminal
// notification) has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until done and returns the outcome.
func (h *Handle) Wait() (Outcome, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome, h.err
}

// Runner executes tasks on short-lived goroutines, one per invocation, and
// serializes all notifications through a single dispatcher goroutine so
// observers see state in sample order.
type Runner struct {
	dispatcher *Dispatcher
	notifier   Notifier
	logger     *zap.Logger
}

// NewRunner creates a runner. The notifier may be nil.
func NewRunner(d *Dispatcher, n Notifier, logger *zap.Logger) *Runner {
	return &Runner{dispatcher: d, notifier: n, logger: logger}
}

// Go starts the task's lifecycle on a fresh goroutine and returns a handle.
func (r *Runner) Go(task Task) *Handle {
	h := &Handle{
		token: NewToken(),
		done:  make(chan struct{}),
	}

	go r.run(task, h)
	return h
}

func (r *Runner) run(task Task, h *Handle) {
	name := task.Name()
	r.notifyStarted(name)

	var execErr error
	initErr := task.Init()

	// Cleanup runs exactly once on every path, init failure included:
	// Init may have acquired partial resources before failing.
	func() {
		defer task.Cleanup()
		if initErr != nil {
			return
		}
		execErr = task.Execute(h.token)
	}()

	outcome := OutcomeCompleted
	err := execErr
	switch {
	case initErr != nil:
		outcome = OutcomeFailed
		err = initErr
		r.logger.Error("worker init failed", zap.String("task", name), zap.Error(initErr))
	case errors.Is(execErr, domain.ErrCancelled) || (execErr == nil && h.token.Cancelled()):
		outcome = OutcomeCancelled
		err = nil
		r.logger.Debug("worker cancelled",
			zap.String("task", name),
			zap.String("reason", h.token.Reason()))
	case execErr != nil:
		outcome = OutcomeFailed
		r.logger.Error("worker failed", zap.String("task", name), zap.Error(execErr))
	}

	h.mu.Lock()
	h.outcome = outcome
	h.err = err
	h.mu.Unlock()

	r.notifyFinished(name, outcome, err, h)
}

func (r *Runner) notifyStarted(name string) {
	if r.notifier == nil {
		return
	}
	r.dispatcher.Post(func() { r.notifier.TaskStarted(name) })
}

// Progress lets a running task surface a progress message through the
// ordered notification path.
func (r *Runner) Progress(name, message string) {
	if r.notifier == nil {
		return
	}
	r.dispatcher.Post(func() { r.notifier.TaskProgress(name, message) })
}

func (r *Runner) notifyFinished(name string, outcome Outcome, err error, h *Handle) {
	if r.notifier == nil {
		close(h.done)
		return
	}
	// The handle completes only after the terminal notification has been
	// observed, preserving started -> progress* -> terminal ordering.
	r.dispatcher.Post(func() {
		r.notifier.TaskFinished(name, outcome, err)
		close(h.done)
	})
}
