// Package monitor implements the sampling loop: capture a screen region on a
// fixed interval, extract a P&L reading, evaluate it against the threshold.
package monitor

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
	"github.com/gabework/tradeguard/internal/extract"
	"github.com/gabework/tradeguard/internal/worker"
)

// State of the monitoring loop.
type State string

const (
	StateIdle    State = "idle"
	StateActive  State = "active"
	StateStopped State = "stopped"
)

// BreachHandler is called exactly once per session when a reading trips the
// threshold, on the coordination goroutine.
type BreachHandler func(cfg domain.MonitoringConfig, breach domain.Reading)

// Loop samples the configured region while the target platform window is
// present, and raises a threshold-breach event. After a breach it does not
// re-arm until a new Start call, preventing duplicate lockouts from a single
// breach.
type Loop struct {
	capturer   domain.ScreenCapturer
	extractor  *extract.Extractor
	windows    domain.WindowController
	store      domain.SessionStore
	runner     *worker.Runner
	dispatcher *worker.Dispatcher
	observer   domain.Observer
	onBreach   BreachHandler
	logger     *zap.Logger

	mu      sync.Mutex
	state   State
	cfg     domain.MonitoringConfig
	stopCh  chan struct{}
	current *worker.Handle

	inFlight atomic.Bool
}

// NewLoop wires a monitoring loop. The store may be nil (no history).
func NewLoop(
	capturer domain.ScreenCapturer,
	extractor *extract.Extractor,
	windows domain.WindowController,
	store domain.SessionStore,
	runner *worker.Runner,
	dispatcher *worker.Dispatcher,
	observer domain.Observer,
	onBreach BreachHandler,
	logger *zap.Logger,
) *Loop {
	return &Loop{
		capturer:   capturer,
		extractor:  extractor,
		windows:    windows,
		store:      store,
		runner:     runner,
		dispatcher: dispatcher,
		observer:   observer,
		onBreach:   onBreach,
		logger:     logger,
		state:      StateIdle,
	}
}

// State returns the current loop state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start validates the config against the live screen bounds and begins
// sampling. Returns domain.ErrAlreadyRunning while a session is active.
func (l *Loop) Start(cfg domain.MonitoringConfig) error {
	cfg = cfg.Normalized()

	bounds, err := l.capturer.VirtualBounds()
	if err != nil {
		return fmt.Errorf("querying screen bounds: %w", err)
	}
	if err := cfg.Validate(bounds); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateActive {
		return domain.ErrAlreadyRunning
	}

	l.cfg = cfg
	l.state = StateActive
	l.stopCh = make(chan struct{})

	l.logger.Info("monitoring started",
		zap.String("platform", cfg.Platform),
		zap.String("threshold", cfg.Threshold.String()),
		zap.Duration("interval", cfg.Interval))

	go l.run(cfg, l.stopCh)
	return nil
}

// Stop cancels the in-flight sample (best effort) and stops the loop. A
// sample already past its OCR call may still complete; its result is
// discarded because the loop is no longer active.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateActive {
		return
	}
	l.state = StateStopped
	close(l.stopCh)
	if l.current != nil {
		l.current.Cancel("monitoring stopped")
	}
	l.logger.Info("monitoring stopped")
}

func (l *Loop) run(cfg domain.MonitoringConfig, stopCh chan struct{}) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	// First sample immediately, then on the interval.
	l.dispatchSample(cfg)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			l.dispatchSample(cfg)
		}
	}
}

// dispatchSample starts a sample worker unless the previous one is still in
// flight. Overlapping samples are suppressed so slow OCR cannot pile up
// workers.
func (l *Loop) dispatchSample(cfg domain.MonitoringConfig) {
	if !l.inFlight.CompareAndSwap(false, true) {
		l.logger.Debug("previous sample still in flight, tick suppressed")
		return
	}

	task := &sampleTask{loop: l, cfg: cfg}
	h := l.runner.Go(task)

	l.mu.Lock()
	l.current = h
	l.mu.Unlock()

	go func() {
		<-h.Done()
		l.inFlight.Store(false)
	}()
}

// handleReading runs on the coordination goroutine with a completed sample.
func (l *Loop) handleReading(cfg domain.MonitoringConfig, reading domain.Reading) {
	l.mu.Lock()
	if l.state != StateActive {
		l.mu.Unlock()
		l.logger.Debug("discarding sample result, loop no longer active")
		return
	}

	breach := reading.Breaches(cfg.Threshold)
	if breach {
		// Stop internally for this cycle; the loop does not re-arm
		// until a new Start call.
		l.state = StateStopped
		close(l.stopCh)
	}
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.RecordSample(cfg.Platform, reading); err != nil {
			l.logger.Warn("failed to record sample", zap.Error(err))
		}
	}

	l.observer.Notify(domain.Event{
		Kind:     domain.EventSampleTaken,
		Platform: cfg.Platform,
		Reading:  &reading,
		At:       time.Now(),
	})

	if breach {
		l.logger.Warn("threshold breached",
			zap.String("platform", cfg.Platform),
			zap.String("value", reading.Parsed.String()),
			zap.String("threshold", cfg.Threshold.String()))

		l.observer.Notify(domain.Event{
			Kind:     domain.EventThresholdBreached,
			Platform: cfg.Platform,
			Reading:  &reading,
			At:       time.Now(),
		})

		if l.onBreach != nil {
			l.onBreach(cfg, reading)
		}
	}
}

func (l *Loop) reportTargetUnavailable(cfg domain.MonitoringConfig) {
	l.observer.Notify(domain.Event{
		Kind:     domain.EventTargetUnavailable,
		Platform: cfg.Platform,
		Message:  "platform window absent or minimized, sample skipped",
		At:       time.Now(),
	})
}

// sampleTask is one capture-OCR-evaluate cycle, run as a cancellable worker.
type sampleTask struct {
	loop *Loop
	cfg  domain.MonitoringConfig
	img  image.Image
}

func (t *sampleTask) Name() string { return "sample:" + t.cfg.Platform }

func (t *sampleTask) Init() error { return nil }

func (t *sampleTask) Execute(tok *worker.Token) error {
	l := t.loop

	if tok.Cancelled() {
		return domain.ErrCancelled
	}

	// Sample only while the target window exists and is not minimized.
	// Absence is a skip, not a breach and not a reset.
	h, ok := l.windows.FindPlatformWindow(t.cfg.Platform)
	if !ok || l.windows.IsMinimized(h) {
		l.dispatcher.Post(func() { l.reportTargetUnavailable(t.cfg) })
		return nil
	}

	img, err := l.capturer.CaptureRegion(t.cfg.Region)
	if err != nil {
		return fmt.Errorf("capturing region: %w", err)
	}
	t.img = img

	if tok.Cancelled() {
		return domain.ErrCancelled
	}

	reading, err := l.extractor.Extract(img)
	if err != nil {
		return fmt.Errorf("extracting reading: %w", err)
	}

	if tok.Cancelled() {
		// Past the OCR call but cancelled: the loop will discard the
		// result anyway; don't bother posting it.
		return domain.ErrCancelled
	}

	l.dispatcher.Post(func() { l.handleReading(t.cfg, reading) })
	return nil
}

func (t *sampleTask) Cleanup() {
	t.img = nil
}
