// Package sequence drives a lockout session through its states: bring the
// trading platform forward, warn the trader, hold a short flatten window
// under the blocking overlay, then invoke the external blocker. Once a
// session leaves Armed the sequence always runs to a terminal state.
package sequence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
)

// DefaultFlattenDuration is the time the trader gets to close positions
// before the lockout is invoked.
const DefaultFlattenDuration = 30 * time.Second

const defaultTickInterval = time.Second

// Config tunes the sequencer timings.
type Config struct {
	FlattenDuration time.Duration
	TickInterval    time.Duration
}

func (c Config) withDefaults() Config {
	if c.FlattenDuration <= 0 {
		c.FlattenDuration = DefaultFlattenDuration
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	return c
}

// Gate is the overlay collaborator.
type Gate interface {
	Open(passThrough []domain.Region) error
	Close() error
}

// Sequencer executes one lockout session at a time. It is not safe for
// concurrent Run calls; the supervisor serializes them.
type Sequencer struct {
	cfg      Config
	windows  domain.WindowController
	gate     Gate
	blocker  domain.Blocker
	acker    domain.Acknowledger
	verified domain.ConfigRepository
	store    domain.SessionStore
	observer domain.Observer
	logger   *zap.Logger
}

// New wires a sequencer. The store may be nil (no persistence).
func New(
	cfg Config,
	windows domain.WindowController,
	gate Gate,
	blocker domain.Blocker,
	acker domain.Acknowledger,
	verified domain.ConfigRepository,
	store domain.SessionStore,
	observer domain.Observer,
	logger *zap.Logger,
) *Sequencer {
	return &Sequencer{
		cfg:      cfg.withDefaults(),
		windows:  windows,
		gate:     gate,
		blocker:  blocker,
		acker:    acker,
		verified: verified,
		store:    store,
		observer: observer,
		logger:   logger,
	}
}

// Run takes an Armed session to a terminal state. The context bounds only the
// pre-flatten phases; from the flatten countdown onward the sequence is
// deliberately immune to cancellation, so a frustrated trader killing the
// controlling context cannot dodge the lockout.
func (s *Sequencer) Run(ctx context.Context, session *domain.LockoutSession, cfg domain.MonitoringConfig) error {
	s.logger.Info("lockout sequence started",
		zap.String("session", session.ID),
		zap.String("platform", session.Platform),
		zap.String("block", session.BlockName))

	s.foreground(session)
	s.warn(ctx, session)
	s.flatten(session, cfg)
	return s.invoke(session)
}

// Resume continues a session recovered from a previous process. The flatten
// window is considered spent: any crash-restart gap already gave the trader
// time, so recovery goes straight to invocation.
func (s *Sequencer) Resume(session *domain.LockoutSession) error {
	s.logger.Warn("resuming interrupted lockout session",
		zap.String("session", session.ID),
		zap.String("state", string(session.State)))
	return s.invoke(session)
}

// foreground brings the trading platform to the front so the trader sees the
// positions they are about to lose access to. Best effort.
func (s *Sequencer) foreground(session *domain.LockoutSession) {
	s.transition(session, domain.StateForegrounding)

	h, ok := s.windows.FindPlatformWindow(session.Platform)
	if !ok {
		s.logger.Warn("platform window not found while foregrounding",
			zap.String("platform", session.Platform))
		return
	}
	if err := s.windows.BringToFront(h); err != nil {
		s.logger.Warn("failed to bring platform window to front", zap.Error(err))
	}
}

// warn blocks until the trader acknowledges the breach. Context cancellation
// is treated as acknowledgment: the sequence proceeds either way.
func (s *Sequencer) warn(ctx context.Context, session *domain.LockoutSession) {
	s.transition(session, domain.StateWarning)

	if err := s.acker.AwaitAcknowledgment(ctx, session.ID); err != nil {
		s.logger.Info("warning not acknowledged, proceeding anyway",
			zap.String("session", session.ID),
			zap.Error(err))
	}
}

// flatten opens the overlay with holes over the close-position controls and
// counts the flatten window down. The countdown uses wall-clock sleeps and
// reads no cancellation signal.
func (s *Sequencer) flatten(session *domain.LockoutSession, cfg domain.MonitoringConfig) {
	s.transition(session, domain.StateFlattening)

	session.FlattenDeadline = time.Now().Add(s.cfg.FlattenDuration)
	s.save(*session)

	if err := s.gate.Open(cfg.FlattenRegions); err != nil {
		// A missing overlay weakens the flatten window but never skips
		// the lockout.
		s.logger.Error("failed to open blocking overlay", zap.Error(err))
	}

	for remaining := s.cfg.FlattenDuration; remaining > 0; remaining -= s.cfg.TickInterval {
		s.observer.Notify(domain.Event{
			Kind:      domain.EventFlattenTick,
			Platform:  session.Platform,
			SessionID: session.ID,
			Remaining: remaining,
			At:        time.Now(),
		})
		sleep := s.cfg.TickInterval
		if remaining < sleep {
			sleep = remaining
		}
		time.Sleep(sleep)
	}

	if err := s.gate.Close(); err != nil {
		s.logger.Warn("failed to close overlay", zap.Error(err))
	}
}

// invoke refuses unverified block names, then fires the external blocker.
func (s *Sequencer) invoke(session *domain.LockoutSession) error {
	s.transition(session, domain.StateInvoking)

	blocks, err := s.verified.VerifiedBlocks()
	if err != nil {
		s.abort(session, err)
		return err
	}
	if !blockVerified(blocks, session.BlockName) {
		s.logger.Error("refusing lockout for unverified block",
			zap.String("block", session.BlockName))
		s.abort(session, domain.ErrNotVerified)
		return domain.ErrNotVerified
	}

	if err := s.blocker.StartBlock(session.BlockName, session.LockoutMinutes); err != nil {
		s.abort(session, err)
		return err
	}

	s.transition(session, domain.StateLocked)
	s.observer.Notify(domain.Event{
		Kind:      domain.EventLockoutCompleted,
		Platform:  session.Platform,
		SessionID: session.ID,
		At:        time.Now(),
	})
	s.logger.Info("lockout invoked",
		zap.String("session", session.ID),
		zap.String("block", session.BlockName),
		zap.Int("minutes", session.LockoutMinutes))
	return nil
}

func (s *Sequencer) abort(session *domain.LockoutSession, cause error) {
	s.transition(session, domain.StateAborted)
	s.observer.Notify(domain.Event{
		Kind:      domain.EventLockoutFailed,
		Platform:  session.Platform,
		SessionID: session.ID,
		Err:       cause,
		At:        time.Now(),
	})
}

func (s *Sequencer) transition(session *domain.LockoutSession, state domain.SequenceState) {
	session.State = state
	if s.store != nil {
		if err := s.store.UpdateState(session.ID, state); err != nil {
			s.logger.Warn("failed to persist session state",
				zap.String("session", session.ID),
				zap.String("state", string(state)),
				zap.Error(err))
		}
	}
	s.observer.Notify(domain.Event{
		Kind:      domain.EventSequenceStateChanged,
		Platform:  session.Platform,
		SessionID: session.ID,
		State:     state,
		At:        time.Now(),
	})
}

func (s *Sequencer) save(session domain.LockoutSession) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSession(session); err != nil {
		s.logger.Warn("failed to persist session", zap.Error(err))
	}
}

func blockVerified(blocks []domain.VerifiedBlock, name string) bool {
	for _, b := range blocks {
		if b.BlockName == name {
			return true
		}
	}
	return false
}
