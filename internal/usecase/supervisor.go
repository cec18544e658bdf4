// Package usecase contains application business logic.
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
	"github.com/gabework/tradeguard/internal/monitor"
	"github.com/gabework/tradeguard/internal/platform"
	"github.com/gabework/tradeguard/internal/sequence"
)

// Supervisor ties the monitoring loop to the lockout sequencer and owns the
// at-most-one-session invariant: however many breach signals arrive, only the
// first opens a session; the rest are dropped.
type Supervisor struct {
	registry  *platform.Registry
	loop      *monitor.Loop
	sequencer *sequence.Sequencer
	store     domain.SessionStore
	logger    *zap.Logger

	mu          sync.Mutex
	inProgress  bool
	active      *domain.LockoutSession
	sessionDone chan struct{}
}

// NewSupervisor wires a supervisor.
func NewSupervisor(
	registry *platform.Registry,
	sequencer *sequence.Sequencer,
	store domain.SessionStore,
	logger *zap.Logger,
) *Supervisor {
	return &Supervisor{
		registry:  registry,
		sequencer: sequencer,
		store:     store,
		logger:    logger,
	}
}

// SetLoop injects the monitoring loop. Separate from the constructor because
// the loop's breach handler points back at the supervisor.
func (s *Supervisor) SetLoop(loop *monitor.Loop) {
	s.loop = loop
}

// StartMonitoring resolves the platform profile and starts the sampling
// loop. The config's platform name may be an ID or display name.
func (s *Supervisor) StartMonitoring(cfg domain.MonitoringConfig) error {
	profile, err := s.registry.Get(cfg.Platform)
	if err != nil {
		return err
	}
	cfg.Platform = profile.Name()

	return s.loop.Start(cfg)
}

// StopMonitoring stops the sampling loop. An already opened lockout session
// is unaffected: enforcement in flight cannot be stopped from here.
func (s *Supervisor) StopMonitoring() {
	s.loop.Stop()
}

// HandleBreach opens a lockout session for a breach reading. Called by the
// monitoring loop on the coordination goroutine; the sequence itself runs on
// its own goroutine so the dispatcher is never blocked for half a minute.
func (s *Supervisor) HandleBreach(cfg domain.MonitoringConfig, breach domain.Reading) {
	profile, err := s.registry.Get(cfg.Platform)
	if err != nil {
		// Start validated the platform; reaching here means the registry
		// changed underneath us.
		s.logger.Error("breach for unknown platform", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		s.logger.Warn("breach signalled while a session is already open, dropped",
			zap.String("platform", cfg.Platform))
		return
	}

	session := &domain.LockoutSession{
		ID:             uuid.NewString(),
		State:          domain.StateArmed,
		Platform:       profile.Name(),
		BlockName:      profile.BlockName(),
		BreachReading:  breach,
		LockoutMinutes: cfg.LockoutMinutes,
		StartedAt:      time.Now(),
	}
	s.inProgress = true
	s.active = session
	done := make(chan struct{})
	s.sessionDone = done
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveSession(*session); err != nil {
			s.logger.Warn("failed to persist new session", zap.Error(err))
		}
	}

	go func() {
		defer func() {
			s.mu.Lock()
			s.inProgress = false
			s.mu.Unlock()
			close(done)
		}()

		if err := s.sequencer.Run(context.Background(), session, cfg); err != nil {
			s.logger.Error("lockout sequence failed",
				zap.String("session", session.ID),
				zap.Error(err))
		}
	}()
}

// SessionDone returns a channel closed when the most recent session reaches
// a terminal state, or nil when no session was ever opened.
func (s *Supervisor) SessionDone() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionDone
}

// ActiveSession returns a copy of the in-progress session, if any.
func (s *Supervisor) ActiveSession() (domain.LockoutSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inProgress || s.active == nil {
		return domain.LockoutSession{}, false
	}
	return *s.active, true
}

// Recover scans the store for sessions interrupted mid-sequence and drives
// each one to a terminal state before normal monitoring starts. A crash or
// forced reboot between breach and lockout does not void the lockout.
func (s *Supervisor) Recover() error {
	if s.store == nil {
		return nil
	}
	sessions, err := s.store.ActiveSessions()
	if err != nil {
		return err
	}

	for i := range sessions {
		session := sessions[i]
		s.logger.Warn("recovering interrupted session",
			zap.String("session", session.ID),
			zap.String("state", string(session.State)))
		if err := s.sequencer.Resume(&session); err != nil {
			s.logger.Error("session recovery failed",
				zap.String("session", session.ID),
				zap.Error(err))
		}
	}
	return nil
}

// LoopState exposes the monitoring loop state for status reporting.
func (s *Supervisor) LoopState() monitor.State {
	return s.loop.State()
}
