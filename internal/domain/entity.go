// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies
// beyond decimal arithmetic for lossless P&L values.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Region is a rectangular screen area in pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether the point (px, py) falls inside the region.
// Boundary pixels are inclusive on all four edges of the rectangle.
func (r Region) Contains(px, py int) bool {
	return px >= r.X && px <= r.X+r.Width &&
		py >= r.Y && py <= r.Y+r.Height
}

// Within reports whether the region lies entirely inside bounds.
func (r Region) Within(bounds Region) bool {
	return r.X >= bounds.X && r.Y >= bounds.Y &&
		r.X+r.Width <= bounds.X+bounds.Width &&
		r.Y+r.Height <= bounds.Y+bounds.Height
}

// Validate checks the region's own invariants (positive extent).
// Placement inside the virtual screen is checked separately at session
// start, since displays can change between sessions.
func (r Region) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return NewConfigurationError("region must have positive width and height", nil)
	}
	return nil
}

// Lockout duration limits accepted by the external blocker, in minutes.
const (
	MinLockoutMinutes = 5
	MaxLockoutMinutes = 720
)

// DefaultSampleInterval is how often the monitoring loop samples the screen.
const DefaultSampleInterval = 5 * time.Second

// MonitoringConfig is the immutable per-session snapshot of what to watch
// and how to react. Changes to the underlying configuration while a session
// is running do not affect the in-flight session.
type MonitoringConfig struct {
	Platform       string          `json:"platform"`
	Region         Region          `json:"region"`
	Threshold      decimal.Decimal `json:"threshold"`
	LockoutMinutes int             `json:"lockout_minutes"`
	FlattenRegions []Region        `json:"flatten_regions"`
	Interval       time.Duration   `json:"-"`
}

// Normalized returns a copy with defaults applied and the threshold forced
// negative: the monitored quantity is a loss, so a positive threshold is
// taken to mean "that much loss".
func (c MonitoringConfig) Normalized() MonitoringConfig {
	if c.Threshold.IsPositive() {
		c.Threshold = c.Threshold.Neg()
	}
	if c.Interval <= 0 {
		c.Interval = DefaultSampleInterval
	}
	return c
}

// Validate rejects a config before a session starts. The screen bounds are
// passed in by the caller so validation always runs against the live display
// layout.
func (c MonitoringConfig) Validate(screenBounds Region) error {
	if c.Platform == "" {
		return NewConfigurationError("platform name cannot be empty", nil)
	}
	if err := c.Region.Validate(); err != nil {
		return err
	}
	if !c.Region.Within(screenBounds) {
		return NewConfigurationError("monitor region lies outside the virtual screen", nil)
	}
	if c.LockoutMinutes < MinLockoutMinutes || c.LockoutMinutes > MaxLockoutMinutes {
		return NewConfigurationError("lockout duration must be between 5 and 720 minutes", nil)
	}
	for _, fr := range c.FlattenRegions {
		if err := fr.Validate(); err != nil {
			return err
		}
		if !fr.Within(screenBounds) {
			return NewConfigurationError("flatten region lies outside the virtual screen", nil)
		}
	}
	return nil
}

// Reading is the outcome of a single sample tick. Parsed is nil when OCR
// produced no parseable numeric token - an inconclusive sample, not a fault.
type Reading struct {
	RawText   string
	Values    []decimal.Decimal
	Parsed    *decimal.Decimal
	Timestamp time.Time
}

// Conclusive reports whether the sample produced a usable value.
func (r Reading) Conclusive() bool {
	return r.Parsed != nil
}

// Breaches reports whether this reading trips the threshold. The comparison
// is inclusive: a reading exactly at the threshold counts as a breach.
func (r Reading) Breaches(threshold decimal.Decimal) bool {
	return r.Parsed != nil && r.Parsed.Cmp(threshold) <= 0
}

// SequenceState is a state of the lockout sequencer.
type SequenceState string

const (
	StateArmed         SequenceState = "armed"
	StateForegrounding SequenceState = "foregrounding"
	StateWarning       SequenceState = "warning"
	StateFlattening    SequenceState = "flattening"
	StateInvoking      SequenceState = "invoking"
	StateLocked        SequenceState = "locked"
	StateAborted       SequenceState = "aborted"
)

// Terminal reports whether the state ends a lockout session.
func (s SequenceState) Terminal() bool {
	return s == StateLocked || s == StateAborted
}

// LockoutSession tracks one breach-to-lockout sequence. At most one session
// exists per monitoring instance at any time; the supervisor owns that
// invariant and is the only mutator.
type LockoutSession struct {
	ID              string
	State           SequenceState
	Platform        string
	BlockName       string
	BreachReading   Reading
	LockoutMinutes  int
	StartedAt       time.Time
	FlattenDeadline time.Time
}

// VerifiedBlock records that the external blocker was observed to actually
// lock the named block. The sequencer never invokes the terminal lockout for
// a block name absent from the verified list.
type VerifiedBlock struct {
	BlockName  string    `json:"block_name"`
	VerifiedAt time.Time `json:"verified_at"`
}

// EventKind enumerates what the observer can be told about.
type EventKind string

const (
	EventSampleTaken          EventKind = "sample_taken"
	EventTargetUnavailable    EventKind = "target_unavailable"
	EventThresholdBreached    EventKind = "threshold_breached"
	EventSequenceStateChanged EventKind = "sequence_state_changed"
	EventFlattenTick          EventKind = "flatten_tick"
	EventLockoutCompleted     EventKind = "lockout_completed"
	EventLockoutFailed        EventKind = "lockout_failed"
)

// Event is a status or state-machine notification delivered to the observer.
type Event struct {
	Kind      EventKind
	Platform  string
	Reading   *Reading
	State     SequenceState
	SessionID string
	Remaining time.Duration // flatten ticks only
	Message   string
	Err       error
	At        time.Time
}
