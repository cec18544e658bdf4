package domain

import (
	"context"
	"image"
)

// ScreenCapturer grabs pixels from the screen.
// Implementation: kbinani/screenshot.
type ScreenCapturer interface {
	// CaptureRegion captures the given screen region into an image.
	CaptureRegion(r Region) (image.Image, error)

	// VirtualBounds returns the union of all active display bounds.
	// Queried fresh on every call - display layouts change.
	VirtualBounds() (Region, error)
}

// OCREngine converts a pixel buffer into raw text. No guarantees on latency
// or accuracy; callers must tolerate empty or garbled output.
// Implementation: gosseract (Tesseract) with gocv preprocessing.
type OCREngine interface {
	Recognize(img image.Image) (string, error)
}

// WindowHandle identifies a native window. Zero means "no window".
type WindowHandle uintptr

// WindowController answers questions about, and manipulates, native windows.
// Implementation: lxn/win + robotgo + gopsutil, Windows only.
type WindowController interface {
	// FindPlatformWindow locates the main window of the named trading
	// platform. Returns false if the platform process is not running or
	// has no visible window.
	FindPlatformWindow(platform string) (WindowHandle, bool)

	// FindWindowByTitle locates a visible top-level window whose title
	// contains the given substring.
	FindWindowByTitle(titlePart string) (WindowHandle, bool)

	// IsForeground reports whether the window currently has focus.
	IsForeground(h WindowHandle) bool

	// IsMinimized reports whether the window is iconified.
	IsMinimized(h WindowHandle) bool

	// BringToFront restores and focuses the window. Best effort.
	BringToFront(h WindowHandle) error

	// WindowText returns the window's title text plus the text of its
	// immediate children, for keyword scanning.
	WindowText(h WindowHandle) (string, error)
}

// Blocker invokes the external lockout executable. After verification the
// invocation is fire-and-forget: output is never parsed.
type Blocker interface {
	// StartBlock issues `<path> -start <blockName> -lock <minutes>`.
	// A spawn failure is returned as a *LaunchError.
	StartBlock(blockName string, minutes int) error

	// Launch starts the blocker's own UI (used before verification so its
	// window exists to be scanned).
	Launch() error

	// Path returns the configured blocker executable path.
	Path() string
}

// OverlaySurface is a live blocking overlay. Close is idempotent and must
// tear the window down deterministically.
type OverlaySurface interface {
	Close() error
}

// OverlayFactory shows a full-screen blocking overlay with click-through
// holes over the given regions. An empty list means block everything.
type OverlayFactory interface {
	Show(passThrough []Region) (OverlaySurface, error)
}

// Acknowledger blocks until the user explicitly confirms they have seen the
// breach warning. UI collaborator.
type Acknowledger interface {
	AwaitAcknowledgment(ctx context.Context, sessionID string) error
}

// ConfigRepository supplies the monitoring configuration and the verified
// block allow-list. The core never writes configuration files directly; it
// only requests persistence through this contract.
type ConfigRepository interface {
	Load() (*AppConfig, error)
	Save(cfg *AppConfig) error

	// VerifiedBlocks returns the persisted allow-list.
	VerifiedBlocks() ([]VerifiedBlock, error)

	// AppendVerifiedBlock adds a block to the allow-list. Called only by
	// the verification gate after a successful run.
	AppendVerifiedBlock(b VerifiedBlock) error
}

// AppConfig is the persisted application configuration.
type AppConfig struct {
	CurrentPlatform string                      `json:"current_platform"`
	BlockerPath     string                      `json:"blocker_path"`
	Monitoring      MonitoringConfig            `json:"monitoring"`
	FlattenRegions  map[string][]Region         `json:"flatten_regions"`
	MonitorRegions  map[string]Region           `json:"monitor_regions"`
	VerifiedBlocks  []VerifiedBlock             `json:"verified_blocks"`
	FirstRun        bool                        `json:"first_run"`
}

// SessionStore persists lockout sessions and sample history. The encrypted
// store is what makes a crash-survived lockout non-negotiable: the user
// cannot hand-edit an active session away.
type SessionStore interface {
	// SaveSession inserts or replaces a session snapshot.
	SaveSession(s LockoutSession) error

	// UpdateState records a state transition for an existing session.
	UpdateState(sessionID string, state SequenceState) error

	// ActiveSessions returns sessions whose state is not terminal,
	// oldest first. Used by the crash-recovery scan at process start.
	ActiveSessions() ([]LockoutSession, error)

	// RecentSessions returns up to limit sessions, newest first.
	RecentSessions(limit int) ([]LockoutSession, error)

	// RecordSample appends a sample reading for history/reporting.
	RecordSample(platform string, r Reading) error

	// Close releases the underlying database.
	Close() error
}

// Observer receives status and state-machine events. Events for a given
// worker are delivered in order on the coordination goroutine.
type Observer interface {
	Notify(e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(e Event)

// Notify implements Observer.
func (f ObserverFunc) Notify(e Event) { f(e) }
