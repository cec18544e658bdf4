// Package platform implements the Strategy pattern for per-platform
// monitoring rules. Each trading platform has its own profile defining how
// its window is found, how its P&L renders, and which blocker block locks it.
package platform

import "github.com/gabework/tradeguard/internal/domain"

// OCRProfile tunes text recognition for one platform's P&L widget.
type OCRProfile struct {
	// ScaleFactor upsamples the captured region before recognition.
	// Small platform fonts need 3-4x to be readable by Tesseract.
	ScaleFactor float64

	// Invert flips the image for light-on-dark themes.
	Invert bool

	// PageSegMode is the Tesseract page segmentation mode. Single-line
	// P&L widgets use 7 (treat image as a single text line).
	PageSegMode int
}

// Profile defines the strategy interface for monitoring a trading platform.
type Profile interface {
	// ID returns the unique identifier (e.g., "quantower").
	ID() string

	// Name returns the human-readable name for display.
	Name() string

	// ExecutableName returns the process executable to look for.
	ExecutableName() string

	// WindowTitleHints returns substrings matched against window titles
	// when the executable alone is ambiguous.
	WindowTitleHints() []string

	// BlockName returns the name of the blocker block that locks this
	// platform. Must exist in the blocker's configuration.
	BlockName() string

	// OCR returns the recognition tuning for this platform's P&L widget.
	OCR() OCRProfile
}

// DefaultMonitorRegion suggests a starting capture region for a platform's
// P&L widget. Callers are expected to let the user adjust it.
func DefaultMonitorRegion(p Profile) domain.Region {
	// A strip along the top of the primary display covers the toolbar
	// P&L placement every supported platform defaults to.
	return domain.Region{X: 0, Y: 0, Width: 800, Height: 120}
}
