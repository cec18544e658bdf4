package infra

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"

	"github.com/gabework/tradeguard/internal/domain"
)

// DisplayCapturer implements domain.ScreenCapturer using the native display
// capture APIs.
type DisplayCapturer struct{}

// NewDisplayCapturer creates a screen capturer.
func NewDisplayCapturer() *DisplayCapturer {
	return &DisplayCapturer{}
}

// CaptureRegion captures the given screen region.
func (c *DisplayCapturer) CaptureRegion(r domain.Region) (image.Image, error) {
	img, err := screenshot.CaptureRect(image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height))
	if err != nil {
		return nil, fmt.Errorf("capturing screen region: %w", err)
	}
	return img, nil
}

// VirtualBounds returns the union of all active display bounds. Computed
// fresh on every call so a changed display layout invalidates stale regions
// at the next validation, not at the next crash.
func (c *DisplayCapturer) VirtualBounds() (domain.Region, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return domain.Region{}, fmt.Errorf("no active displays")
	}

	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}

	return domain.Region{
		X:      union.Min.X,
		Y:      union.Min.Y,
		Width:  union.Dx(),
		Height: union.Dy(),
	}, nil
}

// Ensure DisplayCapturer implements domain.ScreenCapturer.
var _ domain.ScreenCapturer = (*DisplayCapturer)(nil)
