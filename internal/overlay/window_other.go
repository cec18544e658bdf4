//go:build !windows

package overlay

import (
	"errors"

	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
)

// NewPlatformFactory returns the native overlay factory for this OS.
func NewPlatformFactory(capturer domain.ScreenCapturer, logger *zap.Logger) (domain.OverlayFactory, error) {
	return nil, errors.New("blocking overlay is only supported on windows")
}
