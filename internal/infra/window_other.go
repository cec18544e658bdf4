//go:build !windows

package infra

import (
	"errors"

	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
	"github.com/gabework/tradeguard/internal/platform"
)

// Win32WindowController is only functional on Windows; this stub keeps the
// package building elsewhere for development and CI.
type Win32WindowController struct{}

// NewWindowController creates the native window controller.
func NewWindowController(registry *platform.Registry, logger *zap.Logger) *Win32WindowController {
	return &Win32WindowController{}
}

func (c *Win32WindowController) FindPlatformWindow(platformName string) (domain.WindowHandle, bool) {
	return 0, false
}

func (c *Win32WindowController) FindWindowByTitle(titlePart string) (domain.WindowHandle, bool) {
	return 0, false
}

func (c *Win32WindowController) IsForeground(h domain.WindowHandle) bool { return false }
func (c *Win32WindowController) IsMinimized(h domain.WindowHandle) bool  { return false }

func (c *Win32WindowController) BringToFront(h domain.WindowHandle) error {
	return errors.New("window control is only supported on windows")
}

func (c *Win32WindowController) WindowText(h domain.WindowHandle) (string, error) {
	return "", errors.New("window control is only supported on windows")
}

var _ domain.WindowController = (*Win32WindowController)(nil)
