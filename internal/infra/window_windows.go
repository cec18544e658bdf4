//go:build windows

package infra

import (
	"fmt"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"github.com/go-vgo/robotgo"
	"github.com/lxn/win"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
	"github.com/gabework/tradeguard/internal/platform"
)

// Win32WindowController implements domain.WindowController via the Win32
// API, with gopsutil for process discovery and robotgo for activation.
type Win32WindowController struct {
	registry *platform.Registry
	logger   *zap.Logger
}

// NewWindowController creates the native window controller.
func NewWindowController(registry *platform.Registry, logger *zap.Logger) *Win32WindowController {
	return &Win32WindowController{registry: registry, logger: logger}
}

const (
	enumByPID = iota + 1
	enumByTitle
	enumCollectText
)

// Win32 enum callbacks cannot capture closures, so the search state lives in
// a mutex-guarded package struct. Window lookups are serialized.
var (
	enumMu    sync.Mutex
	enumState struct {
		mode      int
		targetPID uint32
		titlePart string
		found     win.HWND
		collected []string
	}
	enumCallback = syscall.NewCallback(func(hwnd win.HWND, _ uintptr) uintptr {
		switch enumState.mode {
		case enumByPID:
			if !win.IsWindowVisible(hwnd) {
				return 1
			}
			var pid uint32
			win.GetWindowThreadProcessId(hwnd, &pid)
			if pid == enumState.targetPID && windowTitle(hwnd) != "" {
				enumState.found = hwnd
				return 0
			}
		case enumByTitle:
			if !win.IsWindowVisible(hwnd) {
				return 1
			}
			title := windowTitle(hwnd)
			if title != "" && strings.Contains(strings.ToLower(title), enumState.titlePart) {
				enumState.found = hwnd
				return 0
			}
		case enumCollectText:
			if text := windowTitle(hwnd); text != "" {
				enumState.collected = append(enumState.collected, text)
			}
		}
		return 1
	})
)

// FindPlatformWindow locates the main window of the named trading platform.
func (c *Win32WindowController) FindPlatformWindow(platformName string) (domain.WindowHandle, bool) {
	profile, err := c.registry.Get(platformName)
	if err != nil {
		c.logger.Warn("window lookup for unknown platform", zap.String("platform", platformName))
		return 0, false
	}

	pid, ok := c.findProcess(profile.ExecutableName())
	if !ok {
		return 0, false
	}

	enumMu.Lock()
	defer enumMu.Unlock()
	enumState.mode = enumByPID
	enumState.targetPID = pid
	enumState.found = 0
	win.EnumChildWindows(win.GetDesktopWindow(), enumCallback, 0)

	if enumState.found == 0 {
		return 0, false
	}
	return domain.WindowHandle(enumState.found), true
}

// FindWindowByTitle locates a visible top-level window whose title contains
// the given substring, case-insensitively.
func (c *Win32WindowController) FindWindowByTitle(titlePart string) (domain.WindowHandle, bool) {
	enumMu.Lock()
	defer enumMu.Unlock()
	enumState.mode = enumByTitle
	enumState.titlePart = strings.ToLower(titlePart)
	enumState.found = 0
	win.EnumChildWindows(win.GetDesktopWindow(), enumCallback, 0)

	if enumState.found == 0 {
		return 0, false
	}
	return domain.WindowHandle(enumState.found), true
}

// IsForeground reports whether the window currently has focus.
func (c *Win32WindowController) IsForeground(h domain.WindowHandle) bool {
	return win.GetForegroundWindow() == win.HWND(h)
}

// IsMinimized reports whether the window is iconified.
func (c *Win32WindowController) IsMinimized(h domain.WindowHandle) bool {
	return win.IsIconic(win.HWND(h))
}

// BringToFront restores and focuses the window. SetForegroundWindow is
// subject to foreground-lock rules, so activation by PID is attempted as
// well.
func (c *Win32WindowController) BringToFront(h domain.WindowHandle) error {
	hwnd := win.HWND(h)
	if win.IsIconic(hwnd) {
		win.ShowWindow(hwnd, win.SW_RESTORE)
	}
	win.SetForegroundWindow(hwnd)

	var pid uint32
	win.GetWindowThreadProcessId(hwnd, &pid)
	if pid != 0 {
		if err := robotgo.ActivePid(int(pid)); err != nil {
			return fmt.Errorf("activating window by pid %d: %w", pid, err)
		}
	}
	return nil
}

// WindowText returns the window's title plus the text of its immediate
// children, joined with newlines, for keyword scanning.
func (c *Win32WindowController) WindowText(h domain.WindowHandle) (string, error) {
	hwnd := win.HWND(h)

	enumMu.Lock()
	defer enumMu.Unlock()
	enumState.mode = enumCollectText
	enumState.collected = enumState.collected[:0]
	if title := windowTitle(hwnd); title != "" {
		enumState.collected = append(enumState.collected, title)
	}
	win.EnumChildWindows(hwnd, enumCallback, 0)

	return strings.Join(enumState.collected, "\n"), nil
}

// findProcess returns the PID of the first process whose executable name
// matches, case-insensitively.
func (c *Win32WindowController) findProcess(executable string) (uint32, bool) {
	procs, err := process.Processes()
	if err != nil {
		c.logger.Warn("listing processes failed", zap.Error(err))
		return 0, false
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if strings.EqualFold(name, executable) {
			return uint32(p.Pid), true
		}
	}
	return 0, false
}

// windowTitle reads a window's text via WM_GETTEXT, which also works for
// controls that ignore GetWindowText from another process.
func windowTitle(hwnd win.HWND) string {
	var buf [512]uint16
	n := win.SendMessage(hwnd, win.WM_GETTEXT, uintptr(len(buf)), uintptr(unsafe.Pointer(&buf[0])))
	if n == 0 {
		return ""
	}
	return syscall.UTF16ToString(buf[:n])
}

// Ensure Win32WindowController implements domain.WindowController.
var _ domain.WindowController = (*Win32WindowController)(nil)
