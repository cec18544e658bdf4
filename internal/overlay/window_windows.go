//go:build windows

package overlay

import (
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/lxn/win"
	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
)

const (
	overlayClassName = "TradeguardOverlay"

	// blockAlpha is the opacity of the blocking sheet. Dark enough to make
	// the lockout unmistakable, light enough to read the P&L underneath.
	blockAlpha = 200
)

var (
	classOnce sync.Once
	classErr  error

	// hitMu guards the pass-through regions read by the window procedure.
	// The wndproc is a package-level callback, so state has to live here.
	hitMu    sync.Mutex
	hitHoles []domain.Region
)

// windowFactory creates layered top-most overlay windows via Win32.
type windowFactory struct {
	capturer domain.ScreenCapturer
	logger   *zap.Logger
}

// NewPlatformFactory returns the native overlay factory for this OS.
func NewPlatformFactory(capturer domain.ScreenCapturer, logger *zap.Logger) (domain.OverlayFactory, error) {
	return &windowFactory{capturer: capturer, logger: logger}, nil
}

// windowSurface is one live overlay window. Its message loop runs on a
// dedicated locked OS thread; Close posts WM_CLOSE and waits for it to exit.
type windowSurface struct {
	hwnd win.HWND
	done chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (f *windowFactory) Show(passThrough []domain.Region) (domain.OverlaySurface, error) {
	bounds, err := f.capturer.VirtualBounds()
	if err != nil {
		return nil, fmt.Errorf("querying screen bounds for overlay: %w", err)
	}

	hitMu.Lock()
	hitHoles = append([]domain.Region(nil), passThrough...)
	hitMu.Unlock()

	s := &windowSurface{done: make(chan struct{})}
	ready := make(chan error, 1)

	go func() {
		// Win32 window ownership is thread-affine.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(s.done)

		classOnce.Do(registerOverlayClass)
		if classErr != nil {
			ready <- classErr
			return
		}

		hwnd, err := createOverlayWindow(bounds, passThrough)
		if err != nil {
			ready <- err
			return
		}
		s.hwnd = hwnd
		ready <- nil

		var msg win.MSG
		for win.GetMessage(&msg, 0, 0, 0) > 0 {
			win.TranslateMessage(&msg)
			win.DispatchMessage(&msg)
		}
	}()

	if err := <-ready; err != nil {
		return nil, err
	}
	f.logger.Info("overlay window shown",
		zap.Int("width", bounds.Width),
		zap.Int("height", bounds.Height),
		zap.Int("holes", len(passThrough)))
	return s, nil
}

func (s *windowSurface) Close() error {
	s.closeOnce.Do(func() {
		if s.hwnd != 0 {
			win.PostMessage(s.hwnd, win.WM_CLOSE, 0, 0)
		}
		<-s.done

		hitMu.Lock()
		hitHoles = nil
		hitMu.Unlock()
	})
	return s.closeErr
}

func registerOverlayClass() {
	var wc win.WNDCLASSEX
	wc.CbSize = uint32(unsafe.Sizeof(wc))
	wc.LpfnWndProc = syscall.NewCallback(overlayWndProc)
	wc.HInstance = win.GetModuleHandle(nil)
	wc.LpszClassName = syscall.StringToUTF16Ptr(overlayClassName)
	if win.RegisterClassEx(&wc) == 0 {
		classErr = fmt.Errorf("registering overlay window class failed")
	}
}

func overlayWndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	switch msg {
	case win.WM_NCHITTEST:
		x := int(int16(win.LOWORD(uint32(lParam))))
		y := int(int16(win.HIWORD(uint32(lParam))))
		hitMu.Lock()
		holes := hitHoles
		hitMu.Unlock()
		if HitTest(holes, x, y) {
			return win.HTTRANSPARENT
		}
		return win.HTCLIENT
	case win.WM_CLOSE:
		win.DestroyWindow(hwnd)
		return 0
	case win.WM_DESTROY:
		win.PostQuitMessage(0)
		return 0
	}
	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}

// createOverlayWindow builds the layered window and paints its alpha sheet:
// blockAlpha everywhere, fully transparent over the pass-through regions.
func createOverlayWindow(bounds domain.Region, passThrough []domain.Region) (win.HWND, error) {
	hwnd := win.CreateWindowEx(
		win.WS_EX_LAYERED|win.WS_EX_TOPMOST|win.WS_EX_TOOLWINDOW|win.WS_EX_NOACTIVATE,
		syscall.StringToUTF16Ptr(overlayClassName),
		nil,
		win.WS_POPUP,
		int32(bounds.X), int32(bounds.Y),
		int32(bounds.Width), int32(bounds.Height),
		0, 0, win.GetModuleHandle(nil), nil)
	if hwnd == 0 {
		return 0, fmt.Errorf("creating overlay window failed")
	}

	if err := paintAlphaSheet(hwnd, bounds, passThrough); err != nil {
		win.DestroyWindow(hwnd)
		return 0, err
	}

	win.ShowWindow(hwnd, win.SW_SHOWNOACTIVATE)
	win.SetWindowPos(hwnd, win.HWND_TOPMOST, 0, 0, 0, 0,
		win.SWP_NOMOVE|win.SWP_NOSIZE|win.SWP_NOACTIVATE)
	return hwnd, nil
}

func paintAlphaSheet(hwnd win.HWND, bounds domain.Region, passThrough []domain.Region) error {
	screenDC := win.GetDC(0)
	defer win.ReleaseDC(0, screenDC)

	memDC := win.CreateCompatibleDC(screenDC)
	if memDC == 0 {
		return fmt.Errorf("creating overlay memory DC failed")
	}
	defer win.DeleteDC(memDC)

	var bih win.BITMAPINFOHEADER
	bih.BiSize = uint32(unsafe.Sizeof(bih))
	bih.BiWidth = int32(bounds.Width)
	bih.BiHeight = -int32(bounds.Height) // top-down
	bih.BiPlanes = 1
	bih.BiBitCount = 32
	bih.BiCompression = win.BI_RGB

	var bits unsafe.Pointer
	bitmap := win.CreateDIBSection(memDC, &bih, win.DIB_RGB_COLORS, &bits, 0, 0)
	if bitmap == 0 || bits == nil {
		return fmt.Errorf("creating overlay DIB failed")
	}
	defer win.DeleteObject(win.HGDIOBJ(bitmap))

	old := win.SelectObject(memDC, win.HGDIOBJ(bitmap))
	defer win.SelectObject(memDC, old)

	// Premultiplied BGRA. Black at blockAlpha for the sheet, zero for the
	// holes so those pixels neither draw nor (with WM_NCHITTEST) catch
	// clicks.
	n := bounds.Width * bounds.Height
	pixels := unsafe.Slice((*uint32)(bits), n)
	sheet := uint32(blockAlpha) << 24
	for i := range pixels {
		pixels[i] = sheet
	}
	for _, r := range passThrough {
		clearHole(pixels, bounds, r)
	}

	size := win.SIZE{CX: int32(bounds.Width), CY: int32(bounds.Height)}
	src := win.POINT{}
	dst := win.POINT{X: int32(bounds.X), Y: int32(bounds.Y)}
	blend := win.BLENDFUNCTION{
		BlendOp:             win.AC_SRC_OVER,
		SourceConstantAlpha: 255,
		AlphaFormat:         win.AC_SRC_ALPHA,
	}
	if !win.UpdateLayeredWindow(hwnd, screenDC, &dst, &size, memDC, &src, 0, &blend, win.ULW_ALPHA) {
		return fmt.Errorf("updating layered overlay window failed")
	}
	return nil
}

// clearHole zeroes the pixels of one pass-through region, clamped to the
// sheet. Region coordinates are screen-absolute; the sheet origin is the
// virtual-screen origin.
func clearHole(pixels []uint32, bounds, r domain.Region) {
	x0 := r.X - bounds.X
	y0 := r.Y - bounds.Y
	x1 := x0 + r.Width
	y1 := y0 + r.Height

	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > bounds.Width {
		x1 = bounds.Width
	}
	if y1 > bounds.Height {
		y1 = bounds.Height
	}

	for y := y0; y < y1; y++ {
		row := y * bounds.Width
		for x := x0; x < x1; x++ {
			pixels[row+x] = 0
		}
	}
}
