//go:build windows

package capture

import (
	"fmt"
	"image"
	"unsafe"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"

	"github.com/bryanchriswhite/InfinitePIP/internal/source"
)

const (
	srcCopy      = 0x00CC0020
	dibRGBColors = 0

	pwClientOnly          = 0x1
	pwRenderFullContent   = 0x2
	printWindowClientFull = pwClientOnly | pwRenderFullContent
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	gdi32                = windows.NewLazySystemDLL("gdi32.dll")
	procPrintWindow      = user32.NewProc("PrintWindow")
	procIsWindow         = user32.NewProc("IsWindow")
	procGetWindowDC      = user32.NewProc("GetWindowDC")
	procCreateDIBSection = gdi32.NewProc("CreateDIBSection")
)

// Win32Capturer captures windows with PrintWindow and BitBlt.
type Win32Capturer struct{}

// NewBackend returns the platform window capture backend.
func NewBackend() (Backend, error) {
	if err := procPrintWindow.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return &Win32Capturer{}, nil
}

func (c *Win32Capturer) Name() string { return "win32" }

func (c *Win32Capturer) Close() error { return nil }

// Inspect implements Backend.
func (c *Win32Capturer) Inspect(handle uint64) (WindowState, error) {
	hwnd := win.HWND(uintptr(handle))
	if ok, _, _ := procIsWindow.Call(uintptr(hwnd)); ok == 0 {
		return WindowState{}, nil
	}

	var wr win.RECT
	if !win.GetWindowRect(hwnd, &wr) {
		return WindowState{}, fmt.Errorf("GetWindowRect failed: %d", win.GetLastError())
	}
	st := WindowState{
		Valid:  true,
		Iconic: win.IsIconic(hwnd),
		Frame: source.Rect{
			X:      int(wr.Left),
			Y:      int(wr.Top),
			Width:  int(wr.Right - wr.Left),
			Height: int(wr.Bottom - wr.Top),
		},
	}

	var cr win.RECT
	if win.GetClientRect(hwnd, &cr) {
		origin := win.POINT{}
		win.ClientToScreen(hwnd, &origin)
		st.Client = source.Rect{
			X:      int(origin.X),
			Y:      int(origin.Y),
			Width:  int(cr.Right - cr.Left),
			Height: int(cr.Bottom - cr.Top),
		}
	}
	return st, nil
}

// CaptureFull renders the window with PrintWindow(PW_RENDERFULLCONTENT).
func (c *Win32Capturer) CaptureFull(handle uint64, area Area, width, height int) (*image.RGBA, error) {
	hwnd := win.HWND(uintptr(handle))
	flags := uintptr(pwRenderFullContent)
	if area == AreaClient {
		flags = printWindowClientFull
	}
	return c.render(hwnd, area, width, height, func(mem win.HDC, _ win.HDC) bool {
		ok, _, _ := procPrintWindow.Call(uintptr(hwnd), uintptr(mem), flags)
		return ok != 0
	})
}

// CaptureCopy copies the window DC with BitBlt.
func (c *Win32Capturer) CaptureCopy(handle uint64, area Area, width, height int) (*image.RGBA, error) {
	hwnd := win.HWND(uintptr(handle))
	return c.render(hwnd, area, width, height, func(mem win.HDC, src win.HDC) bool {
		return win.BitBlt(mem, 0, 0, int32(width), int32(height), src, 0, 0, srcCopy)
	})
}

func (c *Win32Capturer) windowDC(hwnd win.HWND, area Area) win.HDC {
	if area == AreaClient {
		return win.GetDC(hwnd)
	}
	dc, _, _ := procGetWindowDC.Call(uintptr(hwnd))
	return win.HDC(dc)
}

// render prepares a 32-bit top-down DIB section, lets draw fill it and
// converts the BGRX result to RGBA.
func (c *Win32Capturer) render(hwnd win.HWND, area Area, width, height int, draw func(mem, src win.HDC) bool) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid capture size %dx%d", width, height)
	}

	hDC := c.windowDC(hwnd, area)
	if hDC == 0 {
		return nil, fmt.Errorf("failed to get device context: %d", win.GetLastError())
	}
	defer win.ReleaseDC(hwnd, hDC)

	memDC := win.CreateCompatibleDC(hDC)
	if memDC == 0 {
		return nil, fmt.Errorf("failed to create compatible DC: %d", win.GetLastError())
	}
	defer win.DeleteDC(memDC)

	bi := win.BITMAPINFO{
		BmiHeader: win.BITMAPINFOHEADER{
			BiSize:        uint32(unsafe.Sizeof(win.BITMAPINFOHEADER{})),
			BiWidth:       int32(width),
			BiHeight:      int32(-height),
			BiPlanes:      1,
			BiBitCount:    32,
			BiCompression: win.BI_RGB,
		},
	}

	var bits unsafe.Pointer
	bmp, _, _ := procCreateDIBSection.Call(
		uintptr(memDC),
		uintptr(unsafe.Pointer(&bi)),
		dibRGBColors,
		uintptr(unsafe.Pointer(&bits)),
		0, 0)
	if bmp == 0 || bits == nil {
		return nil, fmt.Errorf("failed to create DIB section: %d", win.GetLastError())
	}
	defer win.DeleteObject(win.HGDIOBJ(bmp))

	old := win.SelectObject(memDC, win.HGDIOBJ(bmp))
	if old == 0 {
		return nil, fmt.Errorf("failed to select bitmap: %d", win.GetLastError())
	}
	defer win.SelectObject(memDC, old)

	if !draw(memDC, hDC) {
		return nil, fmt.Errorf("window render failed: %d", win.GetLastError())
	}

	data := unsafe.Slice((*byte)(bits), width*height*4)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(data); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = data[i+2], data[i+1], data[i], 0xff
	}
	return img, nil
}
