//go:build windows

package window

import (
	"syscall"
	"unsafe"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"

	"github.com/bryanchriswhite/InfinitePIP/internal/source"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows          = user32.NewProc("EnumWindows")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procIsWindow             = user32.NewProc("IsWindow")
)

// Win32Backend finds top-level windows with FindWindowW and EnumWindows.
type Win32Backend struct{}

// NewLocator returns the platform locator.
func NewLocator() (Locator, error) {
	return &Win32Backend{}, nil
}

func (b *Win32Backend) Name() string { return "win32" }

func (b *Win32Backend) Close() error { return nil }

// FindByTitle implements Locator.
func (b *Win32Backend) FindByTitle(title string) (*Info, error) {
	if p, err := syscall.UTF16PtrFromString(title); err == nil {
		if hwnd := win.FindWindow(nil, p); hwnd != 0 {
			if info, err := b.Lookup(uint64(hwnd)); err == nil && !info.Bounds.Empty() {
				return info, nil
			}
		}
	}

	var candidates []*Info
	cb := windows.NewCallback(func(h uintptr, _ uintptr) uintptr {
		hwnd := win.HWND(h)
		if !win.IsWindowVisible(hwnd) {
			return 1
		}
		if info, err := b.Lookup(uint64(hwnd)); err == nil && info.Title != "" {
			candidates = append(candidates, info)
		}
		return 1
	})
	procEnumWindows.Call(cb, 0)

	return matchTitle(title, candidates)
}

// Lookup implements Locator.
func (b *Win32Backend) Lookup(handle uint64) (*Info, error) {
	hwnd := win.HWND(uintptr(handle))
	if ok, _, _ := procIsWindow.Call(uintptr(hwnd)); ok == 0 {
		return nil, ErrNotFound
	}

	var rect win.RECT
	if !win.GetWindowRect(hwnd, &rect) {
		return nil, ErrNotFound
	}
	return &Info{
		Handle: handle,
		Title:  windowText(hwnd),
		Bounds: source.Rect{
			X:      int(rect.Left),
			Y:      int(rect.Top),
			Width:  int(rect.Right - rect.Left),
			Height: int(rect.Bottom - rect.Top),
		},
	}, nil
}

func windowText(hwnd win.HWND) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}
