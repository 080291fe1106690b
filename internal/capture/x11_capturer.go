//go:build linux

package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/bryanchriswhite/InfinitePIP/internal/window"
)

// X11Capturer captures windows using X11/XWayland
type X11Capturer struct {
	wb               *window.X11Backend
	conn             *xgb.Conn
	depth            int
	compositeEnabled bool
	mu               sync.Mutex
}

// NewBackend returns the platform window capture backend.
func NewBackend() (Backend, error) {
	wb, err := window.NewX11Backend()
	if err != nil {
		return nil, err
	}
	return NewX11Capturer(wb), nil
}

// NewX11Capturer creates a capturer sharing the locator's connection.
func NewX11Capturer(wb *window.X11Backend) *X11Capturer {
	log := logger.WithComponent("x11-capturer")

	c := &X11Capturer{
		wb:    wb,
		conn:  wb.Conn(),
		depth: int(wb.Screen().RootDepth),
	}

	if err := composite.Init(c.conn); err != nil {
		log.Warn().
			Err(err).
			Msg("Composite extension not available - window screenshots may fail for obscured windows")
	} else {
		c.compositeEnabled = true
		log.Info().Msg("Composite extension initialized")
	}
	return c
}

// Name returns the capturer name
func (c *X11Capturer) Name() string {
	return "x11"
}

// Close closes the X11 connection
func (c *X11Capturer) Close() error {
	return c.wb.Close()
}

// Inspect implements Backend. The client window is the handle itself; the
// frame is its window manager parent.
func (c *X11Capturer) Inspect(handle uint64) (WindowState, error) {
	if handle == 0 || handle > 0xffffffff {
		return WindowState{}, nil
	}
	win := xproto.Window(handle)
	if !c.wb.Exists(win) {
		return WindowState{}, nil
	}

	client, err := c.wb.RootBounds(win)
	if err != nil {
		return WindowState{}, err
	}
	st := WindowState{Valid: true, Client: client, Frame: client}

	if frame, err := c.wb.FrameOf(win); err == nil && frame != win {
		if fb, err := c.wb.RootBounds(frame); err == nil {
			st.Frame = fb
		}
	}
	st.Iconic = c.wb.IsIconic(win)
	return st, nil
}

func (c *X11Capturer) target(handle uint64, area Area) xproto.Window {
	win := xproto.Window(handle)
	if area == AreaFrame {
		if frame, err := c.wb.FrameOf(win); err == nil {
			return frame
		}
	}
	return win
}

// CaptureFull names the window's off-screen Composite pixmap and reads it,
// which includes obscured parts of the window.
func (c *X11Capturer) CaptureFull(handle uint64, area Area, width, height int) (*image.RGBA, error) {
	if !c.compositeEnabled {
		return nil, fmt.Errorf("composite extension unavailable")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	win := c.target(handle, area)
	if err := composite.RedirectWindowChecked(c.conn, win, composite.RedirectAutomatic).Check(); err != nil {
		return nil, fmt.Errorf("failed to redirect window: %w", err)
	}
	defer composite.UnredirectWindow(c.conn, win, composite.RedirectAutomatic)

	pixmap, err := xproto.NewPixmapId(c.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate pixmap id: %w", err)
	}
	if err := composite.NameWindowPixmapChecked(c.conn, win, pixmap).Check(); err != nil {
		return nil, fmt.Errorf("failed to name window pixmap: %w", err)
	}
	defer xproto.FreePixmap(c.conn, pixmap)

	return c.getImage(xproto.Drawable(pixmap), width, height)
}

// CaptureCopy reads the window's on-screen pixels with GetImage.
func (c *X11Capturer) CaptureCopy(handle uint64, area Area, width, height int) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getImage(xproto.Drawable(c.target(handle, area)), width, height)
}

func (c *X11Capturer) getImage(d xproto.Drawable, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 || width > 0xffff || height > 0xffff {
		return nil, fmt.Errorf("invalid capture size %dx%d", width, height)
	}
	reply, err := xproto.GetImage(
		c.conn,
		xproto.ImageFormatZPixmap,
		d,
		0, 0,
		uint16(width), uint16(height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return convertImageData(reply.Data, width, height, c.depth)
}

// convertImageData converts 24/32-bit BGRX ZPixmap data to RGBA
func convertImageData(data []byte, width, height, depth int) (*image.RGBA, error) {
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("unsupported depth %d", depth)
	}
	if len(data) < width*height*4 {
		return nil, fmt.Errorf("short image data: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height*4; i += 4 {
		img.Pix[i] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = 0xff
	}
	return img, nil
}
