//go:build linux

package selector

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/InfinitePIP/internal/display"
	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/bryanchriswhite/InfinitePIP/internal/source"
)

// Glyphs of the standard X cursor font.
const (
	crosshairGlyph     = 34
	crosshairMaskGlyph = 35
	outlineWidth       = 2
)

// X11Selector draws a rubber band on the root window while the pointer is
// grabbed. Left-drag selects; any key or another button cancels.
type X11Selector struct{}

// New returns the platform selector.
func New() Selector {
	return X11Selector{}
}

// Select implements Selector.
func (X11Selector) Select(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		ch <- runX11(ctx)
	}()
	return ch
}

func runX11(ctx context.Context) Result {
	log := logger.WithComponent("selector")

	conn, err := xgb.NewConn()
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %v", display.ErrUnavailable, err)}
	}

	// Closing the connection is the only way to wake WaitForEvent. Once it
	// is closed no further requests may be sent.
	var (
		connMu  sync.Mutex
		closed  bool
		cleanup []func()
	)
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			connMu.Lock()
			if !closed {
				closed = true
				conn.Close()
			}
			connMu.Unlock()
		case <-finished:
		}
	}()
	defer func() {
		close(finished)
		connMu.Lock()
		defer connMu.Unlock()
		if closed {
			return
		}
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		closed = true
		conn.Close()
	}()

	// Requests are sent only while holding connMu and before the watcher
	// has closed the connection.
	withConn := func(fn func()) bool {
		connMu.Lock()
		defer connMu.Unlock()
		if closed {
			return false
		}
		fn()
		return true
	}

	var (
		band     *rubberBand
		setupErr error
	)
	if !withConn(func() { band, setupErr = grabRoot(conn, &cleanup) }) {
		return Result{Err: ErrCancelled}
	}
	if setupErr != nil {
		return Result{Err: setupErr}
	}

	log.Info().Msg("Drag to select a region, press any key to cancel")

	var (
		start   image.Point
		pressed bool
	)
	for {
		ev, xerr := conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return Result{Err: ErrCancelled}
		}
		if xerr != nil {
			continue
		}

		switch e := ev.(type) {
		case xproto.ButtonPressEvent:
			if e.Detail != xproto.ButtonIndex1 {
				return Result{Err: ErrCancelled}
			}
			start = image.Pt(int(e.RootX), int(e.RootY))
			pressed = true
		case xproto.MotionNotifyEvent:
			if pressed {
				r := Normalize(start.X, start.Y, int(e.RootX), int(e.RootY))
				withConn(func() { band.draw(r) })
			}
		case xproto.ButtonReleaseEvent:
			if pressed && e.Detail == xproto.ButtonIndex1 {
				r := Normalize(start.X, start.Y, int(e.RootX), int(e.RootY))
				res := Finish(r)
				log.Info().
					Int("x", r.X).
					Int("y", r.Y).
					Int("width", r.Width).
					Int("height", r.Height).
					AnErr("error", res.Err).
					Msg("Region selected")
				return res
			}
		case xproto.KeyPressEvent:
			return Result{Err: ErrCancelled}
		}
	}
}

// grabRoot grabs pointer and keyboard on the root window and prepares the
// XOR outline. Undo steps are appended to cleanup.
func grabRoot(conn *xgb.Conn, cleanup *[]func()) (*rubberBand, error) {
	log := logger.WithComponent("selector")
	root := xproto.Setup(conn).DefaultScreen(conn).Root

	cursor, err := crosshair(conn)
	if err != nil {
		log.Debug().Err(err).Msg("Crosshair cursor unavailable")
	}

	grab, err := xproto.GrabPointer(conn, false, root,
		xproto.EventMaskButtonPress|xproto.EventMaskButtonRelease|xproto.EventMaskPointerMotion,
		xproto.GrabModeAsync, xproto.GrabModeAsync, root, cursor, xproto.TimeCurrentTime).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to grab pointer: %w", err)
	}
	if grab.Status != xproto.GrabStatusSuccess {
		return nil, fmt.Errorf("failed to grab pointer: status %d", grab.Status)
	}
	*cleanup = append(*cleanup, func() { xproto.UngrabPointer(conn, xproto.TimeCurrentTime) })

	kb, err := xproto.GrabKeyboard(conn, false, root, xproto.TimeCurrentTime,
		xproto.GrabModeAsync, xproto.GrabModeAsync).Reply()
	if err != nil || kb.Status != xproto.GrabStatusSuccess {
		log.Debug().Msg("Keyboard grab failed, cancel with a non-left button")
	} else {
		*cleanup = append(*cleanup, func() { xproto.UngrabKeyboard(conn, xproto.TimeCurrentTime) })
	}

	gc, err := xproto.NewGcontextId(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create GC ID: %w", err)
	}
	err = xproto.CreateGCChecked(conn, gc, xproto.Drawable(root),
		xproto.GcFunction|xproto.GcForeground|xproto.GcLineWidth|xproto.GcSubwindowMode,
		[]uint32{xproto.GxXor, 0xffffff, outlineWidth, xproto.SubwindowModeIncludeInferiors},
	).Check()
	if err != nil {
		return nil, fmt.Errorf("failed to create GC: %w", err)
	}
	band := &rubberBand{conn: conn, root: root, gc: gc}
	*cleanup = append(*cleanup, func() { xproto.FreeGC(conn, gc) }, band.erase)
	return band, nil
}

func crosshair(conn *xgb.Conn) (xproto.Cursor, error) {
	font, err := xproto.NewFontId(conn)
	if err != nil {
		return 0, err
	}
	const name = "cursor"
	if err := xproto.OpenFontChecked(conn, font, uint16(len(name)), name).Check(); err != nil {
		return 0, err
	}
	defer xproto.CloseFont(conn, font)

	cursor, err := xproto.NewCursorId(conn)
	if err != nil {
		return 0, err
	}
	err = xproto.CreateGlyphCursorChecked(conn, cursor, font, font,
		crosshairGlyph, crosshairMaskGlyph,
		0, 0, 0, 0xffff, 0xffff, 0xffff).Check()
	if err != nil {
		return 0, err
	}
	return cursor, nil
}

// rubberBand draws an XOR outline so drawing it twice removes it.
type rubberBand struct {
	conn  *xgb.Conn
	root  xproto.Window
	gc    xproto.Gcontext
	shown *xproto.Rectangle
}

func (b *rubberBand) draw(r source.Rect) {
	b.erase()
	rect := xproto.Rectangle{
		X:      int16(r.X),
		Y:      int16(r.Y),
		Width:  uint16(r.Width),
		Height: uint16(r.Height),
	}
	xproto.PolyRectangle(b.conn, xproto.Drawable(b.root), b.gc, []xproto.Rectangle{rect})
	b.shown = &rect
}

func (b *rubberBand) erase() {
	if b.shown == nil {
		return
	}
	xproto.PolyRectangle(b.conn, xproto.Drawable(b.root), b.gc, []xproto.Rectangle{*b.shown})
	b.shown = nil
}
