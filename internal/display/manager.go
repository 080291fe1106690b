//go:build linux

package display

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/InfinitePIP/internal/aspect"
	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/bryanchriswhite/InfinitePIP/internal/surface"
	"github.com/bryanchriswhite/InfinitePIP/internal/ui"
	"github.com/rs/zerolog"
)

// raiseEvery restacks topmost overlays every n frames; override-redirect
// windows are not kept above by the window manager.
const raiseEvery = 30

// Manager owns the X connection and every overlay window. It implements
// surface.Factory.
type Manager struct {
	conn       *xgb.Conn
	screen     *xproto.ScreenInfo
	dispatcher ui.Dispatcher
	log        *zerolog.Logger

	bitsPerPixel int
	scanlinePad  int
	maxRequest   int

	keyMu     sync.RWMutex
	minKey    xproto.Keycode
	perKey    int
	keysyms   []xproto.Keysym
	atomMu    sync.Mutex
	atoms     map[string]xproto.Atom
	mu        sync.Mutex
	overlays  map[xproto.Window]*overlay
	closeOnce sync.Once
	done      chan struct{}
}

// NewManager connects to the X server and starts the event pump. Input
// events are posted to d.
func NewManager(d ui.Dispatcher) (*Manager, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to X server: %v", ErrUnavailable, err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	m := &Manager{
		conn:       conn,
		screen:     screen,
		dispatcher: d,
		log:        logger.WithComponent("display"),
		maxRequest: int(setup.MaximumRequestLength) * 4,
		atoms:      make(map[string]xproto.Atom),
		overlays:   make(map[xproto.Window]*overlay),
		done:       make(chan struct{}),
	}

	for _, format := range setup.PixmapFormats {
		if format.Depth == screen.RootDepth {
			m.bitsPerPixel = int(format.BitsPerPixel)
			m.scanlinePad = int(format.ScanlinePad)
			break
		}
	}
	if m.bitsPerPixel == 0 {
		conn.Close()
		return nil, fmt.Errorf("%w: no pixmap format for depth %d", ErrUnavailable, screen.RootDepth)
	}

	if err := m.loadKeymap(setup); err != nil {
		m.log.Warn().Err(err).Msg("Failed to load keyboard mapping, shortcuts disabled")
	}

	go m.pump()

	m.log.Info().
		Int("depth", int(screen.RootDepth)).
		Int("bits_per_pixel", m.bitsPerPixel).
		Int("max_request", m.maxRequest).
		Msg("Display connected")
	return m, nil
}

func (m *Manager) loadKeymap(setup *xproto.SetupInfo) error {
	count := int(setup.MaxKeycode) - int(setup.MinKeycode) + 1
	reply, err := xproto.GetKeyboardMapping(m.conn, setup.MinKeycode, byte(count)).Reply()
	if err != nil {
		return err
	}
	m.keyMu.Lock()
	m.minKey = setup.MinKeycode
	m.perKey = int(reply.KeysymsPerKeycode)
	m.keysyms = reply.Keysyms
	m.keyMu.Unlock()
	return nil
}

func (m *Manager) lookupKey(code xproto.Keycode, state uint16) rune {
	m.keyMu.RLock()
	defer m.keyMu.RUnlock()

	if m.perKey == 0 || code < m.minKey {
		return 0
	}
	i := int(code-m.minKey) * m.perKey
	if state&xproto.ModMaskShift != 0 && m.perKey > 1 {
		i++
	}
	if i >= len(m.keysyms) {
		return 0
	}
	return keysymRune(uint32(m.keysyms[i]))
}

func (m *Manager) atom(name string) (xproto.Atom, error) {
	m.atomMu.Lock()
	defer m.atomMu.Unlock()
	if a, ok := m.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(m.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	m.atoms[name] = reply.Atom
	return reply.Atom, nil
}

// Create implements surface.Factory. It runs on the UI loop.
func (m *Manager) Create(spec surface.Spec, sink surface.InputSink) (surface.Surface, error) {
	select {
	case <-m.done:
		return nil, ErrUnavailable
	default:
	}

	wid, err := xproto.NewWindowId(m.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create window ID: %w", err)
	}

	g := spec.Geometry
	mask := uint32(xproto.CwBackPixel | xproto.CwOverrideRedirect | xproto.CwEventMask)
	values := []uint32{
		0x000000,
		1,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify |
			xproto.EventMaskButtonPress | xproto.EventMaskButtonRelease |
			xproto.EventMaskButtonMotion | xproto.EventMaskKeyPress,
	}
	err = xproto.CreateWindowChecked(
		m.conn,
		m.screen.RootDepth,
		wid,
		m.screen.Root,
		int16(g.X), int16(g.Y),
		uint16(g.Width), uint16(g.Height),
		0,
		xproto.WindowClassInputOutput,
		m.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	o := &overlay{
		m:        m,
		win:      wid,
		sink:     sink,
		geometry: g,
		topmost:  spec.Topmost,
		log:      logger.WithSession("display", spec.ID),
	}

	if err := o.setStringProperty("_NET_WM_NAME", "UTF8_STRING", spec.Title); err != nil {
		o.log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := o.setStringProperty("WM_CLASS", "STRING", "infinitepip\x00InfinitePIP\x00"); err != nil {
		o.log.Warn().Err(err).Msg("Failed to set window class")
	}
	o.SetOpacity(spec.Opacity)

	if err := xproto.MapWindowChecked(m.conn, wid).Check(); err != nil {
		xproto.DestroyWindow(m.conn, wid)
		return nil, fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(m.conn)
	if err != nil {
		xproto.DestroyWindow(m.conn, wid)
		return nil, fmt.Errorf("failed to create graphics context ID: %w", err)
	}
	if err := xproto.CreateGCChecked(m.conn, gc, xproto.Drawable(wid), 0, nil).Check(); err != nil {
		xproto.DestroyWindow(m.conn, wid)
		return nil, fmt.Errorf("failed to create GC: %w", err)
	}
	o.gc = gc
	o.raise()
	m.conn.Sync()

	m.mu.Lock()
	m.overlays[wid] = o
	m.mu.Unlock()

	o.log.Info().
		Uint32("window_id", uint32(wid)).
		Int("width", g.Width).
		Int("height", g.Height).
		Msg("Overlay window created")
	return o, nil
}

func (m *Manager) lookup(win xproto.Window) *overlay {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlays[win]
}

func (m *Manager) forget(win xproto.Window) {
	m.mu.Lock()
	delete(m.overlays, win)
	m.mu.Unlock()
}

// pump reads X events and forwards overlay input to the UI loop.
func (m *Manager) pump() {
	for {
		ev, xerr := m.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			m.log.Debug().Msg("X connection closed, event pump exiting")
			return
		}
		if xerr != nil {
			m.log.Debug().Str("error", xerr.Error()).Msg("X error")
			continue
		}

		switch e := ev.(type) {
		case xproto.ButtonPressEvent:
			m.post(e.Event, func(o *overlay) {
				xproto.SetInputFocus(m.conn, xproto.InputFocusPointerRoot, o.win, xproto.TimeCurrentTime)
				o.sink.PointerPress(pointer(e.EventX, e.EventY, e.RootX, e.RootY, e.Detail))
			})
		case xproto.MotionNotifyEvent:
			m.post(e.Event, func(o *overlay) {
				o.sink.PointerMotion(pointer(e.EventX, e.EventY, e.RootX, e.RootY, 0))
			})
		case xproto.ButtonReleaseEvent:
			m.post(e.Event, func(o *overlay) {
				o.sink.PointerRelease(pointer(e.EventX, e.EventY, e.RootX, e.RootY, e.Detail))
			})
		case xproto.KeyPressEvent:
			r := m.lookupKey(e.Detail, e.State)
			if k := surface.KeyForRune(r); k != surface.KeyUnknown {
				m.post(e.Event, func(o *overlay) { o.sink.Key(k) })
			}
		case xproto.ExposeEvent:
			if e.Count == 0 {
				m.post(e.Window, func(o *overlay) { o.redraw() })
			}
		case xproto.DestroyNotifyEvent:
			m.post(e.Window, func(o *overlay) {
				if !o.closed {
					o.closed = true
					o.sink.CloseRequested()
				}
			})
		}
	}
}

// post runs fn for the overlay owning win on the UI loop.
func (m *Manager) post(win xproto.Window, fn func(o *overlay)) {
	if m.lookup(win) == nil {
		return
	}
	m.dispatcher.Post(func() {
		if o := m.lookup(win); o != nil && o.sink != nil {
			fn(o)
		}
	})
}

func pointer(x, y, rootX, rootY int16, button xproto.Button) surface.Pointer {
	return surface.Pointer{
		X:      int(x),
		Y:      int(y),
		RootX:  int(rootX),
		RootY:  int(rootY),
		Button: surface.Button(button),
	}
}

// Close destroys remaining overlays and disconnects.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.mu.Lock()
		for win := range m.overlays {
			xproto.DestroyWindow(m.conn, win)
		}
		m.overlays = map[xproto.Window]*overlay{}
		m.mu.Unlock()
		m.conn.Close()
		m.log.Info().Msg("Display closed")
	})
}

// overlay is one PIP window. All methods run on the UI loop.
type overlay struct {
	m        *Manager
	win      xproto.Window
	gc       xproto.Gcontext
	sink     surface.InputSink
	geometry aspect.Geometry
	topmost  bool
	last     *image.RGBA
	frames   int
	closed   bool
	log      *zerolog.Logger
}

func (o *overlay) Render(img *image.RGBA) {
	if o.closed || img == nil {
		return
	}
	o.last = img
	if err := o.put(img); err != nil {
		o.log.Debug().Err(err).Msg("Failed to put image")
	}
	o.frames++
	if o.topmost && o.frames%raiseEvery == 0 {
		o.raise()
	}
}

func (o *overlay) redraw() {
	if o.last != nil && !o.closed {
		if err := o.put(o.last); err != nil {
			o.log.Debug().Err(err).Msg("Failed to redraw")
		}
	}
}

// put sends img in bands that fit the server's request limit.
func (o *overlay) put(img *image.RGBA) error {
	w, h := o.geometry.Width, o.geometry.Height
	img = fitCanvas(img, w, h)

	depth := o.m.screen.RootDepth
	data, stride, err := encodePixels(img, o.m.bitsPerPixel/8, o.m.scanlinePad, depth == 32)
	if err != nil {
		return err
	}

	for _, b := range splitRows(h, stride, o.m.maxRequest) {
		xproto.PutImage(
			o.m.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(o.win),
			o.gc,
			uint16(w), uint16(b.end-b.start),
			0, int16(b.start),
			0,
			depth,
			data[b.start*stride:b.end*stride],
		)
	}
	return nil
}

func (o *overlay) Apply(g aspect.Geometry) {
	if o.closed {
		return
	}
	o.geometry = g
	xproto.ConfigureWindow(o.m.conn, o.win,
		xproto.ConfigWindowX|xproto.ConfigWindowY|xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
		[]uint32{uint32(int32(g.X)), uint32(int32(g.Y)), uint32(g.Width), uint32(g.Height)},
	)
	if o.topmost {
		o.raise()
	}
	o.redraw()
}

func (o *overlay) SetOpacity(opacity float64) {
	if o.closed {
		return
	}
	a, err := o.m.atom("_NET_WM_WINDOW_OPACITY")
	if err != nil {
		o.log.Warn().Err(err).Msg("Failed to intern opacity atom")
		return
	}
	buf := make([]byte, 4)
	xgb.Put32(buf, opacityCardinal(opacity))
	xproto.ChangeProperty(o.m.conn, xproto.PropModeReplace, o.win, a, xproto.AtomCardinal, 32, 1, buf)
}

func (o *overlay) SetTopmost(topmost bool) {
	o.topmost = topmost
	if topmost && !o.closed {
		o.raise()
	}
}

func (o *overlay) raise() {
	xproto.ConfigureWindow(o.m.conn, o.win, xproto.ConfigWindowStackMode, []uint32{xproto.StackModeAbove})
}

func (o *overlay) setStringProperty(name, typ, value string) error {
	prop, err := o.m.atom(name)
	if err != nil {
		return err
	}
	t, err := o.m.atom(typ)
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(o.m.conn, xproto.PropModeReplace, o.win, prop, t, 8,
		uint32(len(value)), []byte(value)).Check()
}

func (o *overlay) Close() {
	o.m.forget(o.win)
	if o.closed {
		return
	}
	o.closed = true
	if o.gc != 0 {
		xproto.FreeGC(o.m.conn, o.gc)
	}
	xproto.DestroyWindow(o.m.conn, o.win)
	o.m.conn.Sync()
	o.log.Info().Msg("Overlay window destroyed")
}
