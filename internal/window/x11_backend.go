//go:build linux

package window

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/bryanchriswhite/InfinitePIP/internal/source"
)

// ICCCM WM_STATE values
const (
	wmStateNormal = 1
	wmStateIconic = 3
)

// X11Backend looks up windows through EWMH properties on an X display.
type X11Backend struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo

	atomMu sync.Mutex
	atoms  map[string]xproto.Atom
}

// NewLocator returns every locator this session supports, X11 first.
func NewLocator() (Locator, error) {
	var found Chain
	x11, err := NewX11Backend()
	if err == nil {
		found = append(found, x11)
	}
	if kwin, kerr := NewKWinLocator(); kerr == nil {
		found = append(found, kwin)
	} else {
		logger.WithComponent("window").Debug().Err(kerr).Msg("KWin window lookup unavailable")
	}
	if len(found) == 0 {
		return nil, err
	}
	return found, nil
}

// NewX11Backend connects to $DISPLAY.
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	return &X11Backend{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
		atoms:  make(map[string]xproto.Atom),
	}, nil
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// Conn returns the X11 connection for sharing with the window capturer.
func (b *X11Backend) Conn() *xgb.Conn {
	return b.conn
}

// Root returns the root window
func (b *X11Backend) Root() xproto.Window {
	return b.root
}

// Screen returns the screen info
func (b *X11Backend) Screen() *xproto.ScreenInfo {
	return b.screen
}

// FindByTitle implements Locator.
func (b *X11Backend) FindByTitle(title string) (*Info, error) {
	windows, err := b.listWindows()
	if err != nil {
		return nil, err
	}
	return matchTitle(title, windows)
}

// Lookup implements Locator.
func (b *X11Backend) Lookup(handle uint64) (*Info, error) {
	if handle == 0 || handle > 0xffffffff {
		return nil, ErrNotFound
	}
	return b.getWindowInfo(xproto.Window(handle))
}

// listWindows uses EWMH _NET_CLIENT_LIST with a QueryTree fallback.
func (b *X11Backend) listWindows() ([]*Info, error) {
	log := logger.WithComponent("x11-locator")

	ids, err := b.clientList()
	if err != nil || len(ids) == 0 {
		log.Debug().Err(err).Msg("EWMH client list unavailable, falling back to QueryTree")
		tree, err := xproto.QueryTree(b.conn, b.root).Reply()
		if err != nil {
			return nil, fmt.Errorf("failed to query tree: %w", err)
		}
		ids = tree.Children
	}

	windows := make([]*Info, 0, len(ids))
	for _, id := range ids {
		info, err := b.getWindowInfo(id)
		if err != nil || info.Title == "" {
			continue
		}
		windows = append(windows, info)
	}
	return windows, nil
}

func (b *X11Backend) clientList() ([]xproto.Window, error) {
	atom, err := b.Atom("_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}
	reply, err := xproto.GetProperty(b.conn, false, b.root, atom, xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST property: %w", err)
	}

	ids := make([]xproto.Window, 0, len(reply.Value)/4)
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		ids = append(ids, xproto.Window(xgb.Get32(reply.Value[i:])))
	}
	return ids, nil
}

// getWindowInfo retrieves title, class, pid and root-relative bounds.
func (b *X11Backend) getWindowInfo(win xproto.Window) (*Info, error) {
	bounds, err := b.RootBounds(win)
	if err != nil {
		return nil, err
	}
	info := &Info{Handle: uint64(win), Bounds: bounds}

	for _, name := range []string{"_NET_WM_NAME", "WM_NAME"} {
		if title, err := b.getProperty(win, name); err == nil && title != "" {
			info.Title = title
			break
		}
	}

	// WM_CLASS is instance\0class\0
	if classRaw, err := b.getProperty(win, "WM_CLASS"); err == nil {
		parts := strings.Split(classRaw, "\x00")
		if len(parts) >= 2 && parts[1] != "" {
			info.Class = parts[1]
		} else if parts[0] != "" {
			info.Class = parts[0]
		}
	}

	if pid, ok := b.cardinal(win, "_NET_WM_PID"); ok {
		info.PID = int(pid)
	}

	return info, nil
}

// RootBounds returns the window's geometry translated to root coordinates.
func (b *X11Backend) RootBounds(win xproto.Window) (source.Rect, error) {
	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return source.Rect{}, fmt.Errorf("failed to get window geometry: %w", err)
	}
	tr, err := xproto.TranslateCoordinates(b.conn, win, b.root, 0, 0).Reply()
	if err != nil {
		return source.Rect{}, fmt.Errorf("failed to translate coordinates: %w", err)
	}
	return source.Rect{
		X:      int(tr.DstX),
		Y:      int(tr.DstY),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}, nil
}

// FrameOf walks up the tree to the root's direct child, which is the window
// manager frame for reparented clients.
func (b *X11Backend) FrameOf(win xproto.Window) (xproto.Window, error) {
	cur := win
	for i := 0; i < 16; i++ {
		tree, err := xproto.QueryTree(b.conn, cur).Reply()
		if err != nil {
			return 0, fmt.Errorf("failed to query tree: %w", err)
		}
		if tree.Parent == b.root || tree.Parent == 0 {
			return cur, nil
		}
		cur = tree.Parent
	}
	return cur, nil
}

// IsIconic reports a minimized or unmapped window.
func (b *X11Backend) IsIconic(win xproto.Window) bool {
	if state, ok := b.cardinal(win, "WM_STATE"); ok && state == wmStateIconic {
		return true
	}
	if b.hasNetState(win, "_NET_WM_STATE_HIDDEN") {
		return true
	}
	attrs, err := xproto.GetWindowAttributes(b.conn, win).Reply()
	if err != nil {
		return false
	}
	return attrs.MapState != xproto.MapStateViewable
}

// Exists reports whether win still refers to a window.
func (b *X11Backend) Exists(win xproto.Window) bool {
	_, err := xproto.GetWindowAttributes(b.conn, win).Reply()
	return err == nil
}

func (b *X11Backend) hasNetState(win xproto.Window, name string) bool {
	stateAtom, err := b.Atom("_NET_WM_STATE")
	if err != nil {
		return false
	}
	want, err := b.Atom(name)
	if err != nil {
		return false
	}
	reply, err := xproto.GetProperty(b.conn, false, win, stateAtom, xproto.AtomAtom, 0, 64).Reply()
	if err != nil {
		return false
	}
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		if xproto.Atom(xgb.Get32(reply.Value[i:])) == want {
			return true
		}
	}
	return false
}

// Atom gets an atom ID by name, cached per connection.
func (b *X11Backend) Atom(name string) (xproto.Atom, error) {
	b.atomMu.Lock()
	defer b.atomMu.Unlock()
	if a, ok := b.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	b.atoms[name] = reply.Atom
	return reply.Atom, nil
}

func (b *X11Backend) cardinal(win xproto.Window, name string) (uint32, bool) {
	atom, err := b.Atom(name)
	if err != nil {
		return 0, false
	}
	reply, err := xproto.GetProperty(b.conn, false, win, atom, xproto.GetPropertyTypeAny, 0, 1).Reply()
	if err != nil || len(reply.Value) < 4 {
		return 0, false
	}
	return xgb.Get32(reply.Value), true
}

// getProperty gets a property value as a string
func (b *X11Backend) getProperty(win xproto.Window, name string) (string, error) {
	atom, err := b.Atom(name)
	if err != nil {
		return "", err
	}
	reply, err := xproto.GetProperty(b.conn, false, win, atom, xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property %s", name)
	}
	return string(reply.Value), nil
}
