//go:build linux

package window

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/bryanchriswhite/InfinitePIP/internal/source"
	"github.com/godbus/dbus/v5"
)

// KWin D-Bus constants
const (
	kwinService    = "org.kde.KWin"
	kwinWindowPath = "/org/kde/KWin/Window/"
	kdotoolTimeout = 2 * time.Second
)

// KWinLocator finds windows on a KDE Plasma session through kdotool, which
// also sees native Wayland windows that the X11 backend cannot. XWayland
// windows are reported under their X11 id so they stay capturable.
type KWinLocator struct {
	conn *dbus.Conn

	mu    sync.Mutex
	uuids map[uint64]string
}

// NewKWinLocator connects to the session bus and checks for KWin and kdotool.
func NewKWinLocator() (*KWinLocator, error) {
	if _, err := exec.LookPath("kdotool"); err != nil {
		return nil, fmt.Errorf("kdotool not found: %w", err)
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to list D-Bus names: %w", err)
	}
	found := false
	for _, name := range names {
		if name == kwinService {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, errors.New("KWin service not found on D-Bus")
	}

	logger.WithComponent("kwin-backend").Info().Msg("Connected to KWin D-Bus service")
	return &KWinLocator{conn: conn, uuids: make(map[uint64]string)}, nil
}

func (b *KWinLocator) Name() string { return "kwin" }

// Close closes the D-Bus connection
func (b *KWinLocator) Close() error {
	return b.conn.Close()
}

// FindByTitle implements Locator.
func (b *KWinLocator) FindByTitle(title string) (*Info, error) {
	want := strings.TrimSpace(title)
	if want == "" {
		return nil, ErrNotFound
	}

	out, err := kdotool("search", "--name", "(?i)"+regexp.QuoteMeta(want))
	if err != nil {
		return nil, fmt.Errorf("kdotool search failed: %w", err)
	}

	var candidates []*Info
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		info, err := b.windowInfo(id)
		if err != nil {
			logger.WithComponent("kwin-backend").Debug().Str("window_id", id).Err(err).Msg("Failed to get window info")
			continue
		}
		candidates = append(candidates, info)
	}
	return matchTitle(want, candidates)
}

// Lookup implements Locator for handles previously returned by FindByTitle.
func (b *KWinLocator) Lookup(handle uint64) (*Info, error) {
	b.mu.Lock()
	id, ok := b.uuids[handle]
	b.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	info, err := b.windowInfo(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return info, nil
}

func (b *KWinLocator) windowInfo(id string) (*Info, error) {
	geom, err := kdotool("getwindowgeometry", id)
	if err != nil {
		return nil, err
	}
	name, _ := kdotool("getwindowname", id)
	class, _ := kdotool("getwindowclassname", id)
	pidOut, _ := kdotool("getwindowpid", id)
	pid, _ := strconv.Atoi(strings.TrimSpace(pidOut))

	handle := uint64(hashStringToUint32(id))
	if xid, err := b.windowXID(id); err == nil && xid > 0 {
		handle = uint64(xid)
	}

	b.mu.Lock()
	b.uuids[handle] = id
	b.mu.Unlock()

	return &Info{
		Handle: handle,
		Title:  strings.TrimSpace(name),
		Class:  strings.TrimSpace(class),
		PID:    pid,
		Bounds: parseKdotoolGeometry(geom),
	}, nil
}

// windowXID reads the X11 id KWin exposes for XWayland clients.
func (b *KWinLocator) windowXID(id string) (uint32, error) {
	obj := b.conn.Object(kwinService, dbus.ObjectPath(kwinWindowPath+id))

	for _, iface := range []string{"org.kde.KWin.Window", "org.kde.KWin.Client"} {
		for _, prop := range []string{"internalId", "windowId"} {
			v, err := obj.GetProperty(iface + "." + prop)
			if err != nil {
				continue
			}
			switch x := v.Value().(type) {
			case uint32:
				return x, nil
			case int32:
				return uint32(x), nil
			case uint64:
				return uint32(x), nil
			case int64:
				return uint32(x), nil
			}
		}
	}
	return 0, errors.New("no XID found")
}

func kdotool(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), kdotoolTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "kdotool", args...).Output()
	return string(out), err
}

// parseKdotoolGeometry parses "Window <id>\n  Position: X,Y\n  Geometry: WxH".
func parseKdotoolGeometry(output string) source.Rect {
	var r source.Rect
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "Position:"); ok {
			parts := strings.Split(strings.TrimSpace(v), ",")
			if len(parts) >= 2 {
				r.X = atoiLoose(parts[0])
				r.Y = atoiLoose(parts[1])
			}
		} else if v, ok := strings.CutPrefix(line, "Geometry:"); ok {
			parts := strings.Split(strings.TrimSpace(v), "x")
			if len(parts) >= 2 {
				r.Width = atoiLoose(parts[0])
				r.Height = atoiLoose(parts[1])
			}
		}
	}
	return r
}

// atoiLoose accepts the fractional coordinates KWin reports under scaling.
func atoiLoose(s string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int(f)
}

// hashStringToUint32 maps KWin's UUID-style window ids onto numeric handles.
func hashStringToUint32(s string) uint32 {
	var hash uint32 = 5381
	for i := 0; i < len(s); i++ {
		hash = ((hash << 5) + hash) + uint32(s[i])
	}
	return hash
}
