package capture

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/bryanchriswhite/InfinitePIP/internal/platform"
	"github.com/bryanchriswhite/InfinitePIP/internal/source"
	"github.com/bryanchriswhite/InfinitePIP/internal/window"
)

type fakeScreen struct {
	displays []source.Rect
	grabs    []source.Rect
	err      error
}

func (s *fakeScreen) NumDisplays() int { return len(s.displays) }

func (s *fakeScreen) DisplayBounds(i int) source.Rect { return s.displays[i] }

func (s *fakeScreen) Grab(r source.Rect) (*image.RGBA, error) {
	s.grabs = append(s.grabs, r)
	if s.err != nil {
		return nil, s.err
	}
	return image.NewRGBA(image.Rect(0, 0, r.Width, r.Height)), nil
}

type fakeBackend struct {
	state    WindowState
	err      error
	fullErr  error
	copyErr  error
	calls    []string
	lastArea Area
}

func (b *fakeBackend) Name() string { return "fake" }
func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) Inspect(uint64) (WindowState, error) {
	b.calls = append(b.calls, "inspect")
	return b.state, b.err
}

func (b *fakeBackend) CaptureFull(_ uint64, area Area, w, h int) (*image.RGBA, error) {
	b.calls = append(b.calls, "full")
	b.lastArea = area
	if b.fullErr != nil {
		return nil, b.fullErr
	}
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

func (b *fakeBackend) CaptureCopy(_ uint64, area Area, w, h int) (*image.RGBA, error) {
	b.calls = append(b.calls, "copy")
	b.lastArea = area
	if b.copyErr != nil {
		return nil, b.copyErr
	}
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

type fakeLocator struct {
	info *window.Info
}

func (l *fakeLocator) Name() string { return "fake" }
func (l *fakeLocator) Close() error { return nil }

func (l *fakeLocator) FindByTitle(string) (*window.Info, error) {
	if l.info == nil {
		return nil, window.ErrNotFound
	}
	return l.info, nil
}

func (l *fakeLocator) Lookup(uint64) (*window.Info, error) { return l.FindByTitle("") }

var withWindows = platform.Capabilities{HasWindowCapture: true}

func TestMonitorCapture(t *testing.T) {
	screen := &fakeScreen{displays: []source.Rect{{Width: 1920, Height: 1080}, {X: 1920, Width: 1280, Height: 1024}}}
	c := New(withWindows, Options{Screen: screen})

	second, _ := source.NewMonitor(1)
	img := c.Capture(second)
	if img == nil || img.Bounds().Dx() != 1280 {
		t.Fatalf("monitor 1 frame = %v", img)
	}
	if screen.grabs[0].X != 1920 {
		t.Fatalf("grabbed %+v", screen.grabs[0])
	}

	missing, _ := source.NewMonitor(5)
	if c.Capture(missing) != nil {
		t.Fatal("out of range monitor produced a frame")
	}
}

func TestRegionCapture(t *testing.T) {
	screen := &fakeScreen{}
	c := New(withWindows, Options{Screen: screen})
	region, _ := source.NewRegion(10, 20, 300, 200)

	if img := c.Capture(region); img == nil || img.Bounds().Dx() != 300 {
		t.Fatalf("region frame = %v", img)
	}

	screen.err = errors.New("boom")
	if c.Capture(region) != nil {
		t.Fatal("failed grab produced a frame")
	}
	if s := c.Stats(); s.Frames != 1 || s.Misses != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestWindowMinimizedPlaceholder(t *testing.T) {
	backend := &fakeBackend{state: WindowState{
		Valid:  true,
		Iconic: true,
		Frame:  source.Rect{Width: 800, Height: 600},
		Client: source.Rect{Width: 780, Height: 560},
	}}
	c := New(withWindows, Options{Screen: &fakeScreen{}, Backend: backend})
	src, _ := source.NewWindow(7, "Player", source.Rect{})

	img := c.Capture(src)
	if img == nil {
		t.Fatal("minimized window returned no frame")
	}
	if img.Bounds().Dx() != PlaceholderWidth || img.Bounds().Dy() != PlaceholderHeight {
		t.Fatalf("placeholder size = %v", img.Bounds())
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{40, 40, 40, 255}) {
		t.Fatalf("background = %v", got)
	}
	if len(backend.calls) != 1 {
		t.Fatalf("capture attempted on minimized window: %v", backend.calls)
	}
	if c.Stats().Placeholders != 1 {
		t.Fatalf("stats = %+v", c.Stats())
	}
}

func TestWindowFallbackOrder(t *testing.T) {
	state := WindowState{
		Valid:  true,
		Frame:  source.Rect{X: 5, Y: 5, Width: 820, Height: 640},
		Client: source.Rect{X: 10, Y: 30, Width: 800, Height: 600},
	}

	t.Run("full content first", func(t *testing.T) {
		backend := &fakeBackend{state: state}
		c := New(withWindows, Options{Screen: &fakeScreen{}, Backend: backend})
		src, _ := source.NewWindow(7, "w", source.Rect{})

		img := c.Capture(src)
		if img == nil || img.Bounds().Dx() != 800 {
			t.Fatalf("frame = %v", img)
		}
		if len(backend.calls) != 2 || backend.calls[1] != "full" || backend.lastArea != AreaClient {
			t.Fatalf("calls = %v area = %v", backend.calls, backend.lastArea)
		}
		if src.Tracked() != state.Client {
			t.Fatalf("tracked = %+v", src.Tracked())
		}
	})

	t.Run("block copy second", func(t *testing.T) {
		backend := &fakeBackend{state: state, fullErr: errors.New("no")}
		c := New(withWindows, Options{Screen: &fakeScreen{}, Backend: backend})
		src, _ := source.NewWindow(7, "w", source.Rect{})

		if c.Capture(src) == nil {
			t.Fatal("no frame")
		}
		if got := backend.calls; len(got) != 3 || got[2] != "copy" {
			t.Fatalf("calls = %v", got)
		}
	})

	t.Run("screen region last", func(t *testing.T) {
		backend := &fakeBackend{state: state, fullErr: errors.New("no"), copyErr: errors.New("no")}
		screen := &fakeScreen{}
		c := New(withWindows, Options{Screen: screen, Backend: backend})
		src, _ := source.NewWindow(7, "w", source.Rect{})

		if c.Capture(src) == nil {
			t.Fatal("no frame")
		}
		if len(screen.grabs) != 1 || screen.grabs[0] != state.Client {
			t.Fatalf("grabs = %v", screen.grabs)
		}
	})
}

func TestClientAreaHeuristic(t *testing.T) {
	backend := &fakeBackend{state: WindowState{
		Valid:  true,
		Frame:  source.Rect{Width: 300, Height: 400},
		Client: source.Rect{Width: 100, Height: 380},
	}}
	c := New(withWindows, Options{Screen: &fakeScreen{}, Backend: backend})
	src, _ := source.NewWindow(7, "w", source.Rect{})

	img := c.Capture(src)
	if img == nil || img.Bounds().Dx() != 300 || backend.lastArea != AreaFrame {
		t.Fatalf("small client area should use frame: img=%v area=%v", img, backend.lastArea)
	}
}

func TestInvalidHandle(t *testing.T) {
	backend := &fakeBackend{state: WindowState{Valid: false}}
	c := New(withWindows, Options{Screen: &fakeScreen{}, Backend: backend})
	src, _ := source.NewWindow(7, "w", source.Rect{})

	img := c.Capture(src)
	if img == nil || img.Bounds().Dx() != PlaceholderWidth {
		t.Fatalf("invalid handle frame = %v", img)
	}
}

func TestTitleTrackingWithoutBackend(t *testing.T) {
	screen := &fakeScreen{}
	locator := &fakeLocator{info: &window.Info{Title: "Docs", Bounds: source.Rect{X: 40, Y: 50, Width: 640, Height: 360}}}
	backend := &fakeBackend{}
	// capability negotiation says no native capture: backend must be ignored
	c := New(platform.Capabilities{}, Options{Screen: screen, Backend: backend, Locator: locator})
	src, _ := source.NewWindow(7, "Docs", source.Rect{X: 0, Y: 0, Width: 320, Height: 200})

	img := c.Capture(src)
	if img == nil || img.Bounds().Dx() != 640 {
		t.Fatalf("frame = %v", img)
	}
	if len(backend.calls) != 0 {
		t.Fatalf("backend used: %v", backend.calls)
	}
	if src.Tracked() != locator.info.Bounds {
		t.Fatalf("tracked = %+v", src.Tracked())
	}

	// lookup failure keeps the last known bounds
	locator.info = nil
	if img := c.Capture(src); img == nil || img.Bounds().Dx() != 640 {
		t.Fatalf("stale bounds frame = %v", img)
	}
}

func TestDeclaredSize(t *testing.T) {
	screen := &fakeScreen{displays: []source.Rect{{Width: 1920, Height: 1080}}}
	c := New(withWindows, Options{Screen: screen})

	m, _ := source.NewMonitor(0)
	if w, h, ok := c.DeclaredSize(m); !ok || w != 1920 || h != 1080 {
		t.Fatalf("monitor = %d %d %v", w, h, ok)
	}
	r, _ := source.NewRegion(0, 0, 300, 100)
	if w, h, ok := c.DeclaredSize(r); !ok || w != 300 || h != 100 {
		t.Fatalf("region = %d %d %v", w, h, ok)
	}
	win, _ := source.NewWindow(0, "x", source.Rect{})
	if _, _, ok := c.DeclaredSize(win); ok {
		t.Fatal("empty window bbox reported a size")
	}
	missing, _ := source.NewMonitor(3)
	if _, _, ok := c.DeclaredSize(missing); ok {
		t.Fatal("missing monitor reported a size")
	}
}

func TestPlaceholderDrawsText(t *testing.T) {
	img := Placeholder("Window Minimized")
	white := 0
	for y := 0; y < PlaceholderHeight; y++ {
		for x := 0; x < PlaceholderWidth; x++ {
			if img.RGBAAt(x, y).R > 200 {
				white++
				if x < 100 || x > 300 || y < 120 || y > 180 {
					t.Fatalf("text pixel at (%d,%d) is not centered", x, y)
				}
			}
		}
	}
	if white == 0 {
		t.Fatal("no text drawn")
	}
}
