package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/InfinitePIP/internal/aspect"
	"github.com/bryanchriswhite/InfinitePIP/internal/source"
	"github.com/bryanchriswhite/InfinitePIP/internal/surface"
	"github.com/bryanchriswhite/InfinitePIP/internal/ui"
)

type fakeCapturer struct {
	mu       sync.Mutex
	declared image.Point
	sizes    []image.Point
	panics   int
	calls    int
}

func (f *fakeCapturer) Capture(*source.Descriptor) *image.RGBA {
	f.mu.Lock()
	f.calls++
	if f.panics > 0 {
		f.panics--
		f.mu.Unlock()
		panic("capture exploded")
	}
	size := f.sizes[0]
	if len(f.sizes) > 1 {
		f.sizes = f.sizes[1:]
	}
	f.mu.Unlock()
	return image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
}

func (f *fakeCapturer) DeclaredSize(*source.Descriptor) (int, int, bool) {
	if f.declared == (image.Point{}) {
		return 0, 0, false
	}
	return f.declared.X, f.declared.Y, true
}

func (f *fakeCapturer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.entries = append(j.entries, s)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeSurface struct {
	mu       sync.Mutex
	journal  *journal
	renders  int
	lastSize image.Point
	geometry aspect.Geometry
	opacity  float64
	topmost  bool
	closed   bool
}

func (f *fakeSurface) Render(img *image.RGBA) {
	f.mu.Lock()
	f.renders++
	f.lastSize = img.Bounds().Size()
	f.mu.Unlock()
}

func (f *fakeSurface) Apply(g aspect.Geometry) {
	f.mu.Lock()
	f.geometry = g
	f.mu.Unlock()
}

func (f *fakeSurface) SetOpacity(o float64) {
	f.mu.Lock()
	f.opacity = o
	f.mu.Unlock()
}

func (f *fakeSurface) SetTopmost(t bool) {
	f.mu.Lock()
	f.topmost = t
	f.mu.Unlock()
}

func (f *fakeSurface) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	if f.journal != nil {
		f.journal.add("surface closed")
	}
}

func (f *fakeSurface) snapshot() fakeSurface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeSurface{renders: f.renders, lastSize: f.lastSize, geometry: f.geometry, opacity: f.opacity, topmost: f.topmost, closed: f.closed}
}

type fakeFactory struct {
	mu       sync.Mutex
	journal  *journal
	err      error
	surfaces []*fakeSurface
}

func (f *fakeFactory) Create(spec surface.Spec, _ surface.InputSink) (surface.Surface, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSurface{journal: f.journal, opacity: spec.Opacity, topmost: spec.Topmost}
	f.mu.Lock()
	f.surfaces = append(f.surfaces, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeFactory) last() *fakeSurface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.surfaces[len(f.surfaces)-1]
}

func testOptions() Options {
	return Options{
		Interval:            time.Millisecond,
		Backoff:             2 * time.Millisecond,
		Opacity:             1.0,
		Topmost:             true,
		MaintainAspectRatio: true,
		AutoResize:          true,
	}
}

func startLoop(t *testing.T) *ui.Loop {
	t.Helper()
	l := ui.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func monitorSource(t *testing.T) *source.Descriptor {
	t.Helper()
	src, err := source.NewMonitor(0)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func hd() *fakeCapturer {
	return &fakeCapturer{declared: image.Pt(1920, 1080), sizes: []image.Point{{1920, 1080}}}
}

func TestCreateSizesOverlayAndRendersFrames(t *testing.T) {
	loop := startLoop(t)
	factory := &fakeFactory{}
	m := NewManager(hd(), loop, factory, testOptions())

	s, err := m.Create(monitorSource(t))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close()

	if s.State() != Running {
		t.Fatalf("state = %v, want running", s.State())
	}
	surf := factory.last()
	waitFor(t, "first frame", func() bool { return surf.snapshot().renders > 0 })

	snap := surf.snapshot()
	if snap.geometry.Width != 400 || snap.geometry.Height != 225 {
		t.Fatalf("initial geometry = %+v, want 400x225", snap.geometry)
	}
	if snap.lastSize != image.Pt(400, 225) {
		t.Fatalf("frame size = %v, want fitted to 400x225", snap.lastSize)
	}

	info := s.Info()
	if info.ID != s.ID() || info.State != "running" || info.Source.Kind != "monitor" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if m.Count() != 1 || len(m.List()) != 1 {
		t.Fatalf("manager should list one session")
	}
}

func TestSourceRatioChangeResizesOverlay(t *testing.T) {
	loop := startLoop(t)
	factory := &fakeFactory{}
	capturer := &fakeCapturer{
		declared: image.Pt(1920, 1080),
		sizes:    []image.Point{{1920, 1080}, {1280, 960}},
	}
	m := NewManager(capturer, loop, factory, testOptions())

	s, err := m.Create(monitorSource(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	surf := factory.last()
	waitFor(t, "auto-resize", func() bool {
		g := surf.snapshot().geometry
		return g.Width == 400 && g.Height == 300
	})
	if r, ok := s.Policy().Ratio(); !ok || r < 1.33 || r > 1.34 {
		t.Fatalf("ratio = %v, want 4:3", r)
	}
}

func TestAutoResizeOffKeepsOverlay(t *testing.T) {
	loop := startLoop(t)
	factory := &fakeFactory{}
	capturer := &fakeCapturer{
		declared: image.Pt(1920, 1080),
		sizes:    []image.Point{{1280, 960}},
	}
	opts := testOptions()
	opts.AutoResize = false
	m := NewManager(capturer, loop, factory, opts)

	s, err := m.Create(monitorSource(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	waitFor(t, "ratio update", func() bool {
		r, _ := s.Policy().Ratio()
		return r < 1.34
	})
	// let any stray resize run before looking
	loop.Call(func() {})
	if g := factory.last().snapshot().geometry; g.Width != 400 || g.Height != 225 {
		t.Fatalf("geometry changed with auto-resize off: %+v", g)
	}
}

func TestDragResizeKeepsRatio(t *testing.T) {
	loop := startLoop(t)
	factory := &fakeFactory{}
	m := NewManager(hd(), loop, factory, testOptions())

	s, err := m.Create(monitorSource(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var g aspect.Geometry
	loop.Call(func() {
		start := s.geometry
		s.PointerPress(surface.Pointer{X: start.Width - 5, Y: start.Height / 2, RootX: 500, RootY: 300, Button: surface.ButtonLeft})
		s.PointerMotion(surface.Pointer{RootX: 900, RootY: 300})
		s.PointerRelease(surface.Pointer{})
		g = s.geometry
	})
	if g.Width != 800 || g.Height != 450 {
		t.Fatalf("east drag = %dx%d, want 800x450", g.Width, g.Height)
	}
	if s.Info().Geometry != g {
		t.Fatalf("snapshot not updated: %+v", s.Info().Geometry)
	}

	loop.Call(func() {
		s.PointerMotion(surface.Pointer{RootX: 2000, RootY: 2000})
		g = s.geometry
	})
	if g.Width != 800 {
		t.Fatalf("motion after release changed geometry: %+v", g)
	}
}

func TestDragMoveKeepsSize(t *testing.T) {
	loop := startLoop(t)
	factory := &fakeFactory{}
	m := NewManager(hd(), loop, factory, testOptions())

	s, err := m.Create(monitorSource(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var before, after aspect.Geometry
	loop.Call(func() {
		before = s.geometry
		s.PointerPress(surface.Pointer{X: 200, Y: 110, RootX: 300, RootY: 210, Button: surface.ButtonLeft})
		s.PointerMotion(surface.Pointer{RootX: 310, RootY: 230})
		s.PointerMotion(surface.Pointer{RootX: 320, RootY: 240})
		s.PointerRelease(surface.Pointer{})
		after = s.geometry
	})
	if after.X != before.X+20 || after.Y != before.Y+30 {
		t.Fatalf("moved to %+v from %+v", after, before)
	}
	if after.Width != before.Width || after.Height != before.Height {
		t.Fatalf("move changed size: %+v", after)
	}
}

func TestOpacityKeysClamp(t *testing.T) {
	loop := startLoop(t)
	factory := &fakeFactory{}
	m := NewManager(hd(), loop, factory, testOptions())

	s, err := m.Create(monitorSource(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	surf := factory.last()

	loop.Call(func() {
		for i := 0; i < 15; i++ {
			s.Key(surface.KeyOpacityDown)
		}
	})
	if got := surf.snapshot().opacity; got != MinOpacity {
		t.Fatalf("opacity after many decrements = %v, want %v", got, MinOpacity)
	}

	loop.Call(func() { s.Key(surface.KeyOpacityUp) })
	if got := s.Info().Opacity; got != 0.2 {
		t.Fatalf("opacity = %v, want 0.2", got)
	}

	loop.Call(func() { s.Key(surface.KeyOpacityReset) })
	if got := surf.snapshot().opacity; got != MaxOpacity {
		t.Fatalf("opacity after reset = %v", got)
	}

	if err := s.SetOpacity(7); err != nil {
		t.Fatal(err)
	}
	loop.Call(func() {})
	if got := s.Info().Opacity; got != MaxOpacity {
		t.Fatalf("SetOpacity not clamped: %v", got)
	}
}

func TestToggleKeys(t *testing.T) {
	loop := startLoop(t)
	factory := &fakeFactory{}
	m := NewManager(hd(), loop, factory, testOptions())

	s, err := m.Create(monitorSource(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	loop.Call(func() {
		s.Key(surface.KeyToggleTopmost)
		s.Key(surface.KeyToggleAspect)
		s.Key(surface.KeyToggleAutoResize)
	})
	info := s.Info()
	if info.Topmost || info.MaintainAspectRatio || info.AutoResize {
		t.Fatalf("toggles not applied: %+v", info)
	}
	if factory.last().snapshot().topmost {
		t.Fatal("surface still topmost")
	}
}

func TestCaptureSurvivesPanics(t *testing.T) {
	loop := startLoop(t)
	factory := &fakeFactory{}
	capturer := hd()
	capturer.panics = 3
	m := NewManager(capturer, loop, factory, testOptions())

	s, err := m.Create(monitorSource(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	surf := factory.last()
	waitFor(t, "frame after panics", func() bool { return surf.snapshot().renders > 0 })
	if s.State() != Running {
		t.Fatalf("state = %v after panics", s.State())
	}
}

func TestCloseReleasesSurfaceBeforeNotifying(t *testing.T) {
	loop := startLoop(t)
	j := &journal{}
	factory := &fakeFactory{journal: j}
	capturer := hd()
	m := NewManager(capturer, loop, factory, testOptions())
	m.OnChange(func(ev Event) { j.add(string(ev.Type)) })

	s, err := m.Create(monitorSource(t))
	if err != nil {
		t.Fatal(err)
	}

	s.Close()
	s.Close()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session never closed")
	}
	<-s.loopDone

	want := []string{"created", "surface closed", "closed"}
	got := j.list()
	if len(got) != len(want) {
		t.Fatalf("journal = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("journal = %v, want %v", got, want)
		}
	}

	if s.State() != Closed || m.Count() != 0 {
		t.Fatalf("state = %v count = %d", s.State(), m.Count())
	}
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after close: %v", err)
	}
	if err := s.SetOpacity(0.5); !errors.Is(err, ErrClosed) {
		t.Fatalf("SetOpacity after close: %v", err)
	}

	calls := capturer.Calls()
	time.Sleep(20 * time.Millisecond)
	if capturer.Calls() != calls {
		t.Fatal("capture continued after close")
	}
}

func TestCloseKey(t *testing.T) {
	loop := startLoop(t)
	factory := &fakeFactory{}
	m := NewManager(hd(), loop, factory, testOptions())

	s, err := m.Create(monitorSource(t))
	if err != nil {
		t.Fatal(err)
	}
	loop.Post(func() { s.Key(surface.KeyClose) })

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("close key ignored")
	}
	if !factory.last().snapshot().closed {
		t.Fatal("surface not closed")
	}
}

func TestCreateFailure(t *testing.T) {
	loop := startLoop(t)
	factory := &fakeFactory{err: errors.New("no display")}
	m := NewManager(hd(), loop, factory, testOptions())

	if _, err := m.Create(monitorSource(t)); err == nil {
		t.Fatal("expected error from failing factory")
	}
	if m.Count() != 0 {
		t.Fatal("failed session was registered")
	}
	if _, err := m.Create(nil); !errors.Is(err, source.ErrInvalidSource) {
		t.Fatalf("nil source: %v", err)
	}
}

func TestManagerCloseAll(t *testing.T) {
	loop := startLoop(t)
	factory := &fakeFactory{}
	m := NewManager(hd(), loop, factory, testOptions())

	var (
		mu     sync.Mutex
		counts []int
	)
	m.OnChange(func(ev Event) {
		mu.Lock()
		counts = append(counts, ev.Count)
		mu.Unlock()
	})

	for i := 0; i < 2; i++ {
		if _, err := m.Create(monitorSource(t)); err != nil {
			t.Fatal(err)
		}
	}
	list := m.List()
	if len(list) != 2 {
		t.Fatalf("List = %d sessions", len(list))
	}
	if list[0].Geometry.X == list[1].Geometry.X {
		t.Fatal("new overlays should cascade")
	}

	if err := m.Close("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Close unknown: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.CloseAll(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Count() != 0 {
		t.Fatalf("Count = %d after CloseAll", m.Count())
	}
	if _, err := m.Create(monitorSource(t)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Create after CloseAll: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(counts) != 4 || counts[1] != 2 || counts[3] != 0 {
		t.Fatalf("event counts = %v", counts)
	}
}
