// Package session runs PIP capture sessions: one capture goroutine per
// session feeding fitted frames to a display surface through the UI loop.
package session

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/InfinitePIP/internal/aspect"
	"github.com/bryanchriswhite/InfinitePIP/internal/compositor"
	"github.com/bryanchriswhite/InfinitePIP/internal/config"
	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/bryanchriswhite/InfinitePIP/internal/source"
	"github.com/bryanchriswhite/InfinitePIP/internal/surface"
	"github.com/bryanchriswhite/InfinitePIP/internal/ui"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrClosed is returned when operating on a closed session or manager.
	ErrClosed = errors.New("session closed")
)

// Opacity bounds and keyboard step.
const (
	MinOpacity  = 0.1
	MaxOpacity  = 1.0
	OpacityStep = 0.1
)

// State is a session lifecycle state.
type State int32

const (
	Starting State = iota
	Running
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Capturer is the frame source used by sessions.
type Capturer interface {
	Capture(src *source.Descriptor) *image.RGBA
	DeclaredSize(src *source.Descriptor) (int, int, bool)
}

// Options are the per-session defaults.
type Options struct {
	Interval            time.Duration
	Backoff             time.Duration
	Opacity             float64
	Topmost             bool
	MaintainAspectRatio bool
	AutoResize          bool
}

// DefaultOptions matches the built-in configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Defaults())
}

// OptionsFromConfig reads session defaults from the config file.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Interval:            cfg.Capture.Interval(),
		Backoff:             cfg.Capture.Backoff(),
		Opacity:             cfg.Overlay.Opacity,
		Topmost:             cfg.Overlay.Topmost,
		MaintainAspectRatio: cfg.Overlay.MaintainAspectRatio,
		AutoResize:          cfg.Overlay.AutoResize,
	}
}

// Info is a point-in-time view of a session for listings.
type Info struct {
	ID                  string          `json:"id"`
	Source              source.Info     `json:"source"`
	State               string          `json:"state"`
	Geometry            aspect.Geometry `json:"geometry"`
	Opacity             float64         `json:"opacity"`
	Topmost             bool            `json:"topmost"`
	MaintainAspectRatio bool            `json:"maintain_aspect_ratio"`
	AutoResize          bool            `json:"auto_resize_on_source_change"`
	AspectRatio         float64         `json:"aspect_ratio,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

type dragMode int

const (
	dragIdle dragMode = iota
	dragMove
	dragResize
)

type dragState struct {
	mode         dragMode
	corner       aspect.Corner
	rootX, rootY int
}

// Session owns one overlay and its capture loop.
type Session struct {
	id         string
	src        *source.Descriptor
	capturer   Capturer
	dispatcher ui.Dispatcher
	factory    surface.Factory
	policy     *aspect.Policy
	opts       Options
	log        *zerolog.Logger
	createdAt  time.Time

	state   atomic.Int32
	running atomic.Bool
	// canvas is the overlay size packed as w<<32|h, written on the UI loop
	// and read by the capture goroutine.
	canvas  atomic.Uint64
	pending atomic.Bool

	// capture goroutine only
	lastSize image.Point

	// UI loop only
	surface  surface.Surface
	geometry aspect.Geometry
	drag     dragState

	// snapshot of UI state for other goroutines
	mu      sync.RWMutex
	view    aspect.Geometry
	opacity float64
	topmost bool

	onClosed  func(*Session)
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
	loopDone  chan struct{}
}

func newSession(id string, src *source.Descriptor, capturer Capturer, d ui.Dispatcher, f surface.Factory, opts Options) *Session {
	s := &Session{
		id:         id,
		src:        src,
		capturer:   capturer,
		dispatcher: d,
		factory:    f,
		policy:     aspect.NewPolicy(opts.MaintainAspectRatio, opts.AutoResize),
		opts:       opts,
		log:        logger.WithSession("session", id),
		createdAt:  time.Now(),
		opacity:    clampOpacity(opts.Opacity),
		topmost:    opts.Topmost,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	s.state.Store(int32(Starting))
	return s
}

// ID is the session handle.
func (s *Session) ID() string { return s.id }

// Source is the session's capture source.
func (s *Session) Source() *source.Descriptor { return s.src }

// State returns the lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Policy exposes the session's aspect policy.
func (s *Session) Policy() *aspect.Policy { return s.policy }

// start sizes the overlay from the declared source size, creates the
// surface on the UI loop and spawns the capture goroutine.
func (s *Session) start(origin image.Point) error {
	w, h := aspect.InitialWidth, aspect.InitialHeight
	if dw, dh, ok := s.capturer.DeclaredSize(s.src); ok && s.policy.SetRatio(dw, dh) {
		r, _ := s.policy.Ratio()
		w, h = aspect.ComputeInitial(r)
	}
	g := aspect.Geometry{X: origin.X, Y: origin.Y, Width: w, Height: h}

	s.mu.RLock()
	spec := surface.Spec{
		ID:       s.id,
		Title:    "InfinitePIP: " + s.src.Name(),
		Geometry: g,
		Opacity:  s.opacity,
		Topmost:  s.topmost,
	}
	s.mu.RUnlock()

	createErr := errors.New("surface factory did not complete")
	ran := make(chan struct{})
	if !s.dispatcher.Post(func() {
		defer close(ran)
		surf, err := s.factory.Create(spec, s)
		if err != nil {
			createErr = err
			return
		}
		s.surface = surf
		s.setGeometry(g)
		createErr = nil
	}) {
		createErr = ErrClosed
		close(ran)
	}
	<-ran

	if createErr != nil {
		s.state.Store(int32(Closed))
		close(s.loopDone)
		close(s.done)
		return fmt.Errorf("failed to create surface: %w", createErr)
	}

	s.running.Store(true)
	s.state.Store(int32(Running))
	go s.loop()

	s.log.Info().
		Str("source", s.src.Name()).
		Int("width", g.Width).
		Int("height", g.Height).
		Msg("Session started")
	return nil
}

func (s *Session) loop() {
	defer close(s.loopDone)

	for s.running.Load() {
		pause := s.opts.Interval
		if !s.tick() {
			pause = s.opts.Backoff
		}

		select {
		case <-s.stop:
		case <-time.After(pause):
		}
	}
	s.log.Debug().Msg("Capture loop exited")
}

// tick runs one capture iteration. It returns false when the iteration
// failed and the loop should back off.
func (s *Session) tick() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("Capture iteration failed")
			ok = false
		}
	}()

	img := s.capturer.Capture(s.src)
	if img == nil {
		return true
	}

	size := img.Bounds().Size()
	if size != s.lastSize {
		s.lastSize = size
		if s.policy.OnObservedSize(size.X, size.Y) {
			s.log.Debug().Int("width", size.X).Int("height", size.Y).Msg("Source aspect ratio changed")
			s.dispatcher.Post(s.resizeToMatch)
		}
	}

	w, h := s.canvasSize()
	if w <= 0 || h <= 0 {
		return true
	}
	fitted := compositor.Fit(img, w, h)
	if fitted == nil {
		return false
	}
	s.present(fitted)
	return true
}

// present hands a fitted frame to the UI loop. While a previous frame is
// still queued the new one is dropped.
func (s *Session) present(img *image.RGBA) {
	if !s.pending.CompareAndSwap(false, true) {
		return
	}
	if !s.dispatcher.Post(func() {
		s.pending.Store(false)
		if s.surface != nil && s.State() == Running {
			s.surface.Render(img)
		}
	}) {
		s.pending.Store(false)
	}
}

func (s *Session) canvasSize() (int, int) {
	v := s.canvas.Load()
	return int(v >> 32), int(v & 0xffffffff)
}

// setGeometry applies g to the surface and publishes it. UI loop only.
func (s *Session) setGeometry(g aspect.Geometry) {
	g.Width = max(aspect.MinWidth, g.Width)
	g.Height = max(aspect.MinHeight, g.Height)

	s.geometry = g
	s.canvas.Store(uint64(g.Width)<<32 | uint64(g.Height))
	if s.surface != nil {
		s.surface.Apply(g)
	}

	s.mu.Lock()
	s.view = g
	s.mu.Unlock()
}

// resizeToMatch re-fits the overlay to the source ratio. UI loop only.
func (s *Session) resizeToMatch() {
	if s.surface == nil || s.State() != Running {
		return
	}
	w, h, ok := s.policy.ResizeToMatch(s.geometry.Width, s.geometry.Height)
	if !ok || (w == s.geometry.Width && h == s.geometry.Height) {
		return
	}
	s.setGeometry(aspect.Geometry{X: s.geometry.X, Y: s.geometry.Y, Width: w, Height: h})
	s.log.Debug().Int("width", w).Int("height", h).Msg("Overlay resized to source ratio")
}

// PointerPress implements surface.InputSink.
func (s *Session) PointerPress(p surface.Pointer) {
	if p.Button != surface.ButtonLeft {
		return
	}
	corner := aspect.HitTest(p.X, p.Y, s.geometry.Width, s.geometry.Height)
	s.drag = dragState{mode: dragMove, rootX: p.RootX, rootY: p.RootY}
	if corner != aspect.None {
		s.drag.mode = dragResize
		s.drag.corner = corner
	}
}

// PointerMotion implements surface.InputSink.
func (s *Session) PointerMotion(p surface.Pointer) {
	dx, dy := p.RootX-s.drag.rootX, p.RootY-s.drag.rootY
	switch s.drag.mode {
	case dragMove:
		s.setGeometry(aspect.Move(s.geometry, dx, dy))
	case dragResize:
		proposed := aspect.ProposeResize(s.drag.corner, s.geometry, dx, dy)
		s.setGeometry(s.policy.ConstrainResize(s.drag.corner, proposed, s.geometry))
	default:
		return
	}
	s.drag.rootX, s.drag.rootY = p.RootX, p.RootY
}

// PointerRelease implements surface.InputSink.
func (s *Session) PointerRelease(surface.Pointer) {
	s.drag = dragState{}
}

// Key implements surface.InputSink.
func (s *Session) Key(k surface.Key) {
	switch k {
	case surface.KeyOpacityUp:
		s.applyOpacity(s.currentOpacity() + OpacityStep)
	case surface.KeyOpacityDown:
		s.applyOpacity(s.currentOpacity() - OpacityStep)
	case surface.KeyOpacityReset:
		s.applyOpacity(MaxOpacity)
	case surface.KeyToggleTopmost:
		s.applyTopmost(!s.currentTopmost())
	case surface.KeyToggleAspect:
		s.policy.SetMaintainAspectRatio(!s.policy.MaintainAspectRatio())
	case surface.KeyToggleAutoResize:
		s.policy.SetAutoResize(!s.policy.AutoResize())
	case surface.KeyClose:
		s.Close()
	}
}

// CloseRequested implements surface.InputSink.
func (s *Session) CloseRequested() {
	s.Close()
}

func clampOpacity(v float64) float64 {
	v = math.Round(v*100) / 100
	return math.Min(MaxOpacity, math.Max(MinOpacity, v))
}

func (s *Session) currentOpacity() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opacity
}

func (s *Session) currentTopmost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topmost
}

// applyOpacity runs on the UI loop.
func (s *Session) applyOpacity(v float64) {
	v = clampOpacity(v)
	s.mu.Lock()
	s.opacity = v
	s.mu.Unlock()
	if s.surface != nil {
		s.surface.SetOpacity(v)
	}
}

// applyTopmost runs on the UI loop.
func (s *Session) applyTopmost(v bool) {
	s.mu.Lock()
	s.topmost = v
	s.mu.Unlock()
	if s.surface != nil {
		s.surface.SetTopmost(v)
	}
}

// SetOpacity clamps v to [0.1, 1.0] and applies it on the UI loop.
func (s *Session) SetOpacity(v float64) error {
	if s.State() >= Closing {
		return ErrClosed
	}
	s.dispatcher.Post(func() { s.applyOpacity(v) })
	return nil
}

// SetTopmost applies the always-on-top flag on the UI loop.
func (s *Session) SetTopmost(v bool) error {
	if s.State() >= Closing {
		return ErrClosed
	}
	s.dispatcher.Post(func() { s.applyTopmost(v) })
	return nil
}

// SetMaintainAspectRatio toggles ratio-constrained resizing.
func (s *Session) SetMaintainAspectRatio(v bool) {
	s.policy.SetMaintainAspectRatio(v)
}

// SetAutoResize toggles re-fitting the overlay when the source ratio changes.
func (s *Session) SetAutoResize(v bool) {
	s.policy.SetAutoResize(v)
}

// Info returns a snapshot for listings.
func (s *Session) Info() Info {
	s.mu.RLock()
	info := Info{
		ID:        s.id,
		Source:    s.src.Info(),
		State:     s.State().String(),
		Geometry:  s.view,
		Opacity:   s.opacity,
		Topmost:   s.topmost,
		CreatedAt: s.createdAt,
	}
	s.mu.RUnlock()

	info.MaintainAspectRatio = s.policy.MaintainAspectRatio()
	info.AutoResize = s.policy.AutoResize()
	if r, ok := s.policy.Ratio(); ok {
		info.AspectRatio = r
	}
	return info
}

// Close stops the capture loop, releases the surface on the UI loop and
// then notifies the owner. It is safe to call from any goroutine and more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.State() == Closed {
			return
		}
		s.state.Store(int32(Closing))
		s.running.Store(false)
		close(s.stop)

		release := func() {
			if s.surface != nil {
				s.surface.Close()
				s.surface = nil
			}
			s.state.Store(int32(Closed))
			s.log.Info().Msg("Session closed")
			if s.onClosed != nil {
				s.onClosed(s)
			}
			close(s.done)
		}
		if !s.dispatcher.Post(release) {
			release()
		}
	})
}
