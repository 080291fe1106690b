// Package capture turns a source descriptor into one RGBA frame per call by
// walking an ordered list of platform strategies.
package capture

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/bryanchriswhite/InfinitePIP/internal/platform"
	"github.com/bryanchriswhite/InfinitePIP/internal/source"
	"github.com/bryanchriswhite/InfinitePIP/internal/window"
)

// ErrUnsupported is returned by backends that cannot run on this platform.
var ErrUnsupported = errors.New("window capture not supported on this platform")

// ClientAreaFloor is the size both client-area dimensions must exceed before
// the client area is preferred over the full window rectangle.
const ClientAreaFloor = 100

// Area selects which part of a window a backend copies.
type Area int

const (
	AreaClient Area = iota
	AreaFrame
)

// WindowState is what a backend knows about a native window handle.
type WindowState struct {
	Valid  bool
	Iconic bool
	// Frame is the full window rectangle including decorations.
	Frame source.Rect
	// Client is the content area in screen coordinates.
	Client source.Rect
}

// Backend captures windows by native handle.
type Backend interface {
	Name() string
	Inspect(handle uint64) (WindowState, error)
	// CaptureFull renders the window's full content, including occluded parts.
	CaptureFull(handle uint64, area Area, width, height int) (*image.RGBA, error)
	// CaptureCopy copies the window's pixels the legacy way.
	CaptureCopy(handle uint64, area Area, width, height int) (*image.RGBA, error)
	Close() error
}

// Screen grabs monitors and screen regions.
type Screen interface {
	NumDisplays() int
	DisplayBounds(index int) source.Rect
	Grab(r source.Rect) (*image.RGBA, error)
}

// Strategy is one capture attempt. ok reports success; a successful strategy
// ends the chain even if it returns a placeholder.
type Strategy struct {
	Name    string
	Capture func() (*image.RGBA, bool)
}

// Stats are cumulative capture counters.
type Stats struct {
	Frames       uint64 `json:"frames"`
	Placeholders uint64 `json:"placeholders"`
	Misses       uint64 `json:"misses"`
}

// FrameCapturer produces frames for any source kind.
type FrameCapturer struct {
	caps    platform.Capabilities
	screen  Screen
	backend Backend
	locator window.Locator

	frames       atomic.Uint64
	placeholders atomic.Uint64
	misses       atomic.Uint64
}

// Options wires the platform pieces into a FrameCapturer. Backend and
// Locator may be nil.
type Options struct {
	Screen  Screen
	Backend Backend
	Locator window.Locator
}

// New creates a FrameCapturer. A nil Screen uses the default grabber chain.
func New(caps platform.Capabilities, opts Options) *FrameCapturer {
	if opts.Screen == nil {
		opts.Screen = NewScreen()
	}
	if !caps.HasWindowCapture {
		opts.Backend = nil
	}
	return &FrameCapturer{
		caps:    caps,
		screen:  opts.Screen,
		backend: opts.Backend,
		locator: opts.Locator,
	}
}

// Capture returns the next frame for src, or nil when no frame is available.
// Strategy failures are logged and never returned.
func (c *FrameCapturer) Capture(src *source.Descriptor) *image.RGBA {
	if src == nil {
		return nil
	}

	var chain []Strategy
	switch src.Kind() {
	case source.Monitor:
		chain = c.monitorStrategies(src)
	case source.Window:
		chain = c.windowStrategies(src)
	case source.Region:
		chain = c.regionStrategies(src)
	}

	log := logger.WithComponent("capture")
	for _, s := range chain {
		img, ok := s.Capture()
		if !ok {
			log.Debug().Str("strategy", s.Name).Str("source", src.Name()).Msg("Strategy did not produce a frame")
			continue
		}
		if img == nil {
			c.misses.Add(1)
		} else {
			c.frames.Add(1)
		}
		return img
	}

	c.misses.Add(1)
	return nil
}

// Stats returns a snapshot of the capture counters.
func (c *FrameCapturer) Stats() Stats {
	return Stats{
		Frames:       c.frames.Load(),
		Placeholders: c.placeholders.Load(),
		Misses:       c.misses.Load(),
	}
}

// DeclaredSize is the size a source advertises before any frame is captured.
func (c *FrameCapturer) DeclaredSize(src *source.Descriptor) (int, int, bool) {
	var r source.Rect
	switch src.Kind() {
	case source.Monitor:
		if src.MonitorIndex() >= c.screen.NumDisplays() {
			return 0, 0, false
		}
		r = c.screen.DisplayBounds(src.MonitorIndex())
	case source.Window:
		r = src.Tracked()
		if r.Empty() && c.backend != nil && src.Handle() != 0 {
			if st, err := c.backend.Inspect(src.Handle()); err == nil && st.Valid {
				r, _ = chooseArea(st)
			}
		}
	case source.Region:
		r = src.Region()
	}
	if r.Empty() {
		return 0, 0, false
	}
	return r.Width, r.Height, true
}

func (c *FrameCapturer) placeholder(text string) *image.RGBA {
	c.placeholders.Add(1)
	return Placeholder(text)
}

func (c *FrameCapturer) monitorStrategies(src *source.Descriptor) []Strategy {
	return []Strategy{{
		Name: "monitor",
		Capture: func() (*image.RGBA, bool) {
			idx := src.MonitorIndex()
			if idx >= c.screen.NumDisplays() {
				// out of range is final: no frame
				return nil, true
			}
			img, err := c.screen.Grab(c.screen.DisplayBounds(idx))
			if err != nil {
				logger.WithComponent("capture").Debug().Err(err).Int("monitor", idx).Msg("Monitor grab failed")
				return nil, false
			}
			return img, true
		},
	}}
}

func (c *FrameCapturer) regionStrategies(src *source.Descriptor) []Strategy {
	return []Strategy{c.grabStrategy("region", src.Region)}
}

func (c *FrameCapturer) grabStrategy(name string, rect func() source.Rect) Strategy {
	return Strategy{
		Name: name,
		Capture: func() (*image.RGBA, bool) {
			r := rect()
			if r.Empty() {
				return nil, false
			}
			img, err := c.screen.Grab(r)
			if err != nil {
				logger.WithComponent("capture").Debug().Err(err).Str("strategy", name).Msg("Screen grab failed")
				return nil, false
			}
			return img, true
		},
	}
}

// chooseArea prefers the client area when both sides exceed ClientAreaFloor.
func chooseArea(st WindowState) (source.Rect, Area) {
	if st.Client.Width > ClientAreaFloor && st.Client.Height > ClientAreaFloor {
		return st.Client, AreaClient
	}
	return st.Frame, AreaFrame
}

func (c *FrameCapturer) windowStrategies(src *source.Descriptor) []Strategy {
	var chain []Strategy

	native := c.backend != nil && src.Handle() != 0
	if native {
		var (
			area   Area
			bounds source.Rect
		)
		handle := src.Handle()

		chain = append(chain,
			Strategy{
				Name: "inspect",
				Capture: func() (*image.RGBA, bool) {
					st, err := c.backend.Inspect(handle)
					if err != nil || !st.Valid {
						// the handle is gone for good; keep the overlay populated
						return c.placeholder("Window Unavailable"), true
					}
					bounds, area = chooseArea(st)
					if changed, resized := src.UpdateTracked(bounds); changed && resized {
						logger.WithComponent("capture").Debug().
							Int("width", bounds.Width).
							Int("height", bounds.Height).
							Msg("Window size changed")
					}
					if st.Iconic || bounds.Empty() {
						return c.placeholder("Window Minimized"), true
					}
					return nil, false
				},
			},
			Strategy{
				Name: "full-content",
				Capture: func() (*image.RGBA, bool) {
					img, err := c.backend.CaptureFull(handle, area, bounds.Width, bounds.Height)
					return img, err == nil && img != nil
				},
			},
			Strategy{
				Name: "block-copy",
				Capture: func() (*image.RGBA, bool) {
					img, err := c.backend.CaptureCopy(handle, area, bounds.Width, bounds.Height)
					return img, err == nil && img != nil
				},
			},
		)
	}

	// Without a usable handle the bounds are re-resolved by title first.
	name := "tracked-region"
	if !native {
		name = "title-tracking"
	}
	chain = append(chain, c.grabStrategy(name, func() source.Rect {
		if !native {
			c.retrack(src)
		}
		return src.Tracked()
	}))

	return chain
}

// retrack refreshes the tracked bounds by title lookup.
func (c *FrameCapturer) retrack(src *source.Descriptor) {
	if c.locator == nil || src.Title() == "" {
		return
	}
	info, err := c.locator.FindByTitle(src.Title())
	if err != nil {
		return
	}
	src.UpdateTracked(info.Bounds)
}

func (s Stats) String() string {
	return fmt.Sprintf("frames=%d placeholders=%d misses=%d", s.Frames, s.Placeholders, s.Misses)
}
