// Package surface defines the display side of a session: where fitted
// frames are shown and where pointer/keyboard input comes from. Every method
// is called on the UI loop only.
package surface

import (
	"errors"
	"image"

	"github.com/bryanchriswhite/InfinitePIP/internal/aspect"
)

// Surface shows fitted frames for one session.
type Surface interface {
	// Render shows a frame already sized to the current geometry.
	Render(img *image.RGBA)
	Apply(g aspect.Geometry)
	SetOpacity(opacity float64)
	SetTopmost(topmost bool)
	Close()
}

// Button identifies a pointer button.
type Button int

const (
	ButtonLeft   Button = 1
	ButtonMiddle Button = 2
	ButtonRight  Button = 3
)

// Key is a keyboard command understood by sessions.
type Key int

const (
	KeyUnknown Key = iota
	KeyOpacityUp
	KeyOpacityDown
	KeyOpacityReset
	KeyToggleTopmost
	KeyToggleAspect
	KeyToggleAutoResize
	KeyClose
)

// KeyForRune maps typed characters onto commands.
func KeyForRune(r rune) Key {
	switch r {
	case '+', '=':
		return KeyOpacityUp
	case '-', '_':
		return KeyOpacityDown
	case '0':
		return KeyOpacityReset
	case 't', 'T':
		return KeyToggleTopmost
	case 'a', 'A':
		return KeyToggleAspect
	case 'r', 'R':
		return KeyToggleAutoResize
	case 'q', 'Q', 0x1b:
		return KeyClose
	}
	return KeyUnknown
}

// Pointer is a pointer event position: X/Y inside the surface, RootX/RootY
// on the screen.
type Pointer struct {
	X, Y         int
	RootX, RootY int
	Button       Button
}

// InputSink receives input for one surface on the UI loop.
type InputSink interface {
	PointerPress(p Pointer)
	PointerMotion(p Pointer)
	PointerRelease(p Pointer)
	Key(k Key)
	// CloseRequested is sent when the user closes the surface externally.
	CloseRequested()
}

// Spec is what a factory needs to create a surface.
type Spec struct {
	ID       string
	Title    string
	Geometry aspect.Geometry
	Opacity  float64
	Topmost  bool
}

// Factory creates surfaces. Create is called on the UI loop.
type Factory interface {
	Create(spec Spec, sink InputSink) (Surface, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(spec Spec, sink InputSink) (Surface, error)

func (f FactoryFunc) Create(spec Spec, sink InputSink) (Surface, error) {
	return f(spec, sink)
}

// Multi fans every call out to several surfaces.
type Multi []Surface

func (m Multi) Render(img *image.RGBA) {
	for _, s := range m {
		s.Render(img)
	}
}

func (m Multi) Apply(g aspect.Geometry) {
	for _, s := range m {
		s.Apply(g)
	}
}

func (m Multi) SetOpacity(o float64) {
	for _, s := range m {
		s.SetOpacity(o)
	}
}

func (m Multi) SetTopmost(t bool) {
	for _, s := range m {
		s.SetTopmost(t)
	}
}

func (m Multi) Close() {
	for _, s := range m {
		s.Close()
	}
}

// Combine builds a factory that creates one surface from each of factories.
// Factories that fail are skipped; Combine fails only if all of them fail.
func Combine(factories ...Factory) Factory {
	return FactoryFunc(func(spec Spec, sink InputSink) (Surface, error) {
		var (
			out  Multi
			errs []error
		)
		for _, f := range factories {
			if f == nil {
				continue
			}
			s, err := f.Create(spec, sink)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			if len(errs) == 0 {
				return nil, errors.New("no surface factories configured")
			}
			return nil, errors.Join(errs...)
		}
		if len(out) == 1 {
			return out[0], nil
		}
		return out, nil
	})
}
