package capture

import (
	"errors"
	"fmt"
	"image"

	kscreenshot "github.com/kbinani/screenshot"
	vscreenshot "github.com/vova616/screenshot"

	"github.com/bryanchriswhite/InfinitePIP/internal/source"
)

// Grabber copies a screen rectangle.
type Grabber interface {
	Name() string
	CaptureRect(r image.Rectangle) (*image.RGBA, error)
}

type kbinaniGrabber struct{}

func (kbinaniGrabber) Name() string { return "kbinani" }

func (kbinaniGrabber) CaptureRect(r image.Rectangle) (*image.RGBA, error) {
	return kscreenshot.CaptureRect(r)
}

type vovaGrabber struct{}

func (vovaGrabber) Name() string { return "vova616" }

func (vovaGrabber) CaptureRect(r image.Rectangle) (*image.RGBA, error) {
	return vscreenshot.CaptureRect(r)
}

// MultiScreen enumerates displays with kbinani/screenshot and grabs regions
// with the first grabber that succeeds.
type MultiScreen struct {
	grabbers []Grabber
}

// NewScreen returns the default screen: kbinani first, vova616 second.
func NewScreen(extra ...Grabber) *MultiScreen {
	g := []Grabber{kbinaniGrabber{}, vovaGrabber{}}
	return &MultiScreen{grabbers: append(g, extra...)}
}

// NewScreenWith uses exactly the given grabbers.
func NewScreenWith(grabbers ...Grabber) *MultiScreen {
	return &MultiScreen{grabbers: grabbers}
}

func (s *MultiScreen) NumDisplays() int {
	return kscreenshot.NumActiveDisplays()
}

func (s *MultiScreen) DisplayBounds(index int) source.Rect {
	b := kscreenshot.GetDisplayBounds(index)
	return source.Rect{X: b.Min.X, Y: b.Min.Y, Width: b.Dx(), Height: b.Dy()}
}

// Grab tries each grabber in order and returns the first frame.
func (s *MultiScreen) Grab(r source.Rect) (*image.RGBA, error) {
	if r.Empty() {
		return nil, fmt.Errorf("empty capture rectangle %dx%d", r.Width, r.Height)
	}
	rect := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)

	var errs []error
	for _, g := range s.grabbers {
		img, err := g.CaptureRect(rect)
		if err == nil && img != nil {
			return normalize(img), nil
		}
		if err == nil {
			err = errors.New("no image")
		}
		errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
	}
	return nil, errors.Join(errs...)
}

// normalize moves the image origin to (0,0) and forces opaque alpha.
func normalize(img *image.RGBA) *image.RGBA {
	if img.Rect.Min == (image.Point{}) {
		forceOpaque(img)
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy()))
	for y := 0; y < out.Rect.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+out.Rect.Dx()*4], img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y):])
	}
	forceOpaque(out)
	return out
}

func forceOpaque(img *image.RGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
}
