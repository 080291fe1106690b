// Package selector lets the user drag out a screen rectangle that becomes
// a Region source. A selection is a single-shot result delivered on a
// channel.
package selector

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/InfinitePIP/internal/source"
)

var (
	// ErrSelectionTooSmall is returned for rectangles under MinSize.
	ErrSelectionTooSmall = errors.New("selection too small")
	// ErrCancelled is returned when the user aborts or ctx ends.
	ErrCancelled = errors.New("selection cancelled")
)

// MinSize is the smallest accepted width and height in pixels.
const MinSize = 10

// Result is the outcome of one selection.
type Result struct {
	Rect   source.Rect
	Source *source.Descriptor
	Err    error
}

// Selector runs an interactive selection. The returned channel yields
// exactly one Result and is then closed.
type Selector interface {
	Select(ctx context.Context) <-chan Result
}

// Normalize turns two drag corners into a rectangle with positive size.
func Normalize(x0, y0, x1, y1 int) source.Rect {
	return source.Rect{
		X:      min(x0, x1),
		Y:      min(y0, y1),
		Width:  max(x0, x1) - min(x0, x1),
		Height: max(y0, y1) - min(y0, y1),
	}
}

// Finish validates r and maps it onto a Region source.
func Finish(r source.Rect) Result {
	if r.Width < MinSize || r.Height < MinSize {
		return Result{
			Rect: r,
			Err:  fmt.Errorf("%w: %dx%d, need at least %dx%d", ErrSelectionTooSmall, r.Width, r.Height, MinSize, MinSize),
		}
	}
	src, err := source.NewRegion(r.X, r.Y, r.Width, r.Height)
	return Result{Rect: r, Source: src, Err: err}
}

// resolved returns a closed channel holding r.
func resolved(r Result) <-chan Result {
	ch := make(chan Result, 1)
	ch <- r
	close(ch)
	return ch
}

// Await blocks for the result of s.Select.
func Await(ctx context.Context, s Selector) (*source.Descriptor, error) {
	select {
	case r := <-s.Select(ctx):
		return r.Source, r.Err
	case <-ctx.Done():
		return nil, ErrCancelled
	}
}
