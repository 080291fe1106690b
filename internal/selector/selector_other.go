//go:build !linux

package selector

import (
	"context"

	"github.com/bryanchriswhite/InfinitePIP/internal/display"
)

type unsupported struct{}

// New returns a selector that always fails on this platform.
func New() Selector {
	return unsupported{}
}

func (unsupported) Select(context.Context) <-chan Result {
	return resolved(Result{Err: display.ErrUnavailable})
}
