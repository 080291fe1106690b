// Package output serves session frames outside the overlay window. The
// MJPEG output lets a browser tab show a PIP when no display is available.
package output

import (
	"image"
)

// Output is a frame sink with its own lifecycle.
type Output interface {
	Start() error
	Stop() error

	// WriteFrame hands a frame to the output. It must not block.
	WriteFrame(frame *image.RGBA) error

	Name() string
	IsRunning() bool
}

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 90

// Config holds common configuration for all output types.
type Config struct {
	Quality int
}

func (c Config) quality() int {
	if c.Quality < 1 || c.Quality > 100 {
		return DefaultQuality
	}
	return c.Quality
}
