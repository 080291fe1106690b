// Package display shows session frames in borderless always-on-top overlay
// windows and feeds their pointer and keyboard input back to sessions.
package display

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrUnavailable is returned when no display server can be reached.
var ErrUnavailable = errors.New("display unavailable")

// putImageHeader is the fixed size of a PutImage request in bytes.
const putImageHeader = 24

// encodePixels converts img into ZPixmap rows for the server: BGR(X) byte
// order, each row padded to scanlinePad bits. It returns the data and the
// row stride in bytes.
func encodePixels(img *image.RGBA, bytesPerPixel, scanlinePad int, keepAlpha bool) ([]byte, int, error) {
	if bytesPerPixel != 3 && bytesPerPixel != 4 {
		return nil, 0, fmt.Errorf("unsupported bytes per pixel: %d", bytesPerPixel)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	padBytes := max(1, scanlinePad/8)
	stride := ((w*bytesPerPixel + padBytes - 1) / padBytes) * padBytes

	data := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		src := img.PixOffset(b.Min.X, b.Min.Y+y)
		dst := y * stride
		for x := 0; x < w; x++ {
			s := src + x*4
			d := dst + x*bytesPerPixel
			data[d] = img.Pix[s+2]
			data[d+1] = img.Pix[s+1]
			data[d+2] = img.Pix[s]
			if bytesPerPixel == 4 && keepAlpha {
				data[d+3] = img.Pix[s+3]
			}
		}
	}
	return data, stride, nil
}

// band is a half-open row range sent in one PutImage request.
type band struct {
	start, end int
}

// splitRows divides height rows of stride bytes into bands that each fit
// in a request of at most maxRequest bytes.
func splitRows(height, stride, maxRequest int) []band {
	if height <= 0 || stride <= 0 {
		return nil
	}
	rows := max(1, (maxRequest-putImageHeader)/stride)
	out := make([]band, 0, (height+rows-1)/rows)
	for y := 0; y < height; y += rows {
		out = append(out, band{start: y, end: min(height, y+rows)})
	}
	return out
}

// opacityCardinal is the _NET_WM_WINDOW_OPACITY value for o in [0,1].
func opacityCardinal(o float64) uint32 {
	o = math.Min(1, math.Max(0, o))
	return uint32(math.Round(o * math.MaxUint32))
}

// Keysyms outside Latin-1 that map onto session shortcuts.
const (
	keysymEscape      = 0xff1b
	keysymKPAdd       = 0xffab
	keysymKPSubtract  = 0xffad
	keysymKP0         = 0xffb0
	keysymKPEqual     = 0xffbd
	keysymLatin1Limit = 0x100
)

// keysymRune maps an X keysym onto the rune understood by
// surface.KeyForRune, or 0.
func keysymRune(sym uint32) rune {
	switch sym {
	case keysymEscape:
		return 0x1b
	case keysymKPAdd:
		return '+'
	case keysymKPSubtract:
		return '-'
	case keysymKP0:
		return '0'
	case keysymKPEqual:
		return '='
	}
	if sym >= 0x20 && sym < keysymLatin1Limit {
		return rune(sym)
	}
	return 0
}

// fitCanvas returns img when it already has size w×h, otherwise a copy
// cropped or padded to w×h anchored at the top-left.
func fitCanvas(img *image.RGBA, w, h int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	rows := min(h, b.Dy())
	cols := min(w, b.Dx())
	for y := 0; y < rows; y++ {
		src := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+cols*4], img.Pix[src:src+cols*4])
	}
	return out
}
