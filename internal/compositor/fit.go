// Package compositor fits captured frames onto an overlay canvas.
package compositor

import (
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
)

// CropRect returns the centered sub-rectangle of src that has the aspect of a
// tw×th target. The overflowing axis is trimmed symmetrically and neither side
// drops below one pixel.
func CropRect(src image.Rectangle, tw, th int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	sa := float64(sw) / float64(sh)
	ta := float64(tw) / float64(th)

	cw, ch := sw, sh
	if sa > ta {
		cw = min(sw, max(1, int(math.Round(float64(sh)*ta))))
	} else {
		ch = min(sh, max(1, int(math.Round(float64(sw)/ta))))
	}

	x := src.Min.X + (sw-cw)/2
	y := src.Min.Y + (sh-ch)/2
	return image.Rect(x, y, x+cw, y+ch)
}

// Fit returns a tw×th copy of src, center-cropped to the target aspect and
// scaled with Lanczos resampling. Only the cropped region is resampled, so
// the work is bounded by the source and target sizes whatever their aspects.
// It returns nil for empty input or non-positive targets.
func Fit(src image.Image, tw, th int) *image.RGBA {
	if src == nil || tw <= 0 || th <= 0 {
		return nil
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil
	}

	crop := CropRect(b, tw, th)
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	if crop.Dx() == tw && crop.Dy() == th {
		draw.Draw(dst, dst.Bounds(), src, crop.Min, draw.Src)
		return dst
	}

	scaled := imaging.Resize(imaging.Crop(src, crop), tw, th, imaging.Lanczos)
	draw.Draw(dst, dst.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	return dst
}
