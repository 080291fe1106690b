package capture

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Placeholder frame dimensions and colours.
const (
	PlaceholderWidth  = 400
	PlaceholderHeight = 300
)

var (
	placeholderBackground = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	placeholderText       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Placeholder returns a 400×300 dark frame with text centered on it.
func Placeholder(text string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, PlaceholderWidth, PlaceholderHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderBackground}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(placeholderText),
		Face: face,
	}

	textWidth := d.MeasureString(text).Ceil()
	metrics := face.Metrics()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()

	x := (PlaceholderWidth - textWidth) / 2
	y := (PlaceholderHeight-textHeight)/2 + metrics.Ascent.Ceil()
	d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	d.DrawString(text)

	return img
}
