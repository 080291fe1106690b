package compositor

import (
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestFitOutputSizeIsTarget(t *testing.T) {
	sources := [][2]int{{1920, 1080}, {1080, 1920}, {640, 480}, {1, 1}, {40, 200}, {200, 40}}
	targets := [][2]int{{400, 225}, {200, 150}, {300, 600}, {1, 1}, {517, 313}}

	for _, s := range sources {
		src := solid(s[0], s[1], color.RGBA{200, 10, 10, 255})
		for _, tg := range targets {
			out := Fit(src, tg[0], tg[1])
			if out == nil {
				t.Fatalf("Fit(%v, %v) returned nil", s, tg)
			}
			if out.Bounds().Dx() != tg[0] || out.Bounds().Dy() != tg[1] {
				t.Fatalf("Fit(%v, %v) size = %v", s, tg, out.Bounds())
			}
			w, h := tg[0]-1, tg[1]-1
			for _, p := range [][2]int{{0, 0}, {w, 0}, {0, h}, {w, h}} {
				if a := out.RGBAAt(p[0], p[1]).A; a != 255 {
					t.Fatalf("Fit(%v, %v) left pixel %v uncovered", s, tg, p)
				}
			}
		}
	}
}

func TestCropRectMatchingAspectKeepsSource(t *testing.T) {
	cases := [][4]int{
		{1920, 1080, 400, 225},
		{800, 600, 400, 300},
		{1000, 1000, 250, 250},
		{400, 300, 400, 300},
	}
	for _, c := range cases {
		src := image.Rect(0, 0, c[0], c[1])
		if got := CropRect(src, c[2], c[3]); got != src {
			t.Fatalf("CropRect(%v) = %v, want whole source", c, got)
		}
	}
}

func TestCropRectTrimsOverflowingAxis(t *testing.T) {
	// wide source on a square target: height kept, width trimmed
	if got, want := CropRect(image.Rect(0, 0, 1600, 900), 300, 300), image.Rect(350, 0, 1250, 900); got != want {
		t.Fatalf("wide: %v, want %v", got, want)
	}
	// tall source on a square target: width kept, height trimmed
	if got, want := CropRect(image.Rect(0, 0, 900, 1600), 300, 300), image.Rect(0, 350, 900, 1250); got != want {
		t.Fatalf("tall: %v, want %v", got, want)
	}
	// offset source bounds are respected
	if got, want := CropRect(image.Rect(100, 50, 400, 150), 100, 100), image.Rect(200, 50, 300, 150); got != want {
		t.Fatalf("offset: %v, want %v", got, want)
	}
}

func TestFitExtremeAspectStaysBounded(t *testing.T) {
	cases := []struct {
		src, target [2]int
	}{
		{[2]int{1, 4000}, [2]int{200, 150}},
		{[2]int{4000, 1}, [2]int{150, 200}},
		{[2]int{2, 20000}, [2]int{800, 600}},
	}
	for _, tc := range cases {
		b := image.Rect(0, 0, tc.src[0], tc.src[1])
		crop := CropRect(b, tc.target[0], tc.target[1])
		if !crop.In(b) || crop.Empty() {
			t.Fatalf("CropRect(%v, %v) = %v outside source", tc.src, tc.target, crop)
		}

		out := Fit(solid(tc.src[0], tc.src[1], color.RGBA{10, 200, 10, 255}), tc.target[0], tc.target[1])
		if out == nil || out.Bounds().Dx() != tc.target[0] || out.Bounds().Dy() != tc.target[1] {
			t.Fatalf("Fit(%v, %v) = %v", tc.src, tc.target, out.Bounds())
		}
		if c := out.RGBAAt(tc.target[0]/2, tc.target[1]/2); c.G < 150 || c.A != 255 {
			t.Fatalf("Fit(%v, %v) center = %v", tc.src, tc.target, c)
		}
	}
}

func TestFitCentersCrop(t *testing.T) {
	// left third red, middle third green, right third blue
	src := image.NewRGBA(image.Rect(0, 0, 300, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 300; x++ {
			c := color.RGBA{255, 0, 0, 255}
			if x >= 100 && x < 200 {
				c = color.RGBA{0, 255, 0, 255}
			} else if x >= 200 {
				c = color.RGBA{0, 0, 255, 255}
			}
			src.SetRGBA(x, y, c)
		}
	}

	out := Fit(src, 100, 100)
	mid := out.RGBAAt(50, 50)
	if mid.G < 200 || mid.R > 50 || mid.B > 50 {
		t.Fatalf("center pixel = %v, want green", mid)
	}
}

func TestFitRejectsInvalid(t *testing.T) {
	if Fit(nil, 10, 10) != nil {
		t.Fatal("nil source")
	}
	src := solid(10, 10, color.RGBA{A: 255})
	if Fit(src, 0, 10) != nil || Fit(src, 10, -1) != nil {
		t.Fatal("non-positive target")
	}
	if Fit(image.NewRGBA(image.Rect(0, 0, 0, 5)), 10, 10) != nil {
		t.Fatal("empty source")
	}
}
