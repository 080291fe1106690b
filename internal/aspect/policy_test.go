package aspect

import (
	"math"
	"testing"
)

func TestComputeInitial(t *testing.T) {
	cases := []struct {
		name  string
		ratio float64
		w, h  int
	}{
		{"1080p", 1920.0 / 1080.0, 400, 225},
		{"4:3", 4.0 / 3.0, 400, 300},
		{"ultrawide hits height floor", 4.0, 600, 150},
		{"unknown ratio", 0, 400, 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h := ComputeInitial(tc.ratio)
			if w != tc.w || h != tc.h {
				t.Fatalf("ComputeInitial(%v) = %dx%d, want %dx%d", tc.ratio, w, h, tc.w, tc.h)
			}
		})
	}
}

func TestEastDragScenario(t *testing.T) {
	p := NewPolicy(true, true)
	p.SetRatio(1920, 1080)

	w, h := ComputeInitial(1920.0 / 1080.0)
	prev := Geometry{X: 100, Y: 50, Width: w, Height: h}

	proposed := ProposeResize(East, prev, 400, 0)
	if proposed.Width != 800 {
		t.Fatalf("proposed width = %d", proposed.Width)
	}

	got := p.ConstrainResize(East, proposed, prev)
	want := Geometry{X: 100, Y: 50, Width: 800, Height: 450}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestEastDragDerivesHeight(t *testing.T) {
	ratios := []float64{0.5, 1, 4.0 / 3.0, 16.0 / 9.0, 2.39, 5}
	for _, r := range ratios {
		p := &Policy{ratio: r, known: true, maintain: true}
		prev := Geometry{X: 10, Y: 20, Width: 400, Height: 300}
		for dx := -300; dx <= 1600; dx += 7 {
			proposed := ProposeResize(East, prev, dx, 0)
			g := p.ConstrainResize(East, proposed, prev)

			if g.X != prev.X || g.Y != prev.Y {
				t.Fatalf("ratio %v dx %d: origin moved to (%d,%d)", r, dx, g.X, g.Y)
			}
			if g.Height != int(math.Round(float64(g.Width)/r)) && g.Height != MinHeight {
				t.Fatalf("ratio %v dx %d: %dx%d does not follow the ratio", r, dx, g.Width, g.Height)
			}
			if g.Width < MinWidth || g.Height < MinHeight {
				t.Fatalf("ratio %v dx %d: %dx%d below minimum", r, dx, g.Width, g.Height)
			}
		}
	}
}

func TestConstrainRederivesTheDraggedAxis(t *testing.T) {
	p := NewPolicy(true, true)
	p.SetRatio(1920, 1080)
	prev := Geometry{X: 0, Y: 0, Width: 400, Height: 225}

	cases := []struct {
		name     string
		corner   Corner
		proposed Geometry
		w, h     int
	}{
		{"east snaps width", East, Geometry{Width: 801, Height: 225}, 802, 451},
		{"east exact", East, Geometry{Width: 800, Height: 225}, 800, 450},
		{"south derives width", South, Geometry{Width: 400, Height: 452}, 804, 452},
		{"south exact", South, Geometry{Width: 400, Height: 450}, 800, 450},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := p.ConstrainResize(tc.corner, tc.proposed, prev)
			if g.Width != tc.w || g.Height != tc.h {
				t.Fatalf("got %dx%d, want %dx%d", g.Width, g.Height, tc.w, tc.h)
			}
		})
	}
}

func TestMinimumSizeInvariant(t *testing.T) {
	corners := []Corner{North, South, East, West, NorthEast, NorthWest, SouthEast, SouthWest}
	ratios := []float64{0.2, 0.5, 0.75, 1, 4.0 / 3.0, 16.0 / 9.0, 3, 8}
	prev := Geometry{X: 0, Y: 0, Width: 400, Height: 300}

	for _, r := range ratios {
		p := &Policy{ratio: r, known: true, maintain: true}
		for _, c := range corners {
			for w := 1; w <= 1200; w += 37 {
				for h := 1; h <= 900; h += 41 {
					g := p.ConstrainResize(c, Geometry{Width: w, Height: h}, prev)
					if g.Width < MinWidth || g.Height < MinHeight {
						t.Fatalf("ratio %v corner %s proposed %dx%d -> %dx%d", r, c, w, h, g.Width, g.Height)
					}
				}
			}
		}
		for w := MinWidth; w <= 1600; w += 53 {
			for h := MinHeight; h <= 1200; h += 47 {
				nw, nh, ok := p.ResizeToMatch(w, h)
				if !ok || nw < MinWidth || nh < MinHeight {
					t.Fatalf("ResizeToMatch ratio %v %dx%d -> %dx%d", r, w, h, nw, nh)
				}
			}
		}
	}
}

func TestConstrainKeepsOppositeEdgeFixed(t *testing.T) {
	p := NewPolicy(true, false)
	p.SetRatio(1600, 900)
	prev := Geometry{X: 100, Y: 100, Width: 400, Height: 225}

	proposed := ProposeResize(NorthWest, prev, -100, -10)
	g := p.ConstrainResize(NorthWest, proposed, prev)

	if g.Width != 500 || g.Height != 281 {
		t.Fatalf("size = %dx%d, want 500x281", g.Width, g.Height)
	}
	if g.X+g.Width != prev.X+prev.Width {
		t.Fatalf("right edge moved: %d != %d", g.X+g.Width, prev.X+prev.Width)
	}
	if g.Y+g.Height != prev.Y+prev.Height {
		t.Fatalf("bottom edge moved: %d != %d", g.Y+g.Height, prev.Y+prev.Height)
	}
}

func TestConstrainCornerPicksLargerChange(t *testing.T) {
	p := NewPolicy(true, false)
	p.SetRatio(1600, 900)
	prev := Geometry{Width: 400, Height: 225}

	// height moved further: width follows height
	g := p.ConstrainResize(SouthEast, Geometry{Width: 410, Height: 360}, prev)
	if g.Height != 360 || g.Width != 640 {
		t.Fatalf("got %dx%d, want 640x360", g.Width, g.Height)
	}
}

func TestConstrainPassThrough(t *testing.T) {
	proposed := Geometry{X: 1, Y: 2, Width: 333, Height: 444}
	prev := Geometry{Width: 400, Height: 300}

	off := NewPolicy(false, true)
	off.SetRatio(16, 9)
	if g := off.ConstrainResize(East, proposed, prev); g != proposed {
		t.Fatalf("maintain off: got %+v", g)
	}

	unknown := NewPolicy(true, true)
	if g := unknown.ConstrainResize(East, proposed, prev); g != proposed {
		t.Fatalf("no ratio: got %+v", g)
	}
}

func TestOnObservedSizeNoise(t *testing.T) {
	p := NewPolicy(true, true)
	p.SetRatio(1280, 720)

	if p.OnObservedSize(1281, 720) {
		t.Fatal("ratio change of ~0.0014 triggered a resize")
	}
	if r, _ := p.Ratio(); r != 1280.0/720.0 {
		t.Fatalf("ratio updated by noise: %v", r)
	}

	if !p.OnObservedSize(1280, 960) {
		t.Fatal("ratio change of ~0.44 did not trigger a resize")
	}
	if r, _ := p.Ratio(); r != 1280.0/960.0 {
		t.Fatalf("ratio = %v", r)
	}
}

func TestOnObservedSizeToggles(t *testing.T) {
	p := NewPolicy(true, false)
	if p.OnObservedSize(800, 600) {
		t.Fatal("auto-resize off still signalled")
	}
	if _, ok := p.Ratio(); !ok {
		t.Fatal("first sample did not set ratio")
	}

	p.SetAutoResize(true)
	p.SetMaintainAspectRatio(false)
	if p.OnObservedSize(1920, 1080) {
		t.Fatal("maintain-aspect off still signalled")
	}
	if p.OnObservedSize(0, 100) {
		t.Fatal("zero width accepted")
	}
}

func TestResizeToMatch(t *testing.T) {
	p := NewPolicy(true, true)
	if _, _, ok := p.ResizeToMatch(400, 300); ok {
		t.Fatal("resized without ratio")
	}

	p.SetRatio(1600, 900)
	w, h, _ := p.ResizeToMatch(400, 300)
	if w != 400 || h != 225 {
		t.Fatalf("landscape: %dx%d, want 400x225", w, h)
	}

	// Portrait swing would more than double the height: keep height instead.
	p.SetRatio(900, 1600)
	w, h, _ = p.ResizeToMatch(400, 225)
	if w != 200 || h != 356 {
		t.Fatalf("portrait: %dx%d, want 200x356", w, h)
	}
}

func TestHitTest(t *testing.T) {
	cases := []struct {
		x, y int
		want Corner
	}{
		{395, 295, SouthEast},
		{5, 295, SouthWest},
		{395, 5, NorthEast},
		{5, 5, NorthWest},
		{200, 5, North},
		{200, 10, North},
		{200, 11, None},
		{200, 295, South},
		{395, 150, East},
		{5, 150, West},
		{200, 150, None},
	}
	for _, tc := range cases {
		if got := HitTest(tc.x, tc.y, 400, 300); got != tc.want {
			t.Fatalf("HitTest(%d,%d) = %q, want %q", tc.x, tc.y, got, tc.want)
		}
	}
}

func TestProposeResizeFloorsAndAnchors(t *testing.T) {
	prev := Geometry{X: 100, Y: 100, Width: 400, Height: 300}

	g := ProposeResize(West, prev, 500, 0)
	if g.Width != MinWidth || g.X+g.Width != 500 {
		t.Fatalf("west floor: %+v", g)
	}
	g = ProposeResize(North, prev, 0, 1000)
	if g.Height != MinHeight || g.Y+g.Height != 400 {
		t.Fatalf("north floor: %+v", g)
	}
	g = Move(prev, -20, 30)
	if g != (Geometry{X: 80, Y: 130, Width: 400, Height: 300}) {
		t.Fatalf("move: %+v", g)
	}
}
