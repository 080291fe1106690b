package aspect

import "math"

// Overlay size limits and interaction zones.
const (
	MinWidth      = 200
	MinHeight     = 150
	InitialWidth  = 400
	InitialHeight = 300

	CornerZone = 20
	EdgeZone   = 10
)

// Geometry is an overlay window's bounds in root-window coordinates.
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Corner names the edge or corner grabbed for a resize.
type Corner string

const (
	None      Corner = ""
	North     Corner = "n"
	South     Corner = "s"
	East      Corner = "e"
	West      Corner = "w"
	NorthEast Corner = "ne"
	NorthWest Corner = "nw"
	SouthEast Corner = "se"
	SouthWest Corner = "sw"
)

func (c Corner) has(r byte) bool {
	for i := 0; i < len(c); i++ {
		if c[i] == r {
			return true
		}
	}
	return false
}

// HasNorth reports whether the top edge moves.
func (c Corner) HasNorth() bool { return c.has('n') }

// HasSouth reports whether the bottom edge moves.
func (c Corner) HasSouth() bool { return c.has('s') }

// HasEast reports whether the right edge moves.
func (c Corner) HasEast() bool { return c.has('e') }

// HasWest reports whether the left edge moves.
func (c Corner) HasWest() bool { return c.has('w') }

// Horizontal is true for the pure east/west handles.
func (c Corner) Horizontal() bool { return c == East || c == West }

// Vertical is true for the pure north/south handles.
func (c Corner) Vertical() bool { return c == North || c == South }

// HitTest maps a pointer position inside a w×h window onto a resize handle.
// Corner zones are checked before edge zones.
func HitTest(x, y, w, h int) Corner {
	switch {
	case x >= w-CornerZone && y >= h-CornerZone:
		return SouthEast
	case x <= CornerZone && y >= h-CornerZone:
		return SouthWest
	case x >= w-CornerZone && y <= CornerZone:
		return NorthEast
	case x <= CornerZone && y <= CornerZone:
		return NorthWest
	case y <= EdgeZone:
		return North
	case y >= h-EdgeZone:
		return South
	case x >= w-EdgeZone:
		return East
	case x <= EdgeZone:
		return West
	}
	return None
}

// ProposeResize applies a pointer delta to prev for the grabbed handle. The
// edge opposite the handle stays fixed and the minimum size is enforced.
func ProposeResize(c Corner, prev Geometry, dx, dy int) Geometry {
	g := prev
	switch {
	case c.HasEast():
		g.Width = max(MinWidth, prev.Width+dx)
	case c.HasWest():
		g.Width = max(MinWidth, prev.Width-dx)
		g.X = prev.X + prev.Width - g.Width
	}
	switch {
	case c.HasSouth():
		g.Height = max(MinHeight, prev.Height+dy)
	case c.HasNorth():
		g.Height = max(MinHeight, prev.Height-dy)
		g.Y = prev.Y + prev.Height - g.Height
	}
	return g
}

// Move offsets a geometry without touching its size.
func Move(prev Geometry, dx, dy int) Geometry {
	prev.X += dx
	prev.Y += dy
	return prev
}

func round(f float64) int {
	return int(math.Round(f))
}

// fromWidth derives the height for width w at ratio r, then re-derives the
// width from that height so the pair sits as close to r as the pixel grid
// allows. The re-derived width is kept only while height == round(width/r)
// still holds. When a floor is hit the other axis is re-derived from it.
func fromWidth(w int, r float64) (int, int) {
	w = max(MinWidth, w)
	h := round(float64(w) / r)
	if h < MinHeight {
		h = MinHeight
		w = round(float64(h) * r)
	} else if rw := round(float64(h) * r); rw >= MinWidth && round(float64(rw)/r) == h {
		w = rw
	}
	if w < MinWidth {
		w = MinWidth
		h = max(MinHeight, round(float64(w)/r))
	}
	return w, h
}

// fromHeight derives the width for height h at ratio r, with the same
// re-derivation as fromWidth.
func fromHeight(h int, r float64) (int, int) {
	h = max(MinHeight, h)
	w := round(float64(h) * r)
	if w < MinWidth {
		w = MinWidth
		h = round(float64(w) / r)
	} else if rh := round(float64(w) / r); rh >= MinHeight && round(float64(rh)*r) == w {
		h = rh
	}
	if h < MinHeight {
		h = MinHeight
		w = max(MinWidth, round(float64(h)*r))
	}
	return w, h
}

// RatioOf returns w/h, or false when either side is not positive.
func RatioOf(w, h int) (float64, bool) {
	if w <= 0 || h <= 0 {
		return 0, false
	}
	return float64(w) / float64(h), true
}

// ComputeInitial sizes a new overlay from a declared source ratio: 400 px
// wide, or 150 px tall with the width re-derived when the height floor is hit.
// Without a ratio the default 400×300 is used.
func ComputeInitial(ratio float64) (int, int) {
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return InitialWidth, InitialHeight
	}
	return fromWidth(InitialWidth, ratio)
}
