// Package aspect holds the overlay geometry rules: aspect ratio tracking,
// interactive resize constraints and the minimum overlay size.
package aspect

import (
	"math"
	"sync"
)

const (
	// RatioNoise is the smallest ratio change treated as a real source change.
	RatioNoise = 0.01
	// AxisSwitch is the relative height change above which ResizeToMatch
	// keeps the height and derives the width instead.
	AxisSwitch = 0.5
)

// Policy tracks a session's source ratio and resize toggles. The capture
// loop reports observed sizes while the UI loop applies constraints, so all
// state is guarded.
type Policy struct {
	mu         sync.RWMutex
	ratio      float64
	known      bool
	maintain   bool
	autoResize bool
}

// NewPolicy creates a policy with no known ratio.
func NewPolicy(maintain, autoResize bool) *Policy {
	return &Policy{maintain: maintain, autoResize: autoResize}
}

// Ratio returns the tracked ratio, false until the first sample.
func (p *Policy) Ratio() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ratio, p.known
}

// SetRatio seeds the ratio from a declared source size.
func (p *Policy) SetRatio(w, h int) bool {
	r, ok := RatioOf(w, h)
	if !ok {
		return false
	}
	p.mu.Lock()
	p.ratio, p.known = r, true
	p.mu.Unlock()
	return true
}

func (p *Policy) MaintainAspectRatio() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maintain
}

func (p *Policy) SetMaintainAspectRatio(v bool) {
	p.mu.Lock()
	p.maintain = v
	p.mu.Unlock()
}

func (p *Policy) AutoResize() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoResize
}

func (p *Policy) SetAutoResize(v bool) {
	p.mu.Lock()
	p.autoResize = v
	p.mu.Unlock()
}

// OnObservedSize records a newly captured source size. Ratio changes of
// RatioNoise or less are ignored. It returns true when the overlay should be
// re-fitted with ResizeToMatch.
func (p *Policy) OnObservedSize(w, h int) bool {
	r, ok := RatioOf(w, h)
	if !ok {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.known && math.Abs(r-p.ratio) <= RatioNoise {
		return false
	}
	p.ratio, p.known = r, true
	return p.autoResize && p.maintain
}

// ResizeToMatch recomputes overlay dimensions for the tracked ratio. The
// width is kept unless that would change the height by more than half, in
// which case the height is kept and the width derived.
func (p *Policy) ResizeToMatch(curW, curH int) (int, int, bool) {
	r, ok := p.Ratio()
	if !ok {
		return curW, curH, false
	}

	w, h := fromWidth(curW, r)
	if math.Abs(float64(h-curH)) > float64(curH)*AxisSwitch {
		w, h = fromHeight(curH, r)
	}
	return w, h, true
}

// ConstrainResize applies the ratio to a proposed drag geometry. The handle
// decides the driving axis; for corners the axis that moved further drives.
// The edge opposite the handle never moves. Without a ratio, or with
// maintain-aspect off, proposed is returned unchanged.
func (p *Policy) ConstrainResize(c Corner, proposed, prev Geometry) Geometry {
	p.mu.RLock()
	r, known, maintain := p.ratio, p.known, p.maintain
	p.mu.RUnlock()

	if !maintain || !known {
		return proposed
	}

	var w, h int
	switch {
	case c.Horizontal():
		w, h = fromWidth(proposed.Width, r)
	case c.Vertical():
		w, h = fromHeight(proposed.Height, r)
	default:
		dw := math.Abs(float64(proposed.Width - prev.Width))
		dh := math.Abs(float64(proposed.Height - prev.Height))
		if dw > dh {
			w, h = fromWidth(proposed.Width, r)
		} else {
			w, h = fromHeight(proposed.Height, r)
		}
	}

	g := Geometry{X: proposed.X, Y: proposed.Y, Width: w, Height: h}
	if c.HasNorth() {
		g.Y = prev.Y - (h - prev.Height)
	}
	if c.HasWest() {
		g.X = prev.X - (w - prev.Width)
	}
	return g
}
