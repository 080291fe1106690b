// Package source describes what a PIP session captures: a monitor, an
// application window or a fixed screen region.
package source

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	// ErrInvalidRegion is returned for non-numeric or non-positive region input.
	ErrInvalidRegion = errors.New("invalid region")
	// ErrInvalidSource is returned when a descriptor cannot identify anything.
	ErrInvalidSource = errors.New("invalid source")
)

// Kind identifies the populated variant of a Descriptor.
type Kind int

const (
	Monitor Kind = iota + 1
	Window
	Region
)

func (k Kind) String() string {
	switch k {
	case Monitor:
		return "monitor"
	case Window:
		return "window"
	case Region:
		return "region"
	default:
		return "unknown"
	}
}

// Rect is a screen rectangle in pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the rectangle has no capturable area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// SameSize reports whether two rectangles have equal dimensions.
func (r Rect) SameSize(o Rect) bool {
	return r.Width == o.Width && r.Height == o.Height
}

// Descriptor is a tagged union over the three source kinds. Only the
// constructors below produce valid values; the zero value is invalid.
//
// The window variant carries a tracked bounding box that the capturer
// updates every tick, so Descriptors are always passed by pointer.
type Descriptor struct {
	kind Kind

	monitor int

	handle uint64
	title  string

	region Rect

	mu      sync.Mutex
	tracked Rect
}

// NewMonitor describes the monitor at a 0-based index.
func NewMonitor(index int) (*Descriptor, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: monitor index %d", ErrInvalidSource, index)
	}
	return &Descriptor{kind: Monitor, monitor: index}, nil
}

// NewWindow describes an application window. handle may be zero when only
// the title is known; bbox seeds the tracked bounds.
func NewWindow(handle uint64, title string, bbox Rect) (*Descriptor, error) {
	if handle == 0 && strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: window needs a handle or a title", ErrInvalidSource)
	}
	return &Descriptor{kind: Window, handle: handle, title: title, tracked: bbox}, nil
}

// NewRegion describes a fixed screen rectangle.
func NewRegion(x, y, width, height int) (*Descriptor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width and height must be positive (got %dx%d)", ErrInvalidRegion, width, height)
	}
	return &Descriptor{kind: Region, region: Rect{X: x, Y: y, Width: width, Height: height}}, nil
}

// ParseRegion validates user-entered region fields.
func ParseRegion(x, y, width, height string) (*Descriptor, error) {
	vals := make([]int, 4)
	for i, s := range []string{x, y, width, height} {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidRegion, s)
		}
		vals[i] = n
	}
	return NewRegion(vals[0], vals[1], vals[2], vals[3])
}

// ParseRegionSpec parses "x,y,width,height".
func ParseRegionSpec(spec string) (*Descriptor, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: expected x,y,width,height", ErrInvalidRegion)
	}
	return ParseRegion(parts[0], parts[1], parts[2], parts[3])
}

func (d *Descriptor) Kind() Kind { return d.kind }

// MonitorIndex is the 0-based monitor index of a Monitor source.
func (d *Descriptor) MonitorIndex() int { return d.monitor }

// Handle is the native window handle, zero if unknown.
func (d *Descriptor) Handle() uint64 { return d.handle }

func (d *Descriptor) Title() string { return d.title }

// Region is the fixed rectangle of a Region source.
func (d *Descriptor) Region() Rect { return d.region }

// Tracked returns the window's last known bounds.
func (d *Descriptor) Tracked() Rect {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracked
}

// UpdateTracked stores new window bounds. It reports whether anything changed
// and whether the size (not just the position) changed.
func (d *Descriptor) UpdateTracked(r Rect) (changed, resized bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r == d.tracked {
		return false, false
	}
	resized = !r.SameSize(d.tracked)
	d.tracked = r
	return true, resized
}

// Name is a short human label for titles and listings.
func (d *Descriptor) Name() string {
	switch d.kind {
	case Monitor:
		return fmt.Sprintf("Monitor %d", d.monitor+1)
	case Window:
		title := d.title
		if utf8.RuneCountInString(title) > 30 {
			title = string([]rune(title)[:30]) + "..."
		}
		if title == "" {
			title = fmt.Sprintf("0x%x", d.handle)
		}
		return "Window: " + title
	case Region:
		return fmt.Sprintf("Region (%d, %d)", d.region.X, d.region.Y)
	default:
		return "Unknown"
	}
}

// Info is a serializable snapshot of a descriptor.
type Info struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Monitor *int   `json:"monitor,omitempty"`
	Handle  uint64 `json:"handle,omitempty"`
	Title   string `json:"title,omitempty"`
	Bounds  *Rect  `json:"bounds,omitempty"`
}

// Info snapshots the descriptor for API responses.
func (d *Descriptor) Info() Info {
	info := Info{Kind: d.kind.String(), Name: d.Name()}
	switch d.kind {
	case Monitor:
		idx := d.monitor
		info.Monitor = &idx
	case Window:
		b := d.Tracked()
		info.Handle = d.handle
		info.Title = d.title
		info.Bounds = &b
	case Region:
		r := d.region
		info.Bounds = &r
	}
	return info
}
