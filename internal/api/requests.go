package api

import (
	"fmt"

	"github.com/bryanchriswhite/InfinitePIP/internal/source"
)

// CreateRequest is the body of POST /api/sessions.
type CreateRequest struct {
	Kind    string       `json:"kind"`
	Monitor *int         `json:"monitor,omitempty"`
	Handle  uint64       `json:"handle,omitempty"`
	Title   string       `json:"title,omitempty"`
	BBox    *source.Rect `json:"bbox,omitempty"`
	Region  *source.Rect `json:"region,omitempty"`
}

// Descriptor validates the request into a capture source.
func (c CreateRequest) Descriptor() (*source.Descriptor, error) {
	switch c.Kind {
	case "monitor":
		idx := 0
		if c.Monitor != nil {
			idx = *c.Monitor
		}
		return source.NewMonitor(idx)
	case "window":
		var bbox source.Rect
		if c.BBox != nil {
			bbox = *c.BBox
		}
		return source.NewWindow(c.Handle, c.Title, bbox)
	case "region":
		if c.Region == nil {
			return nil, fmt.Errorf("%w: region is required", source.ErrInvalidRegion)
		}
		r := *c.Region
		return source.NewRegion(r.X, r.Y, r.Width, r.Height)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", source.ErrInvalidSource, c.Kind)
	}
}

// OptionsRequest is the body of PUT /api/sessions/{id}/options. Nil fields
// are left unchanged.
type OptionsRequest struct {
	Topmost             *bool `json:"topmost,omitempty"`
	MaintainAspectRatio *bool `json:"maintain_aspect_ratio,omitempty"`
	AutoResize          *bool `json:"auto_resize_on_source_change,omitempty"`
}
