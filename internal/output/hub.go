package output

import (
	"image"
	"sort"
	"sync"

	"github.com/bryanchriswhite/InfinitePIP/internal/aspect"
	"github.com/bryanchriswhite/InfinitePIP/internal/surface"
)

// Hub keeps one MJPEG stream per session. It implements surface.Factory.
type Hub struct {
	mu      sync.RWMutex
	config  Config
	streams map[string]*MJPEGOutput
}

// NewHub creates an empty hub.
func NewHub(config Config) *Hub {
	return &Hub{
		config:  config,
		streams: make(map[string]*MJPEGOutput),
	}
}

// Create implements surface.Factory.
func (h *Hub) Create(spec surface.Spec, _ surface.InputSink) (surface.Surface, error) {
	out := NewMJPEGOutput(spec.ID, h.config)
	if err := out.Start(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	if old, ok := h.streams[spec.ID]; ok {
		old.Stop()
	}
	h.streams[spec.ID] = out
	h.mu.Unlock()

	return &streamSurface{hub: h, id: spec.ID, out: out}, nil
}

// Get returns the stream for a session id.
func (h *Hub) Get(id string) (*MJPEGOutput, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out, ok := h.streams[id]
	return out, ok
}

// IDs lists the sessions that have a stream.
func (h *Hub) IDs() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.streams))
	for id := range h.streams {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (h *Hub) remove(id string, out *MJPEGOutput) {
	h.mu.Lock()
	if h.streams[id] == out {
		delete(h.streams, id)
	}
	h.mu.Unlock()
}

// CloseAll stops every stream.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	streams := h.streams
	h.streams = make(map[string]*MJPEGOutput)
	h.mu.Unlock()

	for _, out := range streams {
		out.Stop()
	}
}

// streamSurface adapts an MJPEGOutput to surface.Surface.
type streamSurface struct {
	hub *Hub
	id  string
	out *MJPEGOutput
}

func (s *streamSurface) Render(img *image.RGBA) {
	s.out.WriteFrame(img)
}

// Apply is a no-op: frames already arrive at the overlay size.
func (s *streamSurface) Apply(aspect.Geometry) {}

func (s *streamSurface) SetOpacity(float64) {}

func (s *streamSurface) SetTopmost(bool) {}

func (s *streamSurface) Close() {
	s.out.Stop()
	s.hub.remove(s.id, s.out)
}
