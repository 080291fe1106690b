//go:build !linux

package display

import (
	"github.com/bryanchriswhite/InfinitePIP/internal/surface"
	"github.com/bryanchriswhite/InfinitePIP/internal/ui"
)

// Manager is unavailable on this platform.
type Manager struct{}

// NewManager always fails with ErrUnavailable.
func NewManager(ui.Dispatcher) (*Manager, error) {
	return nil, ErrUnavailable
}

func (m *Manager) Create(surface.Spec, surface.InputSink) (surface.Surface, error) {
	return nil, ErrUnavailable
}

func (m *Manager) Close() {}
