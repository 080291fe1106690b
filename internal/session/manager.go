package session

import (
	"context"
	"image"
	"sort"
	"sync"

	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/bryanchriswhite/InfinitePIP/internal/source"
	"github.com/bryanchriswhite/InfinitePIP/internal/surface"
	"github.com/bryanchriswhite/InfinitePIP/internal/ui"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// New overlays cascade from this point so they do not stack exactly.
const (
	originX       = 100
	originY       = 100
	cascadeStep   = 30
	cascadeLength = 10
)

// EventType says what happened to a session.
type EventType string

const (
	EventCreated EventType = "created"
	EventClosed  EventType = "closed"
)

// Event is delivered to OnChange listeners.
type Event struct {
	Type    EventType `json:"type"`
	Session Info      `json:"session"`
	Count   int       `json:"count"`
}

// Manager owns all live sessions.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	listeners []func(Event)
	closed    bool
	created   int

	capturer   Capturer
	dispatcher ui.Dispatcher
	factory    surface.Factory
	opts       Options
	log        *zerolog.Logger
}

// NewManager creates a manager that builds sessions from capturer, shows
// them through factory and runs UI work on d.
func NewManager(capturer Capturer, d ui.Dispatcher, factory surface.Factory, opts Options) *Manager {
	return &Manager{
		sessions:   make(map[string]*Session),
		capturer:   capturer,
		dispatcher: d,
		factory:    factory,
		opts:       opts,
		log:        logger.WithComponent("sessions"),
	}
}

// Options returns the defaults applied to new sessions.
func (m *Manager) Options() Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opts
}

// SetOptions changes the defaults for sessions created afterwards.
func (m *Manager) SetOptions(opts Options) {
	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()
}

// OnChange registers fn to be called after a session is created or closed.
// Listeners run synchronously and must not block.
func (m *Manager) OnChange(fn func(Event)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Create starts a session for src. It blocks until the surface exists, so
// it must not be called from the UI loop.
func (m *Manager) Create(src *source.Descriptor) (*Session, error) {
	if src == nil {
		return nil, source.ErrInvalidSource
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	step := m.created % cascadeLength
	m.created++
	opts := m.opts
	m.mu.Unlock()

	s := newSession(uuid.NewString(), src, m.capturer, m.dispatcher, m.factory, opts)
	s.onClosed = m.remove

	origin := image.Pt(originX+step*cascadeStep, originY+step*cascadeStep)
	if err := s.start(origin); err != nil {
		m.log.Error().Err(err).Str("source", src.Name()).Msg("Failed to start session")
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Close()
		return nil, ErrClosed
	}
	m.sessions[s.id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.log.Info().
		Str("session_id", s.id).
		Str("source", src.Name()).
		Int("sessions", count).
		Msg("Session created")
	m.notify(Event{Type: EventCreated, Session: s.Info(), Count: count})
	return s, nil
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	_, ok := m.sessions[s.id]
	delete(m.sessions, s.id)
	count := len(m.sessions)
	m.mu.Unlock()

	if ok {
		m.notify(Event{Type: EventClosed, Session: s.Info(), Count: count})
	}
}

func (m *Manager) notify(ev Event) {
	m.mu.RLock()
	listeners := append([]func(Event){}, m.listeners...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close closes the session with id. It returns once close has been
// requested; wait on Session.Done for completion.
func (m *Manager) Close(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Close()
	return nil
}

// List returns snapshots of all sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every session and waits for them to finish or for ctx to
// end. New sessions are refused afterwards.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	for _, s := range all {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.log.Info().Int("sessions", len(all)).Msg("All sessions closed")
	return nil
}
