package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/InfinitePIP/internal/capture"
	"github.com/bryanchriswhite/InfinitePIP/internal/config"
	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/bryanchriswhite/InfinitePIP/internal/output"
	"github.com/bryanchriswhite/InfinitePIP/internal/platform"
	"github.com/bryanchriswhite/InfinitePIP/internal/session"
	"github.com/bryanchriswhite/InfinitePIP/internal/source"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Version is reported by the health endpoint.
const Version = "0.1.0"

const (
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// StatsProvider reports capture counters.
type StatsProvider interface {
	Stats() capture.Stats
}

// Options are the optional collaborators of a Server.
type Options struct {
	Streams *output.Hub
	Stats   StatsProvider
	Config  *config.Manager
	Caps    platform.Capabilities
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	sessions *session.Manager
	opts     Options
	upgrader websocket.Upgrader
	log      *zerolog.Logger

	subMu       sync.Mutex
	subscribers map[chan session.Event]struct{}
}

// NewServer creates a new API server
func NewServer(sessions *session.Manager, opts Options) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		sessions: sessions,
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log:         logger.WithComponent("api"),
		subscribers: make(map[chan session.Event]struct{}),
	}

	sessions.OnChange(s.broadcast)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/platform", s.handlePlatform).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/capture/stats", s.handleCaptureStats).Methods("GET")

	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleCloseAllSessions).Methods("DELETE")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleCloseSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/opacity", s.handleSetOpacity).Methods("PUT")
	api.HandleFunc("/sessions/{id}/options", s.handleSetOptions).Methods("PUT")
	api.HandleFunc("/sessions/{id}/stream", s.handleStream).Methods("GET")

	api.HandleFunc("/events", s.handleEvents)

	s.router.HandleFunc("/", s.handleIndex)
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on 127.0.0.1:port until ctx ends.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := net.JoinHostPort("127.0.0.1", fmt.Sprint(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("address", "http://"+addr).Msg("Starting API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"status": "error", "message": err.Error()})
}

// statusFor maps domain errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, source.ErrInvalidSource), errors.Is(err, source.ErrInvalidRegion):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"version":  Version,
		"sessions": s.sessions.Count(),
	})
}

func (s *Server) handlePlatform(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Caps)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.opts.Config == nil {
		writeError(w, http.StatusNotFound, errors.New("no configuration loaded"))
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Config.Get())
}

func (s *Server) handleCaptureStats(w http.ResponseWriter, r *http.Request) {
	if s.opts.Stats == nil {
		writeJSON(w, http.StatusOK, capture.Stats{})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Stats.Stats())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	src, err := req.Descriptor()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	sess, err := s.sessions.Create(src)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) handleCloseAllSessions(w http.ResponseWriter, r *http.Request) {
	closed := 0
	for _, info := range s.sessions.List() {
		if err := s.sessions.Close(info.ID); err == nil {
			closed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"closed": closed})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, sess.Info())
	}
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetOpacity(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Opacity *float64 `json:"opacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Opacity == nil {
		writeError(w, http.StatusBadRequest, errors.New("body must be {\"opacity\": <0.1-1.0>}"))
		return
	}
	if err := sess.SetOpacity(*req.Opacity); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "opacity": clampForDisplay(*req.Opacity)})
}

func clampForDisplay(v float64) float64 {
	return min(session.MaxOpacity, max(session.MinOpacity, v))
}

func (s *Server) handleSetOptions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req OptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Topmost != nil {
		if err := sess.SetTopmost(*req.Topmost); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	if req.MaintainAspectRatio != nil {
		sess.SetMaintainAspectRatio(*req.MaintainAspectRatio)
	}
	if req.AutoResize != nil {
		sess.SetAutoResize(*req.AutoResize)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.opts.Streams == nil {
		writeError(w, http.StatusNotFound, errors.New("MJPEG streaming is disabled"))
		return
	}
	out, ok := s.opts.Streams.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrNotFound)
		return
	}
	out.ServeHTTP(w, r)
}

func (s *Server) subscribe() chan session.Event {
	ch := make(chan session.Event, subscriberBuffer)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan session.Event) {
	s.subMu.Lock()
	delete(s.subscribers, ch)
	s.subMu.Unlock()
}

// broadcast runs on the manager's notification path and must not block.
func (s *Server) broadcast(ev session.Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Snapshot is the first message sent on the events socket.
type Snapshot struct {
	Type     string         `json:"type"`
	Count    int            `json:"count"`
	Sessions []session.Info `json:"sessions"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := s.subscribe()
	defer s.unsubscribe(updates)

	// Reader goroutine notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	list := s.sessions.List()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(Snapshot{Type: "snapshot", Count: len(list), Sessions: list}); err != nil {
		s.log.Debug().Err(err).Msg("WebSocket write failed")
		return
	}

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>InfinitePIP</title>
    <style>
        body { font-family: system-ui, sans-serif; max-width: 800px; margin: 40px auto; color: #ddd; background: #1e1e1e; }
        a { color: #569cd6; }
        code { background: #2d2d2d; padding: 2px 6px; border-radius: 3px; }
    </style>
</head>
<body>
    <h1>InfinitePIP</h1>
    <ul>
        <li><a href="/api/health">/api/health</a></li>
        <li><a href="/api/sessions">/api/sessions</a></li>
        <li><a href="/api/capture/stats">/api/capture/stats</a></li>
    </ul>
    <p>Open a session stream at <code>/api/sessions/{id}/stream</code>.</p>
</body>
</html>`
