package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/rs/zerolog"
)

// MJPEGOutput streams one session's frames as Motion JPEG over HTTP.
// Frames are encoded on its own goroutine and only while clients are
// connected.
type MJPEGOutput struct {
	id      string
	config  Config
	log     *zerolog.Logger
	running bool
	mu      sync.RWMutex

	frameMu    sync.Mutex
	latest     *image.RGBA
	lastUpdate time.Time
	signal     chan struct{}
	stop       chan struct{}

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
	startTime  time.Time
}

// Stats describes a running stream.
type Stats struct {
	Running    bool      `json:"running"`
	Frames     uint64    `json:"frames"`
	Clients    int       `json:"clients"`
	LastUpdate time.Time `json:"last_update"`
	Uptime     string    `json:"uptime"`
}

// NewMJPEGOutput creates a stream for session id.
func NewMJPEGOutput(id string, config Config) *MJPEGOutput {
	return &MJPEGOutput{
		id:      id,
		config:  config,
		log:     logger.WithSession("mjpeg", id),
		signal:  make(chan struct{}, 1),
		clients: make(map[chan []byte]struct{}),
	}
}

// Start launches the encoder goroutine.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0
	m.stop = make(chan struct{})
	go m.encodeLoop(m.stop)

	m.log.Debug().Int("quality", m.config.quality()).Msg("MJPEG output started")
	return nil
}

// Stop disconnects every client.
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	close(m.stop)

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	m.log.Debug().Uint64("frames", m.frameCount).Msg("MJPEG output stopped")
	return nil
}

// WriteFrame records frame as the latest one and wakes the encoder.
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	m.frameMu.Lock()
	m.latest = frame
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return nil
}

func (m *MJPEGOutput) encodeLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-m.signal:
		}

		if m.clientCount() == 0 {
			continue
		}

		m.frameMu.Lock()
		frame := m.latest
		m.frameMu.Unlock()
		if frame == nil {
			continue
		}

		buf := new(bytes.Buffer)
		if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: m.config.quality()}); err != nil {
			m.log.Debug().Err(err).Msg("Failed to encode JPEG")
			continue
		}
		m.broadcast(buf.Bytes())
	}
}

func (m *MJPEGOutput) broadcast(jpegData []byte) {
	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// slow client, skip this frame
		}
	}
	m.clientsMu.RUnlock()
}

func (m *MJPEGOutput) clientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// Name returns the output type name.
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active.
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Stats returns stream counters.
func (m *MJPEGOutput) Stats() Stats {
	m.mu.RLock()
	st := Stats{Running: m.running, Frames: m.frameCount}
	startTime := m.startTime
	m.mu.RUnlock()

	m.frameMu.Lock()
	st.LastUpdate = m.lastUpdate
	m.frameMu.Unlock()

	st.Clients = m.clientCount()
	if !startTime.IsZero() {
		st.Uptime = time.Since(startTime).Round(time.Second).String()
	}
	return st
}

// ServeHTTP streams frames as multipart/x-mixed-replace until the client
// goes away or the output stops.
func (m *MJPEGOutput) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	frameChan := make(chan []byte, 2)

	m.mu.RLock()
	running := m.running
	if running {
		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		m.clientsMu.Unlock()
	}
	m.mu.RUnlock()
	if !running {
		http.Error(w, "stream not running", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	m.log.Info().Int("clients", m.clientCount()).Msg("MJPEG client connected")

	defer func() {
		m.clientsMu.Lock()
		delete(m.clients, frameChan)
		m.clientsMu.Unlock()
		m.log.Info().Int("clients", m.clientCount()).Msg("MJPEG client disconnected")
	}()

	// kick the encoder so a new client sees the current frame
	select {
	case m.signal <- struct{}{}:
	default:
	}

	for {
		var jpegData []byte
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-frameChan:
			if !ok {
				return
			}
			jpegData = data
		}

		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
			return
		}
		if _, err := w.Write(jpegData); err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
