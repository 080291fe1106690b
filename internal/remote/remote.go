// Package remote implements the loopback trigger that lets other programs
// open a window PIP: one JSON request and one JSON response per TCP
// connection.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/bryanchriswhite/InfinitePIP/internal/source"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultAddress is where the trigger listens unless configured.
	DefaultAddress = "127.0.0.1:38474"

	ActionCreateWindowPIP = "create_window_pip"

	StatusSuccess = "success"
	StatusError   = "error"

	maxRequestBytes = 64 << 10
	connTimeout     = 10 * time.Second
	requestIdle     = 250 * time.Millisecond
)

// WindowData describes the window to capture.
type WindowData struct {
	Title string  `json:"title"`
	BBox  []int   `json:"bbox"`
	HWND  *uint64 `json:"hwnd,omitempty"`
}

// Request is one remote command.
type Request struct {
	Action     string      `json:"action"`
	WindowData *WindowData `json:"window_data,omitempty"`
}

// Response answers a Request.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Descriptor converts the request into a window source.
func (w WindowData) Descriptor() (*source.Descriptor, error) {
	if len(w.BBox) != 4 {
		return nil, fmt.Errorf("%w: bbox must be [x, y, width, height], got %d values", source.ErrInvalidSource, len(w.BBox))
	}
	var handle uint64
	if w.HWND != nil {
		handle = *w.HWND
	}
	return source.NewWindow(handle, w.Title, source.Rect{
		X:      w.BBox[0],
		Y:      w.BBox[1],
		Width:  w.BBox[2],
		Height: w.BBox[3],
	})
}

// Handler performs remote commands.
type Handler interface {
	CreateWindowPIP(ctx context.Context, src *source.Descriptor) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, src *source.Descriptor) error

func (f HandlerFunc) CreateWindowPIP(ctx context.Context, src *source.Descriptor) error {
	return f(ctx, src)
}

// Server accepts remote commands on a TCP address.
type Server struct {
	addr     string
	handler  Handler
	log      *zerolog.Logger
	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a server for addr; it does not listen until Start.
func NewServer(addr string, h Handler) *Server {
	if addr == "" {
		addr = DefaultAddress
	}
	return &Server{
		addr:    addr,
		handler: h,
		log:     logger.WithComponent("remote"),
	}
}

// Start binds the listener.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Info().Str("address", ln.Addr().String()).Msg("Remote control listening")
	return nil
}

// Addr is the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx ends or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("remote server not started")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	data, err := readRequest(conn)
	var resp Response
	if err != nil && len(data) == 0 {
		resp = errorResponse(fmt.Errorf("invalid request: %w", err))
	} else {
		resp = s.process(ctx, data)
	}

	conn.SetWriteDeadline(time.Now().Add(connTimeout))
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.Debug().Err(err).Msg("Failed to write response")
	}
}

// readRequest reads until the buffer holds a complete JSON value, the peer
// stops writing, or the peer goes quiet for requestIdle after sending
// something. Clients hold the connection open for the answer, so EOF alone
// cannot end a request.
func readRequest(conn net.Conn) ([]byte, error) {
	conn.SetReadDeadline(time.Now().Add(connTimeout))

	var buf []byte
	chunk := make([]byte, 4096)
	for len(buf) < maxRequestBytes {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if len(buf) > 0 && json.Valid(buf) {
			return buf, nil
		}
		if err != nil {
			var ne net.Error
			if errors.Is(err, io.EOF) || (len(buf) > 0 && errors.As(err, &ne) && ne.Timeout()) {
				return buf, nil
			}
			return buf, err
		}
		if len(buf) > 0 {
			conn.SetReadDeadline(time.Now().Add(requestIdle))
		}
	}
	return buf[:maxRequestBytes], nil
}

func (s *Server) process(ctx context.Context, data []byte) Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse(fmt.Errorf("invalid request: %w", err))
	}

	switch req.Action {
	case ActionCreateWindowPIP:
		if req.WindowData == nil {
			return errorResponse(errors.New("window_data is required"))
		}
		src, err := req.WindowData.Descriptor()
		if err != nil {
			return errorResponse(err)
		}
		if err := s.handler.CreateWindowPIP(ctx, src); err != nil {
			s.log.Warn().Err(err).Str("title", req.WindowData.Title).Msg("Remote PIP creation failed")
			return errorResponse(err)
		}
		s.log.Info().Str("title", req.WindowData.Title).Msg("Remote PIP created")
		return Response{Status: StatusSuccess, Message: "Window PIP created successfully"}
	default:
		return errorResponse(fmt.Errorf("unknown action: %s", req.Action))
	}
}

func errorResponse(err error) Response {
	return Response{Status: StatusError, Message: err.Error()}
}

// Send asks the server at addr to open a PIP for wd.
func Send(ctx context.Context, addr string, wd WindowData) (*Response, error) {
	if addr == "" {
		addr = DefaultAddress
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(connTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	req := Request{Action: ActionCreateWindowPIP, WindowData: &wd}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.Status != StatusSuccess {
		return &resp, fmt.Errorf("remote error: %s", resp.Message)
	}
	return &resp, nil
}
