// Package httpapi exposes the control surface: stream and trial toggles,
// the live data feed for the plotting frontend, status and health. A
// websocket endpoint pushes live snapshots for clients that prefer a feed
// over polling.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/c360/emgstream/app"
	"github.com/c360/emgstream/errors"
	"github.com/c360/emgstream/health"
	"github.com/c360/emgstream/recording"
)

// Controller is the pipeline interface the handlers drive. *app.App
// satisfies it.
type Controller interface {
	StartStreaming(ctx context.Context) error
	StopStreaming(timeout time.Duration) error
	Streaming() bool
	Recording() bool
	StartRecording() (int, error)
	StopRecording() (*recording.SaveResult, error)
	LiveData() (data [][]float64, labels []string)
	Status() app.Status
	Health() health.Status
}

// Server hosts the control API
type Server struct {
	addr       string
	controller Controller
	logger     *slog.Logger

	mu      sync.Mutex
	server  *http.Server
	running bool

	// pushInterval is the websocket live feed cadence
	pushInterval time.Duration

	stopTimeout time.Duration
}

// NewServer creates the control API server
func NewServer(addr string, controller Controller, logger *slog.Logger) (*Server, error) {
	if addr == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Server", "NewServer", "address validation")
	}
	if controller == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil controller"),
			"Server", "NewServer", "controller validation")
	}
	if logger == nil {
		logger = slog.Default().With("component", "httpapi")
	}
	return &Server{
		addr:         addr,
		controller:   controller,
		logger:       logger,
		pushInterval: 100 * time.Millisecond,
		stopTimeout:  5 * time.Second,
	}, nil
}

// Handler returns the routed handler, exported for tests
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /toggle_streaming", s.handleToggleStreaming)
	mux.HandleFunc("POST /toggle_recording", s.handleToggleRecording)
	mux.HandleFunc("GET /live_data", s.handleLiveData)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /ws/live", s.handleLiveSocket)
	return mux
}

// Start begins serving in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "state check")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WrapTransient(err, "Server", "Start", "listener binding")
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.running = true

	go func() {
		s.logger.Info("Control API listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Control API server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "graceful shutdown")
	}
	return nil
}
