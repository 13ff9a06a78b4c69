package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/emgstream/errors"
)

type toggleStreamingRequest struct {
	Action string `json:"action"`
}

type toggleStreamingResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Streaming bool   `json:"streaming"`
}

type toggleRecordingResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Recording bool   `json:"recording"`
	Trial     int    `json:"trial,omitempty"`
	Samples   int    `json:"samples,omitempty"`
	Path      string `json:"path,omitempty"`
}

type liveDataResponse struct {
	Data   [][]float64 `json:"data"`
	Labels []string    `json:"labels"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// handleToggleStreaming starts or stops acquisition based on the requested
// action. Invalid state transitions report failure without changing state.
func (s *Server) handleToggleStreaming(w http.ResponseWriter, r *http.Request) {
	var req toggleStreamingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, toggleStreamingResponse{
			Success:   false,
			Message:   "invalid request body",
			Streaming: s.controller.Streaming(),
		})
		return
	}

	switch strings.ToLower(req.Action) {
	case "start":
		if err := s.controller.StartStreaming(r.Context()); err != nil {
			s.logger.Error("Stream start failed", "error", err)
			writeJSON(w, statusFor(err), toggleStreamingResponse{
				Success:   false,
				Message:   err.Error(),
				Streaming: s.controller.Streaming(),
			})
			return
		}
		writeJSON(w, http.StatusOK, toggleStreamingResponse{
			Success:   true,
			Message:   "streaming started",
			Streaming: true,
		})
	case "stop":
		if err := s.controller.StopStreaming(s.stopTimeout); err != nil {
			s.logger.Error("Stream stop failed", "error", err)
			writeJSON(w, statusFor(err), toggleStreamingResponse{
				Success:   false,
				Message:   err.Error(),
				Streaming: s.controller.Streaming(),
			})
			return
		}
		writeJSON(w, http.StatusOK, toggleStreamingResponse{
			Success:   true,
			Message:   "streaming stopped",
			Streaming: false,
		})
	default:
		writeJSON(w, http.StatusBadRequest, toggleStreamingResponse{
			Success:   false,
			Message:   `invalid action, use "start" or "stop"`,
			Streaming: s.controller.Streaming(),
		})
	}
}

// handleToggleRecording flips the trial state: starts a trial when idle,
// saves the active trial otherwise
func (s *Server) handleToggleRecording(w http.ResponseWriter, r *http.Request) {
	if s.controller.Recording() {
		result, err := s.controller.StopRecording()
		if err != nil {
			s.logger.Warn("Trial stop failed", "error", err)
			writeJSON(w, statusFor(err), toggleRecordingResponse{
				Success:   false,
				Message:   err.Error(),
				Recording: false,
			})
			return
		}
		writeJSON(w, http.StatusOK, toggleRecordingResponse{
			Success:   true,
			Message:   "trial saved",
			Recording: false,
			Trial:     result.Trial,
			Samples:   result.Samples,
			Path:      result.BinPath,
		})
		return
	}

	trial, err := s.controller.StartRecording()
	if err != nil {
		s.logger.Warn("Trial start failed", "error", err)
		writeJSON(w, statusFor(err), toggleRecordingResponse{
			Success:   false,
			Message:   err.Error(),
			Recording: false,
		})
		return
	}
	writeJSON(w, http.StatusOK, toggleRecordingResponse{
		Success:   true,
		Message:   "trial started",
		Recording: true,
		Trial:     trial,
	})
}

func (s *Server) handleLiveData(w http.ResponseWriter, _ *http.Request) {
	data, labels := s.controller.LiveData()
	writeJSON(w, http.StatusOK, liveDataResponse{Data: data, Labels: labels})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	h := s.controller.Health()
	status := http.StatusOK
	if h.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The frontend is served from arbitrary lab hosts
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleLiveSocket pushes live data snapshots over a websocket until the
// client goes away
func (s *Server) handleLiveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Reader goroutine notices client-side close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			data, labels := s.controller.LiveData()
			if err := conn.WriteJSON(liveDataResponse{Data: data, Labels: labels}); err != nil {
				return
			}
		}
	}
}

// statusFor maps classified errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.IsInvalid(err):
		return http.StatusConflict
	case errors.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
