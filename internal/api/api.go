// Package api exposes the capture controller over HTTP.
//
// Routes:
//
//	POST /capture/start        start dual capture
//	POST /capture/stop         stop dual capture (idempotent)
//	GET  /capture/chunks       drain completed utterances
//	GET  /capture/talk-ratio   cumulative speech seconds per source
//	GET  /capture/status       running flag, queue depth and stream counters
//	GET  /capture/events       websocket of periodic status messages
//	GET  /devices              capture and playback endpoint names
//
// Errors are JSON objects of the form {"error": "..."}.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/maestro-audio/dualcap/internal/capture"
	"github.com/maestro-audio/dualcap/internal/observe"
	"github.com/maestro-audio/dualcap/pkg/audio"
	"github.com/maestro-audio/dualcap/pkg/audio/device"
)

// DefaultPollInterval is the event stream cadence used when none is set.
const DefaultPollInterval = 250 * time.Millisecond

// Capture is the part of [capture.Controller] the API drives.
type Capture interface {
	Start(ctx context.Context) (string, error)
	Stop() (string, error)
	Drain() []audio.Chunk
	TalkRatio() (mic, loopback float64)
	Running() bool
	Queued() int
	Stats() []capture.StreamStats
	ListDevices(ctx context.Context) (device.Listing, error)
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithPollInterval sets the event stream cadence. Non-positive values are
// ignored.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) { s.SetPollInterval(d) }
}

// Server serves the capture control routes. It is safe for concurrent use.
type Server struct {
	capture Capture
	metrics *observe.Metrics

	pollInterval atomic.Int64 // nanoseconds
}

// New returns a Server driving c and recording on m.
func New(c Capture, m *observe.Metrics, opts ...Option) *Server {
	s := &Server{capture: c, metrics: m}
	s.pollInterval.Store(int64(DefaultPollInterval))
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetPollInterval changes the event stream cadence. Connected subscribers
// pick it up on their next tick.
func (s *Server) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval.Store(int64(d))
	}
}

// PollInterval returns the current event stream cadence.
func (s *Server) PollInterval() time.Duration {
	return time.Duration(s.pollInterval.Load())
}

// Register adds the capture routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /capture/start", s.handleStart)
	mux.HandleFunc("POST /capture/stop", s.handleStop)
	mux.HandleFunc("GET /capture/chunks", s.handleChunks)
	mux.HandleFunc("GET /capture/talk-ratio", s.handleTalkRatio)
	mux.HandleFunc("GET /capture/status", s.handleStatus)
	mux.HandleFunc("GET /capture/events", s.handleEvents)
	mux.HandleFunc("GET /devices", s.handleDevices)
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type talkRatioResponse struct {
	MicSecs      float64 `json:"mic_secs"`
	LoopbackSecs float64 `json:"loopback_secs"`
}

type statusResponse struct {
	Running bool                  `json:"running"`
	Queued  int                   `json:"queued"`
	Streams []capture.StreamStats `json:"streams"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	msg, err := s.capture.Start(r.Context())
	switch {
	case errors.Is(err, capture.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		observe.Logger(r.Context()).Error("capture start failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	msg, err := s.capture.Stop()
	if err != nil {
		// Capture is stopped regardless; only releasing a handle failed.
		observe.Logger(r.Context()).Warn("capture teardown reported errors", "err", err)
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	chunks := s.capture.Drain()
	if chunks == nil {
		chunks = []audio.Chunk{}
	}
	if s.metrics != nil {
		s.metrics.RecordChunksDrained(r.Context(), len(chunks))
	}
	writeJSON(w, http.StatusOK, chunks)
}

func (s *Server) handleTalkRatio(w http.ResponseWriter, _ *http.Request) {
	mic, loopback := s.capture.TalkRatio()
	writeJSON(w, http.StatusOK, talkRatioResponse{MicSecs: mic, LoopbackSecs: loopback})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Running: s.capture.Running(),
		Queued:  s.capture.Queued(),
		Streams: s.capture.Stats(),
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	listing, err := s.capture.ListDevices(r.Context())
	if err != nil {
		observe.Logger(r.Context()).Error("device listing failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
