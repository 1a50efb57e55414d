package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/maestro-audio/dualcap/internal/observe"
)

// writeTimeout bounds a single event write to a slow subscriber.
const writeTimeout = 5 * time.Second

// StatusEvent is the message pushed to /capture/events subscribers every
// poll interval.
type StatusEvent struct {
	Type         string  `json:"type"`
	Running      bool    `json:"running"`
	Queued       int     `json:"queued"`
	MicSecs      float64 `json:"mic_secs"`
	LoopbackSecs float64 `json:"loopback_secs"`
}

func (s *Server) statusEvent() StatusEvent {
	mic, loopback := s.capture.TalkRatio()
	return StatusEvent{
		Type:         "status",
		Running:      s.capture.Running(),
		Queued:       s.capture.Queued(),
		MicSecs:      mic,
		LoopbackSecs: loopback,
	}
}

// handleEvents upgrades to a websocket and sends a [StatusEvent] right away
// and then once per poll interval until the client goes away or the request
// context ends. Incoming messages are discarded.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the HTTP error.
		log.Debug("event stream upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	if s.metrics != nil {
		s.metrics.EventSubscribers.Add(ctx, 1)
		defer s.metrics.EventSubscribers.Add(context.WithoutCancel(ctx), -1)
	}
	log.Debug("event subscriber connected")

	interval := s.PollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.send(ctx, conn); err != nil {
			log.Debug("event subscriber gone", "err", err)
			return
		}
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "")
			return
		case <-ticker.C:
		}
		if d := s.PollInterval(); d != interval {
			interval = d
			ticker.Reset(interval)
		}
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, s.statusEvent())
}
