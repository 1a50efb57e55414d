// Package energy provides a fixed-threshold RMS implementation of
// [vad.Engine].
//
// A frame is speech when its root-mean-square amplitude is strictly greater
// than [vad.Config.SpeechThreshold]. There is no adaptation, smoothing or
// hysteresis: the session only remembers whether the previous frame was
// speech so it can label start and end transitions.
package energy

import (
	"fmt"
	"sync/atomic"

	"github.com/maestro-audio/dualcap/pkg/audio"
	"github.com/maestro-audio/dualcap/pkg/provider/vad"
)

// DefaultSpeechThreshold is the RMS level used when a Config leaves
// SpeechThreshold at zero.
const DefaultSpeechThreshold = 0.005

// Engine creates energy VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns an energy [Engine].
func New() *Engine { return &Engine{} }

// NewSession validates cfg and returns a fresh session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	threshold := cfg.SpeechThreshold
	if threshold == 0 {
		threshold = DefaultSpeechThreshold
	}
	if threshold < 0 || threshold >= 1 {
		return nil, fmt.Errorf("energy: speech threshold %g out of range (0, 1)", threshold)
	}
	if cfg.SampleRate < 0 {
		return nil, fmt.Errorf("energy: negative sample rate %d", cfg.SampleRate)
	}
	return &Session{threshold: threshold}, nil
}

var _ vad.Engine = (*Engine)(nil)

// Session classifies frames for one stream.
type Session struct {
	threshold float64
	speaking  bool
	closed    atomic.Bool
}

// Threshold returns the RMS level above which frames count as speech.
func (s *Session) Threshold() float64 { return s.threshold }

// ProcessFrame computes the frame RMS and compares it to the threshold. An
// empty frame has zero energy and is therefore silence.
func (s *Session) ProcessFrame(frame []float32) (vad.VADEvent, error) {
	if s.closed.Load() {
		return vad.VADEvent{Type: vad.VADSilence}, vad.ErrClosed
	}
	level := audio.RMS(frame)
	speech := level > s.threshold

	ev := vad.VADEvent{Probability: level}
	switch {
	case speech && s.speaking:
		ev.Type = vad.VADSpeechContinue
	case speech:
		ev.Type = vad.VADSpeechStart
	case s.speaking:
		ev.Type = vad.VADSpeechEnd
	default:
		ev.Type = vad.VADSilence
	}
	s.speaking = speech
	return ev, nil
}

// Reset forgets whether the previous frame was speech.
func (s *Session) Reset() {
	s.speaking = false
}

// Close marks the session closed. It is idempotent.
func (s *Session) Close() error {
	s.closed.Store(true)
	return nil
}

var _ vad.SessionHandle = (*Session)(nil)
