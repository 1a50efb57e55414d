// Package vad defines the Engine interface for frame-level voice activity
// classifiers.
//
// An engine hands out one SessionHandle per audio stream. The session sees
// normalised mono float frames at the configured sample rate and reports,
// per frame, whether it holds speech. Sessions keep only the state they need
// to label transitions (start/continue/end); the utterance state machine that
// decides what to buffer and when to emit lives in the caller.
//
// ProcessFrame runs on the device callback thread: it must not block, must
// not log and must not allocate per frame.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle is owned by one stream and is not shared.
package vad

import "errors"

// ErrClosed is returned by ProcessFrame after the session has been closed.
var ErrClosed = errors.New("vad: session closed")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the rate in Hz of the frames passed to ProcessFrame.
	// Energy classification is rate independent; model based engines are not.
	SampleRate int

	// SpeechThreshold is the score strictly above which a frame counts as
	// speech. For the energy engine the score is the frame RMS on a [-1, 1]
	// scale. Typical: 0.005.
	SpeechThreshold float64
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply scripted classifiers.
type SessionHandle interface {
	// ProcessFrame classifies one mono frame. An empty frame is silence.
	ProcessFrame(frame []float32) (VADEvent, error)

	// Reset clears transition state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use: both capture streams call
// NewSession when a capture starts.
type Engine interface {
	// NewSession creates a session with the given configuration. Returns an
	// error if the configuration is out of range.
	NewSession(cfg Config) (SessionHandle, error)
}
