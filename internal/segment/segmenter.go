// Package segment turns a stream of normalised mono frames into complete
// speech utterances.
//
// A [Segmenter] owns the accumulation buffer for exactly one capture source.
// Classification of individual frames is delegated to a [vad.SessionHandle];
// the state machine that decides what is buffered and when an utterance ends
// is fixed:
//
//	Idle     + speech  → Speaking, buffer frame, speech++
//	Speaking + speech  → buffer frame, speech++, silence reset
//	Speaking + silence → buffer frame, silence++; end of utterance at SilenceFrames
//	Idle     + silence → silence++, nothing buffered
//
// At the end of an utterance the buffer is emitted as an [audio.Chunk] if it
// contained at least MinSpeechFrames speech frames and is discarded otherwise.
// Either way the buffer is cleared and both counters reset.
package segment

import (
	"math"

	"github.com/maestro-audio/dualcap/pkg/audio"
	"github.com/maestro-audio/dualcap/pkg/provider/vad"
)

const (
	// DefaultSilenceFrames is roughly 1.5 s of trailing silence with 1024
	// sample frames at 16 kHz.
	DefaultSilenceFrames = 24

	// DefaultMinSpeechFrames is roughly 320 ms of speech with 1024 sample
	// frames at 16 kHz.
	DefaultMinSpeechFrames = 5

	// DefaultMaxBufferedSamples caps a single utterance at 60 s.
	DefaultMaxBufferedSamples = 60 * audio.TargetSampleRate

	// preallocSamples is the initial buffer capacity (~10 s).
	preallocSamples = 10 * audio.TargetSampleRate
)

// Config controls utterance boundaries for one [Segmenter]. Zero fields take
// the package defaults.
type Config struct {
	// Source labels every chunk the segmenter emits.
	Source audio.Source

	// SilenceFrames is the number of consecutive silent frames after speech
	// that ends an utterance.
	SilenceFrames int

	// MinSpeechFrames is the minimum number of speech frames an utterance
	// needs to be emitted rather than discarded.
	MinSpeechFrames int

	// MaxBufferedSamples bounds the accumulation buffer. An utterance that
	// reaches it is ended as though the silence threshold had been hit.
	MaxBufferedSamples int
}

func (c Config) withDefaults() Config {
	if c.SilenceFrames <= 0 {
		c.SilenceFrames = DefaultSilenceFrames
	}
	if c.MinSpeechFrames <= 0 {
		c.MinSpeechFrames = DefaultMinSpeechFrames
	}
	if c.MaxBufferedSamples <= 0 {
		c.MaxBufferedSamples = DefaultMaxBufferedSamples
	}
	return c
}

// Stats are cumulative counters for one [Segmenter]. They survive [Segmenter.Reset].
type Stats struct {
	// Frames is the number of frames fed.
	Frames uint64

	// Emitted is the number of chunks produced.
	Emitted uint64

	// Discarded is the number of utterances dropped for having fewer than
	// MinSpeechFrames speech frames.
	Discarded uint64

	// Capped is the number of utterances ended by MaxBufferedSamples.
	Capped uint64

	// ClassifyErrors is the number of frames the VAD session failed on. Such
	// frames are treated as silence.
	ClassifyErrors uint64
}

// Segmenter accumulates one source's speech into utterances.
//
// A Segmenter is not safe for concurrent use; the capture coordinator guards
// each one with its own mutex.
type Segmenter struct {
	cfg Config
	vad vad.SessionHandle

	buf      []float32
	silence  int
	speech   int
	speaking bool

	stats Stats
}

// New returns a Segmenter that classifies frames with session.
func New(cfg Config, session vad.SessionHandle) *Segmenter {
	cfg = cfg.withDefaults()
	return &Segmenter{
		cfg: cfg,
		vad: session,
		buf: make([]float32, 0, min(preallocSamples, cfg.MaxBufferedSamples)),
	}
}


// Feed advances the state machine by one frame. It returns a chunk and true
// when the frame completed an utterance that met the minimum speech length.
//
// The frame is copied into the internal buffer; the caller may reuse it.
func (s *Segmenter) Feed(frame []float32) (audio.Chunk, bool) {
	s.stats.Frames++

	ev, err := s.vad.ProcessFrame(frame)
	speech := err == nil && ev.IsSpeech()
	if err != nil {
		s.stats.ClassifyErrors++
	}

	switch {
	case speech:
		s.silence = 0
		s.speech++
		s.speaking = true
		s.buf = append(s.buf, frame...)
	case s.speaking:
		// Trailing silence is kept so the tail of the utterance is not clipped.
		s.buf = append(s.buf, frame...)
		s.silence++
		if s.silence >= s.cfg.SilenceFrames {
			return s.endUtterance()
		}
	default:
		if s.silence < math.MaxInt {
			s.silence++
		}
		return audio.Chunk{}, false
	}

	if len(s.buf) >= s.cfg.MaxBufferedSamples {
		s.stats.Capped++
		return s.endUtterance()
	}
	return audio.Chunk{}, false
}

// Flush forces the end of the current utterance. It applies the same minimum
// speech rule as a silence-terminated utterance. Flushing an idle segmenter
// returns false and changes nothing.
func (s *Segmenter) Flush() (audio.Chunk, bool) {
	if !s.speaking && len(s.buf) == 0 {
		return audio.Chunk{}, false
	}
	return s.endUtterance()
}

// Reset drops any buffered audio and returns to Idle without emitting. The
// buffer's capacity is kept.
func (s *Segmenter) Reset() {
	s.buf = s.buf[:0]
	s.silence = 0
	s.speech = 0
	s.speaking = false
	s.vad.Reset()
}

// Speaking reports whether an utterance is in progress.
func (s *Segmenter) Speaking() bool { return s.speaking }

// Buffered returns the number of samples held for the current utterance.
func (s *Segmenter) Buffered() int { return len(s.buf) }

// Stats returns a copy of the cumulative counters.
func (s *Segmenter) Stats() Stats { return s.stats }

func (s *Segmenter) endUtterance() (audio.Chunk, bool) {
	speech := s.speech
	s.speaking = false
	s.silence = 0
	s.speech = 0

	if speech < s.cfg.MinSpeechFrames {
		s.buf = s.buf[:0]
		s.stats.Discarded++
		return audio.Chunk{}, false
	}

	chunk := audio.NewChunk(s.cfg.Source, s.buf)
	s.buf = s.buf[:0]
	s.stats.Emitted++
	return chunk, true
}
