package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maestro-audio/dualcap/internal/segment"
	"github.com/maestro-audio/dualcap/pkg/audio"
	"github.com/maestro-audio/dualcap/pkg/audio/device"
	"github.com/maestro-audio/dualcap/pkg/provider/vad"
)

// frameHint sizes per-stream scratch buffers; typical periods are 480 to
// 4096 interleaved samples and larger ones simply grow the buffers once.
const frameHint = 4096

// SegmentConfig is the utterance detection configuration applied to both
// streams when a capture starts.
type SegmentConfig struct {
	// SpeechThreshold is passed to the VAD engine.
	SpeechThreshold float64

	// SilenceFrames, MinSpeechFrames and MaxBufferedSamples are passed to
	// each [segment.Segmenter]; zero values take the segment defaults.
	SilenceFrames      int
	MinSpeechFrames    int
	MaxBufferedSamples int
}

// Coordinator binds device streams to per-source segmenters and feeds their
// output into a shared [State]. One Coordinator serves one capture session.
type Coordinator struct {
	state    *State
	engine   vad.Engine
	cfg      SegmentConfig
	counters *Counters

	mu      sync.Mutex
	streams []*boundStream
}

// NewCoordinator returns a Coordinator publishing into state. counters may
// be nil.
func NewCoordinator(state *State, engine vad.Engine, cfg SegmentConfig, counters *Counters) *Coordinator {
	if counters == nil {
		counters = &Counters{}
	}
	return &Coordinator{state: state, engine: engine, cfg: cfg, counters: counters}
}

// boundStream is everything one device callback touches. All fields below mu
// are only accessed with mu held.
type boundStream struct {
	source   audio.Source
	format   device.Format
	state    *State
	counters *sourceCounters

	mu      sync.Mutex
	seg     *segment.Segmenter
	vad     vad.SessionHandle
	norm    *audio.Normalizer
	f32     []float32
	i16     []int16
	pending []audio.Chunk
	last    segment.Stats
}

// Bind prepares a segmenter for source and returns the callback to hand to
// the device. The callback expects interleaved little-endian PCM in format.
//
// Only [device.FormatF32] and [device.FormatS16] are accepted; anything else
// returns an error wrapping [device.ErrUnsupportedFormat] and leaves the
// Coordinator unchanged.
func (c *Coordinator) Bind(source audio.Source, format device.Format) (device.DataCallback, error) {
	if !source.IsValid() {
		return nil, fmt.Errorf("capture: unknown source %q", source)
	}
	switch format.SampleFormat {
	case device.FormatF32, device.FormatS16:
	default:
		return nil, fmt.Errorf("capture: %s stream delivers %s: %w", source, format.SampleFormat, device.ErrUnsupportedFormat)
	}

	sess, err := c.engine.NewSession(vad.Config{
		SampleRate:      audio.TargetSampleRate,
		SpeechThreshold: c.cfg.SpeechThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: vad session for %s: %w", source, err)
	}

	bs := &boundStream{
		source:   source,
		format:   format,
		state:    c.state,
		counters: c.counters.of(source),
		vad:      sess,
		seg: segment.New(segment.Config{
			Source:             source,
			SilenceFrames:      c.cfg.SilenceFrames,
			MinSpeechFrames:    c.cfg.MinSpeechFrames,
			MaxBufferedSamples: c.cfg.MaxBufferedSamples,
		}, sess),
		norm: audio.NewNormalizer(format.Channels, format.SampleRate, frameHint),
		f32:  make([]float32, 0, frameHint),
	}
	if format.SampleFormat == device.FormatS16 {
		bs.i16 = make([]int16, 0, frameHint)
	}

	c.mu.Lock()
	c.streams = append(c.streams, bs)
	c.mu.Unlock()
	return bs.onData, nil
}

// ErrorHandler returns the asynchronous error callback for source. Errors
// are logged and counted, never escalated.
func (c *Coordinator) ErrorHandler(source audio.Source) device.ErrorCallback {
	counters := c.counters.of(source)
	return func(err error) {
		counters.errors.Add(1)
		slog.Error("audio stream error", "source", source, "err", err)
	}
}

// Flush publishes every parked chunk and, when endUtterances is set, forces
// each segmenter to end its current utterance; otherwise the utterance in
// progress is dropped. Callers must have cleared the running flag first.
// Nothing reaches the queue from a stream after Flush returns.
func (c *Coordinator) Flush(endUtterances bool) {
	c.mu.Lock()
	streams := append([]*boundStream(nil), c.streams...)
	c.mu.Unlock()

	for _, bs := range streams {
		bs.mu.Lock()
		for _, p := range bs.pending {
			bs.state.publish(p)
		}
		bs.pending = bs.pending[:0]
		if endUtterances {
			if chunk, ok := bs.seg.Flush(); ok {
				bs.counters.emitted.Add(1)
				bs.counters.speechSamples.Add(int64(chunk.SampleCount))
				bs.state.publish(chunk)
			}
			bs.syncStats()
		} else {
			bs.seg.Reset()
		}
		bs.mu.Unlock()
	}
}

// Close releases the VAD sessions of every bound stream.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, bs := range c.streams {
		if err := bs.vad.Close(); err != nil {
			errs = append(errs, fmt.Errorf("capture: close %s vad: %w", bs.source, err))
		}
	}
	c.streams = nil
	return errors.Join(errs...)
}

// onData runs on the device thread. It never blocks: a busy segmenter drops
// the frame and a busy queue parks the chunk for the next callback.
func (bs *boundStream) onData(pcm []byte) {
	if !bs.state.Running() {
		return
	}
	if !bs.mu.TryLock() {
		bs.counters.dropped.Add(1)
		return
	}
	defer bs.mu.Unlock()
	// Stop may have flushed this stream between the check above and the lock.
	if !bs.state.Running() {
		return
	}

	bs.handOffPending()

	if bs.i16 != nil {
		bs.i16 = audio.DecodeInt16LE(bs.i16, pcm)
		bs.f32 = audio.Int16ToFloat32Into(bs.f32, bs.i16)
	} else {
		bs.f32 = audio.DecodeFloat32LE(bs.f32, pcm)
	}
	frame := bs.norm.Normalize(bs.f32)

	chunk, ok := bs.seg.Feed(frame)
	bs.counters.processed.Add(1)
	bs.syncStats()
	if !ok {
		return
	}
	bs.counters.emitted.Add(1)
	bs.counters.speechSamples.Add(int64(chunk.SampleCount))
	if len(bs.pending) > 0 || !bs.state.tryPublish(chunk) {
		// Keep arrival order: never let a new chunk overtake a parked one.
		bs.pending = append(bs.pending, chunk)
		bs.counters.handoffs.Add(1)
	}
}

// handOffPending retries parked chunks in order, stopping at the first
// contention. Must be called with bs.mu held.
func (bs *boundStream) handOffPending() {
	n := 0
	for _, p := range bs.pending {
		if !bs.state.tryPublish(p) {
			break
		}
		n++
	}
	if n == 0 {
		return
	}
	rest := copy(bs.pending, bs.pending[n:])
	clear(bs.pending[rest:])
	bs.pending = bs.pending[:rest]
}

// syncStats carries segmenter-level discard counts into the shared
// counters. Must be called with bs.mu held.
func (bs *boundStream) syncStats() {
	st := bs.seg.Stats()
	if d := st.Discarded - bs.last.Discarded; d > 0 {
		bs.counters.discarded.Add(int64(d))
	}
	bs.last = st
}
