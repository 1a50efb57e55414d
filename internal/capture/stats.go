package capture

import (
	"sync/atomic"

	"github.com/maestro-audio/dualcap/pkg/audio"
)

// StreamStats is a point-in-time copy of one source's counters. All values
// are cumulative over the lifetime of the [Counters] they came from.
type StreamStats struct {
	Source audio.Source `json:"source"`

	// FramesProcessed counts callbacks whose frame reached the segmenter.
	FramesProcessed int64 `json:"frames_processed"`

	// FramesDropped counts callbacks skipped because the segmenter was busy.
	FramesDropped int64 `json:"frames_dropped"`

	// ChunksEmitted counts utterances handed to the queue.
	ChunksEmitted int64 `json:"chunks_emitted"`

	// BurstsDiscarded counts utterances below the minimum speech length.
	BurstsDiscarded int64 `json:"bursts_discarded"`

	// Handoffs counts chunks that had to be parked because the queue lock
	// was contended.
	Handoffs int64 `json:"handoffs"`

	// StreamErrors counts asynchronous errors reported by the device.
	StreamErrors int64 `json:"stream_errors"`

	// SpeechSeconds is the total duration of emitted chunks.
	SpeechSeconds float64 `json:"speech_secs"`
}

// Counters holds lock-free per-source counters written from the capture
// callbacks. The zero value is ready to use and safe for concurrent use.
type Counters struct {
	mic      sourceCounters
	loopback sourceCounters
}

type sourceCounters struct {
	processed     atomic.Int64
	dropped       atomic.Int64
	emitted       atomic.Int64
	discarded     atomic.Int64
	handoffs      atomic.Int64
	errors        atomic.Int64
	speechSamples atomic.Int64
}

func (c *Counters) of(src audio.Source) *sourceCounters {
	if src == audio.SourceLoopback {
		return &c.loopback
	}
	return &c.mic
}

// Snapshot returns the counters of both sources, mic first.
func (c *Counters) Snapshot() []StreamStats {
	return []StreamStats{
		c.of(audio.SourceMic).snapshot(audio.SourceMic),
		c.of(audio.SourceLoopback).snapshot(audio.SourceLoopback),
	}
}

func (sc *sourceCounters) snapshot(src audio.Source) StreamStats {
	return StreamStats{
		Source:          src,
		FramesProcessed: sc.processed.Load(),
		FramesDropped:   sc.dropped.Load(),
		ChunksEmitted:   sc.emitted.Load(),
		BurstsDiscarded: sc.discarded.Load(),
		Handoffs:        sc.handoffs.Load(),
		StreamErrors:    sc.errors.Load(),
		SpeechSeconds:   audio.SamplesToSeconds(int(sc.speechSamples.Load())),
	}
}
