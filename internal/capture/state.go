package capture

import (
	"sync"
	"sync/atomic"

	"github.com/maestro-audio/dualcap/pkg/audio"
)

// State is shared between both capture callbacks and the consumer.
//
// The running flag is lock-free so callbacks can bail out without touching
// the mutex. The chunk queue and both speech counters sit behind one mutex so
// that a chunk and the seconds it contributes always appear together.
type State struct {
	running atomic.Bool

	mu           sync.Mutex
	queue        []audio.Chunk
	micSecs      float64
	loopbackSecs float64
}

// NewState returns an idle State with an empty queue.
func NewState() *State {
	return &State{}
}

// Running reports whether capture is active.
func (s *State) Running() bool { return s.running.Load() }

func (s *State) setRunning(v bool) { s.running.Store(v) }

// tryPublish appends c without blocking. It returns false when the lock is
// contended, in which case nothing changed.
func (s *State) tryPublish(c audio.Chunk) bool {
	if !s.mu.TryLock() {
		return false
	}
	s.appendLocked(c)
	s.mu.Unlock()
	return true
}

// publish appends c, waiting for the lock. Only used off the callback path.
func (s *State) publish(c audio.Chunk) {
	s.mu.Lock()
	s.appendLocked(c)
	s.mu.Unlock()
}

func (s *State) appendLocked(c audio.Chunk) {
	s.queue = append(s.queue, c)
	switch c.Source {
	case audio.SourceMic:
		s.micSecs += c.DurationSecs
	case audio.SourceLoopback:
		s.loopbackSecs += c.DurationSecs
	}
}

// Drain removes and returns every queued chunk in arrival order. The result
// is never nil.
func (s *State) Drain() []audio.Chunk {
	s.mu.Lock()
	out := s.queue
	s.queue = nil
	s.mu.Unlock()
	if out == nil {
		return []audio.Chunk{}
	}
	return out
}

// TalkRatio returns the cumulative seconds of emitted speech per source. It
// does not reset the counters.
func (s *State) TalkRatio() (mic, loopback float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micSecs, s.loopbackSecs
}

// Queued returns the number of chunks waiting to be drained.
func (s *State) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
