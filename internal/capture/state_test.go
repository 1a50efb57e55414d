package capture

import (
	"testing"

	"github.com/maestro-audio/dualcap/pkg/audio"
)

func TestState_DrainIsFIFOAndEmptiesQueue(t *testing.T) {
	t.Parallel()
	s := NewState()
	if got := s.Drain(); got == nil || len(got) != 0 {
		t.Fatalf("Drain on empty state = %#v, want empty non-nil slice", got)
	}

	s.publish(audio.Chunk{Source: audio.SourceMic, SampleCount: 1, DurationSecs: 0.5})
	if !s.tryPublish(audio.Chunk{Source: audio.SourceLoopback, SampleCount: 2, DurationSecs: 0.25}) {
		t.Fatal("tryPublish failed on an uncontended lock")
	}
	s.publish(audio.Chunk{Source: audio.SourceMic, SampleCount: 3, DurationSecs: 1})

	got := s.Drain()
	if len(got) != 3 {
		t.Fatalf("Drain returned %d chunks, want 3", len(got))
	}
	for i, c := range got {
		if c.SampleCount != i+1 {
			t.Errorf("chunk %d SampleCount = %d, want %d", i, c.SampleCount, i+1)
		}
	}
	if s.Queued() != 0 {
		t.Errorf("Queued = %d after Drain, want 0", s.Queued())
	}

	mic, loop := s.TalkRatio()
	if mic != 1.5 || loop != 0.25 {
		t.Errorf("TalkRatio = (%g, %g), want (1.5, 0.25)", mic, loop)
	}
	// Reading does not reset.
	if mic2, loop2 := s.TalkRatio(); mic2 != mic || loop2 != loop {
		t.Error("TalkRatio changed between reads")
	}
}

func TestState_TryPublishContended(t *testing.T) {
	t.Parallel()
	s := NewState()
	s.mu.Lock()
	ok := s.tryPublish(audio.Chunk{Source: audio.SourceMic, DurationSecs: 1})
	s.mu.Unlock()
	if ok {
		t.Fatal("tryPublish succeeded while the lock was held")
	}
	if s.Queued() != 0 {
		t.Errorf("Queued = %d, want 0", s.Queued())
	}
	if mic, _ := s.TalkRatio(); mic != 0 {
		t.Errorf("mic seconds = %g, want 0", mic)
	}
}
