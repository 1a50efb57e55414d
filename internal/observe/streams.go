package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StreamSample is one source's cumulative capture counters at collection
// time.
type StreamSample struct {
	Source          string
	FramesProcessed int64
	FramesDropped   int64
	ChunksEmitted   int64
	BurstsDiscarded int64
	Handoffs        int64
	StreamErrors    int64
	SpeechSeconds   float64
}

// RegisterStreamStats registers observable counters that call fn on every
// collection and report each sample under a "source" attribute. Unregister
// the returned registration to stop observing.
func (m *Metrics) RegisterStreamStats(fn func() []StreamSample) (metric.Registration, error) {
	processed, err := m.meter.Int64ObservableCounter("dualcap.frames.processed",
		metric.WithDescription("Frames fed to the segmenter by source."))
	if err != nil {
		return nil, err
	}
	dropped, err := m.meter.Int64ObservableCounter("dualcap.frames.dropped",
		metric.WithDescription("Frames dropped on segmenter contention by source."))
	if err != nil {
		return nil, err
	}
	emitted, err := m.meter.Int64ObservableCounter("dualcap.chunks.emitted",
		metric.WithDescription("Utterances emitted by source."))
	if err != nil {
		return nil, err
	}
	discarded, err := m.meter.Int64ObservableCounter("dualcap.bursts.discarded",
		metric.WithDescription("Utterances below the minimum speech length by source."))
	if err != nil {
		return nil, err
	}
	handoffs, err := m.meter.Int64ObservableCounter("dualcap.chunks.handoffs",
		metric.WithDescription("Chunks parked on queue contention by source."))
	if err != nil {
		return nil, err
	}
	streamErrs, err := m.meter.Int64ObservableCounter("dualcap.stream.errors",
		metric.WithDescription("Asynchronous device errors by source."))
	if err != nil {
		return nil, err
	}
	speech, err := m.meter.Float64ObservableCounter("dualcap.speech.duration",
		metric.WithDescription("Seconds of emitted speech by source."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, s := range fn() {
			attrs := metric.WithAttributes(attribute.String("source", s.Source))
			o.ObserveInt64(processed, s.FramesProcessed, attrs)
			o.ObserveInt64(dropped, s.FramesDropped, attrs)
			o.ObserveInt64(emitted, s.ChunksEmitted, attrs)
			o.ObserveInt64(discarded, s.BurstsDiscarded, attrs)
			o.ObserveInt64(handoffs, s.Handoffs, attrs)
			o.ObserveInt64(streamErrs, s.StreamErrors, attrs)
			o.ObserveFloat64(speech, s.SpeechSeconds, attrs)
		}
		return nil
	}, processed, dropped, emitted, discarded, handoffs, streamErrs, speech)
}
