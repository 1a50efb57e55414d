// Package capture runs simultaneous microphone and loopback capture and turns
// both streams into speech utterances.
//
// A [Controller] owns the capture lifecycle: it resolves the two endpoints,
// opens and starts their streams, and tears them down again. While running,
// each stream's device callback feeds its own [segment.Segmenter] through a
// [Coordinator]; completed utterances land in a shared [State] queue that the
// consumer drains.
//
// The callback path never blocks and never logs. Lock contention drops a
// frame (segmenter busy) or parks a finished chunk until the next callback
// (queue busy); chunks are never lost.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/maestro-audio/dualcap/internal/observe"
	"github.com/maestro-audio/dualcap/pkg/audio"
	"github.com/maestro-audio/dualcap/pkg/audio/device"
	"github.com/maestro-audio/dualcap/pkg/provider/vad"
)

// ErrAlreadyRunning is returned by [Controller.Start] while capture is active.
var ErrAlreadyRunning = errors.New("capture: already running")

const (
	startedMessage = "Audio capture started"
	stoppedMessage = "Audio capture stopped"
)

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithDiscoverer sets how the loopback endpoint is located. Default:
// [device.ForPlatform] for the running OS.
func WithDiscoverer(d device.Discoverer) Option {
	return func(c *Controller) { c.discoverer = d }
}

// WithMicrophone prefers the capture endpoint whose name best matches name.
// An empty name, or one that matches nothing above threshold, selects the
// default input.
func WithMicrophone(name string, threshold float64) Option {
	return func(c *Controller) {
		c.mic = device.Preferred{Name: name, Threshold: threshold, Kind: device.KindCapture}
	}
}

// WithSegmentConfig sets the utterance detection parameters.
func WithSegmentConfig(cfg SegmentConfig) Option {
	return func(c *Controller) { c.segCfg = cfg }
}

// WithStreamConfig sets the parameters used to open both streams.
func WithStreamConfig(cfg device.StreamConfig) Option {
	return func(c *Controller) { c.streamCfg = cfg }
}

// WithMetrics records lifecycle events on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithFlushOnStop controls whether an utterance in progress is emitted when
// capture stops. Default: true.
func WithFlushOnStop(v bool) Option {
	return func(c *Controller) { c.flushOnStop = v }
}

// Controller starts and stops dual capture. All methods are safe for
// concurrent use.
type Controller struct {
	backend     device.Backend
	engine      vad.Engine
	discoverer  device.Discoverer
	mic         device.Preferred
	streamCfg   device.StreamConfig
	metrics     *observe.Metrics
	flushOnStop bool

	state    *State
	counters *Counters

	// mu serialises Start and Stop. It is never taken on the data path.
	mu      sync.Mutex
	segCfg  SegmentConfig
	coord   *Coordinator
	streams []device.Stream
}

// New returns an idle Controller capturing through backend and classifying
// with engine.
func New(backend device.Backend, engine vad.Engine, opts ...Option) *Controller {
	c := &Controller{
		backend:     backend,
		engine:      engine,
		discoverer:  device.ForPlatform(runtime.GOOS),
		mic:         device.Preferred{Kind: device.KindCapture},
		flushOnStop: true,
		state:       NewState(),
		counters:    &Counters{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start resolves and opens both endpoints and begins capture. Either both
// streams end up running or neither does: any failure stops and closes
// whatever was already opened. The running flag is set only after both
// streams have started.
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Running() {
		return "", ErrAlreadyRunning
	}

	msg, err := c.start(ctx)
	if err != nil {
		c.recordFailure(ctx, err)
		return "", err
	}
	if c.metrics != nil {
		c.metrics.RecordCaptureStart(ctx)
	}
	return msg, nil
}

func (c *Controller) start(ctx context.Context) (string, error) {
	micInfo, err := c.mic.Resolve(ctx, c.backend)
	if err != nil {
		return "", fmt.Errorf("capture: no microphone: %w", err)
	}
	loopInfo, err := c.discoverer.FindLoopback(ctx, c.backend)
	if err != nil {
		return "", fmt.Errorf("capture: no loopback device: %w", err)
	}
	slog.Info("capture devices selected", "mic", micInfo.Name, "loopback", loopInfo.Name, "loopback_mode", loopInfo.IsLoopback())

	coord := NewCoordinator(c.state, c.engine, c.segCfg, c.counters)
	var opened []device.Stream
	rollback := func() {
		for _, s := range opened {
			_ = s.Stop()
			_ = s.Close()
		}
		_ = coord.Close()
	}

	for _, target := range []struct {
		source audio.Source
		info   device.Info
	}{
		{audio.SourceMic, micInfo},
		{audio.SourceLoopback, loopInfo},
	} {
		s, err := c.open(ctx, coord, target.source, target.info)
		if err != nil {
			rollback()
			return "", err
		}
		opened = append(opened, s)
		slog.Info("capture stream opened", "source", target.source, "device", target.info.Name, "format", s.Format().String())
	}

	for i, s := range opened {
		if err := s.Start(); err != nil {
			rollback()
			src := audio.SourceMic
			if i == 1 {
				src = audio.SourceLoopback
			}
			return "", fmt.Errorf("capture: start %s stream: %w", src, err)
		}
	}

	c.coord = coord
	c.streams = opened
	c.state.setRunning(true)
	return startedMessage, nil
}

// open opens a stream and binds it to coord once its negotiated format is
// known. The device delivers nothing before Start, so the late binding is
// never observed as a missing callback.
func (c *Controller) open(ctx context.Context, coord *Coordinator, source audio.Source, info device.Info) (device.Stream, error) {
	var bound atomic.Pointer[device.DataCallback]
	s, err := c.backend.OpenStream(ctx, info, c.streamCfg, func(pcm []byte) {
		if fn := bound.Load(); fn != nil {
			(*fn)(pcm)
		}
	}, coord.ErrorHandler(source))
	if err != nil {
		return nil, fmt.Errorf("capture: open %s stream on %q: %w", source, info.Name, err)
	}
	fn, err := coord.Bind(source, s.Format())
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	bound.Store(&fn)
	return s, nil
}

// Stop ends capture. The running flag is cleared first so in-flight
// callbacks bail out; parked chunks (and, by default, utterances in
// progress) are then published before both streams are stopped and closed.
// Stopping an idle Controller is a no-op that still reports success.
//
// Capture is stopped even when a stream fails to stop or close; such
// failures are returned alongside the success message.
func (c *Controller) Stop() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.setRunning(false)
	if c.coord == nil {
		return stoppedMessage, nil
	}

	c.coord.Flush(c.flushOnStop)

	var errs []error
	for _, s := range c.streams {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.coord.Close(); err != nil {
		errs = append(errs, err)
	}
	c.coord = nil
	c.streams = nil

	if c.metrics != nil {
		c.metrics.RecordCaptureStop(context.Background())
	}
	if err := errors.Join(errs...); err != nil {
		return stoppedMessage, fmt.Errorf("capture: teardown: %w", err)
	}
	return stoppedMessage, nil
}

// Drain removes and returns every queued chunk in arrival order.
func (c *Controller) Drain() []audio.Chunk { return c.state.Drain() }

// TalkRatio returns cumulative speech seconds for mic and loopback. The
// counters survive Stop and are never reset.
func (c *Controller) TalkRatio() (mic, loopback float64) { return c.state.TalkRatio() }

// Running reports whether capture is active.
func (c *Controller) Running() bool { return c.state.Running() }

// Queued returns the number of chunks waiting to be drained.
func (c *Controller) Queued() int { return c.state.Queued() }

// Stats returns the per-source counters, mic first.
func (c *Controller) Stats() []StreamStats { return c.counters.Snapshot() }

// ListDevices returns the names of all capture and playback endpoints.
func (c *Controller) ListDevices(ctx context.Context) (device.Listing, error) {
	return device.List(ctx, c.backend)
}

// SetSegmentConfig replaces the utterance detection parameters. The change
// applies from the next Start.
func (c *Controller) SetSegmentConfig(cfg SegmentConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segCfg = cfg
}

func (c *Controller) recordFailure(ctx context.Context, err error) {
	if c.metrics == nil {
		return
	}
	reason := "device"
	switch {
	case errors.Is(err, device.ErrUnsupportedFormat):
		reason = "unsupported_format"
	case errors.Is(err, device.ErrNoDevice):
		reason = "no_device"
	}
	c.metrics.RecordCaptureFailure(ctx, reason)
}
