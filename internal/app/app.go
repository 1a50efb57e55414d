// Package app wires the dualcap subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates the device backend,
// VAD engine and capture controller from the config and mounts the HTTP
// surface, Run serves it until the context ends, and Shutdown stops capture
// and releases everything in order.
//
// For testing, inject mock implementations via functional options
// (WithBackend, WithVADEngine, ...). When an option is not provided, New
// creates real implementations through the config registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/maestro-audio/dualcap/internal/api"
	"github.com/maestro-audio/dualcap/internal/capture"
	"github.com/maestro-audio/dualcap/internal/config"
	"github.com/maestro-audio/dualcap/internal/health"
	"github.com/maestro-audio/dualcap/internal/observe"
	"github.com/maestro-audio/dualcap/internal/resilience"
	"github.com/maestro-audio/dualcap/pkg/audio/device"
	"github.com/maestro-audio/dualcap/pkg/provider/vad"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the graceful HTTP shutdown once Run's context ends.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	mu  sync.Mutex
	cfg *config.Config

	backend        device.Backend
	engine         vad.Engine
	metrics        *observe.Metrics
	metricsHandler http.Handler
	level          *slog.LevelVar
	watcher        *config.Watcher
	goos           string

	ctrl    *capture.Controller
	api     *api.Server
	handler http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackend injects a device backend instead of creating one from config.
// The caller keeps ownership: Shutdown does not close it.
func WithBackend(b device.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithVADEngine injects a VAD engine instead of creating one from config.
func WithVADEngine(e vad.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets config reloads adjust lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithWatcher polls w for config changes while Run is active. The watcher's
// callback should call [App.ApplyConfig].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithGOOS overrides the platform used to pick loopback discovery.
func WithGOOS(goos string) Option {
	return func(a *App) { a.goos = goos }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. Backends and VAD engines that are not
// injected are created through reg. The backend, injected or not, is
// guarded by a circuit breaker tuned by capture.device_failures and
// capture.device_cooldown.
func New(cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, goos: runtime.GOOS}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initProviders(reg); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initCapture(); err != nil {
		a.closeAll()
		return nil, err
	}
	a.initHTTP()
	return a, nil
}

func (a *App) initProviders(reg *config.Registry) error {
	if a.backend == nil {
		b, err := reg.CreateBackend(a.cfg.Capture)
		if err != nil {
			return fmt.Errorf("app: create backend: %w", err)
		}
		a.backend = b
		a.closers = append(a.closers, b.Close)
	}
	if a.engine == nil {
		e, err := reg.CreateVAD(a.cfg.Capture)
		if err != nil {
			return fmt.Errorf("app: create vad engine: %w", err)
		}
		a.engine = e
	}

	a.backend = resilience.NewBackend(a.backend, resilience.CircuitBreakerConfig{
		Name:         "backend:" + a.cfg.Capture.Backend,
		MaxFailures:  a.cfg.Capture.DeviceFailures,
		ResetTimeout: a.cfg.Capture.DeviceCooldown,
	})
	return nil
}

func (a *App) initCapture() error {
	disc, err := loopbackDiscoverer(a.cfg.Devices, a.goos)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	a.ctrl = capture.New(a.backend, a.engine,
		capture.WithDiscoverer(disc),
		capture.WithMicrophone(a.cfg.Devices.Microphone, a.cfg.Devices.MatchThreshold),
		capture.WithSegmentConfig(segmentConfig(a.cfg.Capture)),
		capture.WithFlushOnStop(a.cfg.Capture.FlushesOnStop()),
		capture.WithMetrics(a.metrics),
	)

	reg, err := a.metrics.RegisterStreamStats(a.streamSamples)
	if err != nil {
		return fmt.Errorf("app: register stream metrics: %w", err)
	}
	a.closers = append(a.closers, reg.Unregister)
	return nil
}

func (a *App) initHTTP() {
	a.api = api.New(a.ctrl, a.metrics, api.WithPollInterval(a.cfg.Capture.PollInterval))

	mux := http.NewServeMux()
	a.api.Register(mux)
	health.New(health.BackendChecker(a.backend)).Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	a.handler = observe.Middleware(a.metrics)(mux)
}

// loopbackDiscoverer builds the loopback lookup chain: a configured name is
// tried against outputs and then monitor sources before falling back to the
// configured strategy.
func loopbackDiscoverer(cfg config.DevicesConfig, goos string) (device.Discoverer, error) {
	disc, err := device.ForStrategy(string(cfg.LoopbackStrategy), goos)
	if err != nil {
		return nil, err
	}
	if cfg.Loopback == "" {
		return disc, nil
	}
	return device.Preferred{
		Name:      cfg.Loopback,
		Threshold: cfg.MatchThreshold,
		Kind:      device.KindPlayback,
		Next: device.Preferred{
			Name:      cfg.Loopback,
			Threshold: cfg.MatchThreshold,
			Kind:      device.KindCapture,
			Next:      disc,
		},
	}, nil
}

func segmentConfig(c config.CaptureConfig) capture.SegmentConfig {
	return capture.SegmentConfig{
		SpeechThreshold:    c.SpeechThreshold,
		SilenceFrames:      c.SilenceFrames,
		MinSpeechFrames:    c.MinSpeechFrames,
		MaxBufferedSamples: c.MaxBufferedSamples(),
	}
}

func (a *App) streamSamples() []observe.StreamSample {
	stats := a.ctrl.Stats()
	out := make([]observe.StreamSample, len(stats))
	for i, s := range stats {
		out[i] = observe.StreamSample{
			Source:          s.Source.String(),
			FramesProcessed: s.FramesProcessed,
			FramesDropped:   s.FramesDropped,
			ChunksEmitted:   s.ChunksEmitted,
			BurstsDiscarded: s.BurstsDiscarded,
			Handoffs:        s.Handoffs,
			StreamErrors:    s.StreamErrors,
			SpeechSeconds:   s.SpeechSeconds,
		}
	}
	return out
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler with all routes and middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Controller returns the capture controller.
func (a *App) Controller() *capture.Controller { return a.ctrl }

// Config returns the config currently in effect.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig adopts the hot-reloadable parts of next. The log level and
// event cadence change immediately; utterance detection parameters apply
// from the next capture start. Settings that need a restart are logged.
func (a *App) ApplyConfig(prev, next *config.Config) {
	d := config.Diff(prev, next)
	if !d.Changed() {
		return
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SegmentChanged {
		a.ctrl.SetSegmentConfig(segmentConfig(next.Capture))
		slog.Info("utterance detection updated; applies on next capture start",
			"speech_threshold", next.Capture.SpeechThreshold,
			"silence_frames", next.Capture.SilenceFrames,
			"min_speech_frames", next.Capture.MinSpeechFrames,
			"max_utterance_seconds", next.Capture.MaxUtteranceSeconds,
		)
	}
	if d.PollIntervalChanged {
		a.api.SetPollInterval(next.Capture.PollInterval)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "fields", d.RestartRequired)
	}

	a.mu.Lock()
	a.cfg = next
	a.mu.Unlock()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config().Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves the HTTP surface on ln, and polls the config watcher if one
// was given, until ctx is cancelled. Open event streams are closed when ctx
// ends. It returns nil on a clean shutdown.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		slog.Info("control api listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops capture and releases subsystems in order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if _, err := a.ctrl.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop capture: %w", err))
		}

		for i, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, err)
				return
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				errs = append(errs, err)
			}
		}

		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

// closeAll releases whatever a partially failed New created.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		_ = closer()
	}
	a.closers = nil
}
