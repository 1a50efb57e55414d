// Command dualcap captures microphone and system audio side by side, splits
// both streams into utterances and serves them over a local HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maestro-audio/dualcap/internal/app"
	"github.com/maestro-audio/dualcap/internal/config"
	"github.com/maestro-audio/dualcap/internal/observe"
	"github.com/maestro-audio/dualcap/pkg/audio/device"
	"github.com/maestro-audio/dualcap/pkg/audio/malgo"
	"github.com/maestro-audio/dualcap/pkg/provider/vad"
	"github.com/maestro-audio/dualcap/pkg/provider/vad/energy"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "dualcap.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "print capture and playback device names as JSON and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	var (
		cfg     *config.Config
		watcher *config.Watcher
		err     error

		application *app.App
	)
	if _, statErr := os.Stat(*configPath); errors.Is(statErr, os.ErrNotExist) && !flagSet("config") {
		cfg = config.Default()
	} else {
		watcher, err = config.NewWatcher(*configPath, func(old, new *config.Config) {
			application.ApplyConfig(old, new)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "dualcap: %v\n", err)
			return 1
		}
		cfg = watcher.Current()
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if *listDevices {
		return printDevices(reg, cfg)
	}

	slog.Info("dualcap starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"backend", cfg.Capture.Backend,
		"vad", cfg.Capture.VAD,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	opts := []app.Option{
		app.WithMetrics(telemetry.Metrics),
		app.WithMetricsHandler(telemetry.Handler()),
		app.WithLogLevel(&level),
	}
	if watcher != nil {
		opts = append(opts, app.WithWatcher(watcher))
	}
	application, err = app.New(cfg, reg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	status := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		status = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		status = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return status
}

// registerBuiltinProviders registers the implementations that ship with
// dualcap.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterBackend("malgo", func(config.CaptureConfig) (device.Backend, error) {
		b, err := malgo.New()
		if err != nil {
			return nil, err
		}
		return b, nil
	})
	reg.RegisterVAD("energy", func(config.CaptureConfig) (vad.Engine, error) {
		return energy.New(), nil
	})
}

// printDevices writes the device listing to stdout.
func printDevices(reg *config.Registry, cfg *config.Config) int {
	backend, err := reg.CreateBackend(cfg.Capture)
	if err != nil {
		slog.Error("failed to create backend", "err", err)
		return 1
	}
	defer backend.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	listing, err := device.List(ctx, backend)
	if err != nil {
		slog.Error("failed to list devices", "err", err)
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(listing); err != nil {
		slog.Error("failed to write device listing", "err", err)
		return 1
	}
	return 0
}

// flagSet reports whether the named flag was given on the command line.
func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
