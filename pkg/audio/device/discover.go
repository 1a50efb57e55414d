package device

import (
	"context"
	"fmt"
	"strings"
)

// Loopback discovery strategies accepted by [ForStrategy].
const (
	StrategyAuto          = "auto"
	StrategyMonitor       = "monitor"
	StrategyDefaultOutput = "default-output"
)

// Discoverer locates the endpoint that captures system output.
type Discoverer interface {
	// FindLoopback returns the endpoint to open for loopback capture, or an
	// error wrapping [ErrNoDevice].
	FindLoopback(ctx context.Context, b Backend) (Info, error)
}

// DefaultOutput opens the default playback endpoint in loopback mode. This is
// how WASAPI exposes loopback natively; on macOS it works when a loopback
// driver is installed as the default output.
type DefaultOutput struct{}

// FindLoopback returns the default playback endpoint.
func (DefaultOutput) FindLoopback(ctx context.Context, b Backend) (Info, error) {
	info, err := b.DefaultDevice(ctx, KindPlayback)
	if err != nil {
		return Info{}, fmt.Errorf("device: default output for loopback: %w", err)
	}
	return info, nil
}

// MonitorSource looks for a PulseAudio/PipeWire monitor source: a capture
// endpoint whose name contains "monitor", case-insensitively. The first one
// in enumeration order wins. When none exists, Fallback is consulted.
type MonitorSource struct {
	Fallback Discoverer
}

// FindLoopback returns the first monitor source or defers to Fallback.
func (m MonitorSource) FindLoopback(ctx context.Context, b Backend) (Info, error) {
	devs, err := b.Devices(ctx, KindCapture)
	if err == nil {
		for _, d := range devs {
			if IsMonitorName(d.Name) {
				return d, nil
			}
		}
	}
	if m.Fallback != nil {
		return m.Fallback.FindLoopback(ctx, b)
	}
	if err != nil {
		return Info{}, fmt.Errorf("device: list capture devices: %w", err)
	}
	return Info{}, fmt.Errorf("device: no monitor source: %w", ErrNoDevice)
}

// IsMonitorName reports whether name looks like a monitor source.
func IsMonitorName(name string) bool {
	return strings.Contains(strings.ToLower(name), "monitor")
}

// ForPlatform returns the loopback discoverer appropriate for goos, which is
// normally runtime.GOOS. Linux prefers a monitor source and falls back to the
// default output; every other platform uses the default output directly.
func ForPlatform(goos string) Discoverer {
	if goos == "linux" {
		return MonitorSource{Fallback: DefaultOutput{}}
	}
	return DefaultOutput{}
}

// ForStrategy maps a configured strategy name to a discoverer.
// [StrategyAuto] and the empty string defer to [ForPlatform].
func ForStrategy(strategy, goos string) (Discoverer, error) {
	switch strategy {
	case "", StrategyAuto:
		return ForPlatform(goos), nil
	case StrategyMonitor:
		return MonitorSource{}, nil
	case StrategyDefaultOutput:
		return DefaultOutput{}, nil
	default:
		return nil, fmt.Errorf("device: unknown loopback strategy %q", strategy)
	}
}
