package resilience

import (
	"context"
	"errors"

	"github.com/maestro-audio/dualcap/pkg/audio/device"
)

// Backend guards device enumeration and stream opening of a wrapped
// [device.Backend] with a [CircuitBreaker]. While the breaker is open,
// guarded calls return [ErrCircuitOpen] without reaching the host.
type Backend struct {
	next    device.Backend
	breaker *CircuitBreaker
}

// NewBackend wraps next. cfg.IsFailure, if nil, is set to [IsDeviceFailure].
func NewBackend(next device.Backend, cfg CircuitBreakerConfig) *Backend {
	if cfg.Name == "" {
		cfg.Name = "audio-backend"
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = IsDeviceFailure
	}
	return &Backend{next: next, breaker: NewCircuitBreaker(cfg)}
}

// IsDeviceFailure reports whether err points at the audio host rather than
// at the request. Missing endpoints, unsupported formats and cancelled
// contexts do not count.
func IsDeviceFailure(err error) bool {
	switch {
	case errors.Is(err, device.ErrNoDevice),
		errors.Is(err, device.ErrUnsupportedFormat),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// Breaker returns the breaker guarding b.
func (b *Backend) Breaker() *CircuitBreaker { return b.breaker }

// Devices implements [device.Backend].
func (b *Backend) Devices(ctx context.Context, kind device.Kind) ([]device.Info, error) {
	var devs []device.Info
	err := b.breaker.Execute(func() error {
		var err error
		devs, err = b.next.Devices(ctx, kind)
		return err
	})
	return devs, err
}

// DefaultDevice implements [device.Backend].
func (b *Backend) DefaultDevice(ctx context.Context, kind device.Kind) (device.Info, error) {
	var info device.Info
	err := b.breaker.Execute(func() error {
		var err error
		info, err = b.next.DefaultDevice(ctx, kind)
		return err
	})
	return info, err
}

// OpenStream implements [device.Backend].
func (b *Backend) OpenStream(ctx context.Context, info device.Info, cfg device.StreamConfig, onData device.DataCallback, onErr device.ErrorCallback) (device.Stream, error) {
	var s device.Stream
	err := b.breaker.Execute(func() error {
		var err error
		s, err = b.next.OpenStream(ctx, info, cfg, onData, onErr)
		return err
	})
	return s, err
}

// Close closes the wrapped backend. It is not guarded.
func (b *Backend) Close() error { return b.next.Close() }
