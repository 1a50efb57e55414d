package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/maestro-audio/dualcap/internal/resilience"
	"github.com/maestro-audio/dualcap/pkg/audio/device"
	"github.com/maestro-audio/dualcap/pkg/audio/mock"
)

var mic = device.Info{ID: "mic", Name: "USB Mic", Kind: device.KindCapture, IsDefault: true}

func newGuarded(next *mock.Backend, clk *clock) *resilience.Backend {
	return resilience.NewBackend(next, resilience.CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: 5 * time.Second,
		Now:          clk.Now,
	})
}

func TestBackend_PassesThrough(t *testing.T) {
	t.Parallel()
	next := &mock.Backend{Capture: []device.Info{mic}}
	b := newGuarded(next, newClock())
	ctx := context.Background()

	devs, err := b.Devices(ctx, device.KindCapture)
	if err != nil || len(devs) != 1 || devs[0].ID != "mic" {
		t.Fatalf("Devices = %v, %v", devs, err)
	}
	def, err := b.DefaultDevice(ctx, device.KindCapture)
	if err != nil || def.ID != "mic" {
		t.Fatalf("DefaultDevice = %v, %v", def, err)
	}
	s, err := b.OpenStream(ctx, mic, device.StreamConfig{}, func([]byte) {}, func(error) {})
	if err != nil || s == nil {
		t.Fatalf("OpenStream = %v, %v", s, err)
	}
	if len(next.Opened()) != 1 {
		t.Errorf("inner OpenStream calls = %d, want 1", len(next.Opened()))
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if next.CallCountClose != 1 {
		t.Errorf("inner Close calls = %d, want 1", next.CallCountClose)
	}
}

func TestBackend_FailsFastAfterHostErrors(t *testing.T) {
	t.Parallel()
	clk := newClock()
	next := &mock.Backend{
		Capture: []device.Info{mic},
		OpenErr: map[string]error{"mic": errors.New("ma_device_init failed")},
	}
	b := newGuarded(next, clk)
	ctx := context.Background()
	open := func() error {
		_, err := b.OpenStream(ctx, mic, device.StreamConfig{}, func([]byte) {}, func(error) {})
		return err
	}

	for range 2 {
		if err := open(); err == nil || errors.Is(err, resilience.ErrCircuitOpen) {
			t.Fatalf("open while closed = %v, want the host error", err)
		}
	}
	if err := open(); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("open after failures = %v, want ErrCircuitOpen", err)
	}
	if _, err := b.Devices(ctx, device.KindCapture); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Devices while open = %v, want ErrCircuitOpen", err)
	}
	if got := len(next.Opened()); got != 2 {
		t.Errorf("inner OpenStream calls = %d, want 2", got)
	}

	// The host recovers; after the cooldown a probe closes the breaker.
	delete(next.OpenErr, "mic")
	clk.Advance(5 * time.Second)
	if err := open(); err != nil {
		t.Fatalf("probe open: %v", err)
	}
	if got := b.Breaker().State(); got != resilience.StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestIsDeviceFailure(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"host error", errors.New("backend crashed"), true},
		{"no device", fmt.Errorf("no default capture: %w", device.ErrNoDevice), false},
		{"unsupported format", fmt.Errorf("u8: %w", device.ErrUnsupportedFormat), false},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("open: %w", context.DeadlineExceeded), false},
	}
	for _, tt := range tests {
		if got := resilience.IsDeviceFailure(tt.err); got != tt.want {
			t.Errorf("%s: IsDeviceFailure = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBackend_MissingDevicesDoNotTrip(t *testing.T) {
	t.Parallel()
	next := &mock.Backend{DevicesErr: fmt.Errorf("gone: %w", device.ErrNoDevice)}
	b := newGuarded(next, newClock())

	for range 5 {
		if _, err := b.DefaultDevice(context.Background(), device.KindCapture); !errors.Is(err, device.ErrNoDevice) {
			t.Fatalf("DefaultDevice = %v, want ErrNoDevice", err)
		}
	}
	if got := b.Breaker().State(); got != resilience.StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}
