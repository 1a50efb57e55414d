package device_test

import (
	"context"
	"errors"
	"testing"

	"github.com/maestro-audio/dualcap/pkg/audio/device"
	"github.com/maestro-audio/dualcap/pkg/audio/mock"
)

func newBackend() *mock.Backend {
	return &mock.Backend{
		Capture: []device.Info{
			{ID: "in-1", Name: "Built-in Microphone", Kind: device.KindCapture, IsDefault: true},
			{ID: "in-2", Name: "Monitor of Built-in Audio Analog Stereo", Kind: device.KindCapture},
			{ID: "in-3", Name: "Scarlett 2i2 USB", Kind: device.KindCapture},
		},
		Playback: []device.Info{
			{ID: "out-1", Name: "Built-in Audio Analog Stereo", Kind: device.KindPlayback, IsDefault: true},
			{ID: "out-2", Name: "HDMI Output", Kind: device.KindPlayback},
		},
	}
}

func TestForPlatform(t *testing.T) {
	t.Parallel()
	tests := []struct {
		goos   string
		wantID string
	}{
		{"linux", "in-2"},
		{"windows", "out-1"},
		{"darwin", "out-1"},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			t.Parallel()
			info, err := device.ForPlatform(tt.goos).FindLoopback(context.Background(), newBackend())
			if err != nil {
				t.Fatalf("FindLoopback: %v", err)
			}
			if info.ID != tt.wantID {
				t.Errorf("FindLoopback = %q, want %q", info.ID, tt.wantID)
			}
		})
	}
}

func TestMonitorSource_FallsBackToDefaultOutput(t *testing.T) {
	t.Parallel()
	b := newBackend()
	b.Capture = b.Capture[:1]

	info, err := device.ForPlatform("linux").FindLoopback(context.Background(), b)
	if err != nil {
		t.Fatalf("FindLoopback: %v", err)
	}
	if info.ID != "out-1" || !info.IsLoopback() {
		t.Errorf("got %+v, want default output opened as loopback", info)
	}
}

func TestMonitorSource_NoFallback(t *testing.T) {
	t.Parallel()
	b := newBackend()
	b.Capture = b.Capture[:1]

	_, err := device.MonitorSource{}.FindLoopback(context.Background(), b)
	if !errors.Is(err, device.ErrNoDevice) {
		t.Errorf("err = %v, want ErrNoDevice", err)
	}
}

func TestDefaultOutput_NoDevice(t *testing.T) {
	t.Parallel()
	b := newBackend()
	b.Playback = nil

	_, err := device.DefaultOutput{}.FindLoopback(context.Background(), b)
	if !errors.Is(err, device.ErrNoDevice) {
		t.Errorf("err = %v, want ErrNoDevice", err)
	}
}

func TestDefaultOutput_NoneFlagged(t *testing.T) {
	t.Parallel()
	b := newBackend()
	b.Playback[0].IsDefault = false

	info, err := device.DefaultOutput{}.FindLoopback(context.Background(), b)
	if err != nil {
		t.Fatalf("FindLoopback: %v", err)
	}
	if info.ID != "out-1" {
		t.Errorf("got %q, want the first playback endpoint", info.ID)
	}
}

func TestFindDefault(t *testing.T) {
	t.Parallel()
	a := device.Info{ID: "a", Kind: device.KindCapture}
	b := device.Info{ID: "b", Kind: device.KindCapture, IsDefault: true}
	tests := []struct {
		name   string
		devs   []device.Info
		wantID string
	}{
		{"flagged wins", []device.Info{a, b}, "b"},
		{"none flagged takes first", []device.Info{a, {ID: "c"}}, "a"},
	}
	for _, tt := range tests {
		got, err := device.FindDefault(tt.devs, device.KindCapture)
		if err != nil {
			t.Fatalf("%s: FindDefault: %v", tt.name, err)
		}
		if got.ID != tt.wantID {
			t.Errorf("%s: FindDefault = %q, want %q", tt.name, got.ID, tt.wantID)
		}
	}
	if _, err := device.FindDefault(nil, device.KindCapture); !errors.Is(err, device.ErrNoDevice) {
		t.Errorf("FindDefault(nil) err = %v, want ErrNoDevice", err)
	}
}

func TestForStrategy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		strategy string
		wantID   string
		wantErr  bool
	}{
		{"", "in-2", false},
		{device.StrategyAuto, "in-2", false},
		{device.StrategyMonitor, "in-2", false},
		{device.StrategyDefaultOutput, "out-1", false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			t.Parallel()
			d, err := device.ForStrategy(tt.strategy, "linux")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ForStrategy: %v", err)
			}
			info, err := d.FindLoopback(context.Background(), newBackend())
			if err != nil {
				t.Fatalf("FindLoopback: %v", err)
			}
			if info.ID != tt.wantID {
				t.Errorf("FindLoopback = %q, want %q", info.ID, tt.wantID)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()
	devs := newBackend().Capture
	tests := []struct {
		name   string
		query  string
		wantID string
		wantOK bool
	}{
		{"exact case-insensitive", "built-in microphone", "in-1", true},
		{"substring", "scarlett", "in-3", true},
		{"typo", "Scarlet 2i2 USB", "in-3", true},
		{"unrelated", "Bluetooth Headset", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, score, ok := device.Match(devs, tt.query, device.DefaultMatchThreshold)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v (score %.3f), want %v", ok, score, tt.wantOK)
			}
			if ok && got.ID != tt.wantID {
				t.Errorf("matched %q, want %q", got.ID, tt.wantID)
			}
		})
	}
}

func TestPreferred_Resolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newBackend()

	info, err := device.Preferred{Name: "scarlett 2i2"}.Resolve(ctx, b)
	if err != nil || info.ID != "in-3" {
		t.Errorf("preferred match: got %q, %v; want in-3", info.ID, err)
	}

	info, err = device.Preferred{Name: "does not exist"}.Resolve(ctx, b)
	if err != nil || info.ID != "in-1" {
		t.Errorf("unmatched name: got %q, %v; want default in-1", info.ID, err)
	}

	info, err = device.Preferred{}.Resolve(ctx, b)
	if err != nil || info.ID != "in-1" {
		t.Errorf("empty name: got %q, %v; want default in-1", info.ID, err)
	}
}

func TestPreferred_AsDiscoverer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newBackend()

	p := device.Preferred{Name: "HDMI", Kind: device.KindPlayback, Next: device.ForPlatform("linux")}
	info, err := p.FindLoopback(ctx, b)
	if err != nil || info.ID != "out-2" {
		t.Errorf("preferred loopback: got %q, %v; want out-2", info.ID, err)
	}

	p.Name = "nothing like it"
	info, err = p.FindLoopback(ctx, b)
	if err != nil || info.ID != "in-2" {
		t.Errorf("fallback: got %q, %v; want in-2", info.ID, err)
	}

	p.Next = nil
	if _, err := p.FindLoopback(ctx, b); !errors.Is(err, device.ErrNoDevice) {
		t.Errorf("no fallback: err = %v, want ErrNoDevice", err)
	}
}

func TestList(t *testing.T) {
	t.Parallel()
	b := newBackend()
	b.Playback = append(b.Playback, device.Info{ID: "out-3", Kind: device.KindPlayback})

	l, err := device.List(context.Background(), b)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(l.Input) != 3 || l.Input[0] != "Built-in Microphone" {
		t.Errorf("Input = %v", l.Input)
	}
	if len(l.Output) != 2 {
		t.Errorf("Output = %v, want 2 named entries", l.Output)
	}
}

func TestList_Empty(t *testing.T) {
	t.Parallel()
	l, err := device.List(context.Background(), &mock.Backend{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if l.Input == nil || l.Output == nil {
		t.Errorf("expected non-nil empty slices, got %#v", l)
	}
}

func TestList_Error(t *testing.T) {
	t.Parallel()
	b := newBackend()
	b.DevicesErr = errors.New("host api down")
	if _, err := device.List(context.Background(), b); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	f := device.Format{SampleFormat: device.FormatS16, Channels: 2, SampleRate: 44100}
	if got := f.String(); got != "s16 2ch @ 44100Hz" {
		t.Errorf("String() = %q", got)
	}
	if device.FormatF32.BytesPerSample() != 4 || device.FormatS16.BytesPerSample() != 2 {
		t.Error("unexpected BytesPerSample")
	}
}
