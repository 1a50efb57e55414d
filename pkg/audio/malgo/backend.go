// Package malgo implements [device.Backend] on top of miniaudio through
// github.com/gen2brain/malgo.
//
// miniaudio picks the host API at runtime (WASAPI, CoreAudio, PulseAudio,
// ALSA, ...). Playback endpoints are opened in miniaudio's loopback mode,
// which only WASAPI implements; elsewhere opening one fails and callers are
// expected to use a monitor source instead.
package malgo

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	ma "github.com/gen2brain/malgo"

	"github.com/maestro-audio/dualcap/pkg/audio/device"
)

// Backend is a miniaudio context. Create one with [New]; it is safe for
// concurrent use.
type Backend struct {
	mu     sync.Mutex
	ctx    *ma.AllocatedContext
	closed bool
}

// New initialises a miniaudio context with the platform's default host API
// ordering. miniaudio's own diagnostics are forwarded to slog at debug level.
func New() (*Backend, error) {
	ctx, err := ma.InitContext(nil, ma.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	return &Backend{ctx: ctx}, nil
}

// Devices implements [device.Backend].
func (b *Backend) Devices(ctx context.Context, kind device.Kind) ([]device.Info, error) {
	infos, err := b.enumerate(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]device.Info, 0, len(infos))
	for i := range infos {
		out = append(out, toInfo(&infos[i], kind))
	}
	return out, nil
}

// DefaultDevice implements [device.Backend]. Some host APIs flag no
// endpoint as default; the first enumerated one is used then.
func (b *Backend) DefaultDevice(ctx context.Context, kind device.Kind) (device.Info, error) {
	devs, err := b.Devices(ctx, kind)
	if err != nil {
		return device.Info{}, err
	}
	info, err := device.FindDefault(devs, kind)
	if err != nil {
		return device.Info{}, fmt.Errorf("malgo: %w", err)
	}
	return info, nil
}

// OpenStream implements [device.Backend]. The device is initialised with its
// native channel count and sample rate. Only f32 and s16 are accepted; any
// other negotiated encoding releases the device and returns
// [device.ErrUnsupportedFormat].
func (b *Backend) OpenStream(ctx context.Context, info device.Info, cfg device.StreamConfig, onData device.DataCallback, onErr device.ErrorCallback) (device.Stream, error) {
	infos, err := b.enumerate(ctx, info.Kind)
	if err != nil {
		return nil, err
	}
	var id *ma.DeviceID
	for i := range infos {
		if encodeID(&infos[i].ID) == info.ID {
			id = &infos[i].ID
			break
		}
	}
	if id == nil {
		return nil, fmt.Errorf("malgo: %s device %q: %w", info.Kind, info.Name, device.ErrNoDevice)
	}

	mode := ma.Capture
	if info.IsLoopback() {
		mode = ma.Loopback
	}
	dc := ma.DefaultDeviceConfig(mode)
	dc.Capture.DeviceID = id.Pointer()
	dc.Capture.Format = toFormatType(cfg.SampleFormat)
	dc.Capture.Channels = 0
	dc.SampleRate = 0
	if cfg.PeriodFrames > 0 {
		dc.PeriodSizeInFrames = uint32(cfg.PeriodFrames)
	}

	s := &stream{name: info.Name, onData: onData, onErr: onErr}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, device.ErrClosed
	}
	dev, err := ma.InitDevice(b.ctx.Context, dc, ma.DeviceCallbacks{
		Data: s.data,
		Stop: s.stopped,
	})
	b.mu.Unlock()
	if err != nil {
		if info.IsLoopback() {
			return nil, fmt.Errorf("malgo: open loopback on %q: %w", info.Name, errors.Join(device.ErrNoDevice, err))
		}
		return nil, fmt.Errorf("malgo: open %q: %w", info.Name, err)
	}

	s.dev = dev
	s.format = device.Format{
		SampleFormat: fromFormatType(dev.CaptureFormat()),
		Channels:     int(dev.CaptureChannels()),
		SampleRate:   int(dev.SampleRate()),
	}
	if f := s.format.SampleFormat; f != device.FormatF32 && f != device.FormatS16 {
		dev.Uninit()
		return nil, fmt.Errorf("malgo: %q delivers %s: %w", info.Name, f, device.ErrUnsupportedFormat)
	}
	return s, nil
}

// Close releases the miniaudio context. It is idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.ctx.Uninit(); err != nil {
		b.ctx.Free()
		return fmt.Errorf("malgo: uninit context: %w", err)
	}
	b.ctx.Free()
	return nil
}

func (b *Backend) enumerate(ctx context.Context, kind device.Kind) ([]ma.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, device.ErrClosed
	}
	dt := ma.Capture
	if kind == device.KindPlayback {
		dt = ma.Playback
	}
	infos, err := b.ctx.Devices(dt)
	if err != nil {
		return nil, fmt.Errorf("malgo: enumerate %s devices: %w", kind, err)
	}
	return infos, nil
}

var _ device.Backend = (*Backend)(nil)

// stream wraps one initialised miniaudio device.
type stream struct {
	name   string
	dev    *ma.Device
	format device.Format
	onData device.DataCallback
	onErr  device.ErrorCallback

	mu       sync.Mutex
	closed   bool
	stopping atomic.Bool
}

func (s *stream) data(_, in []byte, _ uint32) {
	if len(in) > 0 && s.onData != nil {
		s.onData(in)
	}
}

// stopped runs when miniaudio stops the device. Anything other than our own
// Stop means the device went away underneath us.
func (s *stream) stopped() {
	if s.stopping.Load() || s.onErr == nil {
		return
	}
	s.onErr(fmt.Errorf("malgo: device %q stopped unexpectedly", s.name))
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return device.ErrClosed
	}
	s.stopping.Store(false)
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("malgo: start %q: %w", s.name, err)
	}
	return nil
}

func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.dev.IsStarted() {
		return nil
	}
	s.stopping.Store(true)
	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("malgo: stop %q: %w", s.name, err)
	}
	return nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopping.Store(true)
	s.dev.Uninit()
	return nil
}

func (s *stream) Format() device.Format { return s.format }

func toInfo(di *ma.DeviceInfo, kind device.Kind) device.Info {
	return device.Info{
		ID:        encodeID(&di.ID),
		Name:      di.Name(),
		Kind:      kind,
		IsDefault: di.IsDefault != 0,
	}
}

func encodeID(id *ma.DeviceID) string {
	return hex.EncodeToString(id[:])
}

func toFormatType(f device.SampleFormat) ma.FormatType {
	switch f {
	case device.FormatU8:
		return ma.FormatU8
	case device.FormatS16:
		return ma.FormatS16
	case device.FormatS24:
		return ma.FormatS24
	case device.FormatS32:
		return ma.FormatS32
	case device.FormatF32:
		return ma.FormatF32
	default:
		return ma.FormatUnknown
	}
}

func fromFormatType(f ma.FormatType) device.SampleFormat {
	switch f {
	case ma.FormatU8:
		return device.FormatU8
	case ma.FormatS16:
		return device.FormatS16
	case ma.FormatS24:
		return device.FormatS24
	case ma.FormatS32:
		return device.FormatS32
	case ma.FormatF32:
		return device.FormatF32
	default:
		return device.FormatUnknown
	}
}
