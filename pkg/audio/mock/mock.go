// Package mock provides an in-memory, scriptable implementation of
// [device.Backend] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	b := &mock.Backend{
//	    Capture:  []device.Info{{ID: "mic", Name: "USB Mic", Kind: device.KindCapture, IsDefault: true}},
//	    Playback: []device.Info{{ID: "spk", Name: "Speakers", Kind: device.KindPlayback, IsDefault: true}},
//	    Formats:  map[string]device.Format{"mic": {SampleFormat: device.FormatS16, Channels: 1, SampleRate: 16000}},
//	}
//	// ... start capture against b ...
//	b.Stream("mic").Emit(mock.PCMInt16(samples))
package mock

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/maestro-audio/dualcap/pkg/audio/device"
)

// DefaultFormat is used for any device without an entry in Backend.Formats.
var DefaultFormat = device.Format{SampleFormat: device.FormatF32, Channels: 2, SampleRate: 48000}

// ─── Backend ──────────────────────────────────────────────────────────────────

// OpenCall records a single invocation of Backend.OpenStream.
type OpenCall struct {
	Info   device.Info
	Config device.StreamConfig
}

// Backend is a mock implementation of [device.Backend].
// Set the exported fields before use; inspect the Call* fields after.
type Backend struct {
	mu sync.Mutex

	// Capture and Playback are the endpoints returned by Devices.
	Capture  []device.Info
	Playback []device.Info

	// Formats maps a device ID to the format its stream reports.
	Formats map[string]device.Format

	// DevicesErr, if non-nil, is returned by Devices and DefaultDevice.
	DevicesErr error

	// OpenErr maps a device ID to the error OpenStream returns for it.
	OpenErr map[string]error

	// StartErr maps a device ID to the error Stream.Start returns for it.
	StartErr map[string]error

	// StreamCloseErr maps a device ID to the error Stream.Close returns for it.
	StreamCloseErr map[string]error

	// NoLoopback makes OpenStream reject playback endpoints, like a host API
	// without loopback support.
	NoLoopback bool

	// CloseErr is returned by Close.
	CloseErr error

	// OpenCalls records every OpenStream call in order.
	OpenCalls []OpenCall

	// CallCountClose records how many times Close was called.
	CallCountClose int

	streams map[string]*Stream
}

// Devices implements [device.Backend].
func (b *Backend) Devices(_ context.Context, kind device.Kind) ([]device.Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DevicesErr != nil {
		return nil, b.DevicesErr
	}
	return append([]device.Info(nil), b.list(kind)...), nil
}

// DefaultDevice implements [device.Backend].
func (b *Backend) DefaultDevice(_ context.Context, kind device.Kind) (device.Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DevicesErr != nil {
		return device.Info{}, b.DevicesErr
	}
	info, err := device.FindDefault(b.list(kind), kind)
	if err != nil {
		return device.Info{}, fmt.Errorf("mock: %w", err)
	}
	return info, nil
}

// OpenStream implements [device.Backend]. The returned stream is recorded and
// can be fetched with [Backend.Stream].
func (b *Backend) OpenStream(_ context.Context, info device.Info, cfg device.StreamConfig, onData device.DataCallback, onErr device.ErrorCallback) (device.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.OpenCalls = append(b.OpenCalls, OpenCall{Info: info, Config: cfg})
	if err := b.OpenErr[info.ID]; err != nil {
		return nil, err
	}
	if info.IsLoopback() && b.NoLoopback {
		return nil, fmt.Errorf("mock: loopback on %q: %w", info.Name, device.ErrNoDevice)
	}
	format, ok := b.Formats[info.ID]
	if !ok {
		format = DefaultFormat
	}
	s := &Stream{
		Info:     info,
		format:   format,
		onData:   onData,
		onErr:    onErr,
		startErr: b.StartErr[info.ID],
		closeErr: b.StreamCloseErr[info.ID],
	}
	if b.streams == nil {
		b.streams = make(map[string]*Stream)
	}
	b.streams[info.ID] = s
	return s, nil
}

// Close implements [device.Backend].
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountClose++
	return b.CloseErr
}

// Stream returns the most recently opened stream for a device ID, or nil.
func (b *Backend) Stream(id string) *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[id]
}

// Opened returns a snapshot of OpenCalls.
func (b *Backend) Opened() []OpenCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]OpenCall(nil), b.OpenCalls...)
}

func (b *Backend) list(kind device.Kind) []device.Info {
	if kind == device.KindPlayback {
		return b.Playback
	}
	return b.Capture
}

var _ device.Backend = (*Backend)(nil)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock [device.Stream]. Tests drive it with [Stream.Emit] and
// [Stream.EmitError].
type Stream struct {
	// Info is the endpoint the stream was opened on.
	Info device.Info

	mu       sync.Mutex
	format   device.Format
	onData   device.DataCallback
	onErr    device.ErrorCallback
	startErr error
	closeErr error
	started  bool
	closed   bool

	// CallCountStart, CallCountStop and CallCountClose record lifecycle calls.
	CallCountStart int
	CallCountStop  int
	CallCountClose int
}

// Start implements [device.Stream].
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.closed {
		return device.ErrClosed
	}
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

// Stop implements [device.Stream].
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.started = false
	return nil
}

// Close implements [device.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.started = false
	s.closed = true
	return s.closeErr
}

// Format implements [device.Stream].
func (s *Stream) Format() device.Format { return s.format }

// Started reports whether the stream is between Start and Stop.
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Emit delivers pcm to the data callback as a device thread would. Like a
// real device, nothing is delivered unless the stream is started. It reports
// whether the callback ran.
//
// The stream lock is not held while the callback runs, so two streams (or two
// goroutines on one stream) can emit concurrently.
func (s *Stream) Emit(pcm []byte) bool {
	s.mu.Lock()
	started, cb := s.started, s.onData
	s.mu.Unlock()
	if !started || cb == nil {
		return false
	}
	cb(pcm)
	return true
}

// EmitError delivers err to the error callback.
func (s *Stream) EmitError(err error) {
	s.mu.Lock()
	cb := s.onErr
	s.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

var _ device.Stream = (*Stream)(nil)

// ─── PCM helpers ──────────────────────────────────────────────────────────────

// PCMFloat32 encodes samples as little-endian IEEE-754 float32.
func PCMFloat32(samples []float32) []byte {
	b := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(s))
	}
	return b
}

// PCMInt16 encodes samples as little-endian signed 16-bit integers.
func PCMInt16(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}
