// Package device abstracts the host audio system behind a small [Backend]
// interface so that capture logic can be exercised without hardware.
//
// A backend enumerates capture and playback endpoints and opens capture
// streams on them. Opening a playback endpoint yields a loopback stream: the
// backend captures what the system is playing on that device. Whether that is
// possible depends on the host API (WASAPI supports it natively; on Linux the
// equivalent is a PulseAudio/PipeWire monitor source, which is an ordinary
// capture endpoint).
//
// Streams deliver raw interleaved little-endian PCM in the device's native
// [Format] through a [DataCallback] that runs on a backend-owned thread.
package device

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoDevice is returned when a required endpoint does not exist.
	ErrNoDevice = errors.New("device: no such device")

	// ErrUnsupportedFormat is returned when a device's native sample
	// encoding cannot be decoded by the capture pipeline.
	ErrUnsupportedFormat = errors.New("device: unsupported sample format")

	// ErrClosed is returned by operations on a closed backend or stream.
	ErrClosed = errors.New("device: closed")
)

// Kind distinguishes capture (input) endpoints from playback (output) ones.
type Kind int

const (
	// KindCapture is a microphone, line-in or monitor source.
	KindCapture Kind = iota + 1

	// KindPlayback is a speaker or headset output.
	KindPlayback
)

// String returns "capture" or "playback".
func (k Kind) String() string {
	switch k {
	case KindCapture:
		return "capture"
	case KindPlayback:
		return "playback"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SampleFormat is the encoding of one sample on the wire from the device.
type SampleFormat int

const (
	// FormatUnknown asks the backend for the device's native encoding when
	// used in a [StreamConfig]; it is never reported by an open stream.
	FormatUnknown SampleFormat = iota
	FormatU8
	FormatS16
	FormatS24
	FormatS32
	FormatF32
)

// String returns a short name such as "f32".
func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16"
	case FormatS24:
		return "s24"
	case FormatS32:
		return "s32"
	case FormatF32:
		return "f32"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the width of one sample, or 0 for FormatUnknown.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32, FormatF32:
		return 4
	default:
		return 0
	}
}

// Format describes the PCM a stream delivers.
type Format struct {
	SampleFormat SampleFormat
	Channels     int
	SampleRate   int
}

// String returns e.g. "f32 2ch @ 48000Hz".
func (f Format) String() string {
	return fmt.Sprintf("%s %dch @ %dHz", f.SampleFormat, f.Channels, f.SampleRate)
}

// Info identifies one endpoint.
type Info struct {
	// ID is the backend's opaque identifier. It is only meaningful to the
	// backend that produced it.
	ID string

	// Name is the human-readable endpoint name as reported by the host.
	Name string

	// Kind is the endpoint direction.
	Kind Kind

	// IsDefault is true for the host's default endpoint of this Kind.
	IsDefault bool
}

// IsLoopback reports whether opening this endpoint captures system output.
func (i Info) IsLoopback() bool { return i.Kind == KindPlayback }

// StreamConfig tunes how a stream is opened. The zero value opens the device
// with its native format and the backend's default period.
type StreamConfig struct {
	// PeriodFrames is the requested callback size in frames. Zero lets the
	// backend choose.
	PeriodFrames int

	// SampleFormat requests a specific encoding. FormatUnknown keeps the
	// device's native encoding.
	SampleFormat SampleFormat
}

// DataCallback receives one period of interleaved PCM. The slice is only
// valid for the duration of the call. It runs on a real-time thread and must
// not block.
type DataCallback func(pcm []byte)

// ErrorCallback receives asynchronous stream failures.
type ErrorCallback func(err error)

// Stream is an open capture stream. Callbacks are only delivered between
// Start and Stop.
type Stream interface {
	// Start begins delivering data.
	Start() error

	// Stop halts delivery. It is safe to call on a stream that was never
	// started.
	Stop() error

	// Close releases the device. It stops the stream first if needed and is
	// idempotent.
	Close() error

	// Format returns the negotiated PCM format.
	Format() Format
}

// Backend is a host audio API.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Devices lists the endpoints of the given kind.
	Devices(ctx context.Context, kind Kind) ([]Info, error)

	// DefaultDevice returns the host's default endpoint of the given kind,
	// or an error wrapping [ErrNoDevice].
	DefaultDevice(ctx context.Context, kind Kind) (Info, error)

	// OpenStream opens a capture stream on info. A playback endpoint is
	// opened in loopback mode, or the call fails with [ErrNoDevice] where the
	// host cannot do that. The stream is returned stopped.
	OpenStream(ctx context.Context, info Info, cfg StreamConfig, onData DataCallback, onErr ErrorCallback) (Stream, error)

	// Close releases the host API context. Streams must be closed first.
	Close() error
}

// FindDefault is a helper for backends: it returns the entry of devs marked
// default, or the first entry when none is, or [ErrNoDevice].
func FindDefault(devs []Info, kind Kind) (Info, error) {
	for _, d := range devs {
		if d.IsDefault {
			return d, nil
		}
	}
	if len(devs) > 0 {
		return devs[0], nil
	}
	return Info{}, fmt.Errorf("no default %s device: %w", kind, ErrNoDevice)
}
