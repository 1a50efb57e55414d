// Package config provides the configuration schema, loader and provider
// registry for dualcap.
//
// Configuration is read from a YAML file (see configs/example.yaml for a
// fully annotated example). Use [Load] to parse a file from disk,
// [LoadFromReader] to parse from any [io.Reader] (useful in tests), and
// [Validate] to check a manually constructed [Config].
//
// Omitted values take their defaults in [ApplyDefaults], which both loaders
// call before validating.
//
// The [Registry] type maps backend and VAD engine names to factory functions,
// allowing the application layer to instantiate them by name without hard
// coupling to concrete implementations.
package config

import (
	"log/slog"
	"time"

	"github.com/maestro-audio/dualcap/pkg/audio"
)

// LogLevel controls the verbosity of the application logger.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the matching [slog.Level]. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoopbackStrategy selects how the loopback endpoint is located when no
// preferred device name is configured.
type LoopbackStrategy string

const (
	// LoopbackAuto picks the platform default: monitor source on Linux,
	// default output opened as loopback elsewhere.
	LoopbackAuto LoopbackStrategy = "auto"

	// LoopbackMonitor looks for a capture endpoint named like a monitor of
	// an output.
	LoopbackMonitor LoopbackStrategy = "monitor"

	// LoopbackDefaultOutput opens the default output device for loopback
	// capture.
	LoopbackDefaultOutput LoopbackStrategy = "default-output"
)

// IsValid reports whether s is a recognised strategy.
func (s LoopbackStrategy) IsValid() bool {
	switch s {
	case LoopbackAuto, LoopbackMonitor, LoopbackDefaultOutput:
		return true
	}
	return false
}

// Default values filled in by [ApplyDefaults].
const (
	DefaultListenAddr          = "127.0.0.1:7878"
	DefaultBackend             = "malgo"
	DefaultVAD                 = "energy"
	DefaultSpeechThreshold     = 0.005
	DefaultSilenceFrames       = 24
	DefaultMinSpeechFrames     = 5
	DefaultMaxUtteranceSeconds = 60
	DefaultPollInterval        = 250 * time.Millisecond
	DefaultMatchThreshold      = 0.85
	DefaultDeviceFailures      = 3
	DefaultDeviceCooldown      = 10 * time.Second
)

// Config is the root configuration structure for dualcap.
type Config struct {
	// Server holds network and logging settings.
	Server ServerConfig `yaml:"server"`

	// Capture holds the audio pipeline settings.
	Capture CaptureConfig `yaml:"capture"`

	// Devices selects the two capture endpoints.
	Devices DevicesConfig `yaml:"devices"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the control API listens on
	// (e.g., "127.0.0.1:7878").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls log verbosity. Valid values: debug, info, warn, error.
	LogLevel LogLevel `yaml:"log_level"`
}

// CaptureConfig holds the audio pipeline settings.
type CaptureConfig struct {
	// Backend is the registered device backend name (e.g., "malgo").
	Backend string `yaml:"backend"`

	// VAD is the registered voice activity detection engine name
	// (e.g., "energy").
	VAD string `yaml:"vad"`

	// TargetSampleRate is the normalised pipeline rate. Only 16000 is
	// supported; the field exists so that a mistaken value fails loudly.
	TargetSampleRate int `yaml:"target_sample_rate"`

	// SpeechThreshold is the RMS energy above which a frame counts as speech.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// SilenceFrames is the number of consecutive silent frames that end an
	// utterance.
	SilenceFrames int `yaml:"silence_frames"`

	// MinSpeechFrames is the minimum number of speech frames an utterance
	// needs to be emitted.
	MinSpeechFrames int `yaml:"min_speech_frames"`

	// MaxUtteranceSeconds caps the buffered audio per utterance. Reaching it
	// forces the utterance out.
	MaxUtteranceSeconds int `yaml:"max_utterance_seconds"`

	// PollInterval is the cadence of status messages on the event stream.
	PollInterval time.Duration `yaml:"poll_interval"`

	// FlushOnStop emits an utterance still in progress when capture stops.
	// Nil means true.
	FlushOnStop *bool `yaml:"flush_on_stop"`

	// DeviceFailures is the number of consecutive device errors after which
	// enumeration and stream opening fail fast for DeviceCooldown.
	DeviceFailures int `yaml:"device_failures"`

	// DeviceCooldown is how long the backend is left alone after
	// DeviceFailures consecutive errors.
	DeviceCooldown time.Duration `yaml:"device_cooldown"`
}

// MaxBufferedSamples converts MaxUtteranceSeconds into a sample count at the
// pipeline rate.
func (c CaptureConfig) MaxBufferedSamples() int {
	return c.MaxUtteranceSeconds * audio.TargetSampleRate
}

// FlushesOnStop reports the effective FlushOnStop setting.
func (c CaptureConfig) FlushesOnStop() bool {
	return c.FlushOnStop == nil || *c.FlushOnStop
}

// DevicesConfig selects the two capture endpoints.
type DevicesConfig struct {
	// Microphone is the preferred input device name, matched fuzzily. Empty
	// selects the default input.
	Microphone string `yaml:"microphone"`

	// Loopback is the preferred loopback device name, matched fuzzily among
	// outputs and monitor sources. Empty uses LoopbackStrategy.
	Loopback string `yaml:"loopback"`

	// LoopbackStrategy selects platform discovery. Valid values: auto,
	// monitor, default-output.
	LoopbackStrategy LoopbackStrategy `yaml:"loopback_strategy"`

	// MatchThreshold is the minimum Jaro-Winkler similarity, in (0, 1], for
	// a preferred name to select a device.
	MatchThreshold float64 `yaml:"match_threshold"`
}
