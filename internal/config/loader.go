package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/maestro-audio/dualcap/pkg/audio"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"backend": {"malgo", "mock"},
	"vad":     {"energy", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
// Explicitly set values are left alone, including invalid ones, so that
// [Validate] can report them.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	c := &cfg.Capture
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.VAD == "" {
		c.VAD = DefaultVAD
	}
	if c.TargetSampleRate == 0 {
		c.TargetSampleRate = audio.TargetSampleRate
	}
	if c.SpeechThreshold == 0 {
		c.SpeechThreshold = DefaultSpeechThreshold
	}
	if c.SilenceFrames == 0 {
		c.SilenceFrames = DefaultSilenceFrames
	}
	if c.MinSpeechFrames == 0 {
		c.MinSpeechFrames = DefaultMinSpeechFrames
	}
	if c.MaxUtteranceSeconds == 0 {
		c.MaxUtteranceSeconds = DefaultMaxUtteranceSeconds
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DeviceFailures == 0 {
		c.DeviceFailures = DefaultDeviceFailures
	}
	if c.DeviceCooldown == 0 {
		c.DeviceCooldown = DefaultDeviceCooldown
	}

	d := &cfg.Devices
	if d.LoopbackStrategy == "" {
		d.LoopbackStrategy = LoopbackAuto
	}
	if d.MatchThreshold == 0 {
		d.MatchThreshold = DefaultMatchThreshold
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Capture
	c := cfg.Capture
	if c.Backend == "" {
		errs = append(errs, errors.New("capture.backend is required"))
	}
	if c.VAD == "" {
		errs = append(errs, errors.New("capture.vad is required"))
	}
	validateProviderName("backend", c.Backend)
	validateProviderName("vad", c.VAD)

	if c.TargetSampleRate != audio.TargetSampleRate {
		errs = append(errs, fmt.Errorf("capture.target_sample_rate %d is unsupported; only %d is supported", c.TargetSampleRate, audio.TargetSampleRate))
	}
	if c.SpeechThreshold <= 0 || c.SpeechThreshold >= 1 {
		errs = append(errs, fmt.Errorf("capture.speech_threshold %g is out of range (0, 1)", c.SpeechThreshold))
	}
	if c.SilenceFrames < 1 {
		errs = append(errs, fmt.Errorf("capture.silence_frames %d must be at least 1", c.SilenceFrames))
	}
	if c.MinSpeechFrames < 1 {
		errs = append(errs, fmt.Errorf("capture.min_speech_frames %d must be at least 1", c.MinSpeechFrames))
	}
	if c.MaxUtteranceSeconds < 1 {
		errs = append(errs, fmt.Errorf("capture.max_utterance_seconds %d must be at least 1", c.MaxUtteranceSeconds))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("capture.poll_interval %s must not be negative", c.PollInterval))
	}
	if c.DeviceFailures < 1 {
		errs = append(errs, fmt.Errorf("capture.device_failures %d must be at least 1", c.DeviceFailures))
	}
	if c.DeviceCooldown <= 0 {
		errs = append(errs, fmt.Errorf("capture.device_cooldown %s must be positive", c.DeviceCooldown))
	}

	// Devices
	d := cfg.Devices
	if d.LoopbackStrategy != "" && !d.LoopbackStrategy.IsValid() {
		errs = append(errs, fmt.Errorf("devices.loopback_strategy %q is invalid; valid values: auto, monitor, default-output", d.LoopbackStrategy))
	}
	if d.MatchThreshold <= 0 || d.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("devices.match_threshold %g is out of range (0, 1]", d.MatchThreshold))
	}
	if d.Loopback != "" && d.LoopbackStrategy == LoopbackMonitor {
		slog.Warn("devices.loopback is set; devices.loopback_strategy only applies when no preferred device matches",
			"loopback", d.Loopback,
		)
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
