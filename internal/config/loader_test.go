package config_test

import (
	"strings"
	"testing"

	"github.com/maestro-audio/dualcap/internal/config"
)

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{"log level", "server:\n  log_level: bananas\n", "server.log_level"},
		{"sample rate", "capture:\n  target_sample_rate: 48000\n", "target_sample_rate"},
		{"threshold too high", "capture:\n  speech_threshold: 1.5\n", "speech_threshold"},
		{"threshold negative", "capture:\n  speech_threshold: -0.1\n", "speech_threshold"},
		{"silence frames", "capture:\n  silence_frames: -1\n", "silence_frames"},
		{"min speech frames", "capture:\n  min_speech_frames: -3\n", "min_speech_frames"},
		{"max utterance", "capture:\n  max_utterance_seconds: -10\n", "max_utterance_seconds"},
		{"poll interval", "capture:\n  poll_interval: -1s\n", "poll_interval"},
		{"device failures", "capture:\n  device_failures: -2\n", "device_failures"},
		{"device cooldown", "capture:\n  device_cooldown: -5s\n", "device_cooldown"},
		{"strategy", "devices:\n  loopback_strategy: magic\n", "loopback_strategy"},
		{"match threshold", "devices:\n  match_threshold: 1.2\n", "match_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error should mention %q, got: %v", tt.wantMsg, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
capture:
  target_sample_rate: 8000
devices:
  loopback_strategy: guess
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "target_sample_rate", "loopback_strategy"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_ZeroValueNeedsDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected zero-value config to fail validation")
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("defaults should validate, got: %v", err)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Capture.SilenceFrames = 12
	cfg.Devices.MatchThreshold = 0.5
	config.ApplyDefaults(cfg)

	if cfg.Capture.SilenceFrames != 12 {
		t.Errorf("silence_frames: got %d, want 12", cfg.Capture.SilenceFrames)
	}
	if cfg.Devices.MatchThreshold != 0.5 {
		t.Errorf("match_threshold: got %g, want 0.5", cfg.Devices.MatchThreshold)
	}
	if cfg.Capture.MinSpeechFrames != config.DefaultMinSpeechFrames {
		t.Errorf("min_speech_frames: got %d, want default", cfg.Capture.MinSpeechFrames)
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("capture:\n  backend: portaudio\n"))
	if err != nil {
		t.Fatalf("unknown backend name should only warn, got: %v", err)
	}
	if cfg.Capture.Backend != "portaudio" {
		t.Errorf("backend: got %q", cfg.Capture.Backend)
	}
}
