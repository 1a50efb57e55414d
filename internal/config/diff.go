package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked; capture
// changes take effect on the next capture start.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SegmentChanged is true if any utterance detection parameter changed:
	// speech_threshold, silence_frames, min_speech_frames or
	// max_utterance_seconds.
	SegmentChanged bool

	// PollIntervalChanged is true if the event stream cadence changed.
	PollIntervalChanged bool

	// RestartRequired lists settings that changed but are only read at
	// startup (listen address, backend, VAD engine, device guard, device
	// selection).
	RestartRequired []string
}

// Changed reports whether d carries any difference at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SegmentChanged || d.PollIntervalChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oc, nc := old.Capture, new.Capture
	if oc.SpeechThreshold != nc.SpeechThreshold ||
		oc.SilenceFrames != nc.SilenceFrames ||
		oc.MinSpeechFrames != nc.MinSpeechFrames ||
		oc.MaxUtteranceSeconds != nc.MaxUtteranceSeconds {
		d.SegmentChanged = true
	}
	if oc.PollInterval != nc.PollInterval {
		d.PollIntervalChanged = true
	}

	restart := []struct {
		field   string
		changed bool
	}{
		{"server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr},
		{"capture.backend", oc.Backend != nc.Backend},
		{"capture.vad", oc.VAD != nc.VAD},
		{"capture.flush_on_stop", oc.FlushesOnStop() != nc.FlushesOnStop()},
		{"capture.device_failures", oc.DeviceFailures != nc.DeviceFailures},
		{"capture.device_cooldown", oc.DeviceCooldown != nc.DeviceCooldown},
		{"devices", old.Devices != new.Devices},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartRequired = append(d.RestartRequired, r.field)
		}
	}

	return d
}
