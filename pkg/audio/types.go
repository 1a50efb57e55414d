// Package audio holds the sample-level building blocks of the capture
// pipeline: conversion of native device buffers to mono 16 kHz float frames,
// RMS energy, and the [Chunk] type that carries a finished utterance as
// base64 PCM.
package audio

import (
	"encoding/base64"
	"fmt"
)

// TargetSampleRate is the rate in Hz that every capture stream is normalised
// to before voice activity detection. Chunk timing is derived from it.
const TargetSampleRate = 16000

// MaxInt16 is the magnitude used when scaling between float samples and
// signed 16-bit PCM in both directions.
const MaxInt16 = 32767

// Source labels the physical stream an utterance was captured from.
type Source string

const (
	// SourceMic is the default input device (the local speaker).
	SourceMic Source = "mic"

	// SourceLoopback is the system output captured as an input (the remote
	// side of a call or media playback).
	SourceLoopback Source = "loopback"
)

// IsValid reports whether s is one of the two known sources.
func (s Source) IsValid() bool {
	return s == SourceMic || s == SourceLoopback
}

// String returns the wire label of the source.
func (s Source) String() string {
	return string(s)
}

// Chunk is one complete utterance emitted by the segmenter. It is immutable
// once created: ownership moves from the capture callback to the shared
// queue and from there to whoever drains it.
//
// The JSON shape is the consumer contract:
//
//	{"audio": "<base64 LE int16 PCM>", "source": "mic", "duration_secs": 1.984, "sample_count": 31744}
type Chunk struct {
	// Audio is base64 (standard alphabet, padded) little-endian signed 16-bit
	// PCM, mono, [TargetSampleRate] Hz.
	Audio string `json:"audio"`

	// Source is the stream that produced the utterance.
	Source Source `json:"source"`

	// DurationSecs is exactly SampleCount / TargetSampleRate.
	DurationSecs float64 `json:"duration_secs"`

	// SampleCount is the number of mono samples in Audio, trailing silence
	// included.
	SampleCount int `json:"sample_count"`
}

// NewChunk encodes samples and builds the chunk metadata around them.
func NewChunk(source Source, samples []float32) Chunk {
	return Chunk{
		Audio:        EncodePCM16(samples),
		Source:       source,
		DurationSecs: SamplesToSeconds(len(samples)),
		SampleCount:  len(samples),
	}
}

// Samples decodes the chunk payload back into float samples in [-1, 1].
func (c Chunk) Samples() ([]float32, error) {
	samples, err := DecodePCM16(c.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio: decode %s chunk: %w", c.Source, err)
	}
	if len(samples) != c.SampleCount {
		return nil, fmt.Errorf("audio: %s chunk holds %d samples, header says %d", c.Source, len(samples), c.SampleCount)
	}
	return samples, nil
}

// SamplesToSeconds converts a mono sample count at [TargetSampleRate] to
// seconds.
func SamplesToSeconds(n int) float64 {
	return float64(n) / TargetSampleRate
}

// EncodePCM16 clamps each sample to [-1, 1], scales it by [MaxInt16],
// truncates to int16 and serialises the result little-endian before applying
// standard base64.
func EncodePCM16(samples []float32) string {
	pcm := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		pcm = appendInt16LE(pcm, floatToInt16(s))
	}
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodePCM16 reverses [EncodePCM16]. The result is within 1/32767 of the
// clamped input per sample.
func DecodePCM16(b64 string) ([]float32, error) {
	pcm, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("odd PCM byte count %d", len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		out[i] = float32(v) / MaxInt16
	}
	return out, nil
}

func floatToInt16(s float32) int16 {
	switch {
	case s != s: // NaN
		s = 0
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}
	return int16(s * MaxInt16)
}

func appendInt16LE(b []byte, v int16) []byte {
	return append(b, byte(v), byte(uint16(v)>>8))
}
