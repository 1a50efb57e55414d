package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ToMono converts interleaved samples with the given channel count and input
// rate into mono samples at [TargetSampleRate].
//
// Channels are averaged per interleaved group; a trailing partial group is
// dropped. When inputRate differs from the target the mono signal is
// resampled by linear interpolation to floor(len(mono) * 16000/inputRate)
// samples. A degenerate format (channels or inputRate not positive) yields
// an empty result. The input is never modified.
func ToMono(samples []float32, channels, inputRate int) []float32 {
	var n Normalizer
	n.Channels = channels
	n.InputRate = inputRate
	out := n.Normalize(samples)
	if len(out) == 0 {
		return []float32{}
	}
	// Normalize may hand back internal scratch; give the caller its own copy.
	return append([]float32(nil), out...)
}

// Normalizer is the allocation-free form of [ToMono] for a single stream.
// It keeps its scratch buffers between calls, so the slice returned by
// [Normalizer.Normalize] is only valid until the next call.
//
// Create one per stream; not designed for shared use across goroutines.
type Normalizer struct {
	// Channels is the interleaved channel count of the input.
	Channels int

	// InputRate is the input sample rate in Hz.
	InputRate int

	mono []float32
	out  []float32
}

// NewNormalizer returns a [Normalizer] for the given input format with its
// scratch buffers sized for frames of up to frameHint interleaved samples.
func NewNormalizer(channels, inputRate, frameHint int) *Normalizer {
	n := &Normalizer{Channels: channels, InputRate: inputRate}
	if frameHint > 0 && channels > 0 && inputRate > 0 {
		monoLen := frameHint / channels
		n.mono = make([]float32, 0, monoLen)
		n.out = make([]float32, 0, int(float64(monoLen)*TargetSampleRate/float64(inputRate))+1)
	}
	return n
}

// Normalize downmixes and resamples samples. See [ToMono] for the exact
// semantics.
func (n *Normalizer) Normalize(samples []float32) []float32 {
	if n.Channels <= 0 || n.InputRate <= 0 {
		return nil
	}

	// Fast path: mono at the target rate is an identity transform.
	if n.Channels == 1 && n.InputRate == TargetSampleRate {
		return samples
	}

	mono := samples
	if n.Channels > 1 {
		n.mono = downmixInto(n.mono, samples, n.Channels)
		mono = n.mono
	}
	if n.InputRate == TargetSampleRate {
		return mono
	}
	n.out = resampleInto(n.out, mono, n.InputRate)
	return n.out
}

// String returns a human-readable input format, e.g. "48000Hz stereo".
func (n *Normalizer) String() string {
	return formatString(n.InputRate, n.Channels)
}

// Downmix averages each channels-wide group of interleaved samples into one
// mono sample. A trailing partial group is dropped.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 0 {
		return []float32{}
	}
	return downmixInto(make([]float32, 0, len(samples)/channels), samples, channels)
}

// Resample converts mono samples at inputRate to [TargetSampleRate] using
// linear interpolation. Matching rates return a copy of the input.
func Resample(mono []float32, inputRate int) []float32 {
	if inputRate <= 0 {
		return []float32{}
	}
	if inputRate == TargetSampleRate {
		return append([]float32{}, mono...)
	}
	return resampleInto(nil, mono, inputRate)
}

func downmixInto(dst, samples []float32, channels int) []float32 {
	dst = dst[:0]
	frames := len(samples) / channels
	for i := range frames {
		group := samples[i*channels : (i+1)*channels]
		var sum float32
		for _, s := range group {
			sum += s
		}
		dst = append(dst, sum/float32(channels))
	}
	return dst
}

func resampleInto(dst, mono []float32, inputRate int) []float32 {
	dst = dst[:0]
	if len(mono) == 0 {
		return dst
	}
	ratio := float64(TargetSampleRate) / float64(inputRate)
	outLen := int(float64(len(mono)) * ratio)
	last := len(mono) - 1

	for i := range outLen {
		src := float64(i) / ratio
		idx0 := min(int(src), last)
		idx1 := min(idx0+1, last)
		frac := float32(src - float64(idx0))
		dst = append(dst, mono[idx0]*(1-frac)+mono[idx1]*frac)
	}
	return dst
}

// Int16ToFloat32 converts signed 16-bit samples to floats by dividing by
// [MaxInt16]. -32768 maps slightly below -1.0; the segmenter clamps on encode.
func Int16ToFloat32(samples []int16) []float32 {
	return Int16ToFloat32Into(make([]float32, 0, len(samples)), samples)
}

// Int16ToFloat32Into is [Int16ToFloat32] writing into dst[:0].
func Int16ToFloat32Into(dst []float32, samples []int16) []float32 {
	dst = dst[:0]
	for _, s := range samples {
		dst = append(dst, float32(s)/MaxInt16)
	}
	return dst
}

// DecodeFloat32LE interprets b as little-endian IEEE-754 float32 samples and
// writes them into dst[:0]. A trailing partial sample is ignored.
func DecodeFloat32LE(dst []float32, b []byte) []float32 {
	dst = dst[:0]
	for i := 0; i+4 <= len(b); i += 4 {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(b[i:])))
	}
	return dst
}

// DecodeInt16LE interprets b as little-endian signed 16-bit samples and
// writes them into dst[:0]. A trailing odd byte is ignored.
func DecodeInt16LE(dst []int16, b []byte) []int16 {
	dst = dst[:0]
	for i := 0; i+2 <= len(b); i += 2 {
		dst = append(dst, int16(binary.LittleEndian.Uint16(b[i:])))
	}
	return dst
}

// RMS returns the root-mean-square energy of frame. An empty frame has zero
// energy.
func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
