package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/maestro-audio/dualcap/pkg/audio"
)

func approxEqual(a, b, tol float32) bool {
	return float32(math.Abs(float64(a-b))) <= tol
}

func TestToMono_IdentityForMono16k(t *testing.T) {
	t.Parallel()
	in := []float32{0, 0.25, -0.5, 1, -1, 0.125}
	got := audio.ToMono(in, 1, audio.TargetSampleRate)
	if len(got) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %f, want %f", i, got[i], in[i])
		}
	}

	// The result must not alias the input.
	got[0] = 42
	if in[0] == 42 {
		t.Error("ToMono returned a slice aliasing its input")
	}
}

func TestToMono_Empty(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		channels int
		rate     int
	}{
		{"mono 16k", 1, 16000},
		{"stereo 48k", 2, 48000},
		{"6ch 44.1k", 6, 44100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.ToMono(nil, tt.channels, tt.rate); len(got) != 0 {
				t.Errorf("expected empty output, got %d samples", len(got))
			}
		})
	}
}

func TestToMono_DegenerateFormat(t *testing.T) {
	t.Parallel()
	in := []float32{0.1, 0.2, 0.3}
	if got := audio.ToMono(in, 0, 16000); len(got) != 0 {
		t.Errorf("channels=0: expected empty output, got %d samples", len(got))
	}
	if got := audio.ToMono(in, 1, 0); len(got) != 0 {
		t.Errorf("rate=0: expected empty output, got %d samples", len(got))
	}
}

func TestDownmix_AveragesAndDropsPartialGroup(t *testing.T) {
	t.Parallel()
	// Two stereo frames plus one dangling left sample.
	in := []float32{0.2, 0.4, -0.5, -0.1, 0.9}
	got := audio.Downmix(in, 2)
	want := []float32{0.3, -0.3}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !approxEqual(got[i], want[i], 1e-6) {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestToMono_OutputLength(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		channels int
		rate     int
		frames   int
	}{
		{"stereo 48k", 2, 48000, 1024},
		{"stereo 44.1k", 2, 44100, 441},
		{"mono 8k upsample", 1, 8000, 160},
		{"mono 22.05k", 1, 22050, 1000},
		{"quad 96k", 4, 96000, 960},
		{"stereo 16k", 2, 16000, 512},
		{"mono 48k single frame", 1, 48000, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := make([]float32, tt.frames*tt.channels)
			for i := range in {
				in[i] = float32(math.Sin(float64(i) / 10))
			}
			got := audio.ToMono(in, tt.channels, tt.rate)
			ratio := float64(audio.TargetSampleRate) / float64(tt.rate)
			want := int(float64(tt.frames) * ratio)
			if len(got) != want {
				t.Errorf("len = %d, want floor(%d*16000/%d) = %d", len(got), tt.frames, tt.rate, want)
			}
		})
	}
}

func TestResample_Downsample(t *testing.T) {
	t.Parallel()
	// 48k → 16k keeps every third sample exactly (integer source positions).
	in := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}
	got := audio.Resample(in, 48000)
	want := []float32{0.1, 0.4}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !approxEqual(got[i], want[i], 1e-6) {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestResample_UpsampleInterpolates(t *testing.T) {
	t.Parallel()
	// 8k → 16k: odd output indices fall halfway between source samples; the
	// last one clamps to the final sample.
	in := []float32{0, 1, 0.5}
	got := audio.Resample(in, 8000)
	want := []float32{0, 0.5, 1, 0.75, 0.5, 0.5}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !approxEqual(got[i], want[i], 1e-6) {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestNormalizer_ReusesScratch(t *testing.T) {
	t.Parallel()
	n := audio.NewNormalizer(2, 48000, 2048)
	in := make([]float32, 2048)
	for i := range in {
		in[i] = 0.5
	}
	first := n.Normalize(in)
	second := n.Normalize(in)
	if len(first) != 341 || len(second) != 341 {
		t.Fatalf("lengths = %d, %d; want 341", len(first), len(second))
	}
	if &first[0] != &second[0] {
		t.Error("Normalize allocated a new output buffer for an equal-sized frame")
	}
	for i, s := range second {
		if !approxEqual(s, 0.5, 1e-6) {
			t.Fatalf("sample %d: got %f, want 0.5", i, s)
		}
	}
	if n.String() != "48000Hz stereo" {
		t.Errorf("String() = %q", n.String())
	}
}

func TestInt16ToFloat32(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		value int16
		want  float32
	}{
		{"max positive", 32767, 1.0},
		{"zero", 0, 0},
		{"mid positive", 16384, 16384.0 / 32767.0},
		{"max negative", -32768, -32768.0 / 32767.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.Int16ToFloat32([]int16{tt.value})
			if !approxEqual(got[0], tt.want, 1e-7) {
				t.Errorf("Int16ToFloat32(%d) = %f; want %f", tt.value, got[0], tt.want)
			}
		})
	}
}

func TestDecodeFloat32LE(t *testing.T) {
	t.Parallel()
	values := []float32{0.5, -0.25, 1}
	b := make([]byte, len(values)*4+1) // trailing partial sample
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	got := audio.DecodeFloat32LE(nil, b)
	if len(got) != len(values) {
		t.Fatalf("expected %d samples, got %d", len(values), len(got))
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("sample %d: got %f, want %f", i, got[i], values[i])
		}
	}
}

func TestDecodeInt16LE(t *testing.T) {
	t.Parallel()
	pcm := []byte{0x00, 0x40, 0xFF, 0xFF, 0x7F} // 16384, -1, trailing byte
	got := audio.DecodeInt16LE(nil, pcm)
	want := []int16{16384, -1}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}
	constant := []float32{0.1, -0.1, 0.1, -0.1}
	if got := audio.RMS(constant); math.Abs(got-0.1) > 1e-6 {
		t.Errorf("RMS(±0.1) = %f, want 0.1", got)
	}
}
