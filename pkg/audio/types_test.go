package audio_test

import (
	"encoding/base64"
	"math"
	"testing"

	"github.com/maestro-audio/dualcap/pkg/audio"
)

func clamp(s float32) float32 {
	switch {
	case s != s:
		return 0
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

func TestChunk_RoundTrip(t *testing.T) {
	t.Parallel()
	// One quantisation step, plus float32 slack on the division.
	const bound = 1.0/audio.MaxInt16 + 1e-7

	tests := []struct {
		name string
		in   float32
		want float32 // exact decoded value; NaN means only the bound is checked
	}{
		{"zero", 0, 0},
		{"full scale", 1, 1},
		{"negative full scale", -1, -1},
		{"above one clamps", 1.5, 1},
		{"far above one clamps", 1e9, 1},
		{"below minus one clamps", -2, -1},
		{"NaN maps to zero", float32(math.NaN()), 0},
		{"int16 minimum", audio.Int16ToFloat32([]int16{math.MinInt16})[0], -1},
		{"tiny negative truncates to zero", -1e-5, 0},
		{"tiny positive truncates to zero", 1e-5, 0},
		{"half", 0.5, float32(math.NaN())},
		{"negative half", -0.5, float32(math.NaN())},
		{"speech level", 0.2441, float32(math.NaN())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := audio.NewChunk(audio.SourceMic, []float32{tt.in})
			got, err := c.Samples()
			if err != nil {
				t.Fatalf("Samples: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("decoded %d samples, want 1", len(got))
			}
			if diff := math.Abs(float64(got[0] - clamp(tt.in))); diff > bound {
				t.Errorf("decoded %v from %v: error %g exceeds %g", got[0], tt.in, diff, bound)
			}
			if tt.want == tt.want && got[0] != tt.want {
				t.Errorf("decoded %v from %v, want %v", got[0], tt.in, tt.want)
			}
		})
	}
}

func TestEncodePCM16_LittleEndian(t *testing.T) {
	t.Parallel()
	raw, err := base64.StdEncoding.DecodeString(audio.EncodePCM16([]float32{1, -1, 0}))
	if err != nil {
		t.Fatalf("payload is not standard base64: %v", err)
	}
	want := []byte{0xff, 0x7f, 0x01, 0x80, 0x00, 0x00}
	if string(raw) != string(want) {
		t.Errorf("PCM bytes = % x, want % x", raw, want)
	}
}

func TestDecodePCM16_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		b64  string
	}{
		{"odd byte count", base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})},
		{"single byte", "AA=="},
		{"bad base64", "not*base64!"},
		{"url alphabet", "__8="},
	}
	for _, tt := range tests {
		if got, err := audio.DecodePCM16(tt.b64); err == nil {
			t.Errorf("%s: DecodePCM16(%q) = %v, want error", tt.name, tt.b64, got)
		}
	}
}

func TestChunk_Metadata(t *testing.T) {
	t.Parallel()
	c := audio.NewChunk(audio.SourceLoopback, make([]float32, 30*1024))
	if c.SampleCount != 30*1024 {
		t.Errorf("SampleCount = %d", c.SampleCount)
	}
	if c.DurationSecs != float64(30*1024)/audio.TargetSampleRate {
		t.Errorf("DurationSecs = %v, want %v", c.DurationSecs, float64(30*1024)/audio.TargetSampleRate)
	}

	c.SampleCount++
	if _, err := c.Samples(); err == nil {
		t.Error("Samples accepted a header that disagrees with the payload")
	}
}
