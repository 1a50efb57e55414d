package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultMatchThreshold is the minimum Jaro-Winkler similarity for a
// configured device name to select an endpoint.
const DefaultMatchThreshold = 0.85

// Match returns the entry of devs whose name is most similar to name, using
// case-insensitive Jaro-Winkler similarity. An exact (case-insensitive) match
// or a substring match always wins. ok is false when nothing reaches
// threshold.
func Match(devs []Info, name string, threshold float64) (best Info, score float64, ok bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return Info{}, 0, false
	}
	for _, d := range devs {
		have := strings.ToLower(strings.TrimSpace(d.Name))
		if have == "" {
			continue
		}
		var s float64
		switch {
		case have == want:
			s = 1
		case strings.Contains(have, want):
			// Substrings rank just below exact matches, shorter names first.
			s = 0.99 - float64(len(have)-len(want))/float64(100*len(have))
		default:
			s = matchr.JaroWinkler(want, have, false)
		}
		if s > score {
			best, score = d, s
		}
	}
	if score < threshold {
		return Info{}, score, false
	}
	return best, score, true
}

// Preferred resolves a configured device name before falling back to Next.
//
// It serves both streams: with Kind set to [KindCapture] and Next nil it
// picks the microphone; as a loopback [Discoverer] it searches Kind
// endpoints and defers to Next on a miss.
type Preferred struct {
	// Name is the configured device name. Empty skips matching.
	Name string

	// Threshold is the minimum similarity. Zero means DefaultMatchThreshold.
	Threshold float64

	// Kind is the endpoint direction searched.
	Kind Kind

	// Next is consulted when Name is empty or does not match.
	Next Discoverer
}

// FindLoopback implements [Discoverer].
func (p Preferred) FindLoopback(ctx context.Context, b Backend) (Info, error) {
	if info, ok, err := p.lookup(ctx, b); err != nil || ok {
		return info, err
	}
	if p.Next == nil {
		return Info{}, fmt.Errorf("device: no %s device matching %q: %w", p.kind(), p.Name, ErrNoDevice)
	}
	return p.Next.FindLoopback(ctx, b)
}

// Resolve returns the matching endpoint, or the default endpoint of Kind when
// Name is empty or unmatched.
func (p Preferred) Resolve(ctx context.Context, b Backend) (Info, error) {
	if info, ok, err := p.lookup(ctx, b); err != nil || ok {
		return info, err
	}
	info, err := b.DefaultDevice(ctx, p.kind())
	if err != nil {
		return Info{}, fmt.Errorf("device: default %s: %w", p.kind(), err)
	}
	return info, nil
}

func (p Preferred) lookup(ctx context.Context, b Backend) (Info, bool, error) {
	if strings.TrimSpace(p.Name) == "" {
		return Info{}, false, nil
	}
	devs, err := b.Devices(ctx, p.kind())
	if err != nil {
		return Info{}, false, fmt.Errorf("device: list %s devices: %w", p.kind(), err)
	}
	threshold := p.Threshold
	if threshold == 0 {
		threshold = DefaultMatchThreshold
	}
	info, _, ok := Match(devs, p.Name, threshold)
	return info, ok, nil
}

func (p Preferred) kind() Kind {
	if p.Kind == 0 {
		return KindCapture
	}
	return p.Kind
}
