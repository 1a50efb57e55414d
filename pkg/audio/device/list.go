package device

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Listing is the names of every capture and playback endpoint, in host
// enumeration order.
type Listing struct {
	Input  []string `json:"input"`
	Output []string `json:"output"`
}

// List enumerates both directions concurrently. Endpoints with an empty name
// are skipped. The slices are never nil.
func List(ctx context.Context, b Backend) (Listing, error) {
	l := Listing{Input: []string{}, Output: []string{}}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		names, err := names(ctx, b, KindCapture)
		l.Input = names
		return err
	})
	g.Go(func() error {
		names, err := names(ctx, b, KindPlayback)
		l.Output = names
		return err
	})
	if err := g.Wait(); err != nil {
		return Listing{Input: []string{}, Output: []string{}}, err
	}
	return l, nil
}

func names(ctx context.Context, b Backend, kind Kind) ([]string, error) {
	devs, err := b.Devices(ctx, kind)
	if err != nil {
		return []string{}, fmt.Errorf("device: list %s devices: %w", kind, err)
	}
	out := make([]string, 0, len(devs))
	for _, d := range devs {
		if d.Name != "" {
			out = append(out, d.Name)
		}
	}
	return out, nil
}
