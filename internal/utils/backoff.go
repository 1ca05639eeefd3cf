package utils

import (
	"context"
	"time"
)

// ExponentialBackoff yields Initial, Initial*Multiplier, ... capped at Max.
type ExponentialBackoff struct {
	Current    time.Duration
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func NewExponentialBackoff(initial, max time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		Initial:    initial,
		Max:        max,
		Current:    initial,
		Multiplier: 2.0,
	}
}

func (b *ExponentialBackoff) NextBackOff() time.Duration {
	defer func() {
		b.Current = time.Duration(float64(b.Current) * b.Multiplier)
		if b.Current > b.Max {
			b.Current = b.Max
		}
	}()
	return b.Current
}

// Wait sleeps for the next interval, returning early with ctx.Err() if ctx
// is done first.
func (b *ExponentialBackoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.NextBackOff())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b *ExponentialBackoff) Reset() {
	b.Current = b.Initial
}
