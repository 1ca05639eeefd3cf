package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_Sequence(t *testing.T) {
	b := NewExponentialBackoff(10*time.Millisecond, 50*time.Millisecond)

	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
		50 * time.Millisecond,
	}, got)

	b.Reset()
	assert.Equal(t, 10*time.Millisecond, b.NextBackOff())
}

func TestExponentialBackoff_WaitCancelled(t *testing.T) {
	b := NewExponentialBackoff(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.ErrorIs(t, b.Wait(ctx), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExponentialBackoff_Wait(t *testing.T) {
	b := NewExponentialBackoff(time.Millisecond, time.Millisecond)
	assert.NoError(t, b.Wait(context.Background()))
}
