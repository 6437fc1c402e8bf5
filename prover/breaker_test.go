package prover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_HalfOpenTrial(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker("test", 1, time.Minute)
	b.now = func() time.Time { return now }

	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }
	ok := func(context.Context) error { return nil }

	assert.ErrorIs(t, b.Execute(context.Background(), fail), boom)
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Execute(context.Background(), ok), ErrBreakerOpen)

	// the trial after the reset timeout fails and reopens
	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, b.Execute(context.Background(), fail), boom)
	assert.Equal(t, Open, b.State())

	now = now.Add(2 * time.Minute)
	assert.NoError(t, b.Execute(context.Background(), ok))
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_CancellationNotCounted(t *testing.T) {
	b := NewBreaker("test", 1, time.Minute)
	err := b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Closed, b.State())
}
