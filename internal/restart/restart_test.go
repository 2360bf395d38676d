package restart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) Config {
	return Config{
		MaxRetries:    retries,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 4 * time.Millisecond,
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := Config{RetryDelay: time.Second, MaxRetryDelay: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{64, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateBackoff(tt.attempt, cfg), "attempt %d", tt.attempt)
	}
}

func TestRun_NoRetriesByDefault(t *testing.T) {
	boom := errors.New("boom")
	calls := 0

	state := &State{}
	err := Run(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, DefaultConfig(), state)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Zero(t, state.Restarts)
}

func TestRun_RetriesUntilSuccess(t *testing.T) {
	calls := 0

	state := &State{}
	err := Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastConfig(5), state)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, state.Restarts)
	assert.Zero(t, state.CurrentRetries)
}

func TestRun_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0

	state := &State{}
	err := Run(context.Background(), func(context.Context) error {
		calls++
		return errors.New("still broken")
	}, fastConfig(2), state)

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, state.Restarts)
}

func TestRun_PermanentIsNotRetried(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0

	err := Run(context.Background(), func(context.Context) error {
		calls++
		return Permanent(fatal)
	}, fastConfig(5), &State{})

	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestRun_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{MaxRetries: 5, RetryDelay: time.Hour, MaxRetryDelay: time.Hour}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, func(context.Context) error {
		return errors.New("transient")
	}, cfg, &State{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
