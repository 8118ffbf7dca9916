package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func failing(calls *int, until int, err error) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls < until {
			return err
		}
		return nil
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), failing(&calls, 3, errors.New("dial tcp: connection refused")))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), fastConfig(), failing(&calls, 100, boom))

	assert.ErrorIs(t, err, boom)
	assert.EqualError(t, err, "gave up after 4 attempts: boom")
	assert.Equal(t, 4, calls)
}

func TestDo_Permanent(t *testing.T) {
	calls := 0
	unauthorized := errors.New("unauthorized")
	err := Do(context.Background(), fastConfig(), failing(&calls, 100, Permanent(unauthorized)))

	assert.ErrorIs(t, err, unauthorized)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestDo_StopOn(t *testing.T) {
	sentinel := errors.New("circuit open")
	cfg := fastConfig()
	cfg.StopOn = []error{sentinel}

	calls := 0
	err := Do(context.Background(), cfg, failing(&calls, 100, sentinel))

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDo_Disabled(t *testing.T) {
	cfg := fastConfig()
	cfg.Enabled = false

	calls := 0
	_ = Do(context.Background(), cfg, failing(&calls, 100, errors.New("x")))
	assert.Equal(t, 1, calls)
}

func TestDo_Notify(t *testing.T) {
	cfg := fastConfig()
	var attempts []int
	cfg.Notify = func(attempt int, err error, wait time.Duration) {
		attempts = append(attempts, attempt)
		assert.Positive(t, wait)
	}

	calls := 0
	require.NoError(t, Do(context.Background(), cfg, failing(&calls, 3, errors.New("x"))))
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_CancelledDuringWait(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := Do(ctx, cfg, failing(&calls, 100, errors.New("x")))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestValue(t *testing.T) {
	calls := 0
	got, err := Value(context.Background(), fastConfig(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("temporary")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestBackoff_CapsAtMax(t *testing.T) {
	cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff(1))
	assert.Equal(t, 300*time.Millisecond, cfg.Backoff(5))
}

func TestBackoff_Jitter(t *testing.T) {
	cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: true}
	for i := 0; i < 50; i++ {
		d := cfg.Backoff(0)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.Less(t, d, 125*time.Millisecond)
	}
}
