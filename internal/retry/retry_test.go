package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	called := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func(context.Context) error {
		called++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, called)
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	called := 0
	err := Do(context.Background(), Config{MaxAttempts: 5, InitialBackoff: time.Millisecond}, func(context.Context) error {
		called++
		if called < 3 {
			return errors.New("temporary")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, called)
}

func TestDo_Exhausted(t *testing.T) {
	persistent := errors.New("persistent")
	called := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func(context.Context) error {
		called++
		return persistent
	}, func(error) bool { return true })

	require.Error(t, err)
	assert.Equal(t, 3, called)
	assert.ErrorIs(t, err, persistent)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestDo_NonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	called := 0
	err := Do(context.Background(), Config{MaxAttempts: 5, InitialBackoff: time.Millisecond}, func(context.Context) error {
		called++
		return fatal
	}, func(err error) bool { return !errors.Is(err, fatal) })

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, called)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	called := 0

	err := Do(ctx, Config{MaxAttempts: 5, InitialBackoff: time.Hour}, func(context.Context) error {
		called++
		cancel()
		return errors.New("fail")
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, called)
}

func TestDo_ZeroAttemptsStillCallsOnce(t *testing.T) {
	called := 0
	_ = Do(context.Background(), Config{}, func(context.Context) error {
		called++
		return nil
	}, nil)
	assert.Equal(t, 1, called)
}

func TestConfig_Backoff(t *testing.T) {
	cfg := Config{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}

	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, cfg.Backoff(3))
	assert.Equal(t, 800*time.Millisecond, cfg.Backoff(4))
	assert.Equal(t, time.Second, cfg.Backoff(5))
	assert.Equal(t, time.Second, cfg.Backoff(30))
}

func TestConfig_BackoffJitterBounds(t *testing.T) {
	cfg := Config{InitialBackoff: 100 * time.Millisecond, Jitter: 0.5}

	for i := 0; i < 50; i++ {
		b := cfg.Backoff(1)
		assert.GreaterOrEqual(t, b, 100*time.Millisecond)
		assert.LessOrEqual(t, b, 150*time.Millisecond)
	}
}
