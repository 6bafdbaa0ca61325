package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(max int) Config {
	return Config{MaxRetries: max, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var notified []int
	cfg := fastConfig(5)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { notified = append(notified, attempt) }

	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDo_Exhausted(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0

	err := Do(context.Background(), fastConfig(2), func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	auth := errors.New("authentication failed")
	calls := 0

	err := Do(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		return Permanent(auth)
	})

	assert.ErrorIs(t, err, auth)
	assert.Equal(t, 1, calls)
}

func TestDo_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 10, InitialBackoff: time.Hour, Multiplier: 1}

	err := Do(ctx, cfg, func(context.Context) error {
		cancel()
		return errors.New("timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryable(errors.New("pq: the database system is starting up")))
	assert.False(t, IsRetryable(errors.New("password authentication failed")))
	assert.False(t, IsRetryable(Permanent(errors.New("timeout"))))
	assert.False(t, IsRetryable(nil))
}
