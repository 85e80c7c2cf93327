package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return FlatRetry(attempts, time.Millisecond)
}

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := DoVal(context.Background(), fastRetry(4), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("busy"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastRetry(4)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return NewTransientError(errors.New("down"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, retried)
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(4), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.EqualError(t, err, "bad request")
	assert.Equal(t, 1, calls)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	sentinel := errors.New("port closed")
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, FlatRetry(5, time.Hour), func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("flaky"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	flat := withDefaults(FlatRetry(4, 2*time.Second))
	for i := 0; i < 3; i++ {
		assert.Equal(t, 2*time.Second, backoff(i, flat))
	}

	exp := withDefaults(RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 350 * time.Millisecond, Multiplier: 2})
	assert.Equal(t, 100*time.Millisecond, backoff(0, exp))
	assert.Equal(t, 200*time.Millisecond, backoff(1, exp))
	assert.Equal(t, 350*time.Millisecond, backoff(2, exp))

	jittered := withDefaults(RetryConfig{InitialBackoff: time.Second, Multiplier: 1, JitterFraction: 0.5})
	for i := 0; i < 20; i++ {
		d := backoff(0, jittered)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := withDefaults(RetryConfig{JitterFraction: -1})
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Zero(t, cfg.JitterFraction)
	assert.NotNil(t, cfg.ShouldRetry)
}
