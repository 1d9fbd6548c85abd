package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterTransient(t *testing.T) {
	var calls int
	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, Multiplier: 2.0}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientError_NoRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestFixedDelay_RetriesAnyErrorThreeTimes(t *testing.T) {
	var calls int
	var retried []int
	cfg := FixedDelay(3, time.Millisecond)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return errors.New("page failed to load")
	})
	require.Error(t, err)
	assert.Equal(t, "page failed to load", err.Error())
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestFixedDelay_ConstantBackoff(t *testing.T) {
	cfg := applyDefaults(FixedDelay(3, 250*time.Millisecond))
	for attempt := range 5 {
		assert.Equal(t, 250*time.Millisecond, computeBackoff(attempt, cfg))
	}
}

func TestFixedDelay_DoesNotRetryOpenCircuit(t *testing.T) {
	var calls int
	err := Do(context.Background(), FixedDelay(3, time.Millisecond), func(_ context.Context) error {
		calls++
		return ErrCircuitOpen
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, FixedDelay(5, time.Hour), func(_ context.Context) error {
		calls++
		cancel()
		return errors.New("fails")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), FixedDelay(3, time.Millisecond), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("first")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 2, calls)
}

func TestDoVal_ZeroOnFailure(t *testing.T) {
	val, err := DoVal(context.Background(), FixedDelay(2, time.Millisecond), func(_ context.Context) (int, error) {
		return 42, errors.New("nope")
	})
	require.Error(t, err)
	assert.Zero(t, val)
}

func TestComputeBackoff_ExponentialCapped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2.0}
	assert.Equal(t, 100*time.Millisecond, computeBackoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, computeBackoff(1, cfg))
	assert.Equal(t, 300*time.Millisecond, computeBackoff(2, cfg))
	assert.Equal(t, 300*time.Millisecond, computeBackoff(5, cfg))
}

func TestComputeBackoff_JitterBounds(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 1.0, JitterFraction: 0.5}
	for range 50 {
		d := computeBackoff(0, cfg)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestFromAttemptsDelay_Defaults(t *testing.T) {
	cfg := FromAttemptsDelay(0, 0)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.InitialBackoff)
	assert.Equal(t, 1.0, cfg.Multiplier)
	assert.Zero(t, cfg.JitterFraction)
}

func TestRetryLogger(t *testing.T) {
	fn := RetryLogger("extract", "navigate")
	assert.NotPanics(t, func() { fn(1, errors.New("x")) })
}
