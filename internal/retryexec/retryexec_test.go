package retryexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withNoSleep(t *testing.T) {
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error { return nil }
	t.Cleanup(func() { sleep = orig })
}

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	withNoSleep(t)
	cfg := Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFraction: 0.1}

	calls := 0
	res := Do(context.Background(), cfg, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 42, nil
	})

	require.True(t, res.Success)
	assert.Equal(t, 42, res.Value)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	withNoSleep(t)
	cfg := Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFraction: 0.1}

	calls := 0
	res := Do(context.Background(), cfg, func(ctx context.Context, attempt int) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.True(t, res.Success)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 3, res.Attempts)
}

func TestDo_FailsAfterExhaustingRetries(t *testing.T) {
	withNoSleep(t)
	cfg := Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFraction: 0.1}

	calls := 0
	res := Do(context.Background(), cfg, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, errors.New("boom")
	})

	assert.False(t, res.Success)
	assert.Equal(t, 3, calls) // MaxRetries+1 attempts
	assert.Equal(t, 3, res.Attempts)
}

func TestDo_StopsImmediatelyOnNonRetryable(t *testing.T) {
	withNoSleep(t)
	cfg := Config{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFraction: 0.1}

	calls := 0
	res := Do(context.Background(), cfg, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, NonRetryable(errors.New("404"))
	})

	assert.False(t, res.Success)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Attempts)
}

func TestBackoff_CapsAtMaxDelay(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10, JitterFraction: 0}
	d := backoff(cfg, 5)
	assert.LessOrEqual(t, d, 3*time.Second)
}

func TestBackoff_NeverNegative(t *testing.T) {
	cfg := Config{InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFraction: 1.0}
	for i := 1; i < 10; i++ {
		assert.GreaterOrEqual(t, backoff(cfg, i), time.Duration(0))
	}
}

func TestClassify_StatusCodes(t *testing.T) {
	assert.True(t, ClassifyStatusCode(404))
	assert.True(t, ClassifyStatusCode(401))
	assert.False(t, ClassifyStatusCode(500))
	assert.False(t, ClassifyStatusCode(200))
}

func TestClassify_ExceptionClasses(t *testing.T) {
	assert.True(t, ClassifyExceptionClass("ValidationError"))
	assert.True(t, ClassifyExceptionClass("TypeError"))
	assert.False(t, ClassifyExceptionClass("RangeError"))
}
