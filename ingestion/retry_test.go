package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_Success(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), slog.Default(), 3, time.Millisecond, func() error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "should succeed on first try")
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), slog.Default(), 5, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "should succeed on third attempt")
}

func TestRetryWithBackoff_AllAttemptsFail(t *testing.T) {
	attempts := 0
	expectedErr := errors.New("persistent error")
	err := retryWithBackoff(context.Background(), slog.Default(), 3, time.Millisecond, func() error {
		attempts++
		return expectedErr
	})

	assert.Equal(t, expectedErr, err, "should return the last error")
	assert.Equal(t, 3, attempts, "should attempt exactly maxAttempts times")
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := retryWithBackoff(ctx, slog.Default(), 10, time.Millisecond, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts, "should stop when context is canceled")
}

func TestRetryWithBackoff_InvalidMaxAttempts(t *testing.T) {
	attempts := 0
	operation := func() error {
		attempts++
		return nil
	}

	assert.ErrorIs(t, retryWithBackoff(context.Background(), slog.Default(), 0, time.Millisecond, operation), ErrInvalidMaxAttempts)
	assert.ErrorIs(t, retryWithBackoff(context.Background(), slog.Default(), -1, time.Millisecond, operation), ErrInvalidMaxAttempts)
	assert.Equal(t, 0, attempts)
}

func TestWait(t *testing.T) {
	assert.NoError(t, wait(context.Background(), 0))
	assert.NoError(t, wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, wait(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, wait(ctx, 0), context.Canceled)
}
