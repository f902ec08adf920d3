package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSavefi_Retry_Do(t *testing.T) {
	t.Parallel()

	fastCfg := Config{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}

	t.Run("returns nil on first success", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := Do(context.Background(), fastCfg, func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("retries retryable errors until success", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := Do(context.Background(), fastCfg, func() error {
			calls++
			if calls < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("stops immediately on non-retryable error", func(t *testing.T) {
		t.Parallel()

		calls := 0
		permanent := errors.New("invalid argument")
		err := Do(context.Background(), fastCfg, func() error {
			calls++
			return permanent
		})
		require.ErrorIs(t, err, permanent)
		require.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := Do(context.Background(), fastCfg, func() error {
			calls++
			return errors.New("timeout waiting for response")
		})
		require.Error(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("respects context cancellation between attempts", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Do(ctx, fastCfg, func() error {
			calls++
			cancel()
			return errors.New("timeout")
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, calls)
	})
}

func TestSavefi_Retry_IsRetryable(t *testing.T) {
	t.Parallel()

	require.False(t, IsRetryable(nil))
	require.False(t, IsRetryable(context.Canceled))
	require.False(t, IsRetryable(context.DeadlineExceeded))
	require.False(t, IsRetryable(errors.New("invalid fee rate")))

	require.True(t, IsRetryable(errors.New("connection refused")))
	require.True(t, IsRetryable(errors.New("429 Too Many Requests")))
	require.True(t, IsRetryable(errors.New("Blockhash not found")))
	require.True(t, IsRetryable(errors.New("node is behind by 150 slots")))
}
