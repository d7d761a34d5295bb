package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/ragstore/ai"
	"github.com/poiesic/ragstore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failFirst returns an operation that fails n times with err and then succeeds.
func failFirst(n int, err error, calls *int) func() error {
	return func() error {
		*calls++
		if *calls <= n {
			return err
		}
		return nil
	}
}

func TestRetryWithBackoff(t *testing.T) {
	transient := ai.NewProviderError("embed_documents", errors.New("connection reset"))
	badRequest := errors.New("input too long")

	tests := []struct {
		name        string
		failures    int
		err         error
		maxAttempts int
		wantCalls   int
		wantErr     error
	}{
		{name: "first try", failures: 0, maxAttempts: 3, wantCalls: 1},
		{name: "transient provider errors", failures: 2, err: transient, maxAttempts: 5, wantCalls: 3},
		{name: "gives up after max attempts", failures: 10, err: transient, maxAttempts: 3, wantCalls: 3, wantErr: ai.ErrProvider},
		{name: "permanent is not retried", failures: 10, err: Permanent(badRequest), maxAttempts: 5, wantCalls: 1, wantErr: badRequest},
		{name: "dimension mismatch is not retried", failures: 10, err: fmt.Errorf("batch: %w", core.ErrDimensionMismatch), maxAttempts: 5, wantCalls: 1, wantErr: core.ErrDimensionMismatch},
		{name: "zero attempts", failures: 10, err: transient, maxAttempts: 0, wantCalls: 0, wantErr: ErrInvalidMaxAttempts},
		{name: "negative attempts", failures: 10, err: transient, maxAttempts: -1, wantCalls: 0, wantErr: ErrInvalidMaxAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithBackoff(context.Background(), failFirst(tt.failures, tt.err, &calls), tt.maxAttempts, time.Millisecond)
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRetryWithBackoff_PermanentIsUnwrapped(t *testing.T) {
	cause := errors.New("bad request")
	err := RetryWithBackoff(context.Background(), func() error { return Permanent(cause) }, 3, time.Millisecond)
	assert.Same(t, cause, err)
}

func TestRetryWithBackoff_StopsOnContext(t *testing.T) {
	t.Run("cancelled between attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			if calls == 2 {
				cancel()
			}
			return errors.New("unavailable")
		}, 10, time.Millisecond)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, calls)
	})

	t.Run("deadline during backoff", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		calls := 0
		err := RetryWithBackoff(ctx, failFirst(100, errors.New("unavailable"), &calls), 100, time.Hour)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, calls)
	})
}

func TestRetryWithBackoff_DelayGrows(t *testing.T) {
	var stamps []time.Time
	err := RetryWithBackoff(context.Background(), func() error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 4 {
			return errors.New("unavailable")
		}
		return nil
	}, 5, 5*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, stamps, 4)

	// 5ms, 10ms, 20ms
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 5*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 10*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[3].Sub(stamps[2]), 20*time.Millisecond)
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	cause := errors.New("quota exceeded")
	assert.ErrorIs(t, Permanent(cause), cause)
	assert.Equal(t, "quota exceeded", Permanent(cause).Error())
}
