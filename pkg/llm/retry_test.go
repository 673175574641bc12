package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryHandlerSucceedsAfterTransientFailures(t *testing.T) {
	h := &RetryHandler{schedule: []time.Duration{time.Millisecond, time.Millisecond}}
	attempts := 0
	err := h.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryHandlerStopsOnFatalError(t *testing.T) {
	h := &RetryHandler{schedule: []time.Duration{time.Millisecond, time.Millisecond}}
	attempts := 0
	err := h.Do(context.Background(), func() error {
		attempts++
		return errors.New("invalid api key")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts, "a fatal (non-matching) error must not be retried")
}

func TestRetryHandlerExhaustsSchedule(t *testing.T) {
	h := &RetryHandler{schedule: []time.Duration{time.Millisecond, time.Millisecond}}
	attempts := 0
	err := h.Do(context.Background(), func() error {
		attempts++
		return errors.New("connection reset")
	})
	assert.Error(t, err)
	assert.Equal(t, len(h.schedule)+1, attempts, "exhausts every scheduled retry plus the initial attempt")
}

func TestRetryHandlerRespectsContextCancellation(t *testing.T) {
	h := &RetryHandler{schedule: []time.Duration{time.Second}}
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := h.Do(ctx, func() error {
		attempts++
		return errors.New("connection reset")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
