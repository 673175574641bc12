package llm

import (
	"context"
	"time"
)

// backoffSchedule is the fixed retry schedule: 5s, 10s, 20s, 30s, 30s. Once
// exhausted the last classified error is returned to the caller.
var backoffSchedule = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	30 * time.Second,
}

// RetryHandler executes retryable operations against the fixed backoff
// schedule, classifying errors via IsRetryable at the network boundary.
type RetryHandler struct {
	schedule []time.Duration
}

// NewRetryHandler constructs a handler using the standard fixed schedule.
func NewRetryHandler() *RetryHandler {
	return &RetryHandler{schedule: backoffSchedule}
}

// Do executes fn, retrying on transient errors per the fixed schedule. Fatal
// errors and context cancellation return immediately.
func (r *RetryHandler) Do(ctx context.Context, fn func() error) error {
	schedule := r.schedule
	if len(schedule) == 0 {
		schedule = backoffSchedule
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = classifyNetworkError(err)
		if !IsRetryable(lastErr) || attempt >= len(schedule) {
			return lastErr
		}

		select {
		case <-time.After(schedule[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
