package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// retryableSubstrings lists the network-boundary error fragments that mark an
// AI completion call as worth retrying. Matching happens on err.Error() since
// the underlying transport surfaces a mix of *net.OpError, *url.Error and
// plain fmt errors depending on provider and Go version.
var retryableSubstrings = []string{
	"EOF",
	"timeout",
	"connection reset",
	"connection refused",
	"forcibly closed",
	"temporary failure",
	"no such host",
	"broken pipe",
	"network unreachable",
}

// TransientError marks an error as retryable by the fixed backoff schedule in
// retry.go. FatalError marks one that must not be retried (bad request, auth
// failure, validation failure downstream of the network boundary).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError wraps an error the retry handler must not retry.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// IsRetryable classifies err using the string-matching predicate at the
// network boundary. Context cancellation/deadline and explicit FatalErrors
// are never retryable; explicit TransientErrors always are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	msg := err.Error()
	for _, frag := range retryableSubstrings {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// classifyNetworkError wraps a raw transport error as Transient or Fatal
// according to the string-matching predicate, so callers above the network
// boundary only ever see the typed taxonomy.
func classifyNetworkError(err error) error {
	if err == nil {
		return nil
	}
	if IsRetryable(err) {
		return &TransientError{Err: err}
	}
	return &FatalError{Err: err}
}

// ErrEmptyCompletion indicates the provider returned no choices.
var ErrEmptyCompletion = fmt.Errorf("llm: completion returned no choices")
