package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableSubstringMatching(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"eof", errors.New("unexpected EOF"), true},
		{"timeout", errors.New("dial tcp: i/o timeout"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"forcibly closed", errors.New("wsarecv: An existing connection was forcibly closed"), true},
		{"temporary failure", errors.New("temporary failure in name resolution"), true},
		{"no such host", errors.New("dial tcp: lookup api.groq.com: no such host"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"network unreachable", errors.New("dial tcp: network unreachable"), true},
		{"unmatched message", errors.New("invalid api key"), false},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestIsRetryableRespectsExplicitClassification(t *testing.T) {
	transient := &TransientError{Err: errors.New("invalid api key")}
	assert.True(t, IsRetryable(transient), "explicit TransientError stays retryable regardless of message")

	fatal := &FatalError{Err: errors.New("connection reset")}
	assert.False(t, IsRetryable(fatal), "explicit FatalError never retries even with a matching substring")
}

func TestClassifyNetworkError(t *testing.T) {
	classified := classifyNetworkError(errors.New("connection reset by peer"))
	var transient *TransientError
	assert.ErrorAs(t, classified, &transient)

	classified = classifyNetworkError(errors.New("invalid api key"))
	var fatal *FatalError
	assert.ErrorAs(t, classified, &fatal)
}
