package tool

import (
	"context"
	"errors"
	"strings"

	"council-ai/internal/domain"
)

// retryableSentinels are tool failures that usually resolve on their own.
var retryableSentinels = []error{
	domain.ErrTimeout,
	domain.ErrBackendUnavailable,
	context.DeadlineExceeded,
}

// retryablePatterns are checked case-insensitively against the error text
// when no sentinel matches.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"try again",
}

// classifyToolError reports whether the chair may retry the directive
// unchanged. A cancelled ask is never retryable.
func classifyToolError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	for _, sentinel := range retryableSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
