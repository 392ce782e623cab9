package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrBackendUnavailable marks a failure to start a model stream at all
// (network or auth). It is the only error Send returns to the caller;
// everything else is folded into conversation state.
var ErrBackendUnavailable = errors.New("model backend unavailable")

// backendUnavailable wraps err so callers can match ErrBackendUnavailable
// with errors.Is while keeping the underlying cause in the message.
func backendUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

// RateLimitError is returned by providers when the backend signals a rate
// limit with an explicit wait.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: %s (retry after %s)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

// IsLongWait reports whether the mandated wait is too long for automatic
// retry to make sense.
func (e *RateLimitError) IsLongWait() bool {
	return e.RetryAfter > 2*time.Minute
}
