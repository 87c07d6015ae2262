package backend

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrSessionExpired is returned when the backend rejects the session's
	// credentials.
	ErrSessionExpired = errors.New("session expired")
	// ErrMalformedPayload is returned when a response cannot be decoded.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnavailable is returned when neither cache nor scan produced data.
	ErrUnavailable = errors.New("mailbox unavailable")
)

// TransientError wraps a failure that may succeed on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: temporary failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitedError reports that an operation must wait before it is retried.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: try again in %d seconds", e.Seconds())
}

// Seconds returns RetryAfter rounded up to whole seconds, at least 1.
func (e *RateLimitedError) Seconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// IsRetryable reports whether err is worth retrying later.
func IsRetryable(err error) bool {
	var te *TransientError
	var rl *RateLimitedError
	return errors.As(err, &te) || errors.As(err, &rl)
}

// RetryAfter returns the delay requested by a rate-limited error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
