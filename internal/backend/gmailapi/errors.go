package gmailapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/gmail"
)

const defaultRetryAfter = 60 * time.Second

// mapError translates Gmail, OAuth and transport failures into the backend
// error vocabulary.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%s: %w: %v", op, backend.ErrSessionExpired, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		code := gerr.Code
		if code == http.StatusForbidden && isRateLimitReason(gerr) {
			code = http.StatusTooManyRequests
		}
		return statusError(op, code, gerr.Header, err)
	}

	var serr *gmail.StatusError
	if errors.As(err, &serr) {
		return statusError(op, serr.Code, nil, err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return &backend.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func statusError(op string, code int, header http.Header, err error) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %v", op, backend.ErrSessionExpired, err)
	case code == http.StatusTooManyRequests:
		retry := defaultRetryAfter
		if header != nil {
			if secs, perr := strconv.Atoi(header.Get("Retry-After")); perr == nil && secs >= 0 {
				retry = time.Duration(secs) * time.Second
			}
		}
		return fmt.Errorf("%s: %w", op, &backend.RateLimitedError{RetryAfter: retry})
	case code >= 500:
		return &backend.TransientError{Op: op, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// Gmail reports quota exhaustion as 403 with a rate limit reason.
func isRateLimitReason(e *googleapi.Error) bool {
	for _, item := range e.Errors {
		if strings.HasSuffix(item.Reason, "RateLimitExceeded") || item.Reason == "rateLimitExceeded" {
			return true
		}
	}
	return false
}
