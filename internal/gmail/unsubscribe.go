package gmail

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const userAgent = "inboxdigest/1.0"

// UnsubscribeViaHTTP follows an RFC 2369 List-Unsubscribe HTTP link.
func (c *Client) UnsubscribeViaHTTP(ctx context.Context, url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("invalid HTTP URL: %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	// Some unsubscribe endpoints reject requests without a user agent.
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.web.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send unsubscribe request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// StatusError reports an unsuccessful unsubscribe response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unsubscribe request failed with status %d", e.Code)
}
