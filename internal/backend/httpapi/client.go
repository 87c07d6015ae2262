package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/mailbox"
)

const (
	defaultTimeout    = 2 * time.Minute
	defaultRetryAfter = 60 * time.Second
	userAgent         = "inboxdigest/1.0"

	// DefaultCookieName is the session cookie the dashboard API expects.
	DefaultCookieName = "session"
)

// Client talks to the dashboard API. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	cookie     *http.Cookie
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	now        func() time.Time
}

var (
	_ backend.Mailbox    = (*Client)(nil)
	_ backend.Summarizer = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSessionCookie authenticates requests with a session cookie.
func WithSessionCookie(name, value string) Option {
	return func(c *Client) {
		if name == "" {
			name = DefaultCookieName
		}
		c.cookie = &http.Cookie{Name: name, Value: value}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records backend operation metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithBackend(c.logger, instrumentation.BackendHTTP)
	return c, nil
}

// GetCachedSnapshot implements backend.Mailbox.
func (c *Client) GetCachedSnapshot(ctx context.Context) (mailbox.Snapshot, error) {
	return c.snapshot(ctx, "cached", "/api/user/emails/cached", mailbox.SourceCache)
}

// ScanSnapshot implements backend.Mailbox.
func (c *Client) ScanSnapshot(ctx context.Context) (mailbox.Snapshot, error) {
	return c.snapshot(ctx, "scan", "/api/user/emails/scan", mailbox.SourceScan)
}

func (c *Client) snapshot(ctx context.Context, op, path string, source mailbox.SnapshotSource) (mailbox.Snapshot, error) {
	var resp snapshotResponse
	if err := c.do(ctx, op, http.MethodGet, path, nil, &resp); err != nil {
		return mailbox.Snapshot{}, err
	}

	snap := mailbox.Snapshot{
		Source:    source,
		FetchedAt: c.now(),
		Cached:    source == mailbox.SourceScan || len(resp.Emails) > 0,
	}
	if resp.Cached != nil {
		snap.Cached = *resp.Cached
	}

	switch resp.Status {
	case "", string(mailbox.SnapshotDone), "completed":
		snap.Status = mailbox.SnapshotDone
	case string(mailbox.SnapshotProcessing):
		snap.Status = mailbox.SnapshotProcessing
		return snap, nil
	default:
		return mailbox.Snapshot{}, fmt.Errorf("%s: %w: unknown status %q", op, backend.ErrMalformedPayload, resp.Status)
	}

	dropped := 0
	for _, raw := range resp.Emails {
		m, err := decodeMessage(raw)
		if err != nil {
			dropped++
			c.logger.Debug("dropping malformed message", logging.Operation(op), logging.Err(err))
			continue
		}
		snap.Messages = append(snap.Messages, m)
	}

	// Subscription status lives behind its own endpoint; inline entries are
	// only used when the snapshot response carries them.
	subs := resp.Subscriptions
	if subs == nil && snap.Cached {
		var sresp subscriptionsResponse
		if err := c.do(ctx, "subscriptions", http.MethodGet, "/api/user/subscriptions", nil, &sresp); err != nil {
			return mailbox.Snapshot{}, err
		}
		if sresp.Status == string(mailbox.SnapshotProcessing) {
			snap.Status = mailbox.SnapshotProcessing
			snap.Messages = nil
			return snap, nil
		}
		subs = sresp.Subscriptions
	}
	for _, raw := range subs {
		s, err := decodeSubscription(raw)
		if err != nil {
			dropped++
			c.logger.Debug("dropping malformed subscription", logging.Operation(op), logging.Err(err))
			continue
		}
		snap.Subscriptions = append(snap.Subscriptions, s)
	}
	if dropped > 0 {
		c.logger.Warn("dropped malformed entries", logging.Operation(op), slog.Int("dropped", dropped))
	}

	return snap, nil
}

// Archive implements backend.Mailbox.
func (c *Client) Archive(ctx context.Context, messageID, label string) error {
	return c.do(ctx, "archive", http.MethodPost, messagePath(messageID, "archive"), labelRequest{Label: label}, nil)
}

// Unarchive implements backend.Mailbox.
func (c *Client) Unarchive(ctx context.Context, messageID, label string) error {
	return c.do(ctx, "unarchive", http.MethodPost, messagePath(messageID, "unarchive"), labelRequest{Label: label}, nil)
}

// Star implements backend.Mailbox.
func (c *Client) Star(ctx context.Context, messageID string) error {
	return c.do(ctx, "star", http.MethodPost, messagePath(messageID, "star"), nil, nil)
}

// Unstar implements backend.Mailbox.
func (c *Client) Unstar(ctx context.Context, messageID string) error {
	return c.do(ctx, "unstar", http.MethodPost, messagePath(messageID, "unstar"), nil, nil)
}

// Delete implements backend.Mailbox.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	return c.do(ctx, "delete", http.MethodDelete, messagePath(messageID, ""), nil, nil)
}

// MarkUnsubscribed implements backend.Mailbox.
func (c *Client) MarkUnsubscribed(ctx context.Context, address, messageID string, lastSeen time.Time) error {
	req := unsubscribeRequest{Email: address, MessageID: messageID, LastSeen: formatTime(lastSeen)}
	return c.do(ctx, "unsubscribe", http.MethodPost, "/api/user/unsubscribe", req, nil)
}

// MarkSubscribed implements backend.Mailbox.
func (c *Client) MarkSubscribed(ctx context.Context, address string, lastSeen time.Time) error {
	req := unsubscribeRequest{Email: address, LastSeen: formatTime(lastSeen)}
	return c.do(ctx, "resubscribe", http.MethodPost, "/api/user/resubscribe", req, nil)
}

// ListLabels implements backend.Mailbox.
func (c *Client) ListLabels(ctx context.Context) ([]string, error) {
	var resp labelsResponse
	if err := c.do(ctx, "labels", http.MethodGet, "/api/user/gmail-labels", nil, &resp); err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(resp.Labels))
	for _, raw := range resp.Labels {
		if name, ok := decodeLabel(raw); ok {
			labels = append(labels, name)
		}
	}
	return labels, nil
}

// GetDigest implements backend.Summarizer.
func (c *Client) GetDigest(ctx context.Context) (string, error) {
	var resp summaryResponse
	if err := c.do(ctx, "get_digest", http.MethodGet, "/api/ai/summary", nil, &resp); err != nil {
		return "", err
	}
	if resp.Summary == nil {
		return "", nil
	}
	return *resp.Summary, nil
}

// GenerateDigest implements backend.Summarizer.
func (c *Client) GenerateDigest(ctx context.Context, recent []mailbox.RawMessage) (string, error) {
	var resp summaryResponse
	if err := c.do(ctx, "generate_digest", http.MethodPost, "/api/ai/summary/generate", encodeForDigest(recent), &resp); err != nil {
		return "", err
	}
	if resp.Summary == nil {
		return "", fmt.Errorf("generate_digest: %w: missing summary", backend.ErrMalformedPayload)
	}
	return *resp.Summary, nil
}

// do performs one request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	ctx, span := instrumentation.StartBackendSpan(ctx, instrumentation.BackendHTTP, op)
	start := time.Now()
	defer func() {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		c.metrics.RecordBackendOperation(ctx, instrumentation.BackendHTTP, op, status, time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		return &backend.TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if err := c.checkStatus(op, resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, backend.ErrMalformedPayload, err)
	}
	return nil
}

func (c *Client) checkStatus(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, backend.ErrSessionExpired)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", op, &backend.RateLimitedError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		})
	case resp.StatusCode >= 500:
		return &backend.TransientError{Op: op, Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, readMessage(resp.Body))}
	default:
		return fmt.Errorf("%s: request failed with status %d: %s", op, resp.StatusCode, readMessage(resp.Body))
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

// readMessage extracts an error message from a response body, preferring
// the "error" field of a JSON object.
func readMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}

func messagePath(id, action string) string {
	p := "/api/user/emails/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
