package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/clock"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/mailbox"
)

// Default settings.
const (
	DefaultWindow      = 24 * time.Hour
	DefaultMinInterval = 60 * time.Second
)

// ErrNoSummarizer is returned by digest operations when no summarizer is
// configured.
var ErrNoSummarizer = errors.New("no summarizer configured")

// Reason explains a Decision.
type Reason string

const (
	ReasonChanged     Reason = "changed"
	ReasonBaseline    Reason = "baseline"
	ReasonUnchanged   Reason = "unchanged"
	ReasonSuppressed  Reason = "suppressed"
	ReasonRateLimited Reason = "rate_limited"
)

// Decision is the outcome of a change check.
type Decision struct {
	Regenerate bool          `json:"regenerate"`
	Reason     Reason        `json:"reason"`
	Hash       string        `json:"hash"`
	Recent     int           `json:"recent"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
}

// State is the detector's memory of the last check and regeneration.
type State struct {
	LastHash        string    `json:"lastHash"`
	LastSummary     string    `json:"lastSummary"`
	LastGeneratedAt time.Time `json:"lastGeneratedAt"`
	Baselined       bool      `json:"baselined"`
}

// Summary is a regenerated digest.
type Summary struct {
	Text        string    `json:"text"`
	Hash        string    `json:"hash"`
	GeneratedAt time.Time `json:"generatedAt"`
	Messages    int       `json:"messages"`
}

// Config configures a Detector.
type Config struct {
	Window      time.Duration
	MinInterval time.Duration
	Clock       clock.Clock
	Logger      *slog.Logger
}

// Detector tracks digest state for one session. It is safe for concurrent use.
type Detector struct {
	window      time.Duration
	minInterval time.Duration
	clock       clock.Clock
	logger      *slog.Logger
	summarizer  backend.Summarizer

	mu      sync.Mutex
	limiter *rate.Limiter
	state   State
}

// NewDetector returns a Detector that regenerates through summarizer.
func NewDetector(cfg Config, summarizer backend.Summarizer) *Detector {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Detector{
		window:      cfg.Window,
		minInterval: cfg.MinInterval,
		clock:       clock.OrReal(cfg.Clock),
		logger:      logging.WithService(cfg.Logger, "digest"),
		summarizer:  summarizer,
		limiter:     rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
	}
}

// State returns a copy of the current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// ShouldRegenerate checks whether the recent message set changed since the
// last check. The first call records a baseline and never regenerates. A
// suppressed or rate-limited check leaves the recorded hash untouched so the
// change is picked up by a later check.
func (d *Detector) ShouldRegenerate(messages []mailbox.RawMessage, suppressed bool) Decision {
	now := d.clock.Now()
	recent := Recent(now, messages, d.window)
	hash := Fingerprint(recent)

	d.mu.Lock()
	defer d.mu.Unlock()

	dec := Decision{Hash: hash, Recent: len(recent)}
	switch {
	case !d.state.Baselined:
		d.state.LastHash = hash
		d.state.Baselined = true
		dec.Reason = ReasonBaseline
	case hash == d.state.LastHash:
		dec.Reason = ReasonUnchanged
	case suppressed:
		dec.Reason = ReasonSuppressed
	case d.limiter.TokensAt(now) < 1:
		dec.Reason = ReasonRateLimited
		dec.RetryAfter = d.retryAfterLocked(now)
	default:
		dec.Regenerate = true
		dec.Reason = ReasonChanged
	}
	return dec
}

// Regenerate asks the summarizer for a fresh digest of the recent messages.
// It bypasses the change check but not the rate limiter: an attempt within
// the minimum interval of the previous one fails with *backend.RateLimitedError.
// Failed attempts still count against the interval.
func (d *Detector) Regenerate(ctx context.Context, messages []mailbox.RawMessage) (Summary, error) {
	if d.summarizer == nil {
		return Summary{}, ErrNoSummarizer
	}

	now := d.clock.Now()
	recent := Recent(now, messages, d.window)
	hash := Fingerprint(recent)

	d.mu.Lock()
	if !d.limiter.AllowN(now, 1) {
		retry := d.retryAfterLocked(now)
		d.mu.Unlock()
		d.logger.Debug("digest regeneration rate limited", slog.Duration("retry_after", retry))
		return Summary{}, &backend.RateLimitedError{RetryAfter: retry}
	}
	if now.After(d.state.LastGeneratedAt) {
		d.state.LastGeneratedAt = now
	}
	d.mu.Unlock()

	text, err := d.summarizer.GenerateDigest(ctx, recent)
	if err != nil {
		d.logger.Warn("digest regeneration failed", logging.Err(err))
		return Summary{}, fmt.Errorf("failed to generate digest: %w", err)
	}

	d.mu.Lock()
	d.state.LastHash = hash
	d.state.LastSummary = text
	d.state.Baselined = true
	d.mu.Unlock()

	d.logger.Info("digest regenerated", slog.Int("messages", len(recent)))
	return Summary{Text: text, Hash: hash, GeneratedAt: now, Messages: len(recent)}, nil
}

// Load fetches the last stored digest from the summarizer and caches it.
func (d *Detector) Load(ctx context.Context) (string, error) {
	if d.summarizer == nil {
		return "", ErrNoSummarizer
	}

	text, err := d.summarizer.GetDigest(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get digest: %w", err)
	}

	d.mu.Lock()
	d.state.LastSummary = text
	d.mu.Unlock()
	return text, nil
}

// retryAfterLocked returns the time until the next attempt is allowed,
// rounded up to whole seconds.
func (d *Detector) retryAfterLocked(now time.Time) time.Duration {
	wait := d.state.LastGeneratedAt.Add(d.minInterval).Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return time.Duration(math.Ceil(wait.Seconds())) * time.Second
}
