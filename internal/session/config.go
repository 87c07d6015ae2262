package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/classifier"
	"github.com/teemow/inboxdigest/internal/clock"
	"github.com/teemow/inboxdigest/internal/digest"
	"github.com/teemow/inboxdigest/internal/instrumentation"
)

// Defaults used by DefaultConfig.
const (
	DefaultDeleteGrace     = 5 * time.Second
	DefaultMutationTimeout = 30 * time.Second
	DefaultAccount         = "default"
)

// Config configures a Session.
type Config struct {
	// Account names the mailbox in logs, metrics and notifications.
	Account string

	Mailbox backend.Mailbox
	// Summarizer is optional; without it digest operations fail with
	// digest.ErrNoSummarizer.
	Summarizer backend.Summarizer
	// Classifier is optional; nil uses the default keyword policy.
	Classifier *classifier.Classifier

	// RecentWindow bounds the messages that feed the digest.
	RecentWindow time.Duration
	// MinDigestInterval is the minimum time between digest regenerations.
	MinDigestInterval time.Duration
	// DeleteGrace suppresses automatic digest regeneration after a delete.
	DeleteGrace time.Duration
	// MutationTimeout bounds each backend mutation call.
	MutationTimeout time.Duration
	// AutoDigest regenerates the digest when the recent message set changes.
	AutoDigest bool

	Clock     clock.Clock
	Logger    *slog.Logger
	Metrics   *instrumentation.Metrics
	Notifiers []Notifier
}

// DefaultConfig returns a Config with default timings. Mailbox must still be
// set.
func DefaultConfig() Config {
	return Config{
		Account:           DefaultAccount,
		RecentWindow:      digest.DefaultWindow,
		MinDigestInterval: digest.DefaultMinInterval,
		DeleteGrace:       DefaultDeleteGrace,
		MutationTimeout:   DefaultMutationTimeout,
		AutoDigest:        true,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.Mailbox == nil {
		errs = append(errs, errors.New("mailbox backend is required"))
	}
	if c.RecentWindow < 0 {
		errs = append(errs, fmt.Errorf("recent window must not be negative, got %s", c.RecentWindow))
	}
	if c.MinDigestInterval < 0 {
		errs = append(errs, fmt.Errorf("minimum digest interval must not be negative, got %s", c.MinDigestInterval))
	}
	if c.DeleteGrace < 0 {
		errs = append(errs, fmt.Errorf("delete grace must not be negative, got %s", c.DeleteGrace))
	}
	if c.MutationTimeout < 0 {
		errs = append(errs, fmt.Errorf("mutation timeout must not be negative, got %s", c.MutationTimeout))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Account == "" {
		c.Account = d.Account
	}
	if c.RecentWindow == 0 {
		c.RecentWindow = d.RecentWindow
	}
	if c.MinDigestInterval == 0 {
		c.MinDigestInterval = d.MinDigestInterval
	}
	if c.DeleteGrace == 0 {
		c.DeleteGrace = d.DeleteGrace
	}
	if c.MutationTimeout == 0 {
		c.MutationTimeout = d.MutationTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.Clock = clock.OrReal(c.Clock)
	return c
}
