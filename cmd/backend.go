package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/backend/gmailapi"
	"github.com/teemow/inboxdigest/internal/backend/httpapi"
	"github.com/teemow/inboxdigest/internal/classifier"
	"github.com/teemow/inboxdigest/internal/gmail"
	"github.com/teemow/inboxdigest/internal/google"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/session"
)

// Environment variables used when the matching flag is not set.
const (
	EnvAPIURL        = "INBOXDIGEST_API_URL"
	EnvSessionCookie = "INBOXDIGEST_SESSION_COOKIE"
	EnvBackend       = "INBOXDIGEST_BACKEND"
)

const (
	backendHTTP  = "http"
	backendGmail = "gmail"
)

// backendOptions are the flags shared by every command that opens a mailbox.
type backendOptions struct {
	kind        string
	apiURL      string
	cookie      string
	cookieName  string
	credentials string
	cacheDir    string
	policy      string
	debug       bool
}

func (o *backendOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.kind, "backend", "", "Mailbox backend: http or gmail. Can also use "+EnvBackend+" env var. (default: http)")
	cmd.Flags().StringVar(&o.apiURL, "api-url", "", "Dashboard API base URL (http backend; optional summarizer for gmail). Can also use "+EnvAPIURL+" env var.")
	cmd.Flags().StringVar(&o.cookie, "session-cookie", "", "Dashboard session cookie value. Can also use "+EnvSessionCookie+" env var.")
	cmd.Flags().StringVar(&o.cookieName, "session-cookie-name", httpapi.DefaultCookieName, "Dashboard session cookie name")
	cmd.Flags().StringVar(&o.credentials, "credentials", "", "Google OAuth client_secret.json (gmail backend). Defaults to "+google.EnvClientID+"/"+google.EnvClientSecret+" env vars.")
	cmd.Flags().StringVar(&o.cacheDir, "cache-dir", "", "Directory for the gmail snapshot cache (default: user cache dir)")
	cmd.Flags().StringVar(&o.policy, "policy", "", "YAML keyword policy for the classifier (default: built-in keywords)")
	cmd.Flags().BoolVar(&o.debug, "debug", false, "Enable debug logging")
}

// resolve fills unset options from the environment and validates them.
func (o *backendOptions) resolve() error {
	if o.kind == "" {
		o.kind = os.Getenv(EnvBackend)
	}
	if o.kind == "" {
		o.kind = backendHTTP
	}
	if o.apiURL == "" {
		o.apiURL = os.Getenv(EnvAPIURL)
	}
	if o.cookie == "" {
		o.cookie = os.Getenv(EnvSessionCookie)
	}

	switch o.kind {
	case backendHTTP:
		if o.apiURL == "" {
			return fmt.Errorf("the http backend needs --api-url or %s", EnvAPIURL)
		}
	case backendGmail:
	default:
		return fmt.Errorf("unsupported backend %q (supported: %s, %s)", o.kind, backendHTTP, backendGmail)
	}
	return nil
}

func (o *backendOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	return logging.NewLogger(w, "text", level)
}

func (o *backendOptions) classifier() (*classifier.Classifier, error) {
	if o.policy == "" {
		return nil, nil
	}
	p, err := classifier.LoadPolicy(o.policy)
	if err != nil {
		return nil, err
	}
	return classifier.New(p), nil
}

func (o *backendOptions) storePath(account string) (string, error) {
	dir := o.cacheDir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate cache dir: %w", err)
		}
		dir = filepath.Join(base, "inboxdigest")
	}
	return filepath.Join(dir, "gmail-"+account+".db"), nil
}

// mailboxBackend is an opened backend plus whatever must be closed with it.
type mailboxBackend struct {
	mailbox    backend.Mailbox
	summarizer backend.Summarizer
	close      func() error
}

func (o *backendOptions) httpClient(logger *slog.Logger, metrics *instrumentation.Metrics) (*httpapi.Client, error) {
	logger.Debug("using dashboard API",
		slog.String("url", o.apiURL),
		slog.String("session_cookie", logging.SanitizeToken(o.cookie)))
	return httpapi.New(o.apiURL,
		httpapi.WithSessionCookie(o.cookieName, o.cookie),
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(metrics),
	)
}

// openBackend opens the configured backend for account. With the gmail
// backend the dashboard API, when configured, serves only as summarizer.
func (o *backendOptions) openBackend(ctx context.Context, account string, logger *slog.Logger, metrics *instrumentation.Metrics) (*mailboxBackend, error) {
	if o.kind == backendHTTP {
		c, err := o.httpClient(logger, metrics)
		if err != nil {
			return nil, err
		}
		return &mailboxBackend{mailbox: c, summarizer: c, close: func() error { return nil }}, nil
	}

	oauthCfg, err := google.OAuthConfig(o.credentials)
	if err != nil {
		return nil, err
	}
	client, err := gmail.NewClientForAccount(ctx, oauthCfg, account)
	if err != nil {
		return nil, err
	}
	path, err := o.storePath(account)
	if err != nil {
		return nil, err
	}
	store, err := gmailapi.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot cache: %w", err)
	}

	b := &mailboxBackend{
		mailbox: gmailapi.New(client, store, gmailapi.WithLogger(logger), gmailapi.WithMetrics(metrics)),
		close:   store.Close,
	}
	if o.apiURL != "" {
		c, err := o.httpClient(logger, metrics)
		if err != nil {
			store.Close()
			return nil, err
		}
		b.summarizer = c
	}
	return b, nil
}

// sessionConfig returns a session configuration over b.
func (o *backendOptions) sessionConfig(account string, b *mailboxBackend, logger *slog.Logger, metrics *instrumentation.Metrics) (session.Config, error) {
	cls, err := o.classifier()
	if err != nil {
		return session.Config{}, err
	}
	cfg := session.DefaultConfig()
	cfg.Account = account
	cfg.Mailbox = b.mailbox
	cfg.Summarizer = b.summarizer
	cfg.Classifier = cls
	cfg.Logger = logger
	cfg.Metrics = metrics
	return cfg, nil
}

// backendPool opens one backend per account and keeps it for sessions that
// are reopened after an idle reap.
type backendPool struct {
	opts    *backendOptions
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	mu       sync.Mutex
	backends map[string]*mailboxBackend
}

func newBackendPool(opts *backendOptions, logger *slog.Logger, metrics *instrumentation.Metrics) *backendPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &backendPool{
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		backends: make(map[string]*mailboxBackend),
	}
}

// SessionConfig is a server.SessionFactory.
func (p *backendPool) SessionConfig(ctx context.Context, account string) (session.Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.backends[account]
	if !ok {
		var err error
		b, err = p.opts.openBackend(ctx, account, p.logger, p.metrics)
		if err != nil {
			return session.Config{}, err
		}
		p.backends[account] = b
	}
	return p.opts.sessionConfig(account, b, p.logger, p.metrics)
}

// Forget closes and drops the backend of account; the next session opens a
// new one. Used after the account was re-authorized.
func (p *backendPool) Forget(account string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.backends[account]
	if !ok {
		return
	}
	delete(p.backends, account)
	if err := b.close(); err != nil {
		p.logger.Warn("failed to close backend", logging.Account(account), logging.Err(err))
	}
}

func (p *backendPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for account, b := range p.backends {
		if err := b.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", account, err))
		}
		delete(p.backends, account)
	}
	return errors.Join(errs...)
}

// openSession opens a one-shot session for the CLI commands. Automatic
// digest regeneration is off; commands ask for a digest explicitly.
func (o *backendOptions) openSession(ctx context.Context, account string, logger *slog.Logger) (*session.Session, func(), error) {
	account = strings.TrimSpace(account)
	if account == "" {
		account = session.DefaultAccount
	}
	b, err := o.openBackend(ctx, account, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := o.sessionConfig(account, b, logger, nil)
	if err != nil {
		b.close()
		return nil, nil, err
	}
	cfg.AutoDigest = false

	s, err := session.Open(ctx, cfg)
	if err != nil {
		b.close()
		return nil, nil, err
	}
	return s, func() {
		s.Close()
		if err := b.close(); err != nil {
			logger.Warn("failed to close backend", logging.Err(err))
		}
	}, nil
}
