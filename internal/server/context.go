package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/events"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/session"
)

// Defaults for ServerContext.
const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultReapInterval  = time.Minute
	DefaultAccountBuffer = events.DefaultBufferSize
)

// ErrShutdown is returned once the server context has been shut down.
var ErrShutdown = errors.New("server is shutting down")

// SessionFactory builds the session configuration for an account. The
// ServerContext adds its own notifiers before opening the session.
type SessionFactory func(ctx context.Context, account string) (session.Config, error)

// Config configures a ServerContext.
type Config struct {
	Factory SessionFactory
	// Notifiers receive the notifications of every account, in addition to
	// the per-account buffer.
	Notifiers []session.Notifier
	// IdleTimeout closes sessions not used for this long. Zero uses
	// DefaultIdleTimeout; a negative value disables reaping.
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	BufferSize   int
	Logger       *slog.Logger

	// Metrics and Audit instrument MCP tool calls. Both may be nil.
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
}

// accountInfo tracks one account's session and pending notifications.
type accountInfo struct {
	session    *session.Session
	buffer     *events.Buffer
	lastAccess time.Time
}

// ServerContext owns one session per account for the lifetime of the
// server. Sessions are opened on first use and closed when idle.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	accounts map[string]*accountInfo
	shutdown bool

	// opening runs one factory and initial load per account at a time,
	// outside mu.
	opening singleflight.Group

	reapDone chan struct{}
	reapWG   sync.WaitGroup
}

// NewServerContext creates a server context. Sessions inherit ctx's values
// but are only closed by Shutdown or idle reaping.
func NewServerContext(ctx context.Context, cfg Config) (*ServerContext, error) {
	if cfg.Factory == nil {
		return nil, errors.New("session factory is required")
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultReapInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultAccountBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	sctx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:      sctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logging.WithService(cfg.Logger, "server"),
		accounts: make(map[string]*accountInfo),
		reapDone: make(chan struct{}),
	}

	if cfg.IdleTimeout > 0 {
		sc.reapWG.Add(1)
		go sc.reapLoop()
	}
	return sc, nil
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Metrics returns the tool metrics, or nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.cfg.Metrics
}

// AuditLogger returns the tool audit logger, or nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.cfg.Audit
}

// Session returns the session for account, opening and loading it if
// needed. A session whose backend login expired is replaced by a fresh one
// so that a renewed token is picked up. Opening one account does not block
// calls for other accounts.
func (sc *ServerContext) Session(account string) (*session.Session, error) {
	if account == "" {
		account = session.DefaultAccount
	}

	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil, ErrShutdown
	}
	info, ok := sc.accounts[account]
	if !ok {
		info = &accountInfo{buffer: events.NewBuffer(sc.cfg.BufferSize)}
		sc.accounts[account] = info
	}
	info.lastAccess = time.Now()

	var expired *session.Session
	if info.session != nil {
		if !errors.Is(info.session.View().Err, backend.ErrSessionExpired) {
			s := info.session
			sc.mu.Unlock()
			return s, nil
		}
		expired = info.session
		info.session = nil
	}
	sc.mu.Unlock()

	if expired != nil {
		sc.logger.Info("replacing expired session", logging.Account(account))
		_ = expired.Close()
	}

	v, err, _ := sc.opening.Do(account, func() (any, error) {
		sc.mu.Lock()
		if info.session != nil {
			s := info.session
			sc.mu.Unlock()
			return s, nil
		}
		sc.mu.Unlock()

		s, err := sc.open(account, info.buffer)
		if err != nil {
			return nil, err
		}

		sc.mu.Lock()
		if sc.shutdown {
			sc.mu.Unlock()
			_ = s.Close()
			return nil, ErrShutdown
		}
		info.session = s
		sc.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

// Notifications drains the pending notifications of account.
func (sc *ServerContext) Notifications(account string) []session.Notification {
	if account == "" {
		account = session.DefaultAccount
	}

	sc.mu.Lock()
	info, ok := sc.accounts[account]
	sc.mu.Unlock()
	if !ok {
		return nil
	}
	notes, dropped := info.buffer.Drain()
	if dropped > 0 {
		sc.logger.Warn("notifications were dropped before they were read",
			logging.Account(account), slog.Int("dropped", dropped))
	}
	return notes
}

// Accounts lists the accounts with an open session.
func (sc *ServerContext) Accounts() []string {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	out := make([]string, 0, len(sc.accounts))
	for account, info := range sc.accounts {
		if info.session != nil {
			out = append(out, account)
		}
	}
	sort.Strings(out)
	return out
}

// reapIdle closes sessions last used before now minus the idle timeout. The
// notification buffer is kept so that pending notifications survive.
func (sc *ServerContext) reapIdle(now time.Time) int {
	sc.mu.Lock()
	var idle []*session.Session
	for account, info := range sc.accounts {
		if info.session != nil && now.Sub(info.lastAccess) > sc.cfg.IdleTimeout {
			idle = append(idle, info.session)
			info.session = nil
			sc.logger.Debug("closing idle session", logging.Account(account))
		}
	}
	sc.mu.Unlock()

	for _, s := range idle {
		_ = s.Close()
	}
	return len(idle)
}

func (sc *ServerContext) reapLoop() {
	defer sc.reapWG.Done()
	ticker := time.NewTicker(sc.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := sc.reapIdle(now); n > 0 {
				sc.logger.Info("closed idle sessions", slog.Int("count", n))
			}
		case <-sc.reapDone:
			return
		}
	}
}

// IsShutdown returns whether the server has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.shutdown
}

// Shutdown closes every session and stops reaping. It is idempotent.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	var open []*session.Session
	for _, info := range sc.accounts {
		if info.session != nil {
			open = append(open, info.session)
			info.session = nil
		}
	}
	sc.mu.Unlock()

	close(sc.reapDone)
	sc.reapWG.Wait()

	var errs []error
	for _, s := range open {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session %s: %w", s.ID(), err))
		}
	}
	sc.cancel()
	return errors.Join(errs...)
}
