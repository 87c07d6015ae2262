package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/clock"
	"github.com/teemow/inboxdigest/internal/digest"
	"github.com/teemow/inboxdigest/internal/identity"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/mailbox"
	"github.com/teemow/inboxdigest/internal/reconcile"
)

// CacheResult describes what LoadCached found.
type CacheResult string

const (
	// CacheSnapshot means a cached snapshot is displayed.
	CacheSnapshot CacheResult = "snapshot"
	// CacheEmpty means no scan has completed yet.
	CacheEmpty CacheResult = "empty"
	// CacheProcessing means the backend is still scanning.
	CacheProcessing CacheResult = "processing"
)

// Session reconciles one mailbox account.
type Session struct {
	id       string
	cfg      Config
	mailbox  backend.Mailbox
	merger   reconcile.Merger
	detector *digest.Detector
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *instrumentation.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	scans  singleflight.Group
	wg     sync.WaitGroup

	mu sync.Mutex
	st state

	closeOnce sync.Once
}

// Open creates a session. The context's values (trace, logger) are kept but
// its cancellation is not: the session lives until Close.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	id := uuid.NewString()
	logger := logging.WithAccount(logging.WithService(cfg.Logger, "session"), cfg.Account).
		With(slog.String("session_id", id))

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		id:      id,
		cfg:     cfg,
		mailbox: cfg.Mailbox,
		merger:  reconcile.Merger{Resolver: identity.Resolver{Classifier: cfg.Classifier}},
		detector: digest.NewDetector(digest.Config{
			Window:      cfg.RecentWindow,
			MinInterval: cfg.MinDigestInterval,
			Clock:       cfg.Clock,
			Logger:      logger,
		}, cfg.Summarizer),
		clock:   cfg.Clock,
		logger:  logger,
		metrics: cfg.Metrics,
		ctx:     sctx,
		cancel:  cancel,
	}

	s.metrics.IncrementActiveSessions(sctx)
	logger.Debug("session opened")
	return s, nil
}

// ID returns the session's unique ID.
func (s *Session) ID() string { return s.id }

// Account returns the account the session serves.
func (s *Session) Account() string { return s.cfg.Account }

// Close cancels outstanding backend calls and waits for their goroutines.
// Late results are discarded. Close is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.st = s.st.onClosed()
		s.mu.Unlock()

		s.cancel()
		s.wg.Wait()

		s.metrics.DecrementActiveSessions(s.ctx)
		s.logger.Debug("session closed")
	})
	return nil
}

// Wait blocks until all background work started so far has finished. It
// must not be called concurrently with operations that start new work.
func (s *Session) Wait() {
	s.wg.Wait()
}

// View returns the current merged view.
func (s *Session) View() reconcile.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.view(s.merger)
}

func (s *Session) usable() error {
	switch {
	case s.st.closed:
		return ErrClosed
	case s.st.expired:
		return backend.ErrSessionExpired
	}
	return nil
}

// Load shows the cached snapshot and starts a background scan. The scan is
// started whatever the cache returned; Scan joins it if called meanwhile.
func (s *Session) Load(ctx context.Context) (reconcile.View, error) {
	if _, err := s.LoadCached(ctx); err != nil {
		if errors.Is(err, ErrClosed) || errors.Is(err, backend.ErrSessionExpired) {
			return s.View(), err
		}
		s.logger.Warn("cache load failed", logging.Err(err))
	}
	if _, err := s.startScan(); err != nil {
		return s.View(), err
	}
	return s.View(), nil
}

// LoadCached fetches the cached snapshot and applies it.
func (s *Session) LoadCached(ctx context.Context) (CacheResult, error) {
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	var seq uint64
	s.st, seq = s.st.next()
	s.mu.Unlock()

	start := time.Now()
	snap, err := s.mailbox.GetCachedSnapshot(ctx)
	s.recordScan(ctx, mailbox.SourceCache, snap, err, time.Since(start))
	if err != nil {
		s.handleBackendError(err)
	}

	s.mu.Lock()
	s.st = s.st.onCacheLoaded(seq, snap, err)
	s.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("failed to load cached snapshot: %w", err)
	}
	s.checkDigest()

	switch {
	case snap.Status == mailbox.SnapshotProcessing:
		return CacheProcessing, nil
	case !snap.Cached:
		return CacheEmpty, nil
	default:
		return CacheSnapshot, nil
	}
}

// Refresh re-reads the cache. When the backend has no cache yet it runs a
// scan and waits for it; when the backend is still processing it does
// nothing more.
func (s *Session) Refresh(ctx context.Context) (reconcile.View, error) {
	res, err := s.LoadCached(ctx)
	if err != nil {
		return s.View(), err
	}
	if res == CacheEmpty {
		return s.Scan(ctx)
	}
	return s.View(), nil
}

// Scan requests an authoritative re-scan and waits for it. Concurrent
// callers share one scan. If ctx ends first the scan keeps running and its
// result is applied when it arrives.
func (s *Session) Scan(ctx context.Context) (reconcile.View, error) {
	ch, err := s.startScan()
	if err != nil {
		return s.View(), err
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return s.View(), res.Err
		}
		return s.View(), nil
	case <-ctx.Done():
		return s.View(), ctx.Err()
	}
}

func (s *Session) startScan() (<-chan singleflight.Result, error) {
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.wg.Add(1)
	s.mu.Unlock()

	inner := s.scans.DoChan("scan", s.runScan)
	out := make(chan singleflight.Result, 1)
	go func() {
		defer s.wg.Done()
		out <- <-inner
	}()
	return out, nil
}

func (s *Session) runScan() (any, error) {
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	var seq uint64
	s.st, seq = s.st.next()
	s.st = s.st.onScanStarted()
	s.mu.Unlock()

	logger := logging.WithOperation(s.logger, "scan").With(logging.Generation(seq))
	logger.Debug("scan started")

	start := time.Now()
	snap, err := s.mailbox.ScanSnapshot(s.ctx)
	s.recordScan(s.ctx, mailbox.SourceScan, snap, err, time.Since(start))

	s.mu.Lock()
	var applied bool
	s.st, applied = s.st.onScanResolved(seq, snap, err)
	closed := s.st.closed
	s.mu.Unlock()

	switch {
	case closed:
		logger.Debug("scan result discarded, session closed")
		return nil, ErrClosed
	case err != nil:
		logger.Warn("scan failed", logging.Err(err))
		if !s.handleBackendError(err) {
			s.notify(Notification{
				Kind:       KindScanFailed,
				Message:    fmt.Sprintf("Scan failed: %v", err),
				Retryable:  backend.IsRetryable(err),
				RetryAfter: retryAfter(err),
			})
		}
		return nil, fmt.Errorf("scan failed: %w", err)
	case applied:
		logger.Info("scan applied", slog.Int("messages", len(snap.Messages)))
		s.checkDigest()
	default:
		logger.Debug("scan result not applied", logging.Status(string(snap.Status)))
	}
	return snap, nil
}

func (s *Session) recordScan(ctx context.Context, source mailbox.SnapshotSource, snap mailbox.Snapshot, err error, d time.Duration) {
	status := instrumentation.StatusSuccess
	switch {
	case err != nil:
		status = instrumentation.StatusError
	case snap.Status == mailbox.SnapshotProcessing:
		status = instrumentation.StatusProcessing
	}
	s.metrics.RecordScan(ctx, string(source), status, d)
}

// handleBackendError marks the session expired on authentication failures.
// It reports whether err was such a failure.
func (s *Session) handleBackendError(err error) bool {
	if !errors.Is(err, backend.ErrSessionExpired) {
		return false
	}

	s.mu.Lock()
	already := s.st.expired || s.st.closed
	s.st = s.st.onExpired()
	s.mu.Unlock()
	if already {
		return true
	}

	s.logger.Warn("backend session expired")
	s.notify(Notification{
		Kind:    KindSessionExpired,
		Message: "Your mailbox session has expired. Please sign in again.",
	})
	s.cancel()
	return true
}

func (s *Session) notify(n Notification) {
	n.Account = s.cfg.Account
	if n.Time.IsZero() {
		n.Time = s.clock.Now()
	}
	s.metrics.RecordNotification(s.ctx, string(n.Kind))
	for _, nt := range s.cfg.Notifiers {
		nt.Notify(s.ctx, n)
	}
}

// Labels lists the user labels of the mailbox.
func (s *Session) Labels(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	err := s.usable()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	labels, err := s.mailbox.ListLabels(ctx)
	if err != nil {
		s.handleBackendError(err)
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return labels, nil
}

func retryAfter(err error) time.Duration {
	d, _ := backend.RetryAfter(err)
	return d
}
