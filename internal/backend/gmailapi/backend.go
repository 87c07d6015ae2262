package gmailapi

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/classifier"
	"github.com/teemow/inboxdigest/internal/gmail"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/mailbox"
)

const (
	// DefaultQuery selects the messages a scan covers.
	DefaultQuery = "in:inbox"
	// DefaultMaxMessages caps a single scan.
	DefaultMaxMessages = 500
)

// Gmail is the subset of *gmail.Client the backend uses.
type Gmail interface {
	ListMessages(ctx context.Context, q string, max int64) ([]*gmailv1.Message, error)
	ModifyMessage(ctx context.Context, id string, add, remove []string) error
	TrashMessage(ctx context.Context, id string) error
	ListLabels(ctx context.Context) ([]*gmailv1.Label, error)
	LabelID(ctx context.Context, name string) (string, bool, error)
	EnsureLabel(ctx context.Context, name string) (string, error)
	UnsubscribeViaHTTP(ctx context.Context, url string) error
}

var _ Gmail = (*gmail.Client)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithQuery overrides the scan query.
func WithQuery(q string) Option {
	return func(b *Backend) { b.query = q }
}

// WithMaxMessages overrides the per-scan message cap.
func WithMaxMessages(n int64) Option {
	return func(b *Backend) { b.maxMessages = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithMetrics records backend operations.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(b *Backend) { b.metrics = m }
}

// Backend serves backend.Mailbox from Gmail and a local snapshot cache.
type Backend struct {
	gmail       Gmail
	store       *Store
	query       string
	maxMessages int64
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	now         func() time.Time

	mu       sync.Mutex
	scanning int
}

var _ backend.Mailbox = (*Backend)(nil)

// New creates a backend. The store is owned by the caller.
func New(g Gmail, store *Store, opts ...Option) *Backend {
	b := &Backend{
		gmail:       g,
		store:       store,
		query:       DefaultQuery,
		maxMessages: DefaultMaxMessages,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.WithBackend(b.logger, instrumentation.BackendGmail)
	return b
}

func (b *Backend) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartBackendSpan(ctx, instrumentation.BackendGmail, op)
	start := time.Now()
	err := mapError(op, fn(ctx))

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	b.metrics.RecordBackendOperation(ctx, instrumentation.BackendGmail, op, status, time.Since(start))
	instrumentation.EndSpan(span, err)
	return err
}

// GetCachedSnapshot implements backend.Mailbox. While a scan is running the
// snapshot reports processing.
func (b *Backend) GetCachedSnapshot(ctx context.Context) (mailbox.Snapshot, error) {
	b.mu.Lock()
	scanning := b.scanning > 0
	b.mu.Unlock()
	if scanning {
		return mailbox.Snapshot{Status: mailbox.SnapshotProcessing, Source: mailbox.SourceCache, FetchedAt: b.now()}, nil
	}

	var snap mailbox.Snapshot
	err := b.observe(ctx, "cached", func(ctx context.Context) error {
		scannedAt, err := b.store.LastScanAt(ctx)
		if err != nil {
			return err
		}
		snap = mailbox.Snapshot{Status: mailbox.SnapshotDone, Source: mailbox.SourceCache, FetchedAt: b.now()}
		if scannedAt.IsZero() {
			return nil
		}
		snap.Cached = true
		snap.FetchedAt = scannedAt
		if snap.Messages, err = b.store.LoadMessages(ctx); err != nil {
			return err
		}
		snap.Subscriptions, err = b.store.LoadSubscriptionStatuses(ctx)
		return err
	})
	return snap, err
}

// ScanSnapshot implements backend.Mailbox.
func (b *Backend) ScanSnapshot(ctx context.Context) (mailbox.Snapshot, error) {
	b.mu.Lock()
	b.scanning++
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.scanning--
		b.mu.Unlock()
	}()

	var snap mailbox.Snapshot
	err := b.observe(ctx, "scan", func(ctx context.Context) error {
		names, err := b.labelNamesByID(ctx)
		if err != nil {
			return err
		}
		listed, err := b.gmail.ListMessages(ctx, b.query, b.maxMessages)
		if err != nil {
			return err
		}

		msgs := make([]mailbox.RawMessage, 0, len(listed))
		for _, gm := range listed {
			m, err := toRawMessage(gm, names)
			if err != nil {
				b.logger.Debug("dropping message", logging.Err(err))
				continue
			}
			msgs = append(msgs, m)
		}

		now := b.now()
		if err := b.store.ReplaceMessages(ctx, msgs, now); err != nil {
			return err
		}
		subs, err := b.store.LoadSubscriptionStatuses(ctx)
		if err != nil {
			return err
		}

		snap = mailbox.Snapshot{
			Status:        mailbox.SnapshotDone,
			Cached:        true,
			Messages:      msgs,
			Subscriptions: subs,
			FetchedAt:     now,
			Source:        mailbox.SourceScan,
		}
		b.logger.Info("scan completed", slog.Int("messages", len(msgs)), slog.Int("dropped", len(listed)-len(msgs)))
		return nil
	})
	return snap, err
}

// labelNamesByID maps label IDs to names so cached messages carry the same
// label names that Archive and Unarchive write.
func (b *Backend) labelNamesByID(ctx context.Context) (map[string]string, error) {
	labels, err := b.gmail.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(labels))
	for _, l := range labels {
		names[l.Id] = l.Name
	}
	return names, nil
}

// Archive implements backend.Mailbox: the message leaves the inbox and, when
// label is set, gets that user label (created on demand).
func (b *Backend) Archive(ctx context.Context, messageID, label string) error {
	return b.observe(ctx, "archive", func(ctx context.Context) error {
		add, addNames := []string(nil), []string(nil)
		if label != "" {
			id, err := b.gmail.EnsureLabel(ctx, label)
			if err != nil {
				return err
			}
			add, addNames = []string{id}, []string{label}
		}
		if err := b.gmail.ModifyMessage(ctx, messageID, add, []string{mailbox.LabelInbox}); err != nil {
			return err
		}
		return b.store.ModifyLabels(ctx, messageID, addNames, []string{mailbox.LabelInbox})
	})
}

// Unarchive implements backend.Mailbox.
func (b *Backend) Unarchive(ctx context.Context, messageID, label string) error {
	return b.observe(ctx, "unarchive", func(ctx context.Context) error {
		var remove, removeNames []string
		if label != "" {
			id, ok, err := b.gmail.LabelID(ctx, label)
			if err != nil {
				return err
			}
			if ok {
				remove, removeNames = []string{id}, []string{label}
			}
		}
		if err := b.gmail.ModifyMessage(ctx, messageID, []string{mailbox.LabelInbox}, remove); err != nil {
			return err
		}
		return b.store.ModifyLabels(ctx, messageID, []string{mailbox.LabelInbox}, removeNames)
	})
}

// Star implements backend.Mailbox.
func (b *Backend) Star(ctx context.Context, messageID string) error {
	return b.observe(ctx, "star", func(ctx context.Context) error {
		if err := b.gmail.ModifyMessage(ctx, messageID, []string{mailbox.LabelStarred}, nil); err != nil {
			return err
		}
		return b.store.ModifyLabels(ctx, messageID, []string{mailbox.LabelStarred}, nil)
	})
}

// Unstar implements backend.Mailbox.
func (b *Backend) Unstar(ctx context.Context, messageID string) error {
	return b.observe(ctx, "unstar", func(ctx context.Context) error {
		if err := b.gmail.ModifyMessage(ctx, messageID, nil, []string{mailbox.LabelStarred}); err != nil {
			return err
		}
		return b.store.ModifyLabels(ctx, messageID, nil, []string{mailbox.LabelStarred})
	})
}

// Delete implements backend.Mailbox by moving the message to the trash.
func (b *Backend) Delete(ctx context.Context, messageID string) error {
	return b.observe(ctx, "delete", func(ctx context.Context) error {
		if err := b.gmail.TrashMessage(ctx, messageID); err != nil {
			return err
		}
		return b.store.DeleteMessages(ctx, []string{messageID})
	})
}

// MarkUnsubscribed implements backend.Mailbox. An HTTP List-Unsubscribe link
// on the referenced (or newest cached) message is followed; mailto-only
// senders are just marked locally.
func (b *Backend) MarkUnsubscribed(ctx context.Context, address, messageID string, lastSeen time.Time) error {
	return b.observe(ctx, "unsubscribe", func(ctx context.Context) error {
		msg, ok, err := b.unsubscribeSource(ctx, address, messageID)
		if err != nil {
			return err
		}
		if ok {
			if url, found := classifier.HTTPUnsubscribeURL(msg.ListUnsubscribe); found {
				if err := b.gmail.UnsubscribeViaHTTP(ctx, url); err != nil {
					return err
				}
			} else {
				b.logger.Info("no HTTP unsubscribe link, marking locally", logging.Sender(address), logging.Domain(address))
			}
		}
		return b.store.SetSubscriptionStatus(ctx, address, mailbox.StatusUnsubscribed, lastSeen)
	})
}

func (b *Backend) unsubscribeSource(ctx context.Context, address, messageID string) (mailbox.RawMessage, bool, error) {
	if messageID != "" {
		m, ok, err := b.store.GetMessage(ctx, messageID)
		if err != nil || ok {
			return m, ok, err
		}
	}
	return b.store.LatestMessageFrom(ctx, address)
}

// MarkSubscribed implements backend.Mailbox.
func (b *Backend) MarkSubscribed(ctx context.Context, address string, lastSeen time.Time) error {
	return b.observe(ctx, "resubscribe", func(ctx context.Context) error {
		return b.store.SetSubscriptionStatus(ctx, address, mailbox.StatusActive, lastSeen)
	})
}

// ListLabels implements backend.Mailbox, returning user label names.
func (b *Backend) ListLabels(ctx context.Context) ([]string, error) {
	var names []string
	err := b.observe(ctx, "labels", func(ctx context.Context) error {
		labels, err := b.gmail.ListLabels(ctx)
		if err != nil {
			return err
		}
		for _, l := range labels {
			if l.Type == "user" {
				names = append(names, l.Name)
			}
		}
		sort.Strings(names)
		return nil
	})
	return names, err
}
