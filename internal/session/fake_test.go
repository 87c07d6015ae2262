package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/clock"
	"github.com/teemow/inboxdigest/internal/mailbox"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func msg(id, addr string, ts time.Time, labels ...string) mailbox.RawMessage {
	return mailbox.RawMessage{
		ID:              id,
		SenderName:      addr,
		SenderAddress:   addr,
		Subject:         "Weekly newsletter " + id,
		Timestamp:       ts,
		Labels:          labels,
		ListUnsubscribe: "<https://example.com/unsub>",
	}
}

func snapshot(source mailbox.SnapshotSource, msgs ...mailbox.RawMessage) mailbox.Snapshot {
	return mailbox.Snapshot{
		Status:    mailbox.SnapshotDone,
		Cached:    true,
		Messages:  msgs,
		Source:    source,
		FetchedAt: t0,
	}
}

type call struct {
	action string
	args   []any
}

// fakeBackend implements backend.Mailbox and backend.Summarizer.
type fakeBackend struct {
	mu sync.Mutex

	cached    mailbox.Snapshot
	cachedErr error
	scan      mailbox.Snapshot
	scanErr   error
	scanGate  chan struct{}
	scanCalls int

	errs  map[string]error
	gates map[string]chan struct{}
	calls []call

	digest   string
	genErr   error
	genCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		errs:  make(map[string]error),
		gates: make(map[string]chan struct{}),
	}
}

func (f *fakeBackend) GetCachedSnapshot(ctx context.Context) (mailbox.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cached, f.cachedErr
}

func (f *fakeBackend) ScanSnapshot(ctx context.Context) (mailbox.Snapshot, error) {
	f.mu.Lock()
	f.scanCalls++
	gate := f.scanGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return mailbox.Snapshot{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scan, f.scanErr
}

func (f *fakeBackend) setScan(snap mailbox.Snapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scan, f.scanErr = snap, err
}

func (f *fakeBackend) scanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanCalls
}

func (f *fakeBackend) record(ctx context.Context, action string, args ...any) error {
	f.mu.Lock()
	gate := f.gates[action]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{action: action, args: args})
	if err := f.errs[action]; err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

func (f *fakeBackend) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeBackend) Archive(ctx context.Context, id, label string) error {
	return f.record(ctx, "archive", id, label)
}

func (f *fakeBackend) Unarchive(ctx context.Context, id, label string) error {
	return f.record(ctx, "unarchive", id, label)
}

func (f *fakeBackend) Star(ctx context.Context, id string) error { return f.record(ctx, "star", id) }

func (f *fakeBackend) Unstar(ctx context.Context, id string) error {
	return f.record(ctx, "unstar", id)
}

func (f *fakeBackend) Delete(ctx context.Context, id string) error {
	return f.record(ctx, "delete", id)
}

func (f *fakeBackend) MarkUnsubscribed(ctx context.Context, address, messageID string, lastSeen time.Time) error {
	return f.record(ctx, "unsubscribe", address, messageID, lastSeen)
}

func (f *fakeBackend) MarkSubscribed(ctx context.Context, address string, lastSeen time.Time) error {
	return f.record(ctx, "resubscribe", address, lastSeen)
}

func (f *fakeBackend) ListLabels(ctx context.Context) ([]string, error) {
	return []string{"Later", "Receipts"}, nil
}

func (f *fakeBackend) GetDigest(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.digest, nil
}

func (f *fakeBackend) GenerateDigest(ctx context.Context, recent []mailbox.RawMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genCalls++
	if f.genErr != nil {
		return "", f.genErr
	}
	f.digest = fmt.Sprintf("digest of %d messages", len(recent))
	return f.digest, nil
}

func (f *fakeBackend) generated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.genCalls
}

type recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *recorder) Notify(ctx context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recorder) kinds() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []NotificationKind
	for _, n := range r.items {
		out = append(out, n.Kind)
	}
	return out
}

func (r *recorder) last(kind NotificationKind) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].Kind == kind {
			return r.items[i], true
		}
	}
	return Notification{}, false
}

type harness struct {
	s     *Session
	fb    *fakeBackend
	clock *clock.Fake
	notes *recorder
}

func newHarness(t *testing.T, configure ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		fb:    newFakeBackend(),
		clock: clock.NewFake(t0),
		notes: &recorder{},
	}

	cfg := DefaultConfig()
	cfg.Account = "test"
	cfg.Mailbox = h.fb
	cfg.Summarizer = h.fb
	cfg.AutoDigest = false
	cfg.Clock = h.clock
	cfg.Notifiers = []Notifier{h.notes}
	for _, c := range configure {
		c(&cfg)
	}

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	h.s = s
	return h
}
