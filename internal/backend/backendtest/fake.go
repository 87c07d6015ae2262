// Package backendtest provides an in-memory backend for tests of packages
// built on top of session.
package backendtest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/teemow/inboxdigest/internal/mailbox"
)

// Call records one mutation received by a Fake.
type Call struct {
	Op string
	ID string
}

// Fake implements backend.Mailbox and backend.Summarizer over a fixed
// snapshot. Mutations are recorded and fail with Errs[op] when set.
type Fake struct {
	mu sync.Mutex

	Snapshot mailbox.Snapshot
	CacheErr error
	ScanErr  error
	Labels   []string
	Errs     map[string]error
	Digest   string

	calls []Call
}

// New returns a Fake whose cache and scan both return msgs.
func New(msgs ...mailbox.RawMessage) *Fake {
	return &Fake{
		Snapshot: mailbox.Snapshot{
			Status:   mailbox.SnapshotDone,
			Cached:   true,
			Messages: msgs,
		},
		Errs: make(map[string]error),
	}
}

// Calls returns the recorded mutations in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *Fake) record(op, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, ID: id})
	return f.Errs[op]
}

func (f *Fake) snapshot(source mailbox.SnapshotSource, err error) (mailbox.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		return mailbox.Snapshot{}, err
	}
	snap := f.Snapshot
	snap.Messages = slices.Clone(snap.Messages)
	snap.Source = source
	return snap, nil
}

// GetCachedSnapshot implements backend.Mailbox.
func (f *Fake) GetCachedSnapshot(ctx context.Context) (mailbox.Snapshot, error) {
	return f.snapshot(mailbox.SourceCache, f.CacheErr)
}

// ScanSnapshot implements backend.Mailbox.
func (f *Fake) ScanSnapshot(ctx context.Context) (mailbox.Snapshot, error) {
	return f.snapshot(mailbox.SourceScan, f.ScanErr)
}

// Archive implements backend.Mailbox.
func (f *Fake) Archive(ctx context.Context, id, label string) error { return f.record("archive", id) }

// Unarchive implements backend.Mailbox.
func (f *Fake) Unarchive(ctx context.Context, id, label string) error {
	return f.record("unarchive", id)
}

// Star implements backend.Mailbox.
func (f *Fake) Star(ctx context.Context, id string) error { return f.record("star", id) }

// Unstar implements backend.Mailbox.
func (f *Fake) Unstar(ctx context.Context, id string) error { return f.record("unstar", id) }

// Delete implements backend.Mailbox.
func (f *Fake) Delete(ctx context.Context, id string) error { return f.record("delete", id) }

// MarkUnsubscribed implements backend.Mailbox.
func (f *Fake) MarkUnsubscribed(ctx context.Context, address, messageID string, lastSeen time.Time) error {
	return f.record("unsubscribe", address)
}

// MarkSubscribed implements backend.Mailbox.
func (f *Fake) MarkSubscribed(ctx context.Context, address string, lastSeen time.Time) error {
	return f.record("resubscribe", address)
}

// ListLabels implements backend.Mailbox.
func (f *Fake) ListLabels(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.Labels), nil
}

// GetDigest implements backend.Summarizer.
func (f *Fake) GetDigest(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Digest, nil
}

// GenerateDigest implements backend.Summarizer.
func (f *Fake) GenerateDigest(ctx context.Context, recent []mailbox.RawMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Errs["digest"]; err != nil {
		return "", err
	}
	f.Digest = "digest"
	for _, m := range recent {
		f.Digest += " " + m.ID
	}
	return f.Digest, nil
}

// Message returns a subscription message in the inbox.
func Message(id, sender string, ts time.Time) mailbox.RawMessage {
	return mailbox.RawMessage{
		ID:              id,
		SenderName:      sender,
		SenderAddress:   sender,
		Subject:         "Newsletter " + id,
		Timestamp:       ts,
		Labels:          []string{mailbox.LabelInbox, mailbox.LabelUnread},
		ListUnsubscribe: "<https://example.com/unsubscribe>",
	}
}
