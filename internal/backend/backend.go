package backend

import (
	"context"
	"time"

	"github.com/teemow/inboxdigest/internal/mailbox"
)

// Mailbox is the mailbox provider consumed by a session.
type Mailbox interface {
	// GetCachedSnapshot returns the last completed scan without scanning.
	// A snapshot with Cached=false means no cache exists yet; Status
	// processing means a scan is already running on the server.
	GetCachedSnapshot(ctx context.Context) (mailbox.Snapshot, error)
	// ScanSnapshot performs an authoritative scan and blocks until it completes.
	ScanSnapshot(ctx context.Context) (mailbox.Snapshot, error)

	Archive(ctx context.Context, messageID, label string) error
	Unarchive(ctx context.Context, messageID, label string) error
	Star(ctx context.Context, messageID string) error
	Unstar(ctx context.Context, messageID string) error
	Delete(ctx context.Context, messageID string) error

	MarkUnsubscribed(ctx context.Context, address, messageID string, lastSeen time.Time) error
	MarkSubscribed(ctx context.Context, address string, lastSeen time.Time) error

	ListLabels(ctx context.Context) ([]string, error)
}

// Summarizer produces the AI digest of recent mail.
type Summarizer interface {
	GetDigest(ctx context.Context) (string, error)
	GenerateDigest(ctx context.Context, recent []mailbox.RawMessage) (string, error)
}
