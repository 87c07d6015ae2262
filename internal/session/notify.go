package session

import (
	"context"
	"time"

	"github.com/teemow/inboxdigest/internal/overrides"
)

// NotificationKind classifies a Notification.
type NotificationKind string

const (
	KindMutationFailed    NotificationKind = "mutation_failed"
	KindScanFailed        NotificationKind = "scan_failed"
	KindSessionExpired    NotificationKind = "session_expired"
	KindDigestUpdated     NotificationKind = "digest_updated"
	KindDigestRateLimited NotificationKind = "digest_rate_limited"
	KindDigestFailed      NotificationKind = "digest_failed"
)

// Notification tells the user about something that happened in the
// background.
type Notification struct {
	Kind       NotificationKind        `json:"kind"`
	Account    string                  `json:"account"`
	EntityID   string                  `json:"entityId,omitempty"`
	Action     string                  `json:"action,omitempty"`
	OverrideID string                  `json:"overrideId,omitempty"`
	Message    string                  `json:"message"`
	Retryable  bool                    `json:"retryable"`
	RetryAfter time.Duration           `json:"retryAfter,omitempty"`
	Previous   map[overrides.Field]any `json:"previous,omitempty"`
	Time       time.Time               `json:"time"`
}

// Notifier receives notifications. Implementations must not block for long;
// they are called from the goroutine that observed the event.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }
