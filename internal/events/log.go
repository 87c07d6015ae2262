package events

import (
	"context"
	"log/slog"
	"strings"

	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/session"
)

// Log writes notifications to a logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a notifier logging through logger.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logging.WithService(logger, "events")}
}

// Notify implements session.Notifier.
func (l *Log) Notify(ctx context.Context, n session.Notification) {
	attrs := []slog.Attr{
		slog.String("kind", string(n.Kind)),
		logging.Account(n.Account),
		slog.Bool("retryable", n.Retryable),
	}
	if n.EntityID != "" {
		// Subscriptions are keyed by address.
		if strings.Contains(n.EntityID, "@") {
			attrs = append(attrs, logging.Sender(n.EntityID))
		} else {
			attrs = append(attrs, logging.Entity(n.EntityID))
		}
	}
	if n.Action != "" {
		attrs = append(attrs, logging.Operation(n.Action))
	}
	if n.OverrideID != "" {
		attrs = append(attrs, logging.Override(n.OverrideID))
	}
	if n.RetryAfter > 0 {
		attrs = append(attrs, slog.Duration("retry_after", n.RetryAfter))
	}

	l.logger.LogAttrs(ctx, levelFor(n.Kind), "notification", attrs...)
}

func levelFor(kind session.NotificationKind) slog.Level {
	switch kind {
	case session.KindDigestUpdated:
		return slog.LevelInfo
	case session.KindDigestRateLimited:
		return slog.LevelDebug
	default:
		return slog.LevelWarn
	}
}
