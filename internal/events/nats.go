package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/session"
)

// Stream settings used by EnsureStream.
const (
	StreamName    = "INBOXDIGEST_NOTIFICATIONS"
	SubjectPrefix = "inboxdigest"
)

// jetStream is the subset of nats.JetStreamContext used by Publisher.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Publisher forwards notifications to NATS JetStream.
type Publisher struct {
	nc     *nats.Conn
	js     jetStream
	logger *slog.Logger
}

// NewPublisher connects to the NATS server at url.
func NewPublisher(url string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("inboxdigest"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return newPublisher(nc, js, logger), nil
}

func newPublisher(nc *nats.Conn, js jetStream, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{nc: nc, js: js, logger: logging.WithService(logger, "events")}
}

// EnsureStream creates the notification stream if it does not exist.
func (p *Publisher) EnsureStream() error {
	if info, err := p.js.StreamInfo(StreamName); err == nil && info != nil {
		return nil
	}

	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     7 * 24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Subject returns the subject a notification is published on.
func Subject(n session.Notification) string {
	account := n.Account
	if account == "" {
		account = session.DefaultAccount
	}
	// Subject tokens must not contain separators or wildcards.
	account = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(account)
	return SubjectPrefix + "." + account + "." + string(n.Kind)
}

// Notify implements session.Notifier. Publish failures are logged, not
// returned.
func (p *Publisher) Notify(ctx context.Context, n session.Notification) {
	if err := p.Publish(n); err != nil {
		p.logger.WarnContext(ctx, "failed to publish notification",
			slog.String("kind", string(n.Kind)), logging.Err(err))
	}
}

// Publish sends one notification with a fresh message ID for JetStream
// deduplication.
func (p *Publisher) Publish(n session.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if _, err := p.js.Publish(Subject(n), payload, nats.MsgId(uuid.NewString())); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
