package gmailapi

import (
	"fmt"
	"net/mail"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxdigest/internal/gmail"
	"github.com/teemow/inboxdigest/internal/identity"
	"github.com/teemow/inboxdigest/internal/mailbox"
)

// toRawMessage converts a metadata-format Gmail message. The internal date
// is preferred over the Date header, which senders control. Label IDs are
// replaced by their names; IDs missing from names are kept.
func toRawMessage(msg *gmailv1.Message, names map[string]string) (mailbox.RawMessage, error) {
	if msg == nil || msg.Id == "" {
		return mailbox.RawMessage{}, fmt.Errorf("message without id")
	}

	name, addr := identity.ParseFrom(gmail.HeaderValue(msg, "From"))
	if addr == "" {
		return mailbox.RawMessage{}, fmt.Errorf("message %s: no sender address", msg.Id)
	}

	var ts time.Time
	switch {
	case msg.InternalDate > 0:
		ts = time.UnixMilli(msg.InternalDate).UTC()
	default:
		d, err := mail.ParseDate(gmail.HeaderValue(msg, "Date"))
		if err != nil {
			return mailbox.RawMessage{}, fmt.Errorf("message %s: %w", msg.Id, err)
		}
		ts = d.UTC()
	}

	return mailbox.RawMessage{
		ID:              msg.Id,
		SenderName:      name,
		SenderAddress:   addr,
		Subject:         gmail.HeaderValue(msg, "Subject"),
		Snippet:         msg.Snippet,
		Timestamp:       ts,
		Labels:          labelNames(msg.LabelIds, names),
		ListUnsubscribe: gmail.HeaderValue(msg, "List-Unsubscribe"),
	}, nil
}

func labelNames(ids []string, names map[string]string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := names[id]; ok && name != "" {
			out = append(out, name)
			continue
		}
		out = append(out, id)
	}
	return out
}
