package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/teemow/inboxdigest/internal/identity"
	"github.com/teemow/inboxdigest/internal/mailbox"
)

type snapshotResponse struct {
	Status        string            `json:"status"`
	Cached        *bool             `json:"cached"`
	Emails        []json.RawMessage `json:"emails"`
	Subscriptions []json.RawMessage `json:"subscriptions"`
}

type subscriptionsResponse struct {
	Status        string            `json:"status"`
	Subscriptions []json.RawMessage `json:"subscriptions"`
}

type wireAttachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type wireMessage struct {
	ID              string           `json:"id"`
	From            string           `json:"from"`
	SenderName      string           `json:"senderName"`
	SenderEmail     string           `json:"senderEmail"`
	Subject         string           `json:"subject"`
	Snippet         string           `json:"snippet"`
	Body            string           `json:"body"`
	Date            string           `json:"date"`
	Timestamp       int64            `json:"timestamp"`
	Labels          []string         `json:"labelIds"`
	IsRead          *bool            `json:"isRead"`
	IsStarred       *bool            `json:"isStarred"`
	IsArchived      *bool            `json:"isArchived"`
	ListUnsubscribe string           `json:"listUnsubscribe"`
	Attachments     []wireAttachment `json:"attachments"`
}

type wireSubscription struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Category string `json:"category"`
	LastSeen string `json:"lastSeen"`
	Status   string `json:"status"`
	Archived bool   `json:"archived"`
}

type labelsResponse struct {
	Labels []json.RawMessage `json:"labels"`
}

type summaryResponse struct {
	Summary *string `json:"summary"`
}

type labelRequest struct {
	Label string `json:"label,omitempty"`
}

type unsubscribeRequest struct {
	Email     string `json:"email"`
	MessageID string `json:"messageId,omitempty"`
	LastSeen  string `json:"lastSeen,omitempty"`
}

type generateRequest struct {
	Emails []generateEmail `json:"emails"`
}

type generateEmail struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
}

var errMissingField = errors.New("missing required field")

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, time.RFC1123Z, time.RFC1123}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return mail.ParseDate(s)
}

// decodeMessage converts one wire entry. Entries without an ID, a sender
// address or a timestamp are rejected.
func decodeMessage(raw json.RawMessage) (mailbox.RawMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return mailbox.RawMessage{}, err
	}
	if strings.TrimSpace(w.ID) == "" {
		return mailbox.RawMessage{}, fmt.Errorf("%w: id", errMissingField)
	}

	name, addr := w.SenderName, identity.NormalizeAddress(w.SenderEmail)
	if addr == "" {
		var fromName string
		fromName, addr = identity.ParseFrom(w.From)
		if name == "" {
			name = fromName
		}
	}
	if addr == "" {
		return mailbox.RawMessage{}, fmt.Errorf("%w: sender address", errMissingField)
	}

	var ts time.Time
	switch {
	case w.Timestamp > 0:
		ts = time.UnixMilli(w.Timestamp).UTC()
	case w.Date != "":
		parsed, err := parseDate(w.Date)
		if err != nil {
			return mailbox.RawMessage{}, fmt.Errorf("invalid date %q: %w", w.Date, err)
		}
		ts = parsed
	default:
		return mailbox.RawMessage{}, fmt.Errorf("%w: date", errMissingField)
	}

	labels := w.Labels
	if labels == nil {
		labels = labelsFromFlags(w)
	}

	m := mailbox.RawMessage{
		ID:              w.ID,
		SenderName:      name,
		SenderAddress:   addr,
		Subject:         w.Subject,
		Snippet:         w.Snippet,
		Body:            w.Body,
		Timestamp:       ts,
		Labels:          labels,
		ListUnsubscribe: w.ListUnsubscribe,
	}
	for _, a := range w.Attachments {
		m.Attachments = append(m.Attachments, mailbox.Attachment(a))
	}
	return m, nil
}

func labelsFromFlags(w wireMessage) []string {
	var labels []string
	if w.IsArchived == nil || !*w.IsArchived {
		labels = append(labels, mailbox.LabelInbox)
	}
	if w.IsRead != nil && !*w.IsRead {
		labels = append(labels, mailbox.LabelUnread)
	}
	if w.IsStarred != nil && *w.IsStarred {
		labels = append(labels, mailbox.LabelStarred)
	}
	return labels
}

func decodeSubscription(raw json.RawMessage) (mailbox.Subscription, error) {
	var w wireSubscription
	if err := json.Unmarshal(raw, &w); err != nil {
		return mailbox.Subscription{}, err
	}

	addr := identity.NormalizeAddress(w.Email)
	if addr == "" {
		return mailbox.Subscription{}, fmt.Errorf("%w: email", errMissingField)
	}

	s := mailbox.Subscription{
		Address:  addr,
		Name:     w.Name,
		Category: mailbox.CategoryUnknown,
		Status:   mailbox.SubscriptionStatus(w.Status),
		Archived: w.Archived,
	}
	if c, ok := mailbox.ParseCategory(w.Category); ok {
		s.Category = c
	}
	if !s.Status.Valid() {
		s.Status = mailbox.StatusActive
	}
	if w.LastSeen != "" {
		if t, err := parseDate(w.LastSeen); err == nil {
			s.LastSeen = t
		}
	}
	return s, nil
}

// decodeLabel accepts either a bare label name or an object with a name.
func decodeLabel(raw json.RawMessage) (string, bool) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name, name != ""
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Name, obj.Name != ""
	}
	return "", false
}

func encodeForDigest(msgs []mailbox.RawMessage) generateRequest {
	req := generateRequest{Emails: make([]generateEmail, 0, len(msgs))}
	for _, m := range msgs {
		from := m.SenderAddress
		if m.SenderName != "" {
			from = (&mail.Address{Name: m.SenderName, Address: m.SenderAddress}).String()
		}
		req.Emails = append(req.Emails, generateEmail{
			ID:      m.ID,
			From:    from,
			Subject: m.Subject,
			Snippet: m.Snippet,
			Date:    m.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return req
}
