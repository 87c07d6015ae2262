package mailbox

import (
	"slices"
	"time"
)

// Well-known labels.
const (
	LabelInbox   = "INBOX"
	LabelStarred = "STARRED"
	LabelUnread  = "UNREAD"
)

// Category is the subscription category assigned by the classifier.
type Category string

const (
	CategoryFree        Category = "Free"
	CategoryPaid        Category = "Paid"
	CategoryPromotional Category = "Promotional"
	CategoryUnknown     Category = "Unknown"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryPaid, CategoryFree, CategoryPromotional, CategoryUnknown}

// ParseCategory maps a case-sensitive category name to a Category.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// SubscriptionStatus tracks the unsubscribe lifecycle of a sender.
type SubscriptionStatus string

const (
	StatusActive       SubscriptionStatus = "active"
	StatusUnsubscribed SubscriptionStatus = "unsubscribed"
	StatusProcessing   SubscriptionStatus = "processing"
)

// Valid reports whether s is a known status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusUnsubscribed, StatusProcessing:
		return true
	}
	return false
}

// Attachment describes a file attached to a message.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// RawMessage is a single message as reported by a mailbox backend.
type RawMessage struct {
	ID              string       `json:"id"`
	SenderName      string       `json:"senderName,omitempty"`
	SenderAddress   string       `json:"senderAddress"`
	Subject         string       `json:"subject"`
	Snippet         string       `json:"snippet,omitempty"`
	Body            string       `json:"body,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
	Labels          []string     `json:"labels,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	ListUnsubscribe string       `json:"listUnsubscribe,omitempty"`
}

// HasLabel reports whether the message carries label.
func (m RawMessage) HasLabel(label string) bool {
	return slices.Contains(m.Labels, label)
}

// Archived reports whether the message has left the inbox.
func (m RawMessage) Archived() bool { return !m.HasLabel(LabelInbox) }

// Starred reports whether the message is starred.
func (m RawMessage) Starred() bool { return m.HasLabel(LabelStarred) }

// Read reports whether the message has been read.
func (m RawMessage) Read() bool { return !m.HasLabel(LabelUnread) }

// Text returns the content used for classification: the body, or the
// snippet when no body was fetched.
func (m RawMessage) Text() string {
	if m.Body != "" {
		return m.Body
	}
	return m.Snippet
}

// Clone returns a copy of m whose slices can be modified independently.
func (m RawMessage) Clone() RawMessage {
	m.Labels = slices.Clone(m.Labels)
	m.Attachments = slices.Clone(m.Attachments)
	return m
}

// Subscription is the canonical, deduplicated view of one sender.
type Subscription struct {
	Address         string             `json:"address"`
	Name            string             `json:"name"`
	Category        Category           `json:"category"`
	LastSeen        time.Time          `json:"lastSeen"`
	Archived        bool               `json:"archived"`
	Status          SubscriptionStatus `json:"status"`
	LatestMessageID string             `json:"latestMessageId,omitempty"`
	MessageCount    int                `json:"messageCount"`
}

// SnapshotStatus reports whether a backend has a completed result.
type SnapshotStatus string

const (
	SnapshotDone       SnapshotStatus = "done"
	SnapshotProcessing SnapshotStatus = "processing"
)

// SnapshotSource records where a snapshot came from.
type SnapshotSource string

const (
	SourceCache SnapshotSource = "cache"
	SourceScan  SnapshotSource = "scan"
)

// Snapshot is one complete answer from a mailbox backend.
//
// Subscriptions is optional; when present it carries server-side state such as
// the unsubscribe status that cannot be derived from messages.
type Snapshot struct {
	Status        SnapshotStatus `json:"status"`
	Cached        bool           `json:"cached"`
	Messages      []RawMessage   `json:"messages"`
	Subscriptions []Subscription `json:"subscriptions,omitempty"`
	FetchedAt     time.Time      `json:"fetchedAt"`
	Source        SnapshotSource `json:"source"`
}

// Ready reports whether the snapshot carries usable data.
func (s Snapshot) Ready() bool {
	return s.Status == SnapshotDone && (s.Cached || s.Source == SourceScan)
}
