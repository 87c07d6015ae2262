package classifier

import (
	"strings"

	"github.com/teemow/inboxdigest/internal/mailbox"
)

// Classifier matches messages against a Policy.
type Classifier struct {
	paid        []string
	free        []string
	promotional []string
}

// New returns a Classifier for p. Keywords are normalized to lower case.
func New(p Policy) *Classifier {
	return &Classifier{
		paid:        normalize(p.Paid),
		free:        normalize(p.Free),
		promotional: normalize(p.Promotional),
	}
}

var defaultClassifier = New(DefaultPolicy())

// Default returns the Classifier for DefaultPolicy.
func Default() *Classifier { return defaultClassifier }

// Classify returns the category for subject and body using the default policy.
func Classify(subject, body string) mailbox.Category {
	return defaultClassifier.Classify(subject, body)
}

// Classify returns the category of the first keyword set, in priority order,
// that matches subject or body. A nil Classifier uses the default policy.
func (c *Classifier) Classify(subject, body string) mailbox.Category {
	if c == nil {
		c = defaultClassifier
	}

	text := strings.ToLower(subject + " " + body)
	if strings.TrimSpace(text) == "" {
		return mailbox.CategoryUnknown
	}

	switch {
	case containsAny(text, c.paid):
		return mailbox.CategoryPaid
	case containsAny(text, c.free):
		return mailbox.CategoryFree
	case containsAny(text, c.promotional):
		return mailbox.CategoryPromotional
	}
	return mailbox.CategoryUnknown
}

// ClassifyMessage classifies m by its subject and body (or snippet).
func (c *Classifier) ClassifyMessage(m mailbox.RawMessage) mailbox.Category {
	return c.Classify(m.Subject, m.Text())
}

// IsSubscription reports whether m is a subscription message. Only messages
// carrying a List-Unsubscribe value qualify.
func IsSubscription(m mailbox.RawMessage) bool {
	return strings.TrimSpace(m.ListUnsubscribe) != ""
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
