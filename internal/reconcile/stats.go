package reconcile

import "github.com/teemow/inboxdigest/internal/mailbox"

// Stats summarizes a view.
type Stats struct {
	Subscriptions int                      `json:"subscriptions"`
	ByCategory    map[mailbox.Category]int `json:"byCategory"`
	Active        int                      `json:"active"`
	Unsubscribed  int                      `json:"unsubscribed"`
	Processing    int                      `json:"processing"`

	Messages int `json:"messages"`
	Archived int `json:"archived"`
	Unread   int `json:"unread"`
	Starred  int `json:"starred"`
}

// ComputeStats counts subscriptions per category and status, and messages
// per flag.
func ComputeStats(messages []mailbox.RawMessage, subs []mailbox.Subscription) Stats {
	st := Stats{
		Subscriptions: len(subs),
		ByCategory:    make(map[mailbox.Category]int, len(mailbox.Categories)),
		Messages:      len(messages),
	}
	for _, c := range mailbox.Categories {
		st.ByCategory[c] = 0
	}

	for _, s := range subs {
		st.ByCategory[s.Category]++
		switch s.Status {
		case mailbox.StatusActive:
			st.Active++
		case mailbox.StatusUnsubscribed:
			st.Unsubscribed++
		case mailbox.StatusProcessing:
			st.Processing++
		}
	}

	for _, m := range messages {
		if m.Archived() {
			st.Archived++
		}
		if !m.Read() {
			st.Unread++
		}
		if m.Starred() {
			st.Starred++
		}
	}
	return st
}
