// Package identity resolves raw messages into the canonical set of
// subscriptions, one per normalized sender address.
package identity

import (
	"net/mail"
	"sort"
	"strings"

	"github.com/teemow/inboxdigest/internal/classifier"
	"github.com/teemow/inboxdigest/internal/mailbox"
)

// NormalizeAddress returns the canonical key for a sender address. Both bare
// addresses and RFC 5322 forms such as "News <News@Example.com>" are accepted.
// It returns "" when no address can be extracted.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}

	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	} else if strings.ContainsAny(addr, "<>\" ") {
		return ""
	}

	addr = strings.ToLower(strings.TrimSpace(addr))
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return ""
	}
	return addr
}

// ParseFrom splits a From header into display name and normalized address.
func ParseFrom(header string) (name, address string) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(header))
	if err != nil {
		return "", NormalizeAddress(header)
	}
	return parsed.Name, NormalizeAddress(parsed.Address)
}

// Resolver groups subscription messages by sender.
type Resolver struct {
	Classifier *classifier.Classifier
}

// Resolve uses the default classifier policy.
func Resolve(messages []mailbox.RawMessage) []mailbox.Subscription {
	return Resolver{}.Resolve(messages)
}

// Resolve returns exactly one Subscription per normalized sender address,
// sorted by address. For each sender the most recent message supplies the
// display name, timestamp, archived flag and category; timestamp ties break on
// the lexicographically smaller message ID. Messages without a
// List-Unsubscribe value or without a usable address are ignored.
func (r Resolver) Resolve(messages []mailbox.RawMessage) []mailbox.Subscription {
	type group struct {
		latest mailbox.RawMessage
		count  int
	}
	groups := make(map[string]*group)

	for _, m := range messages {
		if !classifier.IsSubscription(m) {
			continue
		}
		addr := NormalizeAddress(m.SenderAddress)
		if addr == "" {
			continue
		}

		g, ok := groups[addr]
		if !ok {
			groups[addr] = &group{latest: m, count: 1}
			continue
		}
		g.count++
		if newer(m, g.latest) {
			g.latest = m
		}
	}

	subs := make([]mailbox.Subscription, 0, len(groups))
	for addr, g := range groups {
		name := strings.TrimSpace(g.latest.SenderName)
		if name == "" {
			name = addr
		}
		subs = append(subs, mailbox.Subscription{
			Address:         addr,
			Name:            name,
			Category:        r.Classifier.ClassifyMessage(g.latest),
			LastSeen:        g.latest.Timestamp,
			Archived:        g.latest.Archived(),
			Status:          mailbox.StatusActive,
			LatestMessageID: g.latest.ID,
			MessageCount:    g.count,
		})
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i].Address < subs[j].Address })
	return subs
}

func newer(a, b mailbox.RawMessage) bool {
	if a.Timestamp.Equal(b.Timestamp) {
		return a.ID < b.ID
	}
	return a.Timestamp.After(b.Timestamp)
}
