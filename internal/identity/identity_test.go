package identity

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/mailbox"
)

func msg(id, addr, name, subject string, ts time.Time) mailbox.RawMessage {
	return mailbox.RawMessage{
		ID:              id,
		SenderAddress:   addr,
		SenderName:      name,
		Subject:         subject,
		Timestamp:       ts,
		Labels:          []string{mailbox.LabelInbox},
		ListUnsubscribe: "<https://example.com/unsub>",
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "News@Example.com", want: "news@example.com"},
		{in: "  news@example.com ", want: "news@example.com"},
		{in: "Example News <News@Example.COM>", want: "news@example.com"},
		{in: "user+tag@example.com", want: "user+tag@example.com"},
		{in: "", want: ""},
		{in: "not an address", want: ""},
		{in: "@example.com", want: ""},
		{in: "user@", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAddress(tt.in))
		})
	}
}

func TestParseFrom(t *testing.T) {
	name, addr := ParseFrom(`"Acme Billing" <Billing@Acme.io>`)
	assert.Equal(t, "Acme Billing", name)
	assert.Equal(t, "billing@acme.io", addr)

	name, addr = ParseFrom("billing@acme.io")
	assert.Equal(t, "", name)
	assert.Equal(t, "billing@acme.io", addr)
}

func TestResolveDeduplicatesCaseInsensitively(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	messages := []mailbox.RawMessage{
		msg("1", "News@Example.com", "Old Name", "Welcome aboard", t0),
		msg("2", "news@example.com", "Example News", "Your invoice", t0.Add(time.Hour)),
	}

	subs := Resolve(messages)
	require.Len(t, subs, 1)

	s := subs[0]
	assert.Equal(t, "news@example.com", s.Address)
	assert.Equal(t, "Example News", s.Name)
	assert.Equal(t, t0.Add(time.Hour), s.LastSeen)
	assert.Equal(t, mailbox.CategoryPaid, s.Category)
	assert.Equal(t, "2", s.LatestMessageID)
	assert.Equal(t, 2, s.MessageCount)
	assert.Equal(t, mailbox.StatusActive, s.Status)
	assert.False(t, s.Archived)
}

func TestResolveIsOrderIndependent(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	messages := []mailbox.RawMessage{
		msg("a", "a@example.com", "A", "newsletter", t0),
		msg("b", "B@example.com", "B", "sale", t0),
		msg("c", "b@example.com", "B2", "invoice", t0),
		msg("d", "c@example.com", "C", "hello", t0.Add(time.Minute)),
		msg("e", "a@example.com", "A2", "hello", t0.Add(-time.Minute)),
	}

	want := Resolve(messages)

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]mailbox.RawMessage(nil), messages...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, Resolve(shuffled))
	}

	require.Len(t, want, 3)
	// Equal timestamps for b@example.com break on the smaller message ID.
	assert.Equal(t, "b", want[1].LatestMessageID)
	assert.Equal(t, mailbox.CategoryPromotional, want[1].Category)
}

func TestResolveSkipsNonSubscriptionAndMalformed(t *testing.T) {
	t0 := time.Now()
	plain := msg("1", "friend@example.com", "Friend", "hi", t0)
	plain.ListUnsubscribe = ""
	noAddr := msg("2", "", "Nobody", "invoice", t0)

	subs := Resolve([]mailbox.RawMessage{plain, noAddr})
	assert.Empty(t, subs)
}

func TestResolveNameFallsBackToAddress(t *testing.T) {
	subs := Resolve([]mailbox.RawMessage{msg("1", "x@example.com", "", "hi", time.Now())})
	require.Len(t, subs, 1)
	assert.Equal(t, "x@example.com", subs[0].Name)
}
