// Package reconcile merges a base snapshot with the active optimistic
// overrides into the view presented to the user.
//
// Merging is a pure function of its inputs: the view is recomputed from
// scratch on every change, so the order in which snapshots and overrides
// arrive never matters, only their content.
package reconcile

import (
	"sort"
	"time"

	"github.com/teemow/inboxdigest/internal/identity"
	"github.com/teemow/inboxdigest/internal/mailbox"
	"github.com/teemow/inboxdigest/internal/overrides"
)

// View is the merged, user-facing state of a mailbox.
type View struct {
	Messages      []mailbox.RawMessage   `json:"messages"`
	Subscriptions []mailbox.Subscription `json:"subscriptions"`
	Stats         Stats                  `json:"stats"`

	Source    mailbox.SnapshotSource `json:"source,omitempty"`
	FetchedAt time.Time              `json:"fetchedAt,omitempty"`

	// Processing is set while the backend reports a scan in progress and no
	// result can be shown yet. Scanning is set while this session waits on
	// its own background scan.
	Processing bool `json:"processing"`
	Scanning   bool `json:"scanning"`

	PendingOverrides int `json:"pendingOverrides"`

	// Err is set when neither the cache nor a scan produced data.
	Err error `json:"-"`
}

// Message returns the message with the given ID.
func (v View) Message(id string) (mailbox.RawMessage, bool) {
	for _, m := range v.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return mailbox.RawMessage{}, false
}

// Subscription returns the subscription for a normalized address.
func (v View) Subscription(address string) (mailbox.Subscription, bool) {
	for _, s := range v.Subscriptions {
		if s.Address == address {
			return s, true
		}
	}
	return mailbox.Subscription{}, false
}

// Merger merges snapshots and overrides using a subscription resolver.
type Merger struct {
	Resolver identity.Resolver
}

// Merge uses the default classifier policy.
func Merge(base mailbox.Snapshot, active []overrides.LocalOverride) View {
	return Merger{}.Merge(base, active)
}

// Merge applies active overrides on top of base. Overrides always win for the
// fields they touch; overrides for entities absent from base are ignored and
// deleted messages are omitted.
func (mg Merger) Merge(base mailbox.Snapshot, active []overrides.LocalOverride) View {
	ordered := make([]overrides.LocalOverride, len(active))
	copy(ordered, active)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	msgOverrides := make(map[string][]overrides.LocalOverride)
	subOverrides := make(map[string][]overrides.LocalOverride)
	for _, o := range ordered {
		switch o.Kind {
		case overrides.KindMessage:
			msgOverrides[o.EntityID] = append(msgOverrides[o.EntityID], o)
		case overrides.KindSubscription:
			subOverrides[o.EntityID] = append(subOverrides[o.EntityID], o)
		}
	}

	seen := make(map[string]bool, len(base.Messages))
	messages := make([]mailbox.RawMessage, 0, len(base.Messages))
	for _, m := range base.Messages {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true

		m = m.Clone()
		deleted := false
		for _, o := range msgOverrides[m.ID] {
			for f, v := range o.Changes {
				deleted = applyMessageField(&m, f, v) || deleted
			}
		}
		if !deleted {
			messages = append(messages, m)
		}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Timestamp.Equal(messages[j].Timestamp) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].Timestamp.After(messages[j].Timestamp)
	})

	subs := overlayServerSubscriptions(mg.Resolver.Resolve(messages), base.Subscriptions)
	for i := range subs {
		for _, o := range subOverrides[subs[i].Address] {
			for f, v := range o.Changes {
				applySubscriptionField(&subs[i], f, v)
			}
		}
	}

	view := View{
		Messages:      messages,
		Subscriptions: subs,
		Source:        base.Source,
		FetchedAt:     base.FetchedAt,
	}
	view.Stats = ComputeStats(view.Messages, view.Subscriptions)
	return view
}

// applyMessageField applies one change to m and reports whether it deletes m.
func applyMessageField(m *mailbox.RawMessage, f overrides.Field, v any) bool {
	on, ok := v.(bool)
	if !ok {
		return false
	}

	switch f {
	case overrides.FieldDeleted:
		return on
	case overrides.FieldArchived:
		setLabel(m, mailbox.LabelInbox, !on)
	case overrides.FieldStarred:
		setLabel(m, mailbox.LabelStarred, on)
	default:
		if label, isLabel := f.Label(); isLabel && label != "" {
			setLabel(m, label, on)
		}
	}
	return false
}

func applySubscriptionField(s *mailbox.Subscription, f overrides.Field, v any) {
	switch f {
	case overrides.FieldStatus:
		if st, ok := asStatus(v); ok {
			s.Status = st
		}
	case overrides.FieldArchived:
		if on, ok := v.(bool); ok {
			s.Archived = on
		}
	}
}

func asStatus(v any) (mailbox.SubscriptionStatus, bool) {
	var st mailbox.SubscriptionStatus
	switch x := v.(type) {
	case mailbox.SubscriptionStatus:
		st = x
	case string:
		st = mailbox.SubscriptionStatus(x)
	default:
		return "", false
	}
	return st, st.Valid()
}

func setLabel(m *mailbox.RawMessage, label string, present bool) {
	has := m.HasLabel(label)
	switch {
	case present && !has:
		m.Labels = append(m.Labels, label)
	case !present && has:
		kept := m.Labels[:0]
		for _, l := range m.Labels {
			if l != label {
				kept = append(kept, l)
			}
		}
		m.Labels = kept
	}
}

// overlayServerSubscriptions layers server-reported subscription state over
// the subscriptions resolved from messages. Server entries without messages
// are kept; the result stays unique per normalized address.
func overlayServerSubscriptions(resolved, server []mailbox.Subscription) []mailbox.Subscription {
	if len(server) == 0 {
		return resolved
	}

	index := make(map[string]int, len(resolved))
	for i, s := range resolved {
		index[s.Address] = i
	}

	for _, s := range server {
		addr := identity.NormalizeAddress(s.Address)
		if addr == "" {
			continue
		}
		if i, ok := index[addr]; ok {
			if s.Status.Valid() {
				resolved[i].Status = s.Status
			}
			continue
		}

		s.Address = addr
		if !s.Status.Valid() {
			s.Status = mailbox.StatusActive
		}
		if _, ok := mailbox.ParseCategory(string(s.Category)); !ok {
			s.Category = mailbox.CategoryUnknown
		}
		if s.Name == "" {
			s.Name = addr
		}
		index[addr] = len(resolved)
		resolved = append(resolved, s)
	}

	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Address < resolved[j].Address })
	return resolved
}
