package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/identity"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/mailbox"
	"github.com/teemow/inboxdigest/internal/overrides"
	"github.com/teemow/inboxdigest/internal/reconcile"
)

// Action names, also used as metric labels.
const (
	ActionArchive     = "archive"
	ActionUnarchive   = "unarchive"
	ActionStar        = "star"
	ActionUnstar      = "unstar"
	ActionDelete      = "delete"
	ActionUnsubscribe = "unsubscribe"
	ActionResubscribe = "resubscribe"
)

// mutation describes one user action.
type mutation struct {
	kind     overrides.Kind
	entityID string
	action   string
	// changes computes the override fields from the entity's current state
	// and returns the previous values alongside.
	changes func(v reconcile.View) (changes, previous map[overrides.Field]any, ok bool)
	call    func(ctx context.Context) error
}

// Archive removes a message from the inbox, optionally filing it under label.
// It returns the override ID; the backend call completes in the background.
func (s *Session) Archive(ctx context.Context, messageID, label string) (string, error) {
	return s.mutateMessage(ctx, messageID, ActionArchive, func(m mailbox.RawMessage) (map[overrides.Field]any, map[overrides.Field]any) {
		changes := map[overrides.Field]any{overrides.FieldArchived: true}
		previous := map[overrides.Field]any{overrides.FieldArchived: m.Archived()}
		if label != "" {
			changes[overrides.LabelField(label)] = true
			previous[overrides.LabelField(label)] = m.HasLabel(label)
		}
		return changes, previous
	}, func(ctx context.Context) error {
		return s.mailbox.Archive(ctx, messageID, label)
	})
}

// Unarchive returns a message to the inbox, removing label if set.
func (s *Session) Unarchive(ctx context.Context, messageID, label string) (string, error) {
	return s.mutateMessage(ctx, messageID, ActionUnarchive, func(m mailbox.RawMessage) (map[overrides.Field]any, map[overrides.Field]any) {
		changes := map[overrides.Field]any{overrides.FieldArchived: false}
		previous := map[overrides.Field]any{overrides.FieldArchived: m.Archived()}
		if label != "" {
			changes[overrides.LabelField(label)] = false
			previous[overrides.LabelField(label)] = m.HasLabel(label)
		}
		return changes, previous
	}, func(ctx context.Context) error {
		return s.mailbox.Unarchive(ctx, messageID, label)
	})
}

// Star stars a message.
func (s *Session) Star(ctx context.Context, messageID string) (string, error) {
	return s.mutateMessage(ctx, messageID, ActionStar, starChange(true), func(ctx context.Context) error {
		return s.mailbox.Star(ctx, messageID)
	})
}

// Unstar removes the star from a message.
func (s *Session) Unstar(ctx context.Context, messageID string) (string, error) {
	return s.mutateMessage(ctx, messageID, ActionUnstar, starChange(false), func(ctx context.Context) error {
		return s.mailbox.Unstar(ctx, messageID)
	})
}

func starChange(on bool) func(m mailbox.RawMessage) (map[overrides.Field]any, map[overrides.Field]any) {
	return func(m mailbox.RawMessage) (map[overrides.Field]any, map[overrides.Field]any) {
		return map[overrides.Field]any{overrides.FieldStarred: on},
			map[overrides.Field]any{overrides.FieldStarred: m.Starred()}
	}
}

// Delete removes a message and opens the delete grace window, during which
// automatic digest regeneration is suppressed.
func (s *Session) Delete(ctx context.Context, messageID string) (string, error) {
	return s.mutateMessage(ctx, messageID, ActionDelete, func(m mailbox.RawMessage) (map[overrides.Field]any, map[overrides.Field]any) {
		return map[overrides.Field]any{overrides.FieldDeleted: true},
			map[overrides.Field]any{overrides.FieldDeleted: false}
	}, func(ctx context.Context) error {
		return s.mailbox.Delete(ctx, messageID)
	})
}

// Unsubscribe marks a sender unsubscribed.
func (s *Session) Unsubscribe(ctx context.Context, address string) (string, error) {
	return s.mutateSubscription(ctx, address, ActionUnsubscribe, mailbox.StatusUnsubscribed,
		func(ctx context.Context, sub mailbox.Subscription) error {
			return s.mailbox.MarkUnsubscribed(ctx, sub.Address, sub.LatestMessageID, sub.LastSeen)
		})
}

// Resubscribe marks a sender active again.
func (s *Session) Resubscribe(ctx context.Context, address string) (string, error) {
	return s.mutateSubscription(ctx, address, ActionResubscribe, mailbox.StatusActive,
		func(ctx context.Context, sub mailbox.Subscription) error {
			return s.mailbox.MarkSubscribed(ctx, sub.Address, sub.LastSeen)
		})
}

func (s *Session) mutateMessage(
	ctx context.Context,
	messageID, action string,
	change func(m mailbox.RawMessage) (map[overrides.Field]any, map[overrides.Field]any),
	call func(ctx context.Context) error,
) (string, error) {
	return s.mutate(ctx, mutation{
		kind:     overrides.KindMessage,
		entityID: messageID,
		action:   action,
		changes: func(v reconcile.View) (map[overrides.Field]any, map[overrides.Field]any, bool) {
			m, ok := v.Message(messageID)
			if !ok {
				return nil, nil, false
			}
			changes, previous := change(m)
			return changes, previous, true
		},
		call: call,
	})
}

func (s *Session) mutateSubscription(
	ctx context.Context,
	address, action string,
	status mailbox.SubscriptionStatus,
	call func(ctx context.Context, sub mailbox.Subscription) error,
) (string, error) {
	addr := identity.NormalizeAddress(address)
	if addr == "" {
		return "", fmt.Errorf("%w: invalid address %q", ErrUnknownEntity, address)
	}

	var sub mailbox.Subscription
	return s.mutate(ctx, mutation{
		kind:     overrides.KindSubscription,
		entityID: addr,
		action:   action,
		changes: func(v reconcile.View) (map[overrides.Field]any, map[overrides.Field]any, bool) {
			found, ok := v.Subscription(addr)
			if !ok {
				return nil, nil, false
			}
			sub = found
			return map[overrides.Field]any{overrides.FieldStatus: status},
				map[overrides.Field]any{overrides.FieldStatus: found.Status}, true
		},
		call: func(ctx context.Context) error { return call(ctx, sub) },
	})
}

// mutate applies the optimistic override and issues the backend call in the
// background. The caller's context only scopes the validation; the backend
// call runs on the session's context.
func (s *Session) mutate(ctx context.Context, m mutation) (string, error) {
	s.mu.Lock()
	if err := s.usable(); err != nil {
		s.mu.Unlock()
		return "", err
	}

	changes, previous, ok := m.changes(s.st.view(s.merger))
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s %s", ErrUnknownEntity, m.kind, m.entityID)
	}

	now := s.clock.Now()
	var graceUntil time.Time
	if m.action == ActionDelete {
		graceUntil = now.Add(s.cfg.DeleteGrace)
	}

	o := overrides.New(m.kind, m.entityID, m.action, changes, previous, now)
	s.st, o = s.st.onMutationRequested(o, graceUntil)
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.RecordMutation(ctx, m.action, instrumentation.StatusRequested)
	s.metrics.AddPendingOverrides(ctx, 1)
	s.logger.Debug("mutation requested",
		logging.Operation(m.action), logging.Override(o.ID), entityAttr(m.kind, m.entityID))

	go s.complete(o, m.call)
	s.checkDigest()
	return o.ID, nil
}

func (s *Session) complete(o overrides.LocalOverride, call func(ctx context.Context) error) {
	defer s.wg.Done()
	defer s.metrics.AddPendingOverrides(s.ctx, -1)

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.MutationTimeout)
	err := call(ctx)
	cancel()

	logger := s.logger.With(logging.Operation(o.Action), logging.Override(o.ID), entityAttr(o.Kind, o.EntityID))

	if err == nil {
		s.mu.Lock()
		var confirmed bool
		s.st, confirmed = s.st.onMutationConfirmed(o.ID)
		s.mu.Unlock()

		s.metrics.RecordMutation(s.ctx, o.Action, instrumentation.StatusConfirmed)
		if confirmed {
			logger.Debug("mutation confirmed")
		} else {
			logger.Debug("confirmation ignored, override no longer pending")
		}
		return
	}

	s.mu.Lock()
	st, failed, rolledBack := s.st.onMutationFailed(o.ID)
	s.st = st
	s.mu.Unlock()

	s.metrics.RecordMutation(s.ctx, o.Action, instrumentation.StatusFailed)
	logger.Warn("mutation failed", logging.Err(err))

	if s.handleBackendError(err) || !rolledBack {
		return
	}
	s.notify(Notification{
		Kind:       KindMutationFailed,
		EntityID:   o.EntityID,
		Action:     o.Action,
		OverrideID: o.ID,
		Message:    fmt.Sprintf("Could not %s %s: %v", o.Action, o.EntityID, err),
		Retryable:  backend.IsRetryable(err),
		RetryAfter: retryAfter(err),
		Previous:   failed.Previous,
	})
	s.checkDigest()
}

func entityAttr(kind overrides.Kind, id string) slog.Attr {
	if kind == overrides.KindSubscription {
		return logging.Sender(id)
	}
	return logging.Entity(id)
}

// ActionResult is the outcome of one item of a bulk action.
type ActionResult struct {
	ID         string `json:"id"`
	OverrideID string `json:"overrideId,omitempty"`
	Err        error  `json:"-"`
}

// UnsubscribeMany unsubscribes from each address. Failures of individual
// items do not stop the rest.
func (s *Session) UnsubscribeMany(ctx context.Context, addresses []string) []ActionResult {
	return s.each(addresses, func(addr string) (string, error) { return s.Unsubscribe(ctx, addr) })
}

// ResubscribeMany marks each address active again.
func (s *Session) ResubscribeMany(ctx context.Context, addresses []string) []ActionResult {
	return s.each(addresses, func(addr string) (string, error) { return s.Resubscribe(ctx, addr) })
}

// ArchiveMany archives each message under label.
func (s *Session) ArchiveMany(ctx context.Context, messageIDs []string, label string) []ActionResult {
	return s.each(messageIDs, func(id string) (string, error) { return s.Archive(ctx, id, label) })
}

func (s *Session) each(ids []string, fn func(id string) (string, error)) []ActionResult {
	results := make([]ActionResult, 0, len(ids))
	for _, id := range ids {
		oid, err := fn(id)
		results = append(results, ActionResult{ID: id, OverrideID: oid, Err: err})
	}
	return results
}
