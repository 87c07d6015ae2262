package overrides

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the type of entity an override targets.
type Kind string

const (
	KindMessage      Kind = "message"
	KindSubscription Kind = "subscription"
)

// Field names a mutable attribute of an entity.
type Field string

const (
	FieldArchived Field = "archived"
	FieldStarred  Field = "starred"
	FieldDeleted  Field = "deleted"
	FieldStatus   Field = "status"

	labelPrefix = "label:"
)

// LabelField returns the field tracking membership of a user label.
func LabelField(label string) Field {
	return Field(labelPrefix + label)
}

// Label returns the label name of a label field.
func (f Field) Label() (string, bool) {
	return strings.CutPrefix(string(f), labelPrefix)
}

// Status is the lifecycle state of an override.
type Status string

const (
	StatusOptimistic Status = "optimistic"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
	StatusRemoved    Status = "removed"
)

// LocalOverride is a pending change to one entity.
type LocalOverride struct {
	ID       string        `json:"id"`
	Kind     Kind          `json:"kind"`
	EntityID string        `json:"entityId"`
	Action   string        `json:"action"`
	Changes  map[Field]any `json:"changes"`
	Previous map[Field]any `json:"previous,omitempty"`
	Status   Status        `json:"status"`
	Created  time.Time     `json:"createdAt"`

	// Seq orders overrides; ConfirmedSeq records when the backend accepted it.
	Seq          uint64 `json:"-"`
	ConfirmedSeq uint64 `json:"-"`
}

// New returns an optimistic override with a fresh ID.
func New(kind Kind, entityID, action string, changes, previous map[Field]any, created time.Time) LocalOverride {
	return LocalOverride{
		ID:       uuid.NewString(),
		Kind:     kind,
		EntityID: entityID,
		Action:   action,
		Changes:  maps.Clone(changes),
		Previous: maps.Clone(previous),
		Status:   StatusOptimistic,
		Created:  created,
	}
}

// Targets reports whether o applies to the given entity.
func (o LocalOverride) Targets(kind Kind, entityID string) bool {
	return o.Kind == kind && o.EntityID == entityID
}

// Set is an immutable collection of active overrides ordered by Seq.
type Set struct {
	items []LocalOverride
}

// Apply adds o as an optimistic override and returns the new Set. Fields of o
// that are already pending on the same entity are taken over from the older
// override, including its Previous value.
func (s Set) Apply(o LocalOverride) Set {
	o.Status = StatusOptimistic
	o.Changes = maps.Clone(o.Changes)
	o.Previous = maps.Clone(o.Previous)
	if o.Previous == nil {
		o.Previous = make(map[Field]any)
	}

	next := make([]LocalOverride, 0, len(s.items)+1)
	for _, old := range s.items {
		if !old.Targets(o.Kind, o.EntityID) || !overlaps(old, o) {
			next = append(next, old)
			continue
		}

		old.Changes = maps.Clone(old.Changes)
		for f := range o.Changes {
			if _, ok := old.Changes[f]; !ok {
				continue
			}
			delete(old.Changes, f)
			if prev, ok := old.Previous[f]; ok {
				o.Previous[f] = prev
			}
		}
		if len(old.Changes) > 0 {
			next = append(next, old)
		}
	}

	next = append(next, o)
	return Set{items: next}
}

// Confirm marks the override as accepted by the backend at seq. It reports
// false if id is unknown or no longer optimistic.
func (s Set) Confirm(id string, seq uint64) (Set, bool) {
	i := s.index(id)
	if i < 0 || s.items[i].Status != StatusOptimistic {
		return s, false
	}

	next := slices.Clone(s.items)
	next[i].Status = StatusConfirmed
	next[i].ConfirmedSeq = seq
	return Set{items: next}, true
}

// Rollback removes an optimistic override after a backend failure. The
// returned override carries StatusFailed.
func (s Set) Rollback(id string) (Set, LocalOverride, bool) {
	i := s.index(id)
	if i < 0 || s.items[i].Status != StatusOptimistic {
		return s, LocalOverride{}, false
	}

	failed := s.items[i]
	failed.Status = StatusFailed
	return Set{items: slices.Delete(slices.Clone(s.items), i, i+1)}, failed, true
}

// Prune drops confirmed overrides that were confirmed before seq. Snapshots
// requested at seq already contain their effect.
func (s Set) Prune(seq uint64) (Set, int) {
	next := make([]LocalOverride, 0, len(s.items))
	for _, o := range s.items {
		if o.Status == StatusConfirmed && o.ConfirmedSeq < seq {
			continue
		}
		next = append(next, o)
	}
	return Set{items: next}, len(s.items) - len(next)
}

// Get returns the active override with the given ID.
func (s Set) Get(id string) (LocalOverride, bool) {
	if i := s.index(id); i >= 0 {
		return s.items[i], true
	}
	return LocalOverride{}, false
}

// Active returns all overrides still in force, oldest first.
func (s Set) Active() []LocalOverride {
	return slices.Clone(s.items)
}

// Len returns the number of overrides in force.
func (s Set) Len() int { return len(s.items) }

// Pending returns the number of overrides still awaiting a backend answer.
func (s Set) Pending() int {
	n := 0
	for _, o := range s.items {
		if o.Status == StatusOptimistic {
			n++
		}
	}
	return n
}

func (s Set) index(id string) int {
	return slices.IndexFunc(s.items, func(o LocalOverride) bool { return o.ID == id })
}

func overlaps(a, b LocalOverride) bool {
	for f := range b.Changes {
		if _, ok := a.Changes[f]; ok {
			return true
		}
	}
	return false
}
