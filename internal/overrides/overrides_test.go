package overrides

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func archive(id string, seq uint64) LocalOverride {
	o := New(KindMessage, id, "archive",
		map[Field]any{FieldArchived: true, LabelField("Done"): true},
		map[Field]any{FieldArchived: false, LabelField("Done"): false},
		t0)
	o.Seq = seq
	return o
}

func TestApplyIsImmutable(t *testing.T) {
	var s Set
	s2 := s.Apply(archive("A", 1))

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, s2.Len())
	assert.Equal(t, 1, s2.Pending())
}

func TestApplySameFieldReplaces(t *testing.T) {
	var s Set
	first := archive("A", 1)
	s = s.Apply(first)

	second := New(KindMessage, "A", "unarchive",
		map[Field]any{FieldArchived: false, LabelField("Done"): false},
		map[Field]any{FieldArchived: true, LabelField("Done"): true},
		t0)
	second.Seq = 2
	s = s.Apply(second)

	require.Equal(t, 1, s.Len())
	got := s.Active()[0]
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, false, got.Changes[FieldArchived])
	// The rollback target survives from the first override.
	assert.Equal(t, false, got.Previous[FieldArchived])

	_, ok := s.Get(first.ID)
	assert.False(t, ok)

	_, ok = s.Confirm(first.ID, 3)
	assert.False(t, ok, "superseded override cannot be confirmed")
	_, _, ok = s.Rollback(first.ID)
	assert.False(t, ok, "superseded override cannot be rolled back")
}

func TestApplyPartialOverlapKeepsRemainingFields(t *testing.T) {
	var s Set
	first := archive("A", 1)
	s = s.Apply(first)

	rearchive := New(KindMessage, "A", "archive",
		map[Field]any{FieldArchived: true},
		map[Field]any{FieldArchived: true},
		t0)
	rearchive.Seq = 2
	s = s.Apply(rearchive)

	require.Equal(t, 2, s.Len())
	old, ok := s.Get(first.ID)
	require.True(t, ok)
	assert.NotContains(t, old.Changes, FieldArchived)
	assert.Contains(t, old.Changes, LabelField("Done"))
}

func TestApplyOtherEntityUnaffected(t *testing.T) {
	var s Set
	s = s.Apply(archive("A", 1))
	s = s.Apply(archive("B", 2))
	assert.Equal(t, 2, s.Len())
}

func TestConfirmAndPrune(t *testing.T) {
	var s Set
	o := archive("A", 1)
	s = s.Apply(o)

	s, ok := s.Confirm(o.ID, 5)
	require.True(t, ok)
	got, _ := s.Get(o.ID)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, 0, s.Pending())

	// A scan requested before the confirmation does not reflect it yet.
	s, n := s.Prune(4)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, s.Len())

	s, n = s.Prune(6)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, s.Len())
}

func TestPruneKeepsOptimistic(t *testing.T) {
	var s Set
	s = s.Apply(archive("A", 1))
	s, n := s.Prune(100)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, s.Len())
}

func TestRollback(t *testing.T) {
	var s Set
	o := archive("A", 1)
	s = s.Apply(o)

	next, failed, ok := s.Rollback(o.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, false, failed.Previous[FieldArchived])
	assert.Equal(t, 0, next.Len())
	assert.Equal(t, 1, s.Len(), "receiver unchanged")

	_, _, ok = next.Rollback(o.ID)
	assert.False(t, ok)
}

func TestRollbackAfterConfirmIsNoop(t *testing.T) {
	var s Set
	o := archive("A", 1)
	s = s.Apply(o)
	s, _ = s.Confirm(o.ID, 2)

	_, _, ok := s.Rollback(o.ID)
	assert.False(t, ok)
}

func TestLabelField(t *testing.T) {
	label, ok := LabelField("Receipts").Label()
	assert.True(t, ok)
	assert.Equal(t, "Receipts", label)

	_, ok = FieldArchived.Label()
	assert.False(t, ok)
}
