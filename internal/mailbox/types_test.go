package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRawMessageFlags(t *testing.T) {
	tests := []struct {
		name     string
		labels   []string
		archived bool
		starred  bool
		read     bool
	}{
		{name: "inbox unread", labels: []string{LabelInbox, LabelUnread}, archived: false, starred: false, read: false},
		{name: "archived starred", labels: []string{LabelStarred}, archived: true, starred: true, read: true},
		{name: "no labels", labels: nil, archived: true, starred: false, read: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := RawMessage{ID: "m1", Labels: tt.labels}
			assert.Equal(t, tt.archived, m.Archived())
			assert.Equal(t, tt.starred, m.Starred())
			assert.Equal(t, tt.read, m.Read())
		})
	}
}

func TestRawMessageCloneIsIndependent(t *testing.T) {
	m := RawMessage{ID: "m1", Labels: []string{LabelInbox}}
	c := m.Clone()
	c.Labels[0] = "X"
	assert.Equal(t, LabelInbox, m.Labels[0])
}

func TestRawMessageText(t *testing.T) {
	assert.Equal(t, "body", RawMessage{Body: "body", Snippet: "snip"}.Text())
	assert.Equal(t, "snip", RawMessage{Snippet: "snip"}.Text())
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("Paid")
	assert.True(t, ok)
	assert.Equal(t, CategoryPaid, c)

	_, ok = ParseCategory("paid")
	assert.False(t, ok)
}

func TestSnapshotReady(t *testing.T) {
	now := time.Now()
	assert.True(t, Snapshot{Status: SnapshotDone, Cached: true, Source: SourceCache, FetchedAt: now}.Ready())
	assert.False(t, Snapshot{Status: SnapshotDone, Cached: false, Source: SourceCache}.Ready())
	assert.False(t, Snapshot{Status: SnapshotProcessing, Source: SourceScan}.Ready())
	assert.True(t, Snapshot{Status: SnapshotDone, Source: SourceScan}.Ready())
}
