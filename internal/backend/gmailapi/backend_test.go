package gmailapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/mailbox"
)

type modifyCall struct {
	id          string
	add, remove []string
}

type fakeGmail struct {
	mu       sync.Mutex
	messages []*gmailv1.Message
	labels   map[string]string
	listErr  error
	labelErr error
	modErr   error
	block    chan struct{}
	modified []modifyCall
	trashed  []string
	unsubbed []string
}

func (f *fakeGmail) ListMessages(ctx context.Context, q string, max int64) ([]*gmailv1.Message, error) {
	if f.block != nil {
		<-f.block
	}
	return f.messages, f.listErr
}

func (f *fakeGmail) ModifyMessage(ctx context.Context, id string, add, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modErr != nil {
		return f.modErr
	}
	f.modified = append(f.modified, modifyCall{id, add, remove})
	return nil
}

func (f *fakeGmail) TrashMessage(ctx context.Context, id string) error {
	f.trashed = append(f.trashed, id)
	return nil
}

func (f *fakeGmail) ListLabels(ctx context.Context) ([]*gmailv1.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.labelErr != nil {
		return nil, f.labelErr
	}
	labels := []*gmailv1.Label{
		{Id: "INBOX", Name: "INBOX", Type: "system"},
		{Id: "UNREAD", Name: "UNREAD", Type: "system"},
		{Id: "STARRED", Name: "STARRED", Type: "system"},
	}
	for name, id := range f.labels {
		labels = append(labels, &gmailv1.Label{Id: id, Name: name, Type: "user"})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Id < labels[j].Id })
	return labels, nil
}

func (f *fakeGmail) LabelID(ctx context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.labels[name]
	return id, ok, nil
}

func (f *fakeGmail) EnsureLabel(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.labels[name]; ok {
		return id, nil
	}
	id := fmt.Sprintf("Label_%d", len(f.labels)+1)
	f.labels[name] = id
	return id, nil
}

func (f *fakeGmail) UnsubscribeViaHTTP(ctx context.Context, url string) error {
	f.unsubbed = append(f.unsubbed, url)
	return nil
}

func gmailMessage(id, from string, ms int64, unsub string, labels ...string) *gmailv1.Message {
	headers := []*gmailv1.MessagePartHeader{
		{Name: "From", Value: from},
		{Name: "Subject", Value: "subject " + id},
	}
	if unsub != "" {
		headers = append(headers, &gmailv1.MessagePartHeader{Name: "List-Unsubscribe", Value: unsub})
	}
	return &gmailv1.Message{
		Id:           id,
		InternalDate: ms,
		LabelIds:     labels,
		Snippet:      "snippet " + id,
		Payload:      &gmailv1.MessagePart{Headers: headers},
	}
}

func newTestBackend(t *testing.T) (*Backend, *fakeGmail) {
	t.Helper()
	f := &fakeGmail{
		labels: map[string]string{"Later": "Label_1", "Receipts": "Label_2"},
		messages: []*gmailv1.Message{
			gmailMessage("m1", "Acme <news@acme.io>", base.UnixMilli(), "<mailto:u@acme.io>, <https://acme.io/u>", "INBOX", "UNREAD"),
			gmailMessage("m2", "bills@shop.example", base.Add(time.Hour).UnixMilli(), "<mailto:u@shop.example>", "INBOX"),
			gmailMessage("m3", "garbage", base.UnixMilli(), ""),
		},
	}
	b := New(f, testStore(t))
	b.now = func() time.Time { return base }
	return b, f
}

func TestCachedSnapshotBeforeFirstScan(t *testing.T) {
	b, _ := newTestBackend(t)

	snap, err := b.GetCachedSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mailbox.SnapshotDone, snap.Status)
	assert.False(t, snap.Cached)
	assert.Empty(t, snap.Messages)
}

func TestScanPopulatesCache(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	snap, err := b.ScanSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, mailbox.SourceScan, snap.Source)
	require.Len(t, snap.Messages, 2, "message without a sender address is dropped")
	assert.Equal(t, "news@acme.io", snap.Messages[0].SenderAddress)
	assert.Equal(t, "Acme", snap.Messages[0].SenderName)
	assert.True(t, snap.Messages[0].Timestamp.Equal(base))

	cached, err := b.GetCachedSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, mailbox.SourceCache, cached.Source)
	assert.Len(t, cached.Messages, 2)
	assert.True(t, cached.FetchedAt.Equal(base))
}

func TestCachedSnapshotWhileScanning(t *testing.T) {
	b, f := newTestBackend(t)
	f.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.ScanSnapshot(context.Background())
	}()

	require.Eventually(t, func() bool {
		snap, err := b.GetCachedSnapshot(context.Background())
		return err == nil && snap.Status == mailbox.SnapshotProcessing
	}, time.Second, 5*time.Millisecond)

	close(f.block)
	<-done

	snap, err := b.GetCachedSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mailbox.SnapshotDone, snap.Status)
}

func TestArchiveAndUnarchive(t *testing.T) {
	b, f := newTestBackend(t)
	ctx := context.Background()
	_, err := b.ScanSnapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Archive(ctx, "m1", "Later"))
	require.Len(t, f.modified, 1)
	assert.Equal(t, modifyCall{"m1", []string{"Label_1"}, []string{"INBOX"}}, f.modified[0])

	m, _, err := b.store.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, m.Archived())
	assert.True(t, m.HasLabel("Later"))

	require.NoError(t, b.Unarchive(ctx, "m1", "Later"))
	assert.Equal(t, modifyCall{"m1", []string{"INBOX"}, []string{"Label_1"}}, f.modified[1])

	m, _, err = b.store.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, m.Archived())
	assert.False(t, m.HasLabel("Later"))
}

func TestScanUsesLabelNames(t *testing.T) {
	b, f := newTestBackend(t)
	ctx := context.Background()
	f.messages = []*gmailv1.Message{
		gmailMessage("m1", "news@acme.io", base.UnixMilli(), "<https://acme.io/u>", "INBOX", "Label_1", "Label_9"),
		gmailMessage("m2", "bills@shop.example", base.UnixMilli(), "<mailto:u@shop.example>", "INBOX"),
	}

	snap, err := b.ScanSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, []string{"INBOX", "Later", "Label_9"}, snap.Messages[0].Labels, "unknown label ids are kept")
	assert.True(t, snap.Messages[0].HasLabel("Later"))

	// Archive and unarchive write names too, so scanned and modified
	// messages agree.
	require.NoError(t, b.Archive(ctx, "m2", "Later"))
	m2, _, err := b.store.GetMessage(ctx, "m2")
	require.NoError(t, err)
	assert.True(t, m2.HasLabel("Later"))

	require.NoError(t, b.Unarchive(ctx, "m1", "Later"))
	assert.Equal(t, modifyCall{"m1", []string{"INBOX"}, []string{"Label_1"}}, f.modified[1])
	m1, _, err := b.store.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, m1.HasLabel("Later"))
	assert.False(t, m1.HasLabel("Label_1"))
	assert.False(t, m1.Archived())

	cached, err := b.GetCachedSnapshot(ctx)
	require.NoError(t, err)
	for _, m := range cached.Messages {
		for _, l := range m.Labels {
			assert.NotEqual(t, "Label_1", l, "cache holds label names only")
		}
	}
}

func TestScanFailsWhenLabelsUnavailable(t *testing.T) {
	b, f := newTestBackend(t)
	f.labelErr = &googleapi.Error{Code: http.StatusUnauthorized}

	_, err := b.ScanSnapshot(context.Background())
	assert.ErrorIs(t, err, backend.ErrSessionExpired)
}

func TestArchiveWithoutLabel(t *testing.T) {
	b, f := newTestBackend(t)
	require.NoError(t, b.Archive(context.Background(), "m1", ""))
	assert.Equal(t, modifyCall{"m1", nil, []string{"INBOX"}}, f.modified[0])
}

func TestStarAndDelete(t *testing.T) {
	b, f := newTestBackend(t)
	ctx := context.Background()
	_, err := b.ScanSnapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Star(ctx, "m2"))
	require.NoError(t, b.Unstar(ctx, "m2"))
	assert.Equal(t, []string{"STARRED"}, f.modified[0].add)
	assert.Equal(t, []string{"STARRED"}, f.modified[1].remove)

	require.NoError(t, b.Delete(ctx, "m2"))
	assert.Equal(t, []string{"m2"}, f.trashed)
	_, ok, err := b.store.GetMessage(ctx, "m2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnsubscribeFollowsHTTPLink(t *testing.T) {
	b, f := newTestBackend(t)
	ctx := context.Background()
	_, err := b.ScanSnapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, b.MarkUnsubscribed(ctx, "news@acme.io", "", base))
	assert.Equal(t, []string{"https://acme.io/u"}, f.unsubbed)

	require.NoError(t, b.MarkUnsubscribed(ctx, "bills@shop.example", "m2", base))
	assert.Len(t, f.unsubbed, 1, "mailto-only senders are marked locally")

	snap, err := b.GetCachedSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Subscriptions, 2)
	for _, s := range snap.Subscriptions {
		assert.Equal(t, mailbox.StatusUnsubscribed, s.Status)
	}

	require.NoError(t, b.MarkSubscribed(ctx, "news@acme.io", base))
	snap, err = b.GetCachedSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, mailbox.StatusActive, snap.Subscriptions[1].Status)
}

func TestListLabelsUserOnly(t *testing.T) {
	b, _ := newTestBackend(t)
	labels, err := b.ListLabels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Later", "Receipts"}, labels)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "unauthorized",
			err:  &googleapi.Error{Code: http.StatusUnauthorized},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, backend.ErrSessionExpired)
			},
		},
		{
			name: "quota as 403",
			err: &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{
				{Reason: "userRateLimitExceeded"},
			}},
			check: func(t *testing.T, err error) {
				d, ok := backend.RetryAfter(err)
				assert.True(t, ok)
				assert.Equal(t, defaultRetryAfter, d)
			},
		},
		{
			name: "too many requests",
			err:  &googleapi.Error{Code: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"7"}}},
			check: func(t *testing.T, err error) {
				d, ok := backend.RetryAfter(err)
				assert.True(t, ok)
				assert.Equal(t, 7*time.Second, d)
			},
		},
		{
			name: "server error",
			err:  &googleapi.Error{Code: http.StatusServiceUnavailable},
			check: func(t *testing.T, err error) {
				assert.True(t, backend.IsRetryable(err))
			},
		},
		{
			name: "not found",
			err:  &googleapi.Error{Code: http.StatusNotFound},
			check: func(t *testing.T, err error) {
				assert.False(t, backend.IsRetryable(err))
				assert.NotErrorIs(t, err, backend.ErrSessionExpired)
			},
		},
		{
			name: "canceled",
			err:  context.Canceled,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, context.Canceled)
				assert.False(t, backend.IsRetryable(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, f := newTestBackend(t)
			f.modErr = fmt.Errorf("modify message m1: %w", tt.err)

			err := b.Star(context.Background(), "m1")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestScanFailureKeepsCache(t *testing.T) {
	b, f := newTestBackend(t)
	ctx := context.Background()
	_, err := b.ScanSnapshot(ctx)
	require.NoError(t, err)

	f.listErr = errors.New("boom")
	_, err = b.ScanSnapshot(ctx)
	require.Error(t, err)

	snap, err := b.GetCachedSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Messages, 2)
}
