package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/session"
)

func note(kind session.NotificationKind, entity string) session.Notification {
	return session.Notification{
		Kind:     kind,
		Account:  "work",
		EntityID: entity,
		Message:  "something happened",
		Time:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuffer(t *testing.T) {
	b := NewBuffer(2)
	ctx := context.Background()

	b.Notify(ctx, note(session.KindScanFailed, "1"))
	b.Notify(ctx, note(session.KindScanFailed, "2"))
	b.Notify(ctx, note(session.KindScanFailed, "3"))

	assert.Equal(t, 2, b.Len())

	got, dropped := b.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, "2", got[0].EntityID)
	assert.Equal(t, "3", got[1].EntityID)

	got, dropped = b.Drain()
	assert.Empty(t, got)
	assert.Zero(t, dropped)
}

func TestNewBufferDefaultSize(t *testing.T) {
	assert.Equal(t, DefaultBufferSize, NewBuffer(0).size)
}

func TestLogHidesAddresses(t *testing.T) {
	var out bytes.Buffer
	l := NewLog(slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})))

	n := note(session.KindMutationFailed, "news@acme.io")
	n.Action = "unsubscribe"
	n.RetryAfter = 30 * time.Second
	l.Notify(context.Background(), n)

	line := out.String()
	assert.NotContains(t, line, "news@acme.io")
	assert.Contains(t, line, `"kind":"mutation_failed"`)
	assert.Contains(t, line, `"level":"WARN"`)
	assert.Contains(t, line, "unsubscribe")
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		kind session.NotificationKind
		want slog.Level
	}{
		{session.KindDigestUpdated, slog.LevelInfo},
		{session.KindDigestRateLimited, slog.LevelDebug},
		{session.KindSessionExpired, slog.LevelWarn},
		{session.KindDigestFailed, slog.LevelWarn},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, levelFor(tt.kind))
		})
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "inboxdigest.work.scan_failed", Subject(note(session.KindScanFailed, "")))

	n := note(session.KindDigestUpdated, "")
	n.Account = "me.example *"
	assert.Equal(t, "inboxdigest.me_example__.digest_updated", Subject(n))

	n.Account = ""
	assert.Equal(t, "inboxdigest.default.digest_updated", Subject(n))
}

type published struct {
	subject string
	data    []byte
	opts    int
}

type fakeJetStream struct {
	published  []published
	publishErr error
	streams    map[string]*nats.StreamConfig
	addErr     error
}

func (f *fakeJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, published{subject: subj, data: data, opts: len(opts)})
	return &nats.PubAck{Stream: StreamName}, nil
}

func (f *fakeJetStream) StreamInfo(stream string, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	if cfg, ok := f.streams[stream]; ok {
		return &nats.StreamInfo{Config: *cfg}, nil
	}
	return nil, nats.ErrStreamNotFound
}

func (f *fakeJetStream) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	if f.streams == nil {
		f.streams = make(map[string]*nats.StreamConfig)
	}
	f.streams[cfg.Name] = cfg
	return &nats.StreamInfo{Config: *cfg}, nil
}

func TestPublisherPublish(t *testing.T) {
	js := &fakeJetStream{}
	p := newPublisher(nil, js, nil)

	p.Notify(context.Background(), note(session.KindMutationFailed, "m1"))

	require.Len(t, js.published, 1)
	assert.Equal(t, "inboxdigest.work.mutation_failed", js.published[0].subject)
	assert.Equal(t, 1, js.published[0].opts)

	var got session.Notification
	require.NoError(t, json.Unmarshal(js.published[0].data, &got))
	assert.Equal(t, "m1", got.EntityID)
	assert.Equal(t, session.KindMutationFailed, got.Kind)

	require.NoError(t, p.Close())
}

func TestPublisherPublishError(t *testing.T) {
	js := &fakeJetStream{publishErr: nats.ErrNoResponders}
	p := newPublisher(nil, js, nil)

	err := p.Publish(note(session.KindScanFailed, ""))
	assert.ErrorIs(t, err, nats.ErrNoResponders)

	// Notify only logs.
	p.Notify(context.Background(), note(session.KindScanFailed, ""))
}

func TestEnsureStream(t *testing.T) {
	js := &fakeJetStream{}
	p := newPublisher(nil, js, nil)

	require.NoError(t, p.EnsureStream())
	cfg := js.streams[StreamName]
	require.NotNil(t, cfg)
	assert.Equal(t, []string{"inboxdigest.>"}, cfg.Subjects)

	// Existing stream is left alone.
	js.addErr = errors.New("must not be called")
	require.NoError(t, p.EnsureStream())

	js = &fakeJetStream{addErr: nats.ErrStreamNameAlreadyInUse}
	require.NoError(t, newPublisher(nil, js, nil).EnsureStream())

	js = &fakeJetStream{addErr: errors.New("no jetstream")}
	assert.Error(t, newPublisher(nil, js, nil).EnsureStream())
}
