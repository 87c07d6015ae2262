package events

import (
	"context"
	"sync"

	"github.com/teemow/inboxdigest/internal/session"
)

// DefaultBufferSize is the capacity used when NewBuffer gets a non-positive
// size.
const DefaultBufferSize = 100

// Buffer keeps the most recent notifications until they are drained. When
// full, the oldest notification is dropped.
type Buffer struct {
	mu      sync.Mutex
	items   []session.Notification
	size    int
	dropped int
}

// NewBuffer returns a Buffer holding at most size notifications.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{size: size}
}

// Notify implements session.Notifier.
func (b *Buffer) Notify(_ context.Context, n session.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == b.size {
		b.items = b.items[1:]
		b.dropped++
	}
	b.items = append(b.items, n)
}

// Drain returns the buffered notifications, oldest first, and how many were
// discarded since the previous Drain. It empties the buffer.
func (b *Buffer) Drain() ([]session.Notification, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out, dropped := b.items, b.dropped
	b.items, b.dropped = nil, 0
	return out, dropped
}

// Len returns the number of buffered notifications.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
