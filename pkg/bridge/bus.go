// Copyright 2024-2026 Aiku AI

package bridge

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity used when
// the configured value is zero or negative.
const DefaultSubscriberBuffer = 64

// Bus is a broadcast fan-out of bridge messages. Each subscriber receives
// published messages in FIFO order on its own bounded channel. A subscriber
// that falls behind its buffer drops messages rather than blocking the
// publisher.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Message
	nextID int
	buffer int
	closed bool
	log    zerolog.Logger
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(buffer int, log zerolog.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Bus{
		subs:   make(map[int]chan Message),
		buffer: buffer,
		log:    log.With().Str("component", "bus").Logger(),
	}
}

// Subscribe registers a new subscriber and returns its receive channel plus
// an unsubscribe func. The channel is closed on unsubscribe or bus close,
// after any buffered messages have been delivered.
func (b *Bus) Subscribe() (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Message, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish broadcasts msg to all current subscribers without blocking.
func (b *Bus) Publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, sub := range b.subs {
		select {
		case sub <- msg:
		default:
			b.log.Warn().
				Int("subscriber", id).
				Str("message_id", msg.ID).
				Msg("Subscriber buffer full, dropping message")
		}
	}
}

// Close closes all subscriber channels. Pipeline loops drain their buffers
// and exit when their channel closes. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
}
