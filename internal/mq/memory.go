package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const memoryQueueSize = 64

// MemoryBackend delivers messages to subscribers of the same process.
// Publish never waits on a subscriber: messages published while nobody
// subscribes, or while a subscriber's queue is full, are dropped.
type MemoryBackend struct {
	mu      sync.Mutex
	subs    map[string][]chan Message
	closed  bool
	dropped atomic.Int64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{subs: make(map[string][]chan Message)}
}

func (b *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", errors.New("memory backend closed")
	}
	subs := append([]chan Message(nil), b.subs[channel]...)
	b.mu.Unlock()

	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, sub := range subs {
		select {
		case sub <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	return msg.ID, nil
}

// Subscribe redelivers a message once when handler fails.
func (b *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}

	sub := make(chan Message, memoryQueueSize)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("memory backend closed")
	}
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()
	defer b.unsubscribe(channel, sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-sub:
			if err := handler(ctx, msg); err != nil {
				_ = handler(ctx, msg)
			}
		}
	}
}

func (b *MemoryBackend) unsubscribe(channel string, sub chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[channel]
	for i, existing := range subs {
		if existing == sub {
			b.subs[channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Dropped reports how many deliveries were discarded because a subscriber
// queue was full.
func (b *MemoryBackend) Dropped() int64 {
	return b.dropped.Load()
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
