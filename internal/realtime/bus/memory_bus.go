package bus

import (
	"context"
	"sync"
)

// MemoryBus delivers events to in-process subscribers. It backs the event
// stream when redis is not configured.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[int]func(StatusEvent)
	next int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[int]func(StatusEvent){}}
}

func (b *MemoryBus) Publish(ctx context.Context, ev StatusEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.subs {
		fn(ev)
	}
	return nil
}

func (b *MemoryBus) StartForwarder(ctx context.Context, onMsg func(ev StatusEvent)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = onMsg
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *MemoryBus) Close() error { return nil }
