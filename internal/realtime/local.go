package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const subscriberBuffer = 64

// LocalBus delivers events inside one process. It backs single-replica
// deployments without Redis, and tests.
//
// A subscriber that falls subscriberBuffer events behind misses events
// rather than stalling the publisher.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[uuid.UUID]map[chan Event]struct{})}
}

var _ Bus = (*LocalBus)(nil)

func (b *LocalBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.TenantID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, tenantID uuid.UUID) (<-chan Event, error) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[tenantID] == nil {
		b.subs[tenantID] = make(map[chan Event]struct{})
	}
	b.subs[tenantID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[tenantID], ch)
		if len(b.subs[tenantID]) == 0 {
			delete(b.subs, tenantID)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
