package memory

import (
	"context"
	"sync"

	"quizroom-service/internal/app"
)

// Broadcaster is an in-process implementation of app.EventFeed for
// single-instance deployments.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[chan app.Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[string]map[chan app.Event]struct{})}
}

func (b *Broadcaster) Publish(_ context.Context, roomID string, ev app.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[roomID] {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest pending event so the newest
			// snapshot always lands. Clients re-read state on every event,
			// so losing an intermediate one is safe.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
	return nil
}

func (b *Broadcaster) Subscribe(_ context.Context, roomID string) (<-chan app.Event, func(), error) {
	ch := make(chan app.Event, 8)

	b.mu.Lock()
	if b.subscribers[roomID] == nil {
		b.subscribers[roomID] = make(map[chan app.Event]struct{})
	}
	b.subscribers[roomID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if subs, ok := b.subscribers[roomID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(b.subscribers, roomID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel, nil
}
