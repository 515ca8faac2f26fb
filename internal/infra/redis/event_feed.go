package redis

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"quizroom-service/internal/app"
)

// EventFeed fans room change notifications out through Redis pub/sub so
// clients connected to different instances observe the same room. Delivery
// is at-least-once from the subscriber's point of view; every event carries
// a full snapshot, so a dropped or reordered message only delays convergence.
type EventFeed struct {
	client *redis.Client
}

func NewEventFeed(client *redis.Client) *EventFeed {
	return &EventFeed{client: client}
}

func (f *EventFeed) Publish(ctx context.Context, roomID string, ev app.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel(roomID), payload).Err()
}

func (f *EventFeed) Subscribe(ctx context.Context, roomID string) (<-chan app.Event, func(), error) {
	pubsub := f.client.Subscribe(ctx, f.channel(roomID))
	// Force the subscription onto the wire before we report success, so a
	// caller that publishes right after subscribing cannot miss its own event.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan app.Event, 8)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev app.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("decode room event: %v", err)
				continue
			}
			out <- ev
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}

func (f *EventFeed) channel(roomID string) string {
	return "room:" + roomID + ":events"
}
