// Package pubsub fans sequenced events out to every relay instance through
// Redis channels, one channel per whiteboard session.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/models"
	"github.com/redis/go-redis/v9"
)

const subscriberBuffer = 256

type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

func Channel(sessionID uuid.UUID) string {
	return "board:" + sessionID.String() + ":events"
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, event *models.SyncEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(event.SessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe returns the events broadcast to sessionID from now on. The
// subscription is confirmed before Subscribe returns. Call cancel to stop;
// the channel is closed afterwards.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan *models.SyncEvent, func(), error) {
	// 1. Subscribe to the Redis channel for this session
	ps := b.client.Subscribe(ctx, Channel(sessionID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan *models.SyncEvent, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			ps.Close()
		})
	}

	// 2. Forward decoded messages until cancelled
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev models.SyncEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("pubsub: dropping malformed message on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- &ev:
			case <-done:
				return
			}
		}
	}()

	return out, cancel, nil
}
