// Package session is the participant side of SyncSession: the ordering and
// broadcast service every replica's model depends on for a single total order
// of draw and clear events.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/models"
)

var (
	ErrNotJoined = errors.New("session not joined")
	ErrClosed    = errors.New("session closed")
)

// Deliver receives sequenced events. Implementations call it from their own
// goroutine and expect it to return quickly.
type Deliver func(*models.SyncEvent)

// Session is one replica's handle on a shared whiteboard session.
// Delivery is at-least-once and totally ordered by SequenceNumber; receivers
// discard duplicates and wait out gaps (see Orderer).
type Session interface {
	// Join registers deliver and returns the state a late joiner starts from.
	Join(ctx context.Context, replicaID uuid.UUID, deliver Deliver) (*models.Welcome, error)
	// Publish submits a draw or clear event for sequencing.
	Publish(ctx context.Context, ev models.Event) error
	// Checkpoint offers a snapshot computed by this replica.
	Checkpoint(ctx context.Context, cp models.Checkpoint) error
	// Resync asks for every event sequenced after the given number again.
	Resync(ctx context.Context, after int64) error
	Close() error
}

// HeadWatcher is implemented by sessions that announce the last sequence
// number they assigned. Without it a receiver cannot notice that the final
// events were lost. OnHead must be called before Join.
type HeadWatcher interface {
	OnHead(fn func(head int64))
}
