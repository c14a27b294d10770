package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStaleCheckpoint is returned when a newer checkpoint is already stored
	ErrStaleCheckpoint = errors.New("stale checkpoint: a newer checkpoint exists")
	// ErrCheckpointMismatch means two replicas disagree on the state at one sequence number
	ErrCheckpointMismatch = errors.New("checkpoint mismatch: replicas diverged")
)

// SyncEvent is a replicable event after the session assigned its position
// in the total order.
type SyncEvent struct {
	ID             uuid.UUID       `json:"id"`
	SessionID      uuid.UUID       `json:"session_id"`
	ReplicaID      uuid.UUID       `json:"replica_id"`
	EventType      EventKind       `json:"event_type"`
	SequenceNumber int64           `json:"sequence_number"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Checkpoint is a replica-computed snapshot of the canvas after applying
// every event up to and including SequenceNumber.
type Checkpoint struct {
	SessionID      uuid.UUID   `json:"session_id"`
	SequenceNumber int64       `json:"sequence_number"`
	State          CanvasState `json:"state"`
	Digest         uint64      `json:"digest"`
	CreatedAt      time.Time   `json:"created_at"`
}

// NewCheckpoint builds a checkpoint and fills in its digest.
func NewCheckpoint(sessionID uuid.UUID, seq int64, state CanvasState) Checkpoint {
	return Checkpoint{
		SessionID:      sessionID,
		SequenceNumber: seq,
		State:          state,
		Digest:         state.Digest(),
	}
}

// Accepts decides whether next may replace the stored checkpoint prev.
// An equal sequence number with the same digest is accepted as a no-op.
func (prev *Checkpoint) Accepts(next Checkpoint) error {
	if prev == nil {
		return nil
	}
	switch {
	case next.SequenceNumber < prev.SequenceNumber:
		return ErrStaleCheckpoint
	case next.SequenceNumber == prev.SequenceNumber && next.Digest != prev.Digest:
		return ErrCheckpointMismatch
	}
	return nil
}

// Welcome is what a replica receives when it joins a session: the latest
// checkpoint, if any, and every event sequenced after it.
type Welcome struct {
	SessionID  uuid.UUID    `json:"session_id"`
	Checkpoint *Checkpoint  `json:"checkpoint,omitempty"`
	Events     []*SyncEvent `json:"events"`
}

// FrameType tags the messages exchanged over a relay connection.
type FrameType string

const (
	FrameWelcome    FrameType = "welcome"
	FrameEvent      FrameType = "event"
	FramePublish    FrameType = "publish"
	FrameCheckpoint FrameType = "checkpoint"
	FrameResync     FrameType = "resync"
	FrameHead       FrameType = "head"
	FrameError      FrameType = "error"
)

// Frame is the envelope of every relay WebSocket message.
type Frame struct {
	Type       FrameType       `json:"type"`
	Welcome    *Welcome        `json:"welcome,omitempty"`
	Event      *SyncEvent      `json:"event,omitempty"`
	Kind       EventKind       `json:"kind,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Checkpoint *Checkpoint     `json:"checkpoint,omitempty"`
	After      int64           `json:"after,omitempty"`
	Head       int64           `json:"head,omitempty"`
	Error      string          `json:"error,omitempty"`
}
