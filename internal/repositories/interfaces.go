package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/models"
)

var ErrNotFound = errors.New("not found")

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	List(ctx context.Context) ([]*models.Session, error)
	// Touch moves the session's expiry to expiresAt.
	Touch(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type PresenceRepository interface {
	SetPresence(ctx context.Context, presence *models.Presence) error
	GetPresence(ctx context.Context, sessionID, replicaID uuid.UUID) (*models.Presence, error)
	DeletePresence(ctx context.Context, sessionID, replicaID uuid.UUID) error
	// ListOnline returns the replicas of a session whose heartbeat has not
	// expired.
	ListOnline(ctx context.Context, sessionID uuid.UUID) ([]models.Presence, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
}

// JournalRepository stores the totally ordered event log of each session.
type JournalRepository interface {
	// Append assigns the next sequence number of the event's session and
	// stores the event. ID, SequenceNumber and CreatedAt are populated.
	Append(ctx context.Context, event *models.SyncEvent) error
	GetSinceSequence(ctx context.Context, sessionID uuid.UUID, sequenceNumber int64) ([]*models.SyncEvent, error)
	// LatestSequence is the last number assigned in a session, 0 if none.
	LatestSequence(ctx context.Context, sessionID uuid.UUID) (int64, error)
	// Sessions lists every session that has a journal.
	Sessions(ctx context.Context) ([]uuid.UUID, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
}

type CheckpointRepository interface {
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Checkpoint, error)
	// Save stores cp if the stored checkpoint accepts it, see
	// models.Checkpoint.Accepts.
	Save(ctx context.Context, cp *models.Checkpoint) error
	Delete(ctx context.Context, sessionID uuid.UUID) error
}
