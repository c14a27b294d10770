package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/models"
	"github.com/prudhvinik1/syncboard/internal/repositories"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
	ErrInvalidName       = errors.New("session name must be 1-100 characters")
)

const DefaultSessionTTL = 24 * time.Hour

// Broadcaster fans sequenced events out to every connection of a session.
type Broadcaster interface {
	Broadcast(ctx context.Context, event *models.SyncEvent) error
	Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan *models.SyncEvent, func(), error)
}

// SessionInfo is a session together with the replicas currently connected.
type SessionInfo struct {
	*models.Session
	Online []models.Presence `json:"online"`
}

// RelayService is the server side of a whiteboard session: it assigns the
// total order, keeps the journal and the latest checkpoint, and tracks who
// is connected.
type RelayService struct {
	sessionRepo    repositories.SessionRepository
	presenceRepo   repositories.PresenceRepository
	journalRepo    repositories.JournalRepository
	checkpointRepo repositories.CheckpointRepository
	broadcaster    Broadcaster
	sessionTTL     time.Duration
}

func NewRelayService(
	sessionRepo repositories.SessionRepository,
	presenceRepo repositories.PresenceRepository,
	journalRepo repositories.JournalRepository,
	checkpointRepo repositories.CheckpointRepository,
	broadcaster Broadcaster,
	sessionTTL time.Duration,
) *RelayService {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &RelayService{
		sessionRepo:    sessionRepo,
		presenceRepo:   presenceRepo,
		journalRepo:    journalRepo,
		checkpointRepo: checkpointRepo,
		broadcaster:    broadcaster,
		sessionTTL:     sessionTTL,
	}
}

func (s *RelayService) CreateSession(ctx context.Context, name string) (*models.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, ErrInvalidName
	}

	now := time.Now()
	session := &models.Session{
		ID:        uuid.New(),
		Name:      name,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("Created session %s (%q)", session.ID, session.Name)
	return session, nil
}

func (s *RelayService) ListSessions(ctx context.Context) ([]*models.Session, error) {
	sessions, err := s.sessionRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (s *RelayService) GetSession(ctx context.Context, id uuid.UUID) (*SessionInfo, error) {
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}

	online, err := s.presenceRepo.ListOnline(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}
	return &SessionInfo{Session: session, Online: online}, nil
}

// CloseSession ends a session and drops everything stored for it.
func (s *RelayService) CloseSession(ctx context.Context, id uuid.UUID) error {
	err := s.sessionRepo.Delete(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if err := s.dropSessionData(ctx, id); err != nil {
		return err
	}

	log.Printf("Closed session %s", id)
	return nil
}

// ReapExpired drops the journal, checkpoint and presence of sessions whose
// TTL ran out. It returns how many sessions were reaped.
func (s *RelayService) ReapExpired(ctx context.Context) (int, error) {
	ids, err := s.journalRepo.Sessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list journals: %w", err)
	}

	reaped := 0
	for _, id := range ids {
		_, err := s.sessionRepo.GetByID(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			log.Printf("failed to check session %s: %v", id, err)
			continue
		}
		if err := s.dropSessionData(ctx, id); err != nil {
			log.Printf("failed to reap session %s: %v", id, err)
			continue
		}
		reaped++
	}
	return reaped, nil
}

// Join registers a replica and returns where it starts: the latest
// checkpoint and every event after it.
func (s *RelayService) Join(ctx context.Context, sessionID, replicaID uuid.UUID) (*models.Welcome, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}

	welcome := &models.Welcome{SessionID: sessionID}

	var after int64
	cp, err := s.checkpointRepo.Get(ctx, sessionID)
	switch {
	case err == nil:
		welcome.Checkpoint = cp
		after = cp.SequenceNumber
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	welcome.Events, err = s.journalRepo.GetSinceSequence(ctx, sessionID, after)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	if err := s.Heartbeat(ctx, sessionID, replicaID); err != nil {
		return nil, err
	}

	log.Printf("Replica %s joined session %s (checkpoint %d, %d events)", replicaID, sessionID, after, len(welcome.Events))
	return welcome, nil
}

func (s *RelayService) Leave(ctx context.Context, sessionID, replicaID uuid.UUID) error {
	if err := s.presenceRepo.DeletePresence(ctx, sessionID, replicaID); err != nil {
		return fmt.Errorf("failed to leave session: %w", err)
	}
	return nil
}

func (s *RelayService) Heartbeat(ctx context.Context, sessionID, replicaID uuid.UUID) error {
	err := s.presenceRepo.SetPresence(ctx, &models.Presence{
		SessionID: sessionID,
		ReplicaID: replicaID,
		Status:    string(models.StatusOnline),
	})
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

// Publish puts a draw or clear request into the session's total order and
// broadcasts it. The payload is validated and stored in canonical form.
func (s *RelayService) Publish(ctx context.Context, sessionID, replicaID uuid.UUID, kind models.EventKind, payload []byte) (*models.SyncEvent, error) {
	// 1. Only replicable, well-formed events get a sequence number
	ev, err := models.DecodeEvent(kind, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if draw, ok := ev.(models.DrawEvent); ok && len(draw.Points) == 0 {
		return nil, fmt.Errorf("%w: draw event without points", ErrInvalidEvent)
	}
	kind, canonical, err := models.EncodeEvent(ev)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}

	// 2. Sequence and store
	event := &models.SyncEvent{
		SessionID: sessionID,
		ReplicaID: replicaID,
		EventType: kind,
		Payload:   canonical,
	}
	if err := s.journalRepo.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	// 3. Fan out. Receivers notice a lost broadcast from the next event or
	// the next head announcement, and resync.
	if err := s.broadcaster.Broadcast(ctx, event); err != nil {
		log.Printf("failed to broadcast event %d of session %s: %v", event.SequenceNumber, sessionID, err)
	}

	// 4. Activity keeps the session alive
	if err := s.sessionRepo.Touch(ctx, sessionID, time.Now().Add(s.sessionTTL)); err != nil {
		log.Printf("failed to extend session %s: %v", sessionID, err)
	}

	return event, nil
}

// SaveCheckpoint stores a replica's checkpoint if it is newer than the
// current one. models.ErrCheckpointMismatch means two replicas computed
// different states for the same sequence number.
func (s *RelayService) SaveCheckpoint(ctx context.Context, sessionID uuid.UUID, cp models.Checkpoint) error {
	if cp.SequenceNumber <= 0 {
		return fmt.Errorf("%w: sequence number %d", ErrInvalidCheckpoint, cp.SequenceNumber)
	}
	if cp.Digest != cp.State.Digest() {
		return fmt.Errorf("%w: digest does not match state", ErrInvalidCheckpoint)
	}
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return err
	}
	cp.SessionID = sessionID

	err := s.checkpointRepo.Save(ctx, &cp)
	if errors.Is(err, models.ErrCheckpointMismatch) {
		log.Printf("Session %s: replicas diverged at sequence %d", sessionID, cp.SequenceNumber)
	}
	return err
}

// EventsSince returns the journal after sequenceNumber, for resyncs.
func (s *RelayService) EventsSince(ctx context.Context, sessionID uuid.UUID, sequenceNumber int64) ([]*models.SyncEvent, error) {
	events, err := s.journalRepo.GetSinceSequence(ctx, sessionID, sequenceNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}

// Head is the last sequence number assigned in a session. Connections
// announce it periodically so replicas can detect a lost tail.
func (s *RelayService) Head(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	seq, err := s.journalRepo.LatestSequence(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to get head: %w", err)
	}
	return seq, nil
}

func (s *RelayService) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan *models.SyncEvent, func(), error) {
	return s.broadcaster.Subscribe(ctx, sessionID)
}

func (s *RelayService) getSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *RelayService) dropSessionData(ctx context.Context, id uuid.UUID) error {
	if err := s.journalRepo.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete journal: %w", err)
	}
	if err := s.checkpointRepo.Delete(ctx, id); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if err := s.presenceRepo.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	return nil
}
