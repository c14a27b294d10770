// Package testkit holds in-memory stand-ins for the relay's Redis and
// Postgres backed stores, for tests that should not need either.
package testkit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/models"
	"github.com/prudhvinik1/syncboard/internal/repositories"
)

var (
	_ repositories.SessionRepository    = (*SessionRepository)(nil)
	_ repositories.PresenceRepository   = (*PresenceRepository)(nil)
	_ repositories.JournalRepository    = (*JournalRepository)(nil)
	_ repositories.CheckpointRepository = (*CheckpointRepository)(nil)
)

type SessionRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[uuid.UUID]models.Session)}
}

func (r *SessionRepository) Create(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live(id)
}

func (r *SessionRepository) List(_ context.Context) ([]*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*models.Session{}
	for id := range r.sessions {
		if s, err := r.live(id); err == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *SessionRepository) Touch(_ context.Context, id uuid.UUID, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.live(id)
	if err != nil {
		return err
	}
	if expiresAt.After(s.ExpiresAt) {
		s.ExpiresAt = expiresAt
		r.sessions[id] = *s
	}
	return nil
}

func (r *SessionRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.live(id); err != nil {
		return err
	}
	delete(r.sessions, id)
	return nil
}

// Expire makes a session look like its TTL ran out.
func (r *SessionRepository) Expire(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *SessionRepository) live(id uuid.UUID) (*models.Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if !s.ExpiresAt.After(time.Now()) {
		delete(r.sessions, id)
		return nil, repositories.ErrNotFound
	}
	return &s, nil
}

type PresenceRepository struct {
	mu       sync.Mutex
	presence map[uuid.UUID]map[uuid.UUID]models.Presence
}

func NewPresenceRepository() *PresenceRepository {
	return &PresenceRepository{presence: make(map[uuid.UUID]map[uuid.UUID]models.Presence)}
}

func (r *PresenceRepository) SetPresence(_ context.Context, presence *models.Presence) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	presence.LastSeen = time.Now()
	if presence.Status == "" {
		presence.Status = string(models.StatusOnline)
	}
	replicas, ok := r.presence[presence.SessionID]
	if !ok {
		replicas = make(map[uuid.UUID]models.Presence)
		r.presence[presence.SessionID] = replicas
	}
	replicas[presence.ReplicaID] = *presence
	return nil
}

func (r *PresenceRepository) GetPresence(_ context.Context, sessionID, replicaID uuid.UUID) (*models.Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.presence[sessionID][replicaID]; ok {
		return &p, nil
	}
	return &models.Presence{
		SessionID: sessionID,
		ReplicaID: replicaID,
		Status:    string(models.StatusOffline),
	}, nil
}

func (r *PresenceRepository) DeletePresence(_ context.Context, sessionID, replicaID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.presence[sessionID], replicaID)
	return nil
}

func (r *PresenceRepository) ListOnline(_ context.Context, sessionID uuid.UUID) ([]models.Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []models.Presence{}
	for _, p := range r.presence[sessionID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.Before(out[j].LastSeen) })
	return out, nil
}

func (r *PresenceRepository) DeleteSession(_ context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.presence, sessionID)
	return nil
}

type JournalRepository struct {
	mu     sync.Mutex
	events map[uuid.UUID][]*models.SyncEvent
}

func NewJournalRepository() *JournalRepository {
	return &JournalRepository{events: make(map[uuid.UUID][]*models.SyncEvent)}
}

func (r *JournalRepository) Append(_ context.Context, event *models.SyncEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event.ID = uuid.New()
	event.SequenceNumber = int64(len(r.events[event.SessionID]) + 1)
	event.CreatedAt = time.Now()

	stored := *event
	r.events[event.SessionID] = append(r.events[event.SessionID], &stored)
	return nil
}

func (r *JournalRepository) GetSinceSequence(_ context.Context, sessionID uuid.UUID, sequenceNumber int64) ([]*models.SyncEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*models.SyncEvent{}
	for _, ev := range r.events[sessionID] {
		if ev.SequenceNumber > sequenceNumber {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *JournalRepository) LatestSequence(_ context.Context, sessionID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.events[sessionID])), nil
}

func (r *JournalRepository) Sessions(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(r.events))
	for id := range r.events {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *JournalRepository) DeleteSession(_ context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, sessionID)
	return nil
}

// Len is the number of events journaled for a session.
func (r *JournalRepository) Len(sessionID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events[sessionID])
}

type CheckpointRepository struct {
	mu          sync.Mutex
	checkpoints map[uuid.UUID]models.Checkpoint
}

func NewCheckpointRepository() *CheckpointRepository {
	return &CheckpointRepository{checkpoints: make(map[uuid.UUID]models.Checkpoint)}
}

func (r *CheckpointRepository) Get(_ context.Context, sessionID uuid.UUID) (*models.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp, ok := r.checkpoints[sessionID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp.State = cp.State.Clone()
	return &cp, nil
}

func (r *CheckpointRepository) Save(_ context.Context, cp *models.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var existing *models.Checkpoint
	if stored, ok := r.checkpoints[cp.SessionID]; ok {
		existing = &stored
	}
	if err := existing.Accepts(*cp); err != nil {
		return err
	}

	cp.CreatedAt = time.Now()
	stored := *cp
	stored.State = cp.State.Clone()
	r.checkpoints[cp.SessionID] = stored
	return nil
}

func (r *CheckpointRepository) Delete(_ context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.checkpoints[sessionID]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.checkpoints, sessionID)
	return nil
}

// Broadcaster delivers to in-process subscribers in broadcast order.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[uuid.UUID]map[int]chan *models.SyncEvent
	drop   func(*models.SyncEvent) bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uuid.UUID]map[int]chan *models.SyncEvent)}
}

func (b *Broadcaster) Broadcast(_ context.Context, event *models.SyncEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.drop != nil && b.drop(event) {
		return nil
	}
	for _, ch := range b.subs[event.SessionID] {
		cp := *event
		ch <- &cp
	}
	return nil
}

// DropWhen makes every broadcast matching fn get lost.
func (b *Broadcaster) DropWhen(fn func(*models.SyncEvent) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop = fn
}

func (b *Broadcaster) Subscribe(_ context.Context, sessionID uuid.UUID) (<-chan *models.SyncEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan *models.SyncEvent, 1024)
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]chan *models.SyncEvent)
	}
	b.subs[sessionID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[sessionID], id)
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Subscribers is the number of open subscriptions for a session.
func (b *Broadcaster) Subscribers(sessionID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}
