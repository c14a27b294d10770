package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/models"
)

// LocalHub is an in-process SyncSession. Sequencing and fan-out happen under
// one lock, so every member observes the same order.
type LocalHub struct {
	mu         sync.Mutex
	id         uuid.UUID
	seq        int64
	checkpoint *models.Checkpoint
	// events sequenced after checkpoint
	journal []*models.SyncEvent
	members []*LocalSession
}

func NewLocalHub() *LocalHub {
	return &LocalHub{id: uuid.New()}
}

func (h *LocalHub) ID() uuid.UUID {
	return h.id
}

// Session returns a fresh handle for one replica.
func (h *LocalHub) Session() *LocalSession {
	return &LocalSession{hub: h}
}

// Sequence is the number of the last sequenced event.
func (h *LocalHub) Sequence() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// JournalLen is the number of events retained after the latest checkpoint.
func (h *LocalHub) JournalLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.journal)
}

func (h *LocalHub) join(s *LocalSession) *models.Welcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.members = append(h.members, s)

	welcome := &models.Welcome{
		SessionID: h.id,
		Events:    append([]*models.SyncEvent(nil), h.journal...),
	}
	if h.checkpoint != nil {
		cp := *h.checkpoint
		cp.State = cp.State.Clone()
		welcome.Checkpoint = &cp
	}
	return welcome
}

func (h *LocalHub) leave(s *LocalSession) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, m := range h.members {
		if m == s {
			h.members = append(h.members[:i:i], h.members[i+1:]...)
			return
		}
	}
}

func (h *LocalHub) publish(replicaID uuid.UUID, ev models.Event) error {
	kind, payload, err := models.EncodeEvent(ev)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	se := &models.SyncEvent{
		ID:             uuid.New(),
		SessionID:      h.id,
		ReplicaID:      replicaID,
		EventType:      kind,
		SequenceNumber: h.seq,
		Payload:        payload,
		CreatedAt:      time.Now(),
	}
	h.journal = append(h.journal, se)

	for _, m := range h.members {
		m.deliver(se)
	}
	return nil
}

func (h *LocalHub) saveCheckpoint(cp models.Checkpoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cp.SequenceNumber > h.seq {
		return fmt.Errorf("checkpoint at %d is ahead of sequence %d", cp.SequenceNumber, h.seq)
	}
	if err := h.checkpoint.Accepts(cp); err != nil {
		return err
	}

	cp.SessionID = h.id
	cp.State = cp.State.Clone()
	cp.CreatedAt = time.Now()
	h.checkpoint = &cp

	// compact: late joiners start from the checkpoint
	kept := h.journal[:0:0]
	for _, ev := range h.journal {
		if ev.SequenceNumber > cp.SequenceNumber {
			kept = append(kept, ev)
		}
	}
	h.journal = kept
	return nil
}

func (h *LocalHub) resync(s *LocalSession, after int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ev := range h.journal {
		if ev.SequenceNumber > after {
			s.deliver(ev)
		}
	}
}

// LocalSession is one member's handle on a LocalHub.
type LocalSession struct {
	hub       *LocalHub
	replicaID uuid.UUID
	deliver   Deliver
	joined    bool
	closed    bool
}

var _ Session = (*LocalSession)(nil)

func (s *LocalSession) Join(_ context.Context, replicaID uuid.UUID, deliver Deliver) (*models.Welcome, error) {
	if s.closed {
		return nil, ErrClosed
	}
	s.replicaID = replicaID
	s.deliver = deliver
	s.joined = true
	return s.hub.join(s), nil
}

func (s *LocalSession) Publish(_ context.Context, ev models.Event) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.hub.publish(s.replicaID, ev)
}

func (s *LocalSession) Checkpoint(_ context.Context, cp models.Checkpoint) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.hub.saveCheckpoint(cp)
}

func (s *LocalSession) Resync(_ context.Context, after int64) error {
	if err := s.usable(); err != nil {
		return err
	}
	s.hub.resync(s, after)
	return nil
}

func (s *LocalSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.joined {
		s.hub.leave(s)
	}
	return nil
}

func (s *LocalSession) usable() error {
	if s.closed {
		return ErrClosed
	}
	if !s.joined {
		return ErrNotJoined
	}
	return nil
}
