package session

import (
	"github.com/prudhvinik1/syncboard/internal/models"
)

// Orderer turns at-least-once, possibly reordered delivery into an exact
// in-order stream of sequence numbers starting after a known position.
type Orderer struct {
	applied int64
	head    int64
	pending map[int64]*models.SyncEvent
}

// NewOrderer starts after sequence number applied (0 for an empty session).
func NewOrderer(applied int64) *Orderer {
	return &Orderer{applied: applied, pending: make(map[int64]*models.SyncEvent)}
}

// Accept takes one delivered event and returns the events that are now ready
// to apply, in order. Duplicates and already-applied events yield nothing.
func (o *Orderer) Accept(ev *models.SyncEvent) []*models.SyncEvent {
	if ev == nil || ev.SequenceNumber <= o.applied {
		return nil
	}
	if _, ok := o.pending[ev.SequenceNumber]; ok {
		return nil
	}
	o.pending[ev.SequenceNumber] = ev

	var ready []*models.SyncEvent
	for {
		next, ok := o.pending[o.applied+1]
		if !ok {
			break
		}
		delete(o.pending, o.applied+1)
		o.applied++
		ready = append(ready, next)
	}
	return ready
}

// Observe records that the session has sequenced up to head, whether or not
// those events were delivered.
func (o *Orderer) Observe(head int64) {
	if head > o.head {
		o.head = head
	}
}

// Applied is the highest sequence number released so far.
func (o *Orderer) Applied() int64 {
	return o.applied
}

// Waiting reports whether events are missing: buffered behind a gap, or
// announced by Observe but never delivered.
func (o *Orderer) Waiting() bool {
	return len(o.pending) > 0 || o.head > o.applied
}
