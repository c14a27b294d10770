// Package replica assembles one participant: the replicated model, its view,
// the local input controller, and the session that orders everything.
//
// All of a replica's work runs one item at a time on a mailbox. Session
// deliveries and local input only enqueue; Run (or Drain) executes.
package replica

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/syncboard/internal/canvas"
	"github.com/prudhvinik1/syncboard/internal/eventbus"
	"github.com/prudhvinik1/syncboard/internal/input"
	"github.com/prudhvinik1/syncboard/internal/models"
	"github.com/prudhvinik1/syncboard/internal/session"
	"github.com/prudhvinik1/syncboard/internal/view"
)

const DefaultGapTimeout = 2 * time.Second

type Config struct {
	// ReplicaID defaults to a random UUID.
	ReplicaID uuid.UUID
	// Scope defaults to models.ScopeCanvas.
	Scope models.Scope
	Input input.Config
	// CheckpointEvery offers a checkpoint whenever the applied sequence
	// number is a multiple of it. Zero disables checkpoints.
	CheckpointEvery int64
	// GapTimeout is how long events may wait behind a gap before a resync.
	GapTimeout time.Duration
}

type op func(ctx context.Context)

type Replica struct {
	id        uuid.UUID
	sessionID uuid.UUID
	cfg       Config
	session   session.Session

	bus     *eventbus.Bus
	model   *canvas.Model
	view    *view.View
	input   *input.Controller
	orderer *session.Orderer

	// context of the op being executed, used by input emits
	loopCtx  context.Context
	gapSince time.Time

	mu    sync.Mutex
	queue []op
	wake  chan struct{}
}

// New joins sess, rebuilds the canvas from the welcome (checkpoint plus
// journal tail) and renders it once on renderer.
func New(ctx context.Context, sess session.Session, renderer view.Renderer, cfg Config) (*Replica, error) {
	if cfg.ReplicaID == uuid.Nil {
		cfg.ReplicaID = uuid.New()
	}
	if cfg.Scope == "" {
		cfg.Scope = models.ScopeCanvas
	}
	if cfg.GapTimeout <= 0 {
		cfg.GapTimeout = DefaultGapTimeout
	}

	r := &Replica{
		id:      cfg.ReplicaID,
		cfg:     cfg,
		session: sess,
		bus:     eventbus.New(),
		wake:    make(chan struct{}, 1),
		loopCtx: context.Background(),
	}
	r.model = canvas.NewModel(r.bus, cfg.Scope)

	// 1. Join; deliveries queue up until the loop runs
	if hw, ok := sess.(session.HeadWatcher); ok {
		hw.OnHead(r.observeHead)
	}
	welcome, err := sess.Join(ctx, r.id, r.deliver)
	if err != nil {
		return nil, err
	}
	r.sessionID = welcome.SessionID

	// 2. Start from the checkpoint, then replay what came after it
	var applied int64
	if welcome.Checkpoint != nil {
		r.model.Restore(welcome.Checkpoint.State)
		applied = welcome.Checkpoint.SequenceNumber
	}
	r.orderer = session.NewOrderer(applied)
	for _, ev := range welcome.Events {
		for _, ready := range r.orderer.Accept(ev) {
			r.apply(ready)
		}
	}

	// 3. Only now attach the view, so the replay above is drawn once
	r.view = view.New(r.model.Snapshot(), r.bus, cfg.Scope, renderer, sess)
	r.input = input.NewController(cfg.Input, func(ev models.DrawEvent) {
		r.view.SubmitStroke(r.loopCtx, ev)
	})

	log.Printf("replica %s joined session %s at sequence %d", r.id, r.sessionID, r.orderer.Applied())
	return r, nil
}

func (r *Replica) ID() uuid.UUID        { return r.id }
func (r *Replica) SessionID() uuid.UUID { return r.sessionID }

// PointerDown, PointerMove and PointerUp feed the input controller.
func (r *Replica) PointerDown() {
	r.enqueue(func(context.Context) { r.input.PointerDown() })
}

func (r *Replica) PointerMove(p models.Point) {
	r.enqueue(func(context.Context) { r.input.PointerMove(p) })
}

func (r *Replica) PointerUp() {
	r.enqueue(func(context.Context) { r.input.PointerUp() })
}

// Clear requests a clear of the shared canvas.
func (r *Replica) Clear() {
	r.enqueue(func(ctx context.Context) { r.view.SubmitClear(ctx) })
}

// Snapshot returns the model state. Call it from the goroutine that drives
// Drain, or after Run has returned.
func (r *Replica) Snapshot() models.CanvasState {
	return r.model.Snapshot()
}

// Applied is the last sequence number applied to the model. Same caveat as
// Snapshot.
func (r *Replica) Applied() int64 {
	return r.orderer.Applied()
}

// Run executes queued work until ctx is done.
func (r *Replica) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.GapTimeout / 2)
	defer ticker.Stop()

	for {
		r.Drain(ctx)
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-r.wake:
		case now := <-ticker.C:
			r.checkGap(ctx, now)
		}
	}
}

// Drain executes queued work, including work queued while draining, until
// the mailbox is empty. It must not run concurrently with Run.
func (r *Replica) Drain(ctx context.Context) {
	r.loopCtx = ctx
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		next := r.queue[0]
		r.queue[0] = nil
		r.queue = r.queue[1:]
		r.mu.Unlock()

		next(ctx)
	}
}

// Close detaches the view and leaves the session.
func (r *Replica) Close() error {
	r.view.Close()
	return r.session.Close()
}

func (r *Replica) enqueue(fn op) {
	r.mu.Lock()
	r.queue = append(r.queue, fn)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Replica) deliver(ev *models.SyncEvent) {
	r.enqueue(func(ctx context.Context) { r.receive(ctx, ev) })
}

func (r *Replica) observeHead(head int64) {
	r.enqueue(func(ctx context.Context) {
		r.orderer.Observe(head)
		r.checkGap(ctx, time.Now())
	})
}

func (r *Replica) receive(ctx context.Context, ev *models.SyncEvent) {
	for _, ready := range r.orderer.Accept(ev) {
		r.apply(ready)
		r.maybeCheckpoint(ctx, ready.SequenceNumber)
	}
	r.checkGap(ctx, time.Now())
}

// apply hands one ordered event to the model through the bus.
func (r *Replica) apply(se *models.SyncEvent) {
	ev, err := se.Decode()
	if err != nil {
		// every replica skips the same undecodable bytes
		log.Printf("replica %s: skipping event %d: %v", r.id, se.SequenceNumber, err)
		return
	}
	r.bus.Publish(r.cfg.Scope, ev)
}

func (r *Replica) maybeCheckpoint(ctx context.Context, seq int64) {
	if r.cfg.CheckpointEvery <= 0 || seq%r.cfg.CheckpointEvery != 0 {
		return
	}

	cp := models.NewCheckpoint(r.sessionID, seq, r.model.Snapshot())
	err := r.session.Checkpoint(ctx, cp)
	switch {
	case err == nil, errors.Is(err, models.ErrStaleCheckpoint):
	case errors.Is(err, models.ErrCheckpointMismatch):
		log.Printf("replica %s: DIVERGED at sequence %d (digest %x)", r.id, seq, cp.Digest)
	default:
		log.Printf("replica %s: failed to offer checkpoint %d: %v", r.id, seq, err)
	}
}

func (r *Replica) checkGap(ctx context.Context, now time.Time) {
	if !r.orderer.Waiting() {
		r.gapSince = time.Time{}
		return
	}
	if r.gapSince.IsZero() {
		r.gapSince = now
		return
	}
	if now.Sub(r.gapSince) < r.cfg.GapTimeout {
		return
	}

	log.Printf("replica %s: gap after sequence %d, requesting resync", r.id, r.orderer.Applied())
	if err := r.session.Resync(ctx, r.orderer.Applied()); err != nil {
		log.Printf("replica %s: failed to resync: %v", r.id, err)
	}
	r.gapSince = now
}
