// Package view renders the replicated canvas for one participant and forwards
// that participant's gestures into the session.
package view

import (
	"context"
	"log"

	"github.com/prudhvinik1/syncboard/internal/eventbus"
	"github.com/prudhvinik1/syncboard/internal/models"
)

// Renderer is the drawing surface. It is the only place marks are made.
type Renderer interface {
	BeginStroke()
	DrawSegment(from, to models.Point)
	ClearSurface()
}

// Publisher sends a replicable event into the session's total order.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

type View struct {
	renderer  Renderer
	publisher Publisher
	scope     models.Scope
	// stroke index -> points already drawn
	drawn       map[int]int
	unsubscribe []func()
}

// New draws every stroke of snapshot in order and then follows the model's
// derived events on bus.
func New(snapshot models.CanvasState, bus *eventbus.Bus, scope models.Scope, renderer Renderer, publisher Publisher) *View {
	v := &View{
		renderer:  renderer,
		publisher: publisher,
		scope:     scope,
		drawn:     make(map[int]int),
	}
	v.initialRender(snapshot)

	v.unsubscribe = append(v.unsubscribe,
		bus.Subscribe(scope, models.KindStateChanged, func(ev models.Event) {
			v.onStateChanged(ev.(models.StateChanged))
		}),
		bus.Subscribe(scope, models.KindCleared, func(models.Event) {
			v.onCleared()
		}),
	)
	return v
}

// SubmitStroke publishes a local gesture. The model sees it only once the
// session delivers it back in order.
func (v *View) SubmitStroke(ctx context.Context, ev models.DrawEvent) {
	v.submit(ctx, ev)
}

// SubmitClear publishes a clear request.
func (v *View) SubmitClear(ctx context.Context) {
	v.submit(ctx, models.ClearEvent{})
}

// Close stops following the model.
func (v *View) Close() {
	for _, unsubscribe := range v.unsubscribe {
		unsubscribe()
	}
	v.unsubscribe = nil
}

func (v *View) submit(ctx context.Context, ev models.Event) {
	if err := v.publisher.Publish(ctx, ev); err != nil {
		log.Printf("view: failed to publish %s event: %v", ev.Kind(), err)
	}
}

func (v *View) initialRender(state models.CanvasState) {
	for i, stroke := range state.Strokes {
		v.drawStroke(i, stroke.Points)
	}
}

// onStateChanged draws only the part of the changed stroke not yet on screen.
func (v *View) onStateChanged(ev models.StateChanged) {
	if ev.Stroke < 0 || ev.Stroke >= len(ev.State.Strokes) {
		return
	}
	v.drawStroke(ev.Stroke, ev.State.Strokes[ev.Stroke].Points)
}

func (v *View) onCleared() {
	v.renderer.ClearSurface()
	v.drawn = make(map[int]int)
}

func (v *View) drawStroke(idx int, points []models.Point) {
	if len(points) == 0 {
		return
	}

	done := v.drawn[idx]
	if done > len(points) {
		// replaced by a shorter stroke; draw it again from the start
		done = 0
	}
	if done == len(points) {
		return
	}

	v.renderer.BeginStroke()
	if len(points) == 1 {
		v.renderer.DrawSegment(points[0], points[0])
	}
	start := done
	if start < 1 {
		start = 1
	}
	for i := start; i < len(points); i++ {
		v.renderer.DrawSegment(points[i-1], points[i])
	}
	v.drawn[idx] = len(points)
}
