// Package canvas holds the replicated whiteboard model. Every replica runs
// one Model and feeds it the session's ordered event stream; the model reads
// nothing else, so equal prefixes of the stream give equal states.
package canvas

import (
	"github.com/prudhvinik1/syncboard/internal/eventbus"
	"github.com/prudhvinik1/syncboard/internal/models"
)

// ReplicableModel is the capability a replica needs from its shared state.
type ReplicableModel interface {
	Init()
	Apply(ev models.Event)
	Snapshot() models.CanvasState
}

type Model struct {
	bus   *eventbus.Bus
	scope models.Scope
	state models.CanvasState
	// stroke ID -> index in state.Strokes
	index map[string]int
}

var _ ReplicableModel = (*Model)(nil)

// NewModel initializes an empty model and subscribes it to draw and clear
// events on bus. Derived events are published back on the same scope.
func NewModel(bus *eventbus.Bus, scope models.Scope) *Model {
	m := &Model{bus: bus, scope: scope}
	m.Init()

	bus.Subscribe(scope, models.KindDraw, m.Apply)
	bus.Subscribe(scope, models.KindClear, m.Apply)
	return m
}

func (m *Model) Init() {
	m.state = models.CanvasState{Strokes: []models.Stroke{}}
	m.index = make(map[string]int)
}

// Apply routes a replicable event to its handler. Other kinds are ignored.
func (m *Model) Apply(ev models.Event) {
	switch e := ev.(type) {
	case models.DrawEvent:
		m.OnDraw(e)
	case models.ClearEvent:
		m.OnClear()
	}
}

// OnDraw creates or replaces the stroke identified by the event. Draws with
// no points leave the state untouched and publish nothing.
//
// A draw without a StrokeID is matched by content: it replaces the last
// stroke when that stroke is anonymous and a prefix of its points. Two
// anonymous gestures where the second starts by repeating the first (two
// taps on the same spot, say) therefore merge into one stroke. The input
// controller always sets StrokeID, so only hand-built events hit this.
func (m *Model) OnDraw(ev models.DrawEvent) {
	if len(ev.Points) == 0 {
		return
	}

	stroke := models.Stroke{
		ID:     ev.StrokeID,
		Points: append([]models.Point(nil), ev.Points...),
	}

	idx, ok := m.locate(ev)
	if ok {
		m.state.Strokes[idx] = stroke
	} else {
		idx = len(m.state.Strokes)
		m.state.Strokes = append(m.state.Strokes, stroke)
		if ev.StrokeID != "" {
			m.index[ev.StrokeID] = idx
		}
	}

	m.bus.Publish(m.scope, models.StateChanged{State: m.Snapshot(), Stroke: idx})
}

// OnClear empties the canvas. Cleared is published even if it was empty.
func (m *Model) OnClear() {
	m.Init()
	m.bus.Publish(m.scope, models.Cleared{})
}

// Snapshot returns the current state. Strokes are immutable once stored, so
// only the outer slice is copied.
func (m *Model) Snapshot() models.CanvasState {
	strokes := make([]models.Stroke, len(m.state.Strokes))
	copy(strokes, m.state.Strokes)
	return models.CanvasState{Strokes: strokes}
}

// Restore replaces the state with a checkpoint. No event is published.
func (m *Model) Restore(state models.CanvasState) {
	m.Init()
	m.state = state.Clone()
	for i, s := range m.state.Strokes {
		if s.ID != "" {
			m.index[s.ID] = i
		}
	}
}

// locate finds the stroke a draw continues. Identified strokes are looked up
// by ID; anonymous draws continue the most recent stroke when it is an
// anonymous prefix of the incoming points.
func (m *Model) locate(ev models.DrawEvent) (int, bool) {
	if ev.StrokeID != "" {
		idx, ok := m.index[ev.StrokeID]
		return idx, ok
	}

	n := len(m.state.Strokes)
	if n == 0 {
		return 0, false
	}
	last := m.state.Strokes[n-1]
	if last.ID != "" || !isPrefix(last.Points, ev.Points) {
		return 0, false
	}
	return n - 1, true
}

func isPrefix(prefix, points []models.Point) bool {
	if len(prefix) > len(points) {
		return false
	}
	for i := range prefix {
		if prefix[i] != points[i] {
			return false
		}
	}
	return true
}
