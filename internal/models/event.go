package models

// Scope groups related event kinds on a bus.
type Scope string

const ScopeCanvas Scope = "canvas"

// EventKind is the tag of an Event variant.
type EventKind string

const (
	KindDraw         EventKind = "draw"
	KindClear        EventKind = "clear"
	KindStateChanged EventKind = "state_changed"
	KindCleared      EventKind = "cleared"
)

// Topic is the subscription key of the event bus.
type Topic struct {
	Scope Scope
	Kind  EventKind
}

// Event is the closed set of events exchanged between input, model and view.
// DrawEvent and ClearEvent are replicated through the session; StateChanged
// and Cleared are derived locally by the model.
type Event interface {
	Kind() EventKind
	isEvent()
}

// DrawEvent carries every point of the in-progress stroke so far.
type DrawEvent struct {
	StrokeID string  `json:"stroke_id,omitempty"`
	Points   []Point `json:"points"`
}

// ClearEvent resets the canvas.
type ClearEvent struct{}

// StateChanged is published by the model after a draw. Stroke is the index
// of the stroke the draw created or replaced.
type StateChanged struct {
	State  CanvasState
	Stroke int
}

// Cleared is published by the model after a clear.
type Cleared struct{}

func (DrawEvent) Kind() EventKind    { return KindDraw }
func (ClearEvent) Kind() EventKind   { return KindClear }
func (StateChanged) Kind() EventKind { return KindStateChanged }
func (Cleared) Kind() EventKind      { return KindCleared }

func (DrawEvent) isEvent()    {}
func (ClearEvent) isEvent()   {}
func (StateChanged) isEvent() {}
func (Cleared) isEvent()      {}

// Replicable reports whether events of this kind travel through the session.
func (k EventKind) Replicable() bool {
	return k == KindDraw || k == KindClear
}
