// Package render provides drawing surfaces for the view: an in-memory call
// recorder and a PDF document.
package render

import (
	"sync"

	"github.com/prudhvinik1/syncboard/internal/models"
)

type Op string

const (
	OpBegin   Op = "begin"
	OpSegment Op = "segment"
	OpClear   Op = "clear"
)

type Call struct {
	Op       Op
	From, To models.Point
}

// Recorder keeps every rendering call in order. Segments holds the marks
// currently visible, i.e. everything since the last clear.
type Recorder struct {
	mu       sync.Mutex
	calls    []Call
	segments [][2]models.Point
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) BeginStroke() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: OpBegin})
}

func (r *Recorder) DrawSegment(from, to models.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: OpSegment, From: from, To: to})
	r.segments = append(r.segments, [2]models.Point{from, to})
}

func (r *Recorder) ClearSurface() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: OpClear})
	r.segments = nil
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

func (r *Recorder) Segments() [][2]models.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]models.Point(nil), r.segments...)
}

// Reset forgets recorded calls without touching the visible segments.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
