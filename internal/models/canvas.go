package models

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Point is a coordinate in canvas space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one continuous pointer-down to pointer-up gesture.
// Its Points slice is never mutated once the stroke is part of a CanvasState;
// updates replace the whole stroke.
type Stroke struct {
	ID     string  `json:"id,omitempty"`
	Points []Point `json:"points"`
}

// CanvasState is the replicated whiteboard. Stroke order is delivery order.
type CanvasState struct {
	Strokes []Stroke `json:"strokes"`
}

// Clone returns a copy that shares no backing arrays with c.
func (c CanvasState) Clone() CanvasState {
	out := CanvasState{Strokes: make([]Stroke, len(c.Strokes))}
	for i, s := range c.Strokes {
		out.Strokes[i] = Stroke{ID: s.ID, Points: append([]Point(nil), s.Points...)}
	}
	return out
}

// Equal reports structural equality of the stroke sequences.
func (c CanvasState) Equal(other CanvasState) bool {
	if len(c.Strokes) != len(other.Strokes) {
		return false
	}
	for i := range c.Strokes {
		a, b := c.Strokes[i], other.Strokes[i]
		if a.ID != b.ID || len(a.Points) != len(b.Points) {
			return false
		}
		for j := range a.Points {
			if a.Points[j] != b.Points[j] {
				return false
			}
		}
	}
	return true
}

// Digest hashes the canonical binary form of the state. Replicas that applied
// the same event prefix produce the same digest.
func (c CanvasState) Digest() uint64 {
	h := xxhash.New()
	var buf [8]byte

	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	writeUint(uint64(len(c.Strokes)))
	for _, s := range c.Strokes {
		writeUint(uint64(len(s.ID)))
		h.WriteString(s.ID)
		writeUint(uint64(len(s.Points)))
		for _, p := range s.Points {
			writeUint(floatBits(p.X))
			writeUint(floatBits(p.Y))
		}
	}
	return h.Sum64()
}

// floatBits folds -0 into 0, which Equal and JSON round trips treat alike.
func floatBits(v float64) uint64 {
	if v == 0 {
		v = 0
	}
	return math.Float64bits(v)
}

// Len returns the number of strokes.
func (c CanvasState) Len() int {
	return len(c.Strokes)
}
