package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownEvent = errors.New("unknown or non-replicable event kind")

// EncodeEvent serializes a replicable event into its wire kind and payload.
func EncodeEvent(ev Event) (EventKind, json.RawMessage, error) {
	if ev == nil || !ev.Kind().Replicable() {
		return "", nil, ErrUnknownEvent
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal %s event: %w", ev.Kind(), err)
	}
	return ev.Kind(), payload, nil
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(kind EventKind, payload json.RawMessage) (Event, error) {
	switch kind {
	case KindDraw:
		var ev DrawEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal draw event: %w", err)
		}
		return ev, nil
	case KindClear:
		return ClearEvent{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
}

// Decode returns the event carried by a sequenced SyncEvent.
func (e *SyncEvent) Decode() (Event, error) {
	return DecodeEvent(e.EventType, e.Payload)
}
