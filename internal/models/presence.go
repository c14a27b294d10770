package models

import (
	"time"

	"github.com/google/uuid"
)

type Presence struct {
	SessionID uuid.UUID `json:"session_id"`
	ReplicaID uuid.UUID `json:"replica_id"`
	Status    string    `json:"status"`
	LastSeen  time.Time `json:"last_seen"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)
