package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one shared whiteboard. It lives until ExpiresAt unless activity
// extends it.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
