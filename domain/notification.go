package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification is created by domain events and never deleted.
// Only the read flag changes after creation.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Owner     Identity  `json:"owner"`
	Text      string    `json:"message"`
	Link      *string   `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
