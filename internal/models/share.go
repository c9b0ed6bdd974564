package models

import (
	"time"

	"github.com/google/uuid"
)

// SharedPhoto is one delivery record created by the sharing fan-out.
// One row per (photo, recipient) pair; the recipient is never the
// photo's owner.
type SharedPhoto struct {
	ID          uuid.UUID `json:"id" db:"id"`
	PhotoID     uuid.UUID `json:"photo_id" db:"photo_id"`
	RecipientID uuid.UUID `json:"recipient_id" db:"recipient_id"`
	Delivered   bool      `json:"delivered" db:"delivered"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
