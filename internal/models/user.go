package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FullName  string    `json:"full_name" db:"full_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FaceDescriptor is one registered face embedding for a user. A user may
// own several descriptors; records are immutable once created, so a
// re-registration inserts a new row rather than editing the vector.
type FaceDescriptor struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	Embedding     []float32  `json:"-" db:"embedding"`
	Quality       *float64   `json:"quality,omitempty" db:"quality"`
	IsPrimary     bool       `json:"is_primary" db:"is_primary"`
	SourcePhotoID *uuid.UUID `json:"source_photo_id,omitempty" db:"source_photo_id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}
