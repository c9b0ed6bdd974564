package models

import (
	"time"

	"github.com/google/uuid"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "PENDING"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusCompleted  ProcessingStatus = "COMPLETED"
	StatusFailed     ProcessingStatus = "FAILED"
)

// Terminal reports whether the status is an end state of the pipeline.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
// The state machine only moves forward: PENDING → PROCESSING →
// {COMPLETED, FAILED}. Terminal states are never left, and PROCESSING
// is never skipped or re-entered.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

type Photo struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	UserID        uuid.UUID        `json:"user_id" db:"user_id"`
	FileName      string           `json:"file_name" db:"file_name"`
	ObjectKey     string           `json:"object_key" db:"object_key"`
	FileSize      int64            `json:"file_size" db:"file_size"`
	MimeType      string           `json:"mime_type" db:"mime_type"`
	Status        ProcessingStatus `json:"processing_status" db:"processing_status"`
	FacesDetected int              `json:"faces_detected" db:"faces_detected"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}
