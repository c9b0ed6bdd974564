package models

import (
	"time"

	"github.com/google/uuid"
)

// PhotoTask is the message published to NATS when a photo is uploaded.
// One task drives exactly one pipeline run.
type PhotoTask struct {
	PhotoID       uuid.UUID `json:"photo_id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	ObjectKey     string    `json:"object_key"`
	CorrelationID string    `json:"correlation_id"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// PhotoProcessed is the outcome event published after a pipeline run
// reaches a terminal state. The API consumes it to notify clients.
type PhotoProcessed struct {
	PhotoID        uuid.UUID        `json:"photo_id"`
	OwnerID        uuid.UUID        `json:"owner_id"`
	Status         ProcessingStatus `json:"status"`
	FacesDetected  int              `json:"faces_detected"`
	MatchedUserIDs []uuid.UUID      `json:"matched_user_ids,omitempty"`
	SharesCreated  int              `json:"shares_created"`
	CorrelationID  string           `json:"correlation_id"`
	CompletedAt    time.Time        `json:"completed_at"`
}
