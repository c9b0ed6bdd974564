package dto

import "github.com/google/uuid"

type PhotoResponse struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	FileName         string    `json:"file_name"`
	FileSize         int64     `json:"file_size"`
	MimeType         string    `json:"mime_type"`
	ProcessingStatus string    `json:"processing_status"`
	FacesDetected    int       `json:"faces_detected"`
	ContentURL       string    `json:"content_url"`
	CreatedAt        string    `json:"created_at"`
	UpdatedAt        string    `json:"updated_at"`
}

type PhotoListResponse struct {
	Photos []PhotoResponse `json:"photos"`
	Total  int             `json:"total"`
}

// PhotoProcessedEvent is pushed over the WebSocket feed when a
// pipeline run reaches a terminal state.
type PhotoProcessedEvent struct {
	PhotoID        uuid.UUID   `json:"photo_id"`
	OwnerID        uuid.UUID   `json:"owner_id"`
	Status         string      `json:"status"`
	FacesDetected  int         `json:"faces_detected"`
	MatchedUserIDs []uuid.UUID `json:"matched_user_ids,omitempty"`
	SharesCreated  int         `json:"shares_created"`
	CompletedAt    string      `json:"completed_at"`
}

// WSEvent is a WebSocket message for real-time pipeline outcomes.
type WSEvent struct {
	Type  string              `json:"type"` // photo_processed
	Photo PhotoProcessedEvent `json:"photo"`
}
