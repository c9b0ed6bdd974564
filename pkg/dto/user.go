package dto

import "github.com/google/uuid"

type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"full_name" binding:"required"`
}

type UserResponse struct {
	ID                uuid.UUID `json:"id"`
	Email             string    `json:"email"`
	FullName          string    `json:"full_name"`
	HasRegisteredFace bool      `json:"has_registered_face"`
	CreatedAt         string    `json:"created_at"`
}

type FaceDescriptorResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Quality   *float64  `json:"quality,omitempty"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt string    `json:"created_at"`
}
