package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceshare/internal/detector"
	"github.com/your-org/faceshare/internal/models"
	"github.com/your-org/faceshare/internal/storage"
	"github.com/your-org/faceshare/pkg/dto"
)

type UserHandler struct {
	db  *storage.PostgresStore
	det detector.Detector
}

func NewUserHandler(db *storage.PostgresStore, det detector.Detector) *UserHandler {
	return &UserHandler{db: db, det: det}
}

func (h *UserHandler) Create(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.db.CreateUser(c.Request.Context(), req.Email, req.FullName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(c, user))
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.db.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, h.toResponse(c, &users[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *UserHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := h.db.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, h.toResponse(c, user))
}

// RegisterFace extracts a descriptor from the uploaded image and stores
// it as a new immutable record for the user. The image must contain
// exactly one face.
func (h *UserHandler) RegisterFace(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := h.db.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open file"})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}

	result, err := h.det.Detect(c.Request.Context(), image, fileHeader.Filename)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if len(result.Descriptors) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face found in image"})
		return
	}
	if len(result.Descriptors) > 1 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "image must contain exactly one face"})
		return
	}

	quality := 1.0
	if q := c.PostForm("quality"); q != "" {
		parsed, err := strconv.ParseFloat(q, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quality must be a number in [0,1]"})
			return
		}
		quality = parsed
	}

	// The first descriptor a user registers becomes their primary one.
	hasFace, err := h.db.HasDescriptors(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	descriptor := &models.FaceDescriptor{
		UserID:    userID,
		Embedding: result.Descriptors[0],
		Quality:   &quality,
		IsPrimary: !hasFace,
	}
	if err := h.db.AddFaceDescriptor(c.Request.Context(), descriptor); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.FaceDescriptorResponse{
		ID:        descriptor.ID,
		UserID:    descriptor.UserID,
		Quality:   descriptor.Quality,
		IsPrimary: descriptor.IsPrimary,
		CreatedAt: descriptor.CreatedAt.Format(time.RFC3339),
	})
}

func (h *UserHandler) ListFaces(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	descriptors, err := h.db.ListDescriptorsByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.FaceDescriptorResponse, 0, len(descriptors))
	for _, d := range descriptors {
		resp = append(resp, dto.FaceDescriptorResponse{
			ID:        d.ID,
			UserID:    d.UserID,
			Quality:   d.Quality,
			IsPrimary: d.IsPrimary,
			CreatedAt: d.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *UserHandler) toResponse(c *gin.Context, u *models.User) dto.UserResponse {
	hasFace, err := h.db.HasDescriptors(c.Request.Context(), u.ID)
	if err != nil {
		hasFace = false
	}
	return dto.UserResponse{
		ID:                u.ID,
		Email:             u.Email,
		FullName:          u.FullName,
		HasRegisteredFace: hasFace,
		CreatedAt:         u.CreatedAt.Format(time.RFC3339),
	}
}
