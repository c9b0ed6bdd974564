package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceshare/internal/models"
	"github.com/your-org/faceshare/internal/queue"
	"github.com/your-org/faceshare/internal/storage"
	"github.com/your-org/faceshare/pkg/dto"
)

type PhotoHandler struct {
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	producer *queue.Producer
}

func NewPhotoHandler(db *storage.PostgresStore, minio *storage.MinIOStore, producer *queue.Producer) *PhotoHandler {
	return &PhotoHandler{db: db, minio: minio, producer: producer}
}

// Upload accepts a photo, persists it as PENDING, enqueues the
// pipeline task and returns immediately. The caller polls the photo
// status; it never waits for detection or sharing.
func (h *PhotoHandler) Upload(c *gin.Context) {
	ownerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	owner, err := h.db.GetUser(c.Request.Context(), ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if owner == nil {
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

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	photoID := uuid.New()
	objectKey := storage.PhotoKey(ownerID, photoID, fileHeader.Filename)

	if err := h.minio.PutObject(c.Request.Context(), objectKey, data, mimeType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	photo := &models.Photo{
		ID:        photoID,
		UserID:    ownerID,
		FileName:  fileHeader.Filename,
		ObjectKey: objectKey,
		FileSize:  int64(len(data)),
		MimeType:  mimeType,
	}
	if err := h.db.CreatePhoto(c.Request.Context(), photo); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	task := models.PhotoTask{
		PhotoID:       photo.ID,
		OwnerID:       ownerID,
		ObjectKey:     objectKey,
		CorrelationID: uuid.NewString(),
		EnqueuedAt:    time.Now(),
	}
	if err := h.producer.PublishPhotoTask(c.Request.Context(), photo.ID.String(), task); err != nil {
		// The photo stays PENDING; the sweeper re-enqueues it.
		slog.Warn("enqueue photo task", "photo_id", photo.ID, "error", err)
	}

	c.JSON(http.StatusAccepted, toPhotoResponse(photo))
}

// Get returns a single photo; the processing status field is how
// callers observe pipeline progress.
func (h *PhotoHandler) Get(c *gin.Context) {
	photoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := h.db.GetPhoto(c.Request.Context(), photoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if photo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	c.JSON(http.StatusOK, toPhotoResponse(photo))
}

// Content proxies the photo bytes from object storage.
func (h *PhotoHandler) Content(c *gin.Context) {
	photoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := h.db.GetPhoto(c.Request.Context(), photoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if photo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), photo.ObjectKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo content not found"})
		return
	}

	c.Data(http.StatusOK, photo.MimeType, data)
}

func (h *PhotoHandler) ListByUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	photos, err := h.db.ListUserPhotos(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toPhotoListResponse(photos))
}

// ListShared returns the photos delivered to a user by the fan-out.
func (h *PhotoHandler) ListShared(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	photos, err := h.db.ListSharedWithRecipient(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toPhotoListResponse(photos))
}

func toPhotoResponse(p *models.Photo) dto.PhotoResponse {
	return dto.PhotoResponse{
		ID:               p.ID,
		UserID:           p.UserID,
		FileName:         p.FileName,
		FileSize:         p.FileSize,
		MimeType:         p.MimeType,
		ProcessingStatus: string(p.Status),
		FacesDetected:    p.FacesDetected,
		ContentURL:       "/v1/photos/" + p.ID.String() + "/content",
		CreatedAt:        p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        p.UpdatedAt.Format(time.RFC3339),
	}
}

func toPhotoListResponse(photos []models.Photo) dto.PhotoListResponse {
	resp := dto.PhotoListResponse{
		Photos: make([]dto.PhotoResponse, 0, len(photos)),
		Total:  len(photos),
	}
	for i := range photos {
		resp.Photos = append(resp.Photos, toPhotoResponse(&photos[i]))
	}
	return resp
}
