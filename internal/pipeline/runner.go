package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceshare/internal/detector"
	"github.com/your-org/faceshare/internal/matching"
	"github.com/your-org/faceshare/internal/models"
	"github.com/your-org/faceshare/internal/observability"
	"github.com/your-org/faceshare/internal/storage"
)

// Store is everything the pipeline needs from the database. Satisfied
// by *storage.PostgresStore; tests use an in-memory implementation.
type Store interface {
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	UpdatePhotoStatus(ctx context.Context, id uuid.UUID, next models.ProcessingStatus) error
	SetFacesDetected(ctx context.Context, id uuid.UUID, count int) error
	MatchCandidates(ctx context.Context, minQuality float64) ([]models.FaceDescriptor, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateSharedPhotos(ctx context.Context, shares []models.SharedPhoto) (int, error)
}

// ObjectStore loads the uploaded photo bytes by their locator.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// EventPublisher receives the outcome event of every finished run.
type EventPublisher interface {
	PublishProcessed(ctx context.Context, ownerID string, event interface{}) error
}

// Runner drives one photo through PENDING → PROCESSING →
// {COMPLETED, FAILED}: detect → match → share → finalize. Runs for
// different photos are independent; within a run the stages are
// strictly sequential.
type Runner struct {
	store      Store
	blobs      ObjectStore
	det        detector.Detector
	matcher    *matching.Matcher
	events     EventPublisher
	minQuality float64
}

func NewRunner(store Store, blobs ObjectStore, det detector.Detector, matcher *matching.Matcher, events EventPublisher, minQuality float64) *Runner {
	return &Runner{
		store:      store,
		blobs:      blobs,
		det:        det,
		matcher:    matcher,
		events:     events,
		minQuality: minQuality,
	}
}

// Process executes one pipeline run. An error return means the run
// never started (unknown photo, storage trouble) and the task may be
// re-delivered; once the run has begun, every failure is converted to
// a persisted FAILED status and Process returns nil.
func (r *Runner) Process(ctx context.Context, task models.PhotoTask) error {
	log := slog.With("photo_id", task.PhotoID, "correlation_id", task.CorrelationID)

	photo, err := r.store.GetPhoto(ctx, task.PhotoID)
	if err != nil {
		return fmt.Errorf("load photo: %w", err)
	}
	if photo == nil {
		return fmt.Errorf("photo %s not found", task.PhotoID)
	}

	// Re-delivered tasks for photos that already left PENDING are
	// dropped; a terminal state is never re-entered.
	if photo.Status != models.StatusPending {
		log.Info("skipping task, photo already picked up", "status", photo.Status)
		return nil
	}

	// Persist PROCESSING before any remote call so a crash mid-run
	// leaves a durable, inspectable signal instead of a silent PENDING.
	if err := r.store.UpdatePhotoStatus(ctx, photo.ID, models.StatusProcessing); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			log.Info("skipping task, lost transition race")
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}

	log.Info("pipeline run started")

	outcome := models.PhotoProcessed{
		PhotoID:       photo.ID,
		OwnerID:       photo.UserID,
		CorrelationID: task.CorrelationID,
	}

	status := r.run(ctx, log, photo, &outcome)

	if err := r.store.UpdatePhotoStatus(ctx, photo.ID, status); err != nil {
		// The terminal write failed; the photo stays PROCESSING until
		// the sweeper fails it.
		log.Error("persist terminal status", "status", status, "error", err)
		return fmt.Errorf("persist terminal status: %w", err)
	}

	observability.PhotosProcessed.WithLabelValues(string(status)).Inc()
	log.Info("pipeline run finished",
		"status", status,
		"faces_detected", outcome.FacesDetected,
		"matched_users", len(outcome.MatchedUserIDs),
		"shares_created", outcome.SharesCreated,
	)

	outcome.Status = status
	outcome.CompletedAt = time.Now()
	if r.events != nil {
		if err := r.events.PublishProcessed(ctx, photo.UserID.String(), outcome); err != nil {
			log.Warn("publish outcome event", "error", err)
		}
	}

	return nil
}

// run executes the stages between PROCESSING and the terminal state.
// It never lets a panic escape: an unexpected failure anywhere inside
// the run becomes FAILED, so the terminal status is always persisted.
func (r *Runner) run(ctx context.Context, log *slog.Logger, photo *models.Photo, outcome *models.PhotoProcessed) (status models.ProcessingStatus) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("pipeline run panicked", "panic", p)
			status = models.StatusFailed
		}
	}()

	start := time.Now()
	image, err := r.blobs.GetObject(ctx, photo.ObjectKey)
	if err != nil {
		log.Error("load photo bytes", "object_key", photo.ObjectKey, "error", err)
		return models.StatusFailed
	}
	observability.StageDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())

	result, err := r.det.Detect(ctx, image, photo.FileName)
	if err != nil {
		// Unavailable and malformed both end the run; no retry here.
		log.Error("face detection failed", "error", err)
		return models.StatusFailed
	}

	outcome.FacesDetected = result.FaceCount
	observability.FacesDetected.Add(float64(result.FaceCount))
	if err := r.store.SetFacesDetected(ctx, photo.ID, result.FaceCount); err != nil {
		log.Error("record face count", "error", err)
		return models.StatusFailed
	}

	// A photo with no faces completes normally.
	if result.FaceCount == 0 || len(result.Descriptors) == 0 {
		log.Info("no faces detected")
		return models.StatusCompleted
	}

	log.Info("faces detected", "count", result.FaceCount)

	start = time.Now()
	candidates, err := r.store.MatchCandidates(ctx, r.minQuality)
	if err != nil {
		log.Error("load match candidates", "error", err)
		return models.StatusFailed
	}

	matched := r.matcher.Match(result.Descriptors, candidates)
	observability.StageDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())
	observability.UsersMatched.Add(float64(len(matched)))
	outcome.MatchedUserIDs = matched

	if len(matched) > 0 {
		log.Info("matched users", "count", len(matched))

		start = time.Now()
		created, err := r.fanOut(ctx, log, photo, matched)
		if err != nil {
			log.Error("sharing fan-out failed", "error", err)
			return models.StatusFailed
		}
		observability.StageDuration.WithLabelValues("share").Observe(time.Since(start).Seconds())
		observability.PhotosShared.Add(float64(created))
		outcome.SharesCreated = created
	}

	return models.StatusCompleted
}
