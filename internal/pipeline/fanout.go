package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/your-org/faceshare/internal/models"
)

// fanOut creates one delivery record per matched recipient. The photo
// owner is dropped, duplicates are collapsed, and a matched user that
// no longer exists is skipped with a logged anomaly. A missing
// recipient must not cost the remaining recipients their delivery.
func (r *Runner) fanOut(ctx context.Context, log *slog.Logger, photo *models.Photo, matched []uuid.UUID) (int, error) {
	seen := make(map[uuid.UUID]struct{}, len(matched))
	shares := make([]models.SharedPhoto, 0, len(matched))

	for _, userID := range matched {
		if userID == photo.UserID {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		recipient, err := r.store.GetUser(ctx, userID)
		if err != nil {
			log.Warn("look up recipient", "recipient_id", userID, "error", err)
			continue
		}
		if recipient == nil {
			log.Warn("matched recipient no longer exists", "recipient_id", userID)
			continue
		}

		shares = append(shares, models.SharedPhoto{
			PhotoID:     photo.ID,
			RecipientID: userID,
			Delivered:   true,
		})
	}

	if len(shares) == 0 {
		return 0, nil
	}

	created, err := r.store.CreateSharedPhotos(ctx, shares)
	if err != nil {
		return created, err
	}

	log.Info("photo shared", "recipients", created)
	return created, nil
}
