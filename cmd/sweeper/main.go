package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceshare/internal/config"
	"github.com/your-org/faceshare/internal/models"
	"github.com/your-org/faceshare/internal/observability"
	"github.com/your-org/faceshare/internal/queue"
	"github.com/your-org/faceshare/internal/storage"
)

// The sweeper is the operational counterpart of the pipeline's durable
// status writes: it re-enqueues PENDING photos whose task was lost and
// fails PROCESSING photos abandoned by a crashed worker.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting FaceShare sweeper",
		"interval", cfg.Pipeline.SweepInterval.String(),
		"pending_deadline", cfg.Pipeline.PendingDeadline.String(),
		"processing_deadline", cfg.Pipeline.ProcessingDeadline.String(),
	)

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(cfg.Pipeline.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep(ctx, cfg, db, producer)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("sweeper stopped")
	cancel()
}

func sweep(ctx context.Context, cfg *config.Config, db *storage.PostgresStore, producer *queue.Producer) {
	now := time.Now()

	// Lost tasks: the photo never left PENDING, so publishing a fresh
	// task restarts the run from the same initial state.
	stale, err := db.ListStalePending(ctx, now.Add(-cfg.Pipeline.PendingDeadline))
	if err != nil {
		slog.Error("list stale pending photos", "error", err)
	} else {
		for _, photo := range stale {
			task := models.PhotoTask{
				PhotoID:       photo.ID,
				OwnerID:       photo.UserID,
				ObjectKey:     photo.ObjectKey,
				CorrelationID: uuid.NewString(),
				EnqueuedAt:    now,
			}
			if err := producer.PublishPhotoTask(ctx, photo.ID.String(), task); err != nil {
				slog.Error("requeue pending photo", "photo_id", photo.ID, "error", err)
				continue
			}
			observability.PhotosRequeued.Inc()
			slog.Info("requeued stuck pending photo", "photo_id", photo.ID, "stuck_since", photo.UpdatedAt)
		}
	}

	// Abandoned runs: a worker took the photo to PROCESSING and died.
	// The run cannot be resumed, only declared failed.
	failed, err := db.FailStaleProcessing(ctx, now.Add(-cfg.Pipeline.ProcessingDeadline))
	if err != nil {
		slog.Error("fail stale processing photos", "error", err)
	} else if failed > 0 {
		slog.Warn("failed abandoned processing photos", "count", failed)
	}
}
