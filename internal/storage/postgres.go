package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/faceshare/internal/config"
	"github.com/your-org/faceshare/internal/models"
)

// ErrInvalidTransition is returned when a photo status update would
// move the state machine backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid photo status transition")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the tables if they don't exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS photos (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			file_name TEXT NOT NULL,
			object_key TEXT NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			mime_type TEXT NOT NULL DEFAULT '',
			processing_status TEXT NOT NULL DEFAULT 'PENDING',
			faces_detected INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_photos_user ON photos(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_photos_status ON photos(processing_status, updated_at)`,
		`CREATE TABLE IF NOT EXISTS face_descriptors (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			embedding vector(128) NOT NULL,
			quality DOUBLE PRECISION,
			is_primary BOOLEAN NOT NULL DEFAULT false,
			source_photo_id UUID REFERENCES photos(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_descriptors_user ON face_descriptors(user_id)`,
		`CREATE TABLE IF NOT EXISTS shared_photos (
			id UUID PRIMARY KEY,
			photo_id UUID NOT NULL REFERENCES photos(id),
			recipient_id UUID NOT NULL REFERENCES users(id),
			delivered BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (photo_id, recipient_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shared_recipient ON shared_photos(recipient_id, created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, email, fullName string) (*models.User, error) {
	u := &models.User{
		ID:       uuid.New(),
		Email:    email,
		FullName: fullName,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, full_name) VALUES ($1, $2, $3) RETURNING created_at`,
		u.ID, u.Email, u.FullName,
	).Scan(&u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u := &models.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, full_name, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.FullName, &u.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, full_name, created_at FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

// --- Photos ---

func (s *PostgresStore) CreatePhoto(ctx context.Context, p *models.Photo) error {
	// The upload handler assigns the id up front so the object key can
	// embed it before the row exists.
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = models.StatusPending
	return s.pool.QueryRow(ctx,
		`INSERT INTO photos (id, user_id, file_name, object_key, file_size, mime_type, processing_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.FileName, p.ObjectKey, p.FileSize, p.MimeType, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (s *PostgresStore) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	p := &models.Photo{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, file_name, object_key, file_size, mime_type, processing_status, faces_detected, created_at, updated_at
		 FROM photos WHERE id = $1`, id,
	).Scan(&p.ID, &p.UserID, &p.FileName, &p.ObjectKey, &p.FileSize, &p.MimeType,
		&p.Status, &p.FacesDetected, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListUserPhotos(ctx context.Context, userID uuid.UUID) ([]models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, file_name, object_key, file_size, mime_type, processing_status, faces_detected, created_at, updated_at
		 FROM photos WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user photos: %w", err)
	}
	defer rows.Close()

	return scanPhotos(rows)
}

// UpdatePhotoStatus advances the photo state machine. The WHERE clause
// pins the expected predecessor so a concurrent or repeated run cannot
// move a photo backwards or out of a terminal state.
func (s *PostgresStore) UpdatePhotoStatus(ctx context.Context, id uuid.UUID, next models.ProcessingStatus) error {
	var prev models.ProcessingStatus
	switch next {
	case models.StatusProcessing:
		prev = models.StatusPending
	case models.StatusCompleted, models.StatusFailed:
		prev = models.StatusProcessing
	default:
		return fmt.Errorf("%w: cannot move to %s", ErrInvalidTransition, next)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE photos SET processing_status = $1, updated_at = now()
		 WHERE id = $2 AND processing_status = $3`,
		next, id, prev)
	if err != nil {
		return fmt.Errorf("update photo status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: photo %s is not %s", ErrInvalidTransition, id, prev)
	}
	return nil
}

func (s *PostgresStore) SetFacesDetected(ctx context.Context, id uuid.UUID, count int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE photos SET faces_detected = $1, updated_at = now() WHERE id = $2`,
		count, id)
	if err != nil {
		return fmt.Errorf("set faces detected: %w", err)
	}
	return nil
}

// ListStalePending returns PENDING photos whose task has apparently been
// lost (no status change since before the cutoff).
func (s *PostgresStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, file_name, object_key, file_size, mime_type, processing_status, faces_detected, created_at, updated_at
		 FROM photos WHERE processing_status = $1 AND updated_at < $2
		 ORDER BY updated_at`, models.StatusPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	defer rows.Close()

	return scanPhotos(rows)
}

// FailStaleProcessing fails photos stuck in PROCESSING since before the
// cutoff (a worker crashed mid-run). PROCESSING → FAILED is a legal
// forward transition, so the guard of UpdatePhotoStatus is preserved.
func (s *PostgresStore) FailStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE photos SET processing_status = $1, updated_at = now()
		 WHERE processing_status = $2 AND updated_at < $3`,
		models.StatusFailed, models.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stale processing: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPhotos(rows pgx.Rows) ([]models.Photo, error) {
	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.UserID, &p.FileName, &p.ObjectKey, &p.FileSize,
			&p.MimeType, &p.Status, &p.FacesDetected, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// --- Face descriptors ---

// AddFaceDescriptor inserts a new descriptor record. Descriptors are
// immutable; re-registering a face always creates a new row.
func (s *PostgresStore) AddFaceDescriptor(ctx context.Context, d *models.FaceDescriptor) error {
	d.ID = uuid.New()
	vec := pgvector.NewVector(d.Embedding)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO face_descriptors (id, user_id, embedding, quality, is_primary, source_photo_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		d.ID, d.UserID, vec, d.Quality, d.IsPrimary, d.SourcePhotoID,
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("add face descriptor: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDescriptorsByUser(ctx context.Context, userID uuid.UUID) ([]models.FaceDescriptor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, embedding, quality, is_primary, source_photo_id, created_at
		 FROM face_descriptors WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list descriptors: %w", err)
	}
	defer rows.Close()

	return scanDescriptors(rows)
}

// MatchCandidates returns the full candidate pool for matching:
// every descriptor whose quality is unknown or at least minQuality.
func (s *PostgresStore) MatchCandidates(ctx context.Context, minQuality float64) ([]models.FaceDescriptor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, embedding, quality, is_primary, source_photo_id, created_at
		 FROM face_descriptors WHERE quality IS NULL OR quality >= $1`, minQuality)
	if err != nil {
		return nil, fmt.Errorf("match candidates: %w", err)
	}
	defer rows.Close()

	return scanDescriptors(rows)
}

func (s *PostgresStore) HasDescriptors(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM face_descriptors WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has descriptors: %w", err)
	}
	return exists, nil
}

func scanDescriptors(rows pgx.Rows) ([]models.FaceDescriptor, error) {
	var descriptors []models.FaceDescriptor
	for rows.Next() {
		var d models.FaceDescriptor
		var vec pgvector.Vector
		if err := rows.Scan(&d.ID, &d.UserID, &vec, &d.Quality, &d.IsPrimary,
			&d.SourcePhotoID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		d.Embedding = vec.Slice()
		descriptors = append(descriptors, d)
	}
	return descriptors, rows.Err()
}

// --- Shared photos ---

// CreateSharedPhotos inserts the fan-out batch. ON CONFLICT protects the
// (photo, recipient) uniqueness against re-delivered tasks.
func (s *PostgresStore) CreateSharedPhotos(ctx context.Context, shares []models.SharedPhoto) (int, error) {
	if len(shares) == 0 {
		return 0, nil
	}

	created := 0
	for i := range shares {
		shares[i].ID = uuid.New()
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO shared_photos (id, photo_id, recipient_id, delivered)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (photo_id, recipient_id) DO NOTHING`,
			shares[i].ID, shares[i].PhotoID, shares[i].RecipientID, shares[i].Delivered)
		if err != nil {
			return created, fmt.Errorf("create shared photo: %w", err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

// ListSharedWithRecipient returns the photos delivered to a user,
// newest first.
func (s *PostgresStore) ListSharedWithRecipient(ctx context.Context, recipientID uuid.UUID) ([]models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.user_id, p.file_name, p.object_key, p.file_size, p.mime_type, p.processing_status, p.faces_detected, p.created_at, p.updated_at
		 FROM shared_photos sp
		 JOIN photos p ON p.id = sp.photo_id
		 WHERE sp.recipient_id = $1
		 ORDER BY sp.created_at DESC`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list shared photos: %w", err)
	}
	defer rows.Close()

	return scanPhotos(rows)
}
