package conversion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clickbridge_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Upload statuses as stored in the journal.
const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
)

// Upload is the journal row recording one conversion upload attempt per
// (lead, conversion type) pair.
type Upload struct {
	ID             uuid.UUID  `db:"id"`
	LeadID         int64      `db:"lead_id"`
	ConversionType string     `db:"conversion_type"`
	Status         string     `db:"status"`
	GCLID          string     `db:"gclid"`
	GBRAID         string     `db:"gbraid"`
	LastError      *string    `db:"last_error"`
	CreatedAt      time.Time  `db:"created_at"`
	UploadedAt     *time.Time `db:"uploaded_at"`
}

// Repository provides database operations for the conversion upload journal.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new conversion journal repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Claim records a pending upload for the (lead, conversion type) pair. The
// journal's unique constraint makes this the at-most-once gate: the first
// caller gets the row back, every later caller gets claimed=false.
func (r *Repository) Claim(ctx context.Context, leadID int64, conversionType, gclid, gbraid string) (uuid.UUID, bool, error) {
	query := `
		INSERT INTO conversion_uploads (id, lead_id, conversion_type, status, gclid, gbraid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (lead_id, conversion_type) DO NOTHING
		RETURNING id`

	id := uuid.New()
	err := r.pool.QueryRow(ctx, query, id, leadID, conversionType, StatusPending, gclid, gbraid).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to claim conversion upload: %w", err)
	}
	return id, true, nil
}

// GetByID retrieves a journal row.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Upload, error) {
	query := `SELECT id, lead_id, conversion_type, status, gclid, gbraid, last_error, created_at, uploaded_at
		FROM conversion_uploads WHERE id = $1`

	var upload Upload
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&upload.ID, &upload.LeadID, &upload.ConversionType, &upload.Status,
		&upload.GCLID, &upload.GBRAID, &upload.LastError, &upload.CreatedAt, &upload.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("conversion upload not found")
		}
		return nil, fmt.Errorf("failed to get conversion upload: %w", err)
	}
	return &upload, nil
}

// MarkUploaded transitions a journal row to uploaded.
func (r *Repository) MarkUploaded(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE conversion_uploads SET status = $2, last_error = NULL, uploaded_at = now() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, StatusUploaded); err != nil {
		return fmt.Errorf("failed to mark conversion uploaded: %w", err)
	}
	return nil
}

// MarkFailed records the terminal failure reason on a journal row.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE conversion_uploads SET status = $2, last_error = $3 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, StatusFailed, reason); err != nil {
		return fmt.Errorf("failed to mark conversion failed: %w", err)
	}
	return nil
}

// ListFailed returns failed journal rows for the backfill command, oldest
// first.
func (r *Repository) ListFailed(ctx context.Context, limit int) ([]Upload, error) {
	query := `SELECT id, lead_id, conversion_type, status, gclid, gbraid, last_error, created_at, uploaded_at
		FROM conversion_uploads WHERE status = $1 ORDER BY created_at ASC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed conversions: %w", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var upload Upload
		if err := rows.Scan(
			&upload.ID, &upload.LeadID, &upload.ConversionType, &upload.Status,
			&upload.GCLID, &upload.GBRAID, &upload.LastError, &upload.CreatedAt, &upload.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversion upload: %w", err)
		}
		uploads = append(uploads, upload)
	}
	return uploads, rows.Err()
}

// Requeue moves a failed row back to pending before it is re-enqueued.
func (r *Repository) Requeue(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE conversion_uploads SET status = $2, last_error = NULL WHERE id = $1 AND status = $3`
	if _, err := r.pool.Exec(ctx, query, id, StatusPending, StatusFailed); err != nil {
		return fmt.Errorf("failed to requeue conversion upload: %w", err)
	}
	return nil
}
