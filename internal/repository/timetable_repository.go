package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// TimetableRepository persists versioned grid payloads.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// CreateVersioned stores snapshot under the next version number of its timetable.
// Version allocation and insert share one transaction holding a per-timetable advisory lock.
func (r *TimetableRepository) CreateVersioned(ctx context.Context, snapshot *models.TimetableSnapshot) (err error) {
	if snapshot == nil {
		return fmt.Errorf("snapshot payload is nil")
	}
	if snapshot.TimetableID == "" {
		return fmt.Errorf("timetable_id is required")
	}
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if len(snapshot.Payload) == 0 {
		snapshot.Payload = types.JSONText(`[]`)
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin timetable snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.insertVersioned(ctx, tx, snapshot); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit timetable snapshot: %w", err)
	}
	return nil
}

func (r *TimetableRepository) insertVersioned(ctx context.Context, exec sqlx.ExtContext, snapshot *models.TimetableSnapshot) error {
	const lockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := exec.ExecContext(ctx, lockQuery, snapshot.TimetableID); err != nil {
		return fmt.Errorf("lock timetable snapshot versions: %w", err)
	}

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_snapshots WHERE timetable_id = $1`
	if err := sqlx.GetContext(ctx, exec, &snapshot.Version, nextVersionQuery, snapshot.TimetableID); err != nil {
		return fmt.Errorf("compute next timetable snapshot version: %w", err)
	}

	const insertQuery = `
INSERT INTO timetable_snapshots (id, timetable_id, version, payload, saved_by, created_at)
VALUES (:id, :timetable_id, :version, :payload, :saved_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, insertQuery, snapshot); err != nil {
		return fmt.Errorf("insert timetable snapshot: %w", err)
	}
	return nil
}

// Latest returns the highest version of a timetable. sql.ErrNoRows is wrapped when none exists.
func (r *TimetableRepository) Latest(ctx context.Context, timetableID string) (*models.TimetableSnapshot, error) {
	const query = `SELECT id, timetable_id, version, payload, saved_by, created_at
FROM timetable_snapshots WHERE timetable_id = $1 ORDER BY version DESC LIMIT 1`
	var snapshot models.TimetableSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, timetableID); err != nil {
		return nil, fmt.Errorf("get latest timetable snapshot: %w", err)
	}
	return &snapshot, nil
}

// ListVersions returns snapshot metadata newest first. Payloads are omitted.
func (r *TimetableRepository) ListVersions(ctx context.Context, timetableID string) ([]models.TimetableSnapshot, error) {
	const query = `SELECT id, timetable_id, version, saved_by, created_at
FROM timetable_snapshots WHERE timetable_id = $1 ORDER BY version DESC`
	snapshots := make([]models.TimetableSnapshot, 0)
	if err := r.db.SelectContext(ctx, &snapshots, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable snapshots: %w", err)
	}
	return snapshots, nil
}
