package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// NotificationRepository stores delivered monitor events.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert writes one log row.
func (r *NotificationRepository) Insert(ctx context.Context, entry *models.NotificationLog) error {
	if entry == nil {
		return fmt.Errorf("notification log is nil")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const query = `
INSERT INTO notification_logs (id, teacher, session_key, kind, title, message, minutes_until_start, created_at)
VALUES (:id, :teacher, :session_key, :kind, :title, :message, :minutes_until_start, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

// ListByTeacher returns the teacher's most recent events, newest first.
func (r *NotificationRepository) ListByTeacher(ctx context.Context, teacher string, limit int) ([]models.NotificationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, teacher, session_key, kind, title, message, minutes_until_start, created_at
FROM notification_logs WHERE LOWER(teacher) = LOWER($1) ORDER BY created_at DESC LIMIT $2`
	logs := make([]models.NotificationLog, 0)
	if err := r.db.SelectContext(ctx, &logs, query, teacher, limit); err != nil {
		return nil, fmt.Errorf("list notification logs: %w", err)
	}
	return logs, nil
}
