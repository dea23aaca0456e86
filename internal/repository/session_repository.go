package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// SessionRepository reads teacher sessions from the admin backend's classes and labs tables.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const listSessionsForTeacherQuery = `
SELECT CAST(id AS TEXT) AS id, teacher_name, day, time_slot, COALESCE(room, '') AS room, code, name, 'lecture' AS kind
FROM classes WHERE LOWER(teacher_name) = LOWER($1)
UNION ALL
SELECT CAST(id AS TEXT) AS id, teacher_name, day, time_slot, COALESCE(room, '') AS room, code, name, 'lab' AS kind
FROM labs WHERE LOWER(teacher_name) = LOWER($1)`

// ListSessionsForTeacher merges the teacher's classes and labs. Ordering is left to the caller.
func (r *SessionRepository) ListSessionsForTeacher(ctx context.Context, teacher string) ([]models.TeacherSession, error) {
	teacher = strings.TrimSpace(teacher)
	if teacher == "" {
		return []models.TeacherSession{}, nil
	}

	sessions := make([]models.TeacherSession, 0)
	if err := r.db.SelectContext(ctx, &sessions, listSessionsForTeacherQuery, teacher); err != nil {
		return nil, fmt.Errorf("list sessions for teacher: %w", err)
	}
	return sessions, nil
}
