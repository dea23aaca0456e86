package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type sessionLister interface {
	ListSessionsForTeacher(ctx context.Context, teacher string) ([]models.TeacherSession, error)
}

type sessionCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CachedSessionSource fronts the session repository with a short-lived cache so many monitors polling
// the same teacher hit the database once per TTL. Cache failures fall through to the repository.
type CachedSessionSource struct {
	source  sessionLister
	cache   sessionCache
	ttl     time.Duration
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCachedSessionSource constructs the decorator. A non-positive ttl disables caching.
func NewCachedSessionSource(source sessionLister, store sessionCache, ttl time.Duration, metrics *MetricsService, logger *zap.Logger) *CachedSessionSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSessionSource{source: source, cache: store, ttl: ttl, metrics: metrics, logger: logger}
}

// ListSessionsForTeacher returns cached sessions when fresh, otherwise reads through.
func (s *CachedSessionSource) ListSessionsForTeacher(ctx context.Context, teacher string) ([]models.TeacherSession, error) {
	if s.cache == nil || s.ttl <= 0 {
		return s.fetch(ctx, teacher)
	}

	key := sessionCacheKey(teacher)
	start := time.Now()
	var cached []models.TeacherSession
	err := s.cache.Get(ctx, key, &cached)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, appErrors.ErrCacheMiss):
		s.logger.Warn("session cache read failed", zap.String("key", key), zap.Error(err))
	}

	sessions, err := s.fetch(ctx, teacher)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, sessions, s.ttl); err != nil {
		s.logger.Warn("session cache write failed", zap.String("key", key), zap.Error(err))
	}
	return sessions, nil
}

// Invalidate drops the cached sessions of a teacher.
func (s *CachedSessionSource) Invalidate(ctx context.Context, teacher string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, sessionCacheKey(teacher))
}

// InvalidateAll drops every cached session list.
func (s *CachedSessionSource) InvalidateAll(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteByPattern(ctx, cache.Key("sessions")+":*")
}

func (s *CachedSessionSource) fetch(ctx context.Context, teacher string) ([]models.TeacherSession, error) {
	sessions, err := s.source.ListSessionsForTeacher(ctx, teacher)
	if err != nil {
		s.metrics.RecordFetchFailure()
		return nil, err
	}
	return sessions, nil
}

func sessionCacheKey(teacher string) string {
	return cache.Key("sessions", strings.ToLower(teacher))
}
