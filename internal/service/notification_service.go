package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/notification"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

// JobTypeNotificationLog tags queued notification log writes.
const JobTypeNotificationLog = "notification_log"

type notificationLogRepository interface {
	Insert(ctx context.Context, entry *models.NotificationLog) error
	ListByTeacher(ctx context.Context, teacher string, limit int) ([]models.NotificationLog, error)
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// NotificationConfig holds monitor defaults.
type NotificationConfig struct {
	PollInterval   time.Duration
	ReminderWindow time.Duration
	HistoryLimit   int
	Slots          *timetable.SlotTable
}

// NotificationService owns one monitor per teacher. Monitors run on the base context given at construction,
// never on a request context.
type NotificationService struct {
	source    notification.SessionSource
	logs      notificationLogRepository
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       NotificationConfig
	now       func() time.Time

	baseCtx context.Context

	mu       sync.Mutex
	queue    jobEnqueuer
	monitors map[string]*notification.Monitor
}

// minMonitorDuration is the smallest poll interval or reminder window a request may ask for.
const minMonitorDuration = time.Second

// NewNotificationService constructs the service. baseCtx bounds the lifetime of every monitor.
func NewNotificationService(baseCtx context.Context, source notification.SessionSource, logs notificationLogRepository, metrics *MetricsService, cfg NotificationConfig, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.ReminderWindow <= 0 {
		cfg.ReminderWindow = 15 * time.Minute
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.Slots == nil {
		cfg.Slots = timetable.DefaultSlotTable()
	}
	if err := validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d >= minMonitorDuration
	}); err != nil {
		logger.Error("failed to register duration validation", zap.Error(err))
	}
	return &NotificationService{
		source:    source,
		logs:      logs,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		baseCtx:   baseCtx,
		monitors:  make(map[string]*notification.Monitor),
	}
}

// UseQueue routes delivered events to q for persistence.
func (s *NotificationService) UseQueue(q jobEnqueuer) {
	s.mu.Lock()
	s.queue = q
	s.mu.Unlock()
}

// Start begins monitoring for teacher with the request's overrides.
func (s *NotificationService) Start(teacher string, req dto.StartMonitorRequest) (models.MonitorStatus, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.MonitorStatus{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid monitor settings")
	}
	if strings.TrimSpace(teacher) == "" {
		return models.MonitorStatus{}, appErrors.Clone(appErrors.ErrValidation, "teacher is required")
	}
	settings := notification.Settings{
		Teacher:        teacher,
		PollInterval:   s.cfg.PollInterval,
		ReminderWindow: s.cfg.ReminderWindow,
	}
	if req.PollInterval != "" {
		settings.PollInterval, _ = time.ParseDuration(req.PollInterval)
	}
	if req.ReminderWindow != "" {
		settings.ReminderWindow, _ = time.ParseDuration(req.ReminderWindow)
	}

	monitor := s.monitor(teacher)
	if err := monitor.Start(s.baseCtx, settings); err != nil {
		return monitor.Status(), mapMonitorError(err)
	}
	s.metrics.MonitorStarted()
	return monitor.Status(), nil
}

// Stop ends monitoring for teacher.
func (s *NotificationService) Stop(teacher string) (models.MonitorStatus, error) {
	monitor, ok := s.lookup(teacher)
	if !ok {
		return idleStatus(teacher), mapMonitorError(notification.ErrNotMonitoring)
	}
	if err := monitor.Stop(); err != nil {
		return monitor.Status(), mapMonitorError(err)
	}
	s.metrics.MonitorStopped()
	return monitor.Status(), nil
}

// Status reports the teacher's monitor; unknown teachers are idle.
func (s *NotificationService) Status(teacher string) models.MonitorStatus {
	monitor, ok := s.lookup(teacher)
	if !ok {
		return idleStatus(teacher)
	}
	status := monitor.Status()
	if status.Teacher == "" {
		status.Teacher = strings.TrimSpace(teacher)
	}
	return status
}

// CheckNow runs one synchronous check and returns the number of new events.
func (s *NotificationService) CheckNow(ctx context.Context, teacher string) (int, error) {
	monitor, ok := s.lookup(teacher)
	if !ok {
		return 0, mapMonitorError(notification.ErrNotMonitoring)
	}
	count, err := monitor.CheckNow(ctx)
	if err != nil {
		if errors.Is(err, notification.ErrNotMonitoring) {
			return 0, mapMonitorError(err)
		}
		return 0, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "session source unavailable")
	}
	return count, nil
}

// Subscribe attaches fn to the teacher's monitor, creating an idle one when needed.
func (s *NotificationService) Subscribe(teacher string, fn notification.Subscriber) (func(), error) {
	if strings.TrimSpace(teacher) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher is required")
	}
	return s.monitor(teacher).Subscribe(fn), nil
}

// History lists the teacher's persisted events, newest first.
func (s *NotificationService) History(ctx context.Context, teacher string, limit int) ([]models.NotificationLog, error) {
	if s.logs == nil {
		return []models.NotificationLog{}, nil
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	logs, err := s.logs.ListByTeacher(ctx, strings.TrimSpace(teacher), limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notifications")
	}
	return logs, nil
}

// Agenda lists today's sessions for teacher in start order, plus the next class still to begin.
func (s *NotificationService) Agenda(ctx context.Context, teacher string) (*models.TeacherAgenda, error) {
	teacher = strings.TrimSpace(teacher)
	if teacher == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher is required")
	}
	sessions, err := s.source.ListSessionsForTeacher(ctx, teacher)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "session source unavailable")
	}

	now := s.now()
	today := models.DayFromWeekday(now.Weekday())
	agenda := &models.TeacherAgenda{
		Teacher:  teacher,
		Day:      today,
		Sessions: timetable.SessionsOn(s.cfg.Slots, sessions, today),
	}
	for i := range agenda.Sessions {
		start, ok := s.cfg.Slots.On(now, agenda.Sessions[i].TimeSlot)
		if ok && !start.Before(now) {
			next := agenda.Sessions[i]
			agenda.NextClass = &next
			break
		}
	}
	return agenda, nil
}

// PersistEvent is the queue handler writing one event to the notification log.
func (s *NotificationService) PersistEvent(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.NotificationEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	if s.logs == nil {
		return nil
	}
	return s.logs.Insert(ctx, &models.NotificationLog{
		ID:                event.ID,
		Teacher:           event.Teacher,
		SessionKey:        event.SessionKey,
		Kind:              event.Kind,
		Title:             event.Title,
		Message:           event.Message,
		MinutesUntilStart: event.MinutesUntilStart,
		CreatedAt:         event.Timestamp,
	})
}

// Shutdown stops every running monitor.
func (s *NotificationService) Shutdown() {
	s.mu.Lock()
	monitors := make([]*notification.Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		monitors = append(monitors, m)
	}
	s.mu.Unlock()

	for _, m := range monitors {
		if err := m.Stop(); err == nil {
			s.metrics.MonitorStopped()
		}
	}
}

func (s *NotificationService) lookup(teacher string) (*notification.Monitor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[monitorKey(teacher)]
	return m, ok
}

func (s *NotificationService) monitor(teacher string) *notification.Monitor {
	key := monitorKey(teacher)

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.monitors[key]; ok {
		return m
	}
	m := notification.NewMonitor(s.source,
		notification.WithClock(func() time.Time { return s.now() }),
		notification.WithLogger(s.logger.With(zap.String("teacher", strings.TrimSpace(teacher)))),
		notification.WithSlots(s.cfg.Slots),
	)
	m.Subscribe(s.record)
	s.monitors[key] = m
	return m
}

// record runs on the monitor goroutine and must not block.
func (s *NotificationService) record(event models.NotificationEvent) {
	s.metrics.RecordNotification(event.Kind)

	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return
	}
	err := queue.TryEnqueue(jobs.Job{ID: event.ID, Type: JobTypeNotificationLog, Payload: event})
	if err != nil {
		s.logger.Warn("notification log dropped",
			zap.String("teacher", event.Teacher),
			zap.String("session_key", event.SessionKey),
			zap.Error(err),
		)
	}
}

func monitorKey(teacher string) string {
	return strings.ToLower(strings.TrimSpace(teacher))
}

func idleStatus(teacher string) models.MonitorStatus {
	return models.MonitorStatus{Teacher: strings.TrimSpace(teacher)}
}

func mapMonitorError(err error) error {
	switch {
	case errors.Is(err, notification.ErrAlreadyMonitoring):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "notifications already running")
	case errors.Is(err, notification.ErrNotMonitoring):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "notifications are not running")
	case errors.Is(err, notification.ErrInvalidSettings):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return appErrors.FromError(err)
}
