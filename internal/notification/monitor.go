package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
)

var (
	// ErrAlreadyMonitoring is returned by Start on a running monitor.
	ErrAlreadyMonitoring = errors.New("monitor already running")
	// ErrNotMonitoring is returned when the monitor is idle.
	ErrNotMonitoring = errors.New("monitor not running")
	// ErrInvalidSettings is returned for a blank teacher or non-positive durations.
	ErrInvalidSettings = errors.New("invalid monitor settings")
)

// SessionSource lists every session currently assigned to a teacher.
type SessionSource interface {
	ListSessionsForTeacher(ctx context.Context, teacher string) ([]models.TeacherSession, error)
}

// Settings configures one monitoring run.
type Settings struct {
	Teacher        string
	PollInterval   time.Duration
	ReminderWindow time.Duration
}

func (s Settings) validate() error {
	if strings.TrimSpace(s.Teacher) == "" {
		return fmt.Errorf("teacher is required: %w", ErrInvalidSettings)
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive: %w", ErrInvalidSettings)
	}
	if s.ReminderWindow <= 0 {
		return fmt.Errorf("reminder window must be positive: %w", ErrInvalidSettings)
	}
	return nil
}

// Subscriber receives monitor events. It runs on the monitor's goroutine and must not block for long.
type Subscriber func(models.NotificationEvent)

type subscription struct {
	id int
	fn Subscriber
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSlots sets the time-slot lookup table.
func WithSlots(slots *timetable.SlotTable) Option {
	return func(m *Monitor) {
		if slots != nil {
			m.slots = slots
		}
	}
}

// Monitor polls a teacher's sessions and raises once-per-run reminders for sessions starting soon.
type Monitor struct {
	source SessionSource
	slots  *timetable.SlotTable
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	settings    Settings
	running     bool
	generation  uint64
	cancel      context.CancelFunc
	delivered   map[string]struct{}
	startedAt   time.Time
	subscribers []subscription
	nextSubID   int
	// tickMu serialises checks within one run. Start installs a fresh one.
	tickMu *sync.Mutex
}

// NewMonitor constructs an idle monitor.
func NewMonitor(source SessionSource, opts ...Option) *Monitor {
	m := &Monitor{
		source:    source,
		slots:     timetable.DefaultSlotTable(),
		logger:    zap.NewNop(),
		now:       time.Now,
		delivered: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins a monitoring run: one check immediately, then one per poll interval until Stop or ctx ends.
func (m *Monitor) Start(ctx context.Context, settings Settings) error {
	if err := settings.validate(); err != nil {
		return err
	}
	settings.Teacher = strings.TrimSpace(settings.Teacher)

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyMonitoring
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.generation++
	gen := m.generation
	m.settings = settings
	m.running = true
	m.cancel = cancel
	m.delivered = make(map[string]struct{})
	m.startedAt = m.now()
	m.tickMu = &sync.Mutex{}
	runMu := m.tickMu
	m.mu.Unlock()

	m.logger.Info("notification monitor started",
		zap.String("teacher", settings.Teacher),
		zap.Duration("poll_interval", settings.PollInterval),
		zap.Duration("reminder_window", settings.ReminderWindow),
	)
	go m.loop(loopCtx, gen, runMu, settings.PollInterval)
	return nil
}

// Stop ends the run and clears the dedup set. An in-flight check is not awaited; its results are discarded.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotMonitoring
	}
	m.halt()
	teacher := m.settings.Teacher
	m.mu.Unlock()

	m.logger.Info("notification monitor stopped", zap.String("teacher", teacher))
	return nil
}

// halt requires m.mu.
func (m *Monitor) halt() {
	m.running = false
	m.generation++
	m.delivered = make(map[string]struct{})
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Subscribe registers fn. Subscribers are called in registration order.
func (m *Monitor) Subscribe(fn Subscriber) (unsubscribe func()) {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subscribers = append(m.subscribers, subscription{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, sub := range m.subscribers {
				if sub.id == id {
					m.subscribers = append(m.subscribers[:i:i], m.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// CheckNow runs one check synchronously and returns the number of events emitted.
func (m *Monitor) CheckNow(ctx context.Context) (int, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return 0, ErrNotMonitoring
	}
	gen := m.generation
	runMu := m.tickMu
	m.mu.Unlock()
	return m.tick(ctx, gen, runMu)
}

// Status reports the current run.
func (m *Monitor) Status() models.MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := models.MonitorStatus{
		Teacher:        m.settings.Teacher,
		Monitoring:     m.running,
		PollInterval:   m.settings.PollInterval,
		ReminderWindow: m.settings.ReminderWindow,
		Delivered:      len(m.delivered),
	}
	if m.running {
		started := m.startedAt
		status.StartedAt = &started
	}
	return status
}

func (m *Monitor) loop(ctx context.Context, gen uint64, runMu *sync.Mutex, interval time.Duration) {
	_, _ = m.tick(ctx, gen, runMu)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			if m.current(gen) {
				m.halt()
			}
			m.mu.Unlock()
			return
		case <-ticker.C:
			_, _ = m.tick(ctx, gen, runMu)
		}
	}
}

func (m *Monitor) tick(ctx context.Context, gen uint64, runMu *sync.Mutex) (int, error) {
	runMu.Lock()
	defer runMu.Unlock()

	m.mu.Lock()
	if !m.current(gen) {
		m.mu.Unlock()
		return 0, nil
	}
	settings := m.settings
	m.mu.Unlock()

	sessions, err := m.source.ListSessionsForTeacher(ctx, settings.Teacher)
	if err != nil {
		m.logger.Warn("notification monitor fetch failed",
			zap.String("teacher", settings.Teacher),
			zap.Error(err),
		)
		return 0, fmt.Errorf("list sessions for %s: %w", settings.Teacher, err)
	}

	now := m.now()

	m.mu.Lock()
	if !m.current(gen) {
		m.mu.Unlock()
		m.logger.Debug("discarding stale monitor result", zap.String("teacher", settings.Teacher))
		return 0, nil
	}
	events := m.collect(settings, sessions, now)
	subscribers := make([]subscription, len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	delivered := 0
	for _, event := range events {
		m.mu.Lock()
		live := m.current(gen)
		m.mu.Unlock()
		if !live {
			m.logger.Debug("monitor stopped mid-delivery, dropping remaining events",
				zap.String("teacher", settings.Teacher),
				zap.Int("dropped", len(events)-delivered),
			)
			break
		}
		for _, sub := range subscribers {
			sub.fn(event)
		}
		delivered++
	}
	return delivered, nil
}

// current requires m.mu.
func (m *Monitor) current(gen uint64) bool {
	return m.running && m.generation == gen
}

// collect requires m.mu. It records new keys in the dedup set.
func (m *Monitor) collect(settings Settings, sessions []models.TeacherSession, now time.Time) []models.NotificationEvent {
	today := models.DayFromWeekday(now.Weekday())
	horizon := now.Add(settings.ReminderWindow)

	todays := timetable.SessionsOn(m.slots, sessions, today)
	var events []models.NotificationEvent

	for _, session := range todays {
		start, ok := m.slots.On(now, session.TimeSlot)
		if !ok || start.Before(now) || start.After(horizon) {
			continue
		}
		key := ReminderKey(session)
		if _, seen := m.delivered[key]; seen {
			continue
		}
		m.delivered[key] = struct{}{}
		minutes := int(start.Sub(now) / time.Minute)
		events = append(events, models.NotificationEvent{
			ID:                uuid.NewString(),
			SessionKey:        key,
			Kind:              models.NotificationClassReminder,
			Teacher:           settings.Teacher,
			Title:             "Class starting soon",
			Message:           fmt.Sprintf("%s starts in %d min in %s", sessionTitle(session), minutes, roomOrTBA(session.Room)),
			Session:           session,
			MinutesUntilStart: minutes,
			Timestamp:         now,
		})
	}

	for _, clash := range clashes(todays) {
		key := fmt.Sprintf("conflict-%s-%s", today, clash[0].TimeSlot)
		if _, seen := m.delivered[key]; seen {
			continue
		}
		m.delivered[key] = struct{}{}
		minutes := 0
		if start, ok := m.slots.On(now, clash[0].TimeSlot); ok && start.After(now) {
			minutes = int(start.Sub(now) / time.Minute)
		}
		events = append(events, models.NotificationEvent{
			ID:                uuid.NewString(),
			SessionKey:        key,
			Kind:              models.NotificationTimeConflict,
			Teacher:           settings.Teacher,
			Title:             "Schedule conflict",
			Message:           fmt.Sprintf("%d sessions are booked at %s on %s", len(clash), clash[0].TimeSlot, today),
			Session:           clash[0],
			MinutesUntilStart: minutes,
			Timestamp:         now,
		})
	}
	return events
}

// ReminderKey is the dedup key of a class reminder.
func ReminderKey(session models.TeacherSession) string {
	return session.ID + "-" + session.TimeSlot
}

func clashes(sessions []models.TeacherSession) [][]models.TeacherSession {
	byLabel := make(map[string][]models.TeacherSession)
	var labels []string
	for _, s := range sessions {
		if _, ok := byLabel[s.TimeSlot]; !ok {
			labels = append(labels, s.TimeSlot)
		}
		byLabel[s.TimeSlot] = append(byLabel[s.TimeSlot], s)
	}
	sort.Strings(labels)
	var out [][]models.TeacherSession
	for _, label := range labels {
		if len(byLabel[label]) > 1 {
			out = append(out, byLabel[label])
		}
	}
	return out
}

func sessionTitle(s models.TeacherSession) string {
	switch {
	case s.Code != "" && s.Name != "":
		return s.Code + " " + s.Name
	case s.Code != "":
		return s.Code
	case s.Name != "":
		return s.Name
	}
	return "Class"
}

func roomOrTBA(room string) string {
	if strings.TrimSpace(room) == "" {
		return "room TBA"
	}
	return room
}
