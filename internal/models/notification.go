package models

import "time"

// NotificationKind enumerates monitor event types.
type NotificationKind string

const (
	NotificationClassReminder NotificationKind = "class_reminder"
	NotificationTimeConflict  NotificationKind = "time_conflict"
)

// NotificationEvent is emitted by a teacher monitor to its subscribers.
type NotificationEvent struct {
	ID                string           `json:"id"`
	SessionKey        string           `json:"session_key"`
	Kind              NotificationKind `json:"type"`
	Teacher           string           `json:"teacher"`
	Title             string           `json:"title"`
	Message           string           `json:"message"`
	Session           TeacherSession   `json:"session"`
	MinutesUntilStart int              `json:"minutes_until_start"`
	Timestamp         time.Time        `json:"timestamp"`
}

// NotificationLog is the persisted form of a delivered event.
type NotificationLog struct {
	ID                string           `db:"id" json:"id"`
	Teacher           string           `db:"teacher" json:"teacher"`
	SessionKey        string           `db:"session_key" json:"session_key"`
	Kind              NotificationKind `db:"kind" json:"type"`
	Title             string           `db:"title" json:"title"`
	Message           string           `db:"message" json:"message"`
	MinutesUntilStart int              `db:"minutes_until_start" json:"minutes_until_start"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
}

// MonitorStatus reports the state of one teacher's monitor.
type MonitorStatus struct {
	Teacher        string        `json:"teacher"`
	Monitoring     bool          `json:"monitoring"`
	PollInterval   time.Duration `json:"poll_interval"`
	ReminderWindow time.Duration `json:"reminder_window"`
	Delivered      int           `json:"delivered"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
}

// TeacherAgenda lists a teacher's sessions for one day.
type TeacherAgenda struct {
	Teacher   string           `json:"teacher"`
	Day       DayOfWeek        `json:"day"`
	Sessions  []TeacherSession `json:"sessions"`
	NextClass *TeacherSession  `json:"next_class,omitempty"`
}
