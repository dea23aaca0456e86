package dto

// StartMonitorRequest starts reminders for the calling teacher. Durations are Go duration strings such as "1m", at least one second.
type StartMonitorRequest struct {
	Teacher        string `json:"teacher" validate:"omitempty,max=120"`
	PollInterval   string `json:"pollInterval" validate:"omitempty,duration"`
	ReminderWindow string `json:"reminderWindow" validate:"omitempty,duration"`
}
