package models

import (
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// DayOfWeek names a calendar day as used in timetable payloads.
type DayOfWeek string

const (
	Monday    DayOfWeek = "Monday"
	Tuesday   DayOfWeek = "Tuesday"
	Wednesday DayOfWeek = "Wednesday"
	Thursday  DayOfWeek = "Thursday"
	Friday    DayOfWeek = "Friday"
	Saturday  DayOfWeek = "Saturday"
	Sunday    DayOfWeek = "Sunday"
)

// Week lists the days in weekly-view order.
var Week = []DayOfWeek{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var dayLookup = map[string]DayOfWeek{
	"monday": Monday, "mon": Monday,
	"tuesday": Tuesday, "tue": Tuesday,
	"wednesday": Wednesday, "wed": Wednesday,
	"thursday": Thursday, "thu": Thursday,
	"friday": Friday, "fri": Friday,
	"saturday": Saturday, "sat": Saturday,
	"sunday": Sunday, "sun": Sunday,
}

// ParseDay resolves a day name case-insensitively. Three-letter abbreviations are accepted.
func ParseDay(raw string) (DayOfWeek, bool) {
	day, ok := dayLookup[strings.ToLower(strings.TrimSpace(raw))]
	return day, ok
}

// DayFromWeekday maps a time.Weekday onto DayOfWeek.
func DayFromWeekday(w time.Weekday) DayOfWeek {
	if w == time.Sunday {
		return Sunday
	}
	return Week[int(w)-1]
}

// Index returns the 0-based weekly-view position, or -1 for unknown values.
func (d DayOfWeek) Index() int {
	for i, day := range Week {
		if day == d {
			return i
		}
	}
	return -1
}

// Valid reports whether d is one of the seven calendar days.
func (d DayOfWeek) Valid() bool {
	return d.Index() >= 0
}

// SessionKind distinguishes how a session is rendered. All kinds are equal for conflict purposes.
type SessionKind string

const (
	SessionKindLecture  SessionKind = "lecture"
	SessionKindLab      SessionKind = "lab"
	SessionKindTutorial SessionKind = "tutorial"
)

// Valid reports whether k is a known session kind.
func (k SessionKind) Valid() bool {
	switch k {
	case SessionKindLecture, SessionKindLab, SessionKindTutorial:
		return true
	}
	return false
}

// Session is the occupant of a single grid cell.
type Session struct {
	ID      string      `json:"id,omitempty"`
	Kind    SessionKind `json:"type"`
	Content string      `json:"content"`
	Teacher string      `json:"teacher"`
	Room    string      `json:"room,omitempty"`
}

// TimetableRow is the external payload shape of one time-slot row.
type TimetableRow struct {
	Time string                 `json:"time"`
	Days map[DayOfWeek]*Session `json:"days"`
}

// CellRef addresses one grid cell.
type CellRef struct {
	TimeSlot string    `json:"time_slot"`
	Day      DayOfWeek `json:"day"`
}

// ConflictResource identifies what is double-booked.
type ConflictResource string

const (
	ConflictResourceTeacher ConflictResource = "teacher"
	ConflictResourceRoom    ConflictResource = "room"
)

// Conflict is a derived double-booking report. It is never stored.
type Conflict struct {
	Resource    ConflictResource `json:"resource_type"`
	Identity    string           `json:"resource"`
	Occurrences []CellRef        `json:"occurrences"`
}

// TimetableSnapshot is a persisted grid payload version.
type TimetableSnapshot struct {
	ID          string         `db:"id" json:"id"`
	TimetableID string         `db:"timetable_id" json:"timetable_id"`
	Version     int            `db:"version" json:"version"`
	Payload     types.JSONText `db:"payload" json:"payload"`
	SavedBy     string         `db:"saved_by" json:"saved_by"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// TimetableSummary holds counts shown on dashboards.
type TimetableSummary struct {
	OccupiedCells int                 `json:"occupied_cells"`
	ByKind        map[SessionKind]int `json:"by_kind"`
	ByTeacher     map[string]int      `json:"by_teacher"`
	ConflictCount int                 `json:"conflict_count"`
}

// ViewFilter narrows a read-only projection of a grid.
type ViewFilter struct {
	Kind    SessionKind
	Teacher string
	Room    string
}

// TimetableState is the API view of one timetable workspace.
type TimetableState struct {
	ID        string           `json:"id"`
	Version   int              `json:"version"`
	Dirty     bool             `json:"dirty"`
	Rows      []TimetableRow   `json:"rows"`
	Conflicts []Conflict       `json:"conflicts"`
	Summary   TimetableSummary `json:"summary"`
}
