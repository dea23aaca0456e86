package dto

import "github.com/noah-isme/sma-timetable-api/internal/models"

// SessionPayload is the occupant of a cell as sent by clients.
type SessionPayload struct {
	ID      string `json:"id"`
	Type    string `json:"type" validate:"omitempty,session_kind"`
	Content string `json:"content" validate:"required,max=200"`
	Teacher string `json:"teacher" validate:"max=120"`
	Room    string `json:"room" validate:"max=60"`
}

// AddSessionRequest places a session into an empty cell.
type AddSessionRequest struct {
	TimeSlot string         `json:"timeSlot" validate:"required,max=40"`
	Day      string         `json:"day" validate:"required,weekday"`
	Session  SessionPayload `json:"session"`
}

// MoveSessionRequest is the drag-and-drop payload.
type MoveSessionRequest struct {
	FromTimeSlot string `json:"fromTimeSlot" validate:"required,max=40"`
	FromDay      string `json:"fromDay" validate:"required,weekday"`
	ToTimeSlot   string `json:"toTimeSlot" validate:"required,max=40"`
	ToDay        string `json:"toDay" validate:"required,weekday"`
}

// DeleteSessionRequest clears one cell.
type DeleteSessionRequest struct {
	TimeSlot string `form:"timeSlot" validate:"required,max=40"`
	Day      string `form:"day" validate:"required,weekday"`
}

// ReplaceTimetableRequest swaps the whole grid.
type ReplaceTimetableRequest struct {
	Rows []models.TimetableRow `json:"rows" validate:"dive"`
}

// TimetableViewQuery narrows a read-only projection.
type TimetableViewQuery struct {
	Kind    string `form:"kind" validate:"omitempty,session_kind"`
	Teacher string `form:"teacher"`
	Room    string `form:"room"`
}

// ExportTimetableRequest selects the export format.
type ExportTimetableRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}
