package timetable

import (
	"github.com/google/uuid"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

var seedNamespace = uuid.MustParse("6c3f8f2e-4b1d-4b7a-9d0e-2f6a1c9e7b41")

type seedEntry struct {
	label   string
	day     models.DayOfWeek
	kind    models.SessionKind
	content string
	teacher string
}

var seedEntries = []seedEntry{
	{"8:00-9:00", models.Monday, models.SessionKindLecture, "CS101 (A12)", "Dr. Smith"},
	{"8:00-9:00", models.Wednesday, models.SessionKindLecture, "MA201 (B04)", "Dr. Rahma"},
	{"9:10-10:30", models.Tuesday, models.SessionKindLab, "CS101L (Lab 1)", "Dr. Smith"},
	{"10:40-12:00", models.Monday, models.SessionKindTutorial, "PH110 (C01)", "Dr. Lee"},
	{"10:40-12:00", models.Thursday, models.SessionKindLab, "PH110L (Lab 2)", "Dr. Lee"},
	{"13:00-14:00", models.Friday, models.SessionKindLecture, "EN105 (A12)", "Ms. Ortega"},
	{"14:00-15:00", models.Wednesday, models.SessionKindTutorial, "MA201T (B04)", "Dr. Rahma"},
}

// SeedRows returns the default sample week used when a timetable has no saved snapshot.
// Session ids are stable across calls.
func SeedRows() []models.TimetableRow {
	labels := []string{"8:00-9:00", "9:10-10:30", "10:40-12:00", "13:00-14:00", "14:00-15:00"}
	grid := NewGrid(labels...)
	for _, entry := range seedEntries {
		session := NormalizeSession(models.Session{
			ID:      uuid.NewSHA1(seedNamespace, []byte(entry.label+"|"+string(entry.day))).String(),
			Kind:    entry.kind,
			Content: entry.content,
			Teacher: entry.teacher,
		})
		grid.setCell(entry.label, entry.day, &session)
	}
	return grid.Rows()
}
