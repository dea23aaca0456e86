package timetable

import (
	"sort"
	"strings"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Matches reports whether a session passes the filter. Empty filter fields match everything.
func Matches(filter models.ViewFilter, session models.Session) bool {
	if filter.Kind != "" && session.Kind != filter.Kind {
		return false
	}
	if filter.Teacher != "" && !strings.EqualFold(strings.TrimSpace(session.Teacher), strings.TrimSpace(filter.Teacher)) {
		return false
	}
	if filter.Room != "" && !strings.EqualFold(session.Room, strings.TrimSpace(filter.Room)) {
		return false
	}
	return true
}

// Project returns a filtered copy of grid. Every row is kept so the layout stays stable.
// The projection is read-only output and never feeds back into the engine.
func Project(grid *Grid, filter models.ViewFilter) *Grid {
	view := NewGrid(grid.Labels()...)
	grid.EachOccupied(func(c Cell) bool {
		if Matches(filter, c.Session) {
			session := c.Session
			view.setCell(c.TimeSlot, c.Day, &session)
		}
		return true
	})
	return view
}

// Summarize counts occupied cells per kind and per teacher.
func Summarize(grid *Grid, conflicts []models.Conflict) models.TimetableSummary {
	summary := models.TimetableSummary{
		ByKind:        make(map[models.SessionKind]int),
		ByTeacher:     make(map[string]int),
		ConflictCount: len(conflicts),
	}
	grid.EachOccupied(func(c Cell) bool {
		summary.OccupiedCells++
		summary.ByKind[c.Session.Kind]++
		if c.Session.Teacher != "" {
			summary.ByTeacher[c.Session.Teacher]++
		}
		return true
	})
	return summary
}

// SortSessions orders sessions by day, then by resolved slot start. Unknown slots sort last within their day.
func SortSessions(slots *SlotTable, sessions []models.TeacherSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		di := dayRank(sessions[i].Day)
		dj := dayRank(sessions[j].Day)
		if di != dj {
			return di < dj
		}
		return slots.Compare(sessions[i].TimeSlot, sessions[j].TimeSlot) < 0
	})
}

// SessionsOn keeps the sessions held on day, sorted by start.
func SessionsOn(slots *SlotTable, sessions []models.TeacherSession, day models.DayOfWeek) []models.TeacherSession {
	out := make([]models.TeacherSession, 0)
	for _, s := range sessions {
		if parsed, ok := models.ParseDay(s.Day); ok && parsed == day {
			out = append(out, s)
		}
	}
	SortSessions(slots, out)
	return out
}

func dayRank(raw string) int {
	day, ok := models.ParseDay(raw)
	if !ok {
		return len(models.Week)
	}
	return day.Index()
}
