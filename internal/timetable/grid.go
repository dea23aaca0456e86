package timetable

import (
	"strings"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Cell is one occupied grid position.
type Cell struct {
	TimeSlot string
	Day      models.DayOfWeek
	Session  models.Session
}

// Ref returns the cell's coordinates.
func (c Cell) Ref() models.CellRef {
	return models.CellRef{TimeSlot: c.TimeSlot, Day: c.Day}
}

type gridRow struct {
	label string
	cells map[models.DayOfWeek]models.Session
}

// Grid is the weekly timetable: rows of time-slot labels, each mapping a day to at most one session.
// A Grid is not safe for concurrent mutation; callers hold exclusive access while editing.
type Grid struct {
	rows  []*gridRow
	index map[string]*gridRow
}

// NewGrid creates an empty grid with the given rows in order.
func NewGrid(labels ...string) *Grid {
	g := &Grid{index: make(map[string]*gridRow, len(labels))}
	for _, label := range labels {
		g.row(label)
	}
	return g
}

// FromRows builds a grid from an external payload.
func FromRows(rows []models.TimetableRow) *Grid {
	g := NewGrid()
	g.ReplaceAll(rows)
	return g
}

// GetCell returns the session at (label, day). Missing rows read as empty.
func (g *Grid) GetCell(label string, day models.DayOfWeek) (models.Session, bool) {
	if g == nil {
		return models.Session{}, false
	}
	r, ok := g.index[label]
	if !ok {
		return models.Session{}, false
	}
	session, ok := r.cells[day]
	return session, ok
}

// IsEmpty reports whether (label, day) holds no session.
func (g *Grid) IsEmpty(label string, day models.DayOfWeek) bool {
	_, ok := g.GetCell(label, day)
	return !ok
}

// setCell replaces exactly one cell. A nil session clears it.
func (g *Grid) setCell(label string, day models.DayOfWeek, session *models.Session) {
	if session == nil {
		if r, ok := g.index[label]; ok {
			delete(r.cells, day)
		}
		return
	}
	g.row(label).cells[day] = *session
}

func (g *Grid) row(label string) *gridRow {
	if g.index == nil {
		g.index = make(map[string]*gridRow)
	}
	if r, ok := g.index[label]; ok {
		return r
	}
	r := &gridRow{label: label, cells: make(map[models.DayOfWeek]models.Session)}
	g.rows = append(g.rows, r)
	g.index[label] = r
	return r
}

// EachOccupied streams occupied cells in row order, then Monday to Sunday.
// Iteration stops when fn returns false.
func (g *Grid) EachOccupied(fn func(Cell) bool) {
	if g == nil {
		return
	}
	for _, r := range g.rows {
		for _, day := range models.Week {
			session, ok := r.cells[day]
			if !ok {
				continue
			}
			if !fn(Cell{TimeSlot: r.label, Day: day, Session: session}) {
				return
			}
		}
	}
}

// OccupiedCells collects EachOccupied into a slice.
func (g *Grid) OccupiedCells() []Cell {
	var cells []Cell
	g.EachOccupied(func(c Cell) bool {
		cells = append(cells, c)
		return true
	})
	return cells
}

// Len returns the number of occupied cells.
func (g *Grid) Len() int {
	count := 0
	g.EachOccupied(func(Cell) bool {
		count++
		return true
	})
	return count
}

// Labels returns row labels in grid order.
func (g *Grid) Labels() []string {
	if g == nil {
		return nil
	}
	labels := make([]string, 0, len(g.rows))
	for _, r := range g.rows {
		labels = append(labels, r.label)
	}
	return labels
}

// ReplaceAll substitutes the whole grid with the payload. It skips per-cell occupancy
// validation: labels are trimmed, rows sharing a label are merged and later cells win.
// Blank labels and unknown day keys are dropped.
// Callers must run DetectConflicts afterwards; Engine.ReplaceGrid does this.
func (g *Grid) ReplaceAll(rows []models.TimetableRow) {
	g.rows = nil
	g.index = make(map[string]*gridRow, len(rows))
	for _, payload := range rows {
		label := strings.TrimSpace(payload.Time)
		if label == "" {
			continue
		}
		r := g.row(label)
		for day, session := range payload.Days {
			if session == nil || !day.Valid() {
				continue
			}
			r.cells[day] = NormalizeSession(*session)
		}
	}
}

// Rows renders the grid as the external payload. Every row lists all seven days; empty days are nil.
func (g *Grid) Rows() []models.TimetableRow {
	if g == nil {
		return []models.TimetableRow{}
	}
	rows := make([]models.TimetableRow, 0, len(g.rows))
	for _, r := range g.rows {
		days := make(map[models.DayOfWeek]*models.Session, len(models.Week))
		for _, day := range models.Week {
			if session, ok := r.cells[day]; ok {
				s := session
				days[day] = &s
			} else {
				days[day] = nil
			}
		}
		rows = append(rows, models.TimetableRow{Time: r.label, Days: days})
	}
	return rows
}

// Clone returns an independent copy.
func (g *Grid) Clone() *Grid {
	clone := NewGrid()
	if g == nil {
		return clone
	}
	for _, r := range g.rows {
		cr := clone.row(r.label)
		for day, session := range r.cells {
			cr.cells[day] = session
		}
	}
	return clone
}
