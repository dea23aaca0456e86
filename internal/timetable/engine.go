package timetable

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

var (
	// ErrSlotOccupied is returned when an add or move targets a filled cell.
	ErrSlotOccupied = errors.New("time slot already occupied")
	// ErrSlotEmpty is returned when a move reads from an empty cell.
	ErrSlotEmpty = errors.New("time slot is empty")
	// ErrInvalidCell is returned for an empty label or an unknown day.
	ErrInvalidCell = errors.New("invalid timetable cell")
)

// SlotOccupiedError describes a refused add or move.
type SlotOccupiedError struct {
	Cell     models.CellRef
	Occupant models.Session
}

func (e *SlotOccupiedError) Error() string {
	return fmt.Sprintf("%s %s already holds %q", e.Cell.Day, e.Cell.TimeSlot, e.Occupant.Content)
}

// Is lets errors.Is match ErrSlotOccupied.
func (e *SlotOccupiedError) Is(target error) bool {
	return target == ErrSlotOccupied
}

// Engine applies validated mutations to a grid and reports the resulting conflicts.
// Every mutation is a single call; a refused call leaves the grid untouched.
type Engine struct {
	grid   *Grid
	detect []DetectOption
}

// NewEngine wraps grid. A nil grid starts empty.
func NewEngine(grid *Grid, opts ...DetectOption) *Engine {
	if grid == nil {
		grid = NewGrid()
	}
	return &Engine{grid: grid, detect: opts}
}

// Grid exposes the engine's grid for read-only use.
func (e *Engine) Grid() *Grid {
	return e.grid
}

// Conflicts recomputes the conflict set.
func (e *Engine) Conflicts() []models.Conflict {
	return DetectConflicts(e.grid, e.detect...)
}

// AddSession places session at (label, day). It refuses to overwrite an occupied cell.
func (e *Engine) AddSession(label string, day models.DayOfWeek, session models.Session) ([]models.Conflict, error) {
	if err := validateCell(label, day); err != nil {
		return nil, err
	}
	if occupant, ok := e.grid.GetCell(label, day); ok {
		return nil, &SlotOccupiedError{Cell: models.CellRef{TimeSlot: label, Day: day}, Occupant: occupant}
	}
	normalized := NormalizeSession(session)
	e.grid.setCell(label, day, &normalized)
	return e.Conflicts(), nil
}

// MoveSession relocates the session at the source cell to the destination cell.
// Moving a session onto its own cell succeeds without change.
func (e *Engine) MoveSession(fromLabel string, fromDay models.DayOfWeek, toLabel string, toDay models.DayOfWeek) ([]models.Conflict, error) {
	if err := validateCell(fromLabel, fromDay); err != nil {
		return nil, err
	}
	if err := validateCell(toLabel, toDay); err != nil {
		return nil, err
	}
	session, ok := e.grid.GetCell(fromLabel, fromDay)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", fromDay, fromLabel, ErrSlotEmpty)
	}
	if fromLabel == toLabel && fromDay == toDay {
		return e.Conflicts(), nil
	}
	if occupant, taken := e.grid.GetCell(toLabel, toDay); taken {
		return nil, &SlotOccupiedError{Cell: models.CellRef{TimeSlot: toLabel, Day: toDay}, Occupant: occupant}
	}
	e.grid.setCell(fromLabel, fromDay, nil)
	e.grid.setCell(toLabel, toDay, &session)
	return e.Conflicts(), nil
}

// DeleteSession clears (label, day). Clearing an empty cell is not an error.
func (e *Engine) DeleteSession(label string, day models.DayOfWeek) ([]models.Conflict, error) {
	if err := validateCell(label, day); err != nil {
		return nil, err
	}
	e.grid.setCell(label, day, nil)
	return e.Conflicts(), nil
}

// ReplaceGrid loads rows wholesale and returns the conflicts of the new grid.
func (e *Engine) ReplaceGrid(rows []models.TimetableRow) []models.Conflict {
	e.grid.ReplaceAll(rows)
	return e.Conflicts()
}

func validateCell(label string, day models.DayOfWeek) error {
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("time slot is required: %w", ErrInvalidCell)
	}
	if !day.Valid() {
		return fmt.Errorf("unknown day %q: %w", day, ErrInvalidCell)
	}
	return nil
}
