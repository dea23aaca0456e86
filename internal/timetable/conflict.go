package timetable

import (
	"regexp"
	"strings"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Scope selects which repeated bookings count as conflicts.
type Scope string

const (
	// ScopeWeek flags a teacher or room that appears in two or more occupied cells anywhere in the week.
	ScopeWeek Scope = "week"
	// ScopeOverlap flags only occurrences on the same day whose time slots overlap.
	ScopeOverlap Scope = "overlap"
)

// ParseScope resolves a configured scope name.
func ParseScope(raw string) (Scope, bool) {
	switch Scope(strings.ToLower(strings.TrimSpace(raw))) {
	case ScopeWeek, "":
		return ScopeWeek, true
	case ScopeOverlap:
		return ScopeOverlap, true
	}
	return "", false
}

type detectConfig struct {
	scope Scope
	slots *SlotTable
}

// DetectOption configures DetectConflicts.
type DetectOption func(*detectConfig)

// WithScope selects the conflict scope. ScopeOverlap needs slot spans from the table.
func WithScope(scope Scope, slots *SlotTable) DetectOption {
	return func(c *detectConfig) {
		c.scope = scope
		c.slots = slots
	}
}

type occurrenceIndex struct {
	keys  []string
	items map[string][]models.CellRef
}

func newOccurrenceIndex() *occurrenceIndex {
	return &occurrenceIndex{items: make(map[string][]models.CellRef)}
}

func (idx *occurrenceIndex) add(key string, ref models.CellRef) {
	if _, ok := idx.items[key]; !ok {
		idx.keys = append(idx.keys, key)
	}
	idx.items[key] = append(idx.items[key], ref)
}

// DetectConflicts reports teacher and room double-bookings in one pass over the grid.
// Teachers are reported before rooms; callers should treat the result as a set.
// Sessions without a room take no part in room checks.
func DetectConflicts(grid *Grid, opts ...DetectOption) []models.Conflict {
	cfg := detectConfig{scope: ScopeWeek}
	for _, opt := range opts {
		opt(&cfg)
	}

	teachers := newOccurrenceIndex()
	rooms := newOccurrenceIndex()
	grid.EachOccupied(func(c Cell) bool {
		if teacher := strings.TrimSpace(c.Session.Teacher); teacher != "" {
			teachers.add(teacher, c.Ref())
		}
		if room := strings.TrimSpace(c.Session.Room); room != "" {
			rooms.add(room, c.Ref())
		}
		return true
	})

	conflicts := make([]models.Conflict, 0)
	conflicts = append(conflicts, collect(models.ConflictResourceTeacher, teachers, cfg)...)
	conflicts = append(conflicts, collect(models.ConflictResourceRoom, rooms, cfg)...)
	return conflicts
}

func collect(resource models.ConflictResource, idx *occurrenceIndex, cfg detectConfig) []models.Conflict {
	var out []models.Conflict
	for _, key := range idx.keys {
		refs := idx.items[key]
		if len(refs) < 2 {
			continue
		}
		if cfg.scope != ScopeOverlap {
			out = append(out, models.Conflict{Resource: resource, Identity: key, Occurrences: refs})
			continue
		}
		for _, group := range overlapGroups(refs, cfg.slots) {
			out = append(out, models.Conflict{Resource: resource, Identity: key, Occurrences: group})
		}
	}
	return out
}

// overlapGroups returns, per day, the occurrences that overlap at least one other occurrence.
func overlapGroups(refs []models.CellRef, slots *SlotTable) [][]models.CellRef {
	byDay := make(map[models.DayOfWeek][]models.CellRef)
	for _, ref := range refs {
		byDay[ref.Day] = append(byDay[ref.Day], ref)
	}
	var groups [][]models.CellRef
	for _, day := range models.Week {
		sameDay := byDay[day]
		if len(sameDay) < 2 {
			continue
		}
		involved := make([]bool, len(sameDay))
		for i := 0; i < len(sameDay); i++ {
			for j := i + 1; j < len(sameDay); j++ {
				if slotsOverlap(slots, sameDay[i].TimeSlot, sameDay[j].TimeSlot) {
					involved[i] = true
					involved[j] = true
				}
			}
		}
		var group []models.CellRef
		for i, ref := range sameDay {
			if involved[i] {
				group = append(group, ref)
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

func slotsOverlap(slots *SlotTable, a, b string) bool {
	if a == b {
		return true
	}
	startA, endA, okA := slots.Span(a)
	startB, endB, okB := slots.Span(b)
	if !okA || !okB {
		sa, knownA := slots.StartOf(a)
		sb, knownB := slots.StartOf(b)
		return knownA && knownB && sa == sb
	}
	return startA.Minutes() < endB.Minutes() && startB.Minutes() < endA.Minutes()
}

var legacyRoomPattern = regexp.MustCompile(`\(([^()]*)\)\s*$`)

// ExtractRoom recovers the room from legacy "CODE (ROOM)" display content.
// It returns "" when the content has no parenthesised suffix.
func ExtractRoom(content string) string {
	match := legacyRoomPattern.FindStringSubmatch(content)
	if len(match) < 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// NormalizeSession trims fields, defaults the kind to lecture and fills Room from legacy content.
func NormalizeSession(s models.Session) models.Session {
	s.Content = strings.TrimSpace(s.Content)
	s.Teacher = strings.TrimSpace(s.Teacher)
	s.Room = strings.TrimSpace(s.Room)
	if s.Kind == "" {
		s.Kind = models.SessionKindLecture
	}
	if s.Room == "" {
		s.Room = ExtractRoom(s.Content)
	}
	return s
}
