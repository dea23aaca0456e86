package timetable

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses "H:MM" or "HH:MM" in 24-hour form.
func ParseClock(raw string) (ClockTime, bool) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 {
		return ClockTime{}, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, false
	}
	if len(parts[1]) != 2 {
		return ClockTime{}, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return ClockTime{}, false
	}
	return ClockTime{Hour: hour, Minute: minute}, true
}

type slotSpan struct {
	start  ClockTime
	end    ClockTime
	hasEnd bool
}

// SlotTable is the closed lookup table from time-slot label to wall-clock start.
// Labels missing from the table resolve to "unknown" and never cause a failure.
type SlotTable struct {
	spans map[string]slotSpan
}

// DefaultSlotLabels is the label set used when none is configured.
var DefaultSlotLabels = []string{
	"8:00-9:00",
	"9:00-10:00",
	"9:10-10:30",
	"10:00-11:00",
	"10:40-12:00",
	"11:00-12:00",
	"12:00-13:00",
	"13:00-14:00",
	"14:00-15:00",
	"15:00-16:00",
	"16:00-17:00",
}

// NewSlotTable builds a table from explicit label -> "HH:MM" start entries.
func NewSlotTable(starts map[string]string) (*SlotTable, error) {
	table := &SlotTable{spans: make(map[string]slotSpan, len(starts))}
	for label, raw := range starts {
		start, ok := ParseClock(raw)
		if !ok {
			return nil, fmt.Errorf("time slot %q: invalid start %q", label, raw)
		}
		table.spans[label] = withLabelEnd(label, start)
	}
	return table, nil
}

// SlotTableFromLabels derives start times from the labels themselves ("8:00-9:00" starts at 08:00).
// An entry may override the derived start with "label=HH:MM", e.g. "2:00-3:00=14:00".
func SlotTableFromLabels(entries []string) (*SlotTable, error) {
	table := &SlotTable{spans: make(map[string]slotSpan, len(entries))}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		label, override, hasOverride := strings.Cut(entry, "=")
		label = strings.TrimSpace(label)
		if hasOverride {
			start, ok := ParseClock(override)
			if !ok {
				return nil, fmt.Errorf("time slot %q: invalid start %q", label, override)
			}
			table.spans[label] = withLabelEnd(label, start)
			continue
		}
		from, _, _ := splitLabel(label)
		start, ok := ParseClock(from)
		if !ok {
			return nil, fmt.Errorf("time slot %q: cannot derive start time", label)
		}
		table.spans[label] = withLabelEnd(label, start)
	}
	return table, nil
}

// DefaultSlotTable returns the table for DefaultSlotLabels.
func DefaultSlotTable() *SlotTable {
	table, err := SlotTableFromLabels(DefaultSlotLabels)
	if err != nil {
		panic(err)
	}
	return table
}

// StartOf resolves the label's start. The boolean is false for unknown labels.
func (t *SlotTable) StartOf(label string) (ClockTime, bool) {
	if t == nil {
		return ClockTime{}, false
	}
	span, ok := t.spans[label]
	return span.start, ok
}

// Span returns the start and end of a label when both are known.
func (t *SlotTable) Span(label string) (ClockTime, ClockTime, bool) {
	if t == nil {
		return ClockTime{}, ClockTime{}, false
	}
	span, ok := t.spans[label]
	if !ok || !span.hasEnd {
		return ClockTime{}, ClockTime{}, false
	}
	return span.start, span.end, true
}

// Known reports whether the label has a lookup entry.
func (t *SlotTable) Known(label string) bool {
	_, ok := t.StartOf(label)
	return ok
}

// Compare orders labels by resolved start. Unknown labels sort last and compare equal to each other.
func (t *SlotTable) Compare(a, b string) int {
	startA, okA := t.StartOf(a)
	startB, okB := t.StartOf(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}
	return startA.Minutes() - startB.Minutes()
}

// SortLabels sorts labels in place by start time, keeping input order among ties.
func (t *SlotTable) SortLabels(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		return t.Compare(labels[i], labels[j]) < 0
	})
}

// Labels returns every configured label ordered by start time.
func (t *SlotTable) Labels() []string {
	if t == nil {
		return nil
	}
	labels := make([]string, 0, len(t.spans))
	for label := range t.spans {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	t.SortLabels(labels)
	return labels
}

// On resolves the label's start on the calendar date of day, in day's location.
func (t *SlotTable) On(day time.Time, label string) (time.Time, bool) {
	start, ok := t.StartOf(label)
	if !ok {
		return time.Time{}, false
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, start.Hour, start.Minute, 0, 0, day.Location()), true
}

func withLabelEnd(label string, start ClockTime) slotSpan {
	span := slotSpan{start: start}
	from, to, ok := splitLabel(label)
	if !ok {
		return span
	}
	labelStart, okStart := ParseClock(from)
	labelEnd, okEnd := ParseClock(to)
	if !okStart || !okEnd || labelEnd.Minutes() <= labelStart.Minutes() {
		return span
	}
	endMinutes := start.Minutes() + labelEnd.Minutes() - labelStart.Minutes()
	if endMinutes >= 24*60 {
		return span
	}
	span.end = ClockTime{Hour: endMinutes / 60, Minute: endMinutes % 60}
	span.hasEnd = true
	return span
}

func splitLabel(label string) (string, string, bool) {
	label = strings.ReplaceAll(label, "–", "-")
	from, to, ok := strings.Cut(label, "-")
	return strings.TrimSpace(from), strings.TrimSpace(to), ok
}
