package timetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		raw  string
		want ClockTime
		ok   bool
	}{
		{"8:00", ClockTime{Hour: 8}, true},
		{"09:10", ClockTime{Hour: 9, Minute: 10}, true},
		{" 23:59 ", ClockTime{Hour: 23, Minute: 59}, true},
		{"24:00", ClockTime{}, false},
		{"9:5", ClockTime{}, false},
		{"noon", ClockTime{}, false},
		{"", ClockTime{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseClock(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestSlotTableStartOfUnknownLabel(t *testing.T) {
	table := DefaultSlotTable()

	start, ok := table.StartOf("9:10-10:30")
	require.True(t, ok)
	assert.Equal(t, "09:10", start.String())

	_, ok = table.StartOf("after lunch")
	assert.False(t, ok)
	assert.False(t, table.Known("after lunch"))
}

func TestSlotTableSpan(t *testing.T) {
	table, err := SlotTableFromLabels([]string{"9:10-10:30", "2:00-3:00=14:00", "Assembly=07:30"})
	require.NoError(t, err)

	start, end, ok := table.Span("9:10-10:30")
	require.True(t, ok)
	assert.Equal(t, 9*60+10, start.Minutes())
	assert.Equal(t, 10*60+30, end.Minutes())

	start, end, ok = table.Span("2:00-3:00")
	require.True(t, ok)
	assert.Equal(t, "14:00", start.String())
	assert.Equal(t, "15:00", end.String())

	_, _, ok = table.Span("Assembly")
	assert.False(t, ok, "labels without a range have no end")
	start, ok = table.StartOf("Assembly")
	require.True(t, ok)
	assert.Equal(t, "07:30", start.String())
}

func TestSlotTableFromLabelsRejectsUnparseable(t *testing.T) {
	_, err := SlotTableFromLabels([]string{"morning"})
	require.Error(t, err)

	_, err = NewSlotTable(map[string]string{"P1": "7am"})
	require.Error(t, err)
}

func TestSlotTableCompareUnknownLast(t *testing.T) {
	table := DefaultSlotTable()
	labels := []string{"TBA", "10:00-11:00", "Later", "8:00-9:00", "9:10-10:30"}

	table.SortLabels(labels)

	assert.Equal(t, []string{"8:00-9:00", "9:10-10:30", "10:00-11:00", "TBA", "Later"}, labels)
	assert.Equal(t, 0, table.Compare("TBA", "Later"))
	assert.Negative(t, table.Compare("8:00-9:00", "TBA"))
	assert.Positive(t, table.Compare("TBA", "8:00-9:00"))
}

func TestSlotTableLabelsOrdered(t *testing.T) {
	labels := DefaultSlotTable().Labels()
	require.Len(t, labels, len(DefaultSlotLabels))
	assert.Equal(t, "8:00-9:00", labels[0])
	assert.Equal(t, "16:00-17:00", labels[len(labels)-1])
}

func TestSlotTableOn(t *testing.T) {
	loc := time.FixedZone("WIB", 7*60*60)
	day := time.Date(2024, time.March, 4, 15, 45, 0, 0, loc)

	at, ok := DefaultSlotTable().On(day, "9:10-10:30")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, time.March, 4, 9, 10, 0, 0, loc), at)

	_, ok = DefaultSlotTable().On(day, "unknown")
	assert.False(t, ok)
}

func TestNilSlotTableIsUnknown(t *testing.T) {
	var table *SlotTable
	_, ok := table.StartOf("8:00-9:00")
	assert.False(t, ok)
	assert.Nil(t, table.Labels())
}
