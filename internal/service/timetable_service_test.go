package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type stubSnapshotRepo struct {
	mu        sync.Mutex
	snapshots map[string][]models.TimetableSnapshot
	latestErr error
	latestHit int
}

func (r *stubSnapshotRepo) CreateVersioned(ctx context.Context, snapshot *models.TimetableSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshots == nil {
		r.snapshots = make(map[string][]models.TimetableSnapshot)
	}
	snapshot.ID = "snap"
	snapshot.Version = len(r.snapshots[snapshot.TimetableID]) + 1
	r.snapshots[snapshot.TimetableID] = append(r.snapshots[snapshot.TimetableID], *snapshot)
	return nil
}

func (r *stubSnapshotRepo) Latest(ctx context.Context, timetableID string) (*models.TimetableSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latestHit++
	if r.latestErr != nil {
		return nil, r.latestErr
	}
	list := r.snapshots[timetableID]
	if len(list) == 0 {
		return nil, sql.ErrNoRows
	}
	latest := list[len(list)-1]
	return &latest, nil
}

func (r *stubSnapshotRepo) ListVersions(ctx context.Context, timetableID string) ([]models.TimetableSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TimetableSnapshot(nil), r.snapshots[timetableID]...), nil
}

func newTestTimetableService(repo timetableSnapshotRepository, seed bool, scope timetable.Scope) *TimetableService {
	return NewTimetableService(repo, NewMetricsService(), TimetableConfig{Scope: scope, SeedDefault: seed}, nil, nil)
}

func addRequest(slot, day, content, teacher, room string) dto.AddSessionRequest {
	return dto.AddSessionRequest{
		TimeSlot: slot,
		Day:      day,
		Session:  dto.SessionPayload{Type: "lecture", Content: content, Teacher: teacher, Room: room},
	}
}

func TestTimetableServiceOpensSeedWhenNoSnapshot(t *testing.T) {
	repo := &stubSnapshotRepo{}
	svc := newTestTimetableService(repo, true, timetable.ScopeWeek)

	state, err := svc.Get(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, 0, state.Version)
	assert.Equal(t, 7, state.Summary.OccupiedCells)
	assert.Len(t, state.Rows, 5)
	assert.NotEmpty(t, state.Conflicts)

	_, err = svc.Get(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.latestHit)
}

func TestTimetableServiceOpensEmptyWithoutSeed(t *testing.T) {
	svc := newTestTimetableService(&stubSnapshotRepo{}, false, timetable.ScopeWeek)

	state, err := svc.Get(context.Background(), "term-2")
	require.NoError(t, err)
	assert.Empty(t, state.Rows)
	assert.NotNil(t, state.Conflicts)
	assert.Empty(t, state.Conflicts)
}

func TestTimetableServiceLoadsLatestSnapshot(t *testing.T) {
	rows := []models.TimetableRow{{
		Time: "8:00-9:00",
		Days: map[models.DayOfWeek]*models.Session{
			models.Monday: {ID: "s1", Kind: models.SessionKindLecture, Content: "CS101 (A12)", Teacher: "Dr. Smith"},
		},
	}}
	payload, err := json.Marshal(rows)
	require.NoError(t, err)
	repo := &stubSnapshotRepo{snapshots: map[string][]models.TimetableSnapshot{
		"default": {{TimetableID: "default", Version: 4, Payload: types.JSONText(payload)}},
	}}
	svc := newTestTimetableService(repo, true, timetable.ScopeWeek)

	state, err := svc.Get(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, 4, state.Version)
	assert.Equal(t, 1, state.Summary.OccupiedCells)
	assert.Equal(t, "A12", state.Rows[0].Days[models.Monday].Room)
}

func TestTimetableServiceLoadFailure(t *testing.T) {
	svc := newTestTimetableService(&stubSnapshotRepo{latestErr: errors.New("db down")}, true, timetable.ScopeWeek)

	_, err := svc.Get(context.Background(), "default")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal.Code))
}

func TestTimetableServiceAddSessionDetectsConflict(t *testing.T) {
	svc := newTestTimetableService(nil, false, timetable.ScopeWeek)
	ctx := context.Background()

	_, err := svc.AddSession(ctx, "default", addRequest("8:00-9:00", "Monday", "CS101", "Dr. Smith", "A12"))
	require.NoError(t, err)
	state, err := svc.AddSession(ctx, "default", addRequest("9:10-10:30", "mon", "CS102", "Dr. Smith", "B04"))
	require.NoError(t, err)

	require.Len(t, state.Conflicts, 1)
	assert.Equal(t, models.ConflictResourceTeacher, state.Conflicts[0].Resource)
	assert.True(t, state.Dirty)
	assert.Equal(t, 2, state.Summary.OccupiedCells)
}

func TestTimetableServiceAddSessionOccupied(t *testing.T) {
	svc := newTestTimetableService(nil, false, timetable.ScopeWeek)
	ctx := context.Background()

	_, err := svc.AddSession(ctx, "default", addRequest("8:00-9:00", "Monday", "CS101", "Dr. Smith", "A12"))
	require.NoError(t, err)
	_, err = svc.AddSession(ctx, "default", addRequest("8:00-9:00", "Monday", "MA201", "Dr. Rahma", "B04"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSlotOccupied.Code))
	assert.True(t, errors.Is(err, timetable.ErrSlotOccupied))

	state, err := svc.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "CS101", state.Rows[0].Days[models.Monday].Content)
	assert.Equal(t, 1, state.Summary.OccupiedCells)
}

func TestTimetableServiceAddSessionValidation(t *testing.T) {
	svc := newTestTimetableService(nil, false, timetable.ScopeWeek)

	_, err := svc.AddSession(context.Background(), "default", addRequest("8:00-9:00", "Funday", "CS101", "Dr. Smith", ""))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation.Code))

	req := addRequest("8:00-9:00", "Monday", "CS101", "Dr. Smith", "")
	req.Session.Type = "seminar"
	_, err = svc.AddSession(context.Background(), "default", req)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation.Code))

	_, err = svc.AddSession(context.Background(), " ", addRequest("8:00-9:00", "Monday", "CS101", "Dr. Smith", ""))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation.Code))
}

func TestTimetableServiceMoveSession(t *testing.T) {
	svc := newTestTimetableService(nil, false, timetable.ScopeOverlap)
	ctx := context.Background()

	_, err := svc.AddSession(ctx, "default", addRequest("8:00-9:00", "Monday", "CS101", "Dr. Smith", "A12"))
	require.NoError(t, err)
	_, err = svc.AddSession(ctx, "default", addRequest("8:00-9:00", "Tuesday", "CS102", "Dr. Smith", "A12"))
	require.NoError(t, err)

	_, err = svc.MoveSession(ctx, "default", dto.MoveSessionRequest{FromTimeSlot: "8:00-9:00", FromDay: "Monday", ToTimeSlot: "8:00-9:00", ToDay: "Tuesday"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSlotOccupied.Code))

	_, err = svc.MoveSession(ctx, "default", dto.MoveSessionRequest{FromTimeSlot: "9:10-10:30", FromDay: "Monday", ToTimeSlot: "8:00-9:00", ToDay: "Friday"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSlotEmpty.Code))

	state, err := svc.MoveSession(ctx, "default", dto.MoveSessionRequest{FromTimeSlot: "8:00-9:00", FromDay: "Monday", ToTimeSlot: "9:10-10:30", ToDay: "Friday"})
	require.NoError(t, err)
	assert.Empty(t, state.Conflicts)
	assert.Equal(t, 2, state.Summary.OccupiedCells)
}

func TestTimetableServiceDeleteIsIdempotent(t *testing.T) {
	svc := newTestTimetableService(nil, true, timetable.ScopeWeek)
	ctx := context.Background()
	req := dto.DeleteSessionRequest{TimeSlot: "8:00-9:00", Day: "Monday"}

	first, err := svc.DeleteSession(ctx, "default", req)
	require.NoError(t, err)
	second, err := svc.DeleteSession(ctx, "default", req)
	require.NoError(t, err)

	assert.Equal(t, 6, first.Summary.OccupiedCells)
	assert.Equal(t, first.Rows, second.Rows)
	assert.Equal(t, first.Conflicts, second.Conflicts)
}

func TestTimetableServiceReplace(t *testing.T) {
	svc := newTestTimetableService(nil, true, timetable.ScopeWeek)
	ctx := context.Background()

	state, err := svc.Replace(ctx, "default", dto.ReplaceTimetableRequest{Rows: []models.TimetableRow{{
		Time: "8:00-9:00",
		Days: map[models.DayOfWeek]*models.Session{
			models.Monday:  {Content: "CS101 (A12)", Teacher: "Dr. Smith"},
			models.Tuesday: {Content: "CS102 (A12)", Teacher: "Dr. Lee"},
		},
	}}})
	require.NoError(t, err)
	require.Len(t, state.Conflicts, 1)
	assert.Equal(t, models.ConflictResourceRoom, state.Conflicts[0].Resource)
	assert.Equal(t, "A12", state.Conflicts[0].Identity)

	_, err = svc.Replace(ctx, "default", dto.ReplaceTimetableRequest{Rows: []models.TimetableRow{{Time: ""}}})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation.Code))
	_, err = svc.Replace(ctx, "default", dto.ReplaceTimetableRequest{Rows: []models.TimetableRow{{
		Time: "8:00-9:00",
		Days: map[models.DayOfWeek]*models.Session{"Someday": {Content: "X"}},
	}}})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation.Code))
}

func TestTimetableServiceSaveAndReopen(t *testing.T) {
	repo := &stubSnapshotRepo{}
	svc := newTestTimetableService(repo, false, timetable.ScopeWeek)
	ctx := context.Background()

	_, err := svc.AddSession(ctx, "default", addRequest("8:00-9:00", "Monday", "CS101 (A12)", "Dr. Smith", ""))
	require.NoError(t, err)

	snapshot, err := svc.Save(ctx, "default", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Version)
	assert.Equal(t, "admin-1", snapshot.SavedBy)

	state, err := svc.Get(ctx, "default")
	require.NoError(t, err)
	assert.False(t, state.Dirty)
	assert.Equal(t, 1, state.Version)

	reopened := newTestTimetableService(repo, true, timetable.ScopeWeek)
	state, err = reopened.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Summary.OccupiedCells)
	assert.Equal(t, "A12", state.Rows[0].Days[models.Monday].Room)

	versions, err := svc.Versions(ctx, "default")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestTimetableServiceSaveWithoutStore(t *testing.T) {
	svc := newTestTimetableService(nil, true, timetable.ScopeWeek)

	_, err := svc.Save(context.Background(), "default", "admin-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal.Code))
}

func TestTimetableServiceView(t *testing.T) {
	svc := newTestTimetableService(nil, true, timetable.ScopeWeek)

	state, err := svc.View(context.Background(), "default", dto.TimetableViewQuery{Teacher: "dr. smith"})
	require.NoError(t, err)
	assert.Equal(t, 2, state.Summary.OccupiedCells)
	assert.Len(t, state.Rows, 5)

	state, err = svc.View(context.Background(), "default", dto.TimetableViewQuery{Kind: "LAB"})
	require.NoError(t, err)
	assert.Equal(t, 2, state.Summary.OccupiedCells)

	_, err = svc.View(context.Background(), "default", dto.TimetableViewQuery{Kind: "seminar"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation.Code))
}

func TestTimetableServiceWorkspacesAreIndependent(t *testing.T) {
	svc := newTestTimetableService(nil, false, timetable.ScopeWeek)
	ctx := context.Background()

	_, err := svc.AddSession(ctx, "a", addRequest("8:00-9:00", "Monday", "CS101", "Dr. Smith", "A12"))
	require.NoError(t, err)
	state, err := svc.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 0, state.Summary.OccupiedCells)
}

func TestTimetableServiceConcurrentAddsKeepOccupancy(t *testing.T) {
	svc := newTestTimetableService(nil, false, timetable.ScopeWeek)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddSession(ctx, "default", addRequest("8:00-9:00", "Monday", "CS101", "Dr. Smith", "A12"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, timetable.ErrSlotOccupied))
	}
	assert.Equal(t, 1, succeeded)
}
