package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type timetableSnapshotRepository interface {
	CreateVersioned(ctx context.Context, snapshot *models.TimetableSnapshot) error
	Latest(ctx context.Context, timetableID string) (*models.TimetableSnapshot, error)
	ListVersions(ctx context.Context, timetableID string) ([]models.TimetableSnapshot, error)
}

// TimetableConfig tunes the grid workspaces.
type TimetableConfig struct {
	Slots       *timetable.SlotTable
	Scope       timetable.Scope
	SeedDefault bool
}

// workspace is one open timetable. mu serialises every engine call on it.
type workspace struct {
	mu      sync.Mutex
	loaded  bool
	engine  *timetable.Engine
	version int
	dirty   bool
}

// TimetableService keeps one in-memory grid per timetable id and persists snapshots on demand.
type TimetableService struct {
	repo      timetableSnapshotRepository
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       TimetableConfig

	mu         sync.Mutex
	workspaces map[string]*workspace
}

// NewTimetableService constructs the service.
func NewTimetableService(repo timetableSnapshotRepository, metrics *MetricsService, cfg TimetableConfig, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Slots == nil {
		cfg.Slots = timetable.DefaultSlotTable()
	}
	if cfg.Scope == "" {
		cfg.Scope = timetable.ScopeWeek
	}
	registerTimetableValidations(validate, logger)
	return &TimetableService{
		repo:       repo,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		workspaces: make(map[string]*workspace),
	}
}

func registerTimetableValidations(validate *validator.Validate, logger *zap.Logger) {
	if err := validate.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseDay(fl.Field().String())
		return ok
	}); err != nil {
		logger.Error("failed to register weekday validation", zap.Error(err))
	}
	if err := validate.RegisterValidation("session_kind", func(fl validator.FieldLevel) bool {
		return models.SessionKind(strings.ToLower(fl.Field().String())).Valid()
	}); err != nil {
		logger.Error("failed to register session_kind validation", zap.Error(err))
	}
}

// Get returns the full grid with its conflicts.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.TimetableState, error) {
	var state *models.TimetableState
	err := s.withWorkspace(ctx, id, func(ws *workspace) error {
		state = s.state(id, ws, ws.engine.Grid(), ws.engine.Conflicts())
		return nil
	})
	return state, err
}

// Conflicts recomputes the conflict set of a timetable.
func (s *TimetableService) Conflicts(ctx context.Context, id string) ([]models.Conflict, error) {
	var conflicts []models.Conflict
	err := s.withWorkspace(ctx, id, func(ws *workspace) error {
		conflicts = ws.engine.Conflicts()
		return nil
	})
	return conflicts, err
}

// View returns a filtered projection. Conflicts are those of the full grid.
func (s *TimetableService) View(ctx context.Context, id string, query dto.TimetableViewQuery) (*models.TimetableState, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid view filter")
	}
	filter := models.ViewFilter{
		Kind:    models.SessionKind(strings.ToLower(query.Kind)),
		Teacher: strings.TrimSpace(query.Teacher),
		Room:    strings.TrimSpace(query.Room),
	}
	var state *models.TimetableState
	err := s.withWorkspace(ctx, id, func(ws *workspace) error {
		conflicts := ws.engine.Conflicts()
		state = s.state(id, ws, timetable.Project(ws.engine.Grid(), filter), conflicts)
		return nil
	})
	return state, err
}

// AddSession places a new session in an empty cell.
func (s *TimetableService) AddSession(ctx context.Context, id string, req dto.AddSessionRequest) (*models.TimetableState, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	day, _ := models.ParseDay(req.Day)
	session := models.Session{
		ID:      strings.TrimSpace(req.Session.ID),
		Kind:    models.SessionKind(strings.ToLower(req.Session.Type)),
		Content: req.Session.Content,
		Teacher: req.Session.Teacher,
		Room:    req.Session.Room,
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	label := strings.TrimSpace(req.TimeSlot)

	return s.mutate(ctx, id, "add", func(engine *timetable.Engine) ([]models.Conflict, error) {
		return engine.AddSession(label, day, session)
	})
}

// MoveSession relocates a session between cells.
func (s *TimetableService) MoveSession(ctx context.Context, id string, req dto.MoveSessionRequest) (*models.TimetableState, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid move payload")
	}
	fromDay, _ := models.ParseDay(req.FromDay)
	toDay, _ := models.ParseDay(req.ToDay)
	fromLabel := strings.TrimSpace(req.FromTimeSlot)
	toLabel := strings.TrimSpace(req.ToTimeSlot)

	return s.mutate(ctx, id, "move", func(engine *timetable.Engine) ([]models.Conflict, error) {
		return engine.MoveSession(fromLabel, fromDay, toLabel, toDay)
	})
}

// DeleteSession clears a cell. Clearing an empty cell succeeds.
func (s *TimetableService) DeleteSession(ctx context.Context, id string, req dto.DeleteSessionRequest) (*models.TimetableState, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid delete request")
	}
	day, _ := models.ParseDay(req.Day)
	label := strings.TrimSpace(req.TimeSlot)

	return s.mutate(ctx, id, "delete", func(engine *timetable.Engine) ([]models.Conflict, error) {
		return engine.DeleteSession(label, day)
	})
}

// Replace swaps the whole grid for rows.
func (s *TimetableService) Replace(ctx context.Context, id string, req dto.ReplaceTimetableRequest) (*models.TimetableState, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	for _, row := range req.Rows {
		if strings.TrimSpace(row.Time) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "every row needs a time slot")
		}
		for day := range row.Days {
			if !day.Valid() {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day %q", day))
			}
		}
	}

	return s.mutate(ctx, id, "replace", func(engine *timetable.Engine) ([]models.Conflict, error) {
		return engine.ReplaceGrid(req.Rows), nil
	})
}

// Save writes the current grid as a new snapshot version.
func (s *TimetableService) Save(ctx context.Context, id, savedBy string) (*models.TimetableSnapshot, error) {
	if s.repo == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "snapshot store unavailable")
	}
	id, err := normalizeTimetableID(id)
	if err != nil {
		return nil, err
	}
	var snapshot *models.TimetableSnapshot
	err = s.withWorkspace(ctx, id, func(ws *workspace) error {
		payload, err := json.Marshal(ws.engine.Grid().Rows())
		if err != nil {
			return fmt.Errorf("encode timetable %s: %w", id, err)
		}
		candidate := &models.TimetableSnapshot{
			TimetableID: id,
			Payload:     types.JSONText(payload),
			SavedBy:     savedBy,
		}
		if err := s.repo.CreateVersioned(ctx, candidate); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save timetable")
		}
		ws.version = candidate.Version
		ws.dirty = false
		snapshot = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("timetable saved",
		zap.String("timetable_id", id),
		zap.Int("version", snapshot.Version),
		zap.String("saved_by", savedBy),
	)
	return snapshot, nil
}

// Versions lists stored snapshots newest first.
func (s *TimetableService) Versions(ctx context.Context, id string) ([]models.TimetableSnapshot, error) {
	id, err := normalizeTimetableID(id)
	if err != nil {
		return nil, err
	}
	if s.repo == nil {
		return []models.TimetableSnapshot{}, nil
	}
	versions, err := s.repo.ListVersions(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable versions")
	}
	return versions, nil
}

// Rows returns a copy of the current grid rows, used by exports.
func (s *TimetableService) Rows(ctx context.Context, id string) ([]models.TimetableRow, error) {
	var rows []models.TimetableRow
	err := s.withWorkspace(ctx, id, func(ws *workspace) error {
		rows = ws.engine.Grid().Rows()
		return nil
	})
	return rows, err
}

// Slots exposes the configured slot table.
func (s *TimetableService) Slots() *timetable.SlotTable {
	return s.cfg.Slots
}

func (s *TimetableService) mutate(ctx context.Context, id, operation string, apply func(*timetable.Engine) ([]models.Conflict, error)) (*models.TimetableState, error) {
	var state *models.TimetableState
	err := s.withWorkspace(ctx, id, func(ws *workspace) error {
		conflicts, err := apply(ws.engine)
		if err != nil {
			s.metrics.RecordMutation(operation, true)
			s.logger.Debug("timetable mutation refused",
				zap.String("timetable_id", id),
				zap.String("operation", operation),
				zap.Error(err),
			)
			return mapEngineError(err)
		}
		ws.dirty = true
		s.metrics.RecordMutation(operation, false)
		s.metrics.SetConflicts(id, len(conflicts))
		state = s.state(id, ws, ws.engine.Grid(), conflicts)
		return nil
	})
	return state, err
}

// withWorkspace runs fn holding the workspace lock, loading the grid on first use.
func (s *TimetableService) withWorkspace(ctx context.Context, id string, fn func(*workspace) error) error {
	id, err := normalizeTimetableID(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	ws, ok := s.workspaces[id]
	if !ok {
		ws = &workspace{}
		s.workspaces[id] = ws
	}
	s.mu.Unlock()

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if !ws.loaded {
		if err := s.load(ctx, id, ws); err != nil {
			return err
		}
	}
	return fn(ws)
}

// load requires ws.mu.
func (s *TimetableService) load(ctx context.Context, id string, ws *workspace) error {
	var rows []models.TimetableRow
	version := 0

	if s.repo != nil {
		snapshot, err := s.repo.Latest(ctx, id)
		switch {
		case err == nil:
			if err := json.Unmarshal(snapshot.Payload, &rows); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored timetable is corrupt")
			}
			version = snapshot.Version
		case errors.Is(err, sql.ErrNoRows):
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
		}
	}

	if version == 0 && s.cfg.SeedDefault {
		rows = timetable.SeedRows()
	}

	grid := timetable.NewGrid()
	grid.ReplaceAll(rows)
	ws.engine = timetable.NewEngine(grid, timetable.WithScope(s.cfg.Scope, s.cfg.Slots))
	ws.version = version
	ws.loaded = true

	conflicts := ws.engine.Conflicts()
	s.metrics.SetConflicts(id, len(conflicts))
	s.logger.Info("timetable opened",
		zap.String("timetable_id", id),
		zap.Int("version", version),
		zap.Int("occupied_cells", grid.Len()),
		zap.Int("conflicts", len(conflicts)),
	)
	return nil
}

func (s *TimetableService) state(id string, ws *workspace, grid *timetable.Grid, conflicts []models.Conflict) *models.TimetableState {
	return &models.TimetableState{
		ID:        id,
		Version:   ws.version,
		Dirty:     ws.dirty,
		Rows:      grid.Rows(),
		Conflicts: conflicts,
		Summary:   timetable.Summarize(grid, conflicts),
	}
}

func normalizeTimetableID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 64 {
		return "", appErrors.Clone(appErrors.ErrValidation, "invalid timetable id")
	}
	return id, nil
}

func mapEngineError(err error) error {
	var occupied *timetable.SlotOccupiedError
	switch {
	case errors.As(err, &occupied):
		return appErrors.Wrap(err, appErrors.ErrSlotOccupied.Code, appErrors.ErrSlotOccupied.Status,
			fmt.Sprintf("%s %s is already occupied", occupied.Cell.Day, occupied.Cell.TimeSlot))
	case errors.Is(err, timetable.ErrSlotEmpty):
		return appErrors.Wrap(err, appErrors.ErrSlotEmpty.Code, appErrors.ErrSlotEmpty.Status, appErrors.ErrSlotEmpty.Message)
	case errors.Is(err, timetable.ErrInvalidCell):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable cell")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
}
