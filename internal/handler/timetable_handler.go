package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableService interface {
	Get(ctx context.Context, id string) (*models.TimetableState, error)
	Conflicts(ctx context.Context, id string) ([]models.Conflict, error)
	View(ctx context.Context, id string, query dto.TimetableViewQuery) (*models.TimetableState, error)
	AddSession(ctx context.Context, id string, req dto.AddSessionRequest) (*models.TimetableState, error)
	MoveSession(ctx context.Context, id string, req dto.MoveSessionRequest) (*models.TimetableState, error)
	DeleteSession(ctx context.Context, id string, req dto.DeleteSessionRequest) (*models.TimetableState, error)
	Replace(ctx context.Context, id string, req dto.ReplaceTimetableRequest) (*models.TimetableState, error)
	Save(ctx context.Context, id, savedBy string) (*models.TimetableSnapshot, error)
	Versions(ctx context.Context, id string) ([]models.TimetableSnapshot, error)
}

// TimetableHandler exposes the grid editor.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(service timetableService) *TimetableHandler {
	return &TimetableHandler{service: service}
}

// Get godoc
// @Summary Get timetable grid
// @Description Returns the grid rows, the current conflict set and a summary.
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	state, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Conflicts godoc
// @Summary List conflicts
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/conflicts [get]
func (h *TimetableHandler) Conflicts(c *gin.Context) {
	conflicts, err := h.service.Conflicts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil, map[string]interface{}{"count": len(conflicts)})
}

// View godoc
// @Summary Filtered timetable view
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Param kind query string false "Session kind"
// @Param teacher query string false "Teacher name"
// @Param room query string false "Room"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/view [get]
func (h *TimetableHandler) View(c *gin.Context) {
	var query dto.TimetableViewQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid view filter"))
		return
	}
	state, err := h.service.View(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// AddSession godoc
// @Summary Add a session to an empty cell
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.AddSessionRequest true "Session placement"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/{id}/sessions [post]
func (h *TimetableHandler) AddSession(c *gin.Context) {
	var req dto.AddSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	id := c.Param("id")
	state, err := h.service.AddSession(c.Request.Context(), id, req)
	if err != nil {
		h.refuse(c, id, err)
		return
	}
	response.Created(c, state)
}

// MoveSession godoc
// @Summary Move a session between cells
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.MoveSessionRequest true "Source and target cells"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/{id}/sessions/move [post]
func (h *TimetableHandler) MoveSession(c *gin.Context) {
	var req dto.MoveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid move payload"))
		return
	}
	id := c.Param("id")
	state, err := h.service.MoveSession(c.Request.Context(), id, req)
	if err != nil {
		h.refuse(c, id, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// DeleteSession godoc
// @Summary Clear a cell
// @Description Clearing an empty cell succeeds and leaves the grid unchanged.
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Param timeSlot query string true "Time slot label"
// @Param day query string true "Day of week"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/sessions [delete]
func (h *TimetableHandler) DeleteSession(c *gin.Context) {
	var req dto.DeleteSessionRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cell reference"))
		return
	}
	id := c.Param("id")
	state, err := h.service.DeleteSession(c.Request.Context(), id, req)
	if err != nil {
		h.refuse(c, id, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Replace godoc
// @Summary Replace the whole grid
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.ReplaceTimetableRequest true "Rows"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id} [put]
func (h *TimetableHandler) Replace(c *gin.Context) {
	var req dto.ReplaceTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable payload"))
		return
	}
	state, err := h.service.Replace(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Save godoc
// @Summary Persist a snapshot of the grid
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 201 {object} response.Envelope
// @Router /timetables/{id}/save [post]
func (h *TimetableHandler) Save(c *gin.Context) {
	snapshot, err := h.service.Save(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, snapshot)
}

// Versions godoc
// @Summary List saved snapshot versions
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/versions [get]
func (h *TimetableHandler) Versions(c *gin.Context) {
	versions, err := h.service.Versions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// refuse reports a rejected edit along with the conflict set, which the refusal left untouched.
func (h *TimetableHandler) refuse(c *gin.Context, id string, err error) {
	if !appErrors.Is(err, appErrors.ErrSlotOccupied.Code) && !appErrors.Is(err, appErrors.ErrSlotEmpty.Code) {
		response.Error(c, err)
		return
	}
	conflicts, cerr := h.service.Conflicts(c.Request.Context(), id)
	if cerr != nil {
		response.Error(c, err)
		return
	}
	response.ErrorWithMeta(c, err, map[string]interface{}{"conflicts": conflicts})
}
