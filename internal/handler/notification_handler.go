package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/notification"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
)

type notificationService interface {
	Start(teacher string, req dto.StartMonitorRequest) (models.MonitorStatus, error)
	Stop(teacher string) (models.MonitorStatus, error)
	Status(teacher string) models.MonitorStatus
	CheckNow(ctx context.Context, teacher string) (int, error)
	Subscribe(teacher string, fn notification.Subscriber) (func(), error)
	History(ctx context.Context, teacher string, limit int) ([]models.NotificationLog, error)
	Agenda(ctx context.Context, teacher string) (*models.TeacherAgenda, error)
}

// NotificationHandler exposes teacher reminder monitors.
type NotificationHandler struct {
	service  notificationService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewNotificationHandler constructs the handler. allowedOrigins empty accepts any origin.
func NewNotificationHandler(service notificationService, allowedOrigins []string, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			origins = nil
			break
		}
		origins[origin] = struct{}{}
	}
	return &NotificationHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Start godoc
// @Summary Start class reminders
// @Description Teachers monitor their own sessions. Admins may name a teacher.
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.StartMonitorRequest false "Monitor settings"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /notifications/monitor [post]
func (h *NotificationHandler) Start(c *gin.Context) {
	var req dto.StartMonitorRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid monitor payload"))
			return
		}
	}
	teacher, err := resolveTeacher(c, req.Teacher)
	if err != nil {
		response.Error(c, err)
		return
	}
	status, err := h.service.Start(teacher, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, status)
}

// Stop godoc
// @Summary Stop class reminders
// @Tags Notifications
// @Produce json
// @Param teacher query string false "Teacher (admins only)"
// @Success 200 {object} response.Envelope
// @Router /notifications/monitor [delete]
func (h *NotificationHandler) Stop(c *gin.Context) {
	teacher, err := resolveTeacher(c, c.Query("teacher"))
	if err != nil {
		response.Error(c, err)
		return
	}
	status, err := h.service.Stop(teacher)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Status godoc
// @Summary Monitor status
// @Tags Notifications
// @Produce json
// @Param teacher query string false "Teacher (admins only)"
// @Success 200 {object} response.Envelope
// @Router /notifications/monitor [get]
func (h *NotificationHandler) Status(c *gin.Context) {
	teacher, err := resolveTeacher(c, c.Query("teacher"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.service.Status(teacher), nil)
}

// CheckNow godoc
// @Summary Run one reminder check immediately
// @Tags Notifications
// @Produce json
// @Param teacher query string false "Teacher (admins only)"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /notifications/monitor/check [post]
func (h *NotificationHandler) CheckNow(c *gin.Context) {
	teacher, err := resolveTeacher(c, c.Query("teacher"))
	if err != nil {
		response.Error(c, err)
		return
	}
	count, err := h.service.CheckNow(c.Request.Context(), teacher)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"events": count}, nil)
}

// History godoc
// @Summary Recent notifications
// @Tags Notifications
// @Produce json
// @Param limit query int false "Maximum entries"
// @Param teacher query string false "Teacher (admins only)"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) History(c *gin.Context) {
	teacher, err := resolveTeacher(c, c.Query("teacher"))
	if err != nil {
		response.Error(c, err)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
	}
	logs, err := h.service.History(c.Request.Context(), teacher, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// Agenda godoc
// @Summary Today's sessions for the calling teacher
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teachers/me/agenda [get]
func (h *NotificationHandler) Agenda(c *gin.Context) {
	teacher, err := resolveTeacher(c, c.Query("teacher"))
	if err != nil {
		response.Error(c, err)
		return
	}
	agenda, err := h.service.Agenda(c.Request.Context(), teacher)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, agenda, nil)
}

// Stream godoc
// @Summary Live notification stream
// @Description Upgrades to a websocket and pushes each monitor event as JSON.
// @Tags Notifications
// @Param teacher query string false "Teacher (admins only)"
// @Success 101 {string} string "Switching Protocols"
// @Router /notifications/stream [get]
func (h *NotificationHandler) Stream(c *gin.Context) {
	teacher, err := resolveTeacher(c, c.Query("teacher"))
	if err != nil {
		response.Error(c, err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events := make(chan models.NotificationEvent, streamBuffer)
	unsubscribe, err := h.service.Subscribe(teacher, func(event models.NotificationEvent) {
		select {
		case events <- event:
		default:
			h.logger.Warn("notification stream lagging, event dropped",
				zap.String("teacher", teacher),
				zap.String("event_id", event.ID),
			)
		}
	})
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case event := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// resolveTeacher picks the teacher a request acts for: admins may name one, everyone else acts as themselves.
func resolveTeacher(c *gin.Context, requested string) (string, error) {
	claims := caller(c)
	if claims == nil {
		return "", appErrors.ErrUnauthorized
	}
	requested = strings.TrimSpace(requested)
	if requested != "" && isAdmin(claims.Role) {
		return requested, nil
	}
	if requested != "" && !strings.EqualFold(requested, claims.FullName) {
		return "", appErrors.Clone(appErrors.ErrForbidden, "cannot act for another teacher")
	}
	if claims.FullName == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "token carries no teacher name")
	}
	return claims.FullName, nil
}

func isAdmin(role models.UserRole) bool {
	return role == models.RoleAdmin || role == models.RoleSuperAdmin
}
