package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type sessionCacheInvalidator interface {
	Invalidate(ctx context.Context, teacher string) error
	InvalidateAll(ctx context.Context) error
}

// SessionCacheHandler lets admins force monitors to re-read sessions after class or lab changes.
type SessionCacheHandler struct {
	cache sessionCacheInvalidator
}

// NewSessionCacheHandler constructs the handler.
func NewSessionCacheHandler(cache sessionCacheInvalidator) *SessionCacheHandler {
	return &SessionCacheHandler{cache: cache}
}

// Invalidate godoc
// @Summary Drop cached teacher sessions
// @Tags Notifications
// @Produce json
// @Param teacher query string false "Teacher; omit to clear every teacher"
// @Success 204 {string} string "No Content"
// @Router /notifications/cache [delete]
func (h *SessionCacheHandler) Invalidate(c *gin.Context) {
	var err error
	if teacher := strings.TrimSpace(c.Query("teacher")); teacher != "" {
		err = h.cache.Invalidate(c.Request.Context(), teacher)
	} else {
		err = h.cache.InvalidateAll(c.Request.Context())
	}
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "session cache unavailable"))
		return
	}
	c.Status(http.StatusNoContent)
}
