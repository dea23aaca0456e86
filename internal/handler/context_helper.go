package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// caller returns the claims the JWT middleware attached, or nil on unauthenticated routes.
func caller(c *gin.Context) *models.JWTClaims {
	value, _ := c.Get(middleware.ContextUserKey)
	claims, _ := value.(*models.JWTClaims)
	return claims
}

// callerID is the user id recorded against snapshots; empty when the route is unauthenticated.
func callerID(c *gin.Context) string {
	if claims := caller(c); claims != nil {
		return claims.UserID
	}
	return ""
}
