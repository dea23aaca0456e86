package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionCacheMock struct {
	teacher string
	all     bool
	err     error
}

func (m *sessionCacheMock) Invalidate(ctx context.Context, teacher string) error {
	m.teacher = teacher
	return m.err
}

func (m *sessionCacheMock) InvalidateAll(ctx context.Context) error {
	m.all = true
	return m.err
}

func TestSessionCacheHandlerInvalidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &sessionCacheMock{}
	handler := NewSessionCacheHandler(mock)

	c, w := newGinContext(http.MethodDelete, "/notifications/cache?teacher=Dr.%20Smith", nil)
	handler.Invalidate(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "Dr. Smith", mock.teacher)
	assert.False(t, mock.all)

	c, w = newGinContext(http.MethodDelete, "/notifications/cache", nil)
	handler.Invalidate(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, mock.all)
}

func TestSessionCacheHandlerUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSessionCacheHandler(&sessionCacheMock{err: errors.New("redis down")})

	c, w := newGinContext(http.MethodDelete, "/notifications/cache", nil)
	handler.Invalidate(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
