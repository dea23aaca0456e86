package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/notification"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type notificationServiceMock struct {
	mu           sync.Mutex
	teacher      string
	startReq     dto.StartMonitorRequest
	startErr     error
	checkErr     error
	limit        int
	subscriber   notification.Subscriber
	unsubscribed bool
}

func (m *notificationServiceMock) Start(teacher string, req dto.StartMonitorRequest) (models.MonitorStatus, error) {
	m.teacher = teacher
	m.startReq = req
	return models.MonitorStatus{Teacher: teacher, Monitoring: m.startErr == nil}, m.startErr
}

func (m *notificationServiceMock) Stop(teacher string) (models.MonitorStatus, error) {
	m.teacher = teacher
	return models.MonitorStatus{Teacher: teacher}, nil
}

func (m *notificationServiceMock) Status(teacher string) models.MonitorStatus {
	m.teacher = teacher
	return models.MonitorStatus{Teacher: teacher}
}

func (m *notificationServiceMock) CheckNow(ctx context.Context, teacher string) (int, error) {
	m.teacher = teacher
	return 2, m.checkErr
}

func (m *notificationServiceMock) Subscribe(teacher string, fn notification.Subscriber) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teacher = teacher
	m.subscriber = fn
	return func() {
		m.mu.Lock()
		m.unsubscribed = true
		m.mu.Unlock()
	}, nil
}

func (m *notificationServiceMock) History(ctx context.Context, teacher string, limit int) ([]models.NotificationLog, error) {
	m.teacher = teacher
	m.limit = limit
	return []models.NotificationLog{}, nil
}

func (m *notificationServiceMock) Agenda(ctx context.Context, teacher string) (*models.TeacherAgenda, error) {
	m.teacher = teacher
	return &models.TeacherAgenda{Teacher: teacher, Day: models.Monday}, nil
}

func (m *notificationServiceMock) currentSubscriber() notification.Subscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriber
}

func (m *notificationServiceMock) isUnsubscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubscribed
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "t-1", Role: models.RoleTeacher, FullName: "Dr. Smith"}
}

func TestNotificationHandlerStartUsesCallerIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{}
	handler := NewNotificationHandler(mockSvc, nil, nil)

	payload, _ := json.Marshal(dto.StartMonitorRequest{PollInterval: "30s"})
	c, w := newGinContext(http.MethodPost, "/notifications/monitor", payload)
	c.Set(middleware.ContextUserKey, teacherClaims())

	handler.Start(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Dr. Smith", mockSvc.teacher)
	assert.Equal(t, "30s", mockSvc.startReq.PollInterval)
}

func TestNotificationHandlerStartWithoutBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{}
	handler := NewNotificationHandler(mockSvc, nil, nil)

	c, w := newGinContext(http.MethodPost, "/notifications/monitor", nil)
	c.Set(middleware.ContextUserKey, teacherClaims())

	handler.Start(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestNotificationHandlerStartAlreadyRunning(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{startErr: appErrors.Clone(appErrors.ErrConflict, "notifications already running")}
	handler := NewNotificationHandler(mockSvc, nil, nil)

	c, w := newGinContext(http.MethodPost, "/notifications/monitor", nil)
	c.Set(middleware.ContextUserKey, teacherClaims())

	handler.Start(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestNotificationHandlerTeacherResolution(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{}
	handler := NewNotificationHandler(mockSvc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/notifications/monitor?teacher=Dr.%20Jones", nil)
	c.Set(middleware.ContextUserKey, teacherClaims())
	handler.Status(c)
	require.Equal(t, http.StatusForbidden, w.Code)

	c, w = newGinContext(http.MethodGet, "/notifications/monitor?teacher=dr.%20smith", nil)
	c.Set(middleware.ContextUserKey, teacherClaims())
	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Dr. Smith", mockSvc.teacher)

	c, w = newGinContext(http.MethodGet, "/notifications/monitor?teacher=Dr.%20Jones", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "a-1", Role: models.RoleAdmin})
	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Dr. Jones", mockSvc.teacher)

	c, w = newGinContext(http.MethodGet, "/notifications/monitor", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "a-1", Role: models.RoleAdmin})
	handler.Status(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/notifications/monitor", nil)
	handler.Status(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNotificationHandlerCheckNowUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{checkErr: appErrors.Clone(appErrors.ErrUnavailable, "session source unavailable")}
	handler := NewNotificationHandler(mockSvc, nil, nil)

	c, w := newGinContext(http.MethodPost, "/notifications/monitor/check", nil)
	c.Set(middleware.ContextUserKey, teacherClaims())

	handler.CheckNow(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNotificationHandlerHistoryLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{}
	handler := NewNotificationHandler(mockSvc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/notifications?limit=5", nil)
	c.Set(middleware.ContextUserKey, teacherClaims())
	handler.History(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, mockSvc.limit)

	c, w = newGinContext(http.MethodGet, "/notifications?limit=lots", nil)
	c.Set(middleware.ContextUserKey, teacherClaims())
	handler.History(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationHandlerAgenda(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{}
	handler := NewNotificationHandler(mockSvc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/teachers/me/agenda", nil)
	c.Set(middleware.ContextUserKey, teacherClaims())
	handler.Agenda(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Dr. Smith", mockSvc.teacher)
}

func TestNotificationHandlerStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &notificationServiceMock{}
	handler := NewNotificationHandler(mockSvc, nil, nil)

	router := gin.New()
	router.GET("/stream", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, teacherClaims())
		c.Next()
	}, handler.Stream)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return mockSvc.currentSubscriber() != nil }, time.Second, 10*time.Millisecond)
	mockSvc.currentSubscriber()(models.NotificationEvent{
		ID:                "evt-1",
		Kind:              models.NotificationClassReminder,
		Teacher:           "Dr. Smith",
		SessionKey:        "c-1-9:00-10:00",
		MinutesUntilStart: 10,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var received models.NotificationEvent
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, "evt-1", received.ID)
	assert.Equal(t, 10, received.MinutesUntilStart)

	require.NoError(t, conn.Close())
	require.Eventually(t, mockSvc.isUnsubscribed, 2*time.Second, 10*time.Millisecond)
}
