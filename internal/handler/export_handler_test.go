package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type exportServiceMock struct {
	result      *models.ExportResult
	err         error
	download    *service.ExportDownload
	downloadErr error
	lastFormat  string
}

func (m *exportServiceMock) Generate(ctx context.Context, timetableID string, req dto.ExportTimetableRequest) (*models.ExportResult, error) {
	m.lastFormat = req.Format
	return m.result, m.err
}

func (m *exportServiceMock) ResolveDownload(token string) (*service.ExportDownload, error) {
	return m.download, m.downloadErr
}

func TestExportHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &exportServiceMock{result: &models.ExportResult{ID: "exp-1", Format: models.ExportFormatPDF, URL: "/api/v1/export/tok"}}
	handler := NewExportHandler(mockSvc)

	payload, _ := json.Marshal(dto.ExportTimetableRequest{Format: "pdf"})
	c, w := newGinContext(http.MethodPost, "/timetables/main/export", payload)
	c.Params = gin.Params{{Key: "id", Value: "main"}}

	handler.Export(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "pdf", mockSvc.lastFormat)
}

func TestExportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "timetable_main.csv")
	require.NoError(t, os.WriteFile(path, []byte("Time,Monday\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	mockSvc := &exportServiceMock{download: &service.ExportDownload{
		File:     file,
		Filename: "timetable_main.csv",
		Size:     12,
		MimeType: "text/csv",
	}}
	handler := NewExportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/export/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable_main.csv")
	assert.Equal(t, "Time,Monday\n", w.Body.String())
}

func TestExportHandlerDownloadRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewExportHandler(&exportServiceMock{downloadErr: appErrors.Clone(appErrors.ErrExpired, "download link expired")})

	c, w := newGinContext(http.MethodGet, "/export/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	handler.Download(c)
	require.Equal(t, http.StatusGone, w.Code)
}
