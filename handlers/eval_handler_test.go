package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lawagent/batchapi"
	"lawagent/models"
	"lawagent/service"
	"lawagent/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBatchAPI struct {
	batch *batchapi.Batch
}

func (s *stubBatchAPI) UploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	return "file-1", nil
}

func (s *stubBatchAPI) CreateBatch(ctx context.Context, inputFileID string) (*batchapi.Batch, error) {
	return s.batch, nil
}

func (s *stubBatchAPI) GetBatch(ctx context.Context, batchID string) (*batchapi.Batch, error) {
	return s.batch, nil
}

func (s *stubBatchAPI) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, eval *service.EvalService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewEvalHandler(nil, eval, "")
	r := gin.New()
	r.Use(RequestID())
	r.GET("/api/batch", h.GetBatchStatus)
	r.GET("/api/report", h.GetReport)
	return r
}

func TestGetBatchStatusNoBatch(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	eval := service.NewEvalService(nil, &stubBatchAPI{}, store, "gpt-4o-mini")
	r := newTestRouter(t, eval)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/batch", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestGetBatchStatus(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), service.KeyInputBatchID, []byte("batch-7")))

	api := &stubBatchAPI{batch: &batchapi.Batch{
		ID: "batch-7", Status: models.BatchStatusInProgress, Total: 5, Completed: 2,
	}}
	eval := service.NewEvalService(nil, api, store, "gpt-4o-mini")
	r := newTestRouter(t, eval)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/batch", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			BatchID   string `json:"batch_id"`
			Status    string `json:"status"`
			Completed int    `json:"completed"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "batch-7", resp.Data.BatchID)
	assert.Equal(t, "in_progress", resp.Data.Status)
	assert.Equal(t, 2, resp.Data.Completed)
}

func TestGetReportNotFound(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	eval := service.NewEvalService(nil, &stubBatchAPI{}, store, "gpt-4o-mini")
	r := newTestRouter(t, eval)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/report", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetReport(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	report := models.ScoreReport{BatchID: "batch-7", Total: 3, Correct: 2, Wrong: 1, Accuracy: 2.0 / 3.0}
	data, err := json.Marshal(report)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), service.KeyReport, data))

	eval := service.NewEvalService(nil, &stubBatchAPI{}, store, "gpt-4o-mini")
	r := newTestRouter(t, eval)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/report", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool               `json:"success"`
		Data    models.ScoreReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Correct)
}
