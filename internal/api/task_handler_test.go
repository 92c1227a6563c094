package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/taskflow-api/internal/api/middleware"
	"github.com/phrazzld/taskflow-api/internal/api/shared"
	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/platform/gormstore"
	"github.com/phrazzld/taskflow-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	log     *events.MemoryLog
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	logger := testLogger()
	log := events.NewMemoryLog(logger)
	svc, err := service.NewTaskService(gormstore.NewTaskStore(db, logger, gormstore.TaskStoreOptions{}), log, logger)
	require.NoError(t, err)

	return &testServer{handler: newRouter(svc, logger), log: log}
}

func newRouter(svc service.TaskService, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Trace(logger))
	r.Use(middleware.NewActorMiddleware(nil).Resolve)
	r.Route("/api/v1", NewTaskHandler(svc, logger).RegisterRoutes)
	return r
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeTask(t *testing.T, w *httptest.ResponseRecorder) TaskResponse {
	t.Helper()
	var task TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task), w.Body.String())
	return task
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	var body shared.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func (s *testServer) create(t *testing.T, body string) TaskResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/tasks", body, middleware.UserIDHeader, "alice")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeTask(t, w)
}

func TestTaskHandler_Lifecycle(t *testing.T) {
	s := newTestServer(t)

	task := s.create(t, `{"title":"Write report","priority":"high"}`)
	assert.Equal(t, "pending", task.Status)
	assert.Equal(t, "high", task.Priority)
	require.NotNil(t, task.CreatedBy)
	assert.Equal(t, "alice", *task.CreatedBy)

	base := "/api/v1/tasks/" + task.ID

	w := s.do(t, http.MethodPost, base+"/assign", `{"assigned_to":"bob"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, decodeTask(t, w).AssignedTo)

	w = s.do(t, http.MethodPost, base+"/start", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "in_progress", decodeTask(t, w).Status)

	w = s.do(t, http.MethodPost, base+"/complete", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decodeTask(t, w)
	assert.Equal(t, "completed", done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, int64(4), done.Version)

	w = s.do(t, http.MethodPost, base+"/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	errBody := decodeError(t, w)
	assert.Equal(t, "Cannot start task in completed status", errBody.Error)
	assert.NotEmpty(t, errBody.TraceID)
	assert.Equal(t, w.Header().Get(middleware.TraceIDHeader), errBody.TraceID)

	w = s.do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", decodeTask(t, w).Status)

	var types []events.Type
	for _, e := range s.log.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []events.Type{
		events.TypeTaskCreated, events.TypeTaskAssigned, events.TypeTaskStarted, events.TypeTaskCompleted,
	}, types)
	assert.Equal(t, "alice", s.log.Events()[0].Actor)
}

func TestTaskHandler_CreateValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "missing title", body: `{"description":"x"}`, wantMsg: "Invalid title: required field"},
		{name: "blank title", body: `{"title":"   "}`, wantMsg: "Task title cannot be empty"},
		{name: "bad priority", body: `{"title":"T","priority":"someday"}`},
		{name: "unknown field", body: `{"title":"T","owner":"x"}`, wantMsg: "Invalid request format"},
		{name: "malformed", body: `{"title":`, wantMsg: "Invalid request format"},
		{name: "empty body", body: "", wantMsg: "Invalid request format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/tasks", tc.body)

			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			if tc.wantMsg != "" {
				assert.Equal(t, tc.wantMsg, decodeError(t, w).Error)
			}
		})
	}
	assert.Zero(t, s.log.Len(), "rejected requests publish nothing")
}

func TestTaskHandler_NotFoundAndBadID(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/tasks/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Task not found", decodeError(t, w).Error)

	w = s.do(t, http.MethodPost, "/api/v1/tasks/not-a-uuid/start", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid task ID", decodeError(t, w).Error)

	w = s.do(t, http.MethodDelete, "/api/v1/tasks/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTaskHandler_UpdateCancelDelete(t *testing.T) {
	s := newTestServer(t)
	task := s.create(t, `{"title":"Draft"}`)
	base := "/api/v1/tasks/" + task.ID

	w := s.do(t, http.MethodPatch, base, `{"title":"Final"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Final", decodeTask(t, w).Title)

	w = s.do(t, http.MethodPatch, base, `{"title":"Final"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), decodeTask(t, w).Version, "unchanged update is not persisted")

	w = s.do(t, http.MethodPatch, base, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base+"/cancel", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", decodeTask(t, w).Status)

	w = s.do(t, http.MethodPost, base+"/assign", `{"assigned_to":"bob"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = s.do(t, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	last := s.log.Events()[s.log.Len()-1]
	assert.Equal(t, events.TypeTaskDeleted, last.Type)
}

func TestTaskHandler_CancelWithReason(t *testing.T) {
	s := newTestServer(t)
	task := s.create(t, `{"title":"Duplicate"}`)

	w := s.do(t, http.MethodPost, "/api/v1/tasks/"+task.ID+"/cancel", `{"reason":"duplicate of #12"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	last := s.log.Events()[s.log.Len()-1]
	var data events.TaskCancelledData
	require.NoError(t, last.UnmarshalData(&data))
	assert.Equal(t, "duplicate of #12", data.Reason)
}

func TestTaskHandler_ListAndStatistics(t *testing.T) {
	s := newTestServer(t)
	for _, body := range []string{
		`{"title":"a","priority":"low","assigned_to":"bob"}`,
		`{"title":"b","priority":"high","assigned_to":"bob"}`,
		`{"title":"c","priority":"high"}`,
	} {
		s.create(t, body)
	}

	w := s.do(t, http.MethodGet, "/api/v1/tasks?priority=high&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page TaskListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Tasks, 1)
	assert.Equal(t, 1, page.Limit)

	w = s.do(t, http.MethodGet, "/api/v1/tasks?status=exploded", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/tasks?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/tasks/statistics?assigned_to=bob", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stats StatisticsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByStatus["pending"])
	assert.Equal(t, 0, stats.ByStatus["completed"])
	assert.Equal(t, 1, stats.ByPriority["high"])
}

// failingPublisher accepts nothing.
type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, *events.Event) error {
	return errors.New("stream unavailable")
}

func TestTaskHandler_PublishFailureIsServerError(t *testing.T) {
	db, err := gormstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	logger := testLogger()
	svc, err := service.NewTaskService(gormstore.NewTaskStore(db, logger, gormstore.TaskStoreOptions{}), failingPublisher{}, logger)
	require.NoError(t, err)
	handler := newRouter(svc, logger)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewBufferString(`{"title":"T"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "stream unavailable")
}
