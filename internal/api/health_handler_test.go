package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/taskflow-api/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	db := health.Check{Name: "database", Critical: true, Fn: ok}
	telegram := health.Check{Name: "telegram", Fn: down}
	h := NewHealthHandler(
		health.NewChecker(time.Second, testLogger(), db, telegram),
		health.NewChecker(time.Second, testLogger(), db),
	)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var report health.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, health.StatusDegraded, report.Status)
	assert.Equal(t, "connection refused", report.Checks["telegram"].Error)

	w = httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.Live(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"alive"}`, w.Body.String())

	unready := NewHealthHandler(nil, health.NewChecker(time.Second, testLogger(),
		health.Check{Name: "database", Critical: true, Fn: down}))
	w = httptest.NewRecorder()
	unready.Ready(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
