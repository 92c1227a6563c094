package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/taskflow-api/internal/api/shared"
	"github.com/phrazzld/taskflow-api/internal/config"
	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/platform/logger"
	"github.com/phrazzld/taskflow-api/internal/platform/ratelimit"
	"github.com/phrazzld/taskflow-api/internal/service/auth"
	"github.com/phrazzld/taskflow-api/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

// actorEcho writes the resolved actor as the response body.
var actorEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(domain.ActorFromContext(r.Context())))
})

func TestTrace(t *testing.T) {
	log, h := testutils.NewCaptureLogger()
	var seenTrace string
	handler := Trace(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTrace = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))

	require.NotEmpty(t, seenTrace)
	assert.Equal(t, seenTrace, w.Header().Get(TraceIDHeader))

	inside := h.Find("inside handler")
	require.Len(t, inside, 1)
	assert.Equal(t, seenTrace, inside[0]["trace_id"])

	done := h.Find("request completed")
	require.Len(t, done, 1)
	assert.Equal(t, int64(http.StatusTeapot), done[0]["status"])
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
}

func TestActor_Header(t *testing.T) {
	handler := NewActorMiddleware(nil).Resolve(actorEcho)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "header sets actor", header: "alice", wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "whitespace trimmed", header: "  bob ", wantStatus: http.StatusOK, wantBody: "bob"},
		{name: "anonymous", header: "", wantStatus: http.StatusOK, wantBody: ""},
		{name: "too long", header: strings.Repeat("x", domain.MaxAssigneeLength+1), wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil)
			if tc.header != "" {
				req.Header.Set(UserIDHeader, tc.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, tc.wantBody, w.Body.String())
			}
		})
	}
}

func TestActor_JWT(t *testing.T) {
	jwtService, err := auth.NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetime: time.Hour})
	require.NoError(t, err)
	token, err := jwtService.GenerateToken(context.Background(), "carol")
	require.NoError(t, err)

	other, err := auth.NewJWTService(config.AuthConfig{JWTSecret: strings.Repeat("z", 40), TokenLifetime: time.Hour})
	require.NoError(t, err)
	forged, err := other.GenerateToken(context.Background(), "mallory")
	require.NoError(t, err)

	handler := NewActorMiddleware(jwtService).Resolve(actorEcho)

	tests := []struct {
		name       string
		auth       string
		userHeader string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", auth: "Bearer " + token, wantStatus: http.StatusOK, wantBody: "carol"},
		{name: "header ignored with token", auth: "Bearer " + token, userHeader: "mallory", wantStatus: http.StatusOK, wantBody: "carol"},
		{name: "header ignored without token", userHeader: "mallory", wantStatus: http.StatusOK, wantBody: ""},
		{name: "wrong signature", auth: "Bearer " + forged, wantStatus: http.StatusUnauthorized},
		{name: "not bearer", auth: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "empty bearer", auth: "Bearer ", wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			if tc.userHeader != "" {
				req.Header.Set(UserIDHeader, tc.userHeader)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, tc.wantBody, w.Body.String())
				return
			}
			var body shared.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

type stubLimiter struct {
	res *ratelimit.Result
	err error
	key string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (*ratelimit.Result, error) {
	s.key = key
	return s.res, s.err
}

func TestRateLimit(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		limiter    *stubLimiter
		wantStatus int
		wantRetry  string
	}{
		{
			name:       "allowed",
			limiter:    &stubLimiter{res: &ratelimit.Result{Allowed: true, Limit: 100, Remaining: 99}},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "limited",
			limiter:    &stubLimiter{res: &ratelimit.Result{Limit: 100, RetryAfter: 1500 * time.Millisecond}},
			wantStatus: http.StatusTooManyRequests,
			wantRetry:  "2",
		},
		{
			name:       "limiter down fails open",
			limiter:    &stubLimiter{err: errors.New("dial tcp: connection refused")},
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
			req.RemoteAddr = "203.0.113.7:51234"
			w := httptest.NewRecorder()

			RateLimit(tc.limiter)(next).ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, "203.0.113.7", tc.limiter.key)
			assert.Equal(t, tc.wantRetry, w.Header().Get("Retry-After"))
		})
	}
}

func TestRateLimit_LocalLimiter(t *testing.T) {
	limiter := ratelimit.NewLocalLimiter(ratelimit.Config{Requests: 2, Window: time.Minute})
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
