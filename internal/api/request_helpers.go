package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", domain.ErrInvalidID, paramName)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s has invalid format", domain.ErrInvalidID, paramName)
	}
	return id, nil
}

// parseListFilter reads status, priority, assigned_to, limit and offset
// from the query string. Pagination is clamped later by the service.
func parseListFilter(r *http.Request) (store.TaskFilter, error) {
	q := r.URL.Query()
	var filter store.TaskFilter

	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParseTaskStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if raw := q.Get("priority"); raw != "" {
		priority, err := domain.ParseTaskPriority(raw)
		if err != nil {
			return filter, err
		}
		filter.Priority = &priority
	}
	filter.AssignedTo = optionalQuery(r, "assigned_to")

	var err error
	if filter.Limit, err = intQuery(r, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = intQuery(r, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func optionalQuery(r *http.Request, name string) *string {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	return &raw
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrValidation, name)
	}
	return n, nil
}
