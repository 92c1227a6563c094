package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestTaskFilterNormalize(t *testing.T) {
	tests := []struct {
		name       string
		in         TaskFilter
		wantLimit  int
		wantOffset int
	}{
		{"zero values get defaults", TaskFilter{}, DefaultListLimit, 0},
		{"limit above max is clamped", TaskFilter{Limit: 10_000, Offset: 5}, MaxListLimit, 5},
		{"negative offset is reset", TaskFilter{Limit: 10, Offset: -3}, 10, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.Normalize()
			assert.Equal(t, tc.wantLimit, got.Limit)
			assert.Equal(t, tc.wantOffset, got.Offset)
		})
	}
}

func TestTaskCounts(t *testing.T) {
	counts := NewTaskCounts()
	assert.Len(t, counts.ByStatus, len(domain.AllTaskStatuses))
	assert.Len(t, counts.ByPriority, len(domain.AllTaskPriorities))
	assert.Equal(t, 0, counts.Total())

	counts.ByStatus[domain.TaskStatusPending] = 3
	counts.ByStatus[domain.TaskStatusCancelled] = 2
	assert.Equal(t, 5, counts.Total())
}

func TestStoreErrors(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrTaskNotFound))
	assert.True(t, IsNotFoundError(fmt.Errorf("wrapped: %w", ErrTaskNotFound)))
	assert.False(t, IsNotFoundError(ErrConflict))

	inner := errors.New("driver said no")
	err := NewStoreError("task", "update", "failed to update task", inner)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "update operation on task failed: failed to update task: driver said no", err.Error())
	assert.Equal(t, "update operation on task failed: no cause",
		NewStoreError("task", "update", "no cause", nil).Error())
}
