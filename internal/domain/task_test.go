package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func taskInStatus(t *testing.T, status TaskStatus) *Task {
	t.Helper()
	task, err := NewTask("Write report", "", TaskPriorityMedium, nil, nil)
	require.NoError(t, err)
	task.Status = status
	return task
}

func TestNewTask(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		task, err := NewTask("  Write report  ", " quarterly ", "", strPtr("  "), strPtr("alice"))
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, task.ID)
		assert.Equal(t, "Write report", task.Title)
		assert.Equal(t, "quarterly", task.Description)
		assert.Equal(t, TaskStatusPending, task.Status)
		assert.Equal(t, TaskPriorityMedium, task.Priority)
		assert.Nil(t, task.AssignedTo, "blank assignee should be dropped")
		require.NotNil(t, task.CreatedBy)
		assert.Equal(t, "alice", *task.CreatedBy)
		assert.Nil(t, task.CompletedAt)
		assert.WithinDuration(t, time.Now(), task.CreatedAt, 2*time.Second)
		assert.Equal(t, task.CreatedAt, task.UpdatedAt)
	})

	tests := []struct {
		name        string
		title       string
		description string
		priority    TaskPriority
		assignee    *string
		wantErr     error
	}{
		{"empty title", "   ", "", TaskPriorityLow, nil, ErrEmptyTaskTitle},
		{"title too long", strings.Repeat("x", MaxTitleLength+1), "", TaskPriorityLow, nil, ErrTaskTitleTooLong},
		{"description too long", "ok", strings.Repeat("d", MaxDescriptionLength+1), TaskPriorityLow, nil, ErrDescriptionTooLong},
		{"invalid priority", "ok", "", TaskPriority("urgent"), nil, ErrInvalidTaskPriority},
		{"assignee too long", "ok", "", TaskPriorityHigh, strPtr(strings.Repeat("a", MaxAssigneeLength+1)), ErrAssigneeTooLong},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			task, err := NewTask(tc.title, tc.description, tc.priority, tc.assignee, nil)
			assert.Nil(t, task)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	t.Run("title at limit counts runes", func(t *testing.T) {
		t.Parallel()
		_, err := NewTask(strings.Repeat("é", MaxTitleLength), "", TaskPriorityLow, nil, nil)
		assert.NoError(t, err)
	})
}

func TestParseTaskStatusAndPriority(t *testing.T) {
	t.Parallel()

	status, err := ParseTaskStatus(" In_Progress ")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusInProgress, status)

	_, err = ParseTaskStatus("done")
	assert.ErrorIs(t, err, ErrInvalidTaskStatus)

	priority, err := ParseTaskPriority("")
	require.NoError(t, err)
	assert.Equal(t, TaskPriorityMedium, priority)

	priority, err = ParseTaskPriority("CRITICAL")
	require.NoError(t, err)
	assert.Equal(t, TaskPriorityCritical, priority)

	_, err = ParseTaskPriority("urgent")
	assert.ErrorIs(t, err, ErrInvalidTaskPriority)
}

func TestTaskTransitions(t *testing.T) {
	t.Parallel()

	type transition func(task *Task) error

	start := func(task *Task) error { return task.Start() }
	complete := func(task *Task) error { return task.Complete() }
	cancel := func(task *Task) error { return task.Cancel("") }
	assign := func(task *Task) error { _, err := task.Assign("bob"); return err }
	update := func(task *Task) error { _, err := task.UpdateDetails(strPtr("New title"), nil); return err }

	tests := []struct {
		name   string
		op     transition
		from   TaskStatus
		want   TaskStatus
		wantOK bool
	}{
		{"start from pending", start, TaskStatusPending, TaskStatusInProgress, true},
		{"start from in_progress", start, TaskStatusInProgress, TaskStatusInProgress, false},
		{"start from completed", start, TaskStatusCompleted, TaskStatusCompleted, false},
		{"start from cancelled", start, TaskStatusCancelled, TaskStatusCancelled, false},
		{"complete from pending", complete, TaskStatusPending, TaskStatusPending, false},
		{"complete from in_progress", complete, TaskStatusInProgress, TaskStatusCompleted, true},
		{"complete from completed", complete, TaskStatusCompleted, TaskStatusCompleted, false},
		{"complete from cancelled", complete, TaskStatusCancelled, TaskStatusCancelled, false},
		{"cancel from pending", cancel, TaskStatusPending, TaskStatusCancelled, true},
		{"cancel from in_progress", cancel, TaskStatusInProgress, TaskStatusCancelled, true},
		{"cancel from completed", cancel, TaskStatusCompleted, TaskStatusCompleted, false},
		{"cancel from cancelled", cancel, TaskStatusCancelled, TaskStatusCancelled, false},
		{"assign while pending", assign, TaskStatusPending, TaskStatusPending, true},
		{"assign while in_progress", assign, TaskStatusInProgress, TaskStatusInProgress, true},
		{"assign when completed", assign, TaskStatusCompleted, TaskStatusCompleted, false},
		{"assign when cancelled", assign, TaskStatusCancelled, TaskStatusCancelled, false},
		{"update while pending", update, TaskStatusPending, TaskStatusPending, true},
		{"update when completed", update, TaskStatusCompleted, TaskStatusCompleted, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			task := taskInStatus(t, tc.from)
			before := task.UpdatedAt

			err := tc.op(task)

			if tc.wantOK {
				require.NoError(t, err)
				assert.True(t, task.UpdatedAt.After(before), "UpdatedAt should advance")
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, before, task.UpdatedAt, "failed transition must not touch the task")
			}
			assert.Equal(t, tc.want, task.Status)
		})
	}
}

func TestTaskComplete_SetsCompletedAt(t *testing.T) {
	t.Parallel()
	task := taskInStatus(t, TaskStatusInProgress)

	require.NoError(t, task.Complete())
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, task.UpdatedAt, *task.CompletedAt)
}

func TestTaskAssign(t *testing.T) {
	t.Parallel()
	task, err := NewTask("Write report", "", TaskPriorityLow, strPtr("alice"), nil)
	require.NoError(t, err)

	previous, err := task.Assign("  bob ")
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, "alice", *previous)
	assert.Equal(t, "bob", *task.AssignedTo)

	_, err = task.Assign("   ")
	assert.ErrorIs(t, err, ErrEmptyAssignee)
	assert.Equal(t, "bob", *task.AssignedTo)
}

func TestTaskCancel_ReasonTooLong(t *testing.T) {
	t.Parallel()
	task := taskInStatus(t, TaskStatusPending)

	err := task.Cancel(strings.Repeat("r", MaxReasonLength+1))
	assert.ErrorIs(t, err, ErrCancelReasonTooLong)
	assert.Equal(t, TaskStatusPending, task.Status)
}

func TestTaskUpdateDetails(t *testing.T) {
	t.Parallel()

	t.Run("reports changed fields", func(t *testing.T) {
		t.Parallel()
		task := taskInStatus(t, TaskStatusPending)
		changed, err := task.UpdateDetails(strPtr(" Write summary "), strPtr("with charts"))
		require.NoError(t, err)
		assert.Equal(t, []string{"title", "description"}, changed)
		assert.Equal(t, "Write summary", task.Title)
		assert.Equal(t, "with charts", task.Description)
	})

	t.Run("same values are not a change", func(t *testing.T) {
		t.Parallel()
		task := taskInStatus(t, TaskStatusInProgress)
		before := task.UpdatedAt
		changed, err := task.UpdateDetails(strPtr("Write report"), nil)
		require.NoError(t, err)
		assert.Empty(t, changed)
		assert.Equal(t, before, task.UpdatedAt)
	})

	t.Run("nothing to update", func(t *testing.T) {
		t.Parallel()
		task := taskInStatus(t, TaskStatusPending)
		_, err := task.UpdateDetails(nil, nil)
		assert.ErrorIs(t, err, ErrNothingToUpdate)
	})

	t.Run("empty title rejected", func(t *testing.T) {
		t.Parallel()
		task := taskInStatus(t, TaskStatusPending)
		_, err := task.UpdateDetails(strPtr(" "), nil)
		assert.ErrorIs(t, err, ErrEmptyTaskTitle)
		assert.Equal(t, "Write report", task.Title)
	})
}

func TestTaskValidate(t *testing.T) {
	t.Parallel()
	task := taskInStatus(t, TaskStatusPending)
	require.NoError(t, task.Validate())

	task.ID = uuid.Nil
	assert.ErrorIs(t, task.Validate(), ErrEmptyTaskID)

	task = taskInStatus(t, TaskStatus("archived"))
	assert.True(t, errors.Is(task.Validate(), ErrInvalidTaskStatus))
}

func TestActorContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Equal(t, "", ActorFromContext(ctx))
	assert.Equal(t, ctx, WithActor(ctx, ""), "empty actor should not wrap the context")
	assert.Equal(t, "alice", ActorFromContext(WithActor(ctx, "alice")))
}
