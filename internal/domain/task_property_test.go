package domain

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// applyRandomOp applies one drawn lifecycle operation and reports its name
// and result.
func applyRandomOp(rt *rapid.T, task *Task) (string, error) {
	op := rapid.SampledFrom([]string{"start", "complete", "cancel", "assign", "update"}).Draw(rt, "op")
	switch op {
	case "start":
		return op, task.Start()
	case "complete":
		return op, task.Complete()
	case "cancel":
		return op, task.Cancel(rapid.StringMatching(`[a-z ]{0,20}`).Draw(rt, "reason"))
	case "assign":
		_, err := task.Assign(rapid.StringMatching(`[a-z]{1,12}`).Draw(rt, "assignee"))
		return op, err
	default:
		title := rapid.StringMatching(`[A-Za-z][A-Za-z ]{0,30}`).Draw(rt, "title")
		_, err := task.UpdateDetails(&title, nil)
		return op, err
	}
}

func TestTaskLifecycle_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		task, err := NewTask("Write report", "", TaskPriorityMedium, nil, nil)
		if err != nil {
			rt.Fatalf("NewTask: %v", err)
		}

		steps := rapid.IntRange(1, 15).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			before := task.Status
			op, err := applyRandomOp(rt, task)

			switch op {
			case "start":
				if (err == nil) != (before == TaskStatusPending) {
					rt.Fatalf("start from %s: err=%v", before, err)
				}
			case "complete":
				if (err == nil) != (before == TaskStatusInProgress) {
					rt.Fatalf("complete from %s: err=%v", before, err)
				}
			case "cancel":
				allowed := before == TaskStatusPending || before == TaskStatusInProgress
				if (err == nil) != allowed {
					rt.Fatalf("cancel from %s: err=%v", before, err)
				}
			case "assign", "update":
				if before.IsTerminal() && !errors.Is(err, ErrInvalidTransition) {
					rt.Fatalf("%s on terminal task: err=%v", op, err)
				}
			}

			if err != nil {
				if !errors.Is(err, ErrInvalidTransition) {
					rt.Fatalf("%s returned unexpected error kind: %v", op, err)
				}
				if task.Status != before {
					rt.Fatalf("failed %s changed status %s -> %s", op, before, task.Status)
				}
			}

			if before.IsTerminal() && task.Status != before {
				rt.Fatalf("terminal status %s left via %s", before, op)
			}
			if task.Status == TaskStatusCompleted && task.CompletedAt == nil {
				rt.Fatalf("completed task without CompletedAt")
			}
			if err := task.Validate(); err != nil {
				rt.Fatalf("task invalid after %s: %v", op, err)
			}
		}
	})
}
