package api

import (
	"time"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/service"
)

// CreateTaskRequest defines the payload for POST /api/v1/tasks.
type CreateTaskRequest struct {
	Title       string  `json:"title"                 validate:"required,max=200"`
	Description string  `json:"description"           validate:"max=2000"`
	Priority    string  `json:"priority,omitempty"    validate:"omitempty,max=20"`
	AssignedTo  *string `json:"assigned_to,omitempty" validate:"omitempty,max=100"`
}

// UpdateTaskRequest defines the payload for PATCH /api/v1/tasks/{id}.
// Omitted fields are left unchanged.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"       validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// CancelTaskRequest defines the optional payload for POST .../cancel.
type CancelTaskRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// AssignTaskRequest defines the payload for POST .../assign.
type AssignTaskRequest struct {
	AssignedTo string `json:"assigned_to" validate:"required,max=100"`
}

// TaskResponse is the wire form of a task.
type TaskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	AssignedTo  *string    `json:"assigned_to"`
	CreatedBy   *string    `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Version     int64      `json:"version"`
}

// TaskListResponse is one page of tasks.
type TaskListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// StatisticsResponse carries task counts. Every status and priority is
// present, zero included.
type StatisticsResponse struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID.String(),
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
		Version:     t.Version,
	}
}

func pageToResponse(p *service.TaskPage) TaskListResponse {
	tasks := make([]TaskResponse, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		tasks = append(tasks, taskToResponse(t))
	}
	return TaskListResponse{Tasks: tasks, Total: p.Total, Limit: p.Limit, Offset: p.Offset}
}

func statisticsToResponse(s *service.Statistics) StatisticsResponse {
	resp := StatisticsResponse{
		Total:      s.Total,
		ByStatus:   make(map[string]int, len(s.ByStatus)),
		ByPriority: make(map[string]int, len(s.ByPriority)),
	}
	for k, v := range s.ByStatus {
		resp.ByStatus[string(k)] = v
	}
	for k, v := range s.ByPriority {
		resp.ByPriority[string(k)] = v
	}
	return resp
}
