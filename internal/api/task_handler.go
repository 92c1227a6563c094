package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/taskflow-api/internal/api/shared"
	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/platform/logger"
	"github.com/phrazzld/taskflow-api/internal/service"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	taskService service.TaskService
	logger      *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskService service.TaskService, logger *slog.Logger) *TaskHandler {
	if taskService == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("taskService cannot be nil for TaskHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}

	return &TaskHandler{
		taskService: taskService,
		logger:      logger.With(slog.String("component", "task_handler")),
	}
}

// RegisterRoutes mounts the task endpoints on r, relative to /tasks.
func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", h.CreateTask)
		r.Get("/", h.ListTasks)
		r.Get("/statistics", h.GetStatistics)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetTask)
			r.Patch("/", h.UpdateTask)
			r.Delete("/", h.DeleteTask)
			r.Post("/start", h.StartTask)
			r.Post("/complete", h.CompleteTask)
			r.Post("/cancel", h.CancelTask)
			r.Post("/assign", h.AssignTask)
		})
	})
}

// CreateTask handles POST /tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	priority, err := domain.ParseTaskPriority(req.Priority)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.taskService.Create(r.Context(), service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    priority,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("task created",
		slog.String("task_id", task.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}

// ListTasks handles GET /tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	page, err := h.taskService.List(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, pageToResponse(page))
}

// GetStatistics handles GET /tasks/statistics
func (h *TaskHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.taskService.Statistics(r.Context(), optionalQuery(r, "assigned_to"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, statisticsToResponse(stats))
}

// GetTask handles GET /tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	task, err := h.taskService.Get(r.Context(), id)
	h.respondTask(w, r, task, err)
}

// UpdateTask handles PATCH /tasks/{id}
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	var req UpdateTaskRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	task, err := h.taskService.Update(r.Context(), id, service.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
	})
	h.respondTask(w, r, task, err)
}

// StartTask handles POST /tasks/{id}/start
func (h *TaskHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	task, err := h.taskService.Start(r.Context(), id)
	h.respondTask(w, r, task, err)
}

// CompleteTask handles POST /tasks/{id}/complete
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	task, err := h.taskService.Complete(r.Context(), id)
	h.respondTask(w, r, task, err)
}

// CancelTask handles POST /tasks/{id}/cancel. The body is optional.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	var req CancelTaskRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	task, err := h.taskService.Cancel(r.Context(), id, req.Reason)
	h.respondTask(w, r, task, err)
}

// AssignTask handles POST /tasks/{id}/assign
func (h *TaskHandler) AssignTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	var req AssignTaskRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	task, err := h.taskService.Assign(r.Context(), id, req.AssignedTo)
	h.respondTask(w, r, task, err)
}

// DeleteTask handles DELETE /tasks/{id}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := h.taskService.Delete(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return uuid.Nil, false
	}
	return id, true
}

// decode reads and validates the body into v. When optional is set an empty
// body leaves v at its zero value.
func (h *TaskHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	if optional && (r.Body == nil || r.Body == http.NoBody) {
		return true
	}
	if err := shared.DecodeJSON(w, r, v); err != nil {
		if optional && errors.Is(err, shared.ErrEmptyBody) {
			return true
		}
		HandleAPIError(w, r, err, "Invalid request format")
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		HandleAPIError(w, r, err, "")
		return false
	}
	return true
}

func (h *TaskHandler) respondTask(w http.ResponseWriter, r *http.Request, task *domain.Task, err error) {
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}
