package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/genqueue/internal/api/shared"
	"github.com/phrazzld/genqueue/internal/platform/logger"
	"github.com/phrazzld/genqueue/internal/task"
)

// TaskService is the part of *task.Manager the handlers use
type TaskService interface {
	CreateTask(ctx context.Context, spec task.Spec) (task.Task, error)
	Get(id string) (task.Task, error)
	List(f task.Filter) []task.Task
	Stats() task.Stats
	CancelTask(ctx context.Context, id string) (task.Task, error)
	RetryTask(ctx context.Context, id string) (task.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ClearCompleted(ctx context.Context) int
	ClearAll(ctx context.Context) int
}

// TaskHandler serves the /api/tasks and /api/stats endpoints.
type TaskHandler struct {
	tasks TaskService
}

// NewTaskHandler creates a TaskHandler backed by tasks.
func NewTaskHandler(tasks TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// CreateTask handles POST /api/tasks. The task is queued, so the reply is
// 202 Accepted.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
			"estimated_duration_seconds must be greater than zero", err)
		return
	}

	created, err := h.tasks.CreateTask(r.Context(), req.ToSpec())
	if err != nil {
		h.respondWithTaskError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("task accepted",
		"task_id", created.ID,
		"task_type", created.Type,
		"priority", created.Priority)
	shared.RespondWithJSON(w, r, http.StatusAccepted, created)
}

// ListTasks handles GET /api/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	tasks := h.tasks.List(filter)
	if tasks == nil {
		tasks = []task.Task{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ListTasksResponse{Tasks: tasks, Count: len(tasks)})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithTaskError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// CancelTask handles POST /api/tasks/{id}/cancel.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.CancelTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithTaskError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// RetryTask handles POST /api/tasks/{id}/retry.
func (h *TaskHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.RetryTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithTaskError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// DeleteTask handles DELETE /api/tasks/{id}.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondWithTaskError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCompleted handles POST /api/tasks/clear-completed.
func (h *TaskHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	removed := h.tasks.ClearCompleted(r.Context())
	shared.RespondWithJSON(w, r, http.StatusOK, ClearResponse{Removed: removed})
}

// ClearAll handles DELETE /api/tasks.
func (h *TaskHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	removed := h.tasks.ClearAll(r.Context())
	shared.RespondWithJSON(w, r, http.StatusOK, ClearResponse{Removed: removed})
}

// GetStats handles GET /api/stats.
func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.tasks.Stats())
}

func (h *TaskHandler) respondWithTaskError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
