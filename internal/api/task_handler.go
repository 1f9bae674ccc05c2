package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/repubhub/republic-api/internal/api/shared"
	"github.com/repubhub/republic-api/internal/clock"
	"github.com/repubhub/republic-api/internal/domain"
	"github.com/repubhub/republic-api/internal/platform/logger"
	"github.com/repubhub/republic-api/internal/service"
	"github.com/repubhub/republic-api/internal/store"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	taskService service.TaskService
	clock       clock.Clock
	logger      *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(
	taskService service.TaskService,
	clk clock.Clock,
	logger *slog.Logger,
) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	if clk == nil {
		clk = clock.System()
	}

	return &TaskHandler{
		taskService: taskService,
		clock:       clk,
		logger:      logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /tasks requests.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	republicID, err := uuid.Parse(req.RepublicID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid republic ID format")
		return
	}

	assignees, err := parseUUIDs(req.AssignedUserIDs)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid assignee ID format")
		return
	}

	params := domain.TaskParams{
		RepublicID:         republicID,
		Title:              req.Title,
		Description:        req.Description,
		Category:           req.Category,
		AssignedUserIDs:    assignees,
		DueDate:            req.DueDate,
		IsRecurring:        req.IsRecurring,
		RecurrenceType:     domain.RecurrenceType(req.RecurrenceType),
		RecurrenceInterval: req.RecurrenceInterval,
		RecurrenceEndDate:  req.RecurrenceEndDate,
	}

	task, err := h.taskService.CreateTask(r.Context(), params)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("task created", slog.String("task_id", task.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(task))
}

// GetTask handles GET /tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.taskIDFromPath(w, r)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(r.Context(), taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// ListTasks handles GET /tasks requests with filter, sort and pagination
// query parameters.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseListFilter(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tasks, total, err := h.taskService.ListTasks(r.Context(), filter)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ListTasksResponse{
		Tasks:    tasksToResponses(tasks),
		Total:    total,
		Page:     page,
		PageSize: len(tasks),
	})
}

// UpdateTask handles PATCH /tasks/{id} requests.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	taskID, ok := h.taskIDFromPath(w, r)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	update := service.TaskUpdate{
		Title:              req.Title,
		Description:        req.Description,
		Category:           req.Category,
		DueDate:            req.DueDate,
		Status:             req.Status,
		IsRecurring:        req.IsRecurring,
		RecurrenceType:     req.RecurrenceType,
		RecurrenceInterval: req.RecurrenceInterval,
		RecurrenceEndDate:  req.RecurrenceEndDate,
	}

	task, err := h.taskService.UpdateTask(r.Context(), taskID, update)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// DeleteTask handles DELETE /tasks/{id} requests.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.taskIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(r.Context(), taskID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StartTask handles POST /tasks/{id}/start requests.
func (h *TaskHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.taskService.StartProgress)
}

// CompleteTask handles POST /tasks/{id}/complete requests. On an actual
// completion of a recurring task the next instance is spawned as a side
// effect.
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.taskService.CompleteTask)
}

// CancelTask handles POST /tasks/{id}/cancel requests.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.taskService.CancelTask)
}

// AssignUser handles POST /tasks/{id}/assignees requests.
func (h *TaskHandler) AssignUser(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.taskIDFromPath(w, r)
	if !ok {
		return
	}

	var req AssignUserRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid user ID format")
		return
	}

	task, changed, err := h.taskService.AssignUser(r.Context(), taskID, userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskChangeResponse{
		Task:    taskToResponse(task),
		Changed: changed,
	})
}

// UnassignUser handles DELETE /tasks/{id}/assignees/{userID} requests.
func (h *TaskHandler) UnassignUser(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.taskIDFromPath(w, r)
	if !ok {
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid user ID format")
		return
	}

	task, changed, err := h.taskService.UnassignUser(r.Context(), taskID, userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskChangeResponse{
		Task:    taskToResponse(task),
		Changed: changed,
	})
}

// lifecycle runs one of the state transition operations and writes the
// shared change response.
func (h *TaskHandler) lifecycle(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id uuid.UUID) (*domain.Task, bool, error),
) {
	taskID, ok := h.taskIDFromPath(w, r)
	if !ok {
		return
	}

	task, changed, err := op(r.Context(), taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskChangeResponse{
		Task:    taskToResponse(task),
		Changed: changed,
	})
}

// taskIDFromPath extracts and parses the task ID from the URL path. On
// failure it writes the error response and returns ok false.
func (h *TaskHandler) taskIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	pathID := chi.URLParam(r, "id")
	if pathID == "" {
		log.Warn("task ID not found in URL path")
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID is required")
		return uuid.Nil, false
	}

	taskID, err := uuid.Parse(pathID)
	if err != nil {
		log.Warn("invalid task ID format", slog.String("task_id", pathID))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID format")
		return uuid.Nil, false
	}

	return taskID, true
}

// parseListFilter builds a store.TaskFilter from the request's query
// parameters. Unknown or malformed values produce an error rather than a
// silently empty criterion.
func (h *TaskHandler) parseListFilter(r *http.Request) (store.TaskFilter, error) {
	q := r.URL.Query()
	filter := store.TaskFilter{Now: h.clock.Now()}

	if v := q.Get("republic_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errInvalidParam("republic_id")
		}
		filter.RepublicID = &id
	}
	if v := q.Get("status"); v != "" {
		status, err := domain.ParseTaskStatus(v)
		if err != nil {
			return filter, errInvalidParam("status")
		}
		filter.Status = &status
	}
	if v := q.Get("category"); v != "" {
		filter.Category = &v
	}
	if v := q.Get("assigned_user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errInvalidParam("assigned_user_id")
		}
		filter.AssignedUserID = &id
	}
	if v := q.Get("search"); v != "" {
		filter.SearchTerm = &v
	}

	var err error
	if filter.IsRecurring, err = parseBoolParam(q.Get("is_recurring"), "is_recurring"); err != nil {
		return filter, err
	}
	if filter.IsOverdue, err = parseBoolParam(q.Get("overdue"), "overdue"); err != nil {
		return filter, err
	}
	if filter.Unassigned, err = parseBoolParam(q.Get("unassigned"), "unassigned"); err != nil {
		return filter, err
	}

	if filter.DueDateFrom, err = parseTimeParam(q.Get("due_from"), "due_from"); err != nil {
		return filter, err
	}
	if filter.DueDateTo, err = parseTimeParam(q.Get("due_to"), "due_to"); err != nil {
		return filter, err
	}
	if filter.CreatedAtFrom, err = parseTimeParam(q.Get("created_from"), "created_from"); err != nil {
		return filter, err
	}
	if filter.CreatedAtTo, err = parseTimeParam(q.Get("created_to"), "created_to"); err != nil {
		return filter, err
	}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return filter, errInvalidParam("page")
		}
		filter.Page = page
	}
	if v := q.Get("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 {
			return filter, errInvalidParam("page_size")
		}
		filter.Size = size
	}

	filter.SortBy = q.Get("sort_by")
	switch q.Get("sort_dir") {
	case "":
		// Leave the store's default ordering in place.
	case "asc":
		filter.SortDirection = store.SortAsc
	case "desc":
		filter.SortDirection = store.SortDesc
	default:
		return filter, errInvalidParam("sort_dir")
	}

	return filter, nil
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func parseBoolParam(v, name string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, errInvalidParam(name)
	}
	return &b, nil
}

func parseTimeParam(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, errInvalidParam(name)
	}
	return &t, nil
}

type invalidParamError struct {
	param string
}

func (e invalidParamError) Error() string {
	return "Invalid query parameter: " + e.param
}

func errInvalidParam(name string) error {
	return invalidParamError{param: name}
}
