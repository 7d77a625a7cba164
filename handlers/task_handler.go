package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"team-tasks/backend/middleware"
	"team-tasks/backend/models"
	"team-tasks/backend/services"
)

type TaskHandler struct {
	service *services.TaskService
}

func NewTaskHandler(service *services.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

type createTaskRequest struct {
	Title            string                  `json:"title"`
	Description      string                  `json:"description"`
	DueDate          string                  `json:"dueDate"`
	Priority         models.TaskPriority     `json:"priority"`
	Status           models.TaskStatus       `json:"status"`
	AssignedTo       *string                 `json:"assignedTo"`
	Tags             []string                `json:"tags"`
	IsRecurring      bool                    `json:"isRecurring"`
	RecurringPattern models.RecurringPattern `json:"recurringPattern"`
}

type updateTaskRequest struct {
	Title            *string                  `json:"title"`
	Description      *string                  `json:"description"`
	DueDate          *string                  `json:"dueDate"`
	Priority         *models.TaskPriority     `json:"priority"`
	Status           *models.TaskStatus       `json:"status"`
	AssignedTo       optionalString           `json:"assignedTo"`
	Tags             *[]string                `json:"tags"`
	IsRecurring      *bool                    `json:"isRecurring"`
	RecurringPattern *models.RecurringPattern `json:"recurringPattern"`
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in := services.CreateTaskInput{
		Title:            req.Title,
		Description:      req.Description,
		Priority:         req.Priority,
		Status:           req.Status,
		Tags:             req.Tags,
		IsRecurring:      req.IsRecurring,
		RecurringPattern: req.RecurringPattern,
	}
	if req.DueDate != "" {
		due, err := parseDate(req.DueDate)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid due date")
			return
		}
		in.DueDate = &due
	}
	if req.AssignedTo != nil {
		in.AssignedTo = *req.AssignedTo
	}

	task, err := h.service.CreateTask(r.Context(), middleware.UserFromContext(r.Context()), in)
	if err != nil {
		// An unknown assignee is a bad request here, not a missing resource.
		if errors.Is(err, services.ErrNotFound) {
			writeFailure(w, http.StatusBadRequest, services.Message(err, "Assigned user not found"))
			return
		}
		writeError(w, r, err, "Failed to create task")
		return
	}
	writeSuccess(w, http.StatusCreated, "Task created successfully", envelope{"task": task})
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id", "task")
	if !ok {
		return
	}
	var req updateTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	patch := services.TaskPatch{
		Title:            req.Title,
		Description:      req.Description,
		Priority:         req.Priority,
		Status:           req.Status,
		Tags:             req.Tags,
		IsRecurring:      req.IsRecurring,
		RecurringPattern: req.RecurringPattern,
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid due date")
			return
		}
		patch.DueDate = &due
	}
	if req.AssignedTo.Set {
		assignee := ""
		if req.AssignedTo.Value != nil {
			assignee = *req.AssignedTo.Value
		}
		patch.AssignedTo = &assignee
	}

	task, err := h.service.UpdateTask(r.Context(), middleware.UserFromContext(r.Context()), taskID, patch)
	if err != nil {
		writeError(w, r, err, "Failed to update task")
		return
	}
	writeSuccess(w, http.StatusOK, "Task updated successfully", envelope{"task": task})
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id", "task")
	if !ok {
		return
	}

	if err := h.service.DeleteTask(r.Context(), middleware.UserFromContext(r.Context()), taskID); err != nil {
		writeError(w, r, err, "Failed to delete task")
		return
	}
	writeSuccess(w, http.StatusOK, "Task deleted successfully", nil)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r, "id", "task")
	if !ok {
		return
	}

	task, err := h.service.GetTask(r.Context(), middleware.UserFromContext(r.Context()), taskID)
	if err != nil {
		writeError(w, r, err, "Failed to fetch task")
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"task": task})
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	filter := services.TaskFilter{
		Search:     params.Get("search"),
		Status:     params.Get("status"),
		Priority:   params.Get("priority"),
		DueDate:    params.Get("dueDate"),
		AssignedTo: params.Get("assignedTo"),
		CreatedBy:  params.Get("createdBy"),
		Page:       queryInt(params.Get("page")),
		Limit:      queryInt(params.Get("limit")),
	}

	page, err := h.service.ListTasks(r.Context(), middleware.UserFromContext(r.Context()), filter)
	if err != nil {
		writeError(w, r, err, "Failed to fetch tasks")
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{
		"count": len(page.Tasks),
		"tasks": page.Tasks,
		"pagination": envelope{
			"total": page.Total,
			"page":  page.Page,
			"limit": page.Limit,
			"pages": page.Pages,
		},
	})
}

// queryInt returns 0 for anything unparsable so the service applies its default.
func queryInt(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
