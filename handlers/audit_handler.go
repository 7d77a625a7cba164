package handlers

import (
	"net/http"
	"strconv"

	"team-tasks/backend/middleware"
	"team-tasks/backend/models"
	"team-tasks/backend/services"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuditHandler struct {
	service *services.AuditService
}

func NewAuditHandler(service *services.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List supports the user, task, action and limit query parameters.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := models.AuditQuery{Action: models.AuditAction(params.Get("action"))}

	if raw := params.Get("user"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid user ID")
			return
		}
		q.User = &id
	}
	if raw := params.Get("task"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid task ID")
			return
		}
		q.TaskID = &id
	}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit < 1 {
			writeFailure(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		q.Limit = limit
	}

	logs, err := h.service.List(r.Context(), middleware.UserFromContext(r.Context()), q)
	if err != nil {
		writeError(w, r, err, "Failed to fetch audit logs")
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"count": len(logs), "logs": logs})
}
