package handlers

import (
	"net/http"

	"team-tasks/backend/middleware"
	"team-tasks/backend/services"
)

type NotificationHandler struct {
	service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type markReadRequest struct {
	NotificationIDs []string `json:"notificationIds"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.service.List(r.Context(), middleware.UserFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to fetch notifications")
		return
	}

	unread := 0
	for _, n := range notifications {
		if !n.Read {
			unread++
		}
	}
	writeSuccess(w, http.StatusOK, "", envelope{
		"count":         len(notifications),
		"unread":        unread,
		"notifications": notifications,
	})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	modified, err := h.service.MarkRead(r.Context(), middleware.UserFromContext(r.Context()), req.NotificationIDs)
	if err != nil {
		writeError(w, r, err, "Failed to update notifications")
		return
	}
	writeSuccess(w, http.StatusOK, "Notifications marked as read", envelope{"modified": modified})
}
