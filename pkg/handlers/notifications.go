package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/apperrors"
	"github.com/sentify-hq/sentify-engine/pkg/auth"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/services"
)

// NotificationsResponse for GET /api/notifications
type NotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Unread        int                    `json:"unread"`
}

// DeleteAllResponse for DELETE /api/notifications
type DeleteAllResponse struct {
	Status  string `json:"status"`
	Deleted int64  `json:"deleted"`
}

// NotificationHandler manages the caller's notification inbox.
type NotificationHandler struct {
	notificationService services.NotificationService
	logger              *zap.Logger
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(notificationService services.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		logger:              logger,
	}
}

// RegisterRoutes registers the notification handler's routes on the given mux.
func (h *NotificationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/notifications"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("DELETE "+base, authMiddleware.RequireAuth(h.DeleteAll))
	mux.HandleFunc("DELETE "+base+"/{id}", authMiddleware.RequireAuth(h.Delete))
	mux.HandleFunc("POST "+base+"/{id}/read", authMiddleware.RequireAuth(h.MarkRead))
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	notifications, err := h.notificationService.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to list notifications")
		return
	}

	response := NotificationsResponse{Notifications: notifications}
	if response.Notifications == nil {
		response.Notifications = []*models.Notification{}
	}
	for _, n := range notifications {
		if !n.Read {
			response.Unread++
		}
	}
	writeJSON(w, h.logger, http.StatusOK, response)
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "mark read", h.notificationService.MarkRead)
}

// Delete handles DELETE /api/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "delete", h.notificationService.Delete)
}

// mutate applies op to one notification owned by the caller. A notification
// of another user is reported as missing.
func (h *NotificationHandler) mutate(w http.ResponseWriter, r *http.Request, name string,
	op func(ctx context.Context, userID, id int64) error) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseNotificationID(w, r, h.logger)
	if !ok {
		return
	}

	err := op(r.Context(), userID, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		writeJSON(w, h.logger, http.StatusNotFound, StatusResponse{Status: "error", Message: "Notification not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to "+name+" notification",
			zap.Int64("user_id", userID),
			zap.Int64("notification_id", id),
			zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to update notification")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, StatusResponse{Status: "success"})
}

// DeleteAll handles DELETE /api/notifications
func (h *NotificationHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	deleted, err := h.notificationService.DeleteAll(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to delete notifications", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to delete notifications")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, DeleteAllResponse{Status: "success", Deleted: deleted})
}
