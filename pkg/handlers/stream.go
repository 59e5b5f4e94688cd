package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/auth"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/push"
	"github.com/sentify-hq/sentify-engine/pkg/services"
)

// DefaultHeartbeat is how often an idle stream writes a comment line so
// proxies keep the connection open.
const DefaultHeartbeat = 25 * time.Second

// StreamHandler holds one live notification connection per request.
type StreamHandler struct {
	hub                 push.Hub
	notificationService services.NotificationService
	heartbeat           time.Duration
	logger              *zap.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(hub push.Hub, notificationService services.NotificationService, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		hub:                 hub,
		notificationService: notificationService,
		heartbeat:           DefaultHeartbeat,
		logger:              logger,
	}
}

// RegisterRoutes registers the stream route on the given mux.
func (h *StreamHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/stream", authMiddleware.RequireAuth(h.Stream))
}

// Stream handles GET /api/stream. It subscribes the caller, replays unsent
// notifications, then forwards live ones until the client goes away. Live
// events are marked sent only after they are written and flushed; events still
// queued when the client leaves stay unsent for the next catch-up.
// Subscribing first means an event pushed during catch-up can arrive twice;
// clients dedupe by id.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("SSE not supported")
		writeError(w, h.logger, http.StatusInternalServerError, "sse_unsupported", "SSE not supported")
		return
	}

	ctx := r.Context()
	sub, err := h.hub.Subscribe(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to subscribe", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, h.logger, http.StatusServiceUnavailable, "stream_unavailable", "Live notifications unavailable")
		return
	}
	defer func() {
		if err := sub.Close(); err != nil {
			h.logger.Warn("Failed to close subscription", zap.Int64("user_id", userID), zap.Error(err))
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(ev models.PushEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: notification\ndata: %s\n\n", ev.ID, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	delivered, err := h.notificationService.CatchUp(ctx, userID, send)
	if err != nil {
		h.logger.Warn("Catch-up interrupted",
			zap.Int64("user_id", userID),
			zap.Int("delivered", delivered),
			zap.Error(err))
		return
	}
	h.logger.Debug("Stream connected", zap.Int64("user_id", userID), zap.Int("caught_up", delivered))

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("Stream closed by client", zap.Int64("user_id", userID))
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := send(ev); err != nil {
				h.logger.Debug("Stream write failed", zap.Int64("user_id", userID), zap.Error(err))
				return
			}
			if err := h.notificationService.MarkDelivered(ctx, ev.ID); err != nil {
				// Left unsent, so the next connect replays it.
				h.logger.Warn("Failed to mark live notification sent",
					zap.Int64("user_id", userID),
					zap.Int64("notification_id", ev.ID),
					zap.Error(err))
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
