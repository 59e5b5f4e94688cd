package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/auth"
)

// DefaultRatingDays is the rating history window when ?days is absent.
const DefaultRatingDays = 30

// ParseNotificationID extracts and validates the notification ID from the
// request path. Returns false after writing an error response.
// Expects path parameter: id
func ParseNotificationID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "id", "invalid_notification_id", "Invalid notification ID", logger)
}

// ParseTicker extracts the upper-cased ticker from the request path.
// Expects path parameter: ticker
func ParseTicker(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(r.PathValue("ticker")))
	if ticker == "" {
		writeError(w, logger, http.StatusBadRequest, "invalid_ticker", "No ticker provided")
		return "", false
	}
	return ticker, true
}

// ParsePositiveQueryInt reads a positive integer query parameter, returning
// def when it is absent. Returns false after writing an error response.
func ParsePositiveQueryInt(w http.ResponseWriter, r *http.Request, name string, def int, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, logger, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}

// RequireUser returns the authenticated user's id. Returns false after
// writing an error response.
func RequireUser(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	userID, err := auth.RequireUserID(r.Context())
	if err != nil {
		writeError(w, logger, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return 0, false
	}
	return userID, true
}

func parseID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(pathParam), 10, 64)
	if err != nil || id < 1 {
		writeError(w, logger, http.StatusBadRequest, errorCode, errorMessage)
		return 0, false
	}
	return id, true
}
