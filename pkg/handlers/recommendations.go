package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/auth"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/services"
)

// RecommendationsResponse lists recommended tickers, best first.
type RecommendationsResponse struct {
	Recommendations []models.TickerFollowers `json:"recommendations"`
}

// RecommendationHandler serves follow recommendations.
type RecommendationHandler struct {
	recommendationService services.RecommendationService
	logger                *zap.Logger
}

// NewRecommendationHandler creates a new recommendation handler.
func NewRecommendationHandler(recommendationService services.RecommendationService, logger *zap.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		recommendationService: recommendationService,
		logger:                logger,
	}
}

// RegisterRoutes registers the recommendation handler's routes on the given mux.
func (h *RecommendationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/recommendations", authMiddleware.RequireAuth(h.ForUser))
	mux.HandleFunc("GET /api/recommendations/general", authMiddleware.RequireAuth(h.General))
}

// General handles GET /api/recommendations/general
func (h *RecommendationHandler) General(w http.ResponseWriter, r *http.Request) {
	recs, err := h.recommendationService.General(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute general recommendations", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to compute recommendations")
		return
	}
	h.write(w, recs)
}

// ForUser handles GET /api/recommendations
func (h *RecommendationHandler) ForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	recs, err := h.recommendationService.ForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to compute recommendations", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to compute recommendations")
		return
	}
	h.write(w, recs)
}

func (h *RecommendationHandler) write(w http.ResponseWriter, recs []models.TickerFollowers) {
	if recs == nil {
		recs = []models.TickerFollowers{}
	}
	writeJSON(w, h.logger, http.StatusOK, RecommendationsResponse{Recommendations: recs})
}
