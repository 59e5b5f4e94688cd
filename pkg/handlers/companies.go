package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/apperrors"
	"github.com/sentify-hq/sentify-engine/pkg/auth"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// CompanySummary is one entry of GET /api/companies.
type CompanySummary struct {
	Ticker string `json:"stock_ticker"`
	Name   string `json:"company_name"`
}

// ArticlesResponse for GET /api/articles
type ArticlesResponse struct {
	Articles []*models.Article `json:"articles"`
}

// RatingHistoryResponse for GET /api/companies/{ticker}/ratings
type RatingHistoryResponse struct {
	Ticker  string                    `json:"stock_ticker"`
	Days    int                       `json:"days"`
	Ratings []*models.SentimentRating `json:"ratings"`
}

// FollowRequest for POST /api/follows
type FollowRequest struct {
	Ticker string `json:"ticker"`
}

// FollowResponse reports the follow state after a toggle.
type FollowResponse struct {
	Status string `json:"status"`
	Ticker string `json:"ticker"`
}

// FollowingResponse for GET /api/follows
type FollowingResponse struct {
	Tickers []string `json:"tickers"`
}

// ============================================================================
// Handler
// ============================================================================

// CompanyHandler serves companies, articles, ratings and follows.
type CompanyHandler struct {
	companyService services.CompanyService
	logger         *zap.Logger
}

// NewCompanyHandler creates a new company handler.
func NewCompanyHandler(companyService services.CompanyService, logger *zap.Logger) *CompanyHandler {
	return &CompanyHandler{
		companyService: companyService,
		logger:         logger,
	}
}

// RegisterRoutes registers the company handler's routes on the given mux.
func (h *CompanyHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/companies", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("GET /api/companies/{ticker}/ratings", authMiddleware.RequireAuth(h.Ratings))
	mux.HandleFunc("GET /api/articles", authMiddleware.RequireAuth(h.Articles))
	mux.HandleFunc("GET /api/follows", authMiddleware.RequireAuth(h.Following))
	mux.HandleFunc("POST /api/follows", authMiddleware.RequireAuth(h.ToggleFollow))
}

// List handles GET /api/companies
func (h *CompanyHandler) List(w http.ResponseWriter, r *http.Request) {
	companies, err := h.companyService.ListCompanies(r.Context())
	if err != nil {
		h.logger.Error("Failed to list companies", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to list companies")
		return
	}

	response := make([]CompanySummary, len(companies))
	for i, c := range companies {
		response[i] = CompanySummary{Ticker: c.Ticker, Name: c.Name}
	}
	writeJSON(w, h.logger, http.StatusOK, response)
}

// Articles handles GET /api/articles?tickers=AAPL,MSFT
func (h *CompanyHandler) Articles(w http.ResponseWriter, r *http.Request) {
	tickers := strings.Split(r.URL.Query().Get("tickers"), ",")

	articles, err := h.companyService.Articles(r.Context(), tickers)
	if errors.Is(err, apperrors.ErrInvalidInput) {
		writeError(w, h.logger, http.StatusBadRequest, "missing_tickers", "No tickers provided")
		return
	}
	if err != nil {
		h.logger.Error("Failed to list articles", zap.Strings("tickers", tickers), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to list articles")
		return
	}

	if articles == nil {
		articles = []*models.Article{}
	}
	writeJSON(w, h.logger, http.StatusOK, ArticlesResponse{Articles: articles})
}

// Ratings handles GET /api/companies/{ticker}/ratings?days=N
func (h *CompanyHandler) Ratings(w http.ResponseWriter, r *http.Request) {
	ticker, ok := ParseTicker(w, r, h.logger)
	if !ok {
		return
	}
	days, ok := ParsePositiveQueryInt(w, r, "days", DefaultRatingDays, h.logger)
	if !ok {
		return
	}

	ratings, err := h.companyService.RatingHistory(r.Context(), ticker, days)
	if errors.Is(err, apperrors.ErrNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "not_found", "Ticker does not exist")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load rating history", zap.String("ticker", ticker), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to load ratings")
		return
	}

	if ratings == nil {
		ratings = []*models.SentimentRating{}
	}
	writeJSON(w, h.logger, http.StatusOK, RatingHistoryResponse{Ticker: ticker, Days: days, Ratings: ratings})
}

// Following handles GET /api/follows
func (h *CompanyHandler) Following(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	tickers, err := h.companyService.Following(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list follows", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to list follows")
		return
	}

	if tickers == nil {
		tickers = []string{}
	}
	writeJSON(w, h.logger, http.StatusOK, FollowingResponse{Tickers: tickers})
}

// ToggleFollow handles POST /api/follows
func (h *CompanyHandler) ToggleFollow(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req FollowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	followed, err := h.companyService.ToggleFollow(r.Context(), userID, req.Ticker)
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		writeError(w, h.logger, http.StatusBadRequest, "missing_ticker", "No ticker provided")
		return
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, h.logger, http.StatusNotFound, "not_found", "Ticker does not exist")
		return
	case err != nil:
		h.logger.Error("Failed to toggle follow",
			zap.Int64("user_id", userID),
			zap.String("ticker", req.Ticker),
			zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to update follow")
		return
	}

	status := "unfollowed"
	if followed {
		status = "followed"
	}
	writeJSON(w, h.logger, http.StatusOK, FollowResponse{Status: status, Ticker: strings.ToUpper(strings.TrimSpace(req.Ticker))})
}
