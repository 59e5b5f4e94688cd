package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/auth"
	"github.com/sentify-hq/sentify-engine/pkg/services"
)

// RoleAdmin grants access to the ingestion trigger endpoints.
const RoleAdmin = "admin"

// Admin job kinds.
const (
	JobUpdate   = "update"
	JobBacklog  = "backlog"
	JobBackfill = "backfill"
)

// JobAcceptedResponse is returned when a background job was started.
type JobAcceptedResponse struct {
	Status string `json:"status"`
	Job    string `json:"job"`
	JobID  string `json:"job_id"`
}

// AdminHandler triggers ingestion jobs in the background. At most one job of
// each kind runs at a time.
type AdminHandler struct {
	ingestionService services.IngestionService
	backfillService  services.BackfillService
	logger           *zap.Logger

	// baseCtx outlives requests; cancelling it stops running jobs.
	baseCtx context.Context
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[string]bool
}

// NewAdminHandler creates a new admin handler. Jobs run under baseCtx.
func NewAdminHandler(
	baseCtx context.Context,
	ingestionService services.IngestionService,
	backfillService services.BackfillService,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		ingestionService: ingestionService,
		backfillService:  backfillService,
		logger:           logger,
		baseCtx:          baseCtx,
		running:          make(map[string]bool),
	}
}

// RegisterRoutes registers the admin routes on the given mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	admin := func(next http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuth(auth.RequireRole(RoleAdmin)(next))
	}

	base := "/api/admin/ingestion"
	mux.HandleFunc("POST "+base+"/update", admin(h.Update))
	mux.HandleFunc("POST "+base+"/backlog", admin(h.Backlog))
	mux.HandleFunc("POST "+base+"/backfill", admin(h.Backfill))
}

// Update handles POST /api/admin/ingestion/update[?date=YYYY-MM-DD].
// Without a date it ingests yesterday.
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	var date time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	h.start(w, JobUpdate, func(ctx context.Context) error {
		var err error
		if date.IsZero() {
			_, err = h.ingestionService.UpdateYesterday(ctx)
		} else {
			_, err = h.ingestionService.UpdateAll(ctx, date)
		}
		return err
	})
}

// Backlog handles POST /api/admin/ingestion/backlog[?days=N].
func (h *AdminHandler) Backlog(w http.ResponseWriter, r *http.Request) {
	days, ok := ParsePositiveQueryInt(w, r, "days", 0, h.logger)
	if !ok {
		return
	}

	h.start(w, JobBacklog, func(ctx context.Context) error {
		_, err := h.ingestionService.Backlog(ctx, days)
		return err
	})
}

// Backfill handles POST /api/admin/ingestion/backfill.
func (h *AdminHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	h.start(w, JobBackfill, func(ctx context.Context) error {
		_, err := h.backfillService.BackfillDescriptions(ctx)
		return err
	})
}

// Wait blocks until every started job has returned.
func (h *AdminHandler) Wait() {
	h.wg.Wait()
}

func (h *AdminHandler) start(w http.ResponseWriter, kind string, run func(ctx context.Context) error) {
	h.mu.Lock()
	if h.running[kind] {
		h.mu.Unlock()
		writeError(w, h.logger, http.StatusConflict, "job_running", "A "+kind+" job is already running")
		return
	}
	h.running[kind] = true
	h.mu.Unlock()

	jobID := uuid.New().String()
	logger := h.logger.With(zap.String("job", kind), zap.String("job_id", jobID))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			h.mu.Lock()
			delete(h.running, kind)
			h.mu.Unlock()
		}()

		start := time.Now()
		logger.Info("Admin job started")
		if err := run(h.baseCtx); err != nil {
			logger.Error("Admin job failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			return
		}
		logger.Info("Admin job finished", zap.Duration("elapsed", time.Since(start)))
	}()

	writeJSON(w, h.logger, http.StatusAccepted, JobAcceptedResponse{Status: "accepted", Job: kind, JobID: jobID})
}
