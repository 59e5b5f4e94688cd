package handlers

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/apperrors"
	"github.com/sentify-hq/sentify-engine/pkg/auth"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/services"
)

// withUser returns req carrying claims for userID, as RequireAuth would set.
func withUser(req *http.Request, userID int64, roles ...string) *http.Request {
	claims := &auth.Claims{Roles: roles}
	claims.Subject = strconv.FormatInt(userID, 10)
	ctx := context.WithValue(req.Context(), auth.ClaimsKey, claims)
	return req.WithContext(ctx)
}

// mockCompanyService is a configurable CompanyService.
type mockCompanyService struct {
	companies []*models.Company
	articles  []*models.Article
	ratings   []*models.SentimentRating
	following []string
	known     map[string]bool
	followed  bool
	err       error

	gotTickers []string
	gotDays    int
	gotUser    int64
}

var _ services.CompanyService = (*mockCompanyService)(nil)

func (m *mockCompanyService) ListCompanies(ctx context.Context) ([]*models.Company, error) {
	return m.companies, m.err
}

func (m *mockCompanyService) Articles(ctx context.Context, tickers []string) ([]*models.Article, error) {
	m.gotTickers = tickers
	if m.err != nil {
		return nil, m.err
	}
	for _, t := range tickers {
		if t != "" {
			return m.articles, nil
		}
	}
	return nil, apperrors.ErrInvalidInput
}

func (m *mockCompanyService) RatingHistory(ctx context.Context, ticker string, days int) ([]*models.SentimentRating, error) {
	m.gotDays = days
	if m.err != nil {
		return nil, m.err
	}
	if !m.known[ticker] {
		return nil, apperrors.ErrNotFound
	}
	return m.ratings, nil
}

func (m *mockCompanyService) ToggleFollow(ctx context.Context, userID int64, ticker string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if ticker == "" {
		return false, apperrors.ErrInvalidInput
	}
	if !m.known[ticker] {
		return false, apperrors.ErrNotFound
	}
	return m.followed, nil
}

func (m *mockCompanyService) Following(ctx context.Context, userID int64) ([]string, error) {
	m.gotUser = userID
	return m.following, m.err
}

// mockNotificationService is an in-memory NotificationService.
type mockNotificationService struct {
	mu        sync.Mutex
	inbox     map[int64][]*models.Notification
	pending   []models.PushEvent
	delivered []int64
	err       error
}

var _ services.NotificationService = (*mockNotificationService)(nil)

func newMockNotificationService() *mockNotificationService {
	return &mockNotificationService{inbox: make(map[int64][]*models.Notification)}
}

func (m *mockNotificationService) NotifyFollowers(ctx context.Context, ticker string) (int, error) {
	return 0, nil
}

func (m *mockNotificationService) MarkDelivered(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, id)
	return nil
}

func (m *mockNotificationService) deliveredIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.delivered...)
}

func (m *mockNotificationService) CatchUp(ctx context.Context, userID int64, deliver func(models.PushEvent) error) (int, error) {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for i, ev := range pending {
		if err := deliver(ev); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}

func (m *mockNotificationService) List(ctx context.Context, userID int64) ([]*models.Notification, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.inbox[userID], nil
}

func (m *mockNotificationService) find(userID, id int64) (int, error) {
	if m.err != nil {
		return -1, m.err
	}
	for i, n := range m.inbox[userID] {
		if n.ID == id {
			return i, nil
		}
	}
	return -1, apperrors.ErrNotFound
}

func (m *mockNotificationService) MarkRead(ctx context.Context, userID, id int64) error {
	i, err := m.find(userID, id)
	if err != nil {
		return err
	}
	m.inbox[userID][i].Read = true
	return nil
}

func (m *mockNotificationService) Delete(ctx context.Context, userID, id int64) error {
	i, err := m.find(userID, id)
	if err != nil {
		return err
	}
	m.inbox[userID] = append(m.inbox[userID][:i], m.inbox[userID][i+1:]...)
	return nil
}

func (m *mockNotificationService) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	n := int64(len(m.inbox[userID]))
	delete(m.inbox, userID)
	return n, nil
}

// mockRecommendationService returns fixed recommendations.
type mockRecommendationService struct {
	general []models.TickerFollowers
	forUser map[int64][]models.TickerFollowers
	err     error
}

var _ services.RecommendationService = (*mockRecommendationService)(nil)

func (m *mockRecommendationService) General(ctx context.Context) ([]models.TickerFollowers, error) {
	return m.general, m.err
}

func (m *mockRecommendationService) ForUser(ctx context.Context, userID int64) ([]models.TickerFollowers, error) {
	return m.forUser[userID], m.err
}

// mockIngestionService records trigger calls. When block is set, calls wait
// for it to close or for ctx to end.
type mockIngestionService struct {
	mu        sync.Mutex
	calls     []string
	dates     []time.Time
	days      []int
	block     chan struct{}
	err       error
	callsDone chan string
}

var _ services.IngestionService = (*mockIngestionService)(nil)

func newMockIngestionService() *mockIngestionService {
	return &mockIngestionService{callsDone: make(chan string, 10)}
}

func (m *mockIngestionService) record(ctx context.Context, call string) error {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
	defer func() { m.callsDone <- call }()

	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func (m *mockIngestionService) RunCycle(ctx context.Context, ticker string, date time.Time) services.CycleResult {
	return services.CycleResult{Ticker: ticker}
}

func (m *mockIngestionService) UpdateAll(ctx context.Context, date time.Time) ([]services.CycleResult, error) {
	m.mu.Lock()
	m.dates = append(m.dates, date)
	m.mu.Unlock()
	return nil, m.record(ctx, "update_all")
}

func (m *mockIngestionService) UpdateYesterday(ctx context.Context) ([]services.CycleResult, error) {
	return nil, m.record(ctx, "update_yesterday")
}

func (m *mockIngestionService) Backlog(ctx context.Context, days int) ([]services.CycleResult, error) {
	m.mu.Lock()
	m.days = append(m.days, days)
	m.mu.Unlock()
	return nil, m.record(ctx, "backlog")
}

func (m *mockIngestionService) RunScheduler(ctx context.Context, interval time.Duration) {}

// mockBackfillService counts backfill runs.
type mockBackfillService struct {
	mu   sync.Mutex
	runs int
	done chan struct{}
}

var _ services.BackfillService = (*mockBackfillService)(nil)

func (m *mockBackfillService) BackfillDescriptions(ctx context.Context) (services.BackfillResult, error) {
	m.mu.Lock()
	m.runs++
	m.mu.Unlock()
	if m.done != nil {
		close(m.done)
	}
	return services.BackfillResult{Updated: 1}, nil
}

// stubAuthService authenticates every request as claims.
type stubAuthService struct {
	claims *auth.Claims
}

func (s *stubAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	if s.claims == nil {
		return nil, "", auth.ErrMissingAuthorization
	}
	return s.claims, "test-token", nil
}

func newAuthMiddleware(userID int64, roles ...string) *auth.Middleware {
	claims := &auth.Claims{Roles: roles}
	claims.Subject = strconv.FormatInt(userID, 10)
	return auth.NewMiddleware(&stubAuthService{claims: claims}, zap.NewNop())
}

func authMiddlewareFor(svc auth.AuthService) *auth.Middleware {
	return auth.NewMiddleware(svc, zap.NewNop())
}
