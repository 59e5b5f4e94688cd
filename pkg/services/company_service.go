package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/apperrors"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/repositories"
)

// ArticleListLimit caps the articles returned by one feed read.
const ArticleListLimit = 200

// CompanyService serves the read side: companies, articles, ratings and follows.
type CompanyService interface {
	ListCompanies(ctx context.Context) ([]*models.Company, error)
	// Articles returns the newest articles of the given tickers. Unknown
	// tickers contribute nothing.
	Articles(ctx context.Context, tickers []string) ([]*models.Article, error)
	// RatingHistory returns the ticker's ratings for the last days days.
	RatingHistory(ctx context.Context, ticker string, days int) ([]*models.SentimentRating, error)
	// ToggleFollow follows or unfollows ticker and returns the new state.
	ToggleFollow(ctx context.Context, userID int64, ticker string) (followed bool, err error)
	Following(ctx context.Context, userID int64) ([]string, error)
}

type companyService struct {
	companies repositories.CompanyRepository
	articles  repositories.ArticleRepository
	ratings   repositories.RatingRepository
	follows   repositories.FollowRepository
	now       func() time.Time
	logger    *zap.Logger
}

var _ CompanyService = (*companyService)(nil)

// NewCompanyService creates a company service.
func NewCompanyService(
	companies repositories.CompanyRepository,
	articles repositories.ArticleRepository,
	ratings repositories.RatingRepository,
	follows repositories.FollowRepository,
	logger *zap.Logger,
) CompanyService {
	return &companyService{
		companies: companies,
		articles:  articles,
		ratings:   ratings,
		follows:   follows,
		now:       time.Now,
		logger:    logger.Named("company-service"),
	}
}

func (s *companyService) ListCompanies(ctx context.Context) ([]*models.Company, error) {
	return s.companies.List(ctx)
}

func (s *companyService) Articles(ctx context.Context, tickers []string) ([]*models.Article, error) {
	cleaned := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("no tickers provided: %w", apperrors.ErrInvalidInput)
	}
	return s.articles.ListByTickers(ctx, cleaned, ArticleListLimit)
}

func (s *companyService) RatingHistory(ctx context.Context, ticker string, days int) ([]*models.SentimentRating, error) {
	if days < 1 {
		return nil, fmt.Errorf("days must be positive: %w", apperrors.ErrInvalidInput)
	}
	exists, err := s.companies.Exists(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.ErrNotFound
	}
	since := Day(s.now()).AddDate(0, 0, -days)
	return s.ratings.History(ctx, ticker, since)
}

func (s *companyService) ToggleFollow(ctx context.Context, userID int64, ticker string) (bool, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return false, fmt.Errorf("no ticker provided: %w", apperrors.ErrInvalidInput)
	}
	exists, err := s.companies.Exists(ctx, ticker)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, apperrors.ErrNotFound
	}

	followed, err := s.follows.Toggle(ctx, userID, ticker)
	if err != nil {
		return false, err
	}
	s.logger.Debug("Follow toggled",
		zap.Int64("user_id", userID),
		zap.String("ticker", ticker),
		zap.Bool("followed", followed))
	return followed, nil
}

func (s *companyService) Following(ctx context.Context, userID int64) ([]string, error) {
	return s.follows.ListTickers(ctx, userID)
}
