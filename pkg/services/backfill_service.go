package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/repositories"
)

// BackfillResult counts the outcome of a description backfill.
type BackfillResult struct {
	Updated int
	Skipped int
	Failed  int
}

// BackfillService fills in company descriptions that were never fetched.
type BackfillService interface {
	// BackfillDescriptions fetches the description of every company that has
	// none. Per-company failures are logged and skipped.
	BackfillDescriptions(ctx context.Context) (BackfillResult, error)
}

type backfillService struct {
	companies repositories.CompanyRepository
	profiler  CompanyProfiler
	logger    *zap.Logger
}

var _ BackfillService = (*backfillService)(nil)

// NewBackfillService creates a backfill service.
func NewBackfillService(companies repositories.CompanyRepository, profiler CompanyProfiler, logger *zap.Logger) BackfillService {
	return &backfillService{
		companies: companies,
		profiler:  profiler,
		logger:    logger.Named("backfill-service"),
	}
}

func (s *backfillService) BackfillDescriptions(ctx context.Context) (BackfillResult, error) {
	var result BackfillResult

	tickers, err := s.companies.MissingDescriptions(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list companies without description: %w", err)
	}

	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		description, err := s.profiler.CompanyDescription(ctx, ticker)
		if err != nil {
			result.Failed++
			s.logger.Warn("Failed to fetch company description",
				zap.String("ticker", ticker),
				zap.Error(err))
			continue
		}
		description = strings.TrimSpace(description)
		if description == "" {
			result.Skipped++
			s.logger.Info("Provider has no description", zap.String("ticker", ticker))
			continue
		}

		if err := s.companies.UpdateDescription(ctx, ticker, description); err != nil {
			result.Failed++
			s.logger.Warn("Failed to store company description",
				zap.String("ticker", ticker),
				zap.Error(err))
			continue
		}
		result.Updated++
	}

	s.logger.Info("Description backfill finished",
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}
