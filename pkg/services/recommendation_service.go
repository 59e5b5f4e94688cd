package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/repositories"
)

// GeneralRecommendationLimit is how many companies general recommendations return.
const GeneralRecommendationLimit = 5

// minSpecificCandidates is the fewest sector candidates worth recommending
// before falling back to general recommendations.
const minSpecificCandidates = 2

// RecommendationService ranks companies for a user.
type RecommendationService interface {
	// General returns the most followed companies, most followers first,
	// ties broken by ticker ascending.
	General(ctx context.Context) ([]models.TickerFollowers, error)
	// ForUser recommends unfollowed companies in the sectors the user already
	// follows, ranked like General. It falls back to General when the user
	// follows nothing or fewer than two candidates exist.
	ForUser(ctx context.Context, userID int64) ([]models.TickerFollowers, error)
}

type recommendationService struct {
	follows repositories.FollowRepository
	logger  *zap.Logger
}

var _ RecommendationService = (*recommendationService)(nil)

// NewRecommendationService creates a recommendation service.
func NewRecommendationService(follows repositories.FollowRepository, logger *zap.Logger) RecommendationService {
	return &recommendationService{
		follows: follows,
		logger:  logger.Named("recommendation-service"),
	}
}

func (s *recommendationService) General(ctx context.Context) ([]models.TickerFollowers, error) {
	popularity, err := s.follows.Popularity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load follower counts: %w", err)
	}
	return general(popularity), nil
}

func (s *recommendationService) ForUser(ctx context.Context, userID int64) ([]models.TickerFollowers, error) {
	popularity, err := s.follows.Popularity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load follower counts: %w", err)
	}
	followed, err := s.follows.ListTickers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load follows: %w", err)
	}

	candidates := sectorCandidates(popularity, followed)
	if len(candidates) < minSpecificCandidates {
		s.logger.Debug("Falling back to general recommendations",
			zap.Int64("user_id", userID),
			zap.Int("follows", len(followed)),
			zap.Int("candidates", len(candidates)))
		return general(popularity), nil
	}
	return candidates, nil
}

func general(popularity []models.TickerFollowers) []models.TickerFollowers {
	ranked := rank(popularity)
	if len(ranked) > GeneralRecommendationLimit {
		ranked = ranked[:GeneralRecommendationLimit]
	}
	return ranked
}

// sectorCandidates returns, ranked, the companies in sectors the user follows
// that the user does not follow yet.
func sectorCandidates(popularity []models.TickerFollowers, followed []string) []models.TickerFollowers {
	if len(followed) == 0 {
		return nil
	}

	isFollowed := make(map[string]bool, len(followed))
	for _, t := range followed {
		isFollowed[t] = true
	}

	sectors := make(map[int]bool)
	for _, p := range popularity {
		if isFollowed[p.Ticker] {
			sectors[p.SectorID] = true
		}
	}

	var candidates []models.TickerFollowers
	for _, p := range popularity {
		if sectors[p.SectorID] && !isFollowed[p.Ticker] {
			candidates = append(candidates, p)
		}
	}
	return rank(candidates)
}

func rank(in []models.TickerFollowers) []models.TickerFollowers {
	out := make([]models.TickerFollowers, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Followers != out[j].Followers {
			return out[i].Followers > out[j].Followers
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}
