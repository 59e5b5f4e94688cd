package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/sentify-hq/sentify-engine/pkg/apperrors"
	"github.com/sentify-hq/sentify-engine/pkg/database"
	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// RatingRepository defines the interface for daily sentiment rating access.
type RatingRepository interface {
	Exists(ctx context.Context, ticker string, date time.Time) (bool, error)
	// Create inserts a rating. A second rating for the same (ticker, date)
	// fails with apperrors.ErrConstraintViolation.
	Create(ctx context.Context, rating *models.SentimentRating) error
	// History returns ratings on or after since, oldest first.
	History(ctx context.Context, ticker string, since time.Time) ([]*models.SentimentRating, error)
}

type ratingRepository struct {
	db *database.DB
}

var _ RatingRepository = (*ratingRepository)(nil)

// NewRatingRepository creates a new rating repository.
func NewRatingRepository(db *database.DB) RatingRepository {
	return &ratingRepository{db: db}
}

func (r *ratingRepository) Exists(ctx context.Context, ticker string, date time.Time) (bool, error) {
	var exists bool
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sentiment_ratings WHERE stock_ticker = $1 AND date = $2)`,
		ticker, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check rating: %w", err)
	}
	return exists, nil
}

func (r *ratingRepository) Create(ctx context.Context, rating *models.SentimentRating) error {
	err := r.db.Querier(ctx).QueryRow(ctx, `
		INSERT INTO sentiment_ratings (stock_ticker, date, rating)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		rating.Ticker, rating.Date, rating.Rating,
	).Scan(&rating.ID, &rating.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rating for %s on %s: %w",
				rating.Ticker, rating.Date.Format(time.DateOnly), apperrors.ErrConstraintViolation)
		}
		return fmt.Errorf("failed to insert rating: %w", err)
	}
	return nil
}

func (r *ratingRepository) History(ctx context.Context, ticker string, since time.Time) ([]*models.SentimentRating, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, `
		SELECT id, stock_ticker, date, rating, created_at
		FROM sentiment_ratings
		WHERE stock_ticker = $1 AND date >= $2
		ORDER BY date`,
		ticker, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get rating history: %w", err)
	}
	defer rows.Close()

	var ratings []*models.SentimentRating
	for rows.Next() {
		var sr models.SentimentRating
		if err := rows.Scan(&sr.ID, &sr.Ticker, &sr.Date, &sr.Rating, &sr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, &sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ratings: %w", err)
	}
	return ratings, nil
}
