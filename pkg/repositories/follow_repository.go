package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sentify-hq/sentify-engine/pkg/database"
	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// FollowRepository defines the interface for follow data access.
type FollowRepository interface {
	// FollowerIDs returns the ids of users following ticker, ascending.
	FollowerIDs(ctx context.Context, ticker string) ([]int64, error)
	// Toggle follows ticker if the user does not follow it yet and unfollows
	// it otherwise. It returns the resulting state.
	Toggle(ctx context.Context, userID int64, ticker string) (followed bool, err error)
	ListTickers(ctx context.Context, userID int64) ([]string, error)
	// Popularity returns every company with its sector and global follower
	// count, including companies nobody follows.
	Popularity(ctx context.Context) ([]models.TickerFollowers, error)
}

type followRepository struct {
	db *database.DB
}

var _ FollowRepository = (*followRepository)(nil)

// NewFollowRepository creates a new follow repository.
func NewFollowRepository(db *database.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) FollowerIDs(ctx context.Context, ticker string) ([]int64, error) {
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT user_id FROM follows WHERE stock_ticker = $1 ORDER BY user_id`, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to list followers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan followers: %w", err)
	}
	return ids, nil
}

func (r *followRepository) Toggle(ctx context.Context, userID int64, ticker string) (bool, error) {
	var followed bool
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.Querier(ctx)

		var id int64
		err := q.QueryRow(ctx,
			`DELETE FROM follows WHERE user_id = $1 AND stock_ticker = $2 RETURNING id`,
			userID, ticker).Scan(&id)
		if err == nil {
			followed = false
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to unfollow: %w", err)
		}

		if _, err := q.Exec(ctx,
			`INSERT INTO follows (user_id, stock_ticker) VALUES ($1, $2)
			 ON CONFLICT ON CONSTRAINT uq_follows_user_ticker DO NOTHING`,
			userID, ticker); err != nil {
			return fmt.Errorf("failed to follow: %w", err)
		}
		followed = true
		return nil
	})
	return followed, err
}

func (r *followRepository) ListTickers(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT stock_ticker FROM follows WHERE user_id = $1 ORDER BY stock_ticker`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list follows: %w", err)
	}
	tickers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan follows: %w", err)
	}
	return tickers, nil
}

func (r *followRepository) Popularity(ctx context.Context) ([]models.TickerFollowers, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, `
		SELECT c.stock_ticker, c.sector_id, COUNT(f.id)::int
		FROM companies c
		LEFT JOIN follows f ON f.stock_ticker = c.stock_ticker
		GROUP BY c.stock_ticker, c.sector_id
		ORDER BY c.stock_ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to count followers: %w", err)
	}
	defer rows.Close()

	var result []models.TickerFollowers
	for rows.Next() {
		var tf models.TickerFollowers
		if err := rows.Scan(&tf.Ticker, &tf.SectorID, &tf.Followers); err != nil {
			return nil, fmt.Errorf("failed to scan follower count: %w", err)
		}
		result = append(result, tf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating follower counts: %w", err)
	}
	return result, nil
}
