package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sentify-hq/sentify-engine/pkg/database"
	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// ArticleRepository defines the interface for article data access.
type ArticleRepository interface {
	// DeleteForCycle removes articles previously written by the cycle for
	// (ticker, cycleDate). Topic links cascade.
	DeleteForCycle(ctx context.Context, ticker string, cycleDate time.Time) (int64, error)
	// InsertBatch inserts all articles in one round trip and sets their IDs.
	InsertBatch(ctx context.Context, articles []*models.Article) error
	LinkTopics(ctx context.Context, links []models.ArticleTopic) error
	// ListByTickers returns the newest articles for the given tickers with their topics.
	ListByTickers(ctx context.Context, tickers []string, limit int) ([]*models.Article, error)
}

type articleRepository struct {
	db *database.DB
}

var _ ArticleRepository = (*articleRepository)(nil)

// NewArticleRepository creates a new article repository.
func NewArticleRepository(db *database.DB) ArticleRepository {
	return &articleRepository{db: db}
}

func (r *articleRepository) DeleteForCycle(ctx context.Context, ticker string, cycleDate time.Time) (int64, error) {
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`DELETE FROM articles WHERE stock_ticker = $1 AND cycle_date = $2`, ticker, cycleDate)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale articles: %w", err)
	}
	return tag.RowsAffected(), nil
}

const insertArticleSQL = `
	INSERT INTO articles (
		url, title, stock_ticker, cycle_date, source_name, source_domain,
		published, description, banner_image, sentiment_label, sentiment_score
	) VALUES (
		@url, @title, @ticker, @cycle_date, @source, @source_domain,
		@published, @description, @banner_image, @sentiment_label, @sentiment_score
	)
	RETURNING id`

func (r *articleRepository) InsertBatch(ctx context.Context, articles []*models.Article) error {
	if len(articles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range articles {
		batch.Queue(insertArticleSQL, pgx.NamedArgs{
			"url":             a.URL,
			"title":           a.Title,
			"ticker":          a.Ticker,
			"cycle_date":      a.CycleDate,
			"source":          a.Source,
			"source_domain":   a.SourceDomain,
			"published":       a.Published,
			"description":     a.Description,
			"banner_image":    a.BannerImage,
			"sentiment_label": a.SentimentLabel,
			"sentiment_score": a.SentimentScore,
		})
	}

	results := r.db.Querier(ctx).SendBatch(ctx, batch)
	defer results.Close()

	for i, a := range articles {
		if err := results.QueryRow().Scan(&a.ID); err != nil {
			return fmt.Errorf("failed to insert article %d of %d: %w", i+1, len(articles), err)
		}
	}

	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close article batch: %w", err)
	}
	return nil
}

func (r *articleRepository) LinkTopics(ctx context.Context, links []models.ArticleTopic) error {
	if len(links) == 0 {
		return nil
	}

	_, err := r.db.Querier(ctx).CopyFrom(ctx,
		pgx.Identifier{"article_topics"},
		[]string{"article_id", "topic_id", "rank"},
		pgx.CopyFromSlice(len(links), func(i int) ([]any, error) {
			return []any{links[i].ArticleID, links[i].TopicID, int16(links[i].Rank)}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to link article topics: %w", err)
	}
	return nil
}

func (r *articleRepository) ListByTickers(ctx context.Context, tickers []string, limit int) ([]*models.Article, error) {
	if len(tickers) == 0 {
		return nil, nil
	}

	query := `
		SELECT a.id, a.url, a.title, a.stock_ticker, a.cycle_date, a.source_name,
		       a.source_domain, a.published, a.description, a.banner_image,
		       a.sentiment_label, a.sentiment_score,
		       COALESCE(array_agg(t.name ORDER BY at.rank) FILTER (WHERE t.name IS NOT NULL), '{}')
		FROM articles a
		LEFT JOIN article_topics at ON at.article_id = a.id
		LEFT JOIN topics t ON t.id = at.topic_id
		WHERE a.stock_ticker = ANY($1)
		GROUP BY a.id
		ORDER BY a.published DESC, a.id DESC
		LIMIT $2`

	rows, err := r.db.Querier(ctx).Query(ctx, query, tickers, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		var a models.Article
		err := rows.Scan(
			&a.ID, &a.URL, &a.Title, &a.Ticker, &a.CycleDate, &a.Source,
			&a.SourceDomain, &a.Published, &a.Description, &a.BannerImage,
			&a.SentimentLabel, &a.SentimentScore, &a.Topics,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating articles: %w", err)
	}
	return articles, nil
}
