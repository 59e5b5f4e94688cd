package repositories

import (
	"context"
	"fmt"

	"github.com/sentify-hq/sentify-engine/pkg/database"
	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// TopicRepository defines the interface for topic data access.
type TopicRepository interface {
	// EnsureTopics inserts unknown names and returns the id of every name.
	EnsureTopics(ctx context.Context, names []string) (map[string]int, error)
	List(ctx context.Context) ([]*models.Topic, error)
}

type topicRepository struct {
	db *database.DB
}

var _ TopicRepository = (*topicRepository)(nil)

// NewTopicRepository creates a new topic repository.
func NewTopicRepository(db *database.DB) TopicRepository {
	return &topicRepository{db: db}
}

func (r *topicRepository) EnsureTopics(ctx context.Context, names []string) (map[string]int, error) {
	ids := make(map[string]int, len(names))
	if len(names) == 0 {
		return ids, nil
	}

	q := r.db.Querier(ctx)
	if _, err := q.Exec(ctx, `
		INSERT INTO topics (name)
		SELECT DISTINCT unnest($1::text[])
		ON CONFLICT (name) DO NOTHING`, names); err != nil {
		return nil, fmt.Errorf("failed to insert topics: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT id, name FROM topics WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to load topic ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		ids[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating topics: %w", err)
	}
	return ids, nil
}

func (r *topicRepository) List(ctx context.Context) ([]*models.Topic, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, `SELECT id, name FROM topics ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var topics []*models.Topic
	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating topics: %w", err)
	}
	return topics, nil
}
