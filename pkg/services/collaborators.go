package services

import (
	"context"
	"time"

	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// NewsFeed returns the news published about a ticker in [from, to).
type NewsFeed interface {
	FetchNews(ctx context.Context, ticker string, from, to time.Time) ([]models.FeedArticle, error)
}

// CompanyProfiler returns a company's business description.
type CompanyProfiler interface {
	CompanyDescription(ctx context.Context, ticker string) (string, error)
}

// DescriptionScraper extracts a short description from an article page.
// It never fails: a missing description is reported as ok == false.
type DescriptionScraper interface {
	Scrape(ctx context.Context, url string) (description string, ok bool)
}

// SentimentClassifier labels text POSITIVE or NEGATIVE with a confidence in [0, 1].
type SentimentClassifier interface {
	Classify(ctx context.Context, text string) (models.Sentiment, error)
}
