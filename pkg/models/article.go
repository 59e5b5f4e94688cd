package models

import "time"

// Sentiment labels produced by classifiers.
const (
	SentimentPositive = "POSITIVE"
	SentimentNegative = "NEGATIVE"
)

// MaxArticleTopics caps how many topics are linked to one article.
const MaxArticleTopics = 3

// Article is a stored, enriched news article. Articles are never updated;
// a re-run of a cycle replaces the rows for its (ticker, cycle date).
type Article struct {
	ID             int64     `json:"id"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Ticker         string    `json:"ticker"`
	CycleDate      time.Time `json:"-"`
	Source         string    `json:"source"`
	SourceDomain   string    `json:"source_domain"`
	Published      time.Time `json:"published"`
	Description    *string   `json:"description"`
	BannerImage    *string   `json:"banner_image"`
	SentimentLabel string    `json:"sentiment_label"`
	SentimentScore float64   `json:"sentiment_score"`
	Topics         []string  `json:"topics"`
}

// Topic is a news category from the feed provider.
type Topic struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TopicRelevance is a feed topic and its relevance to one article.
type TopicRelevance struct {
	Topic     string
	Relevance float64
}

// TickerRelevance is a ticker mentioned by a feed article with its relevance.
type TickerRelevance struct {
	Ticker    string
	Relevance float64
}

// FeedArticle is an article as returned by the news feed, before filtering
// and enrichment.
type FeedArticle struct {
	Title        string
	URL          string
	Published    time.Time
	Source       string
	SourceDomain string
	BannerImage  string
	Topics       []TopicRelevance
	Tickers      []TickerRelevance
}

// Sentiment is a classifier verdict.
type Sentiment struct {
	Label string
	Score float64
}

// Positive reports whether the verdict counts toward the daily rating.
func (s Sentiment) Positive() bool {
	return s.Label == SentimentPositive
}

// ArticleTopic links an article to one of its top topics. Rank 1 is the most
// relevant.
type ArticleTopic struct {
	ArticleID int64
	TopicID   int
	Rank      int
}
