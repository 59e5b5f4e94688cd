package models

import "time"

// Sector groups companies for recommendations.
type Sector struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Company is a tracked public company keyed by its stock ticker.
type Company struct {
	Ticker      string    `json:"stock_ticker"`
	Name        string    `json:"company_name"`
	SectorID    int       `json:"sector_id"`
	Description *string   `json:"description,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// TickerFollowers is a ticker with its sector and global follower count.
// Recommendation ranking works over these rows.
type TickerFollowers struct {
	Ticker    string `json:"stock_ticker"`
	SectorID  int    `json:"sector_id"`
	Followers int    `json:"followers"`
}

// Follow links a user to a company they want notifications for.
type Follow struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Ticker    string    `json:"stock_ticker"`
	CreatedAt time.Time `json:"created_at"`
}

// SentimentRating is the aggregated daily sentiment of a ticker. Rating is the
// share of positive articles in percent.
type SentimentRating struct {
	ID        int64     `json:"id"`
	Ticker    string    `json:"stock_ticker"`
	Date      time.Time `json:"date"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}
