// Package alphavantage provides a client for the Alpha Vantage news sentiment
// and company overview APIs.
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/config"
	"github.com/sentify-hq/sentify-engine/pkg/logging"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/retry"
)

// DefaultTimeout is the maximum time to wait for one Alpha Vantage response.
const DefaultTimeout = 60 * time.Second

const (
	// queryTimeLayout is the time_from/time_to parameter format.
	queryTimeLayout = "20060102T1504"
	// publishedLayout is the time_published field format.
	publishedLayout = "20060102T150405"
)

// ErrRateLimited is returned when the API key has exhausted its quota.
var ErrRateLimited = errors.New("alpha vantage rate limit reached")

// Client calls the Alpha Vantage query endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      *retry.Config
	logger     *zap.Logger
}

// NewClient creates an Alpha Vantage client.
func NewClient(cfg config.AlphaVantageConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry:  retry.UpstreamConfig(),
		logger: logger.Named("alphavantage"),
	}
}

// feedResponse is the NEWS_SENTIMENT payload. Numeric fields arrive as strings.
type feedResponse struct {
	Feed []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		TimePublished string `json:"time_published"`
		BannerImage   string `json:"banner_image"`
		Source        string `json:"source"`
		SourceDomain  string `json:"source_domain"`
		Topics        []struct {
			Topic          string `json:"topic"`
			RelevanceScore string `json:"relevance_score"`
		} `json:"topics"`
		TickerSentiment []struct {
			Ticker         string `json:"ticker"`
			RelevanceScore string `json:"relevance_score"`
		} `json:"ticker_sentiment"`
	} `json:"feed"`
}

// FetchNews returns the newest articles mentioning ticker published in the
// half-open window [from, to). The API treats time_to as inclusive, so the
// query stops one minute short and stragglers at the boundary are dropped.
func (c *Client) FetchNews(ctx context.Context, ticker string, from, to time.Time) ([]models.FeedArticle, error) {
	from, to = from.UTC(), to.UTC()
	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	params.Set("tickers", ticker)
	params.Set("time_from", from.Format(queryTimeLayout))
	params.Set("time_to", to.Add(-time.Minute).Format(queryTimeLayout))
	params.Set("sort", "LATEST")

	var resp feedResponse
	if err := c.query(ctx, params, &resp); err != nil {
		return nil, err
	}

	articles := make([]models.FeedArticle, 0, len(resp.Feed))
	for _, item := range resp.Feed {
		published, err := time.Parse(publishedLayout, item.TimePublished)
		if err != nil {
			c.logger.Debug("Unparseable publish time, using window start",
				zap.String("url", item.URL),
				zap.String("time_published", item.TimePublished))
			published = from
		}
		if published.Before(from) || !published.Before(to) {
			c.logger.Debug("Dropping article outside window",
				zap.String("url", item.URL),
				zap.Time("published", published))
			continue
		}

		fa := models.FeedArticle{
			Title:        item.Title,
			URL:          item.URL,
			Published:    published,
			Source:       item.Source,
			SourceDomain: item.SourceDomain,
			BannerImage:  item.BannerImage,
		}
		for _, t := range item.Topics {
			fa.Topics = append(fa.Topics, models.TopicRelevance{Topic: t.Topic, Relevance: parseScore(t.RelevanceScore)})
		}
		for _, t := range item.TickerSentiment {
			fa.Tickers = append(fa.Tickers, models.TickerRelevance{Ticker: t.Ticker, Relevance: parseScore(t.RelevanceScore)})
		}
		articles = append(articles, fa)
	}

	c.logger.Debug("Fetched news feed",
		zap.String("ticker", ticker),
		zap.Time("from", from),
		zap.Int("articles", len(articles)))

	return articles, nil
}

// CompanyDescription returns the OVERVIEW description of ticker. Unknown
// tickers yield an empty description.
func (c *Client) CompanyDescription(ctx context.Context, ticker string) (string, error) {
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", ticker)

	var resp struct {
		Description string `json:"Description"`
	}
	if err := c.query(ctx, params, &resp); err != nil {
		return "", err
	}
	if resp.Description == "None" {
		return "", nil
	}
	return resp.Description, nil
}

// parseScore reads a relevance score. Malformed scores count as zero.
func parseScore(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// statusError is a non-200 response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("alpha vantage returned status %d: %s", e.status, e.body)
}

func (e *statusError) IsRetryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

// throttledError is the per-minute "Note" response, worth waiting out.
type throttledError struct {
	note string
}

func (e *throttledError) Error() string     { return "alpha vantage throttled: " + e.note }
func (e *throttledError) IsRetryable() bool { return true }

// query performs one GET against the query endpoint, retrying transient
// failures, and decodes the JSON body into out.
func (c *Client) query(ctx context.Context, params url.Values, out any) error {
	params.Set("apikey", c.apiKey)
	endpoint := c.baseURL + "?" + params.Encode()
	safe := logging.SanitizeURL(endpoint)

	body, err := retry.DoIfRetryableWithResult(ctx, c.retry, func() ([]byte, error) {
		return c.get(ctx, endpoint)
	})
	if err != nil {
		c.logger.Warn("Alpha Vantage request failed",
			zap.String("url", safe),
			zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("failed to call alpha vantage %s: %w", params.Get("function"), &redactedError{err: err})
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse alpha vantage response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode, body: logging.TruncateString(string(body), 200)}
	}

	// Quota and input errors come back as 200 with a message object.
	var envelope struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to parse alpha vantage response: %w", err))
	}
	switch {
	case envelope.ErrorMessage != "":
		return nil, retry.Permanent(errors.New(envelope.ErrorMessage))
	case envelope.Note != "":
		return nil, &throttledError{note: envelope.Note}
	case envelope.Information != "" && strings.Contains(strings.ToLower(envelope.Information), "rate limit"):
		return nil, retry.Permanent(ErrRateLimited)
	case envelope.Information != "":
		return nil, retry.Permanent(errors.New(envelope.Information))
	}
	return body, nil
}

// redactedError hides the API key that net/http echoes into URL errors while
// keeping the cause matchable.
type redactedError struct {
	err error
}

func (e *redactedError) Error() string { return logging.SanitizeError(e.err) }
func (e *redactedError) Unwrap() error { return e.err }
