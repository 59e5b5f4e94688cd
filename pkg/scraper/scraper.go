// Package scraper reads article descriptions from publisher pages.
package scraper

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/config"
	"github.com/sentify-hq/sentify-engine/pkg/logging"
)

// DefaultUserAgents is the desktop browser pool requests rotate through.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// Scraper extracts the meta description of an article page. It never fails
// a caller: any problem yields no description.
type Scraper struct {
	timeout    time.Duration
	delay      time.Duration
	referer    string
	userAgents []string
	logger     *zap.Logger
}

// New creates a scraper from configuration.
func New(cfg config.ScraperConfig, logger *zap.Logger) *Scraper {
	agents := cfg.UserAgents
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scraper{
		timeout:    timeout,
		delay:      cfg.Delay,
		referer:    cfg.Referer,
		userAgents: agents,
		logger:     logger.Named("scraper"),
	}
}

// Scrape returns the description of the page at url and whether one was found.
func (s *Scraper) Scrape(ctx context.Context, url string) (string, bool) {
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", false
		case <-t.C:
		}
	}

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.MaxDepth(1),
		colly.UserAgent(s.userAgents[rand.Intn(len(s.userAgents))]),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		if s.referer != "" {
			r.Headers.Set("Referer", s.referer)
		}
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	var description string
	c.OnHTML("html", func(e *colly.HTMLElement) {
		description = MetaDescription(e.DOM)
	})

	c.OnError(func(r *colly.Response, err error) {
		s.logger.Debug("Scrape failed",
			zap.String("url", logging.SanitizeURL(url)),
			zap.Int("status", r.StatusCode),
			zap.String("error", logging.SanitizeError(err)))
	})

	if err := c.Visit(url); err != nil {
		s.logger.Debug("Scrape skipped",
			zap.String("url", logging.SanitizeURL(url)),
			zap.String("error", logging.SanitizeError(err)))
		return "", false
	}
	c.Wait()

	return description, description != ""
}

// MetaDescription returns the page's meta description, falling back to the
// Open Graph description.
func MetaDescription(doc *goquery.Selection) string {
	for _, selector := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if content, ok := doc.Find(selector).First().Attr("content"); ok {
			if content = strings.TrimSpace(content); content != "" {
				return content
			}
		}
	}
	return ""
}
