package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sentify-hq/sentify-engine/pkg/apperrors"
	"github.com/sentify-hq/sentify-engine/pkg/database"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/repositories"
	"github.com/sentify-hq/sentify-engine/pkg/tracing"
	"github.com/sentify-hq/sentify-engine/pkg/workerpool"
)

// CycleState is where a ticker's daily cycle ended.
type CycleState string

const (
	CycleNotStarted   CycleState = "not_started"
	CycleRatingExists CycleState = "rating_exists"
	CycleFetching     CycleState = "fetching"
	CycleFiltering    CycleState = "filtering"
	CycleEnriching    CycleState = "enriching"
	CyclePersisting   CycleState = "persisting"
	CycleNotifying    CycleState = "notifying"
	CycleCommitted    CycleState = "committed"
	CycleFailed       CycleState = "failed"
)

// CycleResult summarizes one ticker's cycle for one date.
type CycleResult struct {
	RunID    string
	Ticker   string
	Date     time.Time
	State    CycleState
	Fetched  int
	Articles int
	Rating   int
	Notified int
	// Err is set when State is CycleFailed.
	Err error
	// NotifyErr is set when the cycle committed but fan-out failed.
	NotifyErr error
}

// IngestionOptions bounds the external calls of a cycle.
type IngestionOptions struct {
	FetchTimeout    time.Duration
	ScrapeTimeout   time.Duration
	ClassifyTimeout time.Duration
	BacklogDays     int
}

// DefaultIngestionOptions returns the timeouts used when none are configured.
func DefaultIngestionOptions() IngestionOptions {
	return IngestionOptions{
		FetchTimeout:    60 * time.Second,
		ScrapeTimeout:   10 * time.Second,
		ClassifyTimeout: 30 * time.Second,
		BacklogDays:     7,
	}
}

// IngestionService drives the daily news ingestion for every tracked company.
type IngestionService interface {
	// RunCycle ingests the news of ticker published on date. A cycle either
	// commits articles, topic links, the rating and last_updated together, or
	// leaves no trace. A ticker already rated for date is skipped. Concurrent
	// calls for the same ticker and day share a single cycle and its result.
	RunCycle(ctx context.Context, ticker string, date time.Time) CycleResult

	// UpdateAll runs the cycle for every company in parallel. One ticker's
	// failure never stops the others. The error is set only if the company
	// list cannot be loaded.
	UpdateAll(ctx context.Context, date time.Time) ([]CycleResult, error)

	// UpdateYesterday runs UpdateAll for the previous UTC day.
	UpdateYesterday(ctx context.Context) ([]CycleResult, error)

	// Backlog replays the last days days, oldest first, ending yesterday.
	Backlog(ctx context.Context, days int) ([]CycleResult, error)

	// RunScheduler starts a background loop that updates yesterday
	// immediately, then on every interval. Cancel ctx to stop it.
	RunScheduler(ctx context.Context, interval time.Duration)
}

type ingestionService struct {
	tx         database.TxRunner
	companies  repositories.CompanyRepository
	articles   repositories.ArticleRepository
	ratings    repositories.RatingRepository
	topics     repositories.TopicRepository
	feed       NewsFeed
	scraper    DescriptionScraper
	classifier SentimentClassifier
	notifier   NotificationService
	pool       *workerpool.Pool
	opts       IngestionOptions
	tracer     trace.Tracer
	now        func() time.Time
	logger     *zap.Logger

	// inflight is keyed by ticker and UTC day.
	inflight singleflight.Group
}

var _ IngestionService = (*ingestionService)(nil)

// NewIngestionService creates an ingestion service.
func NewIngestionService(
	tx database.TxRunner,
	companies repositories.CompanyRepository,
	articles repositories.ArticleRepository,
	ratings repositories.RatingRepository,
	topics repositories.TopicRepository,
	feed NewsFeed,
	scraper DescriptionScraper,
	classifier SentimentClassifier,
	notifier NotificationService,
	pool *workerpool.Pool,
	opts IngestionOptions,
	logger *zap.Logger,
) IngestionService {
	if opts.BacklogDays < 1 {
		opts.BacklogDays = DefaultIngestionOptions().BacklogDays
	}
	return &ingestionService{
		tx:         tx,
		companies:  companies,
		articles:   articles,
		ratings:    ratings,
		topics:     topics,
		feed:       feed,
		scraper:    scraper,
		classifier: classifier,
		notifier:   notifier,
		pool:       pool,
		opts:       opts,
		tracer:     otel.Tracer("github.com/sentify-hq/sentify-engine/pkg/services"),
		now:        time.Now,
		logger:     logger.Named("ingestion-service"),
	}
}

// Day truncates t to midnight UTC of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// enrichedArticle is a filtered feed article ready to persist.
type enrichedArticle struct {
	article *models.Article
	topics  []string
}

func (s *ingestionService) RunCycle(ctx context.Context, ticker string, date time.Time) CycleResult {
	date = Day(date)
	key := ticker + "|" + date.Format(time.DateOnly)
	// Panics are turned into a failed result here; singleflight would
	// otherwise re-raise them on a fresh goroutine when callers are joined.
	v, _, shared := s.inflight.Do(key, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Cycle panicked",
					zap.String("ticker", ticker),
					zap.String("date", date.Format(time.DateOnly)),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				v = CycleResult{
					Ticker: ticker,
					Date:   date,
					State:  CycleFailed,
					Err:    fmt.Errorf("cycle panicked: %v", r),
				}
			}
		}()
		return s.runCycle(ctx, ticker, date), nil
	})
	result := v.(CycleResult)
	if shared {
		s.logger.Debug("Joined in-flight cycle",
			zap.String("run_id", result.RunID),
			zap.String("ticker", ticker),
			zap.String("date", date.Format(time.DateOnly)))
	}
	return result
}

// runCycle executes one cycle. date is already truncated to its UTC day.
func (s *ingestionService) runCycle(ctx context.Context, ticker string, date time.Time) (result CycleResult) {
	result = CycleResult{
		RunID:  uuid.NewString(),
		Ticker: ticker,
		Date:   date,
		State:  CycleNotStarted,
	}
	logger := s.logger.With(
		zap.String("run_id", result.RunID),
		zap.String("ticker", ticker),
		zap.String("date", date.Format(time.DateOnly)))

	ctx, span := s.tracer.Start(ctx, "ingestion.cycle", trace.WithAttributes(
		attribute.String("ticker", ticker),
		attribute.String("date", date.Format(time.DateOnly)),
		attribute.String("run_id", result.RunID)))
	logger = logger.With(tracing.LogFields(ctx)...)
	defer func() {
		span.SetAttributes(
			attribute.String("outcome", string(result.State)),
			attribute.Int("articles", result.Articles))
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, apperrors.StageOf(result.Err))
		}
		span.End()
	}()

	fail := func(stage string, err error) CycleResult {
		result.State = CycleFailed
		result.Err = apperrors.Stage(stage, ticker, date, err)
		switch {
		case errors.Is(err, apperrors.ErrNoArticles):
			logger.Info("No relevant articles", zap.String("stage", stage), zap.Int("fetched", result.Fetched))
		case errors.Is(err, apperrors.ErrConstraintViolation):
			// The gate should have stopped a second cycle for the same date.
			logger.Error("Duplicate rating rejected by constraint", zap.String("stage", stage), zap.Error(err))
		default:
			logger.Warn("Ingestion cycle failed", zap.String("stage", stage), zap.Error(err))
		}
		return result
	}

	exists, err := s.ratings.Exists(ctx, ticker, date)
	if err != nil {
		return fail(apperrors.StageGate, err)
	}
	if exists {
		result.State = CycleRatingExists
		logger.Debug("Rating exists, skipping")
		return result
	}

	result.State = CycleFetching
	feed, err := s.fetch(ctx, ticker, date)
	if err != nil {
		return fail(apperrors.StageFetch, err)
	}
	result.Fetched = len(feed)
	if len(feed) == 0 {
		return fail(apperrors.StageFetch, apperrors.ErrNoArticles)
	}

	result.State = CycleFiltering
	var relevant []models.FeedArticle
	for _, fa := range feed {
		if IsMostRelevant(fa.Tickers, ticker) {
			relevant = append(relevant, fa)
		}
	}
	if len(relevant) == 0 {
		return fail(apperrors.StageFilter, apperrors.ErrNoArticles)
	}

	result.State = CycleEnriching
	enriched := make([]enrichedArticle, 0, len(relevant))
	positive := 0
	for _, fa := range relevant {
		ea, err := s.enrich(ctx, ticker, date, fa)
		if err != nil {
			return fail(apperrors.StageEnrich, err)
		}
		if ea.article.SentimentLabel == models.SentimentPositive {
			positive++
		}
		enriched = append(enriched, ea)
	}

	result.State = CyclePersisting
	rating := Rating(positive, len(enriched))
	if err := s.persist(ctx, ticker, date, enriched, rating); err != nil {
		return fail(apperrors.StagePersist, err)
	}
	result.Articles = len(enriched)
	result.Rating = rating

	result.State = CycleNotifying
	notified, err := s.notifier.NotifyFollowers(ctx, ticker)
	if err != nil {
		result.NotifyErr = apperrors.Stage(apperrors.StageNotify, ticker, date, err)
		logger.Warn("Cycle committed but notification failed", zap.Error(err))
	}
	result.Notified = notified
	result.State = CycleCommitted

	logger.Info("Ingestion cycle committed",
		zap.Int("fetched", result.Fetched),
		zap.Int("articles", result.Articles),
		zap.Int("rating", rating),
		zap.Int("notified", notified))
	return result
}

func (s *ingestionService) fetch(ctx context.Context, ticker string, date time.Time) ([]models.FeedArticle, error) {
	ctx, cancel := withTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()
	return s.feed.FetchNews(ctx, ticker, date, date.AddDate(0, 0, 1))
}

func (s *ingestionService) enrich(ctx context.Context, ticker string, date time.Time, fa models.FeedArticle) (enrichedArticle, error) {
	scrapeCtx, cancel := withTimeout(ctx, s.opts.ScrapeTimeout)
	description, ok := s.scraper.Scrape(scrapeCtx, fa.URL)
	cancel()

	text := fa.Title
	var descPtr *string
	if ok && description != "" {
		text = description
		descPtr = &description
	}

	classifyCtx, cancel := withTimeout(ctx, s.opts.ClassifyTimeout)
	sentiment, err := s.classifier.Classify(classifyCtx, text)
	cancel()
	if err != nil {
		return enrichedArticle{}, fmt.Errorf("failed to classify %s: %w", fa.URL, err)
	}

	var banner *string
	if fa.BannerImage != "" {
		b := fa.BannerImage
		banner = &b
	}

	return enrichedArticle{
		article: &models.Article{
			URL:            fa.URL,
			Title:          fa.Title,
			Ticker:         ticker,
			CycleDate:      date,
			Source:         fa.Source,
			SourceDomain:   fa.SourceDomain,
			Published:      Day(fa.Published),
			Description:    descPtr,
			BannerImage:    banner,
			SentimentLabel: sentiment.Label,
			SentimentScore: sentiment.Score,
		},
		topics: TopTopics(fa.Topics, models.MaxArticleTopics),
	}, nil
}

func (s *ingestionService) persist(ctx context.Context, ticker string, date time.Time, enriched []enrichedArticle, rating int) error {
	var names []string
	articles := make([]*models.Article, len(enriched))
	for i, ea := range enriched {
		articles[i] = ea.article
		ea.article.Topics = ea.topics
		names = append(names, ea.topics...)
	}

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		topicIDs, err := s.topics.EnsureTopics(ctx, names)
		if err != nil {
			return err
		}

		if _, err := s.articles.DeleteForCycle(ctx, ticker, date); err != nil {
			return err
		}
		if err := s.articles.InsertBatch(ctx, articles); err != nil {
			return err
		}

		var links []models.ArticleTopic
		for _, a := range articles {
			for rank, name := range a.Topics {
				links = append(links, models.ArticleTopic{ArticleID: a.ID, TopicID: topicIDs[name], Rank: rank + 1})
			}
		}
		if err := s.articles.LinkTopics(ctx, links); err != nil {
			return err
		}

		if err := s.ratings.Create(ctx, &models.SentimentRating{Ticker: ticker, Date: date, Rating: rating}); err != nil {
			return err
		}
		return s.companies.AdvanceLastUpdated(ctx, ticker, date)
	})
}

// Rating is the share of positive articles as a whole percentage, rounded
// half away from zero.
func Rating(positive, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(positive) / float64(total)))
}

// TopTopics returns the names of the n most relevant topics. Equal relevance
// keeps feed order.
func TopTopics(topics []models.TopicRelevance, n int) []string {
	sorted := make([]models.TopicRelevance, len(topics))
	copy(sorted, topics)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Relevance > sorted[j].Relevance
	})

	seen := make(map[string]bool, n)
	names := make([]string, 0, n)
	for _, t := range sorted {
		if len(names) == n {
			break
		}
		if t.Topic == "" || seen[t.Topic] {
			continue
		}
		seen[t.Topic] = true
		names = append(names, t.Topic)
	}
	return names
}

func (s *ingestionService) UpdateAll(ctx context.Context, date time.Time) ([]CycleResult, error) {
	date = Day(date)
	tickers, err := s.companies.ListTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}

	jobs := make([]workerpool.Job[CycleResult], len(tickers))
	for i, ticker := range tickers {
		jobs[i] = workerpool.Job[CycleResult]{
			Key: ticker,
			Run: func(ctx context.Context) (CycleResult, error) {
				return s.RunCycle(ctx, ticker, date), nil
			},
		}
	}

	start := time.Now()
	outcomes := workerpool.Process(ctx, s.pool, jobs, nil)

	results := make([]CycleResult, len(outcomes))
	counts := make(map[CycleState]int)
	for i, o := range outcomes {
		r := o.Value
		if o.Err != nil {
			// Panics and cancellation before start surface here.
			r = CycleResult{
				Ticker: o.Key,
				Date:   date,
				State:  CycleFailed,
				Err:    apperrors.Stage(apperrors.StageGate, o.Key, date, o.Err),
			}
		}
		results[i] = r
		counts[r.State]++
	}

	s.logger.Info("Daily update finished",
		zap.String("date", date.Format(time.DateOnly)),
		zap.Int("companies", len(tickers)),
		zap.Int("committed", counts[CycleCommitted]),
		zap.Int("skipped", counts[CycleRatingExists]),
		zap.Int("failed", counts[CycleFailed]),
		zap.Duration("elapsed", time.Since(start)))

	return results, nil
}

func (s *ingestionService) UpdateYesterday(ctx context.Context) ([]CycleResult, error) {
	return s.UpdateAll(ctx, Day(s.now()).AddDate(0, 0, -1))
}

func (s *ingestionService) Backlog(ctx context.Context, days int) ([]CycleResult, error) {
	if days < 1 {
		days = s.opts.BacklogDays
	}
	today := Day(s.now())

	var all []CycleResult
	for offset := days; offset >= 1; offset-- {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		results, err := s.UpdateAll(ctx, today.AddDate(0, 0, -offset))
		if err != nil {
			return all, err
		}
		all = append(all, results...)
	}
	return all, nil
}

func (s *ingestionService) RunScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("Ingestion scheduler started", zap.Duration("interval", interval))

		s.runScheduled(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Ingestion scheduler stopped")
				return
			case <-ticker.C:
				s.runScheduled(ctx)
			}
		}
	}()
}

func (s *ingestionService) runScheduled(ctx context.Context) {
	if _, err := s.UpdateYesterday(ctx); err != nil {
		s.logger.Error("Scheduled update failed", zap.Error(err))
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
