package cmd

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/alphavantage"
	"github.com/sentify-hq/sentify-engine/pkg/classifier"
	"github.com/sentify-hq/sentify-engine/pkg/config"
	"github.com/sentify-hq/sentify-engine/pkg/database"
	"github.com/sentify-hq/sentify-engine/pkg/logging"
	"github.com/sentify-hq/sentify-engine/pkg/push"
	"github.com/sentify-hq/sentify-engine/pkg/repositories"
	"github.com/sentify-hq/sentify-engine/pkg/scraper"
	"github.com/sentify-hq/sentify-engine/pkg/services"
	"github.com/sentify-hq/sentify-engine/pkg/tracing"
	"github.com/sentify-hq/sentify-engine/pkg/workerpool"
)

// app holds the process-wide dependencies shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
	hub    push.Hub

	companies     repositories.CompanyRepository
	articles      repositories.ArticleRepository
	ratings       repositories.RatingRepository
	topics        repositories.TopicRepository
	follows       repositories.FollowRepository
	notifications repositories.NotificationRepository
	references    repositories.ReferenceRepository

	closers []func()
}

// loadConfig reads configuration and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(flagConfig, version)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newApp connects to the stores. Redis is used only when configured.
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.Version, os.Stderr)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	})

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	}, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	rdb, err := database.NewRedisClient(ctx, &cfg.Redis, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	if rdb != nil {
		a.hub = push.NewRedisHub(rdb, logger)
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		logger.Info("Live notifications routed through Redis", zap.String("addr", cfg.Redis.Addr()))
	} else {
		a.hub = push.NewLocalHub()
		logger.Info("Live notifications delivered in-process (Redis not configured)")
	}

	a.companies = repositories.NewCompanyRepository(db)
	a.articles = repositories.NewArticleRepository(db)
	a.ratings = repositories.NewRatingRepository(db)
	a.topics = repositories.NewTopicRepository(db)
	a.follows = repositories.NewFollowRepository(db)
	a.notifications = repositories.NewNotificationRepository(db)
	a.references = repositories.NewReferenceRepository(db)

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("classifier", cfg.Classifier.Provider),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.Bool("tracing", cfg.Tracing.Enabled))

	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) notificationService() services.NotificationService {
	return services.NewNotificationService(a.db, a.follows, a.notifications, a.hub, a.logger)
}

func (a *app) backfillService() services.BackfillService {
	feed := alphavantage.NewClient(a.cfg.AlphaVantage, a.logger)
	return services.NewBackfillService(a.companies, feed, a.logger)
}

func (a *app) ingestionService() (services.IngestionService, error) {
	clf, err := classifier.New(a.cfg.Classifier, a.logger)
	if err != nil {
		return nil, err
	}

	opts := services.DefaultIngestionOptions()
	opts.FetchTimeout = a.cfg.AlphaVantage.Timeout
	opts.ScrapeTimeout = a.cfg.Scraper.Timeout
	opts.ClassifyTimeout = a.cfg.Classifier.Timeout
	opts.BacklogDays = a.cfg.Ingestion.BacklogDays

	return services.NewIngestionService(
		a.db,
		a.companies,
		a.articles,
		a.ratings,
		a.topics,
		alphavantage.NewClient(a.cfg.AlphaVantage, a.logger),
		scraper.New(a.cfg.Scraper, a.logger),
		clf,
		a.notificationService(),
		workerpool.New(a.cfg.Ingestion.Workers, a.logger),
		opts,
		a.logger,
	), nil
}

// logResults summarizes a batch of cycles.
func logResults(logger *zap.Logger, results []services.CycleResult) {
	counts := make(map[services.CycleState]int)
	for _, r := range results {
		counts[r.State]++
		if r.Err != nil {
			logger.Warn("Cycle failed",
				zap.String("ticker", r.Ticker),
				zap.Time("date", r.Date),
				zap.String("error", logging.SanitizeError(r.Err)))
		}
	}
	fields := make([]zap.Field, 0, len(counts))
	for state, n := range counts {
		fields = append(fields, zap.Int(string(state), n))
	}
	logger.Info("Ingestion finished", append(fields, zap.Int("cycles", len(results)))...)
}
