package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/auth"
	"github.com/sentify-hq/sentify-engine/pkg/handlers"
	"github.com/sentify-hq/sentify-engine/pkg/middleware"
	"github.com/sentify-hq/sentify-engine/pkg/services"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the daily ingestion scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	jwksClient, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
		EnableVerification: a.cfg.Auth.EnableVerification,
		JWKSEndpoints:      a.cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return fmt.Errorf("initializing JWKS client: %w", err)
	}
	defer jwksClient.Close()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger), logger)

	notificationService := a.notificationService()
	ingestionService, err := a.ingestionService()
	if err != nil {
		return err
	}
	companyService := services.NewCompanyService(a.companies, a.articles, a.ratings, a.follows, logger)
	recommendationService := services.NewRecommendationService(a.follows, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(a.cfg, a.db, logger).RegisterRoutes(mux)
	handlers.NewCompanyHandler(companyService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewNotificationHandler(notificationService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewRecommendationHandler(recommendationService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewStreamHandler(a.hub, notificationService, logger).RegisterRoutes(mux, authMiddleware)

	adminHandler := handlers.NewAdminHandler(ctx, ingestionService, a.backfillService(), logger)
	adminHandler.RegisterRoutes(mux, authMiddleware)

	handler := otelhttp.NewHandler(middleware.RequestLogger(logger)(mux), "http.server")

	if a.cfg.Ingestion.BacklogOnRun {
		go func() {
			results, err := ingestionService.Backlog(ctx, a.cfg.Ingestion.BacklogDays)
			if err != nil {
				logger.Error("Startup backlog failed", zap.Error(err))
				return
			}
			logResults(logger, results)
		}()
	}
	if a.cfg.Ingestion.Scheduler {
		ingestionService.RunScheduler(ctx, a.cfg.Ingestion.Interval)
	}

	// Live streams end with ctx so Shutdown does not wait on them.
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting sentify-engine",
			zap.String("addr", srv.Addr),
			zap.String("base_url", a.cfg.BaseURL),
			zap.String("version", a.cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	adminHandler.Wait()
	logger.Info("Server exited")
	return nil
}
