package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinsight/clinsight/internal/config"
	"github.com/clinsight/clinsight/internal/domain/analytics"
	"github.com/clinsight/clinsight/internal/domain/chat"
	"github.com/clinsight/clinsight/internal/domain/diagnostic"
	"github.com/clinsight/clinsight/internal/domain/identity"
	"github.com/clinsight/clinsight/internal/domain/patient"
	"github.com/clinsight/clinsight/internal/platform/auth"
	"github.com/clinsight/clinsight/internal/platform/cache"
	"github.com/clinsight/clinsight/internal/platform/db"
	"github.com/clinsight/clinsight/internal/platform/feed"
	"github.com/clinsight/clinsight/internal/platform/metricslog"
	"github.com/clinsight/clinsight/internal/platform/middleware"
	"github.com/clinsight/clinsight/internal/platform/predictor"
	"github.com/clinsight/clinsight/internal/platform/scheduler"
	"github.com/clinsight/clinsight/internal/platform/telemetry"
)

const assistantTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinsight-server",
		Short: "Clinical decision-support console API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	var migrationsDir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "dir", "./migrations", "migrations directory")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(migrationsDir, func(ctx context.Context, m *db.Migrator) error {
				applied, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("applied %d migration(s)\n", applied)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(migrationsDir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied " + s.AppliedAt.Format(time.RFC3339)
					}
					fmt.Printf("%03d %-40s %s\n", s.Version, s.Name, state)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(upCmd)
	cmd.AddCommand(statusCmd)
	return cmd
}

func withMigrator(dir string, fn func(context.Context, *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir))
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	cacheClient, err := cache.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if cacheClient == nil {
		logger.Warn().Msg("REDIS_URL not set; role caching disabled")
	}

	metrics := telemetry.New()

	pred := predictor.NewHTTPClient(cfg.PredictorURL, cfg.PredictorTimeout,
		predictor.WithLatencyObserver(metrics.PredictorLatency))

	var sink metricslog.Sink = metricslog.NopSink{}
	if len(cfg.KafkaBrokers) > 0 {
		sink = metricslog.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).
			Msg("model-metrics logging enabled")
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not set; model-metrics logging disabled")
	}
	defer sink.Close()

	hub := feed.NewHub(logger)
	feedHandler := feed.NewHandler(hub)

	// Domain wiring. The analytics service reads the same record store the
	// diagnostic service writes, and the identity service doubles as its
	// role gate.
	identitySvc := identity.NewService(identity.NewRepoPG(pool), cacheClient, logger)
	patientSvc := patient.NewService(patient.NewRepoPG(pool))
	chatSvc := chat.NewService(
		chat.NewRepoPG(pool),
		chat.NewHTTPAssistant(cfg.AssistantURL, assistantTimeout),
		logger,
	)

	recordRepo := diagnostic.NewRepoPG(pool)
	diagSvc := diagnostic.NewService(recordRepo, pred, sink, logger)
	diagSvc.SetPublisher(hub)
	diagSvc.SetCounters(metrics.SubmissionsTotal, metrics.PredictionFailures, metrics.MetricsLogFailures)

	analyticsSvc := analytics.NewService(recordRepo, identitySvc, pred, logger,
		cfg.DashboardWindow, cfg.AdminWindow)

	// Admin metric views live on a gated feed topic: only admins may
	// subscribe, and the scheduler computes them only while such a session
	// is active. A doctor-triggered refresh never reaches the admin window.
	renderer := feed.NewSnapshotRenderer(hub)
	renderer.SetViewTopic(analytics.ViewROC, feed.TopicAdminAnalytics)
	renderer.SetViewTopic(analytics.ViewConfusion, feed.TopicAdminAnalytics)
	hub.SetTopicGate(func(userID, topic string) bool {
		if topic != feed.TopicAdminAnalytics {
			return true
		}
		gateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return identitySvc.IsAdmin(gateCtx, userID)
	})

	views := scheduler.NewViewSet(renderer)
	sched := scheduler.New(
		analyticsSvc.RefreshCycle(views, func() bool {
			return hub.TopicCount(feed.TopicAdminAnalytics) > 0
		}),
		cfg.RefreshInterval,
		logger,
		scheduler.WithCounters(metrics.RefreshesTotal, metrics.RefreshesSuppressed, metrics.RefreshFailures),
	)
	diagSvc.SetRefresher(sched)
	// An admin joining mid-interval should not stare at a blank chart until
	// the next tick.
	hub.SetSubscribeHook(func(topic string) {
		if topic == feed.TopicAdminAnalytics {
			sched.Trigger()
		}
	})

	sched.Start(ctx)
	defer sched.Stop()
	defer views.Release()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))

	e.GET("/healthz", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	api := e.Group("/api/v1")
	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthJWKSURL == "" {
		logger.Warn().Msg("no auth configured; running with development identity")
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	// Every console route is clinician-facing; admin passes the check too.
	api.Use(auth.RequireRole("doctor"))

	identity.NewHandler(identitySvc).RegisterRoutes(api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	diagnostic.NewHandler(diagSvc).RegisterRoutes(api)
	analytics.NewHandler(analyticsSvc).RegisterRoutes(api)
	chat.NewHandler(chatSvc).RegisterRoutes(api)
	feedHandler.RegisterRoutes(api)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
