package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/renalert/renalert/internal/config"
	"github.com/renalert/renalert/internal/domain/adherence"
	"github.com/renalert/renalert/internal/domain/notification"
	"github.com/renalert/renalert/internal/domain/observation"
	"github.com/renalert/renalert/internal/domain/patient"
	"github.com/renalert/renalert/internal/domain/phenotype"
	"github.com/renalert/renalert/internal/domain/risk"
	"github.com/renalert/renalert/internal/engine"
	"github.com/renalert/renalert/internal/ingress"
	"github.com/renalert/renalert/internal/platform/auth"
	"github.com/renalert/renalert/internal/platform/db"
	"github.com/renalert/renalert/internal/platform/middleware"
	"github.com/renalert/renalert/internal/platform/stream"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "renalert-server",
		Short: "CKD risk monitoring and alert escalation server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(scanCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the risk engine API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Use Atlas CLI for migration rollback: atlas schema apply --dir migrations/")
			return nil
		},
	})

	return cmd
}

// scanCmd runs a one-shot evaluation of every active patient. Deployments
// run it nightly so patients with no recent data changes still get a fresh
// assessment.
func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Re-evaluate every active patient once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			streamClient, err := stream.New(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer streamClient.Close()

			app := buildApp(pool, streamClient, cfg, logger)
			evaluated, failed, err := app.evaluator.ScanAll(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int("evaluated", evaluated).Int("failed", failed).Msg("scan complete")
			if failed > 0 {
				return fmt.Errorf("scan finished with %d failed patient(s)", failed)
			}
			return nil
		},
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// app holds the wired service graph. serve and scan share the same wiring;
// serve additionally attaches the HTTP surface and the stream consumers.
type app struct {
	patientSvc   *patient.Service
	obsSvc       *observation.Service
	adherenceSvc *adherence.Service
	riskSvc      *risk.Service
	phenotypeSvc *phenotype.Service
	notifySvc    *notification.Service
	evaluator    *engine.Evaluator
}

func buildApp(pool *pgxpool.Pool, streamClient *stream.Client, cfg *config.Config, logger zerolog.Logger) *app {
	patientRepo := patient.NewRepoPG(pool)
	profileRepo := patient.NewProfileRepoPG(pool)
	obsRepo := observation.NewRepoPG(pool)
	assessmentRepo := adherence.NewAssessmentRepoPG(pool)
	refillRepo := adherence.NewRefillRepoPG(pool)
	selfReportRepo := adherence.NewSelfReportRepoPG(pool)
	snapshotRepo := risk.NewSnapshotRepoPG(pool)
	phenotypeRepo := phenotype.NewRepoPG(pool)
	notifyRepo := notification.NewRepoPG(pool)
	analyticsRepo := notification.NewAnalyticsRepoPG(pool)

	changePub := ingress.NewPublisher(streamClient, cfg.IngressStream, logger)
	dispatchPub := ingress.NewDispatchPublisher(streamClient, cfg.DispatchStream, logger)

	patientSvc := patient.NewService(patientRepo, profileRepo, changePub)
	obsSvc := observation.NewService(obsRepo, changePub)
	adherenceSvc := adherence.NewService(assessmentRepo, refillRepo, selfReportRepo, obsSvc, changePub, logger)
	notifySvc := notification.NewService(notifyRepo, analyticsRepo, dispatchPub, notification.EscalationPolicy{
		SLACritical: time.Duration(cfg.EscalationSLACriticalMins) * time.Minute,
		SLAHigh:     time.Duration(cfg.EscalationSLAHighMins) * time.Minute,
		MaxRetries:  cfg.EscalationMaxRetries,
	}, logger)
	riskSvc := risk.NewService(snapshotRepo, patientRepo, profileRepo, obsRepo, pool, notifySvc, logger)
	phenotypeSvc := phenotype.NewService(phenotypeRepo, patientRepo, profileRepo, obsRepo, logger)
	evaluator := engine.NewEvaluator(riskSvc, adherenceSvc, phenotypeSvc, patientRepo, cfg.IngressWorkers, logger)

	return &app{
		patientSvc:   patientSvc,
		obsSvc:       obsSvc,
		adherenceSvc: adherenceSvc,
		riskSvc:      riskSvc,
		phenotypeSvc: phenotypeSvc,
		notifySvc:    notifySvc,
		evaluator:    evaluator,
	}
}

func runServer() error {
	logger := newLogger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Redis streams
	streamClient, err := stream.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer streamClient.Close()
	logger.Info().Msg("connected to redis")

	a := buildApp(pool, streamClient, cfg, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSecret),
		}))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// API routes
	apiV1 := e.Group("/api/v1")
	patient.NewHandler(a.patientSvc).RegisterRoutes(apiV1)
	observation.NewHandler(a.obsSvc).RegisterRoutes(apiV1)
	adherence.NewHandler(a.adherenceSvc).RegisterRoutes(apiV1)
	// Manual evaluations go through the evaluator so they serialize with
	// ingress-driven evaluations for the same patient.
	risk.NewHandler(a.riskSvc, a.evaluator).RegisterRoutes(apiV1)
	phenotype.NewHandler(a.phenotypeSvc).RegisterRoutes(apiV1)
	notification.NewHandler(a.notifySvc).RegisterRoutes(apiV1)

	// Background workers: ingress consumer, delivery callback consumer and
	// the escalation sweeper. They share one cancel context so shutdown
	// stops them together.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	consumer := ingress.NewConsumer(streamClient, cfg.IngressStream, cfg.IngressGroup, cfg.IngressConsumer, cfg.IngressWorkers, a.evaluator, logger)
	go func() {
		if err := consumer.Run(bgCtx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("ingress consumer stopped")
		}
	}()

	callbacks := ingress.NewCallbackConsumer(streamClient, cfg.CallbackStream, cfg.CallbackGroup, cfg.IngressConsumer, a.notifySvc, logger)
	go func() {
		if err := callbacks.Run(bgCtx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("callback consumer stopped")
		}
	}()

	sweeper := notification.NewSweeper(a.notifySvc, time.Duration(cfg.EscalationSweepMins)*time.Minute, logger)
	go func() {
		if err := sweeper.Run(bgCtx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("escalation sweeper stopped")
		}
	}()

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
	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
