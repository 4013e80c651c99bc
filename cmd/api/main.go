// Package main is the entry point for the TeamNetwork API server.
//
// It loads configuration (env plus SSM for deployed environments),
// connects the pgx pool, wires the repositories, Stripe client, SQS
// publisher, and CloudWatch metrics into the HTTP chassis, and serves
// until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"teamnetwork/internal/api/handlers"
	"teamnetwork/internal/auth"
	"teamnetwork/internal/billing"
	"teamnetwork/internal/config"
	"teamnetwork/internal/core"
	"teamnetwork/internal/db"
	"teamnetwork/internal/external"
	"teamnetwork/internal/notifications"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on
// error.
func run() error {
	// SSM resolution is bypassed when APP_ENV=local; the provider is
	// only consulted for deployed environments.
	region := os.Getenv("AWS_REGION")
	cfg, err := config.LoadConfig(config.NewSSMProvider(region))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("teamnetwork API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	// Repositories.
	orgRepo := db.NewOrganizationRepo(pool, logger)
	memberRepo := db.NewMemberRepo(pool, logger)
	subRepo := db.NewSubscriptionRepo(pool, logger)
	inviteRepo := db.NewInviteRepo(pool, logger)
	announcementRepo := db.NewAnnouncementRepo(pool, logger)
	auditRepo := db.NewAuditRepo(pool, logger)
	userRepo := db.NewUserRepo(pool, logger)
	sessionRepo := db.NewSessionRepo(pool, logger)

	// Auth service doubles as the chassis session and membership
	// resolver.
	authService := auth.NewService(
		userRepo, sessionRepo, memberRepo, orgRepo,
		cfg.Auth.BcryptCost, cfg.Auth.SessionTTL, logger,
	)

	// External clients.
	httpClient := &http.Client{Timeout: 30 * time.Second}
	stripeClient := external.NewStripeClient(httpClient, orgRepo, external.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
		Prices: external.StripePriceConfig{
			SeatMonth:   cfg.Billing.SeatPriceMonth,
			SeatYear:    cfg.Billing.SeatPriceYear,
			BucketMonth: cfg.Billing.BucketPriceMonth,
			BucketYear:  cfg.Billing.BucketPriceYear,
		},
		Logger: logger,
	})

	// AWS-side infrastructure: SQS publisher for notifications and
	// CloudWatch for API metrics.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)
	publisher := notifications.NewPublisher(sqsClient, cfg.AWS.NotificationQueue, logger)
	fanout := notifications.NewFanout(memberRepo, publisher, logger)

	calculator := billing.NewCalculator(billing.PricingConfig{
		FreeSubOrgs:            cfg.Billing.FreeSubOrgs,
		SeatUnit:               billing.IntervalCents{Month: cfg.Billing.SeatCentsMonth, Year: cfg.Billing.SeatCentsYear},
		AlumniBucket:           billing.IntervalCents{Month: cfg.Billing.BucketCentsMonth, Year: cfg.Billing.BucketCentsYear},
		SalesLedBucketQuantity: cfg.Billing.SalesLedBucketQuantity,
	})

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.SessionResolver = authService
	srv.MembershipResolver = authService
	srv.Pinger = pool
	srv.Closers = append(srv.Closers, pool.Close)
	if cfg.Observability.EnableMetrics {
		cwClient := cloudwatch.NewFromConfig(awsCfg)
		srv.Metrics = notifications.NewCloudWatchMetrics(cwClient, cfg.Observability.MetricNamespace, logger)
	}

	// Handlers.
	authHandler := handlers.NewAuthHandler(authService, srv.Validator, cfg.Environment != "local", logger)
	billingHandler := handlers.NewBillingHandler(
		calculator, stripeClient, subRepo, orgRepo, authService,
		auditRepo, fanout, srv.Validator, cfg.Server.AppBaseURL, logger,
	)
	orgHandler := handlers.NewOrgHandler(
		orgRepo, memberRepo, inviteRepo, announcementRepo, auditRepo,
		userRepo, authService, auditRepo, fanout, srv.Validator,
		cfg.Server.AppBaseURL, logger,
	)
	exportHandler := handlers.NewExportHandler(orgRepo, memberRepo, authService, auditRepo)
	webhookHandler := handlers.NewStripeWebhookHandler(
		&external.StripeVerifier{}, subRepo,
		cfg.Billing.StripeWebhookSecret.Unmask(), logger,
	)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		authHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		orgHandler.RegisterRoutes,
		exportHandler.RegisterRoutes,
	)
	srv.RootRouteRegistrars = append(srv.RootRouteRegistrars, webhookHandler.RegisterRoutes)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer serves until SIGINT/SIGTERM, then drains in-flight
// requests before releasing server resources.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
