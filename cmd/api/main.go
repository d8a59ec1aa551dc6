package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/runcall/platform/internal/api/router"
	"github.com/runcall/platform/internal/availability"
	"github.com/runcall/platform/internal/bookings"
	"github.com/runcall/platform/internal/calendar"
	appconfig "github.com/runcall/platform/internal/config"
	"github.com/runcall/platform/internal/events"
	"github.com/runcall/platform/internal/experts"
	"github.com/runcall/platform/internal/google"
	"github.com/runcall/platform/internal/locks"
	"github.com/runcall/platform/internal/notify"
	"github.com/runcall/platform/internal/observability/metrics"
	"github.com/runcall/platform/internal/payments"
	"github.com/runcall/platform/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting runcall API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "error", err)
		os.Exit(1)
	}

	bookingMetrics := metrics.NewBookingMetrics(nil)

	// Stores
	expertStore := experts.NewStore(pool)
	accountStore := google.NewAccounts(pool)
	bookingRepo := bookings.NewRepository(pool)
	processedStore := events.NewProcessedStore(pool)

	// Google integration
	tokenManager := google.NewTokenManager(google.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURI:  cfg.PublicBaseURL + "/google/callback",
	}, accountStore, logger)
	if cfg.GoogleTokenURL != "" {
		tokenManager = tokenManager.WithTokenURL(cfg.GoogleTokenURL)
	}
	calendarClient := calendar.NewClient(logger)
	if cfg.GoogleCalendarURL != "" {
		calendarClient = calendarClient.WithBaseURL(cfg.GoogleCalendarURL)
	}
	oauthHandler := google.NewOAuthHandler(tokenManager, accountStore, cfg.PublicBaseURL, logger)

	// Availability
	availabilitySvc := availability.NewService(accountStore, tokenManager, calendarClient,
		availability.Options{Lead: cfg.SlotLeadTime}, bookingMetrics, logger)
	slotsHandler := availability.NewHandler(availabilitySvc, cfg.SlotWindowDays, logger)

	// Payments and notifications
	checkoutSvc := payments.NewStripeCheckoutService(
		cfg.StripeSecretKey, cfg.StripeSuccessURL, cfg.StripeCancelURL, logger)
	var emailSender notify.EmailSender = notify.NewStubEmailSender(logger)
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	}
	notifySvc := notify.NewService(emailSender, logger)

	// Booking lifecycle
	confirmLocker := locks.NewConfirmLocker(redisClient, cfg.ConfirmLockTTL, logger)
	bookingSvc := bookings.NewService(bookings.ServiceConfig{
		Repo:     bookingRepo,
		Experts:  expertStore,
		Accounts: accountStore,
		Tokens:   tokenManager,
		Calendar: calendarClient,
		Checkout: checkoutSvc,
		Locker:   confirmLocker,
		Notifier: notifySvc,
		Metrics:  bookingMetrics,
		Logger:   logger,
		HoldTTL:  cfg.HoldTTL,
	})
	bookingsHandler := bookings.NewHandler(bookingSvc, logger)

	stripeWebhook := payments.NewStripeWebhookHandler(
		cfg.StripeWebhookSecret,
		processedStore,
		payments.ConfirmerFunc(func(ctx context.Context, bookingID uuid.UUID, paymentIntentID, sessionID string) error {
			_, err := bookingSvc.Confirm(ctx, bookingID, paymentIntentID, sessionID)
			return err
		}),
		bookingMetrics,
		logger,
	)

	r := router.New(&router.Config{
		Logger:             logger,
		SlotsHandler:       slotsHandler,
		BookingsHandler:    bookingsHandler,
		StripeWebhook:      stripeWebhook,
		GoogleOAuth:        oauthHandler,
		MetricsHandler:     promhttp.Handler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		PublicRateLimit:    10,
		PublicBurst:        30,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Periodic hold expiry sweep; the admin endpoint covers manual runs.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := bookingSvc.ExpireStale(sweepCtx); err != nil {
					logger.Error("hold expiry sweep failed", "error", err)
				}
			}
		}
	}()

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
