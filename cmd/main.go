package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"trading-challenges/internal/auth"
	"trading-challenges/internal/config"
	"trading-challenges/internal/database"
	"trading-challenges/internal/gateway"
	"trading-challenges/internal/handlers"
	"trading-challenges/internal/jobs"
	"trading-challenges/internal/logger"
	"trading-challenges/internal/mt5"
	"trading-challenges/internal/push"
	"trading-challenges/internal/repository"
	"trading-challenges/internal/services"
	"trading-challenges/internal/tasks"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logger.Init(cfg.Log.Level, cfg.Log.Format)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.Database.Driver, cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db := database.GetDB()
	repo := repository.NewRepository(db)

	// Background work that must not fail a request
	runner := tasks.NewRunner(cfg.Jobs.TaskWorkers, cfg.Jobs.TaskQueueSize, tasks.WithRetry(3, 100*time.Millisecond))

	var gw gateway.PaymentGateway
	if cfg.Stripe.SecretKey != "" {
		gw = gateway.NewStripeGateway(cfg.Stripe.SecretKey)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, using in-memory payment gateway")
		gw = gateway.NewMemoryGateway()
	}

	var sender push.Sender = push.Disabled{}
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		sender = push.NewWebPushSender(push.Config{
			VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
			Subject:         cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		})
	} else {
		log.Warn("VAPID keys not set, push notifications disabled")
	}

	mt5Client := mt5.NewClient(cfg.MT5.ServiceURL, cfg.MT5.Timeout, cfg.MT5.RatePerSecond, cfg.MT5.Burst)

	// Initialize services
	stats := services.NewStatsService(repo, runner)
	leaderboard := services.NewLeaderboardService(repo, mt5Client, cfg.MT5.MaxConcurrency)
	challenges := services.NewChallengeService(repo, stats, leaderboard, runner)
	chatboxes := services.NewChatboxService(db)
	plans := services.NewPlanService(db, chatboxes)
	subscriptions := services.NewSubscriptionService(db, chatboxes)
	propFirm := services.NewPropFirmService(db)
	payments := services.NewPaymentService(repo, gw, challenges, subscriptions, propFirm)
	notifications := services.NewNotificationService(db, sender)

	// Jobs are built even when scheduling is off so cron and admin triggers work
	statusJob := jobs.ChallengeStatusJob(cfg.Jobs.StatusSweepInterval, jobs.Sweepers{
		Challenges:    challenges,
		Subscriptions: subscriptions,
		Notifications: notifications,
		Chatboxes:     chatboxes,
	})
	syncJob := jobs.MT5SyncJob(cfg.Jobs.MT5PollInterval, leaderboard)
	cleanupJob := jobs.PushCleanupJob(24*time.Hour, notifications)

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler, err = jobs.NewScheduler(statusJob, syncJob, cleanupJob)
		if err != nil {
			log.Fatalf("Failed to create scheduler: %v", err)
		}
		scheduler.Start()
		log.WithFields(logrus.Fields{
			"status_sweep": cfg.Jobs.StatusSweepInterval.String(),
			"mt5_poll":     cfg.Jobs.MT5PollInterval.String(),
		}).Info("scheduler started")
	}

	router := handlers.NewRouter(handlers.Handlers{
		Auth:          handlers.NewAuthHandler(services.NewAuthService(db, stats)),
		Users:         handlers.NewUserHandler(services.NewUserService(repo), stats),
		Challenges:    handlers.NewChallengeHandler(challenges, leaderboard),
		Leaderboard:   handlers.NewLeaderboardHandler(leaderboard),
		Plans:         handlers.NewPlanHandler(plans),
		Subscriptions: handlers.NewSubscriptionHandler(subscriptions),
		Chatboxes:     handlers.NewChatboxHandler(chatboxes),
		Payments:      handlers.NewPaymentHandler(payments),
		Notifications: handlers.NewNotificationHandler(notifications),
		PropFirm:      handlers.NewPropFirmHandler(propFirm),
		Support:       handlers.NewSupportHandler(services.NewSupportService(db)),
		Content:       handlers.NewContentHandler(services.NewContentService(db)),
		Jobs:          handlers.NewJobsHandler(cfg.App.CronSecret, statusJob, syncJob, cleanupJob),
		Admin:         handlers.NewAdminHandler(services.NewAdminService(db)),
	}, cfg.Server.AllowedOrigins)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Infof("Server starting on port %s", cfg.Server.Port)
		log.Infof("Health check: http://localhost:%s/health", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			log.WithError(err).Warn("scheduler shutdown")
		}
	}
	if err := runner.Close(ctx); err != nil {
		log.WithError(err).Warn("task queue not drained")
	}

	log.Info("Server exited")
}
