package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinidesk/clinic-scheduling/internal/api"
	"github.com/clinidesk/clinic-scheduling/internal/config"
	"github.com/clinidesk/clinic-scheduling/internal/db"
	"github.com/clinidesk/clinic-scheduling/internal/notify"
	"github.com/clinidesk/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/clinidesk/clinic-scheduling/internal/redis"
	"github.com/clinidesk/clinic-scheduling/internal/scheduling"
	"github.com/clinidesk/clinic-scheduling/pkg/logging"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	logger.Info("running", "env", cfg.Env, "http_port", cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	schedMetrics := metrics.NewSchedulingMetrics(nil)

	var email notify.EmailSender
	if sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.EmailFrom,
		FromName:  cfg.EmailFromName,
	}, logger); sender != nil {
		email = sender
	} else {
		email = notify.NewStubEmailSender(logger)
	}
	notifications := notify.NewService(pgPool, email, logger)

	coordinator := scheduling.NewCoordinator(repo, locker, notifications, schedMetrics, logger)
	slots := scheduling.NewSlotStore(repo, logger)
	checkin := scheduling.NewCheckinGate(repo, schedMetrics, logger)

	router := api.NewRouter(api.RouterConfig{
		Slots:          slots,
		Coordinator:    coordinator,
		Checkin:        checkin,
		Notifications:  notifications,
		PgPool:         pgPool,
		Redis:          rdb,
		Logger:         logger,
		JWTSecret:      cfg.JWTSecret,
		CheckinTTL:     cfg.CheckinTTL,
		BookingCodeTTL: cfg.BookingCodeTTL,
		RateLimiter:    api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Env:            cfg.Env,
		Version:        version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
}
