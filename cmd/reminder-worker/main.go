package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinidesk/clinic-scheduling/internal/config"
	"github.com/clinidesk/clinic-scheduling/internal/db"
	"github.com/clinidesk/clinic-scheduling/internal/notify"
	"github.com/clinidesk/clinic-scheduling/pkg/logging"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	logger.Info("running reminder worker",
		"env", cfg.Env, "interval", cfg.SweepInterval, "window", cfg.ReminderWindow)

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
	svc := notify.NewService(pgPool, email, logger)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.ReminderWindow, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.ReminderWindow, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *notify.Service, window time.Duration, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := svc.SweepReminders(runCtx, window)
	if err != nil {
		logger.Error("reminder sweep error", "error", err)
		return
	}
	logger.Info("reminder sweep run complete", "sent", sent, "took", time.Since(start).String())
}
