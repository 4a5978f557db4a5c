package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pathakanu/mealremind/internal/config"
	"github.com/pathakanu/mealremind/internal/database"
	"github.com/pathakanu/mealremind/internal/jobs"
	"github.com/pathakanu/mealremind/internal/logging"
	"github.com/pathakanu/mealremind/internal/mealplan"
	"github.com/pathakanu/mealremind/internal/notify"
	"github.com/pathakanu/mealremind/internal/reminder"
	"github.com/pathakanu/mealremind/internal/repository"
	"github.com/pathakanu/mealremind/internal/scheduler"
	"github.com/pathakanu/mealremind/internal/server"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogPretty).With().Str("service", "mealremind").Logger()

	db, err := database.New(cfg.DatabaseURL, cfg.SQLitePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database init failed")
	}

	contacts := repository.NewContactRepository(db)
	var notifier reminder.Notifier = notify.NewLog(logging.Component(logger, "notify"))
	if cfg.TwilioEnabled() {
		notifier = notify.NewWhatsApp(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber,
			contacts, cfg.NotifyRatePerSec, logging.Component(logger, "whatsapp"))
		logger.Info().Str("from", cfg.TwilioWhatsAppNumber).Msg("whatsapp delivery enabled")
	}

	store := scheduler.NewStore(db)
	poller := scheduler.NewPoller(store, scheduler.PollerConfig{
		LockLifetime: cfg.TaskLockLifetime,
		BatchSize:    cfg.TaskBatchSize,
	}, logging.Component(logger, "scheduler"))

	manager := reminder.NewManager(repository.NewReminderRepository(db), store, notifier, logging.Component(logger, "reminder"))
	poller.Define(reminder.TaskSendReminder, manager.HandleSendReminder)

	plans := mealplan.NewService(repository.NewPlanRepository(db), manager, cfg.LocalTimezone, logging.Component(logger, "mealplan"))

	runner, err := jobs.New(jobs.Config{
		PollInterval:    cfg.TaskPollInterval,
		SweepSchedule:   cfg.SweepSchedule,
		CleanupSchedule: cfg.CleanupSchedule,
		Retention:       cfg.TaskRetention,
		Location:        cfg.LocalTimezone,
	}, poller, manager, logging.Component(logger, "jobs"))
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler setup failed")
	}
	runner.Start()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.New(plans, manager, contacts, logging.Component(logger, "http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	waitForShutdown(httpServer, runner, logger)
}

func waitForShutdown(httpServer *http.Server, runner *jobs.Runner, logger zerolog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	runner.Stop()
}
