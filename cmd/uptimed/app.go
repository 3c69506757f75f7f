package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/config"
	"github.com/hamed0406/uptimewatch/internal/history"
	"github.com/hamed0406/uptimewatch/internal/hub"
	"github.com/hamed0406/uptimewatch/internal/logging"
	"github.com/hamed0406/uptimewatch/internal/notify"
	"github.com/hamed0406/uptimewatch/internal/probe"
	"github.com/hamed0406/uptimewatch/internal/repo"
	"github.com/hamed0406/uptimewatch/internal/repo/memory"
	"github.com/hamed0406/uptimewatch/internal/repo/postgres"
	"github.com/hamed0406/uptimewatch/internal/scheduler"
	"github.com/hamed0406/uptimewatch/internal/seed"
	"github.com/hamed0406/uptimewatch/internal/webhook"
)

// app holds the engine components shared by serve and check.
type app struct {
	cfg   config.Config
	log   *zap.Logger
	store repo.Store
	hub   *hub.Hub
	sched *scheduler.Scheduler
	close func()
}

func loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(""); err != nil {
		return config.Config{}, fmt.Errorf("load .env: %w", err)
	}
	return config.FromEnv(), nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	a := &app{cfg: cfg, log: logger, close: func() { _ = logger.Sync() }}

	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		a.store = pg
		a.close = func() { pg.Close(); _ = logger.Sync() }
		logger.Info("store_postgres")
	} else {
		a.store = memory.New()
		logger.Warn("store_memory", zap.String("hint", "set DATABASE_URL to persist monitors"))
	}

	if cfg.SeedFile != "" {
		monitors, err := seed.Load(cfg.SeedFile)
		if err != nil {
			a.close()
			return nil, err
		}
		n, err := seed.Apply(ctx, a.store, monitors, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		logger.Info("seed_applied", zap.String("file", cfg.SeedFile), zap.Int("created", n), zap.Int("listed", len(monitors)))
	}

	sender, err := operatorSender(cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	client := probe.NewHTTPClient(probe.ClientConfig{UserAgent: cfg.UserAgent})
	a.hub = hub.New(logger)
	a.sched = scheduler.New(logger, scheduler.Deps{
		Registry: a.store,
		Status:   a.store,
		Prober:   probe.NewHTTPProber(client),
		Recorder: history.NewRecorder(a.store),
		Notifier: notify.NewNotifier(a.store, sender, logger),
		Webhooks: webhook.NewDispatcher(client, cfg.WebhookTimeout),
		Hub:      a.hub,
	}, scheduler.Config{
		TickInterval:  cfg.TickInterval,
		HonorInterval: cfg.HonorInterval,
		MaxConcurrent: cfg.MaxConcurrent,
		DiagnoseDNS:   cfg.DiagnoseDNS,
	})
	return a, nil
}

// operatorSender returns nil when no operator channel is configured.
func operatorSender(cfg config.Config) (notify.Sender, error) {
	var senders notify.Multi
	if s := notify.NewSlack(cfg.SlackWebhookURL); s != nil {
		senders = append(senders, s)
	}
	tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
	if err != nil {
		return nil, err
	}
	if tg != nil {
		senders = append(senders, tg)
	}
	if len(senders) == 0 {
		return nil, nil
	}
	return senders, nil
}
