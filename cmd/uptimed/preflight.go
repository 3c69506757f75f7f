package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hamed0406/uptimewatch/internal/config"
	"github.com/hamed0406/uptimewatch/internal/domain"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check the environment before deploying",
	RunE:  runPreflight,
}

func init() {
	rootCmd.AddCommand(preflightCmd)
}

func runPreflight(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	problems := preflight(cfg,
		func(msg string) { fmt.Fprintln(errOut, "⚠", msg) },
		func(msg string) { fmt.Fprintln(out, "✔", msg) },
	)
	for _, p := range problems {
		fmt.Fprintln(errOut, "✖", p)
	}
	if len(problems) > 0 {
		return errors.New("preflight failed")
	}
	fmt.Fprintln(out, "✔ preflight passed")
	return nil
}

// preflight returns blocking problems; warnings and passes go to the callbacks.
func preflight(cfg config.Config, warn, ok func(string)) []string {
	var problems []string

	if len(cfg.AdminAPIKeys) == 0 {
		problems = append(problems, "ADMIN_API_KEYS is empty (POST /api/check is open to anyone).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		problems = append(problems, "PUBLIC_API_KEYS is empty (read routes and feeds are open to anyone).")
	}

	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty — monitors, events and notifications live in memory only.")
	} else {
		ok("DATABASE_URL present")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty — CORS allows every origin.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	switch {
	case cfg.TickInterval == 0:
		warn("TICK_INTERVAL_MS=0 — background checks disabled; rely on `uptimed check` or POST /api/check.")
	case cfg.TickInterval.Seconds() > domain.MinInterval:
		warn(fmt.Sprintf("TICK_INTERVAL_MS=%d is longer than the minimum monitor interval (%ds); short intervals will be checked late.",
			cfg.TickInterval.Milliseconds(), domain.MinInterval))
	default:
		ok("tick interval " + cfg.TickInterval.String())
	}

	if cfg.WebhookTimeout > 10*cfg.TickInterval && cfg.TickInterval > 0 {
		warn("WEBHOOK_TIMEOUT_MS is much longer than the tick interval; slow webhooks can delay ticks.")
	}

	if cfg.SlackWebhookURL == "" && cfg.TelegramBotToken == "" {
		warn("no operator channel configured (SLACK_WEBHOOK_URL / TELEGRAM_BOT_TOKEN).")
	} else if cfg.TelegramBotToken != "" && cfg.TelegramChatID == 0 {
		problems = append(problems, "TELEGRAM_BOT_TOKEN set without TELEGRAM_CHAT_ID.")
	}

	if cfg.SeedFile != "" {
		ok("SEED_FILE=" + cfg.SeedFile)
	}
	return problems
}
