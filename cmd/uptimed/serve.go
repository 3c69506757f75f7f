package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/httpapi"
	apimw "github.com/hamed0406/uptimewatch/internal/httpapi/middleware"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, push feed and background scheduler",
	Long: `Start the HTTP API and the check scheduler.

The scheduler runs one pass immediately and then every TICK_INTERVAL_MS.
Monitors are checked only once their own interval has elapsed unless
HONOR_INTERVAL=false. POST /api/check triggers an extra cycle.

The process runs until interrupted (Ctrl+C) or it receives SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	api := httpapi.NewServer(a.log, a.store, a.hub, a.sched)
	keys := apimw.Keys{Public: a.cfg.PublicAPIKeys, Admin: a.cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           api.Router(keys, a.cfg.AllowedOrigins, a.cfg.PublicRPM, a.cfg.PublicBurst, a.cfg.AdminRPM, a.cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
		// feed handlers end when the server context is cancelled
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		a.sched.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("api_listen", zap.String("addr", a.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		stop()
		<-schedDone
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutdown_started")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http_shutdown_failed", zap.Error(err))
	}

	// in-flight probes are bounded by their own timeouts
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		a.log.Warn("scheduler_shutdown_timed_out", zap.Duration("timeout", shutdownTimeout))
	}
	a.log.Info("shutdown_complete")
	return nil
}
