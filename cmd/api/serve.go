package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pingwatch/internal/config"
	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/httpapi"
	apimw "github.com/hamed0406/pingwatch/internal/httpapi/middleware"
	"github.com/hamed0406/pingwatch/internal/logging"
	"github.com/hamed0406/pingwatch/internal/metrics"
	"github.com/hamed0406/pingwatch/internal/monitor"
	"github.com/hamed0406/pingwatch/internal/notify"
	"github.com/hamed0406/pingwatch/internal/probe"
	"github.com/hamed0406/pingwatch/internal/registry"
	"github.com/hamed0406/pingwatch/internal/repo"
	"github.com/hamed0406/pingwatch/internal/repo/memory"
	"github.com/hamed0406/pingwatch/internal/repo/postgres"
	"github.com/hamed0406/pingwatch/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Probe targets and serve the management API",
	Long: `Start the scheduler, the notification dispatcher, the optional targets
file watcher and the HTTP API. Runs until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()

	notifiers, closeNotifiers := buildNotifiers(cfg, store, logger)
	defer closeNotifiers()
	dispatcher := notify.NewDispatcher(logger, m, notify.DispatcherConfig{
		QueueSize:       cfg.NotifyQueueSize,
		Attempts:        cfg.NotifyAttempts,
		Timeout:         cfg.NotifyTimeout,
		AlertOnRecovery: cfg.AlertOnRecovery,
	}, notifiers...)

	runner := probe.NewRunner(logger, cfg.ProbeTimeout,
		probe.DefaultCheckers(cfg.ProbeTimeout, cfg.RetryAttempts, cfg.RetryBackoff))
	exec := monitor.NewExecutor(logger, runner, store, dispatcher, m)
	sched := scheduler.New(logger, exec, store, m, cfg.SchedulerResolution, cfg.RegistryResync)
	svc := monitor.NewService(logger, store, store, store, sched)

	if cfg.TargetsFile != "" {
		ts, err := registry.Load(cfg.TargetsFile)
		if err != nil {
			return fmt.Errorf("load targets: %w", err)
		}
		if err := svc.Import(ctx, ts); err != nil {
			return fmt.Errorf("import targets: %w", err)
		}
	}

	api := httpapi.NewServer(logger, svc, m)
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Router(
			apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
			cfg.AllowedOrigins,
			cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst,
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	if cfg.TargetsFile != "" {
		g.Go(func() error {
			return registry.Watch(gctx, cfg.TargetsFile, logger, func(ctx context.Context, ts []*domain.Target) error {
				return svc.Import(ctx, ts)
			})
		})
	}
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown_with_error", zap.Error(err))
		return err
	}
	logger.Info("shutdown_complete")
	return nil
}

// openStore picks Postgres when DATABASE_URL is set and the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("store_selected", zap.String("kind", "memory"))
		return memory.New(), nil
	}
	pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	logger.Info("store_selected", zap.String("kind", "postgres"))
	return pg, nil
}

func buildNotifiers(cfg config.Config, settings notify.SettingsSource, logger *zap.Logger) ([]notify.Notifier, func()) {
	ns := []notify.Notifier{notify.NewTelegram(cfg.TelegramAPIURL, settings)}
	if cfg.SlackWebhookURL != "" {
		ns = append(ns, notify.NewSlack(cfg.SlackWebhookURL))
	}
	closer := func() {}
	if cfg.NATSURL != "" {
		nc, err := notify.NewNATS(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			// alerts still go to the other channels
			logger.Error("nats_unavailable", zap.Error(err))
		} else {
			ns = append(ns, nc)
			closer = nc.Close
		}
	}
	return ns, closer
}
