package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vendorrisk/internal/api"
	"vendorrisk/internal/config"
	"vendorrisk/internal/feed"
	"vendorrisk/internal/logging"
	"vendorrisk/internal/metrics"
	"vendorrisk/internal/publish"
	"vendorrisk/internal/simulation"
	"vendorrisk/internal/storage"
)

func newServeCmd(version string) *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation with its API and change feeds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := loadManager(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, mgr, version)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to a YAML or JSON config file")
	return cmd
}

func loadManager(path string) (*config.Manager, error) {
	if path == "" {
		return config.NewStaticManager(config.DefaultConfig()), nil
	}
	mgr, err := config.NewManager(config.ResolvePath(path))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return mgr, nil
}

func serve(ctx context.Context, mgr *config.Manager, version string) error {
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("vendorrisk starting", "version", version, "config_path", mgr.Path())

	records, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if records != nil {
		if err := records.Init(ctx); err != nil {
			_ = records.Close()
			return fmt.Errorf("init storage: %w", err)
		}
		defer records.Close()
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	vendors, err := simulation.SeedVendors(ctx, cfg, records)
	if err != nil {
		return err
	}

	collectors := metrics.New()
	opts := simulation.Options{Metrics: collectors, Logger: logger}
	if cfg.Publish.Redis.Enabled {
		pub, err := publish.NewRedisPublisher(cfg.Publish.Redis)
		if err != nil {
			logger.Warn("snapshot publisher unavailable", "err", err)
		} else {
			defer pub.Close()
			opts.Publisher = pub
			logger.Info("snapshot publisher enabled", "addr", cfg.Publish.Redis.Addr, "key", cfg.Publish.Redis.Key)
		}
	}
	runner := simulation.New(cfg, vendors, opts)
	defer runner.Stop()

	view := feed.NewView(records, logger)
	if records != nil {
		loadView(ctx, view, records, logger)
	}
	changes := make(chan feed.ChangeEvent, cfg.Feed.ChannelBuffer)
	go view.Consume(ctx, changes, feed.NewDedupeCache(cfg.Feed.DedupeWindow))
	feed.StartWebhook(ctx, mgr, changes, logger)
	feed.StartKafka(ctx, mgr, changes, logger)
	feed.StartPGNotify(ctx, mgr, changes, logger)

	api.Start(ctx, api.Deps{
		Config:     mgr,
		Simulation: runner,
		Timeline:   runner.Timeline(),
		Ratings:    runner.Ratings(),
		Records:    records,
		View:       view,
		Metrics:    collectors.Handler(),
		Logger:     logger,
		Version:    version,
	})

	if cfg.Simulation.AutoStart {
		runner.Start(ctx)
	}

	go mgr.Watch(3*time.Second, func(next *config.Config) {
		logger.Info("config reloaded", "path", mgr.Path())
		runner.UpdateConfig(next)
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, ctx.Done())

	<-ctx.Done()
	logger.Info("vendorrisk shutting down")
	return nil
}

func loadView(ctx context.Context, view *feed.View, records storage.Store, logger *slog.Logger) {
	vendors, err := records.ListVendors(ctx)
	if err != nil {
		logger.Warn("initial vendor listing failed", "err", err)
		return
	}
	incidents, err := records.ListIncidents(ctx)
	if err != nil {
		logger.Warn("initial incident listing failed", "err", err)
		return
	}
	view.Load(vendors, incidents)
	logger.Info("live view loaded", "vendors", len(vendors), "incidents", len(incidents))
}
