package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zulandar/concierge/internal/api"
	"github.com/zulandar/concierge/internal/config"
	"github.com/zulandar/concierge/internal/db"
	"github.com/zulandar/concierge/internal/events"
	"github.com/zulandar/concierge/internal/logger"
	"github.com/zulandar/concierge/internal/maintenance"
	"github.com/zulandar/concierge/internal/messaging"
)

// startupTimeout bounds connectivity checks made before serving.
const startupTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		inMemory   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the CRM API server",
		Long: `Starts the HTTP API used by the CRM dashboard and the messaging webhooks.

Schema migrations run on startup. When events.redis_addr is set, mutations
are published to Redis and relayed to every instance's /api/events stream.
When notify.platform is set, inbound guest messages alert staff on Slack or
Discord. The maintenance sweep runs on maintenance.schedule unless disabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, inMemory)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "use a throwaway in-memory SQLite store")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, inMemory bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()
	log = log.With("hotel", cfg.Hotel)

	gormDB, err := openStore(cfg, inMemory)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	hub := events.NewHub()
	var publisher messaging.EventPublisher = hub
	if cfg.Events.Enabled() {
		pingCtx, pingCancel := pingContext()
		bus, err := events.NewRedisBus(pingCtx, cfg.Events, log)
		pingCancel()
		if err != nil {
			return err
		}
		defer bus.Close()
		// Local mutations round-trip through Redis so every instance
		// relays the same stream.
		if err := bus.Subscribe(ctx, func(evt messaging.Event) {
			_ = hub.Publish(ctx, evt)
		}); err != nil {
			return err
		}
		publisher = bus
		fmt.Fprintf(cmd.OutOrStdout(), "Events: redis %s (channel %s)\n", cfg.Events.RedisAddr, bus.Channel())
	}

	var staff messaging.StaffNotifier
	notifier, err := newNotifier(cfg.Notify, log)
	if err != nil {
		return err
	}
	if notifier != nil {
		defer notifier.Close()
		staff = notifier
		fmt.Fprintf(cmd.OutOrStdout(), "Staff alerts: %s\n", cfg.Notify.Platform)
	}

	svc, err := newService(cfg, gormDB, log, publisher, staff)
	if err != nil {
		return err
	}

	var sweepDone <-chan struct{}
	if cfg.Maintenance.IsEnabled() {
		sweeper, err := maintenance.New(svc, cfg.Maintenance.Schedule, log)
		if err != nil {
			return err
		}
		sweepDone = sweeper.Start(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "Maintenance: %s (next %s)\n",
			cfg.Maintenance.Schedule, sweeper.NextRun(time.Now()).Format(time.RFC3339))
	}

	err = api.Start(ctx, api.StartOpts{
		Service:        svc,
		DB:             gormDB,
		Hub:            hub,
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
		Out:            cmd.OutOrStdout(),
	})

	// Let a running sweep finish before the store and Redis close.
	cancel()
	if sweepDone != nil {
		<-sweepDone
	}
	return err
}

// openStore connects to the configured database, or an in-memory one, and
// migrates the schema.
func openStore(cfg *config.Config, inMemory bool) (*gorm.DB, error) {
	if inMemory {
		return db.OpenMemory()
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}
