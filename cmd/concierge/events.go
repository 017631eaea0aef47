package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/concierge/internal/config"
	"github.com/zulandar/concierge/internal/events"
	"github.com/zulandar/concierge/internal/logger"
	"github.com/zulandar/concierge/internal/messaging"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Realtime event commands",
	}

	cmd.AddCommand(newEventsTailCmd())
	return cmd
}

func newEventsTailCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print conversation events from Redis as they happen",
		Long: `Subscribes to the configured Redis channel and prints each event as a
JSON line until interrupted. Requires events.redis_addr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsTail(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Concierge config file")
	return cmd
}

func runEventsTail(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Events.Enabled() {
		return fmt.Errorf("events.redis_addr is not configured")
	}

	pingCtx, pingCancel := pingContext()
	bus, err := events.NewRedisBus(pingCtx, cfg.Events, logger.Nop())
	pingCancel()
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()
	lines := make(chan []byte, 64)
	if err := bus.Subscribe(ctx, func(evt messaging.Event) {
		raw, err := events.Encode(evt)
		if err != nil {
			return
		}
		select {
		case lines <- raw:
		case <-ctx.Done():
		}
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Tailing %s on %s (Ctrl-C to stop)\n", bus.Channel(), cfg.Events.RedisAddr)

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw := <-lines:
			fmt.Fprintln(out, string(raw))
		}
	}
}
