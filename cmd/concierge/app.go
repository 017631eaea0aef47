package main

import (
	"context"
	"fmt"

	"github.com/zulandar/concierge/internal/config"
	"github.com/zulandar/concierge/internal/db"
	"github.com/zulandar/concierge/internal/logger"
	"github.com/zulandar/concierge/internal/messaging"
	"github.com/zulandar/concierge/internal/notify"
	"github.com/zulandar/concierge/internal/notify/discord"
	"github.com/zulandar/concierge/internal/notify/slack"
	"gorm.io/gorm"
)

// connectFromConfig loads the config file and opens the configured store.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// newService builds a messaging service from cfg. Hooks may be nil.
func newService(cfg *config.Config, gormDB *gorm.DB, log *logger.Logger, events messaging.EventPublisher, notifier messaging.StaffNotifier) (*messaging.Service, error) {
	return messaging.NewService(messaging.Options{
		DB:          gormDB,
		Logger:      log,
		Normalizer:  messaging.NewNormalizer(cfg.Messages.Location(), cfg.Messages.TimestampLayout),
		MaxRetained: cfg.Messages.MaxRetained,
		Events:      events,
		Notifier:    notifier,
	})
}

// serviceFromConfig is the short path used by one-shot CLI commands: no
// realtime events, no staff alerts, quiet logging.
func serviceFromConfig(configPath string) (*config.Config, *messaging.Service, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	svc, err := newService(cfg, gormDB, logger.Nop(), nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return cfg, svc, nil
}

// newNotifier builds the staff notifier for the configured platform. It
// returns nil when no platform is configured.
func newNotifier(cfg config.NotifyConfig, log *logger.Logger) (*notify.Notifier, error) {
	var (
		adapter   notify.Adapter
		channelID string
		err       error
	)
	switch cfg.Platform {
	case "":
		return nil, nil
	case "slack":
		channelID = cfg.Slack.ChannelID
		adapter, err = slack.New(slack.AdapterOpts{
			BotToken:  cfg.Slack.BotToken,
			ChannelID: channelID,
			Logger:    log,
		})
	case "discord":
		channelID = cfg.Discord.ChannelID
		adapter, err = discord.New(discord.AdapterOpts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: channelID,
			Logger:    log,
		})
	default:
		return nil, fmt.Errorf("notify: unsupported platform %q", cfg.Platform)
	}
	if err != nil {
		return nil, err
	}
	return notify.NewNotifier(adapter, channelID, log)
}

// pingContext is the budget for startup connectivity checks.
func pingContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), startupTimeout)
}
