package main

import (
	"strings"
	"testing"

	"github.com/zulandar/concierge/internal/config"
	"github.com/zulandar/concierge/internal/logger"
)

func TestNewNotifier(t *testing.T) {
	n, err := newNotifier(config.NotifyConfig{}, logger.Nop())
	if err != nil || n != nil {
		t.Fatalf("no platform = (%v, %v), want (nil, nil)", n, err)
	}

	n, err = newNotifier(config.NotifyConfig{
		Platform: "slack",
		Slack:    config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123"},
	}, logger.Nop())
	if err != nil || n == nil {
		t.Fatalf("slack = (%v, %v)", n, err)
	}

	n, err = newNotifier(config.NotifyConfig{
		Platform: "discord",
		Discord:  config.DiscordConfig{BotToken: "token", ChannelID: "42"},
	}, logger.Nop())
	if err != nil || n == nil {
		t.Fatalf("discord = (%v, %v)", n, err)
	}

	_, err = newNotifier(config.NotifyConfig{Platform: "slack"}, logger.Nop())
	if err == nil || !strings.Contains(err.Error(), "bot token is required") {
		t.Errorf("slack without token err = %v", err)
	}

	_, err = newNotifier(config.NotifyConfig{Platform: "pager"}, logger.Nop())
	if err == nil || !strings.Contains(err.Error(), "unsupported platform") {
		t.Errorf("unknown platform err = %v", err)
	}
}

func TestEventsTail_RequiresRedis(t *testing.T) {
	cfgPath := writeSQLiteConfig(t, "")
	_, err := runCmd(t, "events", "tail", "--config", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "redis_addr is not configured") {
		t.Errorf("err = %v, want redis_addr error", err)
	}
}

func TestOpenStore_InMemory(t *testing.T) {
	gormDB, err := openStore(&config.Config{}, true)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	svc, err := newService(&config.Config{Messages: config.MessagesConfig{MaxRetained: 5}}, gormDB, logger.Nop(), nil, nil)
	if err != nil {
		t.Fatalf("newService: %v", err)
	}
	if svc.MaxRetained() != 5 {
		t.Errorf("MaxRetained = %d, want 5", svc.MaxRetained())
	}
}
