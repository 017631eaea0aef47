// Package config provides YAML-based configuration loading for Concierge.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultMaxRetained is the number of messages kept per conversation.
const DefaultMaxRetained = 1000

// Config is the top-level Concierge configuration, loaded from concierge.yaml.
type Config struct {
	Hotel       string            `yaml:"hotel"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Messages    MessagesConfig    `yaml:"messages"`
	Log         LogConfig         `yaml:"log"`
	Events      EventsConfig      `yaml:"events"`
	Notify      NotifyConfig      `yaml:"notify"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds connection settings for the conversation store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"` // sqlite only
}

// MessagesConfig controls message retention and display.
type MessagesConfig struct {
	MaxRetained     int    `yaml:"max_retained"`
	DisplayTimezone string `yaml:"display_timezone"`
	TimestampLayout string `yaml:"timestamp_layout"`
}

// Location resolves DisplayTimezone, falling back to time.Local.
func (m MessagesConfig) Location() *time.Location {
	if m.DisplayTimezone == "" || m.DisplayTimezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(m.DisplayTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// LogConfig selects the zap preset ("dev" or "prod").
type LogConfig struct {
	Mode string `yaml:"mode"`
}

// EventsConfig enables realtime fan-out over Redis pub/sub.
type EventsConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	Channel   string `yaml:"channel"`
}

// Enabled reports whether a Redis address is configured.
func (e EventsConfig) Enabled() bool {
	return e.RedisAddr != ""
}

// NotifyConfig holds staff alert settings. At most one platform is used.
type NotifyConfig struct {
	Platform string        `yaml:"platform"` // "slack", "discord", or empty
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack credentials.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// MaintenanceConfig schedules the background sweep.
type MaintenanceConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// IsEnabled defaults to true when unset.
func (m MaintenanceConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMySQL
	}
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	switch c.Database.Driver {
	case DriverMySQL:
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	case DriverPostgres:
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.User == "" {
			c.Database.User = "postgres"
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			c.Database.Path = "concierge.db"
		}
	}
	if c.Database.Name == "" && c.Hotel != "" {
		c.Database.Name = "concierge_" + c.Hotel
	}
	if c.Messages.MaxRetained == 0 {
		c.Messages.MaxRetained = DefaultMaxRetained
	}
	if c.Messages.TimestampLayout == "" {
		c.Messages.TimestampLayout = "15:04:05"
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "dev"
	}
	if c.Events.Channel == "" {
		c.Events.Channel = "concierge.events"
	}
	c.Notify.Platform = strings.ToLower(c.Notify.Platform)
	if c.Maintenance.Schedule == "" {
		c.Maintenance.Schedule = "*/15 * * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Hotel == "" {
		errs = append(errs, "hotel is required")
	}
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required")
		}
	case DriverSQLite:
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Messages.MaxRetained < 0 {
		errs = append(errs, "messages.max_retained must not be negative")
	}
	if c.Messages.DisplayTimezone != "" && c.Messages.DisplayTimezone != "Local" {
		if _, err := time.LoadLocation(c.Messages.DisplayTimezone); err != nil {
			errs = append(errs, fmt.Sprintf("messages.display_timezone %q is invalid", c.Messages.DisplayTimezone))
		}
	}
	switch c.Notify.Platform {
	case "":
	case "slack":
		if c.Notify.Slack.BotToken == "" {
			errs = append(errs, "notify.slack.bot_token is required")
		}
		if c.Notify.Slack.ChannelID == "" {
			errs = append(errs, "notify.slack.channel_id is required")
		}
	case "discord":
		if c.Notify.Discord.BotToken == "" {
			errs = append(errs, "notify.discord.bot_token is required")
		}
		if c.Notify.Discord.ChannelID == "" {
			errs = append(errs, "notify.discord.channel_id is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("notify.platform %q is not supported", c.Notify.Platform))
	}
	if _, err := ParseSchedule(c.Maintenance.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("maintenance.schedule: %v", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}
