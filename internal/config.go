package internal

import (
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/opscore/internal/ranking"
	"github.com/starford/opscore/internal/telemetry"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Queue     QueueConfig       `yaml:"queue"`
	Ranking   RankingConfig     `yaml:"ranking"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	if err := c.Ranking.Validate(); err != nil {
		return err
	}
	return c.Telemetry.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// QueueConfig holds resolution queue settings.
type QueueConfig struct {
	RetentionDays int `yaml:"retention_days"`
	PendingLimit  int `yaml:"pending_limit"`
}

// Retention returns how long resolved items are kept.
func (c *QueueConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Validate validates the queue configuration.
func (c *QueueConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RetentionDays, validation.Required, validation.Min(1)),
		validation.Field(&c.PendingLimit, validation.Min(0)),
	)
}

// RankingConfig holds defaults for the rank command.
type RankingConfig struct {
	DefaultProfile string `yaml:"default_profile"`
	DefaultHorizon string `yaml:"default_horizon"`
	MaxItems       int    `yaml:"max_items"`
}

// Validate validates the ranking configuration.
func (c *RankingConfig) Validate() error {
	profiles := make([]any, 0, len(ranking.Profiles))
	for _, p := range ranking.Profiles {
		profiles = append(profiles, p.Name)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultProfile, validation.Required, validation.In(profiles...)),
		validation.Field(&c.DefaultHorizon, validation.Required,
			validation.In(string(ranking.HorizonNow), string(ranking.HorizonToday), string(ranking.HorizonThisWeek))),
		validation.Field(&c.MaxItems, validation.Required, validation.Min(1)),
	)
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Validate validates the telemetry configuration.
func (c *TelemetryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Exporter, validation.In("otlp-http", "stdout", "none")),
	)
}

func (c *TelemetryConfig) toTelemetry() telemetry.Config {
	return telemetry.Config{
		Enabled:     c.Enabled,
		Exporter:    c.Exporter,
		Endpoint:    c.Endpoint,
		ServiceName: c.ServiceName,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		SQLite: SQLiteConfig{
			Path: "./opscore.db",
		},
		Queue: QueueConfig{
			RetentionDays: 30,
			PendingLimit:  50,
		},
		Ranking: RankingConfig{
			DefaultProfile: ranking.Balanced.Name,
			DefaultHorizon: string(ranking.HorizonToday),
			MaxItems:       7,
		},
		Telemetry: TelemetryConfig{
			Exporter:    "none",
			ServiceName: "opscore",
		},
	}
}
