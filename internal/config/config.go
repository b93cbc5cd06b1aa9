// Package config provides configuration loading, defaults, and validation
// for the bot. It reads config.yaml, overlays BOT_* environment variables,
// and validates the result; a malformed configuration is fatal at startup.
package config

import (
	"time"

	"github.com/go-telegram/bot/models"
)

// Config defines the application configuration parameters for all components:
// logging, Telegram, extraction, storage, notifications, and the scheduler.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot token and runtime bot identity.
type TelegramConfig struct {
	Token      string `mapstructure:"token" validate:"required"`
	WebAppLink string `mapstructure:"web_app_link" validate:"omitempty,url"`

	// BotInfo is resolved at startup via GetMe, not read from the file.
	BotInfo *models.User `mapstructure:"-"`
}

// ExtractConfig configures the text-understanding service.
type ExtractConfig struct {
	APIKey      string  `mapstructure:"api_key" validate:"required"`
	ModelName   string  `mapstructure:"model_name" validate:"required"`
	Temperature float32 `mapstructure:"temperature" validate:"min=0,max=2"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// StorageConfig configures the durable object storage for images.
type StorageConfig struct {
	Bucket string `mapstructure:"bucket" validate:"required"`
}

// NotifyConfig paces the notification fan-out. BatchSize recipients are
// messaged back to back, then the sender pauses for BatchPause before the
// next batch, staying under the platform's flood-control ceiling.
type NotifyConfig struct {
	BatchSize  int           `mapstructure:"batch_size" validate:"min=1"`
	BatchPause time.Duration `mapstructure:"batch_pause" validate:"min=0"`
}

// SchedulerConfig holds per-task scheduling configuration.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a named scheduled task with a cron expression.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}
