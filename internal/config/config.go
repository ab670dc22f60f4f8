package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken     string        `envconfig:"BOT_TOKEN" required:"true"`
	DBPath       string        `envconfig:"DB_PATH" default:"./data/hippo.db"`
	DefaultTZ    string        `envconfig:"DEFAULT_TZ" default:"Asia/Singapore"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`   // debug|info|warn|error
	HTTPAddr     string        `envconfig:"HTTP_ADDR" default:":8080"`  // healthz
	ReminderTTL  time.Duration `envconfig:"REMINDER_TTL" default:"30m"` // how long a reminder waits for acknowledgment
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
