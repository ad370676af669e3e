package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DeliveryModeWhatsApp = "whatsapp"
	DeliveryModeQueue    = "queue"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL"`

	// JID of the announcement channel new pairings are subscribed to.
	ChannelJID string `env:"WA_CHANNEL_JID"`

	SessionTTLSeconds    int    `env:"SESSION_TTL_SECONDS" envDefault:"300"`
	SweepIntervalSeconds int    `env:"SWEEP_INTERVAL_SECONDS" envDefault:"60"`
	MaxConnectAttempts   int    `env:"MAX_CONNECT_ATTEMPTS" envDefault:"5"`
	DeliveryMode         string `env:"DELIVERY_MODE" envDefault:"whatsapp"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	switch c.DeliveryMode {
	case DeliveryModeWhatsApp:
	case DeliveryModeQueue:
		if c.RedisURL == "" {
			return fmt.Errorf("DELIVERY_MODE=queue requires REDIS_URL")
		}
	default:
		return fmt.Errorf("DELIVERY_MODE must be %q or %q, got %q",
			DeliveryModeWhatsApp, DeliveryModeQueue, c.DeliveryMode)
	}

	if c.SessionTTLSeconds <= 0 {
		return fmt.Errorf("SESSION_TTL_SECONDS must be positive")
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}
	if c.MaxConnectAttempts <= 0 {
		return fmt.Errorf("MAX_CONNECT_ATTEMPTS must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
