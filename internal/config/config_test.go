package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("SessionTTL converts seconds to duration", func(t *testing.T) {
		cfg := &Config{SessionTTLSeconds: 300}
		assert.Equal(t, 5*time.Minute, cfg.SessionTTL())
	})

	t.Run("SweepInterval converts seconds to duration", func(t *testing.T) {
		cfg := &Config{SweepIntervalSeconds: 60}
		assert.Equal(t, time.Minute, cfg.SweepInterval())
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads config with defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, 300, cfg.SessionTTLSeconds)
		assert.Equal(t, 60, cfg.SweepIntervalSeconds)
		assert.Equal(t, 5, cfg.MaxConnectAttempts)
		assert.Equal(t, DeliveryModeWhatsApp, cfg.DeliveryMode)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("loads custom values", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")
		t.Setenv("PORT", "3000")
		t.Setenv("SESSION_TTL_SECONDS", "120")
		t.Setenv("SWEEP_INTERVAL_SECONDS", "15")
		t.Setenv("MAX_CONNECT_ATTEMPTS", "3")
		t.Setenv("DELIVERY_MODE", "queue")
		t.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, 120, cfg.SessionTTLSeconds)
		assert.Equal(t, 15, cfg.SweepIntervalSeconds)
		assert.Equal(t, 3, cfg.MaxConnectAttempts)
		assert.Equal(t, DeliveryModeQueue, cfg.DeliveryMode)
		assert.Equal(t, "debug", cfg.LogLevel)
	})
}

func TestValidate(t *testing.T) {
	valid := Config{
		DeliveryMode:         DeliveryModeWhatsApp,
		SessionTTLSeconds:    300,
		SweepIntervalSeconds: 60,
		MaxConnectAttempts:   5,
	}

	t.Run("accepts valid config", func(t *testing.T) {
		cfg := valid
		assert.NoError(t, cfg.Validate())
	})

	t.Run("queue mode requires redis", func(t *testing.T) {
		cfg := valid
		cfg.DeliveryMode = DeliveryModeQueue
		assert.Error(t, cfg.Validate())

		cfg.RedisURL = "redis://localhost:6379"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects unknown delivery mode", func(t *testing.T) {
		cfg := valid
		cfg.DeliveryMode = "carrier-pigeon"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects non-positive durations", func(t *testing.T) {
		cfg := valid
		cfg.SessionTTLSeconds = 0
		assert.Error(t, cfg.Validate())

		cfg = valid
		cfg.SweepIntervalSeconds = -1
		assert.Error(t, cfg.Validate())

		cfg = valid
		cfg.MaxConnectAttempts = 0
		assert.Error(t, cfg.Validate())
	})
}
