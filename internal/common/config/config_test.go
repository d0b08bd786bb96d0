package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "agentrun", cfg.Mongo.Database)
	assert.Equal(t, "sqlite3", cfg.History.Driver)
	assert.Equal(t, "./agentrun.db", cfg.History.Path)
	assert.Empty(t, cfg.NATS.URL, "in-memory bus by default")
	assert.Empty(t, cfg.Telegram.BotToken)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.True(t, cfg.Scheduler.StartAutomatically)
	assert.Equal(t, 60, cfg.Scheduler.TickInterval)
	assert.Equal(t, 1000, cfg.Executor.MaxSteps)
	assert.Equal(t, 1440, cfg.Executor.PausedTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "30s", cfg.Server.ReadTimeoutDuration().String())
	assert.Equal(t, "1m0s", cfg.Scheduler.Tick().String())
	assert.Equal(t, "24h0m0s", cfg.Executor.PausedTTLDuration().String())
	assert.Equal(t, "10m0s", cfg.Executor.SweepIntervalDuration().String())
}

func TestValidate(t *testing.T) {
	valid, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"missing mongo uri", func(c *Config) { c.Mongo.URI = "" }, "mongo.uri"},
		{"unknown history driver", func(c *Config) { c.History.Driver = "mysql" }, "history.driver"},
		{"pgx without dsn", func(c *Config) { c.History.Driver = "pgx"; c.History.DSN = "" }, "history.dsn"},
		{"zero tick", func(c *Config) { c.Scheduler.TickInterval = 0 }, "tickInterval"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *valid
			tc.mutate(&cfg)
			err := validate(&cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errSub)
		})
	}
}
