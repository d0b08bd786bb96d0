// Package config provides configuration management for AgentRun.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for AgentRun.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	History   HistoryConfig   `mapstructure:"history"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	LLM       LLMConfig       `mapstructure:"llm"`
	RAG       RAGConfig       `mapstructure:"rag"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Scenarios ScenariosConfig `mapstructure:"scenarios"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// MongoConfig holds MongoDB connection configuration. Scenario, agent and
// scheduled-task documents live here.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	Timeout  int    `mapstructure:"timeout"` // connect timeout in seconds
}

// HistoryConfig holds execution-history store configuration.
// Driver is "sqlite3" (default) or "pgx" for PostgreSQL.
type HistoryConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"` // sqlite database file
	DSN    string `mapstructure:"dsn"`  // postgres connection string
}

// NATSConfig holds NATS messaging configuration.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClusterID     string `mapstructure:"clusterId"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// TelegramConfig holds Telegram Bot API client configuration.
type TelegramConfig struct {
	BotToken string `mapstructure:"botToken"`
	APIBase  string `mapstructure:"apiBase"` // override for tests / proxies
	Timeout  int    `mapstructure:"timeout"` // request timeout in seconds
}

// LLMConfig holds LLM plugin configuration.
// Provider is "openai" (default, also covers OpenAI-compatible endpoints via
// baseUrl) or "anthropic".
type LLMConfig struct {
	Provider     string  `mapstructure:"provider"`
	APIKey       string  `mapstructure:"apiKey"`
	BaseURL      string  `mapstructure:"baseUrl"`
	DefaultModel string  `mapstructure:"defaultModel"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"maxTokens"`
	Timeout      int     `mapstructure:"timeout"` // request timeout in seconds
}

// RAGConfig holds retrieval service configuration.
type RAGConfig struct {
	URL               string `mapstructure:"url"`
	DefaultCollection string `mapstructure:"defaultCollection"`
	TopK              int    `mapstructure:"topK"`
	Timeout           int    `mapstructure:"timeout"` // request timeout in seconds
}

// SchedulerConfig holds the durable task scheduler configuration.
type SchedulerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	TickInterval       int    `mapstructure:"tickInterval"`       // seconds between trigger sweeps
	OnceMargin         int    `mapstructure:"onceMargin"`         // seconds a missed once-task stays dispatchable
	DailyMargin        int    `mapstructure:"dailyMargin"`        // minutes around the wall-clock match
	MinInterval        int    `mapstructure:"minInterval"`        // minutes between re-dispatches of one task
	ExecuteEndpoint    string `mapstructure:"executeEndpoint"`    // base URL for run_agent dispatch
	NotifyEndpoint     string `mapstructure:"notifyEndpoint"`     // messaging endpoint for send_notification
	DispatchTimeout    int    `mapstructure:"dispatchTimeout"`    // seconds per dispatch HTTP call
	StartAutomatically bool   `mapstructure:"startAutomatically"` // start ticking on boot
}

// ExecutorConfig holds scenario executor configuration.
type ExecutorConfig struct {
	MaxSteps      int `mapstructure:"maxSteps"`      // safety bound per execution
	PausedTTL     int `mapstructure:"pausedTtl"`     // minutes a paused scenario survives
	SweepInterval int `mapstructure:"sweepInterval"` // minutes between paused-record sweeps
	StepTimeout   int `mapstructure:"stepTimeout"`   // seconds granted to a single plugin call
}

// ScenariosConfig holds scenario document seeding configuration.
type ScenariosConfig struct {
	SeedDir string `mapstructure:"seedDir"` // directory of YAML scenario documents loaded on boot
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// ConnectTimeout returns the Mongo connect timeout as a time.Duration.
func (m *MongoConfig) ConnectTimeout() time.Duration {
	return time.Duration(m.Timeout) * time.Second
}

// Tick returns the scheduler tick period as a time.Duration.
func (s *SchedulerConfig) Tick() time.Duration {
	return time.Duration(s.TickInterval) * time.Second
}

// PausedTTLDuration returns the paused-scenario TTL as a time.Duration.
func (e *ExecutorConfig) PausedTTLDuration() time.Duration {
	return time.Duration(e.PausedTTL) * time.Minute
}

// SweepIntervalDuration returns the paused-record sweep period as a time.Duration.
func (e *ExecutorConfig) SweepIntervalDuration() time.Duration {
	return time.Duration(e.SweepInterval) * time.Minute
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTRUN_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Mongo defaults
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "agentrun")
	v.SetDefault("mongo.timeout", 10)

	// History defaults - SQLite unless a Postgres DSN is provided
	v.SetDefault("history.driver", "sqlite3")
	v.SetDefault("history.path", "./agentrun.db")
	v.SetDefault("history.dsn", "")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clusterId", "agentrun-cluster")
	v.SetDefault("nats.clientId", "agentrun-client")
	v.SetDefault("nats.maxReconnects", 10)

	// Telegram defaults
	v.SetDefault("telegram.botToken", "")
	v.SetDefault("telegram.apiBase", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 30)

	// LLM defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseUrl", "")
	v.SetDefault("llm.defaultModel", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeout", 120)

	// RAG defaults
	v.SetDefault("rag.url", "")
	v.SetDefault("rag.defaultCollection", "default")
	v.SetDefault("rag.topK", 5)
	v.SetDefault("rag.timeout", 30)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tickInterval", 60)
	v.SetDefault("scheduler.onceMargin", 300)
	v.SetDefault("scheduler.dailyMargin", 5)
	v.SetDefault("scheduler.minInterval", 1)
	v.SetDefault("scheduler.executeEndpoint", "http://localhost:8080")
	v.SetDefault("scheduler.notifyEndpoint", "")
	v.SetDefault("scheduler.dispatchTimeout", 30)
	v.SetDefault("scheduler.startAutomatically", true)

	// Executor defaults
	v.SetDefault("executor.maxSteps", 1000)
	v.SetDefault("executor.pausedTtl", 1440) // 24h
	v.SetDefault("executor.sweepInterval", 10)
	v.SetDefault("executor.stepTimeout", 120)

	// Scenario seeding defaults
	v.SetDefault("scenarios.seedDir", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTRUN_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/agentrun/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("AGENTRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys).
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("telegram.botToken", "TELEGRAM_BOT_TOKEN", "AGENTRUN_TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("llm.apiKey", "AGENTRUN_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.baseUrl", "AGENTRUN_LLM_BASE_URL")
	_ = v.BindEnv("mongo.uri", "AGENTRUN_MONGO_URI")
	_ = v.BindEnv("history.dsn", "AGENTRUN_HISTORY_DSN")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentrun/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
// In development mode (default), most fields are optional.
func validate(cfg *Config) error {
	var errs []string

	// Server validation - always required
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Mongo.URI == "" {
		errs = append(errs, "mongo.uri is required")
	}
	if cfg.Mongo.Database == "" {
		errs = append(errs, "mongo.database is required")
	}

	switch cfg.History.Driver {
	case "sqlite3":
		if cfg.History.Path == "" {
			errs = append(errs, "history.path is required when history.driver is sqlite3")
		}
	case "pgx":
		if cfg.History.DSN == "" {
			errs = append(errs, "history.dsn is required when history.driver is pgx")
		}
	default:
		errs = append(errs, "history.driver must be one of: sqlite3, pgx")
	}

	if cfg.Scheduler.TickInterval <= 0 {
		errs = append(errs, "scheduler.tickInterval must be positive")
	}
	if cfg.Scheduler.MinInterval <= 0 {
		errs = append(errs, "scheduler.minInterval must be positive")
	}
	if cfg.Executor.MaxSteps <= 0 {
		errs = append(errs, "executor.maxSteps must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
