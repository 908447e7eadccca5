// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Recorder RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
}

// LoggerConfig controls the zap logger and its file rotation.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the Chrome instance and page-level timeouts.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	RemoteDebuggerURL string        `mapstructure:"remote_debugger_url" yaml:"remote_debugger_url"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	ResolveTimeout    time.Duration `mapstructure:"resolve_timeout" yaml:"resolve_timeout"`
}

// LLMProvider selects the model backend.
type LLMProvider string

const (
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderGemini    LLMProvider = "gemini"
)

// LLMConfig configures the model client.
type LLMConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	// Requests per second allowed against the provider API.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// AgentConfig bounds the ReAct loop and the conversation window.
type AgentConfig struct {
	MaxIterations        int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	MaxMessages          int           `mapstructure:"max_messages" yaml:"max_messages"`
	LoopDetectionWindow  int           `mapstructure:"loop_detection_window" yaml:"loop_detection_window"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// RecorderConfig tunes the action verification pipeline.
type RecorderConfig struct {
	PendingDeadline    time.Duration `mapstructure:"pending_deadline" yaml:"pending_deadline"`
	EffectWindow       time.Duration `mapstructure:"effect_window" yaml:"effect_window"`
	ScrollSignificance float64       `mapstructure:"scroll_significance" yaml:"scroll_significance"`
	StreamBuffer       int           `mapstructure:"stream_buffer" yaml:"stream_buffer"`
	SnapshotDir        string        `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
}

// ExecutorConfig is the static-plan retry and abort policy. CriticalTools is
// deliberately configuration, not a hard-coded list.
type ExecutorConfig struct {
	MaxRetries             int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBaseDelay         time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	InterStepDelay         time.Duration `mapstructure:"inter_step_delay" yaml:"inter_step_delay"`
	CriticalTools          []string      `mapstructure:"critical_tools" yaml:"critical_tools"`
}

// StoreConfig selects and configures session persistence.
type StoreConfig struct {
	// "sqlite" (default, local file) or "postgres".
	Backend  string         `mapstructure:"backend" yaml:"backend"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// SQLiteConfig locates the local database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig holds the connection parameters for the Postgres backend.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	SSLMode  string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
}

// DSN renders the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// SetDefaults initializes default values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pagepilot")
	v.SetDefault("logger.log_file", "pagepilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.resolve_timeout", "10s")

	// -- LLM --
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.rate_limit", 1.0)

	// -- Agent --
	v.SetDefault("agent.max_iterations", 30)
	v.SetDefault("agent.max_consecutive_errors", 3)
	v.SetDefault("agent.max_messages", 40)
	v.SetDefault("agent.loop_detection_window", 3)
	v.SetDefault("agent.cache_ttl", "5m")

	// -- Recorder --
	v.SetDefault("recorder.pending_deadline", "500ms")
	v.SetDefault("recorder.effect_window", "1500ms")
	v.SetDefault("recorder.scroll_significance", 200.0)
	v.SetDefault("recorder.stream_buffer", 256)

	// -- Executor --
	v.SetDefault("executor.max_retries", 3)
	v.SetDefault("executor.retry_base_delay", "1s")
	v.SetDefault("executor.max_consecutive_failures", 3)
	v.SetDefault("executor.inter_step_delay", "500ms")
	v.SetDefault("executor.critical_tools", []string{"navigate", "wait_for_element"})

	// -- Store --
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite.path", defaultSQLitePath())
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "postgres")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.database", "pagepilot")
	v.SetDefault("store.postgres.ssl_mode", "disable")
}

// NewDefaultConfig builds a Config populated with every default value.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

func defaultSQLitePath() string {
	home, err := homedir.Dir()
	if err != nil {
		return "pagepilot.db"
	}
	return filepath.Join(home, ".pagepilot", "sessions.db")
}
