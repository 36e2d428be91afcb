package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Storage    StorageConfig    `mapstructure:"storage"`
	API        APIConfig        `mapstructure:"api"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// TelegramConfig holds the bot and broadcast channel configuration
type TelegramConfig struct {
	BotToken  string `mapstructure:"bot_token"`
	ChannelID int64  `mapstructure:"channel_id"` // 0 = no broadcast channel
	Enabled   bool   `mapstructure:"enabled"`
}

// PolymarketConfig holds Polymarket API configuration
type PolymarketConfig struct {
	GammaAPIURL    string        `mapstructure:"gamma_api_url"`
	GrokAPIURL     string        `mapstructure:"grok_api_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ContextTimeout time.Duration `mapstructure:"context_timeout"`
	FetchLimit     int           `mapstructure:"fetch_limit"`
	BootstrapLimit int           `mapstructure:"bootstrap_limit"`
}

// MonitorConfig holds the scheduler intervals and detection thresholds
type MonitorConfig struct {
	EventCheckInterval  time.Duration `mapstructure:"event_check_interval"`
	AlertCheckInterval  time.Duration `mapstructure:"alert_check_interval"`
	NewsTick            time.Duration `mapstructure:"news_tick"`
	NewsInitialDelay    time.Duration `mapstructure:"news_initial_delay"`
	DefaultNewsInterval time.Duration `mapstructure:"default_news_interval"`
	MinNewsInterval     time.Duration `mapstructure:"min_news_interval"`
	NewEventMaxAge      time.Duration `mapstructure:"new_event_max_age"`
	HighVolumeThreshold float64       `mapstructure:"high_volume_threshold"`
	MaxSeenEvents       int           `mapstructure:"max_seen_events"`
	MaxPostedEvents     int           `mapstructure:"max_posted_events"`
	SendDelay           time.Duration `mapstructure:"send_delay"`
	FetchDelay          time.Duration `mapstructure:"fetch_delay"`
	ContextFetchDelay   time.Duration `mapstructure:"context_fetch_delay"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// APIConfig holds the extension-sync HTTP API configuration
type APIConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	SecretKey string `mapstructure:"secret_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("POLYDICTIONS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Telegram defaults
	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.channel_id", 0)

	// Polymarket defaults
	v.SetDefault("polymarket.gamma_api_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.grok_api_url", "https://polymarket.com/api/grok/event-summary")
	v.SetDefault("polymarket.timeout", "15s")
	v.SetDefault("polymarket.context_timeout", "120s")
	v.SetDefault("polymarket.fetch_limit", 20)
	v.SetDefault("polymarket.bootstrap_limit", 100)

	// Monitor defaults
	v.SetDefault("monitor.event_check_interval", "60s")
	v.SetDefault("monitor.alert_check_interval", "30s")
	v.SetDefault("monitor.news_tick", "30s")
	v.SetDefault("monitor.news_initial_delay", "60s")
	v.SetDefault("monitor.default_news_interval", "5m")
	v.SetDefault("monitor.min_news_interval", "3m")
	v.SetDefault("monitor.new_event_max_age", "48h")
	v.SetDefault("monitor.high_volume_threshold", 50000.0)
	v.SetDefault("monitor.max_seen_events", 10000)
	v.SetDefault("monitor.max_posted_events", 50)
	v.SetDefault("monitor.send_delay", "100ms")
	v.SetDefault("monitor.fetch_delay", "500ms")
	v.SetDefault("monitor.context_fetch_delay", "2s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/polydictions.db")

	// API defaults
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8765)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}

	if c.Polymarket.GammaAPIURL == "" {
		return fmt.Errorf("polymarket.gamma_api_url is required")
	}
	if c.Polymarket.GrokAPIURL == "" {
		return fmt.Errorf("polymarket.grok_api_url is required")
	}
	if c.Polymarket.Timeout < time.Second {
		return fmt.Errorf("polymarket.timeout must be at least 1 second")
	}
	if c.Polymarket.ContextTimeout < time.Second {
		return fmt.Errorf("polymarket.context_timeout must be at least 1 second")
	}
	if c.Polymarket.FetchLimit < 1 || c.Polymarket.FetchLimit > 500 {
		return fmt.Errorf("polymarket.fetch_limit must be between 1 and 500")
	}
	if c.Polymarket.BootstrapLimit < c.Polymarket.FetchLimit {
		return fmt.Errorf("polymarket.bootstrap_limit must be at least polymarket.fetch_limit")
	}

	if c.Monitor.EventCheckInterval < 10*time.Second {
		return fmt.Errorf("monitor.event_check_interval must be at least 10 seconds")
	}
	if c.Monitor.AlertCheckInterval < 10*time.Second {
		return fmt.Errorf("monitor.alert_check_interval must be at least 10 seconds")
	}
	if c.Monitor.NewsTick < 5*time.Second {
		return fmt.Errorf("monitor.news_tick must be at least 5 seconds")
	}
	if c.Monitor.MinNewsInterval < time.Minute {
		return fmt.Errorf("monitor.min_news_interval must be at least 1 minute")
	}
	if c.Monitor.DefaultNewsInterval < c.Monitor.MinNewsInterval {
		return fmt.Errorf("monitor.default_news_interval must be at least monitor.min_news_interval")
	}
	if c.Monitor.NewEventMaxAge < time.Hour {
		return fmt.Errorf("monitor.new_event_max_age must be at least 1 hour")
	}
	if c.Monitor.HighVolumeThreshold < 0 {
		return fmt.Errorf("monitor.high_volume_threshold must not be negative")
	}
	if c.Monitor.MaxSeenEvents < 100 {
		return fmt.Errorf("monitor.max_seen_events must be at least 100")
	}
	if c.Monitor.MaxPostedEvents < 1 {
		return fmt.Errorf("monitor.max_posted_events must be at least 1")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	if c.API.Enabled {
		if c.API.Host == "" {
			return fmt.Errorf("api.host is required when api is enabled")
		}
		if c.API.Port < 1 || c.API.Port > 65535 {
			return fmt.Errorf("api.port must be between 1 and 65535")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
