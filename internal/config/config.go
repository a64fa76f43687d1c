// Package config loads and validates application configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Library        LibraryConfig        `mapstructure:"library"`
	Requests       RequestsConfig       `mapstructure:"requests"`
	Orchestrator   OrchestratorConfig   `mapstructure:"orchestrator"`
	Prowlarr       ProwlarrConfig       `mapstructure:"prowlarr"`
	AudioBookBay   AudioBookBayConfig   `mapstructure:"audiobookbay"`
	Indexers       []IndexerConfig      `mapstructure:"indexers"`
	DownloadClient DownloadClientConfig `mapstructure:"download_client"`
	Audiobookshelf AudiobookshelfConfig `mapstructure:"audiobookshelf"`
	Notifications  NotificationsConfig  `mapstructure:"notifications"`
	Ranking        RankingConfig        `mapstructure:"ranking"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// LibraryConfig holds library layout configuration.
type LibraryConfig struct {
	Path        string `mapstructure:"path"`
	DownloadDir string `mapstructure:"download_dir"`
}

// RequestsConfig holds request intake behavior.
type RequestsConfig struct {
	ApprovalRequired bool `mapstructure:"approval_required"`
	AutoSearch       bool `mapstructure:"auto_search"`
	CompanionEbooks  bool `mapstructure:"companion_ebooks"`
}

// OrchestratorConfig holds job orchestrator tuning.
type OrchestratorConfig struct {
	Workers             int `mapstructure:"workers"`
	MaxAttempts         int `mapstructure:"max_attempts"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	RetryInitialSeconds int `mapstructure:"retry_initial_seconds"`
	RetryMaxSeconds     int `mapstructure:"retry_max_seconds"`
	DownloadPollSeconds int `mapstructure:"download_poll_seconds"`
	DownloadTimeoutMins int `mapstructure:"download_timeout_minutes"`
}

// ProwlarrConfig holds the Prowlarr search backend connection.
type ProwlarrConfig struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AudioBookBayConfig holds the AudioBookBay scraping backend settings.
type AudioBookBayConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BaseURL  string `mapstructure:"base_url"`
	Priority int    `mapstructure:"priority"`
}

// IndexerConfig describes one configured indexer behind a search source.
type IndexerConfig struct {
	ID         int64  `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	Source     string `mapstructure:"source"`
	Priority   int    `mapstructure:"priority"`
	Categories []int  `mapstructure:"categories"`
	Enabled    bool   `mapstructure:"enabled"`
}

// DownloadClientConfig holds the download client connection.
type DownloadClientConfig struct {
	Type     string `mapstructure:"type"` // qbittorrent, sabnzbd, mock
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	APIKey   string `mapstructure:"api_key"`
	UseSSL   bool   `mapstructure:"use_ssl"`
	Category string `mapstructure:"category"`
}

// AudiobookshelfConfig holds the library server integration.
type AudiobookshelfConfig struct {
	URL       string `mapstructure:"url"`
	Token     string `mapstructure:"token"`
	LibraryID string `mapstructure:"library_id"`
}

// NotificationsConfig holds outbound notification targets.
type NotificationsConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds a webhook notification target.
type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Method string `mapstructure:"method"`
}

// FlagBonusConfig awards bonus points for a provider-declared flag.
type FlagBonusConfig struct {
	Flag   string  `mapstructure:"flag"`
	Points float64 `mapstructure:"points"`
}

// RankingConfig holds the data-driven ranking configuration.
type RankingConfig struct {
	RequireAuthor         bool              `mapstructure:"require_author"`
	StopWords             []string          `mapstructure:"stop_words"`
	CharacterReplacements map[string]string `mapstructure:"character_replacements"`
	FlagBonuses           []FlagBonusConfig `mapstructure:"flag_bonuses"`
	MinSizeMB             int64             `mapstructure:"min_size_mb"`
}

// Default returns a Config with default values.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.readmeabook")
	}

	v.SetEnvPrefix("READMEABOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8585)

	v.SetDefault("database.path", "./data/readmeabook.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("library.path", "./library")
	v.SetDefault("library.download_dir", "./downloads")

	v.SetDefault("requests.approval_required", false)
	v.SetDefault("requests.auto_search", true)
	v.SetDefault("requests.companion_ebooks", false)

	v.SetDefault("orchestrator.workers", 4)
	v.SetDefault("orchestrator.max_attempts", 3)
	v.SetDefault("orchestrator.poll_interval_seconds", 1)
	v.SetDefault("orchestrator.retry_initial_seconds", 15)
	v.SetDefault("orchestrator.retry_max_seconds", 900)
	v.SetDefault("orchestrator.download_poll_seconds", 5)
	v.SetDefault("orchestrator.download_timeout_minutes", 360)

	v.SetDefault("prowlarr.timeout_seconds", 60)

	v.SetDefault("audiobookbay.enabled", false)
	v.SetDefault("audiobookbay.base_url", "https://audiobookbay.lu")
	v.SetDefault("audiobookbay.priority", 10)

	v.SetDefault("download_client.type", "")
	v.SetDefault("download_client.category", "readmeabook")

	v.SetDefault("notifications.webhook.method", "POST")

	v.SetDefault("ranking.require_author", true)
	v.SetDefault("ranking.min_size_mb", 20)
}

// Validate checks configuration consistency once at the boundary.
// Loosely-validated settings never flow past this point.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Orchestrator.Workers <= 0 {
		return fmt.Errorf("orchestrator workers must be positive")
	}
	if c.Orchestrator.MaxAttempts <= 0 {
		return fmt.Errorf("orchestrator max attempts must be positive")
	}
	if c.Prowlarr.URL != "" && c.Prowlarr.APIKey == "" {
		return fmt.Errorf("prowlarr api_key is required when prowlarr url is set")
	}
	switch c.DownloadClient.Type {
	case "", "mock", "qbittorrent", "sabnzbd":
	default:
		return fmt.Errorf("unknown download client type %q", c.DownloadClient.Type)
	}
	if c.DownloadClient.Type == "sabnzbd" && c.DownloadClient.APIKey == "" {
		return fmt.Errorf("sabnzbd api_key is required")
	}
	for i, idx := range c.Indexers {
		if idx.Priority != 0 && (idx.Priority < 1 || idx.Priority > 25) {
			return fmt.Errorf("indexer %q: priority must be between 1 and 25", idx.Name)
		}
		if idx.Source == "" {
			return fmt.Errorf("indexer at position %d: source is required", i)
		}
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
