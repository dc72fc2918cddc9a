// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Search     SearchConfig     `mapstructure:"search"`
	AutoSearch AutoSearchConfig `mapstructure:"autosearch"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Import     ImportConfig     `mapstructure:"import"`
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
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// SearchConfig holds indexer search configuration.
type SearchConfig struct {
	IndexerTimeout   time.Duration `mapstructure:"indexer_timeout"`   // per-indexer call timeout
	AggregateTimeout time.Duration `mapstructure:"aggregate_timeout"` // deadline for the whole fan-out
	PerIndexerLimit  int           `mapstructure:"per_indexer_limit"` // max results kept per indexer
}

// AutoSearchConfig holds automatic search configuration.
type AutoSearchConfig struct {
	Workers         int           `mapstructure:"workers"` // concurrency bound for SearchAllMonitored
	Cron            string        `mapstructure:"cron"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	CompletionCron  string        `mapstructure:"completion_cron"` // download status poll schedule
	CompletionLimit int           `mapstructure:"completion_limit"`
}

// CacheConfig holds format match cache configuration.
type CacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	SweepCron  string        `mapstructure:"sweep_cron"`
}

// ImportConfig holds file import configuration.
type ImportConfig struct {
	NamingTemplate  string `mapstructure:"naming_template"`
	MinFreeSpaceMB  int64  `mapstructure:"min_free_space_mb"`
	SkipFreeSpace   bool   `mapstructure:"skip_free_space"`
	FormatRulesPath string `mapstructure:"format_rules_path"` // YAML seed for custom formats
	DeleteAfterMove bool   `mapstructure:"delete_after_move"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 7878},
		Database: DatabaseConfig{Path: "./data/sportarr.db"},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
		Search: SearchConfig{
			IndexerTimeout:   30 * time.Second,
			AggregateTimeout: 60 * time.Second,
			PerIndexerLimit:  100,
		},
		AutoSearch: AutoSearchConfig{
			Workers:         3,
			Cron:            "0 */6 * * *",
			BackoffBase:     30 * time.Minute,
			BackoffMax:      24 * time.Hour,
			CompletionCron:  "* * * * *",
			CompletionLimit: 50,
		},
		Cache: CacheConfig{
			MaxEntries: 2000,
			MaxAge:     12 * time.Hour,
			SweepCron:  "*/15 * * * *",
		},
		Import: ImportConfig{
			NamingTemplate: "{Event Title} - {Part} - {Quality}",
			MinFreeSpaceMB: 100,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults.
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
		v.AddConfigPath("$HOME/.sportarr")
	}

	v.SetEnvPrefix("SPORTARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("search.indexer_timeout", d.Search.IndexerTimeout)
	v.SetDefault("search.aggregate_timeout", d.Search.AggregateTimeout)
	v.SetDefault("search.per_indexer_limit", d.Search.PerIndexerLimit)
	v.SetDefault("autosearch.workers", d.AutoSearch.Workers)
	v.SetDefault("autosearch.cron", d.AutoSearch.Cron)
	v.SetDefault("autosearch.backoff_base", d.AutoSearch.BackoffBase)
	v.SetDefault("autosearch.backoff_max", d.AutoSearch.BackoffMax)
	v.SetDefault("autosearch.completion_cron", d.AutoSearch.CompletionCron)
	v.SetDefault("autosearch.completion_limit", d.AutoSearch.CompletionLimit)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.max_age", d.Cache.MaxAge)
	v.SetDefault("cache.sweep_cron", d.Cache.SweepCron)
	v.SetDefault("import.naming_template", d.Import.NamingTemplate)
	v.SetDefault("import.min_free_space_mb", d.Import.MinFreeSpaceMB)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
