package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SearchIndex string        `mapstructure:"search_index"`
}

type FeedConfig struct {
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	PageTimeout     time.Duration `mapstructure:"page_timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	UserAgent       string        `mapstructure:"user_agent"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
}

type DiscoveryConfig struct {
	MaxCandidates  int      `mapstructure:"max_candidates"`
	WellKnownPaths []string `mapstructure:"well_known_paths"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dbPath := filepath.Join(homeDir, ".podhound.db")
	searchIndexPath := filepath.Join(homeDir, ".podhound", "index.bleve")

	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8421",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        dbPath,
			Timeout:     1 * time.Second,
			SearchIndex: searchIndexPath,
		},
		Feed: FeedConfig{
			HTTPTimeout:     30 * time.Second,
			PageTimeout:     10 * time.Second,
			RefreshInterval: 5 * time.Minute,
			UserAgent:       "podhound/1.0 (podcast feed aggregator)",
			MaxBodySize:     15 * 1024 * 1024,
		},
		Discovery: DiscoveryConfig{
			MaxCandidates:  20,
			WellKnownPaths: []string{"/feed", "/rss", "/podcast.xml", "/episodes.xml"},
		},
		Log: LogConfig{
			Level: "off",
			Path:  "",
		},
	}
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	cfg := defaultConfig()
	v.SetDefault("server", cfg.Server)
	v.SetDefault("database", cfg.Database)
	v.SetDefault("feed", cfg.Feed)
	v.SetDefault("discovery", cfg.Discovery)
	v.SetDefault("log", cfg.Log)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "podhound")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PODHOUND")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	return &config, nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

// expandPaths expands all paths in the config
func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.SearchIndex = expandPath(cfg.Database.SearchIndex)
	cfg.Log.Path = expandPath(cfg.Log.Path)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Convert durations to strings for TOML readability
	serverCfg := map[string]interface{}{
		"addr":             config.Server.Addr,
		"shutdown_timeout": config.Server.ShutdownTimeout.String(),
	}

	dbCfg := map[string]interface{}{
		"path":         config.Database.Path,
		"timeout":      config.Database.Timeout.String(),
		"search_index": config.Database.SearchIndex,
	}

	feedCfg := map[string]interface{}{
		"http_timeout":     config.Feed.HTTPTimeout.String(),
		"page_timeout":     config.Feed.PageTimeout.String(),
		"refresh_interval": config.Feed.RefreshInterval.String(),
		"user_agent":       config.Feed.UserAgent,
		"max_body_size":    config.Feed.MaxBodySize,
	}

	v.Set("server", serverCfg)
	v.Set("database", dbCfg)
	v.Set("feed", feedCfg)
	v.Set("discovery", config.Discovery)
	v.Set("log", config.Log)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
