package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:0",
			ShutdownTimeout: 1 * time.Second,
		},
		Database: DatabaseConfig{
			Timeout: 1 * time.Second,
		},
		Feed: FeedConfig{
			HTTPTimeout:     5 * time.Second,
			PageTimeout:     5 * time.Second,
			RefreshInterval: 1 * time.Minute,
			UserAgent:       "podhound-test/1.0",
			MaxBodySize:     15 * 1024 * 1024,
		},
		Discovery: DiscoveryConfig{
			MaxCandidates:  20,
			WellKnownPaths: []string{"/feed", "/rss", "/podcast.xml", "/episodes.xml"},
		},
		Log: LogConfig{Level: "off"},
	}
}
