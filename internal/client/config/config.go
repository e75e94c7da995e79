// Package config handles configuration for the client component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the history client.
//
// Fields:
//   - ServerEndpointAddr: base URL of the sync backend API.
//   - DatabasePath: path of the local SQLite history database.
//   - SyncInterval: period of the continuous sync timer.
//   - OnlineCheckInterval: how often connectivity is probed.
//   - ResumeGracePeriod: delay before sync resumes after the machine wakes
//     from suspend, to let the network stack come back first.
//   - MaxLevenshteinDistance: edit-distance threshold for merge candidates.
//   - RecordsToScanForMerge: cap on how many recent records the candidate
//     finder scans (the scan is quadratic).
type Config struct {
	ServerEndpointAddr     string
	DatabasePath           string
	SyncInterval           time.Duration
	OnlineCheckInterval    time.Duration
	ResumeGracePeriod      time.Duration
	MaxLevenshteinDistance int
	RecordsToScanForMerge  int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabasePath = "history.db"
	c.SyncInterval = 60 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.ResumeGracePeriod = 10 * time.Second
	c.MaxLevenshteinDistance = 2
	c.RecordsToScanForMerge = 10000
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
