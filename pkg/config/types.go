package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent engram configuration stored as config.toml
// in the .engram/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	Sync    SyncConfig    `toml:"sync"`
	Search  SearchConfig  `toml:"search"`
	API     APIConfig     `toml:"api"`
	Log     LogConfig     `toml:"log"`
}

// StorageConfig holds memory store settings.
type StorageConfig struct {
	// Root is the store root directory. Empty means the resolved .engram/
	// directory.
	Root string `toml:"root,omitempty"`
}

// SyncConfig holds git mirroring settings.
type SyncConfig struct {
	Enabled       bool   `toml:"enabled"`
	Remote        string `toml:"remote,omitempty"`
	RetryAttempts uint   `toml:"retry_attempts,omitempty"`
	RetryDelayMS  uint   `toml:"retry_delay_ms,omitempty"`
}

// SearchConfig holds search engine settings.
type SearchConfig struct {
	MaxResults uint `toml:"max_results,omitempty"`
}

// APIConfig holds HTTP transport settings for the MCP server.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.root": {
		get: func(c *Config) string { return c.Storage.Root },
		set: func(c *Config, v string) error { c.Storage.Root = v; return nil },
	},
	"sync.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Sync.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for sync.enabled: %w", err)
			}
			c.Sync.Enabled = b
			return nil
		},
	},
	"sync.remote": {
		get: func(c *Config) string { return c.Sync.Remote },
		set: func(c *Config, v string) error { c.Sync.Remote = v; return nil },
	},
	"sync.retry_attempts": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Sync.RetryAttempts), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for sync.retry_attempts: %w", err)
			}
			c.Sync.RetryAttempts = uint(n)
			return nil
		},
	},
	"sync.retry_delay_ms": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Sync.RetryDelayMS), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for sync.retry_delay_ms: %w", err)
			}
			c.Sync.RetryDelayMS = uint(n)
			return nil
		},
	},
	"search.max_results": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Search.MaxResults), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for search.max_results: %w", err)
			}
			c.Search.MaxResults = uint(n)
			return nil
		},
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"log.level": {
		get: func(c *Config) string { return c.Log.Level },
		set: func(c *Config, v string) error { c.Log.Level = v; return nil },
	},
}
