package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/engram/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the ENGRAM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (ENGRAM_SYNC_REMOTE, ENGRAM_API_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: ENGRAM_SYNC_REMOTE, ENGRAM_STORAGE_ROOT, etc.
	v.SetEnvPrefix("ENGRAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes a validated Config from the viper precedence chain.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Root: v.GetString("storage.root"),
		},
		Sync: SyncConfig{
			Enabled:       v.GetBool("sync.enabled"),
			Remote:        v.GetString("sync.remote"),
			RetryAttempts: v.GetUint("sync.retry_attempts"),
			RetryDelayMS:  v.GetUint("sync.retry_delay_ms"),
		},
		Search: SearchConfig{
			MaxResults: v.GetUint("search.max_results"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.root", d.Storage.Root)

	// Sync
	v.SetDefault("sync.enabled", d.Sync.Enabled)
	v.SetDefault("sync.remote", d.Sync.Remote)
	v.SetDefault("sync.retry_attempts", d.Sync.RetryAttempts)
	v.SetDefault("sync.retry_delay_ms", d.Sync.RetryDelayMS)

	// Search
	v.SetDefault("search.max_results", d.Search.MaxResults)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Log
	v.SetDefault("log.level", d.Log.Level)
}
