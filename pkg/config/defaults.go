package config

const (
	defaultSyncEnabled       = true
	defaultSyncRetryAttempts = 3
	defaultSyncRetryDelayMS  = 1000

	defaultMaxSearchResults = 25

	defaultAPIListen = ":8765"

	defaultLogLevel = "info"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Sync: SyncConfig{
			Enabled:       defaultSyncEnabled,
			RetryAttempts: defaultSyncRetryAttempts,
			RetryDelayMS:  defaultSyncRetryDelayMS,
		},
		Search: SearchConfig{
			MaxResults: defaultMaxSearchResults,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
	}
}
