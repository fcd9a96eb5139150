package config

const (
	defaultConfigPath          = "~/.config/wastescan/config.toml"
	defaultStateDir            = "~/.local/share/wastescan"
	defaultLogDir              = "~/.local/share/wastescan/logs"
	defaultAPIBaseURL          = "http://localhost:8000"
	defaultAPITimeoutSeconds   = 30
	defaultHistoryLimit        = 20
	defaultConfidenceThreshold = 0.8
	defaultNtfyTimeout         = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// History store backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Bounds shared with the settings and history packages.
const (
	MinHistoryLimit = 1
	MaxHistoryLimit = 50
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		API: API{
			BaseURL:        defaultAPIBaseURL,
			TimeoutSeconds: defaultAPITimeoutSeconds,
		},
		History: History{
			Limit:       defaultHistoryLimit,
			Backend:     BackendJSON,
			SyncOnStart: true,
		},
		Display: Display{
			ConfidenceThreshold: defaultConfidenceThreshold,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
