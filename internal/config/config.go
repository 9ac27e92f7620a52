package config

import (
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	OCR     OCRConfig
	Storage StorageConfig
	Drafts  DraftsConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type OCRConfig struct {
	BaseURL string
	Timeout string
}

type StorageConfig struct {
	DataDir string
}

type DraftsConfig struct {
	// SessionDir holds the session draft tier. Empty means a per-boot
	// temporary directory chosen at startup.
	SessionDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		OCR: OCRConfig{
			BaseURL: "http://localhost:9090",
			Timeout: "30s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.garita.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/garita/config.json.
//
// Environment variables (GARITA_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// OCRTimeout parses the configured recognition timeout, falling back to 30s
// on malformed values.
func (c Config) OCRTimeout() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.OCR.Timeout))
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
