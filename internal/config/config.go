// Package config loads StoryNest client configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the sync core.
type Config struct {
	Storage      StorageConfig      `mapstructure:"storage"`
	API          APIConfig          `mapstructure:"api"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// StorageConfig configures the local cache.
type StorageConfig struct {
	DataDir       string `mapstructure:"data_dir"`
	AudioCacheDir string `mapstructure:"audio_cache_dir"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

// APIConfig configures the remote gateway.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig configures the sync manager.
type SyncConfig struct {
	AutoSync   bool          `mapstructure:"auto_sync"`
	Interval   time.Duration `mapstructure:"interval"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// ConnectivityConfig configures the reachability probe.
type ConnectivityConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.audio_cache_dir", "./data/audio")
	v.SetDefault("storage.encryption_key", "")
	v.SetDefault("api.base_url", "http://localhost:8080/api/v1")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("sync.auto_sync", true)
	v.SetDefault("sync.interval", 15*time.Minute)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("connectivity.probe_interval", 10*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration from the given file, falling back to defaults
// and STORYNEST_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STORYNEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Sync.Interval <= 0 {
		return nil, fmt.Errorf("sync.interval must be positive, got %s", cfg.Sync.Interval)
	}

	return &cfg, nil
}
