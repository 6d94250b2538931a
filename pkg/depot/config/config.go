// Package config loads the depot's runtime configuration, grounded on the
// teacher's viper-based logging.Config pattern (pkg/logging/config.go):
// a plain struct with mapstructure tags, a Validate method, and a Load
// function reading from an already-configured viper instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/modeldepot/depot/pkg/logging"
)

// ConfigKey is the root viper key this config is read from.
const ConfigKey = "depot"

// EnvPrefix is the prefix Load passes to viper.SetEnvPrefix. Load reads
// the whole depot block as one key, so per-field variables such as
// DEPOT_MAXCONCURRENTDOWNLOADS do not override the values from v.
const EnvPrefix = "DEPOT"

// Config holds every tunable named in the spec's configuration surface
// (§6.5), plus the hub endpoint/token C3 needs and the nested ambient
// logging configuration.
type Config struct {
	// ModelsDirectory is the literal models root. No subdirectory is ever
	// auto-appended to it (see the historical path-auto-append bug in
	// identifier.Layout).
	ModelsDirectory string `mapstructure:"modelsDirectory"`

	MaxConcurrentDownloads  int   `mapstructure:"maxConcurrentDownloads"`
	VerifyChecksums         bool  `mapstructure:"verifyChecksums"`
	MinimumFreeDiskSpace    int64 `mapstructure:"minimumFreeDiskSpace"`
	MaxCachedModels         int   `mapstructure:"maxCachedModels"`
	EnableModelCaching      bool  `mapstructure:"enableModelCaching"`
	DefaultTimeoutMs        int   `mapstructure:"defaultTimeoutMs"`
	MaxConcurrentOperations int   `mapstructure:"maxConcurrentOperations"`

	HubEndpoint string `mapstructure:"hubEndpoint"`
	HubToken    string `mapstructure:"hubToken"`

	Logging logging.Config `mapstructure:"logging"`
}

// Default returns the documented defaults, including an OS-appropriate
// local-app-data models directory (spec.md §6.5).
func Default() *Config {
	return &Config{
		ModelsDirectory:         defaultModelsDirectory(),
		MaxConcurrentDownloads:  2,
		VerifyChecksums:         true,
		MinimumFreeDiskSpace:    10 * 1024 * 1024 * 1024, // 10 GiB
		MaxCachedModels:         2,
		EnableModelCaching:      true,
		DefaultTimeoutMs:        30000,
		MaxConcurrentOperations: 1,
		HubEndpoint:             "https://huggingface.co",
	}
}

func defaultModelsDirectory() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "model-depot", "models")
}

// Validate checks invariants the rest of the core assumes hold.
func (c *Config) Validate() error {
	if c.ModelsDirectory == "" {
		return errors.New("modelsDirectory must not be empty")
	}
	if c.MaxConcurrentDownloads < 1 {
		return fmt.Errorf("maxConcurrentDownloads must be >= 1, got %d", c.MaxConcurrentDownloads)
	}
	if c.MaxCachedModels < 1 {
		return fmt.Errorf("maxCachedModels must be >= 1, got %d", c.MaxCachedModels)
	}
	if c.MinimumFreeDiskSpace < 0 {
		return fmt.Errorf("minimumFreeDiskSpace must be >= 0, got %d", c.MinimumFreeDiskSpace)
	}
	if c.MaxConcurrentOperations < 1 {
		return fmt.Errorf("maxConcurrentOperations must be >= 1, got %d", c.MaxConcurrentOperations)
	}
	if c.DefaultTimeoutMs < 1 {
		return fmt.Errorf("defaultTimeoutMs must be >= 1, got %d", c.DefaultTimeoutMs)
	}
	return nil
}

// DefaultTimeout returns DefaultTimeoutMs as a time.Duration for
// convenience at call sites.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMs) * time.Millisecond
}

// Load builds a Config from defaults, overridden by the depot.* key in v
// (file-backed). It enables viper's AutomaticEnv with EnvPrefix, but
// per-field DEPOT_* variables are not applied (see EnvPrefix).
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	cfg := Default()
	if err := v.UnmarshalKey(ConfigKey, cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling %s config: %w", ConfigKey, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
