package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (PPINDEX_*)
// 2. Config file (.ppindex/config.yml or .ppindex/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(l.rootDir, ".ppindex"))

	v.SetEnvPrefix("PPINDEX")
	v.AutomaticEnv()
	// PPINDEX_PREPROCESSOR_MAX_INCLUDE_DEPTH -> preprocessor.max_include_depth
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("preprocessor.include_paths")
	v.BindEnv("preprocessor.system_include_paths")
	v.BindEnv("preprocessor.defines")
	v.BindEnv("preprocessor.max_include_depth")
	v.BindEnv("index.parallel")
	v.BindEnv("index.workers")
	v.BindEnv("storage.db_path")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("preprocessor.include_paths", defaults.Preprocessor.IncludePaths)
	v.SetDefault("preprocessor.system_include_paths", defaults.Preprocessor.SystemIncludePaths)
	v.SetDefault("preprocessor.defines", defaults.Preprocessor.Defines)
	v.SetDefault("preprocessor.max_include_depth", defaults.Preprocessor.MaxIncludeDepth)

	v.SetDefault("paths.units", defaults.Paths.Units)
	v.SetDefault("paths.ignore", defaults.Paths.Ignore)

	v.SetDefault("index.parallel", defaults.Index.Parallel)
	v.SetDefault("index.workers", defaults.Index.Workers)

	v.SetDefault("storage.db_path", defaults.Storage.DBPath)
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
