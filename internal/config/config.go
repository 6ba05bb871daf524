// Package config loads ppindex settings from .ppindex/config.yaml with
// PPINDEX_* environment overrides.
package config

import (
	"path/filepath"

	"github.com/jward/ppindex/internal/pp"
)

// Config represents the complete ppindex configuration.
type Config struct {
	Preprocessor PreprocessorConfig `yaml:"preprocessor" mapstructure:"preprocessor"`
	Paths        PathsConfig        `yaml:"paths" mapstructure:"paths"`
	Index        IndexConfig        `yaml:"index" mapstructure:"index"`
	Storage      StorageConfig      `yaml:"storage" mapstructure:"storage"`
}

// PreprocessorConfig mirrors the command line of a compiler invocation.
type PreprocessorConfig struct {
	IncludePaths       []string `yaml:"include_paths" mapstructure:"include_paths"`               // -I
	SystemIncludePaths []string `yaml:"system_include_paths" mapstructure:"system_include_paths"` // -isystem
	Defines            []string `yaml:"defines" mapstructure:"defines"`                           // NAME or NAME=VALUE
	MaxIncludeDepth    int      `yaml:"max_include_depth" mapstructure:"max_include_depth"`
}

// PathsConfig selects translation units.
type PathsConfig struct {
	Units  []string `yaml:"units" mapstructure:"units"`   // glob patterns for unit files
	Ignore []string `yaml:"ignore" mapstructure:"ignore"` // glob patterns to skip
}

// IndexConfig controls the indexing engine.
type IndexConfig struct {
	Parallel bool `yaml:"parallel" mapstructure:"parallel"`
	Workers  int  `yaml:"workers" mapstructure:"workers"` // 0 means runtime.NumCPU
}

// StorageConfig locates the index database.
type StorageConfig struct {
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Preprocessor: PreprocessorConfig{
			IncludePaths:       []string{},
			SystemIncludePaths: []string{},
			Defines:            []string{},
			MaxIncludeDepth:    pp.DefaultMaxIncludeDepth,
		},
		Paths: PathsConfig{
			Units: []string{"**/*.c", "**/*.cc", "**/*.cpp", "**/*.cxx"},
			Ignore: []string{
				"**/.git/**",
				"**/build/**",
				"**/.ppindex/**",
			},
		},
		Index: IndexConfig{
			Parallel: true,
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(".ppindex", "index.db"),
		},
	}
}

// PPConfig converts the preprocessor section. Relative include paths are
// resolved against root.
func (c *Config) PPConfig(root string) pp.Config {
	abs := func(paths []string) []string {
		out := make([]string, 0, len(paths))
		for _, p := range paths {
			if !filepath.IsAbs(p) {
				p = filepath.Join(root, p)
			}
			out = append(out, p)
		}
		return out
	}
	return pp.Config{
		IncludePaths:       abs(c.Preprocessor.IncludePaths),
		SystemIncludePaths: abs(c.Preprocessor.SystemIncludePaths),
		Defines:            append([]string(nil), c.Preprocessor.Defines...),
		MaxIncludeDepth:    c.Preprocessor.MaxIncludeDepth,
	}
}

// DBPath returns the database location, resolved against root when relative.
func (c *Config) DBPath(root string) string {
	if filepath.IsAbs(c.Storage.DBPath) {
		return c.Storage.DBPath
	}
	return filepath.Join(root, c.Storage.DBPath)
}
