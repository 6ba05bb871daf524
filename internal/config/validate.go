package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/jward/ppindex/internal/pp"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration value")

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Preprocessor.MaxIncludeDepth < 0 {
		errs = append(errs, fmt.Errorf("%w: preprocessor.max_include_depth must not be negative, got %d",
			ErrInvalid, cfg.Preprocessor.MaxIncludeDepth))
	}
	for _, d := range cfg.Preprocessor.Defines {
		if _, _, err := pp.ParseDefine(d); err != nil {
			errs = append(errs, fmt.Errorf("%w: preprocessor.defines: %v", ErrInvalid, err))
		}
	}

	if len(cfg.Paths.Units) == 0 {
		errs = append(errs, fmt.Errorf("%w: paths.units needs at least one pattern", ErrInvalid))
	}
	for _, group := range []struct {
		key      string
		patterns []string
	}{
		{"paths.units", cfg.Paths.Units},
		{"paths.ignore", cfg.Paths.Ignore},
	} {
		for _, p := range group.patterns {
			if _, err := glob.Compile(p, '/'); err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: pattern %q: %v", ErrInvalid, group.key, p, err))
			}
		}
	}

	if cfg.Index.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: index.workers must not be negative, got %d", ErrInvalid, cfg.Index.Workers))
	}
	if strings.TrimSpace(cfg.Storage.DBPath) == "" {
		errs = append(errs, fmt.Errorf("%w: storage.db_path is required", ErrInvalid))
	}

	return errors.Join(errs...)
}
