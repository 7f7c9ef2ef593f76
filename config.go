package increco

import (
	"os"
	"strconv"
)

// Config tunes the engine's resource policy. It is deliberately small and
// env-driven rather than file-driven, following config/config.go's
// EnvConfig pattern for the teacher's non-CLI, library-shaped config
// structs (as opposed to the CLI's viper-backed configuration, which has no
// counterpart here since this module owns no process entrypoint).
type Config struct {
	// DefaultLRUCapacity bounds each memoized function's memo table unless
	// the function overrides it via Function.SetLRUCapacity. Zero means
	// unbounded.
	DefaultLRUCapacity int
}

// DefaultConfig returns the engine's out-of-the-box tuning.
func DefaultConfig() Config {
	return Config{DefaultLRUCapacity: 0}
}

// ConfigFromEnv overlays DefaultConfig with INCRECO_-prefixed environment
// variables, mirroring EnvConfig.buildKey's prefix convention.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("INCRECO_DEFAULT_LRU_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultLRUCapacity = n
		}
	}
	return cfg
}
