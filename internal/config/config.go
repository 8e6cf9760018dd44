// Package config loads gqlc settings from defaults, a YAML file, GQLC_
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/ir"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nesting levels: GQLC_LIMITS__MAX_BLOCKS sets limits.max_blocks.
const EnvPrefix = "GQLC_"

// Defaults.
const (
	DefaultFormat      = "text"
	DefaultLogLevel    = "info"
	DefaultConcurrency = 4
)

// configNames are searched in the working directory when no file is given.
var configNames = []string{"gqlc.yaml", "gqlc.yml"}

// Config is the merged configuration.
type Config struct {
	Schema      string        `koanf:"schema"`
	Backend     string        `koanf:"backend"`
	Format      string        `koanf:"format"`
	Concurrency int           `koanf:"concurrency"`
	Limits      ir.Limits     `koanf:"limits"`
	Log         LogConfig     `koanf:"log"`
	Runner      RunnerConfig  `koanf:"runner"`
	Metrics     MetricsConfig `koanf:"metrics"`
	Cache       CacheConfig   `koanf:"cache"`

	// File is the config file that was read, or "".
	File string `koanf:"-"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	Level string `koanf:"level"`
}

// RunnerConfig holds execution endpoints.
type RunnerConfig struct {
	// DSN is a sqlite file path or a postgres connection string.
	DSN   string      `koanf:"dsn"`
	Neo4j Neo4jConfig `koanf:"neo4j"`
}

// Neo4jConfig is the bolt endpoint for the cypher runner.
type Neo4jConfig struct {
	URI      string `koanf:"uri"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
}

// MetricsConfig selects where compile metrics are written.
type MetricsConfig struct {
	File string `koanf:"file"`
}

// CacheConfig locates the persistent compile cache. An empty Path disables
// caching.
type CacheConfig struct {
	Path string `koanf:"path"`
}

// flagKeys maps flag names to config keys where the two differ.
var flagKeys = map[string]string{
	"dsn":          "runner.dsn",
	"metrics-file": "metrics.file",
	"cache":        "cache.path",
}

// findConfigFile returns explicit, or the first config file present in the
// working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range configNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load merges every configuration layer. flags may be nil; only flags the
// user set override lower layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	limits := ir.DefaultLimits()
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"format":                     DefaultFormat,
		"concurrency":                DefaultConcurrency,
		"log.level":                  DefaultLogLevel,
		"limits.max_traversal_depth": limits.MaxTraversalDepth,
		"limits.max_blocks":          limits.MaxBlocks,
		"limits.max_recurse_depth":   limits.MaxRecurseDepth,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment: GQLC_RUNNER__NEO4J__URI -> runner.neo4j.uri
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			if f.Name == "verbose" {
				if v, _ := flags.GetBool("verbose"); v {
					return "log.level", "debug"
				}
				return "", nil
			}
			if key, ok := flagKeys[f.Name]; ok {
				return key, posflag.FlagVal(flags, f)
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values that the type system does not.
func (c *Config) Validate() error {
	if c.Backend != "" {
		if _, err := backend.Parse(c.Backend); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	switch c.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: format must be json or text, got %q", c.Format)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be at least 1, got %d", c.Concurrency)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// BackendID returns the configured backend, or "" when none is set.
func (c *Config) BackendID() backend.ID {
	id, _ := backend.Parse(c.Backend)
	return id
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: invalid log.level %q", c.Log.Level)
	}
	return lvl, nil
}
