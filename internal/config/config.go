// Package config loads loadplan settings from loadplan.yaml, LOADPLAN_*
// environment variables and built-in defaults.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const (
	maxWalkDepth = 25
	envPrefix    = "LOADPLAN"
)

// FileNames are the config file names tried in each directory, in order.
var FileNames = []string{"loadplan.yaml", "loadplan.yml"}

// Config is the effective loadplan configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database" json:"database"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	Plan     PlanConfig     `mapstructure:"plan" yaml:"plan" json:"plan"`
	Verify   VerifyConfig   `mapstructure:"verify" yaml:"verify" json:"verify"`
}

// DatabaseConfig selects the store driver.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"` // sqlite3 or pgx
	DSN    string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"` // console or json
	File   string `mapstructure:"file" yaml:"file" json:"file"`       // empty logs to stderr only
}

// PlanConfig bounds select-tree construction.
type PlanConfig struct {
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth" json:"max_depth"`
}

// VerifyConfig holds defaults for query-count verification.
type VerifyConfig struct {
	AllowQueriesPerRecord int `mapstructure:"allow_queries_per_record" yaml:"allow_queries_per_record" json:"allow_queries_per_record"`
}

var (
	validDrivers    = []string{"sqlite3", "pgx"}
	validLogFormats = []string{"console", "json"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
)

// Load discovers and loads configuration with precedence
// env > config file > defaults.
//
// Returns the loaded config, the path of the config file (empty if none
// was found) and any error encountered.
func Load(explicitPath string) (*Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := findConfigFile(explicitPath)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, path, errors.Wrap(err, "reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, path, errors.Wrap(err, "unmarshaling config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return &cfg, path, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"},
		Log:      LogConfig{Level: "info", Format: "console"},
		Plan:     PlanConfig{MaxDepth: 64},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("plan.max_depth", d.Plan.MaxDepth)
	v.SetDefault("verify.allow_queries_per_record", d.Verify.AllowQueriesPerRecord)
}

// Validate checks enumerated and numeric settings.
func (c *Config) Validate() error {
	if !slices.Contains(validDrivers, c.Database.Driver) {
		return errors.WithHintf(
			errors.Newf("database.driver: unsupported driver %q", c.Database.Driver),
			"valid drivers: %s", strings.Join(validDrivers, ", "))
	}
	if c.Database.Driver == "pgx" && c.Database.DSN == "" {
		return errors.New("database.dsn is required for the pgx driver")
	}
	if !slices.Contains(validLogLevels, strings.ToLower(c.Log.Level)) {
		return errors.WithHintf(
			errors.Newf("log.level: unknown level %q", c.Log.Level),
			"valid levels: %s", strings.Join(validLogLevels, ", "))
	}
	if !slices.Contains(validLogFormats, c.Log.Format) {
		return errors.WithHintf(
			errors.Newf("log.format: unknown format %q", c.Log.Format),
			"valid formats: %s", strings.Join(validLogFormats, ", "))
	}
	if c.Plan.MaxDepth <= 0 {
		return errors.Newf("plan.max_depth must be positive, got %d", c.Plan.MaxDepth)
	}
	if c.Verify.AllowQueriesPerRecord < 0 {
		return errors.Newf("verify.allow_queries_per_record must be non-negative, got %d", c.Verify.AllowQueriesPerRecord)
	}
	return nil
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for loadplan.yaml or loadplan.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", errors.Newf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "getting cwd")
	}

	dir := cwd
	for range maxWalkDepth {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		// Repo boundary
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}
