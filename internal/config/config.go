// Package config loads process settings from CODELISTS_* environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CODELISTS"

type Config struct {
	RulesFile       string        `mapstructure:"RULES_FILE"`
	OutputDir       string        `mapstructure:"OUTPUT_DIR"`
	MirrorDir       string        `mapstructure:"MIRROR_DIR"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	Port            string        `mapstructure:"PORT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogFormat       string        `mapstructure:"LOG_FORMAT"`
	Workers         int           `mapstructure:"WORKERS"`
	FetchTimeout    time.Duration `mapstructure:"FETCH_TIMEOUT"`
	StageTimeout    time.Duration `mapstructure:"STAGE_TIMEOUT"`
	DetectDrift     bool          `mapstructure:"DETECT_DRIFT"`
	ReportDrops     bool          `mapstructure:"REPORT_DROPS"`
	RefreshInterval time.Duration `mapstructure:"REFRESH_INTERVAL"`
}

var keys = []string{
	"RULES_FILE",
	"OUTPUT_DIR",
	"MIRROR_DIR",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"PORT",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"WORKERS",
	"FETCH_TIMEOUT",
	"STAGE_TIMEOUT",
	"DETECT_DRIFT",
	"REPORT_DROPS",
	"REFRESH_INTERVAL",
}

// Load reads the configuration. When path is set the file must exist;
// environment variables override values from the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("OUTPUT_DIR", "codelists")
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("WORKERS", 0) // engine default
	v.SetDefault("FETCH_TIMEOUT", "30s")
	v.SetDefault("STAGE_TIMEOUT", "0s")
	v.SetDefault("DETECT_DRIFT", true)
	v.SetDefault("REPORT_DROPS", true)
	v.SetDefault("REFRESH_INTERVAL", "0s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasDatabase reports whether a Postgres sink is configured.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// Validate checks value ranges that Unmarshal cannot.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be \"console\" or \"json\", got %q", c.LogFormat))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("WORKERS must not be negative, got %d", c.Workers))
	}
	if c.DBMinConns > c.DBMaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns))
	}
	if c.FetchTimeout < 0 || c.StageTimeout < 0 || c.RefreshInterval < 0 {
		errs = append(errs, errors.New("timeouts and intervals must not be negative"))
	}
	return errors.Join(errs...)
}
