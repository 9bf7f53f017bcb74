// Package config loads flakeboard settings from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a report invocation.
type Config struct {
	// Window is how many of the newest run directories are read.
	Window int `yaml:"window"`

	Vendors struct {
		// Delay follows every screenshot artifact to stay under vendor rate limits.
		Delay       time.Duration `yaml:"delay"`
		HTTPTimeout time.Duration `yaml:"http_timeout"`

		Percy struct {
			BaseURL    string        `yaml:"base_url"`
			RetryDelay time.Duration `yaml:"retry_delay"`
		} `yaml:"percy"`

		PixelEagle struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"pixeleagle"`
	} `yaml:"vendors"`

	Reporting struct {
		OutDir string `yaml:"out_dir"`
	} `yaml:"reporting"`

	Logging struct {
		Format string `yaml:"format"` // "text"|"json"
		Level  string `yaml:"level"`  // "debug"|"info"|"warn"|"error"
	} `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Window = 50
	c.Vendors.Delay = 10 * time.Second
	c.Vendors.HTTPTimeout = 60 * time.Second
	c.Vendors.Percy.BaseURL = "https://percy.io/api/v1"
	c.Vendors.Percy.RetryDelay = 20 * time.Second
	c.Vendors.PixelEagle.BaseURL = "https://pixel-eagle.com"
	c.Reporting.OutDir = "./site"
	c.Logging.Format = "text"
	c.Logging.Level = "info"
	return c
}

// Load reads path (when non-empty) over the defaults, then applies
// FLAKEBOARD_* environment overrides.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func applyEnv(c *Config) error {
	if v := os.Getenv("FLAKEBOARD_WINDOW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLAKEBOARD_WINDOW: %w", err)
		}
		c.Window = n
	}
	if v := os.Getenv("FLAKEBOARD_VENDOR_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FLAKEBOARD_VENDOR_DELAY: %w", err)
		}
		c.Vendors.Delay = d
	}
	if v := os.Getenv("FLAKEBOARD_PERCY_URL"); v != "" {
		c.Vendors.Percy.BaseURL = v
	}
	if v := os.Getenv("FLAKEBOARD_PIXELEAGLE_URL"); v != "" {
		c.Vendors.PixelEagle.BaseURL = v
	}
	if v := os.Getenv("FLAKEBOARD_OUT_DIR"); v != "" {
		c.Reporting.OutDir = v
	}
	if v := os.Getenv("FLAKEBOARD_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("FLAKEBOARD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be a positive integer, got %d", c.Window)
	}
	if c.Vendors.Delay < 0 || c.Vendors.Percy.RetryDelay < 0 {
		return fmt.Errorf("vendor delays must not be negative")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}
