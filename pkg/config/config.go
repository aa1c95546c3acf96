// Package config loads client configuration from uzoncalc.yaml, a .env file
// and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file discovered from the working
// directory upwards.
const FileName = "uzoncalc.yaml"

// Defaults applied when a value is absent everywhere.
const (
	DefaultServer     = "http://127.0.0.1:18081"
	DefaultAPIPrefix  = "/api/v1"
	DefaultTimeout    = 2 * time.Minute
	DefaultSessionDir = ".uzoncalc/sessions"
)

// Config is the resolved client configuration.
type Config struct {
	Server            string            `yaml:"server,omitempty"`
	APIPrefix         string            `yaml:"apiPrefix,omitempty"`
	Token             string            `yaml:"token,omitempty"`
	Timeout           Duration          `yaml:"timeout,omitempty"`
	Desktop           bool              `yaml:"desktop,omitempty"`
	Silent            bool              `yaml:"silent,omitempty"`
	ValidateResponses bool              `yaml:"validateResponses,omitempty"`
	Endpoints         map[string]string `yaml:"endpoints,omitempty"`
	SessionDir        string            `yaml:"sessionDir,omitempty"`
	Log               LogConfig         `yaml:"log,omitempty"`

	// Path is the file the configuration was read from, if any.
	Path string `yaml:"-"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

// Duration decodes "30s"-style strings from YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Load resolves configuration. When path is empty, uzoncalc.yaml is
// discovered from the working directory upwards; a missing file is not an
// error. A .env file in the working directory is loaded first without
// overriding variables that are already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			path = Discover(cwd)
		}
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// Discover walks up from dir looking for uzoncalc.yaml. Returns "" if none.
func Discover(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	c.Path = path
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("UZONCALC_SERVER"); v != "" {
		c.Server = v
	}
	if v := os.Getenv("UZONCALC_TOKEN"); v != "" {
		c.Token = strings.TrimPrefix(strings.TrimSpace(v), "Bearer ")
	}
	if v := os.Getenv("UZONCALC_API_PREFIX"); v != "" {
		c.APIPrefix = v
	}
	if v := os.Getenv("UZONCALC_DESKTOP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Desktop = b
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server == "" {
		c.Server = DefaultServer
	}
	c.Server = strings.TrimRight(c.Server, "/")
	if c.APIPrefix == "" {
		c.APIPrefix = DefaultAPIPrefix
	}
	if c.Timeout.Duration == 0 {
		c.Timeout.Duration = DefaultTimeout
	}
	if c.SessionDir == "" {
		c.SessionDir = DefaultSessionDir
	}
}

// Write persists the configuration as YAML, used by `uzoncalc user login`
// to remember the token.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
