// Package config loads coderunner settings from defaults, an optional
// coderunner.yaml and CODERUNNER_* environment variables, in rising priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names.
const (
	BackendDocker = "docker"
	BackendCLI    = "cli"
)

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RuntimeConfig struct {
	Backend     string `mapstructure:"backend"`
	DockerBin   string `mapstructure:"docker_bin"`
	PullImages  bool   `mapstructure:"pull_images"`
	OutputLimit int    `mapstructure:"output_limit"`
	// CleanupTimeout bounds each kill and each removal of a sandbox, in seconds.
	CleanupTimeout int `mapstructure:"cleanup_timeout"`
}

type WorkspaceConfig struct {
	Root string `mapstructure:"root"`
}

// ExecutionConfig holds timeouts in whole seconds.
type ExecutionConfig struct {
	DefaultTimeout int `mapstructure:"default_timeout"`
	MaxTimeout     int `mapstructure:"max_timeout"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Storage   StorageConfig   `mapstructure:"storage"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// Load reads the configuration. An explicit path must exist; otherwise a
// missing coderunner.yaml is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("coderunner")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.coderunner")
	}

	v.SetEnvPrefix("CODERUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("runtime.backend", BackendDocker)
	v.SetDefault("runtime.docker_bin", "docker")
	v.SetDefault("runtime.pull_images", false)
	v.SetDefault("runtime.output_limit", 64*1024)
	v.SetDefault("runtime.cleanup_timeout", 10)
	v.SetDefault("workspace.root", filepath.Join(os.TempDir(), "coderunner"))
	v.SetDefault("execution.default_timeout", 5)
	v.SetDefault("execution.max_timeout", 30)
	v.SetDefault("storage.db_path", filepath.Join("data", "coderunner.db"))
	v.SetDefault("ratelimit.rps", 5.0)
	v.SetDefault("ratelimit.burst", 10)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Runtime.Backend {
	case BackendDocker, BackendCLI:
	default:
		return fmt.Errorf("runtime.backend must be %q or %q, got %q", BackendDocker, BackendCLI, c.Runtime.Backend)
	}
	if c.Runtime.OutputLimit < 0 {
		return fmt.Errorf("runtime.output_limit must not be negative")
	}
	if c.Runtime.CleanupTimeout <= 0 {
		return fmt.Errorf("runtime.cleanup_timeout must be positive")
	}
	if c.Execution.DefaultTimeout <= 0 {
		return fmt.Errorf("execution.default_timeout must be positive")
	}
	if c.Execution.MaxTimeout < c.Execution.DefaultTimeout {
		return fmt.Errorf("execution.max_timeout (%d) is below execution.default_timeout (%d)",
			c.Execution.MaxTimeout, c.Execution.DefaultTimeout)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}
	return nil
}

// DefaultTimeout returns execution.default_timeout as a duration.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Execution.DefaultTimeout) * time.Second
}

// MaxTimeout returns execution.max_timeout as a duration.
func (c *Config) MaxTimeout() time.Duration {
	return time.Duration(c.Execution.MaxTimeout) * time.Second
}

// CleanupTimeout returns runtime.cleanup_timeout as a duration.
func (c *Config) CleanupTimeout() time.Duration {
	return time.Duration(c.Runtime.CleanupTimeout) * time.Second
}

// responseMargin covers staging, log collection and writing the body.
const responseMargin = 10 * time.Second

// WriteTimeout is the HTTP write deadline. A run may take the full
// max_timeout, then a kill and a forced removal each bounded by
// cleanup_timeout, before its result is written.
func (c *Config) WriteTimeout() time.Duration {
	return c.MaxTimeout() + 2*c.CleanupTimeout() + responseMargin
}
