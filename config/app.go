package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/leeforge/mapcrop/http/middleware"
	"github.com/leeforge/mapcrop/logging"
	"github.com/leeforge/mapcrop/utils"
)

// PNG compression names accepted by image.png-compression.
const (
	CompressionDefault = "default"
	CompressionNone    = "none"
	CompressionFast    = "fast"
	CompressionBest    = "best"
)

// AppConfig is the full service configuration.
type AppConfig struct {
	Server  ServerConfig          `mapstructure:"server" yaml:"server"`
	Image   ImageConfig           `mapstructure:"image" yaml:"image"`
	CORS    middleware.CORSConfig `mapstructure:"cors" yaml:"cors"`
	Log     logging.Config        `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig         `mapstructure:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" default:":8000"`
	ReadTimeout     time.Duration `mapstructure:"read-timeout" yaml:"read-timeout" default:"15s"`
	WriteTimeout    time.Duration `mapstructure:"write-timeout" yaml:"write-timeout" default:"30s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" yaml:"shutdown-timeout" default:"10s"`
	// MaxConcurrentRequests caps in-flight requests; 0 disables the cap.
	MaxConcurrentRequests int `mapstructure:"max-concurrent-requests" yaml:"max-concurrent-requests" default:"0"`
	// BacklogTimeout is how long a request waits for a free slot before a 429.
	BacklogTimeout time.Duration `mapstructure:"backlog-timeout" yaml:"backlog-timeout" default:"30s"`
}

type ImageConfig struct {
	// Path of the base image. Relative paths resolve against the binary's directory.
	Path           string `mapstructure:"path" yaml:"path" default:"static/base-world.jpg"`
	Preload        bool   `mapstructure:"preload" yaml:"preload" default:"false"`
	PNGCompression string `mapstructure:"png-compression" yaml:"png-compression" default:"default"`
}

// ResolvedPath returns Path made absolute against the install location.
func (c ImageConfig) ResolvedPath() string {
	return utils.ResolveInstallPath(c.Path)
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" default:"true"`
}

// Validate checks values that defaults cannot fix.
func (c *AppConfig) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Server.Addr) == "" {
		problems = append(problems, "server.addr must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		problems = append(problems, "server.read-timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		problems = append(problems, "server.write-timeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		problems = append(problems, "server.shutdown-timeout must be positive")
	}
	if c.Server.MaxConcurrentRequests < 0 {
		problems = append(problems, "server.max-concurrent-requests must not be negative")
	}
	if c.Server.BacklogTimeout <= 0 {
		problems = append(problems, "server.backlog-timeout must be positive")
	}
	if strings.TrimSpace(c.Image.Path) == "" {
		problems = append(problems, "image.path must not be empty")
	}
	switch c.Image.PNGCompression {
	case CompressionDefault, CompressionNone, CompressionFast, CompressionBest:
	default:
		problems = append(problems, fmt.Sprintf("image.png-compression %q is not one of default, none, fast, best", c.Image.PNGCompression))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Load reads, defaults and validates the application config.
func Load(optsArr ...ConfigOptions) (*AppConfig, *Config, error) {
	cfg, err := NewConfig(optsArr...)
	if err != nil {
		return nil, nil, err
	}

	app := &AppConfig{}
	if err := cfg.BindWithDefaults(app); err != nil {
		return nil, nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, nil, err
	}
	return app, cfg, nil
}
