// Package config loads deskmove server settings from defaults, an optional
// YAML file, and DESKMOVE_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/me/deskmove/internal/engine"
	"github.com/me/deskmove/internal/scheduler"
	"github.com/me/deskmove/pkg/graph"
)

// EnvPrefix is prepended to every environment override, e.g.
// DESKMOVE_SCHEDULER_CONCURRENCY.
const EnvPrefix = "DESKMOVE"

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds configuration for the HTTP server and its history store.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`       // Listen address (default ":8080")
	LogLevel  string `mapstructure:"log_level"`  // debug, info, warn, error
	LogFormat string `mapstructure:"log_format"` // text, json
	DBPath    string `mapstructure:"db_path"`    // SQLite history path, ":memory:" for throwaway runs
}

// GatewayConfig selects and configures the directory backend.
type GatewayConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	RateLimit  float64       `mapstructure:"rate_limit"`

	// Simulate replaces the Graph backend with the in-memory tenant.
	Simulate bool `mapstructure:"simulate"`
	// SimulateFixture is a YAML tenant fixture. Empty loads the demo tenant.
	SimulateFixture string `mapstructure:"simulate_fixture"`
}

// SchedulerConfig holds queue limits, poll intervals and stage timeouts.
type SchedulerConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	Concurrency    int           `mapstructure:"concurrency"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	AutoStart      bool          `mapstructure:"auto_start"`

	WaitInterval         time.Duration `mapstructure:"wait_interval"`
	ProvisioningInterval time.Duration `mapstructure:"provisioning_interval"`
	GraceTimeout         time.Duration `mapstructure:"grace_timeout"`
	EndGraceTimeout      time.Duration `mapstructure:"end_grace_timeout"`
	DeprovisionTimeout   time.Duration `mapstructure:"deprovision_timeout"`
	ProvisioningTimeout  time.Duration `mapstructure:"provisioning_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	gc := graph.DefaultConfig()
	ec := engine.DefaultConfig()
	sc := scheduler.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:      ":8080",
			LogLevel:  "info",
			LogFormat: "text",
			DBPath:    "deskmove.db",
		},
		Gateway: GatewayConfig{
			BaseURL:    gc.BaseURL,
			Timeout:    gc.Timeout,
			MaxRetries: gc.MaxRetries,
			RetryDelay: gc.RetryDelay,
			RateLimit:  gc.RateLimit,
		},
		Scheduler: SchedulerConfig{
			TickInterval:         sc.TickInterval,
			Concurrency:          sc.Concurrency,
			MaxConcurrency:       sc.MaxConcurrency,
			AutoStart:            sc.AutoStart,
			WaitInterval:         ec.WaitInterval,
			ProvisioningInterval: ec.ProvisioningInterval,
			GraceTimeout:         ec.GraceTimeout,
			EndGraceTimeout:      ec.EndGraceTimeout,
			DeprovisionTimeout:   ec.DeprovisionTimeout,
			ProvisioningTimeout:  ec.ProvisioningTimeout,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.log_format", d.Server.LogFormat)
	v.SetDefault("server.db_path", d.Server.DBPath)

	v.SetDefault("gateway.base_url", d.Gateway.BaseURL)
	v.SetDefault("gateway.token", "")
	v.SetDefault("gateway.timeout", d.Gateway.Timeout)
	v.SetDefault("gateway.max_retries", d.Gateway.MaxRetries)
	v.SetDefault("gateway.retry_delay", d.Gateway.RetryDelay)
	v.SetDefault("gateway.rate_limit", d.Gateway.RateLimit)
	v.SetDefault("gateway.simulate", false)
	v.SetDefault("gateway.simulate_fixture", "")

	v.SetDefault("scheduler.tick_interval", d.Scheduler.TickInterval)
	v.SetDefault("scheduler.concurrency", d.Scheduler.Concurrency)
	v.SetDefault("scheduler.max_concurrency", d.Scheduler.MaxConcurrency)
	v.SetDefault("scheduler.auto_start", d.Scheduler.AutoStart)
	v.SetDefault("scheduler.wait_interval", d.Scheduler.WaitInterval)
	v.SetDefault("scheduler.provisioning_interval", d.Scheduler.ProvisioningInterval)
	v.SetDefault("scheduler.grace_timeout", d.Scheduler.GraceTimeout)
	v.SetDefault("scheduler.end_grace_timeout", d.Scheduler.EndGraceTimeout)
	v.SetDefault("scheduler.deprovision_timeout", d.Scheduler.DeprovisionTimeout)
	v.SetDefault("scheduler.provisioning_timeout", d.Scheduler.ProvisioningTimeout)
}

// Load reads configuration from path (optional) and the environment.
// A missing path is an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	s := c.Scheduler

	switch strings.ToLower(c.Server.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("server.log_format: must be text or json, got %q", c.Server.LogFormat))
	}
	if s.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("scheduler.max_concurrency: must be at least 1"))
	}
	if s.Concurrency < 1 || s.Concurrency > s.MaxConcurrency {
		errs = append(errs, fmt.Errorf("scheduler.concurrency: must be between 1 and %d, got %d", s.MaxConcurrency, s.Concurrency))
	}

	positive := []struct {
		key string
		val time.Duration
	}{
		{"scheduler.tick_interval", s.TickInterval},
		{"scheduler.wait_interval", s.WaitInterval},
		{"scheduler.provisioning_interval", s.ProvisioningInterval},
		{"scheduler.grace_timeout", s.GraceTimeout},
		{"scheduler.end_grace_timeout", s.EndGraceTimeout},
		{"scheduler.deprovision_timeout", s.DeprovisionTimeout},
		{"scheduler.provisioning_timeout", s.ProvisioningTimeout},
	}
	for _, p := range positive {
		if p.val <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", p.key, p.val))
		}
	}

	if !c.Gateway.Simulate {
		if c.Gateway.BaseURL == "" {
			errs = append(errs, fmt.Errorf("gateway.base_url: required unless gateway.simulate is set"))
		}
		if c.Gateway.Token == "" {
			errs = append(errs, fmt.Errorf("gateway.token: required unless gateway.simulate is set"))
		}
	}
	return errors.Join(errs...)
}

// EngineConfig returns the stage engine's intervals and timeouts.
func (c Config) EngineConfig() engine.Config {
	s := c.Scheduler
	return engine.Config{
		WaitInterval:         s.WaitInterval,
		ProvisioningInterval: s.ProvisioningInterval,
		GraceTimeout:         s.GraceTimeout,
		EndGraceTimeout:      s.EndGraceTimeout,
		DeprovisionTimeout:   s.DeprovisionTimeout,
		ProvisioningTimeout:  s.ProvisioningTimeout,
	}
}

// QueueConfig returns the scheduler's queue settings.
func (c Config) QueueConfig() scheduler.Config {
	return scheduler.Config{
		TickInterval:   c.Scheduler.TickInterval,
		Concurrency:    c.Scheduler.Concurrency,
		MaxConcurrency: c.Scheduler.MaxConcurrency,
		AutoStart:      c.Scheduler.AutoStart,
	}
}

// GraphConfig returns the Graph client settings.
func (c Config) GraphConfig() graph.Config {
	return graph.DefaultConfig().
		WithToken(c.Gateway.Token).
		WithTimeout(c.Gateway.Timeout).
		WithRetries(c.Gateway.MaxRetries, c.Gateway.RetryDelay).
		WithBaseURL(c.Gateway.BaseURL).
		WithRateLimit(c.Gateway.RateLimit)
}
