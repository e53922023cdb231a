// Package config loads skyremote settings through viper: defaults, an
// optional YAML file, and SKYREMOTE_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/observatory-remote/internal/capture"
	"github.com/signalsfoundry/observatory-remote/internal/observability"
	"github.com/signalsfoundry/observatory-remote/model"
)

// EnvPrefix prefixes every environment override, e.g.
// SKYREMOTE_OBSERVER_LATITUDE for observer.latitude.
const EnvPrefix = "SKYREMOTE"

// Config is the complete runtime configuration.
type Config struct {
	Observer    model.GeoLocation `mapstructure:"observer"`
	Polling     PollingConfig     `mapstructure:"polling"`
	Capture     CaptureConfig     `mapstructure:"capture"`
	FilterWheel FilterWheelConfig `mapstructure:"filterwheel"`
	Focuser     FocuserConfig     `mapstructure:"focuser"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

// PollingConfig controls the steady telemetry refresh.
type PollingConfig struct {
	TelemetryInterval time.Duration `mapstructure:"telemetry_interval"`
}

// CaptureConfig bounds the image-result poll.
type CaptureConfig struct {
	ResultInterval time.Duration `mapstructure:"result_interval"`
	// ResultTimeout of -1 (or "unbounded") waits forever.
	ResultTimeout time.Duration `mapstructure:"result_timeout"`
}

// FilterWheelConfig bounds the filter-change settle-wait.
type FilterWheelConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// FocuserConfig bounds the focuser settle-wait.
type FocuserConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SettleBuffer time.Duration `mapstructure:"settle_buffer"`
}

// LoggingConfig selects level and handler format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig mirrors observability.TracingConfig.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cc := capture.DefaultConfig()
	return &Config{
		Polling: PollingConfig{TelemetryInterval: time.Second},
		Capture: CaptureConfig{
			ResultInterval: cc.ResultInterval,
			ResultTimeout:  cc.ResultTimeout,
		},
		FilterWheel: FilterWheelConfig{
			PollInterval: cc.FilterWheelPoll,
			Timeout:      cc.FilterWheelTimeout,
		},
		Focuser: FocuserConfig{
			PollInterval: cc.FocuserPoll,
			Timeout:      cc.FocuserTimeout,
			SettleBuffer: cc.FocuserSettleBuffer,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{Exporter: "stdout", SampleRatio: 1.0},
	}
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("observer.latitude", d.Observer.LatitudeDeg)
	v.SetDefault("observer.longitude", d.Observer.LongitudeDeg)
	v.SetDefault("observer.elevation", d.Observer.ElevationM)

	v.SetDefault("polling.telemetry_interval", d.Polling.TelemetryInterval)

	v.SetDefault("capture.result_interval", d.Capture.ResultInterval)
	v.SetDefault("capture.result_timeout", d.Capture.ResultTimeout)

	v.SetDefault("filterwheel.poll_interval", d.FilterWheel.PollInterval)
	v.SetDefault("filterwheel.timeout", d.FilterWheel.Timeout)

	v.SetDefault("focuser.poll_interval", d.Focuser.PollInterval)
	v.SetDefault("focuser.timeout", d.Focuser.Timeout)
	v.SetDefault("focuser.settle_buffer", d.Focuser.SettleBuffer)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
}

// BindEnv makes v read SKYREMOTE_* variables, with dots in keys replaced
// by underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from v into a Config struct and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationHook())); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// CaptureConfig converts the poll settings for the capture orchestrator.
func (c *Config) CaptureConfig() capture.Config {
	return capture.Config{
		ResultInterval:      c.Capture.ResultInterval,
		ResultTimeout:       c.Capture.ResultTimeout,
		FilterWheelPoll:     c.FilterWheel.PollInterval,
		FilterWheelTimeout:  c.FilterWheel.Timeout,
		FocuserPoll:         c.Focuser.PollInterval,
		FocuserTimeout:      c.Focuser.Timeout,
		FocuserSettleBuffer: c.Focuser.SettleBuffer,
	}
}

// TracingConfig converts the tracing section for observability.InitTracing.
func (c *Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: observability.DefaultServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// ConfigDir returns the directory searched for config.yaml.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "skyremote")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".skyremote"
	}
	return filepath.Join(home, ".config", "skyremote")
}
