package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/signalsfoundry/observatory-remote/internal/settle"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

var (
	validLevels    = []string{"debug", "info", "warn", "warning", "error"}
	validFormats   = []string{"text", "json"}
	validExporters = []string{"stdout", "otlp"}
)

// Validate checks every section and returns all failures.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Observer.LatitudeDeg < -90 || c.Observer.LatitudeDeg > 90 {
		errs = append(errs, ValidationError{"observer.latitude", c.Observer.LatitudeDeg, "must be within [-90, 90]"})
	}
	if c.Observer.LongitudeDeg < -180 || c.Observer.LongitudeDeg > 180 {
		errs = append(errs, ValidationError{"observer.longitude", c.Observer.LongitudeDeg, "must be within [-180, 180]"})
	}

	errs = append(errs, positive("polling.telemetry_interval", c.Polling.TelemetryInterval)...)
	errs = append(errs, positive("capture.result_interval", c.Capture.ResultInterval)...)
	errs = append(errs, timeout("capture.result_timeout", c.Capture.ResultTimeout)...)
	errs = append(errs, positive("filterwheel.poll_interval", c.FilterWheel.PollInterval)...)
	errs = append(errs, timeout("filterwheel.timeout", c.FilterWheel.Timeout)...)
	errs = append(errs, positive("focuser.poll_interval", c.Focuser.PollInterval)...)
	errs = append(errs, timeout("focuser.timeout", c.Focuser.Timeout)...)
	if c.Focuser.SettleBuffer < 0 {
		errs = append(errs, ValidationError{"focuser.settle_buffer", c.Focuser.SettleBuffer, "must not be negative"})
	}

	if !oneOf(strings.ToLower(c.Logging.Level), validLevels) {
		errs = append(errs, ValidationError{"logging.level", c.Logging.Level, "must be one of " + strings.Join(validLevels, ", ")})
	}
	if !oneOf(strings.ToLower(c.Logging.Format), validFormats) {
		errs = append(errs, ValidationError{"logging.format", c.Logging.Format, "must be one of " + strings.Join(validFormats, ", ")})
	}
	if c.Tracing.Enabled && !oneOf(strings.ToLower(c.Tracing.Exporter), validExporters) {
		errs = append(errs, ValidationError{"tracing.exporter", c.Tracing.Exporter, "must be one of " + strings.Join(validExporters, ", ")})
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, ValidationError{"tracing.sample_ratio", c.Tracing.SampleRatio, "must be within [0, 1]"})
	}
	return errs
}

func positive(field string, d time.Duration) []ValidationError {
	if d <= 0 {
		return []ValidationError{{field, d, "must be positive"}}
	}
	return nil
}

// timeout accepts a positive duration or the explicit unbounded marker.
func timeout(field string, d time.Duration) []ValidationError {
	if d <= 0 && d != settle.Unbounded {
		return []ValidationError{{field, d, `must be positive or "unbounded"`}}
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// durationHook decodes durations from strings like "250ms", with
// "unbounded" or "-1" mapping to settle.Unbounded. Environment values always
// arrive as strings, so "-1" is handled here as well as for YAML integers.
func durationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) || from.Kind() != reflect.String {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if strings.EqualFold(s, "unbounded") || s == "-1" {
			return settle.Unbounded, nil
		}
		return time.ParseDuration(s)
	}
}
