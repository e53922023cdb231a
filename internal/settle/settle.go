// Package settle implements the poll-until-ready primitive used by every
// multi-step device flow: fetch device state on a fixed interval until a
// predicate holds, the caller cancels, or a bound is reached.
package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/observatory-remote/internal/logging"
	"github.com/signalsfoundry/observatory-remote/timectrl"
)

// Unbounded disables the timeout. It must be requested explicitly; a zero
// Timeout is a configuration error.
const Unbounded time.Duration = -1

var (
	// ErrTimeout is returned when Timeout elapses before the predicate holds.
	ErrTimeout = errors.New("settle-wait timed out")
	// ErrCancelled is returned when the context or cancellation flag stops
	// the wait.
	ErrCancelled = errors.New("settle-wait cancelled")
	// ErrAttemptsExhausted is returned when MaxAttempts polls all failed the
	// predicate.
	ErrAttemptsExhausted = errors.New("settle-wait attempts exhausted")
	// ErrInvalidConfig is returned for a non-positive interval or a missing
	// timeout.
	ErrInvalidConfig = errors.New("invalid settle-wait config")
)

// Outcome classifies how a wait ended.
type Outcome string

const (
	Satisfied Outcome = "satisfied"
	TimedOut  Outcome = "timeout"
	Cancelled Outcome = "cancelled"
	Exhausted Outcome = "exhausted"
)

// Config bounds one wait.
type Config struct {
	// Name labels logs and metrics, typically the device kind.
	Name     string
	Interval time.Duration
	// Timeout must be positive or Unbounded.
	Timeout time.Duration
	// MaxAttempts caps the number of polls; 0 means no cap.
	MaxAttempts int
}

// Validate reports whether cfg can drive a wait.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, c.Interval)
	}
	if c.Timeout <= 0 && c.Timeout != Unbounded {
		return fmt.Errorf("%w: timeout must be positive or Unbounded, got %s", ErrInvalidConfig, c.Timeout)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Result reports the last fetched value and how the wait went. Value is only
// guaranteed to satisfy the predicate when Outcome is Satisfied.
type Result[T any] struct {
	Value   T
	Polls   int
	Outcome Outcome
	Elapsed time.Duration
	// FetchErrors counts polls whose fetch failed and were retried.
	FetchErrors int
}

// Recorder receives one observation per finished wait;
// *observability.Collector satisfies it.
type Recorder interface {
	ObserveSettle(device, outcome string, polls int, elapsed time.Duration)
}

type options struct {
	clock     timectrl.Clock
	log       logging.Logger
	recorder  Recorder
	cancelled func() bool
	onPoll    func(poll int)
}

// Option customises a wait.
type Option func(*options)

// WithClock overrides the wall clock.
func WithClock(c timectrl.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger attaches a logger for retried fetch errors and the final
// outcome. Without it Wait uses the logger stored on ctx, if any.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithCancelFlag installs a cooperative cancellation check evaluated before
// every poll.
func WithCancelFlag(cancelled func() bool) Option {
	return func(o *options) {
		o.cancelled = cancelled
	}
}

// WithPollHook is called after each fetch with the 1-based poll number.
func WithPollHook(fn func(poll int)) Option {
	return func(o *options) {
		o.onPoll = fn
	}
}

// Wait polls fetch every cfg.Interval until ready returns true for a fetched
// value. Fetch errors are logged and retried, never terminal. When the
// predicate first holds on the Nth fetch, Wait returns after exactly N polls
// with that value.
func Wait[T any](ctx context.Context, cfg Config, fetch func(context.Context) (T, error), ready func(T) bool, opts ...Option) (Result[T], error) {
	o := options{clock: timectrl.Wall{}, log: logging.LoggerFromContext(ctx)}
	if o.log == nil {
		o.log = logging.Noop()
	}
	for _, opt := range opts {
		opt(&o)
	}

	var res Result[T]
	if err := cfg.Validate(); err != nil {
		return res, err
	}

	start := o.clock.Now()
	var deadline time.Time
	if cfg.Timeout != Unbounded {
		deadline = start.Add(cfg.Timeout)
	}

	finish := func(outcome Outcome, err error) (Result[T], error) {
		res.Outcome = outcome
		res.Elapsed = o.clock.Now().Sub(start)
		if o.recorder != nil {
			o.recorder.ObserveSettle(cfg.Name, string(outcome), res.Polls, res.Elapsed)
		}
		fields := []logging.Field{
			logging.String("device", cfg.Name),
			logging.String("outcome", string(outcome)),
			logging.Int("polls", res.Polls),
			logging.Duration("elapsed", res.Elapsed),
		}
		if err != nil {
			o.log.Info(ctx, "settle-wait ended", fields...)
			return res, fmt.Errorf("%s: %w", cfg.Name, err)
		}
		o.log.Debug(ctx, "settle-wait satisfied", fields...)
		return res, nil
	}

	for {
		if ctx.Err() != nil || (o.cancelled != nil && o.cancelled()) {
			return finish(Cancelled, ErrCancelled)
		}
		if !deadline.IsZero() && !o.clock.Now().Before(deadline) {
			return finish(TimedOut, ErrTimeout)
		}

		v, err := fetch(ctx)
		res.Polls++
		if o.onPoll != nil {
			o.onPoll(res.Polls)
		}
		if err != nil {
			res.FetchErrors++
			o.log.Warn(ctx, "settle-wait fetch failed, retrying",
				logging.String("device", cfg.Name),
				logging.Int("poll", res.Polls),
				logging.Err(err),
			)
		} else {
			res.Value = v
			if ready(v) {
				return finish(Satisfied, nil)
			}
		}

		if cfg.MaxAttempts > 0 && res.Polls >= cfg.MaxAttempts {
			return finish(Exhausted, ErrAttemptsExhausted)
		}

		wait := cfg.Interval
		if !deadline.IsZero() {
			if remaining := deadline.Sub(o.clock.Now()); remaining < wait {
				wait = remaining
			}
		}
		select {
		case <-ctx.Done():
			return finish(Cancelled, ErrCancelled)
		case <-o.clock.After(wait):
		}
	}
}
