package device

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/observatory-remote/internal/logging"
	"github.com/signalsfoundry/observatory-remote/timectrl"
)

// Telemetry fetches equipment info from the server and writes it into the
// store so observers see live values.
type Telemetry struct {
	cmd   Commander
	store *Store
}

// NewTelemetry wires a commander to a store.
func NewTelemetry(cmd Commander, store *Store) *Telemetry {
	return &Telemetry{cmd: cmd, store: store}
}

// Store returns the backing telemetry store.
func (t *Telemetry) Store() *Store {
	return t.store
}

// Refresh requests info for kind, applies it to the store and returns the
// updated snapshot.
func (t *Telemetry) Refresh(ctx context.Context, kind Kind) (Snapshot, error) {
	env, err := t.cmd.Do(ctx, Command{Kind: kind, Verb: VerbInfo})
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch %s info: %w", kind, err)
	}
	if err := env.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("fetch %s info: %w", kind, err)
	}
	fields, ok := env.Object()
	if !ok {
		return Snapshot{}, fmt.Errorf("fetch %s info: %w", kind, ErrMalformedResponse)
	}
	return t.store.Apply(kind, fields), nil
}

// Fetcher returns Refresh bound to kind, in the shape settle-waits expect.
func (t *Telemetry) Fetcher(kind Kind) func(context.Context) (Snapshot, error) {
	return func(ctx context.Context) (Snapshot, error) {
		return t.Refresh(ctx, kind)
	}
}

// RefreshRecorder receives refresh failures; *observability.Collector
// satisfies it.
type RefreshRecorder interface {
	IncRefreshErrors(device string)
}

// Refresher runs the steady telemetry cadence, independent of any
// settle-wait in progress.
type Refresher struct {
	tel      *Telemetry
	clock    timectrl.Clock
	interval time.Duration
	kinds    []Kind
	log      logging.Logger
	metrics  RefreshRecorder
}

// RefresherOption customises a Refresher.
type RefresherOption func(*Refresher)

// WithRefresherClock overrides the wall clock.
func WithRefresherClock(c timectrl.Clock) RefresherOption {
	return func(r *Refresher) {
		r.clock = c
	}
}

// WithRefresherLogger attaches a logger.
func WithRefresherLogger(l logging.Logger) RefresherOption {
	return func(r *Refresher) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRefreshRecorder attaches a metrics recorder.
func WithRefreshRecorder(m RefreshRecorder) RefresherOption {
	return func(r *Refresher) {
		r.metrics = m
	}
}

// NewRefresher refreshes kinds every interval (1s when interval <= 0).
func NewRefresher(tel *Telemetry, interval time.Duration, kinds []Kind, opts ...RefresherOption) *Refresher {
	if interval <= 0 {
		interval = time.Second
	}
	r := &Refresher{
		tel:      tel,
		clock:    timectrl.Wall{},
		interval: interval,
		kinds:    append([]Kind(nil), kinds...),
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run refreshes until ctx is cancelled. Individual failures are logged and
// counted; they never stop the loop.
func (r *Refresher) Run(ctx context.Context) error {
	for {
		r.RefreshOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(r.interval):
		}
	}
}

// RefreshOnce refreshes each kind once and returns how many succeeded.
func (r *Refresher) RefreshOnce(ctx context.Context) int {
	ok := 0
	for _, kind := range r.kinds {
		if ctx.Err() != nil {
			return ok
		}
		if _, err := r.tel.Refresh(ctx, kind); err != nil {
			r.log.Debug(ctx, "telemetry refresh failed",
				logging.String("device", string(kind)),
				logging.Err(err),
			)
			if r.metrics != nil {
				r.metrics.IncRefreshErrors(string(kind))
			}
			continue
		}
		ok++
	}
	return ok
}
