package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles Prometheus metrics for the device orchestration core:
// settle-waits, capture cycles, the capture gate and telemetry refreshes.
type Collector struct {
	gatherer prometheus.Gatherer

	SettleWaits        *prometheus.CounterVec
	SettlePolls        *prometheus.HistogramVec
	SettleDurations    *prometheus.HistogramVec
	ExposuresRequested prometheus.Counter
	CaptureCycles      *prometheus.CounterVec
	CaptureGateOpen    prometheus.Gauge
	RefreshErrors      *prometheus.CounterVec
}

// NewCollector registers orchestration metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	waits, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_waits_total",
		Help: "Completed settle-waits, labeled by device and outcome.",
	}, []string{"device", "outcome"}), "settle_waits_total")
	if err != nil {
		return nil, err
	}

	polls, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settle_wait_polls",
		Help:    "Number of status polls performed by one settle-wait.",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100, 250, 500},
	}, []string{"device"}), "settle_wait_polls")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settle_wait_duration_seconds",
		Help:    "Time spent waiting for a device to settle.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"device"}), "settle_wait_duration_seconds")
	if err != nil {
		return nil, err
	}

	exposures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capture_exposures_requested_total",
		Help: "Exposure commands issued to the camera.",
	}), "capture_exposures_requested_total")
	if err != nil {
		return nil, err
	}

	cycles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_cycles_total",
		Help: "Finished capture cycles, labeled by outcome.",
	}, []string{"outcome"}), "capture_cycles_total")
	if err != nil {
		return nil, err
	}

	gate, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "capture_gate_open",
		Help: "1 when a capture may start, 0 while a filter or focuser operation holds the gate.",
	}), "capture_gate_open")
	if err != nil {
		return nil, err
	}
	gate.Set(1)

	refreshErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_refresh_errors_total",
		Help: "Failed telemetry refreshes, labeled by device.",
	}, []string{"device"}), "telemetry_refresh_errors_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		SettleWaits:        waits,
		SettlePolls:        polls,
		SettleDurations:    durations,
		ExposuresRequested: exposures,
		CaptureCycles:      cycles,
		CaptureGateOpen:    gate,
		RefreshErrors:      refreshErrors,
	}, nil
}

// ObserveSettle records one finished settle-wait.
func (c *Collector) ObserveSettle(device, outcome string, polls int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.SettleWaits != nil {
		c.SettleWaits.WithLabelValues(device, outcome).Inc()
	}
	if c.SettlePolls != nil {
		c.SettlePolls.WithLabelValues(device).Observe(float64(polls))
	}
	if c.SettleDurations != nil {
		c.SettleDurations.WithLabelValues(device).Observe(elapsed.Seconds())
	}
}

// IncExposuresRequested counts one exposure command.
func (c *Collector) IncExposuresRequested() {
	if c == nil || c.ExposuresRequested == nil {
		return
	}
	c.ExposuresRequested.Inc()
}

// ObserveCapture records the outcome of one capture cycle.
func (c *Collector) ObserveCapture(outcome string) {
	if c == nil || c.CaptureCycles == nil {
		return
	}
	c.CaptureCycles.WithLabelValues(outcome).Inc()
}

// SetGateOpen mirrors the capture gate state.
func (c *Collector) SetGateOpen(open bool) {
	if c == nil || c.CaptureGateOpen == nil {
		return
	}
	if open {
		c.CaptureGateOpen.Set(1)
		return
	}
	c.CaptureGateOpen.Set(0)
}

// IncRefreshErrors counts a failed telemetry refresh for device.
func (c *Collector) IncRefreshErrors(device string) {
	if c == nil || c.RefreshErrors == nil {
		return
	}
	c.RefreshErrors.WithLabelValues(device).Inc()
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
