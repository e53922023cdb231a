package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveSettleRecordsOutcomeAndPolls(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	collector.ObserveSettle("filterwheel", "satisfied", 4, 2*time.Second)
	collector.ObserveSettle("filterwheel", "timeout", 10, time.Minute)

	if got := testutil.ToFloat64(collector.SettleWaits.WithLabelValues("filterwheel", "satisfied")); got != 1 {
		t.Fatalf("settle_waits_total{satisfied} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SettleWaits.WithLabelValues("filterwheel", "timeout")); got != 1 {
		t.Fatalf("settle_waits_total{timeout} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "settle_wait_polls", map[string]string{"device": "filterwheel"}); count != 2 {
		t.Fatalf("settle_wait_polls sample_count = %d, want 2", count)
	}
}

func TestGateGaugeTracksState(t *testing.T) {
	collector, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	if got := testutil.ToFloat64(collector.CaptureGateOpen); got != 1 {
		t.Fatalf("capture_gate_open initial = %v, want 1", got)
	}
	collector.SetGateOpen(false)
	if got := testutil.ToFloat64(collector.CaptureGateOpen); got != 0 {
		t.Fatalf("capture_gate_open = %v, want 0", got)
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	first.IncExposuresRequested()
	if got := testutil.ToFloat64(second.ExposuresRequested); got != 1 {
		t.Fatalf("shared exposures counter = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveSettle("camera", "satisfied", 1, time.Second)
	c.IncExposuresRequested()
	c.ObserveCapture("completed")
	c.SetGateOpen(false)
	c.IncRefreshErrors("mount")
}

func TestMetricsHandlerExposesOrchestrationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	collector.ObserveSettle("focuser", "satisfied", 3, 3*time.Second)
	collector.IncExposuresRequested()
	collector.ObserveCapture("completed")
	collector.IncRefreshErrors("mount")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"settle_waits_total",
		"settle_wait_polls",
		"settle_wait_duration_seconds",
		"capture_exposures_requested_total",
		"capture_cycles_total",
		"capture_gate_open",
		"telemetry_refresh_errors_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
