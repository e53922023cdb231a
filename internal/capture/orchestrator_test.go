package capture

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/observatory-remote/internal/device"
	"github.com/signalsfoundry/observatory-remote/internal/observability"
	"github.com/signalsfoundry/observatory-remote/timectrl"
)

var epoch = time.Date(2024, 9, 14, 22, 30, 0, 0, time.UTC)

type harness struct {
	srv         *fakeServer
	clock       *timectrl.Stepper
	orch        *Orchestrator
	transitions []string
}

func newHarness(t *testing.T, srv *fakeServer, opts ...Option) *harness {
	t.Helper()
	h := &harness{srv: srv, clock: timectrl.NewStepper(epoch)}
	opts = append([]Option{
		WithClock(h.clock),
		WithTransitionHook(func(from, to State) {
			h.transitions = append(h.transitions, from.String()+">"+to.String())
		}),
	}, opts...)
	h.orch = New(srv, nil, nil, DefaultConfig(), opts...)
	return h
}

func (h *harness) assertIdle(t *testing.T) {
	t.Helper()
	if h.orch.State() != Idle {
		t.Fatalf("state = %s, want IDLE", h.orch.State())
	}
	if _, ok := h.orch.Session(); ok {
		t.Fatalf("session still active")
	}
	if h.orch.tel.Store().Snapshot(device.Camera).Bool("IsExposing") {
		t.Fatalf("camera still marked exposing")
	}
}

func TestCaptureZeroDurationSkipsCountdown(t *testing.T) {
	h := newHarness(t, &fakeServer{placeholders: 1})

	img, err := h.orch.Capture(context.Background(), Request{Duration: 0, Gain: -1})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if img.Data != "aW1hZ2U=" || img.Frame != 1 || img.SessionID == "" {
		t.Fatalf("unexpected image %+v", img)
	}
	want := []string{"IDLE>EXPOSURE_REQUESTED", "EXPOSURE_REQUESTED>AWAITING_RESULT", "AWAITING_RESULT>IDLE"}
	if !reflect.DeepEqual(h.transitions, want) {
		t.Fatalf("transitions = %v, want %v", h.transitions, want)
	}
	if got := h.srv.count(device.Camera, device.VerbCaptureResult); got != 2 {
		t.Fatalf("result polls = %d, want 2", got)
	}
	if _, ok := h.srv.calls[0].Params["gain"]; ok {
		t.Fatalf("negative gain must not be sent")
	}
	h.assertIdle(t)
}

func TestCaptureCountsDownEachSecond(t *testing.T) {
	h := newHarness(t, &fakeServer{placeholders: 2})
	var ticks []int
	h.clock.OnAfter = func(_ time.Time, d time.Duration) {
		if d == time.Second {
			s, _ := h.orch.Session()
			ticks = append(ticks, s.CountdownSec)
		}
	}

	img, err := h.orch.Capture(context.Background(), Request{Duration: 3.5, Gain: 100})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !reflect.DeepEqual(ticks, []int{3, 2, 1}) {
		t.Fatalf("countdown ticks = %v", ticks)
	}
	if want := epoch.Add(3*time.Second + 500*time.Millisecond); !img.ReceivedAt.Equal(want) {
		t.Fatalf("ReceivedAt = %v, want %v", img.ReceivedAt, want)
	}
	if got := h.srv.calls[0].Params; got["duration"] != "3.5" || got["gain"] != "100" {
		t.Fatalf("capture params = %v", got)
	}
	want := []string{"IDLE>EXPOSURE_REQUESTED", "EXPOSURE_REQUESTED>COUNTDOWN", "COUNTDOWN>AWAITING_RESULT", "AWAITING_RESULT>IDLE"}
	if !reflect.DeepEqual(h.transitions, want) {
		t.Fatalf("transitions = %v, want %v", h.transitions, want)
	}
}

func TestCaptureLoopStopsWhenCapturingClearedDuringCountdown(t *testing.T) {
	h := newHarness(t, &fakeServer{})
	h.clock.OnAfter = func(_ time.Time, d time.Duration) {
		if d != time.Second {
			return
		}
		if s, ok := h.orch.Session(); ok && s.CountdownSec == 3 {
			h.orch.Stop()
		}
	}

	img, err := h.orch.Capture(context.Background(), Request{Duration: 5, Loop: true})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if img.Frame != 1 {
		t.Fatalf("frame = %d, want 1", img.Frame)
	}
	if got := h.srv.count(device.Camera, device.VerbCapture); got != 1 {
		t.Fatalf("exposure requests = %d, want 1", got)
	}
	// The countdown short-circuits but the exposure already taken is kept.
	if got := h.srv.count(device.Camera, device.VerbCaptureResult); got != 1 {
		t.Fatalf("result polls = %d, want 1", got)
	}
	h.assertIdle(t)
}

func TestCaptureLoopRepeatsUntilStopped(t *testing.T) {
	srv := &fakeServer{}
	h := newHarness(t, srv)
	srv.onCommand = func(cmd device.Command) {
		if cmd.Verb == device.VerbCaptureResult && srv.count(device.Camera, device.VerbCaptureResult) == 3 {
			h.orch.Stop()
		}
	}

	img, err := h.orch.Capture(context.Background(), Request{Duration: 0, Loop: true})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if img.Frame != 3 {
		t.Fatalf("frame = %d, want 3", img.Frame)
	}
	if got := srv.count(device.Camera, device.VerbCapture); got != 3 {
		t.Fatalf("exposure requests = %d, want 3", got)
	}
	last, ok := h.orch.LastImage()
	if !ok || last.Frame != 3 {
		t.Fatalf("LastImage = %+v, %v", last, ok)
	}
}

func TestAbortDuringCountdownSkipsResultPoll(t *testing.T) {
	h := newHarness(t, &fakeServer{})
	ctx := context.Background()
	h.clock.OnAfter = func(_ time.Time, d time.Duration) {
		if d == time.Second && h.orch.State() == Countdown {
			if err := h.orch.Abort(ctx); err != nil {
				t.Errorf("Abort: %v", err)
			}
		}
	}

	_, err := h.orch.Capture(ctx, Request{Duration: 10, Loop: true})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if got := h.srv.count(device.Camera, device.VerbCaptureResult); got != 0 {
		t.Fatalf("result polls after abort = %d, want 0", got)
	}
	if got := h.srv.count(device.Camera, device.VerbAbortExposure); got != 1 {
		t.Fatalf("abort commands = %d, want 1", got)
	}
	want := []string{"IDLE>EXPOSURE_REQUESTED", "EXPOSURE_REQUESTED>COUNTDOWN", "COUNTDOWN>ABORTED", "ABORTED>IDLE"}
	if !reflect.DeepEqual(h.transitions, want) {
		t.Fatalf("transitions = %v, want %v", h.transitions, want)
	}
	h.assertIdle(t)
}

func TestAbortWhileExposureCommandInFlightReissuesAbort(t *testing.T) {
	srv := &fakeServer{}
	h := newHarness(t, srv)
	ctx := context.Background()
	srv.onCommand = func(cmd device.Command) {
		if cmd.Verb == device.VerbCapture {
			if err := h.orch.Abort(ctx); err != nil {
				t.Errorf("Abort: %v", err)
			}
		}
	}

	_, err := h.orch.Capture(ctx, Request{Duration: 5})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if got := h.srv.count(device.Camera, device.VerbAbortExposure); got != 2 {
		t.Fatalf("abort commands = %d, want 2", got)
	}
	if got := h.srv.count(device.Camera, device.VerbCaptureResult); got != 0 {
		t.Fatalf("result polls after abort = %d, want 0", got)
	}
	seq := srv.sequence()
	if last := seq[len(seq)-1]; last != "camera/abort-exposure" {
		t.Fatalf("last command = %q, want camera/abort-exposure (sequence %v)", last, seq)
	}
	h.assertIdle(t)
}

func TestAbortDuringResultPollKeepsImage(t *testing.T) {
	srv := &fakeServer{placeholders: 2}
	h := newHarness(t, srv)
	ctx := context.Background()
	srv.onCommand = func(cmd device.Command) {
		if cmd.Verb == device.VerbCaptureResult && srv.count(device.Camera, device.VerbCaptureResult) == 1 {
			_ = h.orch.Abort(ctx)
		}
	}

	img, err := h.orch.Capture(ctx, Request{Duration: 0, Loop: true})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if img.Data == "" {
		t.Fatalf("in-flight image was discarded")
	}
	if got := srv.count(device.Camera, device.VerbCapture); got != 1 {
		t.Fatalf("exposure requests = %d, want 1", got)
	}
}

func TestCaptureRejectedWhileGateHeld(t *testing.T) {
	h := newHarness(t, &fakeServer{})
	err := h.orch.Gate().Hold(context.Background(), "filter change", func(ctx context.Context) error {
		_, err := h.orch.Capture(ctx, Request{Duration: 1})
		return err
	})
	if !errors.Is(err, ErrGateClosed) {
		t.Fatalf("expected ErrGateClosed, got %v", err)
	}
	if got := h.srv.count(device.Camera, device.VerbCapture); got != 0 {
		t.Fatalf("exposure requested through a closed gate")
	}
}

func TestCaptureRejectsConcurrentSession(t *testing.T) {
	srv := &fakeServer{}
	h := newHarness(t, srv)
	var nested error
	srv.onCommand = func(cmd device.Command) {
		if cmd.Verb == device.VerbCapture {
			_, nested = h.orch.Capture(context.Background(), Request{Duration: 0})
		}
	}
	if _, err := h.orch.Capture(context.Background(), Request{Duration: 0}); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !errors.Is(nested, ErrCaptureInProgress) {
		t.Fatalf("expected ErrCaptureInProgress, got %v", nested)
	}
}

func TestCaptureResultTimeoutResetsSession(t *testing.T) {
	h := newHarness(t, &fakeServer{neverReady: true})
	h.orch.cfg.ResultTimeout = 2 * time.Second

	_, err := h.orch.Capture(context.Background(), Request{Duration: 0})
	if !errors.Is(err, ErrResultTimeout) {
		t.Fatalf("expected ErrResultTimeout, got %v", err)
	}
	if got := h.srv.count(device.Camera, device.VerbCaptureResult); got != 8 {
		t.Fatalf("result polls = %d, want 8", got)
	}
	h.assertIdle(t)
	if !h.orch.Gate().CanCapture() {
		t.Fatalf("gate closed after timeout")
	}
}

func TestCaptureCommandFailureResetsSession(t *testing.T) {
	h := newHarness(t, &fakeServer{failCapture: true})

	_, err := h.orch.Capture(context.Background(), Request{Duration: 2})
	if !errors.Is(err, device.ErrCommandFailed) {
		t.Fatalf("expected ErrCommandFailed, got %v", err)
	}
	h.assertIdle(t)

	if _, err := h.orch.Capture(context.Background(), Request{Duration: -1}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCaptureRecordsMetrics(t *testing.T) {
	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	srv := &fakeServer{}
	h := newHarness(t, srv, WithMetricsRecorder(collector))
	srv.onCommand = func(cmd device.Command) {
		if cmd.Verb == device.VerbCaptureResult && srv.count(device.Camera, device.VerbCaptureResult) == 2 {
			h.orch.Stop()
		}
	}

	if _, err := h.orch.Capture(context.Background(), Request{Duration: 0, Loop: true}); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got := testutil.ToFloat64(collector.ExposuresRequested); got != 2 {
		t.Fatalf("exposures requested = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.CaptureCycles.WithLabelValues("completed")); got != 1 {
		t.Fatalf("completed cycles = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SettleWaits.WithLabelValues("camera", "satisfied")); got != 2 {
		t.Fatalf("camera settle waits = %v, want 2", got)
	}
}
