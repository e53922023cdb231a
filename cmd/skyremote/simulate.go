package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/observatory-remote/internal/capture"
	"github.com/signalsfoundry/observatory-remote/internal/device"
	"github.com/signalsfoundry/observatory-remote/internal/equipmentsim"
	"github.com/signalsfoundry/observatory-remote/internal/events"
	"github.com/signalsfoundry/observatory-remote/internal/logging"
	"github.com/signalsfoundry/observatory-remote/internal/observability"
	"github.com/signalsfoundry/observatory-remote/timectrl"
)

type simulateOptions struct {
	frames    int
	exposure  float64
	gain      int
	filter    int
	focus     int
	failEvery int
	realtime  bool
	httpAddr  string
}

func newSimulateCmd(a *app) *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a filter change, focuser move and capture loop against simulated equipment",
		Long: `Run the capture flows end to end against in-process simulated equipment.

By default the simulation runs on a virtual clock that advances whenever a
flow waits, so a multi-minute plan completes instantly. Pass --realtime to
run on the wall clock with background telemetry polling.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd, a, opts)
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.frames, "frames", 3, "frames to capture in the loop")
	f.Float64Var(&opts.exposure, "exposure", 5, "exposure time in seconds")
	f.IntVar(&opts.gain, "gain", -1, "camera gain (negative for camera default)")
	f.IntVar(&opts.filter, "filter", 4, "filter slot to select before capturing (negative to skip)")
	f.IntVar(&opts.focus, "focus", 11000, "focuser position to move to before capturing (negative to skip)")
	f.IntVar(&opts.failEvery, "fail-every", 0, "make every Nth command fail with a transport error")
	f.BoolVar(&opts.realtime, "realtime", false, "run on the wall clock")
	f.StringVar(&opts.httpAddr, "http-addr", "", "HTTP address serving /metrics, /status and /devices/{kind} (empty disables)")
	return cmd
}

func runSimulate(cmd *cobra.Command, a *app, opts simulateOptions) error {
	if opts.frames < 1 {
		return fmt.Errorf("--frames must be at least 1")
	}
	log := a.log
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	tracing := a.cfg.TracingConfig()
	tracing.Output = cmd.ErrOrStderr()
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	var clock timectrl.Clock = timectrl.Wall{}
	if !opts.realtime {
		clock = timectrl.NewStepper(time.Now().UTC())
	}

	store := device.NewStore(device.WithStoreClock(clock))
	dispatcher := events.NewDispatcher(log)
	dispatcher.Register(events.ChannelLive, device.LiveEventHandler(store))

	simCfg := equipmentsim.DefaultConfig()
	simCfg.FailEvery = opts.failEvery
	eq := equipmentsim.New(simCfg,
		equipmentsim.WithClock(clock),
		equipmentsim.WithEventSink(func(ch events.Channel, payload []byte) {
			if err := dispatcher.Dispatch(ch, payload); err != nil {
				log.Warn(ctx, "dropping pushed event", logging.String("channel", string(ch)), logging.Err(err))
			}
		}),
	)

	tel := device.NewTelemetry(eq, store)
	refresher := device.NewRefresher(tel, a.cfg.Polling.TelemetryInterval,
		[]device.Kind{device.Camera, device.FilterWheel, device.Focuser},
		device.WithRefresherLogger(log),
		device.WithRefreshRecorder(collector),
	)
	refresher.RefreshOnce(ctx)
	if opts.realtime {
		go func() { _ = refresher.Run(ctx) }()
	}

	var orch *capture.Orchestrator
	orch = capture.New(eq, tel, capture.NewGate(collector), a.cfg.CaptureConfig(),
		capture.WithClock(clock),
		capture.WithLogger(log),
		capture.WithMetricsRecorder(collector),
		capture.WithTransitionHook(func(from, to capture.State) {
			log.Debug(ctx, "capture state", logging.String("from", from.String()), logging.String("to", to.String()))
			if to != capture.ExposureRequested {
				return
			}
			// Let the last requested frame finish, then leave the loop.
			if sess, ok := orch.Session(); ok && sess.Frames >= opts.frames-1 {
				orch.Stop()
			}
		}),
	)
	go func() {
		<-ctx.Done()
		_ = orch.Abort(context.Background())
	}()

	if opts.httpAddr != "" {
		srv := serveHTTP(opts.httpAddr, newRouter(collector, orch, store), log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	out := cmd.OutOrStdout()
	if opts.filter >= 0 {
		if err := orch.ChangeFilter(ctx, opts.filter); err != nil {
			return err
		}
		sel, _ := store.Snapshot(device.FilterWheel).Get("SelectedFilter")
		fmt.Fprintf(out, "Filter:   %v\n", filterName(sel))
	}
	if opts.focus >= 0 {
		if err := orch.MoveFocuser(ctx, opts.focus); err != nil {
			return err
		}
		fmt.Fprintf(out, "Focuser:  %d\n", store.Snapshot(device.Focuser).Int("Position"))
	}

	img, err := orch.Capture(ctx, capture.Request{
		Duration: opts.exposure,
		Gain:     opts.gain,
		Loop:     opts.frames > 1,
	})
	if err != nil && !(errors.Is(err, capture.ErrAborted) && img.Frame > 0) {
		return err
	}
	fmt.Fprintf(out, "Frames:   %d\n", img.Frame)
	fmt.Fprintf(out, "Last:     frame %d at %s\n", img.Frame, img.ReceivedAt.Format(time.RFC3339))
	refresher.RefreshOnce(ctx)
	return nil
}

func filterName(sel any) any {
	if m, ok := sel.(map[string]any); ok {
		return m["Name"]
	}
	return sel
}
