// Package capture drives exposure cycles against the imaging server and the
// filter-wheel and focuser flows that must finish before an exposure may
// start.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/observatory-remote/internal/device"
	"github.com/signalsfoundry/observatory-remote/internal/logging"
	"github.com/signalsfoundry/observatory-remote/internal/settle"
	"github.com/signalsfoundry/observatory-remote/timectrl"
)

var (
	// ErrCaptureInProgress is returned when a session is already active.
	ErrCaptureInProgress = errors.New("capture already in progress")
	// ErrAborted is returned when the session was aborted or stopped before
	// it could finish normally.
	ErrAborted = errors.New("capture aborted")
	// ErrResultTimeout is returned when the processed image does not arrive
	// within Config.ResultTimeout.
	ErrResultTimeout = errors.New("timed out waiting for image")
	// ErrInvalidRequest is returned for negative exposure durations.
	ErrInvalidRequest = errors.New("invalid capture request")
)

// Config holds poll cadences and bounds for capture and device flows.
type Config struct {
	ResultInterval time.Duration
	// ResultTimeout bounds the image poll; settle.Unbounded restores the
	// open-ended behaviour.
	ResultTimeout time.Duration

	FilterWheelPoll    time.Duration
	FilterWheelTimeout time.Duration

	FocuserPoll         time.Duration
	FocuserTimeout      time.Duration
	FocuserSettleBuffer time.Duration
}

// DefaultConfig returns the cadences observed against a real server.
func DefaultConfig() Config {
	return Config{
		ResultInterval:      250 * time.Millisecond,
		ResultTimeout:       2 * time.Minute,
		FilterWheelPoll:     500 * time.Millisecond,
		FilterWheelTimeout:  time.Minute,
		FocuserPoll:         time.Second,
		FocuserTimeout:      2 * time.Minute,
		FocuserSettleBuffer: 3 * time.Second,
	}
}

// Recorder receives capture metrics; *observability.Collector satisfies it.
type Recorder interface {
	settle.Recorder
	IncExposuresRequested()
	ObserveCapture(outcome string)
}

// Orchestrator runs the capture state machine for one camera:
// IDLE → EXPOSURE_REQUESTED → COUNTDOWN → AWAITING_RESULT → (loop | IDLE),
// with ABORTED reachable from every non-idle state.
type Orchestrator struct {
	cmd          device.Commander
	tel          *device.Telemetry
	gate         *Gate
	cfg          Config
	clock        timectrl.Clock
	log          logging.Logger
	metrics      Recorder
	onTransition func(from, to State)

	mu      sync.Mutex
	state   State
	session *Session
	aborted bool
	last    *Image
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the wall clock.
func WithClock(c timectrl.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTransitionHook is called synchronously on every state change.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(o *Orchestrator) {
		o.onTransition = fn
	}
}

// New builds an orchestrator. A nil gate creates a private one; a nil
// telemetry creates one over a fresh store.
func New(cmd device.Commander, tel *device.Telemetry, gate *Gate, cfg Config, opts ...Option) *Orchestrator {
	if gate == nil {
		gate = NewGate(nil)
	}
	if tel == nil {
		tel = device.NewTelemetry(cmd, device.NewStore())
	}
	o := &Orchestrator{
		cmd:   cmd,
		tel:   tel,
		gate:  gate,
		cfg:   cfg,
		clock: timectrl.Wall{},
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Gate returns the capture gate shared with the device flows.
func (o *Orchestrator) Gate() *Gate {
	return o.gate
}

// State returns the current state machine position.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session returns a copy of the active session.
func (o *Orchestrator) Session() (Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return Session{}, false
	}
	return *o.session, true
}

// LastImage returns the most recent image from any session.
func (o *Orchestrator) LastImage() (Image, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Image{}, false
	}
	return *o.last, true
}

// Capture runs one exposure cycle, or repeated cycles when req.Loop is set,
// and blocks until the session ends. On abort or stop it returns the last
// image received, if any, together with ErrAborted.
func (o *Orchestrator) Capture(ctx context.Context, req Request) (Image, error) {
	if req.Duration < 0 {
		return Image{}, fmt.Errorf("%w: negative duration %v", ErrInvalidRequest, req.Duration)
	}
	if !o.gate.CanCapture() {
		return Image{}, fmt.Errorf("%w: held by %s", ErrGateClosed, strings.Join(o.gate.Holders(), ", "))
	}

	o.mu.Lock()
	if o.session != nil {
		o.mu.Unlock()
		return Image{}, ErrCaptureInProgress
	}
	sess := newSession(req, o.clock.Now())
	o.session = sess
	o.aborted = false
	o.mu.Unlock()

	ctx = logging.ContextWithOperationID(ctx, sess.ID)
	ctx, log := logging.WithOperationLogger(ctx, o.log)
	ctx, span := startSpan(ctx, "capture.Session",
		attribute.Float64("duration_s", req.Duration),
		attribute.Int("gain", req.Gain),
		attribute.Bool("loop", req.Loop),
	)
	defer span.End()

	log.Info(ctx, "capture session started",
		logging.Float("duration_s", req.Duration),
		logging.Bool("loop", req.Loop),
	)

	var (
		last    Image
		have    bool
		outcome = "completed"
	)
	defer func() {
		o.finish()
		if o.metrics != nil {
			o.metrics.ObserveCapture(outcome)
		}
		log.Info(ctx, "capture session ended",
			logging.String("outcome", outcome),
			logging.Int("frames", sess.Frames),
		)
	}()

	for o.capturing() {
		if !o.gate.CanCapture() {
			outcome = "gate_closed"
			err := fmt.Errorf("%w: held by %s", ErrGateClosed, strings.Join(o.gate.Holders(), ", "))
			span.SetStatus(codes.Error, err.Error())
			return last, err
		}
		img, err := o.cycle(ctx, log, sess)
		if err != nil {
			outcome = outcomeFor(err)
			if !errors.Is(err, ErrAborted) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return last, err
		}
		last, have = img, true
		if !req.Loop {
			break
		}
	}

	if o.wasAborted() || !have {
		outcome = "aborted"
		return last, ErrAborted
	}
	return last, nil
}

// cycle performs EXPOSURE_REQUESTED → [COUNTDOWN] → AWAITING_RESULT once.
func (o *Orchestrator) cycle(ctx context.Context, log logging.Logger, sess *Session) (Image, error) {
	o.transition(ExposureRequested)

	params := map[string]string{"duration": strconv.FormatFloat(sess.DurationSec, 'f', -1, 64)}
	if sess.Gain >= 0 {
		params["gain"] = strconv.Itoa(sess.Gain)
	}
	env, err := o.cmd.Do(ctx, device.Command{Kind: device.Camera, Verb: device.VerbCapture, Params: params})
	if err != nil {
		return Image{}, fmt.Errorf("request exposure: %w", err)
	}
	if err := env.Err(); err != nil {
		return Image{}, fmt.Errorf("request exposure: %w", err)
	}
	if o.metrics != nil {
		o.metrics.IncExposuresRequested()
	}
	o.tel.Store().Apply(device.Camera, map[string]any{"IsExposing": true})

	// An abort before the result poll cancels the exposure on the camera, so
	// there is no image to wait for. The abort may have reached the camera
	// before this exposure started, so it is sent again.
	if o.wasAborted() {
		abort := device.Command{Kind: device.Camera, Verb: device.VerbAbortExposure}
		if err := o.send(context.WithoutCancel(ctx), abort); err != nil {
			log.Warn(ctx, "re-sending abort failed", logging.Err(err))
		}
		return Image{}, ErrAborted
	}
	if sess.DurationSec >= 1 {
		o.transition(Countdown)
		if err := o.countdown(ctx, sess); err != nil {
			return Image{}, err
		}
	}
	if o.wasAborted() {
		return Image{}, ErrAborted
	}

	o.transition(AwaitingResult)
	res, err := settle.Wait(ctx,
		settle.Config{Name: string(device.Camera), Interval: o.cfg.ResultInterval, Timeout: o.cfg.ResultTimeout},
		o.fetchResult, imageReady, o.settleOptions()...)
	if err != nil {
		if errors.Is(err, settle.ErrTimeout) {
			return Image{}, fmt.Errorf("%w after %s (%d polls)", ErrResultTimeout, res.Elapsed, res.Polls)
		}
		return Image{}, fmt.Errorf("await image: %w", err)
	}

	payload, _ := res.Value.Object()
	data, _ := payload["Image"].(string)

	o.mu.Lock()
	sess.Frames++
	sess.CountdownSec = 0
	img := Image{
		SessionID:  sess.ID,
		Frame:      sess.Frames,
		Data:       data,
		Payload:    payload,
		ReceivedAt: o.clock.Now(),
	}
	o.last = &img
	o.mu.Unlock()

	o.tel.Store().Apply(device.Camera, map[string]any{"IsExposing": false})
	log.Debug(ctx, "image received", logging.Int("frame", img.Frame), logging.Int("polls", res.Polls))
	return img, nil
}

// countdown ticks once per second from the whole-second duration down to
// zero, dropping straight to zero once capturing is cleared.
func (o *Orchestrator) countdown(ctx context.Context, sess *Session) error {
	remaining := int(sess.DurationSec)
	o.setCountdown(sess, remaining)
	for remaining > 0 {
		select {
		case <-ctx.Done():
			o.setCountdown(sess, 0)
			return fmt.Errorf("countdown: %w", ctx.Err())
		case <-o.clock.After(time.Second):
		}
		if !o.capturing() {
			o.setCountdown(sess, 0)
			return nil
		}
		remaining--
		o.setCountdown(sess, remaining)
	}
	return nil
}

func (o *Orchestrator) fetchResult(ctx context.Context) (device.Envelope, error) {
	return o.cmd.Do(ctx, device.Command{Kind: device.Camera, Verb: device.VerbCaptureResult})
}

// imageReady accepts only a successful envelope carrying a non-empty image;
// placeholder strings and errors keep the poll going.
func imageReady(env device.Envelope) bool {
	if !env.OK() {
		return false
	}
	payload, ok := env.Object()
	if !ok {
		return false
	}
	data, _ := payload["Image"].(string)
	return data != ""
}

// Stop clears the capturing flag without touching the camera. The current
// exposure finishes and no further cycle starts. It reports whether a
// session was active.
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return false
	}
	o.session.IsCapturing = false
	return true
}

// Abort stops looping and tells the camera to abort the exposure. An image
// poll already in flight may still complete.
func (o *Orchestrator) Abort(ctx context.Context) error {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return nil
	}
	o.session.IsCapturing = false
	o.aborted = true
	from := o.state
	o.state = Aborted
	o.mu.Unlock()
	o.notify(from, Aborted)

	env, err := o.cmd.Do(ctx, device.Command{Kind: device.Camera, Verb: device.VerbAbortExposure})
	if err != nil {
		return fmt.Errorf("abort exposure: %w", err)
	}
	if err := env.Err(); err != nil {
		return fmt.Errorf("abort exposure: %w", err)
	}
	return nil
}

func (o *Orchestrator) capturing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session != nil && o.session.IsCapturing
}

func (o *Orchestrator) wasAborted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.aborted
}

func (o *Orchestrator) setCountdown(sess *Session, secs int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess.CountdownSec = secs
}

// transition moves to next unless an abort already claimed the state.
func (o *Orchestrator) transition(next State) {
	o.mu.Lock()
	if o.aborted || o.state == next {
		o.mu.Unlock()
		return
	}
	from := o.state
	o.state = next
	o.mu.Unlock()
	o.notify(from, next)
}

// finish resets the session so a new capture may start.
func (o *Orchestrator) finish() {
	o.mu.Lock()
	from := o.state
	o.state = Idle
	if o.session != nil {
		o.session.IsCapturing = false
		o.session.CountdownSec = 0
	}
	o.session = nil
	o.mu.Unlock()
	o.tel.Store().Apply(device.Camera, map[string]any{"IsExposing": false})
	if from != Idle {
		o.notify(from, Idle)
	}
}

func (o *Orchestrator) notify(from, to State) {
	if o.onTransition != nil {
		o.onTransition(from, to)
	}
}

// settleOptions leaves the logger to settle.Wait, which picks up the
// operation logger stored on ctx.
func (o *Orchestrator) settleOptions() []settle.Option {
	opts := []settle.Option{settle.WithClock(o.clock)}
	if o.metrics != nil {
		opts = append(opts, settle.WithRecorder(o.metrics))
	}
	return opts
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrResultTimeout):
		return "result_timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, settle.ErrCancelled):
		return "cancelled"
	default:
		return "failed"
	}
}
