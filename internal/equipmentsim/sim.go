// Package equipmentsim is an in-process stand-in for the imaging server's
// equipment API. It answers device commands with realistic busy windows
// driven by a clock, so capture and settle flows can run end to end without
// hardware.
package equipmentsim

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/signalsfoundry/observatory-remote/internal/device"
	"github.com/signalsfoundry/observatory-remote/internal/events"
	"github.com/signalsfoundry/observatory-remote/timectrl"
)

// ErrTransport is returned by injected transient failures.
var ErrTransport = errors.New("simulated transport failure")

// DefaultFilters is the wheel loaded by New.
var DefaultFilters = []string{"L", "R", "G", "B", "Ha", "OIII", "SII"}

// Config tunes the simulated mechanics.
type Config struct {
	Filters []string
	// FilterSwitchTime is the time the wheel spends moving per change.
	FilterSwitchTime time.Duration
	// FocuserStepsPerSecond sets focuser travel speed.
	FocuserStepsPerSecond float64
	// FocuserSettleTime follows every move with IsSettling set.
	FocuserSettleTime time.Duration
	// ImageProcessingTime elapses between exposure end and image readiness.
	ImageProcessingTime time.Duration
	// FailEvery makes every Nth command fail with ErrTransport; 0 disables.
	FailEvery int
	// InitialFocuserPosition seeds the focuser.
	InitialFocuserPosition int
}

// DefaultConfig returns mechanics resembling a small amateur setup.
func DefaultConfig() Config {
	return Config{
		Filters:                append([]string(nil), DefaultFilters...),
		FilterSwitchTime:       2 * time.Second,
		FocuserStepsPerSecond:  500,
		FocuserSettleTime:      time.Second,
		ImageProcessingTime:    750 * time.Millisecond,
		InitialFocuserPosition: 10000,
	}
}

// EventSink receives push messages the simulator publishes, in the same
// envelope format the server uses.
type EventSink func(ch events.Channel, payload []byte)

// Equipment simulates camera, filter wheel, focuser and mount.
type Equipment struct {
	mu    sync.Mutex
	cfg   Config
	clock timectrl.Clock
	sink  EventSink
	calls int

	connected map[device.Kind]bool

	exposureEnd   time.Time
	imageReadyAt  time.Time
	exposureTime  float64
	gain          int
	hasExposure   bool
	frames        int
	cameraTempC   float64
	filterIdx     int
	filterMoveEnd time.Time
	filterPending bool
	focusFrom     int
	focusTo       int
	focusStart    time.Time
	focusMoveEnd  time.Time
	focusSettled  time.Time
	atPark        bool
}

// Option customises Equipment.
type Option func(*Equipment)

// WithClock overrides the wall clock.
func WithClock(c timectrl.Clock) Option {
	return func(e *Equipment) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithEventSink publishes live events such as FILTERWHEEL-CHANGED.
func WithEventSink(sink EventSink) Option {
	return func(e *Equipment) {
		e.sink = sink
	}
}

// New returns equipment with every simulated device connected.
func New(cfg Config, opts ...Option) *Equipment {
	if len(cfg.Filters) == 0 {
		cfg.Filters = append([]string(nil), DefaultFilters...)
	}
	if cfg.FocuserStepsPerSecond <= 0 {
		cfg.FocuserStepsPerSecond = 500
	}
	e := &Equipment{
		cfg:   cfg,
		clock: timectrl.Wall{},
		connected: map[device.Kind]bool{
			device.Camera:      true,
			device.FilterWheel: true,
			device.Focuser:     true,
			device.Mount:       true,
		},
		cameraTempC: -10,
		focusFrom:   cfg.InitialFocuserPosition,
		focusTo:     cfg.InitialFocuserPosition,
		atPark:      true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Frames reports how many images have been produced.
func (e *Equipment) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// Do implements device.Commander.
func (e *Equipment) Do(ctx context.Context, cmd device.Command) (device.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return device.Envelope{}, err
	}
	e.mu.Lock()
	e.calls++
	if e.cfg.FailEvery > 0 && e.calls%e.cfg.FailEvery == 0 {
		e.mu.Unlock()
		return device.Envelope{}, fmt.Errorf("%s: %w", cmd, ErrTransport)
	}
	now := e.clock.Now()
	pending := e.collectEventsLocked(now)
	env, err := e.handleLocked(now, cmd)
	e.mu.Unlock()

	e.publish(pending)
	return env, err
}

func (e *Equipment) handleLocked(now time.Time, cmd device.Command) (device.Envelope, error) {
	switch cmd.Verb {
	case device.VerbConnect:
		e.connected[cmd.Kind] = true
		return device.Respond(string(cmd.Kind) + " connected")
	case device.VerbDisconnect:
		e.connected[cmd.Kind] = false
		return device.Respond(string(cmd.Kind) + " disconnected")
	}
	if !e.connected[cmd.Kind] {
		if cmd.Verb == device.VerbInfo {
			return device.Respond(map[string]any{"Connected": false})
		}
		return device.Fail(http.StatusConflict, string(cmd.Kind)+" not connected"), nil
	}

	switch cmd.Kind {
	case device.Camera:
		return e.camera(now, cmd)
	case device.FilterWheel:
		return e.filterWheel(now, cmd)
	case device.Focuser:
		return e.focuser(now, cmd)
	case device.Mount:
		if cmd.Verb == device.VerbInfo {
			return device.Respond(map[string]any{"Connected": true, "Slewing": false, "AtPark": e.atPark, "TrackingEnabled": !e.atPark})
		}
	}
	return device.Fail(http.StatusBadRequest, "unsupported command "+cmd.String()), nil
}

func (e *Equipment) camera(now time.Time, cmd device.Command) (device.Envelope, error) {
	switch cmd.Verb {
	case device.VerbInfo:
		return device.Respond(map[string]any{
			"Connected":   true,
			"IsExposing":  e.hasExposure && now.Before(e.exposureEnd),
			"Temperature": e.cameraTempC,
			"Gain":        e.gain,
		})
	case device.VerbCapture:
		if e.hasExposure && now.Before(e.exposureEnd) {
			return device.Fail(http.StatusConflict, "Camera currently exposing"), nil
		}
		dur, err := strconv.ParseFloat(cmd.Params["duration"], 64)
		if err != nil || dur < 0 {
			return device.Fail(http.StatusBadRequest, "invalid duration"), nil
		}
		if g, err := strconv.Atoi(cmd.Params["gain"]); err == nil {
			e.gain = g
		}
		exposure := time.Duration(dur * float64(time.Second))
		e.exposureTime = dur
		e.exposureEnd = now.Add(exposure)
		e.imageReadyAt = e.exposureEnd.Add(e.cfg.ImageProcessingTime)
		e.hasExposure = true
		return device.Respond("Capture started")
	case device.VerbCaptureResult:
		if !e.hasExposure {
			return device.Fail(http.StatusBadRequest, "No capture available"), nil
		}
		if now.Before(e.imageReadyAt) {
			return device.Respond("Capture still in progress")
		}
		e.hasExposure = false
		e.frames++
		return device.Respond(map[string]any{
			"Image":        base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("frame-%d", e.frames))),
			"ExposureTime": e.exposureTime,
			"Filter":       e.cfg.Filters[e.filterIdx],
			"Gain":         e.gain,
		})
	case device.VerbAbortExposure:
		e.hasExposure = false
		e.exposureEnd = now
		return device.Respond("Exposure aborted")
	}
	return device.Fail(http.StatusBadRequest, "unsupported command "+cmd.String()), nil
}

func (e *Equipment) filterWheel(now time.Time, cmd device.Command) (device.Envelope, error) {
	switch cmd.Verb {
	case device.VerbInfo:
		return device.Respond(map[string]any{
			"Connected":        true,
			"IsMoving":         now.Before(e.filterMoveEnd),
			"SelectedFilter":   e.filterInfo(e.filterIdx),
			"AvailableFilters": e.cfg.Filters,
		})
	case device.VerbChangeFilter:
		id, err := strconv.Atoi(cmd.Params["filterId"])
		if err != nil || id < 0 || id >= len(e.cfg.Filters) {
			return device.Fail(http.StatusBadRequest, "invalid filter id"), nil
		}
		if id != e.filterIdx {
			e.filterIdx = id
			e.filterMoveEnd = now.Add(e.cfg.FilterSwitchTime)
			e.filterPending = true
		}
		return device.Respond("Filter changed")
	}
	return device.Fail(http.StatusBadRequest, "unsupported command "+cmd.String()), nil
}

func (e *Equipment) filterInfo(idx int) map[string]any {
	return map[string]any{"Name": e.cfg.Filters[idx], "Id": idx}
}

func (e *Equipment) focuser(now time.Time, cmd device.Command) (device.Envelope, error) {
	switch cmd.Verb {
	case device.VerbInfo:
		return device.Respond(map[string]any{
			"Connected":   true,
			"Position":    e.focuserPosition(now),
			"IsMoving":    now.Before(e.focusMoveEnd),
			"IsSettling":  !now.Before(e.focusMoveEnd) && now.Before(e.focusSettled),
			"Temperature": 8.5,
		})
	case device.VerbMove:
		target, err := strconv.Atoi(cmd.Params["position"])
		if err != nil || target < 0 {
			return device.Fail(http.StatusBadRequest, "invalid position"), nil
		}
		from := e.focuserPosition(now)
		travel := time.Duration(math.Abs(float64(target-from)) / e.cfg.FocuserStepsPerSecond * float64(time.Second))
		e.focusFrom, e.focusTo = from, target
		e.focusStart = now
		e.focusMoveEnd = now.Add(travel)
		e.focusSettled = e.focusMoveEnd.Add(e.cfg.FocuserSettleTime)
		return device.Respond("Moving focuser")
	}
	return device.Fail(http.StatusBadRequest, "unsupported command "+cmd.String()), nil
}

// focuserPosition interpolates linearly along the current move.
func (e *Equipment) focuserPosition(now time.Time) int {
	if !now.Before(e.focusMoveEnd) {
		return e.focusTo
	}
	total := e.focusMoveEnd.Sub(e.focusStart)
	if total <= 0 {
		return e.focusTo
	}
	frac := float64(now.Sub(e.focusStart)) / float64(total)
	return e.focusFrom + int(math.Round(frac*float64(e.focusTo-e.focusFrom)))
}

type pushEvent struct {
	channel events.Channel
	payload []byte
}

// collectEventsLocked queues live events whose trigger time has passed.
func (e *Equipment) collectEventsLocked(now time.Time) []pushEvent {
	if e.sink == nil || !e.filterPending || now.Before(e.filterMoveEnd) {
		return nil
	}
	e.filterPending = false
	payload, err := json.Marshal(map[string]any{
		"Response": map[string]any{
			"Event": "FILTERWHEEL-CHANGED",
			"New":   e.filterInfo(e.filterIdx),
		},
		"Error":      "",
		"StatusCode": http.StatusOK,
		"Success":    true,
		"Type":       "Socket",
	})
	if err != nil {
		return nil
	}
	return []pushEvent{{channel: events.ChannelLive, payload: payload}}
}

func (e *Equipment) publish(pending []pushEvent) {
	for _, ev := range pending {
		e.sink(ev.channel, ev.payload)
	}
}
