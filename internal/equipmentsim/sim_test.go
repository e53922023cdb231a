package equipmentsim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/observatory-remote/internal/capture"
	"github.com/signalsfoundry/observatory-remote/internal/device"
	"github.com/signalsfoundry/observatory-remote/internal/events"
	"github.com/signalsfoundry/observatory-remote/timectrl"
)

var start = time.Date(2025, 1, 20, 21, 0, 0, 0, time.UTC)

func TestEquipmentDrivesCaptureFlowsEndToEnd(t *testing.T) {
	clock := timectrl.NewStepper(start)
	store := device.NewStore(device.WithStoreClock(clock))
	dispatcher := events.NewDispatcher(nil)
	dispatcher.Register(events.ChannelLive, device.LiveEventHandler(store))

	var pushed []string
	sink := func(ch events.Channel, payload []byte) {
		msg, err := events.Decode(ch, payload)
		if err != nil {
			t.Errorf("Decode: %v", err)
			return
		}
		pushed = append(pushed, msg.Event)
		if err := dispatcher.Dispatch(ch, payload); err != nil {
			t.Errorf("Dispatch: %v", err)
		}
	}
	eq := New(DefaultConfig(), WithClock(clock), WithEventSink(sink))
	orch := capture.New(eq, device.NewTelemetry(eq, store), nil, capture.DefaultConfig(), capture.WithClock(clock))
	ctx := context.Background()

	img, err := orch.Capture(ctx, capture.Request{Duration: 2, Gain: 120})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if img.Data == "" || img.Payload["Filter"] != "L" {
		t.Fatalf("unexpected image %+v", img)
	}
	if want := start.Add(2*time.Second + 750*time.Millisecond); !img.ReceivedAt.Equal(want) {
		t.Fatalf("image at %v, want %v", img.ReceivedAt, want)
	}

	if err := orch.ChangeFilter(ctx, 4); err != nil {
		t.Fatalf("ChangeFilter: %v", err)
	}
	if len(pushed) != 1 || pushed[0] != "FILTERWHEEL-CHANGED" {
		t.Fatalf("pushed events = %v", pushed)
	}
	sel, _ := store.Snapshot(device.FilterWheel).Get("SelectedFilter")
	if sel.(map[string]any)["Name"] != "Ha" {
		t.Fatalf("SelectedFilter = %v", sel)
	}

	if err := orch.MoveFocuser(ctx, 11000); err != nil {
		t.Fatalf("MoveFocuser: %v", err)
	}
	foc := store.Snapshot(device.Focuser)
	if foc.Int("Position") != 11000 || foc.Busy() {
		t.Fatalf("focuser = %+v", foc.Fields)
	}

	img, err = orch.Capture(ctx, capture.Request{Duration: 0})
	if err != nil {
		t.Fatalf("second Capture: %v", err)
	}
	if img.Payload["Filter"] != "Ha" || eq.Frames() != 2 {
		t.Fatalf("second image %+v, frames %d", img.Payload, eq.Frames())
	}
}

func TestEquipmentFocuserMechanics(t *testing.T) {
	clock := timectrl.NewTimeController(start)
	eq := New(DefaultConfig(), WithClock(clock))
	ctx := context.Background()
	info := func() device.Snapshot {
		env, err := eq.Do(ctx, device.Command{Kind: device.Focuser, Verb: device.VerbInfo})
		if err != nil {
			t.Fatalf("info: %v", err)
		}
		obj, _ := env.Object()
		return device.Snapshot{Kind: device.Focuser, Fields: obj}
	}

	if _, err := eq.Do(ctx, device.Command{Kind: device.Focuser, Verb: device.VerbMove, Params: map[string]string{"position": "11000"}}); err != nil {
		t.Fatalf("move: %v", err)
	}
	clock.Advance(time.Second)
	if s := info(); !s.Bool("IsMoving") || s.Int("Position") != 10500 {
		t.Fatalf("mid-move = %+v", s.Fields)
	}
	clock.Advance(time.Second)
	if s := info(); s.Bool("IsMoving") || !s.Bool("IsSettling") {
		t.Fatalf("after travel = %+v", s.Fields)
	}
	clock.Advance(time.Second)
	if s := info(); s.Busy() || s.Int("Position") != 11000 {
		t.Fatalf("settled = %+v", s.Fields)
	}
}

func TestEquipmentRejectsBadCommands(t *testing.T) {
	eq := New(DefaultConfig(), WithClock(timectrl.NewTimeController(start)))
	ctx := context.Background()

	tests := []device.Command{
		{Kind: device.FilterWheel, Verb: device.VerbChangeFilter, Params: map[string]string{"filterId": "99"}},
		{Kind: device.Camera, Verb: device.VerbCapture, Params: map[string]string{"duration": "abc"}},
		{Kind: device.Camera, Verb: device.VerbCaptureResult},
		{Kind: device.Focuser, Verb: device.VerbMove, Params: map[string]string{"position": "-4"}},
		{Kind: device.Mount, Verb: device.VerbMove},
	}
	for _, cmd := range tests {
		env, err := eq.Do(ctx, cmd)
		if err != nil {
			t.Fatalf("%s: unexpected transport error %v", cmd, err)
		}
		if !errors.Is(env.Err(), device.ErrCommandFailed) {
			t.Fatalf("%s: expected failed envelope, got %+v", cmd, env)
		}
	}

	if _, err := eq.Do(ctx, device.Command{Kind: device.Camera, Verb: device.VerbDisconnect}); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	env, _ := eq.Do(ctx, device.Command{Kind: device.Camera, Verb: device.VerbInfo})
	if obj, _ := env.Object(); obj["Connected"] != false {
		t.Fatalf("camera info after disconnect = %v", obj)
	}
}

func TestEquipmentTransientFailuresAreRetried(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailEvery = 2
	clock := timectrl.NewStepper(start)
	eq := New(cfg, WithClock(clock))
	orch := capture.New(eq, nil, nil, capture.DefaultConfig(), capture.WithClock(clock))

	// Call 1 changes the filter, call 2 fails, call 3 and later settle.
	if err := orch.ChangeFilter(context.Background(), 1); err != nil {
		t.Fatalf("ChangeFilter: %v", err)
	}

	_, err := eq.Do(context.Background(), device.Command{Kind: device.Mount, Verb: device.VerbInfo})
	_, err2 := eq.Do(context.Background(), device.Command{Kind: device.Mount, Verb: device.VerbInfo})
	if !errors.Is(err, ErrTransport) && !errors.Is(err2, ErrTransport) {
		t.Fatalf("expected one of two consecutive calls to fail, got %v and %v", err, err2)
	}
}
