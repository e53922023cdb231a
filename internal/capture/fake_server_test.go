package capture

import (
	"context"
	"net/http"
	"sync"

	"github.com/signalsfoundry/observatory-remote/internal/device"
)

// fakeServer answers camera, filter wheel and focuser commands the way the
// imaging server does, with scripted busy windows.
type fakeServer struct {
	mu    sync.Mutex
	calls []device.Command

	// placeholders is how many capture-result polls answer with a status
	// string before the image is ready.
	placeholders int
	pending      int
	neverReady   bool
	failCapture  bool
	failFilter   bool

	filterBusyPolls int
	filterBusyLeft  int

	focuserStates []map[string]any
	focuserIdx    int
	position      int

	onCommand func(device.Command)
}

func (f *fakeServer) Do(_ context.Context, cmd device.Command) (device.Envelope, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	hook := f.onCommand
	f.mu.Unlock()
	if hook != nil {
		hook(cmd)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case cmd.Kind == device.Camera && cmd.Verb == device.VerbCapture:
		if f.failCapture {
			return device.Fail(http.StatusConflict, "camera is busy"), nil
		}
		f.pending = f.placeholders
		return device.Respond("Capture started")
	case cmd.Kind == device.Camera && cmd.Verb == device.VerbCaptureResult:
		if f.neverReady || f.pending > 0 {
			f.pending--
			return device.Respond("Capture in progress")
		}
		return device.Respond(map[string]any{"Image": "aW1hZ2U=", "PlateSolveResult": nil})
	case cmd.Kind == device.Camera && cmd.Verb == device.VerbAbortExposure:
		return device.Respond("Exposure aborted")
	case cmd.Kind == device.FilterWheel && cmd.Verb == device.VerbChangeFilter:
		if f.failFilter {
			return device.Fail(http.StatusConflict, "filter wheel not connected"), nil
		}
		f.filterBusyLeft = f.filterBusyPolls
		return device.Respond("Filter changed")
	case cmd.Kind == device.FilterWheel && cmd.Verb == device.VerbInfo:
		moving := f.filterBusyLeft > 0
		if moving {
			f.filterBusyLeft--
		}
		return device.Respond(map[string]any{"Connected": true, "IsMoving": moving})
	case cmd.Kind == device.Focuser && cmd.Verb == device.VerbMove:
		f.focuserIdx = 0
		return device.Respond("Moving")
	case cmd.Kind == device.Focuser && cmd.Verb == device.VerbInfo:
		state := map[string]any{"Connected": true, "IsMoving": false, "IsSettling": false, "Position": f.position}
		if f.focuserIdx < len(f.focuserStates) {
			for k, v := range f.focuserStates[f.focuserIdx] {
				state[k] = v
			}
			f.focuserIdx++
		}
		return device.Respond(state)
	}
	return device.Fail(http.StatusNotFound, "unknown command "+cmd.String()), nil
}

func (f *fakeServer) count(kind device.Kind, verb device.Verb) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Kind == kind && c.Verb == verb {
			n++
		}
	}
	return n
}

func (f *fakeServer) sequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}
