package device

import (
	"strings"

	"github.com/signalsfoundry/observatory-remote/internal/events"
)

var liveEventKinds = map[string]Kind{
	"CAMERA":        Camera,
	"FILTERWHEEL":   FilterWheel,
	"FOCUSER":       Focuser,
	"MOUNT":         Mount,
	"DOME":          Dome,
	"ROTATOR":       Rotator,
	"GUIDER":        Guider,
	"FLAT":          FlatDevice,
	"SWITCH":        Switch,
	"WEATHER":       Weather,
	"SAFETY":        SafetyMonitor,
	"SAFETYMONITOR": SafetyMonitor,
}

// LiveEventHandler returns a handler that folds live events into store.
// Every mapping only sets fields, so events may arrive in any order relative
// to polling or to our own commands.
func LiveEventHandler(store *Store) events.Handler {
	return func(msg events.Message) {
		name := msg.Event
		switch {
		case name == "FILTERWHEEL-CHANGED":
			update := map[string]any{"IsMoving": false}
			if next, ok := msg.Fields["New"].(map[string]any); ok {
				update["SelectedFilter"] = next
			}
			store.Apply(FilterWheel, update)
		case name == "FOCUSER-USER-FOCUSED", name == "AUTOFOCUS-FINISHED":
			update := map[string]any{"IsMoving": false}
			if pos, ok := msg.Fields["Position"]; ok {
				update["Position"] = pos
			}
			store.Apply(Focuser, update)
		case name == "MOUNT-PARKED":
			store.Apply(Mount, map[string]any{"AtPark": true, "Slewing": false})
		case name == "MOUNT-UNPARKED":
			store.Apply(Mount, map[string]any{"AtPark": false})
		case strings.HasSuffix(name, "-DISCONNECTED"):
			if kind, ok := liveEventKinds[strings.TrimSuffix(name, "-DISCONNECTED")]; ok {
				store.Reset(kind)
				store.Apply(kind, map[string]any{"Connected": false})
			}
		case strings.HasSuffix(name, "-CONNECTED"):
			if kind, ok := liveEventKinds[strings.TrimSuffix(name, "-CONNECTED")]; ok {
				store.Apply(kind, map[string]any{"Connected": true})
			}
		}
	}
}
