package capture

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is a capture state machine position.
type State int

const (
	Idle State = iota
	ExposureRequested
	Countdown
	AwaitingResult
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case ExposureRequested:
		return "EXPOSURE_REQUESTED"
	case Countdown:
		return "COUNTDOWN"
	case AwaitingResult:
		return "AWAITING_RESULT"
	case Aborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Request describes one capture, possibly looping.
type Request struct {
	// Duration is the exposure time in seconds.
	Duration float64
	// Gain is passed through to the camera; negative means camera default.
	Gain int
	Loop bool
}

// Session is the state of the active capture on a camera. At most one
// session exists per orchestrator.
type Session struct {
	ID           string
	DurationSec  float64
	Gain         int
	Loop         bool
	IsCapturing  bool
	CountdownSec int
	// Frames counts images received in this session.
	Frames    int
	StartedAt time.Time
}

func newSession(req Request, now time.Time) *Session {
	return &Session{
		ID:          uuid.NewString(),
		DurationSec: req.Duration,
		Gain:        req.Gain,
		Loop:        req.Loop,
		IsCapturing: true,
		StartedAt:   now,
	}
}

// Image is a processed frame returned by the server.
type Image struct {
	SessionID  string
	Frame      int
	Data       string
	Payload    map[string]any
	ReceivedAt time.Time
}
