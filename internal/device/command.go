package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies an equipment class on the imaging server.
type Kind string

const (
	Camera        Kind = "camera"
	FilterWheel   Kind = "filterwheel"
	Focuser       Kind = "focuser"
	Mount         Kind = "mount"
	Dome          Kind = "dome"
	Rotator       Kind = "rotator"
	Guider        Kind = "guider"
	FlatDevice    Kind = "flatdevice"
	Switch        Kind = "switch"
	Weather       Kind = "weather"
	SafetyMonitor Kind = "safetymonitor"
)

// Kinds lists every known equipment kind.
var Kinds = []Kind{Camera, FilterWheel, Focuser, Mount, Dome, Rotator, Guider, FlatDevice, Switch, Weather, SafetyMonitor}

// ParseKind maps a case-sensitive kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Verb is an equipment-specific action understood by the server.
type Verb string

const (
	VerbInfo          Verb = "info"
	VerbConnect       Verb = "connect"
	VerbDisconnect    Verb = "disconnect"
	VerbCapture       Verb = "capture"
	VerbCaptureResult Verb = "capture-result"
	VerbAbortExposure Verb = "abort-exposure"
	VerbChangeFilter  Verb = "change-filter"
	VerbMove          Verb = "move"
)

var (
	// ErrCommandFailed is returned when the server answers with a
	// non-success envelope.
	ErrCommandFailed = errors.New("device command failed")
	// ErrMalformedResponse is returned when a response payload does not
	// have the expected shape.
	ErrMalformedResponse = errors.New("malformed device response")
	// ErrUnknownKind is returned for unrecognised equipment kinds.
	ErrUnknownKind = errors.New("unknown equipment kind")
)

// Command is one request to the server.
type Command struct {
	Kind   Kind
	Verb   Verb
	Params map[string]string
}

func (c Command) String() string {
	return fmt.Sprintf("%s/%s", c.Kind, c.Verb)
}

// Envelope is the server's JSON reply wrapper. Response is opaque per kind.
type Envelope struct {
	Response   json.RawMessage `json:"Response"`
	Error      string          `json:"Error"`
	StatusCode int             `json:"StatusCode"`
	Success    bool            `json:"Success"`
	Type       string          `json:"Type"`
}

// OK reports whether the envelope signals success.
func (e Envelope) OK() bool {
	return e.Success && (e.StatusCode == 0 || e.StatusCode == http.StatusOK)
}

// Err converts a non-success envelope into an error wrapping
// ErrCommandFailed; successful envelopes yield nil.
func (e Envelope) Err() error {
	if e.OK() {
		return nil
	}
	msg := e.Error
	if msg == "" {
		msg = e.Text()
	}
	return fmt.Errorf("%w: status %d: %s", ErrCommandFailed, e.StatusCode, msg)
}

// Object decodes Response as a JSON object. It reports false for strings,
// arrays, null or invalid payloads.
func (e Envelope) Object() (map[string]any, bool) {
	trimmed := bytes.TrimSpace(e.Response)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Text returns Response when it is a JSON string, or "" otherwise.
func (e Envelope) Text() string {
	var s string
	if err := json.Unmarshal(e.Response, &s); err != nil {
		return ""
	}
	return s
}

// Commander sends commands to the imaging server. The concrete HTTP client
// lives outside this module.
type Commander interface {
	Do(ctx context.Context, cmd Command) (Envelope, error)
}

// CommanderFunc adapts a function to Commander.
type CommanderFunc func(ctx context.Context, cmd Command) (Envelope, error)

// Do implements Commander.
func (f CommanderFunc) Do(ctx context.Context, cmd Command) (Envelope, error) {
	return f(ctx, cmd)
}

// Respond builds a successful envelope around payload.
func Respond(payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Response: raw, StatusCode: http.StatusOK, Success: true, Type: "API"}, nil
}

// Fail builds a failed envelope with the given status and message.
func Fail(status int, msg string) Envelope {
	return Envelope{Response: json.RawMessage(`""`), Error: msg, StatusCode: status, Success: false, Type: "API"}
}
