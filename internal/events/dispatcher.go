package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/signalsfoundry/observatory-remote/internal/logging"
)

// Channel names one push channel.
type Channel string

const (
	ChannelLive  Channel = "live"
	ChannelMount Channel = "mount"
	ChannelTPPA  Channel = "tppa"
)

// Known reports whether c is one of the server's push channels.
func (c Channel) Known() bool {
	switch c {
	case ChannelLive, ChannelMount, ChannelTPPA:
		return true
	}
	return false
}

var (
	// ErrUnknownChannel is returned for channels outside the known set.
	ErrUnknownChannel = errors.New("unknown push channel")
	// ErrMalformedMessage is returned when a payload is not a JSON envelope.
	ErrMalformedMessage = errors.New("malformed push message")
	// ErrNoHandler is returned when no callback is registered for a channel.
	ErrNoHandler = errors.New("no handler registered for channel")
)

// Message is one decoded push message.
type Message struct {
	Channel Channel
	// Event is Response.Event for object payloads, or the payload itself
	// when Response is a plain string.
	Event      string
	Fields     map[string]any
	Response   json.RawMessage
	Success    bool
	Error      string
	ReceivedAt time.Time
}

// Handler consumes messages for one channel.
type Handler func(Message)

type envelope struct {
	Response   json.RawMessage `json:"Response"`
	Error      string          `json:"Error"`
	StatusCode int             `json:"StatusCode"`
	Success    bool            `json:"Success"`
	Type       string          `json:"Type"`
}

// Dispatcher routes raw payloads to the callback registered per channel.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Channel]Handler
	log      logging.Logger
	now      func() time.Time
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher(log logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Noop()
	}
	return &Dispatcher{
		handlers: make(map[Channel]Handler),
		log:      log,
		now:      time.Now,
	}
}

// Register installs h as the single callback for ch, replacing any earlier
// registration. It reports whether a previous handler was replaced.
func (d *Dispatcher) Register(ch Channel, h Handler) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, replaced := d.handlers[ch]
	if h == nil {
		delete(d.handlers, ch)
		return replaced
	}
	d.handlers[ch] = h
	return replaced
}

// Unregister removes the callback for ch.
func (d *Dispatcher) Unregister(ch Channel) {
	d.Register(ch, nil)
}

// Dispatch decodes payload and hands it to the callback for ch. A panicking
// callback is recovered and logged so one bad message cannot kill the
// receive loop.
func (d *Dispatcher) Dispatch(ch Channel, payload []byte) error {
	if !ch.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	msg, err := Decode(ch, payload)
	if err != nil {
		return err
	}
	msg.ReceivedAt = d.now()

	d.mu.RLock()
	h, ok := d.handlers[ch]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, ch)
	}
	d.safeCall(h, msg)
	return nil
}

func (d *Dispatcher) safeCall(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error(context.Background(), "push handler panicked",
				logging.String("channel", string(msg.Channel)),
				logging.String("event", msg.Event),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
		}
	}()
	h(msg)
}

// Decode parses a server envelope into a Message without dispatching it.
func Decode(ch Channel, payload []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	msg := Message{
		Channel:  ch,
		Response: env.Response,
		Success:  env.Success,
		Error:    env.Error,
	}

	trimmed := bytes.TrimSpace(env.Response)
	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '{':
		var fields map[string]any
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		msg.Fields = fields
		msg.Event, _ = fields["Event"].(string)
	case trimmed[0] == '"':
		_ = json.Unmarshal(trimmed, &msg.Event)
	}
	return msg, nil
}
