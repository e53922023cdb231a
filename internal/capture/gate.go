package capture

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrGateClosed is returned when a capture is requested while a filter or
// focuser operation holds the gate.
var ErrGateClosed = errors.New("capture gate closed")

// GateRecorder observes gate transitions; *observability.Collector
// satisfies it.
type GateRecorder interface {
	SetGateOpen(open bool)
}

// Gate is the shared flag that blocks new exposures while another device is
// settling. Every holder releases through Hold's deferred path, so a failing
// or panicking operation cannot leave the gate shut.
type Gate struct {
	mu      sync.Mutex
	holders map[string]int
	total   int
	metrics GateRecorder
}

// NewGate returns an open gate. rec may be nil.
func NewGate(rec GateRecorder) *Gate {
	g := &Gate{holders: make(map[string]int), metrics: rec}
	if rec != nil {
		rec.SetGateOpen(true)
	}
	return g
}

// CanCapture reports whether no operation currently holds the gate.
func (g *Gate) CanCapture() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total == 0
}

// Holders lists the reasons currently keeping the gate closed.
func (g *Gate) Holders() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.holders))
	for reason := range g.holders {
		out = append(out, reason)
	}
	sort.Strings(out)
	return out
}

// Hold closes the gate for the duration of fn. The gate reopens once the
// last concurrent holder returns, including on error or panic.
func (g *Gate) Hold(ctx context.Context, reason string, fn func(context.Context) error) error {
	g.acquire(reason)
	defer g.release(reason)
	return fn(ctx)
}

func (g *Gate) acquire(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.holders[reason]++
	g.total++
	if g.total == 1 && g.metrics != nil {
		g.metrics.SetGateOpen(false)
	}
}

func (g *Gate) release(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holders[reason]--; g.holders[reason] <= 0 {
		delete(g.holders, reason)
	}
	g.total--
	if g.total == 0 && g.metrics != nil {
		g.metrics.SetGateOpen(true)
	}
}
