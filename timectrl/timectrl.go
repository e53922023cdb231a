package timectrl

import (
	"sort"
	"sync"
	"time"
)

// Clock is the time source used by polling loops and countdowns. Components
// depend on this rather than the time package so tests can drive time
// deterministically.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time once d has
	// elapsed on this clock.
	After(d time.Duration) <-chan time.Time
}

// Wall is the real wall clock.
type Wall struct{}

// Now implements Clock.
func (Wall) Now() time.Time { return time.Now() }

// After implements Clock.
func (Wall) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Stepper is a clock that advances itself by d on every After call and fires
// immediately. Loops driven by a Stepper run as fast as the CPU allows while
// still observing a consistent timeline.
type Stepper struct {
	mu  sync.Mutex
	now time.Time

	// OnAfter, when set, is invoked after the clock advanced and before the
	// channel is returned.
	OnAfter func(now time.Time, d time.Duration)
}

// NewStepper returns a Stepper starting at start.
func NewStepper(start time.Time) *Stepper {
	return &Stepper{now: start}
}

// Now implements Clock.
func (s *Stepper) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// After implements Clock.
func (s *Stepper) After(d time.Duration) <-chan time.Time {
	s.mu.Lock()
	if d > 0 {
		s.now = s.now.Add(d)
	}
	now := s.now
	hook := s.OnAfter
	s.mu.Unlock()

	if hook != nil {
		hook(now, d)
	}
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// TimeController is a manually advanced clock. Timers created with After
// fire when Advance moves the current time past their deadline.
type TimeController struct {
	mu          sync.Mutex
	currentTime time.Time
	timers      []timer
}

type timer struct {
	deadline time.Time
	ch       chan time.Time
}

// NewTimeController constructs a controller positioned at start.
func NewTimeController(start time.Time) *TimeController {
	return &TimeController{currentTime: start}
}

// Now implements Clock.
func (tc *TimeController) Now() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.currentTime
}

// After implements Clock. Non-positive durations fire immediately.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- tc.currentTime
		return ch
	}
	tc.timers = append(tc.timers, timer{deadline: tc.currentTime.Add(d), ch: ch})
	return ch
}

// SetTime jumps the clock to t and fires every timer that became due.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	due := tc.collectDueLocked()
	tc.mu.Unlock()

	for _, tm := range due {
		tm.ch <- t
	}
}

// Advance moves the clock forward by d and fires due timers in deadline
// order.
func (tc *TimeController) Advance(d time.Duration) {
	tc.SetTime(tc.Now().Add(d))
}

// PendingTimers reports how many timers are waiting to fire. Tests use it to
// wait until a loop has parked on the clock.
func (tc *TimeController) PendingTimers() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.timers)
}

func (tc *TimeController) collectDueLocked() []timer {
	sort.SliceStable(tc.timers, func(i, j int) bool {
		return tc.timers[i].deadline.Before(tc.timers[j].deadline)
	})
	n := 0
	for n < len(tc.timers) && !tc.timers[n].deadline.After(tc.currentTime) {
		n++
	}
	due := append([]timer(nil), tc.timers[:n]...)
	tc.timers = tc.timers[n:]
	return due
}
