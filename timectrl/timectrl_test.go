package timectrl

import (
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start)

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestTimeControllerFiresDueTimers(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start)

	short := tc.After(time.Second)
	long := tc.After(5 * time.Second)
	if got := tc.PendingTimers(); got != 2 {
		t.Fatalf("PendingTimers() = %d, want 2", got)
	}

	tc.Advance(2 * time.Second)
	select {
	case got := <-short:
		if !got.Equal(start.Add(2 * time.Second)) {
			t.Fatalf("short timer fired at %v", got)
		}
	default:
		t.Fatalf("short timer did not fire after Advance")
	}
	select {
	case <-long:
		t.Fatalf("long timer fired early")
	default:
	}
	if got := tc.PendingTimers(); got != 1 {
		t.Fatalf("PendingTimers() = %d, want 1", got)
	}

	tc.Advance(3 * time.Second)
	select {
	case <-long:
	default:
		t.Fatalf("long timer did not fire")
	}
}

func TestTimeControllerZeroDurationFiresImmediately(t *testing.T) {
	tc := NewTimeController(time.Unix(0, 0))
	select {
	case <-tc.After(0):
	default:
		t.Fatalf("After(0) did not fire immediately")
	}
}

func TestStepperAdvancesOnAfter(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	s := NewStepper(start)

	var hooked []time.Duration
	s.OnAfter = func(_ time.Time, d time.Duration) { hooked = append(hooked, d) }

	<-s.After(time.Second)
	<-s.After(250 * time.Millisecond)

	if got, want := s.Now(), start.Add(1250*time.Millisecond); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
	if len(hooked) != 2 || hooked[0] != time.Second {
		t.Fatalf("OnAfter saw %v", hooked)
	}
}
