package device

import (
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/signalsfoundry/observatory-remote/timectrl"
)

// Snapshot is a copy of the last-known telemetry for one equipment kind.
// Field names follow the server's JSON (Connected, IsMoving, Slewing, ...).
type Snapshot struct {
	Kind      Kind
	Fields    map[string]any
	UpdatedAt time.Time
}

// Connected reports the "Connected" flag.
func (s Snapshot) Connected() bool {
	return s.Bool("Connected")
}

// Busy reports the kind-specific busy flag: exposing cameras, moving filter
// wheels and rotators, moving or settling focusers, slewing mounts and domes.
func (s Snapshot) Busy() bool {
	switch s.Kind {
	case Camera:
		return s.Bool("IsExposing")
	case FilterWheel, Rotator:
		return s.Bool("IsMoving")
	case Focuser:
		return s.Bool("IsMoving") || s.Bool("IsSettling")
	case Mount, Dome:
		return s.Bool("Slewing")
	default:
		return false
	}
}

// Get returns the raw value for key.
func (s Snapshot) Get(key string) (any, bool) {
	v, ok := s.Fields[key]
	return v, ok
}

// Bool returns key as a bool, false when absent or of another type.
func (s Snapshot) Bool(key string) bool {
	v, _ := s.Fields[key].(bool)
	return v
}

// Float returns key as a float64, 0 when absent or non-numeric.
func (s Snapshot) Float(key string) float64 {
	return ToFloat(s.Fields[key])
}

// Int returns key truncated to an int.
func (s Snapshot) Int(key string) int {
	return int(ToFloat(s.Fields[key]))
}

// String returns key as a string, "" when absent or of another type.
func (s Snapshot) String(key string) string {
	v, _ := s.Fields[key].(string)
	return v
}

// ToFloat converts JSON-decoded numbers (and numeric strings) to float64.
// Anything else yields 0.
func ToFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Store is the process-wide telemetry container, one record per kind.
// Readers receive copies; only Apply and Reset mutate it.
type Store struct {
	mu        sync.RWMutex
	clock     timectrl.Clock
	devices   map[Kind]*record
	observers []func(Snapshot)
}

type record struct {
	fields    map[string]any
	updatedAt time.Time
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithStoreClock sets the clock used to stamp updates.
func WithStoreClock(c timectrl.Clock) StoreOption {
	return func(s *Store) {
		s.clock = c
	}
}

// NewStore constructs an empty telemetry store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		clock:   timectrl.Wall{},
		devices: make(map[Kind]*record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current telemetry for kind. Unknown kinds
// yield an empty snapshot.
func (s *Store) Snapshot(kind Kind) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(kind)
}

// Apply merges partial into the telemetry for kind and returns the result.
// Observers are notified after the lock is released.
func (s *Store) Apply(kind Kind, partial map[string]any) Snapshot {
	s.mu.Lock()
	rec, ok := s.devices[kind]
	if !ok {
		rec = &record{fields: make(map[string]any, len(partial))}
		s.devices[kind] = rec
	}
	maps.Copy(rec.fields, partial)
	rec.updatedAt = s.clock.Now()
	snap := s.snapshotLocked(kind)
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
	return snap
}

// Reset drops everything known about kind. It is called on explicit
// disconnect only.
func (s *Store) Reset(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, kind)
}

// Observe registers fn to be called with every applied snapshot.
func (s *Store) Observe(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Store) snapshotLocked(kind Kind) Snapshot {
	rec, ok := s.devices[kind]
	if !ok {
		return Snapshot{Kind: kind, Fields: map[string]any{}}
	}
	return Snapshot{Kind: kind, Fields: maps.Clone(rec.fields), UpdatedAt: rec.updatedAt}
}
