// Package cache implements the engine's generic query cache: values are
// keyed by a deterministic serialization of (operation, parameters),
// stamped with their write time, and classified by TTL class. Expiry is
// checked lazily on read; the only eager eviction is FIFO once the entry
// count exceeds the configured cap.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"wayfinder.transitlab.org/internal/clock"
)

// Class names a TTL tier. Every cached operation declares one.
type Class string

const (
	ClassStops     Class = "stops"
	ClassRoutes    Class = "routes"
	ClassSchedules Class = "schedules"
	ClassRealtime  Class = "realtime"
	ClassAlerts    Class = "alerts"
	ClassFreshness Class = "freshness"
)

// DefaultCap bounds the number of live entries per cache instance.
const DefaultCap = 100

// TTLFor returns the validity duration of a class. Unknown classes get the
// shortest tier so a typo can never pin stale data.
func TTLFor(class Class) time.Duration {
	switch class {
	case ClassStops, ClassRoutes:
		return 24 * time.Hour
	case ClassSchedules:
		return time.Hour
	case ClassRealtime:
		return 30 * time.Second
	case ClassAlerts:
		return 5 * time.Minute
	case ClassFreshness:
		return 7 * 24 * time.Hour
	default:
		return 30 * time.Second
	}
}

type entry struct {
	value     any
	class     Class
	writtenAt time.Time
}

// Store is a bounded FIFO cache with per-class TTLs. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	order   []string // insertion order, oldest first
	cap     int
	clk     clock.Clock

	// optional observers, used to feed metrics counters
	onHit  func(class Class)
	onMiss func(class Class)
}

// New creates a Store with the given capacity. A cap <= 0 uses DefaultCap.
func New(capacity int, clk clock.Clock) *Store {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Store{
		entries: make(map[string]entry, capacity),
		cap:     capacity,
		clk:     clk,
	}
}

// Observe installs hit/miss callbacks. Either func may be nil.
func (s *Store) Observe(onHit, onMiss func(class Class)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onHit = onHit
	s.onMiss = onMiss
}

// Get returns the cached value for key if present and not expired.
// Expired entries are removed on the spot.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.clk.Now().Sub(e.writtenAt) >= TTLFor(e.class) {
		s.removeLocked(key)
		if s.onMiss != nil {
			s.onMiss(e.class)
		}
		return nil, false
	}
	if s.onHit != nil {
		s.onHit(e.class)
	}
	return e.value, true
}

// Set stores value under key with the given TTL class. Re-setting an
// existing key updates it in place without changing its FIFO position.
func (s *Store) Set(key string, class Class, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = entry{value: value, class: class, writtenAt: s.clk.Now()}

	for len(s.entries) > s.cap {
		oldest := s.order[0]
		s.removeLocked(oldest)
	}
}

// Invalidate drops a single key.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

// InvalidateClass drops every entry in the given classes. With no
// arguments it drops all entries.
func (s *Store) InvalidateClass(classes ...Class) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(classes) == 0 {
		s.entries = make(map[string]entry, s.cap)
		s.order = s.order[:0]
		return
	}
	drop := make(map[Class]bool, len(classes))
	for _, c := range classes {
		drop[c] = true
	}
	for key, e := range s.entries {
		if drop[e.class] {
			s.removeLocked(key)
		}
	}
}

// Len returns the number of live entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) removeLocked(key string) {
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Key builds a deterministic cache key from an operation name and its
// parameters. Parameters are rendered with %v, so callers must pass
// stable, order-significant values.
func Key(operation string, params ...any) string {
	var b strings.Builder
	b.WriteString(operation)
	for _, p := range params {
		b.WriteByte('|')
		fmt.Fprintf(&b, "%v", p)
	}
	return b.String()
}
