// Package clock supplies the current time to the booking services. Every
// instant is UTC at the microsecond precision Postgres stores, so a time
// written to the database compares equal to the one read back.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// NewSystem returns the wall clock.
func NewSystem() Clock {
	return Func(func() time.Time { return Normalize(time.Now()) })
}

// Normalize converts t to UTC and drops sub-microsecond precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Manual only moves when told to. It is safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: Normalize(t)}
}

// NewFixed returns a clock frozen at t.
func NewFixed(t time.Time) Clock {
	return NewManual(t)
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
