// Package lock gates the API behind an unlock step after the app goes to
// the background, and lets long-running flows such as receipt capture hold
// the gate open while they run.
package lock

import (
	"log/slog"
	"sync"
)

// App states reported by the client
const (
	StateActive     = "active"
	StateInactive   = "inactive"
	StateBackground = "background"
)

// Gate tracks whether the app is locked. The zero value is not usable; use
// NewGate.
type Gate struct {
	enabled func() bool

	mu        sync.Mutex
	locked    bool
	suspended int
}

// NewGate creates a Gate. enabled is consulted on every state change so the
// setting can be toggled at runtime; a nil enabled never locks.
func NewGate(enabled func() bool) *Gate {
	if enabled == nil {
		enabled = func() bool { return false }
	}
	return &Gate{enabled: enabled}
}

// Suspend stops state changes from locking the gate until the returned
// release func is called. Calls nest; release is safe to call more than once.
func (g *Gate) Suspend() (release func()) {
	g.mu.Lock()
	g.suspended++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.suspended--
			g.mu.Unlock()
		})
	}
}

// Suspended reports whether any Suspend is outstanding
func (g *Gate) Suspended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suspended > 0
}

// HandleStateChange locks the gate when the app leaves the foreground,
// unless locking is disabled or suspended. It reports whether the gate is
// locked afterwards.
func (g *Gate) HandleStateChange(state string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if state != StateBackground && state != StateInactive {
		return g.locked
	}
	if g.suspended > 0 {
		slog.Debug("Ignoring app state change while lock is suspended", "state", state)
		return g.locked
	}
	if g.enabled() {
		g.locked = true
	}
	return g.locked
}

// Unlock opens the gate
func (g *Gate) Unlock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locked = false
}

// Locked reports whether the gate is locked
func (g *Gate) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked
}
