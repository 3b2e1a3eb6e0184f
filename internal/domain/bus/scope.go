package bus

import "sync"

// Scope ties a bus to an owning lifecycle. Components sharing the scope
// subscribe through its bus; closing the scope severs every subscription at
// once so none of them leak past teardown. History survives the close and
// stays readable through a direct bus reference until the bus is discarded.
type Scope struct {
	mu     sync.Mutex
	bus    *Bus
	closed bool
}

// NewScope constructs a scope owning a freshly built bus.
func NewScope(opts ...Option) *Scope {
	return &Scope{bus: New(opts...)}
}

// Adopt wraps an existing bus in a scope.
func Adopt(b *Bus) *Scope {
	if b == nil {
		panic("bus: adopt nil bus")
	}
	return &Scope{bus: b}
}

// Bus returns the scoped bus. Using a scope after Close is a programmer
// error and panics, so missing setup surfaces early in testing instead of
// silently hitting a dead bus.
func (sc *Scope) Bus() *Bus {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		panic("bus: scope used after close")
	}
	return sc.bus
}

// Close removes every subscription from the scoped bus. Closing twice is
// harmless.
func (sc *Scope) Close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	sc.closed = true
	sc.bus.Clear()
}
