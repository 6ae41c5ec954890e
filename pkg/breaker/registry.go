package breaker

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Defaults per the execution engine's service contract.
const (
	DefaultThreshold = 5
	DefaultCoolDown  = 30 * time.Second
)

// Registry holds one breaker per downstream service name. It is constructed
// once at startup and injected wherever lookups are needed; there is no
// package-level registry.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	threshold int
	coolDown  time.Duration
	clock     func() time.Time
	hook      func(service string, from, to State)
}

// NewRegistry creates a registry with the given defaults for new breakers.
func NewRegistry(threshold int, coolDown time.Duration) *Registry {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if coolDown <= 0 {
		coolDown = DefaultCoolDown
	}
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		coolDown:  coolDown,
		clock:     time.Now,
	}
}

// WithClock overrides the clock used for breakers created after this call.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// OnTransition registers a hook fired on every state change of every
// breaker, existing and future. The hook runs under the breaker mutex and
// must not call back into it.
func (r *Registry) OnTransition(hook func(service string, from, to State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
	for _, b := range r.breakers {
		b.mu.Lock()
		b.onTransition = hook
		b.mu.Unlock()
	}
}

// Get returns the breaker for a service, creating it closed on first use.
func (r *Registry) Get(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[service]
	if !ok {
		b = New(service, r.threshold, r.coolDown).WithClock(r.clock)
		b.onTransition = r.hook
		r.breakers[service] = b
	}
	return b
}

// Reset forces a named breaker closed. Errors if the service has never been
// called (nothing to reset).
func (r *Registry) Reset(service string) error {
	r.mu.Lock()
	b, ok := r.breakers[service]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown service %q", service)
	}
	b.Reset()
	return nil
}

// Snapshots returns a stable-ordered view of every breaker.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	breakers := make([]*Breaker, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		breakers = append(breakers, r.breakers[name])
	}
	r.mu.Unlock()

	snaps := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		snaps = append(snaps, b.Snapshot())
	}
	return snaps
}
