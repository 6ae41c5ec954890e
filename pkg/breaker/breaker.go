// Package breaker implements per-downstream-service circuit breaking.
// Each external service gets an independently keyed breaker; failure of one
// provider never affects calls to another.
package breaker

import (
	"sync"
	"time"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

// State of a circuit breaker.
type State string

// State constants.
const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Breaker tracks consecutive failures for one downstream service.
//
// Closed: calls pass through. Open: calls short-circuit with ErrCircuitOpen
// until the cool-down elapses. Half-open: exactly one probe call is let
// through; its outcome decides the next state.
type Breaker struct {
	mu sync.Mutex

	name      string
	threshold int
	coolDown  time.Duration
	clock     func() time.Time

	state               State
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool

	// onTransition fires on every state change, under the breaker mutex;
	// it must not call back into the breaker.
	onTransition func(service string, from, to State)
}

// New creates a closed breaker for a named service.
func New(name string, threshold int, coolDown time.Duration) *Breaker {
	return &Breaker{
		name:      name,
		threshold: threshold,
		coolDown:  coolDown,
		clock:     time.Now,
		state:     StateClosed,
	}
}

// WithClock overrides the clock for deterministic testing.
func (b *Breaker) WithClock(clock func() time.Time) *Breaker {
	b.clock = clock
	return b
}

// setState records a transition and notifies the hook.
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onTransition != nil {
		b.onTransition(b.name, from, to)
	}
}

// Allow reports whether a call may proceed. It returns
// contracts.ErrCircuitOpen without any network attempt while open, and
// admits exactly one probe per half-open window.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.clock().Sub(b.openedAt) < b.coolDown {
			return contracts.ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.probeInFlight = true
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return contracts.ErrCircuitOpen
		}
		b.probeInFlight = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess resets the failure counter; a successful half-open probe
// closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.setState(StateClosed)
		b.probeInFlight = false
	}
	b.consecutiveFailures = 0
}

// RecordFailure increments the counter; reaching the threshold opens the
// breaker, and a failed half-open probe reopens it with a fresh cool-down.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.setState(StateOpen)
		b.openedAt = b.clock()
		b.probeInFlight = false
		return
	}

	b.consecutiveFailures++
	if b.state == StateClosed && b.consecutiveFailures >= b.threshold {
		b.setState(StateOpen)
		b.openedAt = b.clock()
	}
}

// Reset forces the breaker closed. Operator escape hatch only; normal
// transitions are driven by call outcomes and elapsed time.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
	b.consecutiveFailures = 0
	b.probeInFlight = false
	b.openedAt = time.Time{}
}

// Snapshot is a point-in-time view for the operator surface.
type Snapshot struct {
	Service             string    `json:"service"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitzero"`
}

// Snapshot returns the breaker's current state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Service:             b.name,
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		OpenedAt:            b.openedAt,
	}
}
