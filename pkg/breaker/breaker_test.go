package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := New("email", 5, 30*time.Second)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.Snapshot().State, "failure %d must not open", i+1)
	}
	require.NoError(t, b.Allow())

	b.RecordFailure() // fifth consecutive failure
	assert.Equal(t, StateOpen, b.Snapshot().State)

	err := b.Allow()
	assert.ErrorIs(t, err, contracts.ErrCircuitOpen)
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b := New("email", 5, 30*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()

	// Only four consecutive failures since the success.
	assert.Equal(t, StateClosed, b.Snapshot().State)
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.Snapshot().State)
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	now := time.Now()
	b := New("sms", 1, 30*time.Second).WithClock(func() time.Time { return now })

	b.RecordFailure()
	require.ErrorIs(t, b.Allow(), contracts.ErrCircuitOpen)

	// Cool-down elapses: exactly one probe admitted.
	now = now.Add(31 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.Snapshot().State)
	assert.ErrorIs(t, b.Allow(), contracts.ErrCircuitOpen, "second caller must not probe")

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.Snapshot().State)
	assert.NoError(t, b.Allow())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	b := New("sms", 1, 30*time.Second).WithClock(func() time.Time { return now })

	b.RecordFailure()
	now = now.Add(31 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.Snapshot().State)

	// Fresh cool-down window.
	now = now.Add(29 * time.Second)
	assert.ErrorIs(t, b.Allow(), contracts.ErrCircuitOpen)
	now = now.Add(2 * time.Second)
	assert.NoError(t, b.Allow())
}

func TestBreaker_Reset(t *testing.T) {
	b := New("email", 1, time.Hour)
	b.RecordFailure()
	require.ErrorIs(t, b.Allow(), contracts.ErrCircuitOpen)

	b.Reset()
	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Zero(t, snap.ConsecutiveFailures)
	assert.NoError(t, b.Allow())
}

func TestRegistry_IndependentServices(t *testing.T) {
	r := NewRegistry(1, 30*time.Second)

	r.Get("email").RecordFailure()

	assert.ErrorIs(t, r.Get("email").Allow(), contracts.ErrCircuitOpen)
	assert.NoError(t, r.Get("sms").Allow(), "sms breaker must be unaffected")
}

func TestRegistry_ResetUnknownService(t *testing.T) {
	r := NewRegistry(5, 30*time.Second)
	err := r.Reset("never-seen")
	assert.Error(t, err)
}

func TestRegistry_Snapshots(t *testing.T) {
	r := NewRegistry(1, 30*time.Second)
	r.Get("sms")
	r.Get("email")
	r.Get("email").RecordFailure()

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	// Sorted by service name.
	assert.Equal(t, "email", snaps[0].Service)
	assert.Equal(t, StateOpen, snaps[0].State)
	assert.Equal(t, "sms", snaps[1].Service)
	assert.Equal(t, StateClosed, snaps[1].State)

	require.NoError(t, r.Reset("email"))
	assert.Equal(t, StateClosed, r.Get("email").Snapshot().State)
}

func TestRegistry_TransitionHook(t *testing.T) {
	now := time.Now()
	r := NewRegistry(1, 30*time.Second).WithClock(func() time.Time { return now })

	type transition struct {
		service  string
		from, to State
	}
	var seen []transition
	r.OnTransition(func(service string, from, to State) {
		seen = append(seen, transition{service, from, to})
	})

	r.Get("email").RecordFailure()
	require.Equal(t, []transition{{"email", StateClosed, StateOpen}}, seen)

	now = now.Add(31 * time.Second)
	require.NoError(t, r.Get("email").Allow())
	r.Get("email").RecordSuccess()
	assert.Equal(t, []transition{
		{"email", StateClosed, StateOpen},
		{"email", StateOpen, StateHalfOpen},
		{"email", StateHalfOpen, StateClosed},
	}, seen)

	// Operator reset fires too; a reset of an already-closed breaker is
	// not a transition.
	require.NoError(t, r.Reset("email"))
	assert.Len(t, seen, 3)

	r.Get("email").RecordFailure()
	require.NoError(t, r.Reset("email"))
	assert.Equal(t, transition{"email", StateOpen, StateClosed}, seen[len(seen)-1])
}

func TestRegistry_TransitionHookCoversExistingBreakers(t *testing.T) {
	r := NewRegistry(1, 30*time.Second)
	r.Get("sms") // created before the hook is registered

	var fired int
	r.OnTransition(func(string, State, State) { fired++ })
	r.Get("sms").RecordFailure()
	assert.Equal(t, 1, fired)
}

func TestBreaker_ErrCircuitOpenIsSentinel(t *testing.T) {
	b := New("email", 1, time.Hour)
	b.RecordFailure()
	assert.True(t, errors.Is(b.Allow(), contracts.ErrCircuitOpen))
}
