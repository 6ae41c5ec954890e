package authz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	mu   sync.Mutex
	reqs []*Request
}

func (n *captureNotifier) NotifyAuthorizationRequired(_ context.Context, req *Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reqs = append(n.reqs, req)
}

func alwaysRequire(string) Policy { return ThresholdPolicy{MaxExposureUSD: 1} }
func neverRequire(string) Policy  { return ThresholdPolicy{} }

func TestGate_NoApprovalNeeded(t *testing.T) {
	g := NewGate(neverRequire, nil, time.Minute)

	required, err := g.Evaluate(context.Background(), "t1", "prop-1", PolicyInput{ExposureUSD: 100}, nil)
	require.NoError(t, err)
	assert.False(t, required)
	assert.Zero(t, g.PendingCount())
}

func TestGate_SuspendAndResolve(t *testing.T) {
	notifier := &captureNotifier{}
	g := NewGate(alwaysRequire, notifier, time.Minute)

	var resumedWith Outcome
	resumed := make(chan struct{})
	required, err := g.Evaluate(context.Background(), "t1", "prop-1",
		PolicyInput{ExposureUSD: 900},
		func(_ string, outcome Outcome) {
			resumedWith = outcome
			close(resumed)
		})
	require.NoError(t, err)
	require.True(t, required)

	req, ok := g.Pending("prop-1")
	require.True(t, ok)
	assert.Equal(t, "t1", req.TenantID)
	assert.Len(t, notifier.reqs, 1, "out-of-band notification emitted")

	require.NoError(t, g.OnResolved("prop-1", OutcomeApproved, "ops@merchant"))
	<-resumed
	assert.Equal(t, OutcomeApproved, resumedWith)

	// Resolution consumed the pending entry.
	_, ok = g.Pending("prop-1")
	assert.False(t, ok)
	assert.Error(t, g.OnResolved("prop-1", OutcomeApproved, "ops@merchant"), "double resolve rejected")
}

func TestGate_ResolveUnknownProposal(t *testing.T) {
	g := NewGate(alwaysRequire, nil, time.Minute)
	assert.Error(t, g.OnResolved("never-seen", OutcomeApproved, "x"))
}

func TestGate_SweepTimeouts(t *testing.T) {
	now := time.Now()
	g := NewGate(alwaysRequire, nil, 5*time.Minute).WithClock(func() time.Time { return now })

	var mu sync.Mutex
	outcomes := map[string]Outcome{}
	resume := func(id string, outcome Outcome) {
		mu.Lock()
		defer mu.Unlock()
		outcomes[id] = outcome
	}

	_, err := g.Evaluate(context.Background(), "t1", "prop-old", PolicyInput{ExposureUSD: 9}, resume)
	require.NoError(t, err)

	now = now.Add(3 * time.Minute)
	_, err = g.Evaluate(context.Background(), "t1", "prop-new", PolicyInput{ExposureUSD: 9}, resume)
	require.NoError(t, err)

	// Only the first request is past its deadline.
	now = now.Add(2*time.Minute + time.Second)
	expired := g.SweepTimeouts()
	require.Equal(t, []string{"prop-old"}, expired)

	mu.Lock()
	assert.Equal(t, OutcomeTimeout, outcomes["prop-old"])
	_, newResumed := outcomes["prop-new"]
	mu.Unlock()
	assert.False(t, newResumed)
	assert.Equal(t, 1, g.PendingCount())

	// Second sweep finds nothing new.
	assert.Empty(t, g.SweepTimeouts())
}

func TestGate_PolicyErrorFailsClosed(t *testing.T) {
	// Integer division by zero is a runtime error, not a compile error.
	broken, err := NewCELPolicy(`1 / (tenure_days - tenure_days) > 0`)
	require.NoError(t, err)
	g := NewGate(func(string) Policy { return broken }, nil, time.Minute)

	required, err := g.Evaluate(context.Background(), "t1", "prop-1", PolicyInput{}, nil)
	assert.Error(t, err)
	assert.True(t, required, "broken policy suspends rather than executes")
	_, pending := g.Pending("prop-1")
	assert.True(t, pending)
}
