package connector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasswing-labs/keel/pkg/breaker"
	"github.com/glasswing-labs/keel/pkg/contracts"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseMs: 1, MaxMs: 2, MaxJitterMs: 0, CallTimeout: time.Second}
}

func TestBackoff_DeterministicAndCapped(t *testing.T) {
	p := RetryPolicy{BaseMs: 200, MaxMs: 5000, MaxJitterMs: 250}

	first := p.Backoff("prop-1:0", 0)
	assert.Equal(t, first, p.Backoff("prop-1:0", 0), "same key and attempt sleeps identically")

	// Exponential doubling under the cap.
	assert.GreaterOrEqual(t, p.Backoff("k", 1), 400*time.Millisecond)
	assert.Less(t, p.Backoff("k", 1), 650*time.Millisecond)

	// Attempt 10 would be 200ms << 10; capped at 5s plus jitter.
	assert.GreaterOrEqual(t, p.Backoff("k", 10), 5000*time.Millisecond)
	assert.Less(t, p.Backoff("k", 10), 5250*time.Millisecond)

	// Different keys get different jitter (overwhelmingly likely).
	assert.NotEqual(t, p.Backoff("prop-1:0", 0), p.Backoff("prop-2:0", 0))
}

func TestInvoke_SuccessFirstAttempt(t *testing.T) {
	b := breaker.New("email", 5, time.Minute)
	calls := 0

	res := Invoke(context.Background(), b, fastPolicy(), "k", func(context.Context) Result {
		calls++
		return Success("ext-1")
	})

	assert.Equal(t, contracts.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "ext-1", res.ExternalID)
	assert.Equal(t, 1, calls)
}

func TestInvoke_RetriesRetryableThenSucceeds(t *testing.T) {
	b := breaker.New("email", 1, time.Minute)
	calls := 0

	res := Invoke(context.Background(), b, fastPolicy(), "k", func(context.Context) Result {
		calls++
		if calls < 3 {
			return Failure(contracts.OutcomeRetryable, errors.New("502 from upstream"))
		}
		return Success("ext-1")
	})

	assert.Equal(t, contracts.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 3, calls)
	// A call that recovered on retry records no failure: threshold is 1,
	// so any recorded failure would have opened the breaker.
	assert.NoError(t, b.Allow())
}

func TestInvoke_TerminalFailureDoesNotRetry(t *testing.T) {
	b := breaker.New("email", 5, time.Minute)
	calls := 0

	res := Invoke(context.Background(), b, fastPolicy(), "k", func(context.Context) Result {
		calls++
		return Failure(contracts.OutcomeTerminal, errors.New("401 unauthorized"))
	})

	assert.Equal(t, contracts.OutcomeTerminal, res.Outcome)
	assert.Equal(t, 1, calls, "terminal outcomes must not burn retries")
}

func TestInvoke_ExhaustedRetriesRecordOneFailure(t *testing.T) {
	b := breaker.New("email", 2, time.Minute)
	calls := 0

	res := Invoke(context.Background(), b, fastPolicy(), "k", func(context.Context) Result {
		calls++
		return Failure(contracts.OutcomeRetryable, errors.New("timeout"))
	})

	assert.Equal(t, contracts.OutcomeRetryable, res.Outcome)
	assert.Equal(t, 3, calls)
	// One logical failure recorded, not three: breaker still closed.
	assert.NoError(t, b.Allow())

	Invoke(context.Background(), b, fastPolicy(), "k", func(context.Context) Result {
		return Failure(contracts.OutcomeRetryable, errors.New("timeout"))
	})
	assert.ErrorIs(t, b.Allow(), contracts.ErrCircuitOpen, "second logical failure opens at threshold 2")
}

func TestInvoke_OpenBreakerShortCircuits(t *testing.T) {
	b := breaker.New("email", 1, time.Minute)
	b.RecordFailure()

	calls := 0
	res := Invoke(context.Background(), b, fastPolicy(), "k", func(context.Context) Result {
		calls++
		return Success("")
	})

	require.Equal(t, 0, calls, "open circuit must make zero network attempts")
	assert.Equal(t, contracts.OutcomeRetryable, res.Outcome)
	assert.Contains(t, res.Error, contracts.ErrCircuitOpen.Error())
}

func TestInvoke_ContextCancelDuringBackoff(t *testing.T) {
	b := breaker.New("email", 5, time.Minute)
	policy := RetryPolicy{MaxAttempts: 3, BaseMs: 5000, MaxMs: 5000, CallTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := Invoke(ctx, b, policy, "k", func(context.Context) Result {
		calls++
		return Failure(contracts.OutcomeRetryable, errors.New("flaky"))
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, contracts.OutcomeRetryable, res.Outcome)
	assert.Contains(t, res.Error, context.Canceled.Error())
}
