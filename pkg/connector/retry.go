package connector

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/glasswing-labs/keel/pkg/breaker"
	"github.com/glasswing-labs/keel/pkg/contracts"
)

// RetryPolicy bounds the retry loop around one connector call.
type RetryPolicy struct {
	MaxAttempts int
	BaseMs      int64
	MaxMs       int64
	MaxJitterMs int64
	CallTimeout time.Duration
}

// DefaultRetryPolicy: 3 attempts, 200ms base doubling to a 5s cap, up to
// 250ms jitter, 10s per-attempt timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseMs:      200,
		MaxMs:       5000,
		MaxJitterMs: 250,
		CallTimeout: 10 * time.Second,
	}
}

// Backoff returns the delay before attempt index (0-based) using
// deterministic jitter so replayed executions sleep identically.
func (p RetryPolicy) Backoff(callKey string, attempt int) time.Duration {
	factor := int64(1)
	if attempt > 0 {
		if attempt > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << attempt
		}
	}
	delay := p.BaseMs * factor
	if delay > p.MaxMs {
		delay = p.MaxMs
	}
	return time.Duration(delay+p.jitter(callKey, attempt)) * time.Millisecond
}

// jitter is a PRF over (callKey, attempt) rather than a random draw.
func (p RetryPolicy) jitter(callKey string, attempt int) int64 {
	if p.MaxJitterMs <= 0 {
		return 0
	}
	seed := fmt.Sprintf("%s:%d", callKey, attempt)
	hash := sha256.Sum256([]byte(seed))
	basis := binary.BigEndian.Uint64(hash[:8])
	return int64(basis % uint64(p.MaxJitterMs)) //nolint:gosec // MaxJitterMs is always positive
}

// Invoke runs call through the breaker with bounded retries.
//
// The breaker is consulted once up front: an open circuit short-circuits with
// zero network attempts. Retryable and rate-limited outcomes are retried with
// exponential backoff; the breaker records only the final outcome, so a call
// that recovers on retry never counts as a failure.
func Invoke(ctx context.Context, b *breaker.Breaker, policy RetryPolicy, callKey string, call func(ctx context.Context) Result) Result {
	if err := b.Allow(); err != nil {
		return Failure(contracts.OutcomeRetryable, contracts.ErrCircuitOpen)
	}

	var res Result
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(policy.Backoff(callKey, attempt-1)):
			case <-ctx.Done():
				b.RecordFailure()
				return Failure(contracts.OutcomeRetryable, ctx.Err())
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if policy.CallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.CallTimeout)
		}
		res = call(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if res.Outcome == contracts.OutcomeSuccess {
			b.RecordSuccess()
			return res
		}
		if !res.Outcome.Retryable() {
			break
		}
	}

	// Exhausted retries or terminal failure: the breaker sees one failure.
	b.RecordFailure()
	return res
}
