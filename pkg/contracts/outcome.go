package contracts

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Outcome is the closed classification every connector adapter returns for a
// call. The orchestrator switches on it exhaustively; there is no duck-typed
// error sniffing past this boundary.
type Outcome int

// Outcome constants.
const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeRateLimited
	OutcomeTerminal
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeRetryable:
		return "RETRYABLE"
	case OutcomeRateLimited:
		return "RATE_LIMITED"
	case OutcomeTerminal:
		return "TERMINAL"
	}
	return "UNKNOWN"
}

// Retryable reports whether a caller may attempt the call again.
// Rate-limited outcomes are retryable after backoff.
func (o Outcome) Retryable() bool {
	return o == OutcomeRetryable || o == OutcomeRateLimited
}

// ClassifyHTTP maps an HTTP status code to an outcome: 429 and 5xx are
// retryable, any other 4xx is terminal.
func ClassifyHTTP(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case status >= 500:
		return OutcomeRetryable
	case status >= 400:
		return OutcomeTerminal
	default:
		return OutcomeRetryable
	}
}

// ClassifyError maps transport-level errors: timeouts and connection
// failures are retryable, everything else is terminal.
func ClassifyError(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeRetryable
	}
	return OutcomeTerminal
}
