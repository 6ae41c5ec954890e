package authz

import (
	"context"
	"log/slog"
)

// LogNotifier surfaces authorization requests through the structured log.
// Deployments with a dashboard or chat integration replace this.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier builds a notifier writing to the given logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifyAuthorizationRequired implements Notifier.
func (n *LogNotifier) NotifyAuthorizationRequired(_ context.Context, req *Request) {
	n.logger.Warn("authorization required",
		"request", req.ID,
		"proposal", req.ProposalID,
		"tenant", req.TenantID,
		"exposure_usd", req.Input.ExposureUSD,
		"price_delta_pct", req.Input.PriceDeltaPct,
		"expires_at", req.ExpiresAt,
	)
}
