package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/glasswing-labs/keel/pkg/connector"
	"github.com/glasswing-labs/keel/pkg/contracts"
	"github.com/glasswing-labs/keel/pkg/dispatch"
	"github.com/glasswing-labs/keel/pkg/governance"
)

// actionOutcome is the collected verdict of one dispatch phase.
type actionOutcome struct {
	failed     bool
	rationale  string
	reversalID string
}

// dispatchAction routes the payload to its kind-specific dispatch path.
// Every connector call goes through the service's circuit breaker and the
// bounded retry policy.
func (o *Orchestrator) dispatchAction(ctx context.Context, p *contracts.Proposal, sim Simulation) actionOutcome {
	service := p.Payload.Service()
	conn, ok := o.c.Connectors.Lookup(service)
	if !ok {
		return actionOutcome{failed: true, rationale: fmt.Sprintf("no connector registered for service %q", service)}
	}
	brk := o.c.Breakers.Get(service)

	switch p.Payload.Kind {
	case contracts.ActionCampaignSend:
		return o.dispatchCampaign(ctx, p, sim, conn)
	case contracts.ActionPriceChange:
		a := p.Payload.PriceChange

		// Pre-mutation snapshot: the old price is the reversal point.
		reversalID, err := o.c.Governance.RecordReversalPoint(ctx, p.ID, p.TenantID,
			contracts.ReversalRevertPrice, governance.PriceSnapshot{
				Service:   a.Service,
				TenantID:  p.TenantID,
				ProductID: a.ProductID,
				VariantID: a.VariantID,
				OldPrice:  a.OldPrice,
			})
		if err != nil {
			return actionOutcome{failed: true, rationale: fmt.Sprintf("reversal point not recorded: %v", err)}
		}

		res := connector.Invoke(ctx, brk, o.c.Retry, p.ID, func(ctx context.Context) connector.Result {
			return conn.UpdatePrice(ctx, connector.PriceInput{
				TenantID:  p.TenantID,
				ProductID: a.ProductID,
				VariantID: a.VariantID,
				NewPrice:  a.NewPrice,
			})
		})
		if res.Outcome != contracts.OutcomeSuccess {
			// No mutation landed; retire the snapshot so a rollback
			// cannot revert a price that never changed.
			if derr := o.c.Governance.DiscardReversal(ctx, reversalID, "price update never landed"); derr != nil {
				o.c.Logger.Warn("reversal discard failed", "proposal", p.ID, "reversal", reversalID, "error", derr)
			}
			return actionOutcome{failed: true, rationale: "price update failed: " + res.Error}
		}
		o.audit(ctx, p, "price_change", sim.Rationale)
		return actionOutcome{rationale: sim.Rationale, reversalID: reversalID}

	case contracts.ActionListingCreate:
		a := p.Payload.ListingCreate
		res := connector.Invoke(ctx, brk, o.c.Retry, p.ID, func(ctx context.Context) connector.Result {
			return conn.CreateListing(ctx, connector.ListingInput{
				TenantID: p.TenantID,
				SKU:      a.SKU,
				Title:    a.Title,
				Price:    a.Price,
				Quantity: a.Quantity,
			})
		})
		if res.Outcome != contracts.OutcomeSuccess {
			return actionOutcome{failed: true, rationale: "listing creation failed: " + res.Error}
		}

		// The undo needs the id the platform assigned, so the reversal
		// point is recorded as the mutation lands.
		reversalID, err := o.c.Governance.RecordReversalPoint(ctx, p.ID, p.TenantID,
			contracts.ReversalCancelListing, governance.ListingSnapshot{
				Service:   a.Service,
				TenantID:  p.TenantID,
				ListingID: res.ExternalID,
				SKU:       a.SKU,
			})
		if err != nil {
			o.c.Logger.Warn("reversal point not recorded for listing", "proposal", p.ID, "error", err)
		}
		o.audit(ctx, p, "listing_create", "listing "+res.ExternalID)
		return actionOutcome{rationale: "listing " + res.ExternalID, reversalID: reversalID}

	case contracts.ActionListingCancel:
		a := p.Payload.ListingCancel
		res := connector.Invoke(ctx, brk, o.c.Retry, p.ID, func(ctx context.Context) connector.Result {
			return conn.CancelListing(ctx, connector.CancelInput{
				TenantID:   p.TenantID,
				ExternalID: a.ListingID,
			})
		})
		if res.Outcome != contracts.OutcomeSuccess {
			return actionOutcome{failed: true, rationale: "listing cancellation failed: " + res.Error}
		}
		o.audit(ctx, p, "listing_cancel", "listing "+a.ListingID)
		return actionOutcome{rationale: "cancelled " + a.ListingID}
	}

	return actionOutcome{failed: true, rationale: fmt.Sprintf("unknown action kind %q", p.Payload.Kind)}
}

// dispatchCampaign drives a batched waterfall send. Errors within a batch
// are collected without aborting siblings; the safety gate is re-checked
// between batches so an operator pause halts an in-flight campaign.
func (o *Orchestrator) dispatchCampaign(ctx context.Context, p *contracts.Proposal, sim Simulation, conn connector.Connector) actionOutcome {
	a := p.Payload.CampaignSend
	brk := o.c.Breakers.Get(a.Service)

	campaignID := a.CampaignID
	if campaignID == "" {
		campaignID = p.ID
	}
	reversalID, err := o.c.Governance.RecordReversalPoint(ctx, p.ID, p.TenantID,
		contracts.ReversalCancelCampaign, governance.CampaignSnapshot{
			Service:    a.Service,
			TenantID:   p.TenantID,
			CampaignID: campaignID,
		})
	if err != nil {
		return actionOutcome{failed: true, rationale: fmt.Sprintf("reversal point not recorded: %v", err)}
	}

	opts := dispatch.Options{
		BatchSize:       sim.BatchSize,
		InterBatchDelay: sim.Delay,
		BeforeBatch: func(context.Context) error {
			return o.c.Safety.Check(p.TenantID)
		},
	}
	if sim.StaggerRequired {
		// Pace sends inside a batch against the provider's rate budget.
		opts.Limiter = rate.NewLimiter(rate.Limit(25), sim.BatchSize)
	}

	report, runErr := dispatch.Run(ctx, a.Audience, opts, func(ctx context.Context, index int, target string) error {
		res := connector.Invoke(ctx, brk, o.c.Retry, fmt.Sprintf("%s:%d", p.ID, index), func(ctx context.Context) connector.Result {
			return conn.Send(ctx, connector.SendInput{
				Target:  target,
				Subject: a.Subject,
				Content: a.Content,
				// Best-effort second line of defense against
				// double-delivery on the provider side.
				IdempotencyKey: fmt.Sprintf("%s:%d", p.ID, index),
			})
		})
		if res.Outcome != contracts.OutcomeSuccess {
			return fmt.Errorf("send to %s: %s", target, res.Error)
		}
		return nil
	})

	switch {
	case runErr != nil:
		return actionOutcome{
			failed:     true,
			rationale:  fmt.Sprintf("campaign halted after %d batches: %v", report.Batches, runErr),
			reversalID: reversalID,
		}
	case report.Failed():
		return actionOutcome{
			failed:     true,
			rationale:  fmt.Sprintf("campaign: %d/%d sends failed", len(report.Errors), report.Items),
			reversalID: reversalID,
		}
	default:
		o.audit(ctx, p, "campaign_send", fmt.Sprintf("%d recipients in %d batches", report.Items, report.Batches))
		return actionOutcome{
			rationale:  fmt.Sprintf("campaign delivered to %d recipients", report.Items),
			reversalID: reversalID,
		}
	}
}
