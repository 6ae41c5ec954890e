package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

// Simulation is the pre-execution risk/cost verdict. Batch size and delay
// feed the waterfall dispatcher; a blocked simulation fails the proposal
// before any connector call.
type Simulation struct {
	Blocked         bool          `json:"blocked"`
	StaggerRequired bool          `json:"stagger_required"`
	BatchSize       int           `json:"batch_size"`
	Delay           time.Duration `json:"delay"`
	Rationale       string        `json:"rationale"`
	ExposureUSD     float64       `json:"exposure_usd"`
	PriceDeltaPct   float64       `json:"price_delta_pct"`
}

// Simulator produces a Simulation for a claimed proposal.
type Simulator interface {
	Simulate(ctx context.Context, p *contracts.Proposal) (Simulation, error)
}

// HeuristicSimulator is the default: dispatch conservatism scales with
// audience size and risk tier, and extreme price swings are blocked.
type HeuristicSimulator struct {
	// MaxPriceDeltaPct blocks price changes beyond this swing. Zero
	// disables the check.
	MaxPriceDeltaPct float64
}

// Simulate implements Simulator.
func (s HeuristicSimulator) Simulate(_ context.Context, p *contracts.Proposal) (Simulation, error) {
	sim := Simulation{BatchSize: 1}

	switch p.Payload.Kind {
	case contracts.ActionCampaignSend:
		audience := len(p.Payload.CampaignSend.Audience)
		sim.ExposureUSD = float64(audience) * 0.05 // per-message cost estimate
		sim.StaggerRequired = audience > 20
		switch {
		case p.RiskLevel == contracts.RiskHigh || p.RiskLevel == contracts.RiskCritical:
			sim.BatchSize, sim.Delay = 10, 5*time.Second
		case audience > 500:
			sim.BatchSize, sim.Delay = 25, 2*time.Second
		default:
			sim.BatchSize, sim.Delay = 50, time.Second
		}
		sim.Rationale = fmt.Sprintf("campaign of %d recipients, batch=%d delay=%s", audience, sim.BatchSize, sim.Delay)

	case contracts.ActionPriceChange:
		a := p.Payload.PriceChange
		if a.OldPrice > 0 {
			sim.PriceDeltaPct = (a.OldPrice - a.NewPrice) / a.OldPrice * 100
		}
		sim.ExposureUSD = a.OldPrice - a.NewPrice
		if s.MaxPriceDeltaPct > 0 && sim.PriceDeltaPct > s.MaxPriceDeltaPct {
			sim.Blocked = true
			sim.Rationale = fmt.Sprintf("price drop %.1f%% exceeds ceiling %.1f%%", sim.PriceDeltaPct, s.MaxPriceDeltaPct)
			return sim, nil
		}
		sim.Rationale = fmt.Sprintf("price %s: %.2f -> %.2f", a.SKU, a.OldPrice, a.NewPrice)

	case contracts.ActionListingCreate:
		a := p.Payload.ListingCreate
		sim.ExposureUSD = a.Price * float64(a.Quantity)
		sim.Rationale = fmt.Sprintf("list %d x %s at %.2f", a.Quantity, a.SKU, a.Price)

	case contracts.ActionListingCancel:
		sim.Rationale = "cancel listing " + p.Payload.ListingCancel.ListingID
	}

	return sim, nil
}
