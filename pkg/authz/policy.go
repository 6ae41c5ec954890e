// Package authz implements the asynchronous authorization gate: proposals
// above a merchant-configured trust boundary suspend until an out-of-band
// human approval resolves them.
package authz

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

// PolicyInput is the risk profile a policy evaluates. Thresholds are tenant
// policy data, never hard-coded constants in the engine.
type PolicyInput struct {
	PriceDeltaPct float64              // proposed discount/price delta, percent
	ExposureUSD   float64              // estimated monetary exposure
	TenureDays    int64                // merchant account age
	RiskTier      contracts.RiskLevel  // proposal risk grade
	ActionKind    contracts.ActionKind // what the proposal does
}

// Policy decides whether a proposal requires out-of-band approval.
type Policy interface {
	RequiresApproval(in PolicyInput) (bool, error)
}

// CELPolicy compiles a merchant-supplied CEL expression over the risk
// profile. The expression must evaluate to a bool; true means approval is
// required.
type CELPolicy struct {
	env      *cel.Env
	mu       sync.RWMutex
	prgCache map[string]cel.Program
	expr     string
}

// NewCELPolicy creates an evaluator for one tenant's expression, e.g.
//
//	price_delta_pct > 20.0 || exposure_usd > 500.0 || risk_tier == "HIGH"
func NewCELPolicy(expr string) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("price_delta_pct", cel.DoubleType),
		cel.Variable("exposure_usd", cel.DoubleType),
		cel.Variable("tenure_days", cel.IntType),
		cel.Variable("risk_tier", cel.StringType),
		cel.Variable("action_kind", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	p := &CELPolicy{env: env, prgCache: make(map[string]cel.Program), expr: expr}
	if _, err := p.program(expr); err != nil {
		return nil, err
	}
	return p, nil
}

// RequiresApproval implements Policy.
func (p *CELPolicy) RequiresApproval(in PolicyInput) (bool, error) {
	prg, err := p.program(p.expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"price_delta_pct": in.PriceDeltaPct,
		"exposure_usd":    in.ExposureUSD,
		"tenure_days":     in.TenureDays,
		"risk_tier":       string(in.RiskTier),
		"action_kind":     string(in.ActionKind),
	})
	if err != nil {
		// Fail closed: an unevaluable policy requires approval.
		return true, fmt.Errorf("policy evaluation: %w", err)
	}
	required, ok := out.Value().(bool)
	if !ok {
		return true, fmt.Errorf("policy expression must yield bool, got %T", out.Value())
	}
	return required, nil
}

func (p *CELPolicy) program(expr string) (cel.Program, error) {
	p.mu.RLock()
	prg, hit := p.prgCache[expr]
	p.mu.RUnlock()
	if hit {
		return prg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prg, hit = p.prgCache[expr]; hit {
		return prg, nil
	}
	ast, issues := p.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile policy expression: %w", issues.Err())
	}
	prg, err := p.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build policy program: %w", err)
	}
	p.prgCache[expr] = prg
	return prg, nil
}

// ThresholdPolicy is the static fallback for tenants without a CEL profile.
type ThresholdPolicy struct {
	MaxPriceDeltaPct float64
	MaxExposureUSD   float64
	MinTenureDays    int64
}

// RequiresApproval implements Policy: anything beyond a threshold, or any
// HIGH/CRITICAL risk tier, needs a human.
func (t ThresholdPolicy) RequiresApproval(in PolicyInput) (bool, error) {
	if in.RiskTier == contracts.RiskHigh || in.RiskTier == contracts.RiskCritical {
		return true, nil
	}
	if t.MaxPriceDeltaPct > 0 && in.PriceDeltaPct > t.MaxPriceDeltaPct {
		return true, nil
	}
	if t.MaxExposureUSD > 0 && in.ExposureUSD > t.MaxExposureUSD {
		return true, nil
	}
	if t.MinTenureDays > 0 && in.TenureDays < t.MinTenureDays {
		return true, nil
	}
	return false, nil
}
