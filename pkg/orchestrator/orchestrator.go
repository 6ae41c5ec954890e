// Package orchestrator sequences the execution of one approved proposal:
// safety gate, claim, risk simulation, async authorization, resource locks,
// shadow-inventory reservation, waterfall dispatch through circuit-breaker-
// wrapped connectors, reversal bookkeeping and the final status write.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/glasswing-labs/keel/pkg/authz"
	"github.com/glasswing-labs/keel/pkg/breaker"
	"github.com/glasswing-labs/keel/pkg/conflict"
	"github.com/glasswing-labs/keel/pkg/connector"
	"github.com/glasswing-labs/keel/pkg/contracts"
	"github.com/glasswing-labs/keel/pkg/governance"
	"github.com/glasswing-labs/keel/pkg/inventory"
	"github.com/glasswing-labs/keel/pkg/proposal"
	"github.com/glasswing-labs/keel/pkg/safety"
)

// ExecutionStatus is the orchestrator's answer for one execution request.
type ExecutionStatus string

// ExecutionStatus constants.
const (
	ExecExecuted             ExecutionStatus = "executed"
	ExecFailed               ExecutionStatus = "failed"
	ExecConflict             ExecutionStatus = "conflict"
	ExecPaused               ExecutionStatus = "paused"
	ExecBlocked              ExecutionStatus = "blocked"
	ExecPendingAuthorization ExecutionStatus = "pending_authorization"
)

// Result of one Execute call.
type Result struct {
	Status     ExecutionStatus `json:"status"`
	Rationale  string          `json:"rationale,omitempty"`
	ReversalID string          `json:"reversal_id,omitempty"`
}

// StockReader resolves a resource key's real stock. Owned by the commerce
// platform integration; the engine only reads it at reservation time.
type StockReader interface {
	RealStock(ctx context.Context, tenantID, resourceKey string) (int64, error)
}

// Components are the injected collaborators. Everything is explicit; the
// orchestrator owns no hidden registries.
type Components struct {
	Proposals  proposal.Store
	Safety     *safety.Gate
	Authz      *authz.Gate
	Locks      *conflict.Manager
	Inventory  *inventory.Ledger
	Governance *governance.Ledger
	Breakers   *breaker.Registry
	Connectors *connector.Registry
	Simulator  Simulator
	Stock      StockReader
	Retry      connector.RetryPolicy
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter

	// Tenure resolves a merchant's account age in days for policy
	// evaluation. Nil resolves every tenant to zero, which trips any
	// minimum-tenure rule.
	Tenure func(tenantID string) int64
}

// Orchestrator drives approved proposals to a terminal status.
type Orchestrator struct {
	c          Components
	instanceID string
	pool       *workerPool
	metrics    executionMetrics
}

// executionMetrics counts terminal transitions. The global meter is a no-op
// unless a provider was registered, so recording is always safe.
type executionMetrics struct {
	executions metric.Int64Counter
	failures   metric.Int64Counter
}

func newExecutionMetrics(m metric.Meter, logger *slog.Logger) executionMetrics {
	var em executionMetrics
	var err error
	em.executions, err = m.Int64Counter("keel.proposal.executions",
		metric.WithDescription("Proposals driven to EXECUTED"))
	if err != nil {
		logger.Warn("executions counter unavailable", "error", err)
	}
	em.failures, err = m.Int64Counter("keel.proposal.failures",
		metric.WithDescription("Proposals driven to FAILED"))
	if err != nil {
		logger.Warn("failures counter unavailable", "error", err)
	}
	return em
}

// New creates an orchestrator instance with its bounded resume pool.
func New(c Components) *Orchestrator {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = noop.NewTracerProvider().Tracer("keel")
	}
	if c.Meter == nil {
		c.Meter = otel.Meter("keel")
	}
	if c.Simulator == nil {
		c.Simulator = HeuristicSimulator{}
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = connector.DefaultRetryPolicy()
	}
	return &Orchestrator{
		c:          c,
		instanceID: uuid.New().String(),
		pool:       newWorkerPool(4, 64, c.Logger),
		metrics:    newExecutionMetrics(c.Meter, c.Logger),
	}
}

// Close drains the resume pool.
func (o *Orchestrator) Close() {
	o.pool.shutdown()
}

// Execute drives one approved proposal. The claim in step 2 is the single
// choke point: at most one orchestrator instance runs the remaining steps
// for a given (proposal, version) pair.
func (o *Orchestrator) Execute(ctx context.Context, proposalID string) (Result, error) {
	ctx, span := o.c.Tracer.Start(ctx, "orchestrator.Execute",
		trace.WithAttributes(attribute.String("proposal.id", proposalID)))
	defer span.End()

	// 1. Safety gate. No state change; safe to retry later.
	p, err := o.c.Proposals.Get(ctx, proposalID)
	if err != nil {
		return Result{Status: ExecFailed}, err
	}
	if err := o.c.Safety.Check(p.TenantID); err != nil {
		return Result{Status: ExecPaused, Rationale: "safety gate tripped"}, err
	}

	// 2. Claim: CAS APPROVED -> EXECUTING at the observed version.
	claimed, err := o.c.Proposals.Claim(ctx, proposalID, p.Version)
	if err != nil {
		if errors.Is(err, contracts.ErrConflict) {
			// Another worker owns it or it progressed. Stop silently.
			o.c.Logger.Debug("claim lost", "proposal", proposalID)
			return Result{Status: ExecConflict}, nil
		}
		return Result{Status: ExecFailed}, err
	}
	p = claimed

	// 3. Risk/cost simulation.
	sim, err := o.c.Simulator.Simulate(ctx, p)
	if err != nil {
		return o.finalizeFailed(ctx, p, fmt.Sprintf("simulation error: %v", err), "")
	}
	if sim.Blocked {
		res, ferr := o.finalizeFailed(ctx, p, sim.Rationale, "")
		res.Status = ExecBlocked
		return res, ferr
	}

	// 4. Async authorization gate, strictly before the first mutating call.
	required, err := o.c.Authz.Evaluate(ctx, p.TenantID, p.ID, authz.PolicyInput{
		PriceDeltaPct: sim.PriceDeltaPct,
		ExposureUSD:   sim.ExposureUSD,
		TenureDays:    o.tenureDays(p.TenantID),
		RiskTier:      p.RiskLevel,
		ActionKind:    p.Payload.Kind,
	}, o.resumeFunc())
	if err != nil {
		o.c.Logger.Warn("authorization policy error, failing closed", "proposal", p.ID, "error", err)
	}
	if required {
		// Suspended: stays EXECUTING pending authorization, no terminal
		// transition. Resolution re-enters via the resume pool.
		return Result{Status: ExecPendingAuthorization, Rationale: "awaiting out-of-band approval"}, nil
	}

	return o.proceed(ctx, p, sim)
}

// resumeFunc re-enters the pipeline when an authorization resolves.
func (o *Orchestrator) resumeFunc() authz.ResumeFunc {
	return func(proposalID string, outcome authz.Outcome) {
		submitted := o.pool.submit(func(ctx context.Context) {
			o.resumeAfterAuthorization(ctx, proposalID, outcome)
		})
		if !submitted {
			o.c.Logger.Error("resume rejected by worker pool", "proposal", proposalID)
		}
	}
}

func (o *Orchestrator) resumeAfterAuthorization(ctx context.Context, proposalID string, outcome authz.Outcome) {
	p, err := o.c.Proposals.Get(ctx, proposalID)
	if err != nil {
		o.c.Logger.Error("resume: proposal lookup failed", "proposal", proposalID, "error", err)
		return
	}

	if outcome != authz.OutcomeApproved {
		// Denial or timeout routes to FAILED; no external call ever occurred.
		if _, err := o.finalizeFailed(ctx, p, "authorization "+string(outcome), ""); err != nil {
			o.c.Logger.Error("resume: finalize failed", "proposal", proposalID, "error", err)
		}
		return
	}

	if err := o.c.Safety.Check(p.TenantID); err != nil {
		if _, err := o.finalizeFailed(ctx, p, "safety gate tripped after authorization", ""); err != nil {
			o.c.Logger.Error("resume: finalize failed", "proposal", proposalID, "error", err)
		}
		return
	}

	sim, err := o.c.Simulator.Simulate(ctx, p)
	if err != nil || sim.Blocked {
		rationale := sim.Rationale
		if err != nil {
			rationale = fmt.Sprintf("simulation error: %v", err)
		}
		if _, err := o.finalizeFailed(ctx, p, rationale, ""); err != nil {
			o.c.Logger.Error("resume: finalize failed", "proposal", proposalID, "error", err)
		}
		return
	}

	if _, err := o.proceed(ctx, p, sim); err != nil {
		o.c.Logger.Error("resumed execution failed", "proposal", proposalID, "error", err)
	}
}

// proceed runs steps 5-10 for a claimed, authorized proposal.
func (o *Orchestrator) proceed(ctx context.Context, p *contracts.Proposal, sim Simulation) (Result, error) {
	ctx, span := o.c.Tracer.Start(ctx, "orchestrator.proceed",
		trace.WithAttributes(attribute.String("proposal.id", p.ID)))
	defer span.End()

	holderID := o.instanceID + ":" + p.ID

	// 5. Resource locks for every key the payload touches.
	keys := p.Payload.ResourceKeys()
	held, ok, err := o.c.Locks.AcquireAll(ctx, p.TenantID, keys, holderID)
	if err != nil {
		return o.finalizeFailed(ctx, p, fmt.Sprintf("lock acquisition error: %v", err), "")
	}
	if !ok {
		return o.finalizeFailed(ctx, p, "resource locked by concurrent execution", "")
	}
	defer func() {
		for _, key := range held {
			o.c.Locks.Release(ctx, p.TenantID, key)
		}
	}()

	// 6. Shadow-inventory reservation for inventory-affecting actions.
	invKey, invQty, invAffecting := p.Payload.InventoryDelta()
	if invAffecting {
		realStock, err := o.c.Stock.RealStock(ctx, p.TenantID, invKey)
		if err != nil {
			return o.finalizeFailed(ctx, p, fmt.Sprintf("stock lookup failed: %v", err), "")
		}
		if err := o.c.Inventory.Reserve(ctx, p.TenantID, invKey, invQty, realStock); err != nil {
			if errors.Is(err, contracts.ErrInsufficientStock) {
				return o.finalizeFailed(ctx, p, err.Error(), "")
			}
			return o.finalizeFailed(ctx, p, fmt.Sprintf("reservation error: %v", err), "")
		}
	}

	// 7-8. Dispatch, recording reversal points as mutations land.
	outcome := o.dispatchAction(ctx, p, sim)

	// 9-10. Single terminal transition; holds committed on success,
	// released on failure.
	if outcome.failed {
		if invAffecting {
			if err := o.c.Inventory.Release(ctx, p.TenantID, invKey, invQty); err != nil {
				o.c.Logger.Warn("hold release failed, TTL will reap", "proposal", p.ID, "error", err)
			}
		}
		return o.finalizeFailed(ctx, p, outcome.rationale, outcome.reversalID)
	}

	if invAffecting {
		if err := o.c.Inventory.Commit(ctx, p.TenantID, invKey, invQty); err != nil {
			o.c.Logger.Warn("hold commit failed, TTL will reap", "proposal", p.ID, "error", err)
		}
	}
	if _, err := o.c.Proposals.Transition(ctx, p.ID, contracts.StatusExecuted, outcome.rationale); err != nil {
		return Result{Status: ExecFailed, ReversalID: outcome.reversalID}, err
	}
	o.audit(ctx, p, "status_executed", outcome.rationale)
	if o.metrics.executions != nil {
		o.metrics.executions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action_kind", string(p.Payload.Kind))))
	}
	return Result{Status: ExecExecuted, Rationale: outcome.rationale, ReversalID: outcome.reversalID}, nil
}

func (o *Orchestrator) tenureDays(tenantID string) int64 {
	if o.c.Tenure == nil {
		return 0
	}
	return o.c.Tenure(tenantID)
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, p *contracts.Proposal, rationale, reversalID string) (Result, error) {
	if _, err := o.c.Proposals.Transition(ctx, p.ID, contracts.StatusFailed, rationale); err != nil {
		return Result{Status: ExecFailed, Rationale: rationale, ReversalID: reversalID}, err
	}
	o.audit(ctx, p, "status_failed", rationale)
	if o.metrics.failures != nil {
		o.metrics.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action_kind", string(p.Payload.Kind))))
	}
	return Result{Status: ExecFailed, Rationale: rationale, ReversalID: reversalID}, nil
}

func (o *Orchestrator) audit(ctx context.Context, p *contracts.Proposal, action, detail string) {
	err := o.c.Governance.Audit(ctx, &contracts.AuditEntry{
		TenantID:   p.TenantID,
		ProposalID: p.ID,
		Action:     action,
		Detail:     detail,
		Actor:      p.Actor,
	})
	if err != nil {
		o.c.Logger.Warn("audit append failed", "proposal", p.ID, "action", action, "error", err)
	}
}

// Requeue moves a FAILED proposal back to PENDING for another attempt.
func (o *Orchestrator) Requeue(ctx context.Context, proposalID string) error {
	if _, err := o.c.Proposals.Transition(ctx, proposalID, contracts.StatusPending, "requeued"); err != nil {
		return err
	}
	return nil
}

// stuckAfter is how long a proposal may sit in EXECUTING before the
// liveness sweep deems its orchestrator dead.
const defaultStuckAfter = 15 * time.Minute
