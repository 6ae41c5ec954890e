package orchestrator

import (
	"context"
	"time"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

// Sweeper is the liveness sweep: a crash between claim and terminal status
// leaves a proposal stuck in EXECUTING; the sweep requeues it to FAILED
// after a timeout, re-enabling retry via the FAILED -> PENDING edge.
type Sweeper struct {
	o          *Orchestrator
	interval   time.Duration
	stuckAfter time.Duration
}

// NewSweeper creates a sweeper bound to an orchestrator.
func NewSweeper(o *Orchestrator, interval, stuckAfter time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if stuckAfter <= 0 {
		stuckAfter = defaultStuckAfter
	}
	return &Sweeper{o: o, interval: interval, stuckAfter: stuckAfter}
}

// Run sweeps until ctx is canceled. Each tick also resolves authorization
// timeouts so suspended proposals cannot hang forever.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.o.c.Authz.SweepTimeouts()
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce fails every proposal stuck in EXECUTING beyond the threshold.
// Proposals suspended awaiting authorization are skipped; the authorization
// timeout owns those.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	cutoff := time.Now().Add(-s.stuckAfter)
	stuck, err := s.o.c.Proposals.ListExecutingSince(ctx, cutoff)
	if err != nil {
		s.o.c.Logger.Error("liveness sweep: list failed", "error", err)
		return 0
	}

	swept := 0
	for _, p := range stuck {
		if _, pending := s.o.c.Authz.Pending(p.ID); pending {
			continue
		}
		if _, err := s.o.c.Proposals.Transition(ctx, p.ID, contracts.StatusFailed, "execution timed out; orchestrator presumed dead"); err != nil {
			s.o.c.Logger.Warn("liveness sweep: transition failed", "proposal", p.ID, "error", err)
			continue
		}
		s.o.audit(ctx, p, "status_failed", "liveness sweep")
		swept++
	}
	return swept
}
