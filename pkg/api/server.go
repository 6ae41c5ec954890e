package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/glasswing-labs/keel/pkg/authz"
	"github.com/glasswing-labs/keel/pkg/breaker"
	"github.com/glasswing-labs/keel/pkg/contracts"
	"github.com/glasswing-labs/keel/pkg/governance"
	"github.com/glasswing-labs/keel/pkg/inventory"
	"github.com/glasswing-labs/keel/pkg/orchestrator"
	"github.com/glasswing-labs/keel/pkg/proposal"
	"github.com/glasswing-labs/keel/pkg/safety"
)

// Server is the operator control surface.
type Server struct {
	proposals    proposal.Store
	orch         *orchestrator.Orchestrator
	breakers     *breaker.Registry
	gate         *safety.Gate
	authzGate    *authz.Gate
	govLedger    *governance.Ledger
	invLedger    *inventory.Ledger
	jwtValidator *JWTValidator
}

// NewServer wires the surface to its collaborators.
func NewServer(
	proposals proposal.Store,
	orch *orchestrator.Orchestrator,
	breakers *breaker.Registry,
	gate *safety.Gate,
	authzGate *authz.Gate,
	govLedger *governance.Ledger,
	invLedger *inventory.Ledger,
	jwtValidator *JWTValidator,
) *Server {
	return &Server{
		proposals:    proposals,
		orch:         orch,
		breakers:     breakers,
		gate:         gate,
		authzGate:    authzGate,
		govLedger:    govLedger,
		invLedger:    invLedger,
		jwtValidator: jwtValidator,
	}
}

// Routes registers every endpoint on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /proposals", s.handleCreateProposal)
	mux.HandleFunc("GET /proposals/{id}", s.handleGetProposal)
	mux.HandleFunc("POST /proposals/{id}/execute", s.handleExecute)
	mux.HandleFunc("POST /proposals/{id}/requeue", s.handleRequeue)

	mux.HandleFunc("POST /authorizations/{proposalID}/resolve", s.handleResolveAuthorization)

	mux.HandleFunc("GET /circuit-breakers/status", s.handleBreakerStatus)
	mux.HandleFunc("POST /circuit-breakers/{service}/reset", RequireAdmin(s.jwtValidator, s.handleBreakerReset))

	mux.HandleFunc("GET /safety/status", s.handleSafetyStatus)
	mux.HandleFunc("POST /safety/kill-switch", RequireAdmin(s.jwtValidator, s.handleKillSwitch))
	mux.HandleFunc("POST /safety/tenants/{tenant}/pause", RequireAdmin(s.jwtValidator, s.handleTenantPause))

	mux.HandleFunc("POST /rollbacks/{reversalID}", RequireAdmin(s.jwtValidator, s.handleRollback))

	mux.HandleFunc("GET /inventory/{tenant}/{resource}/hold", s.handleInventoryHold)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var p contracts.Proposal
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if p.TenantID == "" {
		WriteBadRequest(w, "Missing required field: tenant_id")
		return
	}
	if err := p.Payload.Validate(); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if err := s.proposals.Create(r.Context(), &p); err != nil {
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := s.proposals.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, contracts.ErrProposalNotFound) {
			WriteNotFound(w, "No such proposal")
			return
		}
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.Execute(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, contracts.ErrPaused):
		WriteError(w, http.StatusServiceUnavailable, "Paused", "Execution is paused; retry later")
	case errors.Is(err, contracts.ErrProposalNotFound):
		WriteNotFound(w, "No such proposal")
	case err != nil:
		WriteInternal(w, err)
	case res.Status == orchestrator.ExecConflict:
		WriteConflict(w, "Proposal already claimed by another execution")
	default:
		WriteJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Requeue(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, contracts.ErrInvalidTransition) {
			WriteConflict(w, "Only failed proposals can be requeued")
			return
		}
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

func (s *Server) handleResolveAuthorization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome    authz.Outcome `json:"outcome"`
		ResolvedBy string        `json:"resolved_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	switch req.Outcome {
	case authz.OutcomeApproved, authz.OutcomeDenied, authz.OutcomeTimeout:
	default:
		WriteBadRequest(w, "outcome must be APPROVED, DENIED or TIMEOUT")
		return
	}
	if err := s.authzGate.OnResolved(r.PathValue("proposalID"), req.Outcome, req.ResolvedBy); err != nil {
		WriteNotFound(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleBreakerStatus(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, s.breakers.Snapshots())
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	if err := s.breakers.Reset(r.PathValue("service")); err != nil {
		WriteNotFound(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleSafetyStatus(w http.ResponseWriter, _ *http.Request) {
	kill, paused := s.gate.Status()
	WriteJSON(w, http.StatusOK, map[string]any{
		"kill_switch":    kill,
		"paused_tenants": paused,
	})
}

func (s *Server) handleKillSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	s.gate.SetKillSwitch(req.On)
	WriteJSON(w, http.StatusOK, map[string]bool{"kill_switch": req.On})
}

func (s *Server) handleTenantPause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	tenant := r.PathValue("tenant")
	s.gate.SetTenantPause(tenant, req.Paused)
	WriteJSON(w, http.StatusOK, map[string]any{"tenant": tenant, "paused": req.Paused})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	err := s.govLedger.ExecuteRollback(r.Context(), r.PathValue("reversalID"))
	switch {
	case errors.Is(err, contracts.ErrReversalUnavailable):
		WriteConflict(w, "Reversal record is not available (already consumed or unknown)")
	case err != nil:
		WriteInternal(w, err)
	default:
		WriteJSON(w, http.StatusOK, map[string]string{"status": "rolled_back"})
	}
}

func (s *Server) handleInventoryHold(w http.ResponseWriter, r *http.Request) {
	held, err := s.invLedger.Held(r.Context(), r.PathValue("tenant"), r.PathValue("resource"))
	if err != nil {
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"held": held})
}
