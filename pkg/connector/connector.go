// Package connector defines the capability contract every platform/channel
// integration implements, and the retry machinery the engine wraps around
// connector calls. Wire protocols (Shopify, Klaviyo, Twilio, ...) live
// behind this interface and are out of scope for the engine itself.
package connector

import (
	"context"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

// Result is the uniform return of every connector capability. Outcome is the
// closed classification the orchestrator switches on; Error carries detail
// for audit and rationale strings.
type Result struct {
	Outcome    contracts.Outcome `json:"outcome"`
	ExternalID string            `json:"external_id,omitempty"` // campaign/listing id assigned downstream
	Error      string            `json:"error,omitempty"`
}

// Success builds a successful result.
func Success(externalID string) Result {
	return Result{Outcome: contracts.OutcomeSuccess, ExternalID: externalID}
}

// Failure builds a classified failure result.
func Failure(outcome contracts.Outcome, err error) Result {
	r := Result{Outcome: outcome}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// SendInput targets one recipient of a campaign send.
type SendInput struct {
	Target         string
	Subject        string
	Content        string
	IdempotencyKey string
}

// PriceInput describes a variant price update.
type PriceInput struct {
	TenantID  string
	ProductID string
	VariantID string
	NewPrice  float64
}

// ListingInput describes an external listing creation.
type ListingInput struct {
	TenantID string
	SKU      string
	Title    string
	Price    float64
	Quantity int64
}

// CancelInput identifies a listing or campaign to cancel.
type CancelInput struct {
	TenantID   string
	ExternalID string
}

// Connector is the capability contract. Implementations classify every
// failure as retryable, rate-limited or terminal; the engine never inspects
// provider-specific errors.
type Connector interface {
	Name() string
	Send(ctx context.Context, in SendInput) Result
	UpdatePrice(ctx context.Context, in PriceInput) Result
	CreateListing(ctx context.Context, in ListingInput) Result
	CancelListing(ctx context.Context, in CancelInput) Result
}

// Registry maps service names to connectors. Constructed once at startup and
// passed by injection; no hidden global state.
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry builds a registry from the given connectors.
func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Name()] = c
	}
	return r
}

// Lookup returns the connector for a service name.
func (r *Registry) Lookup(service string) (Connector, bool) {
	c, ok := r.connectors[service]
	return c, ok
}
