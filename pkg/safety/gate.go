// Package safety implements the pre-execution gate: a global kill switch
// plus per-tenant pause flags, both settable only through the admin surface.
package safety

import (
	"sync"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

// Gate is checked before every execution step that would mutate external
// state. A tripped gate aborts with contracts.ErrPaused; nothing is mutated
// and the proposal stays eligible for a later retry.
type Gate struct {
	mu           sync.RWMutex
	killSwitch   bool
	pausedTenant map[string]bool
}

// NewGate creates a gate with everything running.
func NewGate() *Gate {
	return &Gate{pausedTenant: make(map[string]bool)}
}

// Check returns contracts.ErrPaused if the kill switch is on or the tenant
// is paused.
func (g *Gate) Check(tenantID string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.killSwitch || g.pausedTenant[tenantID] {
		return contracts.ErrPaused
	}
	return nil
}

// SetKillSwitch toggles the global kill switch.
func (g *Gate) SetKillSwitch(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.killSwitch = on
}

// SetTenantPause toggles the pause flag for one tenant.
func (g *Gate) SetTenantPause(tenantID string, paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if paused {
		g.pausedTenant[tenantID] = true
	} else {
		delete(g.pausedTenant, tenantID)
	}
}

// Status reports the current flags for the operator surface.
func (g *Gate) Status() (killSwitch bool, pausedTenants []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for tenant := range g.pausedTenant {
		pausedTenants = append(pausedTenants, tenant)
	}
	return g.killSwitch, pausedTenants
}
