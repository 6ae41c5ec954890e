package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TenantProfile is one tenant's execution policy.
type TenantProfile struct {
	TenantID string `yaml:"tenant_id" json:"tenant_id"`

	// AuthzExpression is a CEL expression over the risk profile; true
	// means out-of-band approval is required. Empty falls back to the
	// static thresholds below.
	AuthzExpression string `yaml:"authz_expression,omitempty" json:"authz_expression,omitempty"`

	MaxPriceDeltaPct float64 `yaml:"max_price_delta_pct,omitempty" json:"max_price_delta_pct,omitempty"`
	MaxExposureUSD   float64 `yaml:"max_exposure_usd,omitempty" json:"max_exposure_usd,omitempty"`
	MinTenureDays    int64   `yaml:"min_tenure_days,omitempty" json:"min_tenure_days,omitempty"`

	// TenureDays is the merchant's account age, fed into policy evaluation
	// as tenure_days. Zero means unknown, which trips any minimum-tenure
	// rule the tenant configures.
	TenureDays int64 `yaml:"tenure_days,omitempty" json:"tenure_days,omitempty"`
}

// Profiles is the tenant policy document loaded at startup.
type Profiles struct {
	Tenants []TenantProfile `yaml:"tenants" json:"tenants"`
}

// LoadProfiles reads a yaml profile document. A missing path yields an
// empty profile set (every tenant on defaults), not an error.
func LoadProfiles(path string) (*Profiles, error) {
	if path == "" {
		return &Profiles{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant profiles: %w", err)
	}
	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse tenant profiles: %w", err)
	}
	return &p, nil
}

// Lookup returns the profile for a tenant, nil if unconfigured.
func (p *Profiles) Lookup(tenantID string) *TenantProfile {
	for i := range p.Tenants {
		if p.Tenants[i].TenantID == tenantID {
			return &p.Tenants[i]
		}
	}
	return nil
}
