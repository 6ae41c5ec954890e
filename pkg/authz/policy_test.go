package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasswing-labs/keel/pkg/contracts"
)

func TestCELPolicy_Thresholds(t *testing.T) {
	p, err := NewCELPolicy(`price_delta_pct > 20.0 || exposure_usd > 500.0`)
	require.NoError(t, err)

	required, err := p.RequiresApproval(PolicyInput{PriceDeltaPct: 10, ExposureUSD: 100})
	require.NoError(t, err)
	assert.False(t, required)

	required, err = p.RequiresApproval(PolicyInput{PriceDeltaPct: 35, ExposureUSD: 100})
	require.NoError(t, err)
	assert.True(t, required)

	required, err = p.RequiresApproval(PolicyInput{PriceDeltaPct: 5, ExposureUSD: 900})
	require.NoError(t, err)
	assert.True(t, required)
}

func TestCELPolicy_RiskTierAndKind(t *testing.T) {
	p, err := NewCELPolicy(`risk_tier == "HIGH" || (action_kind == "CAMPAIGN_SEND" && tenure_days < 30)`)
	require.NoError(t, err)

	required, err := p.RequiresApproval(PolicyInput{
		RiskTier: contracts.RiskHigh, ActionKind: contracts.ActionPriceChange, TenureDays: 400,
	})
	require.NoError(t, err)
	assert.True(t, required)

	required, err = p.RequiresApproval(PolicyInput{
		RiskTier: contracts.RiskLow, ActionKind: contracts.ActionCampaignSend, TenureDays: 12,
	})
	require.NoError(t, err)
	assert.True(t, required, "young account sending campaigns needs approval")

	required, err = p.RequiresApproval(PolicyInput{
		RiskTier: contracts.RiskLow, ActionKind: contracts.ActionCampaignSend, TenureDays: 365,
	})
	require.NoError(t, err)
	assert.False(t, required)
}

func TestNewCELPolicy_RejectsBadExpressions(t *testing.T) {
	_, err := NewCELPolicy(`price_delta_pct >`)
	assert.Error(t, err, "syntax error must fail at construction")

	_, err = NewCELPolicy(`unknown_variable > 5.0`)
	assert.Error(t, err, "unknown variable must fail at construction")
}

func TestCELPolicy_NonBoolFailsClosed(t *testing.T) {
	p, err := NewCELPolicy(`price_delta_pct + 1.0`)
	require.NoError(t, err)

	required, err := p.RequiresApproval(PolicyInput{PriceDeltaPct: 1})
	assert.Error(t, err)
	assert.True(t, required, "unevaluable policy must require approval")
}

func TestThresholdPolicy(t *testing.T) {
	p := ThresholdPolicy{MaxPriceDeltaPct: 20, MaxExposureUSD: 500, MinTenureDays: 30}

	required, err := p.RequiresApproval(PolicyInput{
		PriceDeltaPct: 10, ExposureUSD: 100, TenureDays: 365, RiskTier: contracts.RiskLow,
	})
	require.NoError(t, err)
	assert.False(t, required)

	cases := []PolicyInput{
		{PriceDeltaPct: 25, TenureDays: 365},                     // over delta ceiling
		{ExposureUSD: 600, TenureDays: 365},                      // over exposure ceiling
		{TenureDays: 7},                                          // under tenure floor
		{RiskTier: contracts.RiskHigh, TenureDays: 365},          // risk tier
		{RiskTier: contracts.RiskCritical, TenureDays: 365},      // risk tier
	}
	for i, in := range cases {
		required, err := p.RequiresApproval(in)
		require.NoError(t, err)
		assert.True(t, required, "case %d", i)
	}
}

func TestThresholdPolicy_ZeroValuesDisableChecks(t *testing.T) {
	p := ThresholdPolicy{}
	required, err := p.RequiresApproval(PolicyInput{
		PriceDeltaPct: 99, ExposureUSD: 1e6, TenureDays: 0, RiskTier: contracts.RiskLow,
	})
	require.NoError(t, err)
	assert.False(t, required, "unset thresholds gate only on risk tier")
}
