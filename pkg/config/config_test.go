package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.LockTTL)
	assert.Equal(t, 10*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 5*time.Minute, cfg.AuthzTimeout)
	assert.Equal(t, 30*time.Second, cfg.BreakerCoolDown)
	assert.True(t, cfg.LockFailOpen)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LOCK_TTL", "45s")
	t.Setenv("LOCK_FAIL_OPEN", "false")
	t.Setenv("CONNECTOR_SERVICES", "shopify, klaviyo ,ebay")

	cfg := Load()
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.LockTTL)
	assert.False(t, cfg.LockFailOpen)
	assert.Equal(t, []string{"shopify", "klaviyo", "ebay"}, cfg.ConnectorServices)
}

func TestLoadProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	doc := `
tenants:
  - tenant_id: t1
    authz_expression: 'exposure_usd > 500.0'
  - tenant_id: t2
    max_price_delta_pct: 20
    max_exposure_usd: 1000
    min_tenure_days: 30
    tenure_days: 400
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	profiles, err := LoadProfiles(path)
	require.NoError(t, err)
	require.Len(t, profiles.Tenants, 2)

	p1 := profiles.Lookup("t1")
	require.NotNil(t, p1)
	assert.Equal(t, "exposure_usd > 500.0", p1.AuthzExpression)

	p2 := profiles.Lookup("t2")
	require.NotNil(t, p2)
	assert.Equal(t, 20.0, p2.MaxPriceDeltaPct)
	assert.EqualValues(t, 30, p2.MinTenureDays)
	assert.EqualValues(t, 400, p2.TenureDays)

	assert.Nil(t, profiles.Lookup("unknown"))
}

func TestLoadProfiles_MissingPathIsEmpty(t *testing.T) {
	profiles, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Empty(t, profiles.Tenants)

	_, err = LoadProfiles(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err, "a configured but unreadable path is an error")
}

func TestLoadProfiles_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenants: [unclosed"), 0o600))
	_, err := LoadProfiles(path)
	assert.Error(t, err)
}
