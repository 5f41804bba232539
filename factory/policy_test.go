package factory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/cooperative/lending"
)

func TestParsePolicy_Full(t *testing.T) {
	f := NewPolicyFactory()
	policy, err := f.ParsePolicy([]byte(`{
		"tiers": {
			"basic":   {"min_contribution": 5000, "loan_multiplier": 2, "monthly_interest_percent": "2.5"},
			"premium": {"min_contribution": 50000, "loan_multiplier": 4, "monthly_interest_percent": 1}
		},
		"penalty": {"grace_days": 3, "daily_rate": "0.002"},
		"max_duration_months": 48
	}`))
	require.NoError(t, err)

	assert.True(t, policy.Basic.MinContribution.Equal(decimal.NewFromInt(5000)))
	assert.True(t, policy.Basic.MonthlyInterestPercent.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, policy.Premium.LoanMultiplier.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, 3, policy.GraceDays)
	assert.True(t, policy.DailyPenaltyRate.Equal(decimal.RequireFromString("0.002")))
	assert.Equal(t, lending.TierPremium, policy.Premium.Tier)
	assert.Equal(t, 48, policy.MaxDurationMonths)
}

func TestParsePolicy_PartialKeepsDefaults(t *testing.T) {
	f := NewPolicyFactory()
	policy, err := f.ParsePolicy([]byte(`{"penalty": {"grace_days": 10}}`))
	require.NoError(t, err)

	def := lending.DefaultPolicy()
	assert.Equal(t, 10, policy.GraceDays)
	assert.True(t, policy.DailyPenaltyRate.Equal(def.DailyPenaltyRate))
	assert.True(t, policy.Basic.MinContribution.Equal(def.Basic.MinContribution))
	assert.True(t, policy.Premium.MonthlyInterestPercent.Equal(def.Premium.MonthlyInterestPercent))
	assert.Equal(t, lending.DefaultMaxDuration, policy.MaxDurationMonths)
}

func TestParsePolicy_Invalid(t *testing.T) {
	f := NewPolicyFactory()

	_, err := f.ParsePolicy([]byte(`{not json`))
	assert.Error(t, err)

	// Premium threshold must exceed basic
	_, err = f.ParsePolicy([]byte(`{"tiers": {"premium": {"min_contribution": 1000}}}`))
	assert.ErrorIs(t, err, lending.ErrInvalidPolicy)

	_, err = f.ParsePolicy([]byte(`{"penalty": {"daily_rate": -0.01}}`))
	assert.ErrorIs(t, err, lending.ErrInvalidPolicy)

	_, err = f.ParsePolicy([]byte(`{"max_duration_months": 0}`))
	assert.ErrorIs(t, err, lending.ErrInvalidPolicy)
}

func TestParsePolicyYAML(t *testing.T) {
	f := NewPolicyFactory()
	policy, err := f.ParsePolicyYAML([]byte(`
tiers:
  basic:
    min_contribution: 8000
  premium:
    monthly_interest_percent: 1.25
penalty:
  grace_days: 5
  daily_rate: 0.0015
`))
	require.NoError(t, err)

	assert.True(t, policy.Basic.MinContribution.Equal(decimal.NewFromInt(8000)))
	assert.True(t, policy.Premium.MonthlyInterestPercent.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, 5, policy.GraceDays)
	assert.True(t, policy.DailyPenaltyRate.Equal(decimal.RequireFromString("0.0015")))
}

func TestParsePolicyYAML_EmptyIsDefault(t *testing.T) {
	policy, err := NewPolicyFactory().ParsePolicyYAML([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, lending.DefaultGraceDays, policy.GraceDays)
}

func TestToJSON_RoundTripsDefaults(t *testing.T) {
	f := NewPolicyFactory()
	policy, err := f.ParsePolicy([]byte(DefaultPolicyJSON()))
	require.NoError(t, err)

	def := lending.DefaultPolicy()
	assert.True(t, policy.Basic.LoanMultiplier.Equal(def.Basic.LoanMultiplier))
	assert.True(t, policy.Premium.MinContribution.Equal(def.Premium.MinContribution))
	assert.Equal(t, def.GraceDays, policy.GraceDays)
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "policy.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("penalty:\n  grace_days: 2\n"), 0o644))
	policy, err := LoadPolicyFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, policy.GraceDays)

	jsonPath := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"penalty": {"grace_days": 4}}`), 0o644))
	policy, err = LoadPolicyFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 4, policy.GraceDays)

	txtPath := filepath.Join(dir, "policy.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0o644))
	_, err = LoadPolicyFile(txtPath)
	assert.Error(t, err)

	_, err = LoadPolicyFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
