/*
Package factory provides JSON/YAML to Go lending policy conversion.

PURPOSE:
  Converts policy documents into lending.Policy. The cooperative's board
  can change thresholds, multipliers and penalty terms in a file without a
  code change; the factory validates the result before the engine uses it.

JSON SCHEMA:
  {
    "tiers": {
      "basic":   {"min_contribution": 10000, "loan_multiplier": 2, "monthly_interest_percent": 2},
      "premium": {"min_contribution": 20000, "loan_multiplier": 3, "monthly_interest_percent": 1.5}
    },
    "penalty": {
      "grace_days": 7,
      "daily_rate": 0.001
    },
    "max_duration_months": 360
  }

  Amounts may be JSON numbers or strings ("0.001"). Omitted fields take
  the value from lending.DefaultPolicy().

YAML:
  Same shape. YAML is decoded into generic values, re-encoded as JSON and
  parsed by the JSON path, so both formats share one set of rules.

USAGE:
  factory := NewPolicyFactory()
  policy, err := factory.ParsePolicy(data)

  // Or by file extension (.json, .yaml, .yml)
  policy, err := LoadPolicyFile("./config/policy.yaml")

SEE ALSO:
  - lending/policy.go: Policy type definition and validation
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/farmlink/cooperative/lending"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a lending policy.
type PolicyJSON struct {
	Tiers             TiersJSON    `json:"tiers"`
	Penalty           *PenaltyJSON `json:"penalty,omitempty"`
	MaxDurationMonths *int         `json:"max_duration_months,omitempty"`
}

// TiersJSON holds both tier rules.
type TiersJSON struct {
	Basic   *TierJSON `json:"basic,omitempty"`
	Premium *TierJSON `json:"premium,omitempty"`
}

// TierJSON represents one tier. Invalid (unset) fields keep their defaults.
type TierJSON struct {
	MinContribution        decimal.NullDecimal `json:"min_contribution"`
	LoanMultiplier         decimal.NullDecimal `json:"loan_multiplier"`
	MonthlyInterestPercent decimal.NullDecimal `json:"monthly_interest_percent"`
}

// PenaltyJSON represents late-payment terms.
type PenaltyJSON struct {
	GraceDays *int                `json:"grace_days,omitempty"`
	DailyRate decimal.NullDecimal `json:"daily_rate"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory creates policies from JSON or YAML.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON policy document.
func (f *PolicyFactory) ParsePolicy(data []byte) (lending.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return lending.Policy{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// ParsePolicyYAML parses a YAML policy document.
func (f *PolicyFactory) ParsePolicyYAML(data []byte) (lending.Policy, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return lending.Policy{}, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	if doc == nil {
		return f.FromJSON(PolicyJSON{})
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return lending.Policy{}, fmt.Errorf("failed to convert policy YAML: %w", err)
	}
	return f.ParsePolicy(raw)
}

// FromJSON converts a PolicyJSON to a validated lending.Policy.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (lending.Policy, error) {
	policy := lending.DefaultPolicy()

	applyTier(&policy.Basic, pj.Tiers.Basic)
	applyTier(&policy.Premium, pj.Tiers.Premium)

	if pj.Penalty != nil {
		if pj.Penalty.GraceDays != nil {
			policy.GraceDays = *pj.Penalty.GraceDays
		}
		if pj.Penalty.DailyRate.Valid {
			policy.DailyPenaltyRate = pj.Penalty.DailyRate.Decimal
		}
	}
	if pj.MaxDurationMonths != nil {
		policy.MaxDurationMonths = *pj.MaxDurationMonths
	}

	if err := policy.Validate(); err != nil {
		return lending.Policy{}, err
	}
	return policy, nil
}

// ToJSON converts a policy back to its JSON representation.
func (f *PolicyFactory) ToJSON(p lending.Policy) PolicyJSON {
	grace := p.GraceDays
	maxMonths := p.MaxDurationMonths
	return PolicyJSON{
		Tiers: TiersJSON{
			Basic:   tierToJSON(p.Basic),
			Premium: tierToJSON(p.Premium),
		},
		Penalty: &PenaltyJSON{
			GraceDays: &grace,
			DailyRate: decimal.NewNullDecimal(p.DailyPenaltyRate),
		},
		MaxDurationMonths: &maxMonths,
	}
}

// =============================================================================
// FILES AND DEFAULTS
// =============================================================================

// LoadPolicyFile reads a policy from disk, choosing the parser by extension.
func LoadPolicyFile(path string) (lending.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lending.Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	f := NewPolicyFactory()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return f.ParsePolicyYAML(data)
	case ".json":
		return f.ParsePolicy(data)
	default:
		return lending.Policy{}, fmt.Errorf("unsupported policy file extension: %s", filepath.Ext(path))
	}
}

// DefaultPolicyJSON returns the default policy as indented JSON.
func DefaultPolicyJSON() string {
	data, _ := json.MarshalIndent(NewPolicyFactory().ToJSON(lending.DefaultPolicy()), "", "  ")
	return string(data)
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func applyTier(rule *lending.TierRule, tj *TierJSON) {
	if tj == nil {
		return
	}
	if tj.MinContribution.Valid {
		rule.MinContribution = tj.MinContribution.Decimal
	}
	if tj.LoanMultiplier.Valid {
		rule.LoanMultiplier = tj.LoanMultiplier.Decimal
	}
	if tj.MonthlyInterestPercent.Valid {
		rule.MonthlyInterestPercent = tj.MonthlyInterestPercent.Decimal
	}
}

func tierToJSON(r lending.TierRule) *TierJSON {
	return &TierJSON{
		MinContribution:        decimal.NewNullDecimal(r.MinContribution),
		LoanMultiplier:         decimal.NewNullDecimal(r.LoanMultiplier),
		MonthlyInterestPercent: decimal.NewNullDecimal(r.MonthlyInterestPercent),
	}
}
