/*
policy.go - Lending policy and the Engine that applies it

PURPOSE:
  Defines the fixed business constants of the cooperative: tier thresholds,
  loan multipliers, default interest rates, grace period and daily penalty
  rate. They are bundled in a Policy value and injected into an Engine so
  nothing in this package reads process-wide mutable state.

TIERS:
  Basic:   contribution >= 10,000 may borrow, limit = 2 x contribution
  Premium: contribution >= 20,000, limit = 3 x contribution

  The two-tier table is a fixed business rule. Adding a third tier means
  redesigning the threshold table, not appending to a list.

PENALTIES:
  No penalty for the first GraceDays days after a due date (7 by default).
  After that, DailyPenaltyRate (0.1%) of the outstanding amount per day.

TERMS:
  MaxDurationMonths caps every schedule (360 by default). Durations come
  from callers and size the schedule allocation.

SEE ALSO:
  - tier.go, credit.go, schedule.go, cost.go, penalty.go: Engine operations
  - factory/policy.go: JSON/YAML policy files
*/
package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POLICY
// =============================================================================

// TierRule is the configuration of a single tier.
type TierRule struct {
	Tier                   Tier
	MinContribution        decimal.Decimal
	LoanMultiplier         decimal.Decimal
	MonthlyInterestPercent decimal.Decimal
}

// Policy is the complete set of lending constants.
type Policy struct {
	Basic            TierRule
	Premium          TierRule
	GraceDays        int
	DailyPenaltyRate decimal.Decimal

	// MaxDurationMonths is the longest loan or quote term accepted.
	MaxDurationMonths int
}

const (
	DefaultBasicMinimum   = 10000
	DefaultPremiumMinimum = 20000
	DefaultGraceDays      = 7
	DefaultMaxDuration    = 360
)

// DefaultPolicy returns the cooperative's standard lending policy.
func DefaultPolicy() Policy {
	return Policy{
		Basic: TierRule{
			Tier:                   TierBasic,
			MinContribution:        decimal.NewFromInt(DefaultBasicMinimum),
			LoanMultiplier:         decimal.NewFromInt(2),
			MonthlyInterestPercent: decimal.NewFromInt(2),
		},
		Premium: TierRule{
			Tier:                   TierPremium,
			MinContribution:        decimal.NewFromInt(DefaultPremiumMinimum),
			LoanMultiplier:         decimal.NewFromInt(3),
			MonthlyInterestPercent: decimal.RequireFromString("1.5"),
		},
		GraceDays:         DefaultGraceDays,
		DailyPenaltyRate:  decimal.RequireFromString("0.001"),
		MaxDurationMonths: DefaultMaxDuration,
	}
}

// Validate checks internal consistency of the policy.
func (p Policy) Validate() error {
	if p.Basic.MinContribution.IsNegative() {
		return &PolicyError{Field: "basic.min_contribution", Reason: "must not be negative"}
	}
	if !p.Premium.MinContribution.GreaterThan(p.Basic.MinContribution) {
		return &PolicyError{Field: "premium.min_contribution", Reason: "must exceed basic.min_contribution"}
	}
	for _, r := range []TierRule{p.Basic, p.Premium} {
		if !r.LoanMultiplier.IsPositive() {
			return &PolicyError{Field: string(r.Tier) + ".loan_multiplier", Reason: "must be positive"}
		}
		if r.MonthlyInterestPercent.IsNegative() {
			return &PolicyError{Field: string(r.Tier) + ".monthly_interest_percent", Reason: "must not be negative"}
		}
	}
	if p.GraceDays < 0 {
		return &PolicyError{Field: "grace_days", Reason: "must not be negative"}
	}
	if p.DailyPenaltyRate.IsNegative() {
		return &PolicyError{Field: "daily_penalty_rate", Reason: "must not be negative"}
	}
	if p.MaxDurationMonths < 1 {
		return &PolicyError{Field: "max_duration_months", Reason: "must be at least 1"}
	}
	return nil
}

// Rule returns the configuration for a tier.
func (p Policy) Rule(t Tier) TierRule {
	if t == TierPremium {
		return p.Premium
	}
	return p.Basic
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine applies a Policy. It is safe for concurrent use: all fields are
// read-only after construction.
type Engine struct {
	policy Policy
	clock  Clock
}

// NewEngine validates the policy and returns an engine.
// A nil clock defaults to SystemClock.
func NewEngine(policy Policy, clock Clock) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{policy: policy, clock: clock}, nil
}

// Policy returns the engine's policy by value.
func (e *Engine) Policy() Policy { return e.policy }

// Now returns the current time from the engine's clock.
func (e *Engine) Now() time.Time { return e.clock.Now() }
