/*
Package lending provides the cooperative savings and lending calculation engine.

PURPOSE:
  This package contains the deterministic business rules behind member loans:
  which tier a member belongs to, how much they may borrow, what a loan's
  repayment schedule and total cost look like, and how much penalty accrues
  on an overdue installment. It has no storage, no HTTP and no goroutines.
  Callers pass plain values in and persist whatever comes out.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tier: Membership class derived from cumulative contributions
  - Installment: One line of a repayment schedule
  - LoanCostSummary: Totals derived from a schedule
  - PenaltyResult: Late-payment penalty for one due date
  - Eligibility: Outcome of a loan eligibility check

DESIGN PRINCIPLES:
  1. Purity: Same inputs, same outputs. Configuration is injected via Policy.
  2. Precision: Uses decimal.Decimal for all money, never float64
  3. Business outcomes are values: an ineligible loan is a result, not an error

USAGE:
  engine, err := lending.NewEngine(lending.DefaultPolicy(), lending.SystemClock{})
  tier, _ := engine.ClassifyTier(decimal.NewFromInt(25000)) // TierPremium
  cost, _ := engine.CalculateLoanCost(decimal.NewFromInt(50000), decimal.NewFromInt(2), 6)

SEE ALSO:
  - policy.go: Thresholds, multipliers and penalty constants
  - schedule.go: Flat-rate repayment schedule
  - penalty.go: Grace-period penalty accrual
*/
package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNTS
// =============================================================================

// NewAmount returns a whole-unit monetary amount.
func NewAmount(units int64) decimal.Decimal {
	return decimal.NewFromInt(units)
}

// MustParseAmount parses a decimal string, returning zero on malformed input.
func MustParseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// TIER
// =============================================================================

// Tier is a membership class. Exactly two exist, ordered by threshold.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

func (t Tier) String() string { return string(t) }

// ParseTier converts a stored tier name back to a Tier.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierBasic:
		return TierBasic, true
	case TierPremium:
		return TierPremium, true
	default:
		return "", false
	}
}

// =============================================================================
// REPAYMENT SCHEDULE
// =============================================================================

// Installment is one scheduled repayment. Number is 1-based.
type Installment struct {
	Number    int
	DueDate   time.Time
	Principal decimal.Decimal
	Interest  decimal.Decimal
	TotalDue  decimal.Decimal
	Paid      bool
}

// LoanCostSummary aggregates a full schedule.
type LoanCostSummary struct {
	Principal      decimal.Decimal
	TotalInterest  decimal.Decimal
	TotalRepayment decimal.Decimal
	MonthlyPayment decimal.Decimal
	DurationMonths int
}

// =============================================================================
// PENALTY
// =============================================================================

// PenaltyResult is the late-payment penalty for a single due date.
// DaysOverdue counts only days beyond the grace period.
type PenaltyResult struct {
	Penalty     decimal.Decimal
	DaysOverdue int
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

// IneligibilityReason identifies the first business rule a loan request failed.
type IneligibilityReason string

const (
	ReasonNone                     IneligibilityReason = ""
	ReasonActiveLoan               IneligibilityReason = "active_loan_exists"
	ReasonInsufficientContribution IneligibilityReason = "insufficient_contribution"
	ReasonExceedsTierLimit         IneligibilityReason = "exceeds_tier_limit"
)

// Eligibility is the result of CheckLoanEligibility.
type Eligibility struct {
	Eligible bool
	Reason   IneligibilityReason
}

// Message returns a short English description of the reason.
// The API layer is free to localize from Reason instead.
func (r IneligibilityReason) Message() string {
	switch r {
	case ReasonActiveLoan:
		return "member already has an active loan"
	case ReasonInsufficientContribution:
		return "contribution total is below the minimum required to borrow"
	case ReasonExceedsTierLimit:
		return "requested amount exceeds the limit for the member's tier"
	default:
		return ""
	}
}
