/*
credit.go - Credit limit and loan eligibility

PURPOSE:
  Derives how much a member may borrow and whether a specific request can
  be granted.

CHECK ORDER:
  Eligibility checks short-circuit in a fixed order and the first failure
  is the reported reason:
    1. Active loan exists          -> ReasonActiveLoan
    2. Total below basic minimum   -> ReasonInsufficientContribution
    3. Amount above tier limit     -> ReasonExceedsTierLimit

  A member with an active loan AND too little savings is told about the
  active loan. The active-loan decline also comes before the requested
  amount is looked at, so a borrower with an open loan gets the same
  answer whatever they ask for.

NOTE:
  "At most one active loan" is only as strong as the caller's read of
  hasActiveLoan. Concurrent applications must be serialized by the store
  (see cooperative.Service.ApplyForLoan and TxStore.WithTx).
*/
package lending

import (
	"github.com/shopspring/decimal"
)

// MaxLoanAmount returns contribution x tier multiplier.
func (e *Engine) MaxLoanAmount(contributionTotal decimal.Decimal) (decimal.Decimal, error) {
	tier, err := e.ClassifyTier(contributionTotal)
	if err != nil {
		return decimal.Zero, err
	}
	return contributionTotal.Mul(e.policy.Rule(tier).LoanMultiplier), nil
}

// CheckLoanEligibility evaluates a loan request against the policy.
// Errors are returned only for invalid inputs; a declined request is a
// normal result with Eligible=false.
func (e *Engine) CheckLoanEligibility(contributionTotal, requestedAmount decimal.Decimal, hasActiveLoan bool) (Eligibility, error) {
	if contributionTotal.IsNegative() {
		return Eligibility{}, ErrNegativeContribution
	}
	if hasActiveLoan {
		return Eligibility{Reason: ReasonActiveLoan}, nil
	}
	if !requestedAmount.IsPositive() {
		return Eligibility{}, ErrInvalidRequestAmount
	}

	if contributionTotal.LessThan(e.policy.Basic.MinContribution) {
		return Eligibility{Reason: ReasonInsufficientContribution}, nil
	}

	limit, err := e.MaxLoanAmount(contributionTotal)
	if err != nil {
		return Eligibility{}, err
	}
	if requestedAmount.GreaterThan(limit) {
		return Eligibility{Reason: ReasonExceedsTierLimit}, nil
	}

	return Eligibility{Eligible: true}, nil
}
