/*
errors.go - Error types for the lending engine

PURPOSE:
  Precondition violations (negative money, malformed loan terms, broken
  policy) are errors. Business-rule ineligibility is NOT an error and is
  reported through Eligibility instead.

USAGE:
  if errors.Is(err, lending.ErrInvalidLoanTerms) {
      var te *lending.TermsError
      errors.As(err, &te) // te.Field == "duration_months"
  }
*/
package lending

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNegativeContribution is returned when a contribution total is below zero.
	ErrNegativeContribution = errors.New("contribution total must not be negative")

	// ErrNegativeAmount is returned when an outstanding amount is below zero.
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrInvalidRequestAmount is returned when a requested loan amount is not positive.
	ErrInvalidRequestAmount = errors.New("requested amount must be positive")

	// ErrInvalidLoanTerms is returned for a non-positive principal, a duration
	// below one month or a negative interest rate.
	ErrInvalidLoanTerms = errors.New("invalid loan terms")

	// ErrInvalidPolicy is returned by Policy.Validate and NewEngine.
	ErrInvalidPolicy = errors.New("invalid lending policy")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// TermsError names the loan term that failed validation.
type TermsError struct {
	Field  string
	Value  string
	Reason string
}

func (e *TermsError) Error() string {
	return fmt.Sprintf("invalid loan terms: %s=%s (%s)", e.Field, e.Value, e.Reason)
}

func (e *TermsError) Unwrap() error {
	return ErrInvalidLoanTerms
}

// PolicyError names the policy field that failed validation.
type PolicyError struct {
	Field  string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("invalid lending policy: %s %s", e.Field, e.Reason)
}

func (e *PolicyError) Unwrap() error {
	return ErrInvalidPolicy
}

// IsPreconditionError reports whether err is a caller input violation.
func IsPreconditionError(err error) bool {
	return errors.Is(err, ErrNegativeContribution) ||
		errors.Is(err, ErrNegativeAmount) ||
		errors.Is(err, ErrInvalidRequestAmount) ||
		errors.Is(err, ErrInvalidLoanTerms)
}
