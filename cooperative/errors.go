package cooperative

import (
	"errors"
	"fmt"

	"github.com/farmlink/cooperative/lending"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrMemberNotFound      = errors.New("member not found")
	ErrLoanNotFound        = errors.New("loan not found")
	ErrInstallmentNotFound = errors.New("installment not found")

	// ErrDuplicateMember is returned when registering an existing member ID.
	ErrDuplicateMember = errors.New("member already exists")

	// ErrDuplicatePaymentReference is returned when a payment reference is
	// already recorded for a DIFFERENT member. Same-member retries are not
	// errors; they return the original receipt.
	ErrDuplicatePaymentReference = errors.New("payment reference already recorded")

	// ErrActiveLoanExists is the store-level guard behind "one active loan
	// per member". The service reports it as an ineligible decision.
	ErrActiveLoanExists = errors.New("member already has an active loan")

	ErrInstallmentAlreadyPaid = errors.New("installment already paid")
	ErrLoanNotActive          = errors.New("loan is not active")

	ErrInvalidPayment = errors.New("invalid payment")
	ErrInvalidMember  = errors.New("invalid member")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError wraps ErrInvalidPayment or ErrInvalidMember with the field.
type ValidationError struct {
	Kind   error
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s %s", e.Kind, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPayment) ||
		errors.Is(err, ErrInvalidMember) ||
		lending.IsPreconditionError(err)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrInstallmentNotFound)
}

// IsConflict returns true if the request clashes with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateMember) ||
		errors.Is(err, ErrDuplicatePaymentReference) ||
		errors.Is(err, ErrActiveLoanExists) ||
		errors.Is(err, ErrInstallmentAlreadyPaid) ||
		errors.Is(err, ErrLoanNotActive)
}
