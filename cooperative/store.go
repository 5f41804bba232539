/*
store.go - Persistence interfaces for members, savings and loans

PURPOSE:
  Defines the boundary between the cooperative workflow and the database.
  Implementations: cooperative/store (in-memory) and store/sqlite.

APPEND-ONLY SAVINGS:
  Contributions have AppendContribution and no update or delete. A wrong
  contribution is corrected with a new entry, never an edit.

ONE ACTIVE LOAN:
  CreateLoan MUST reject a second active loan for the same member with
  ErrActiveLoanExists. ApplyForLoan also checks inside WithTx, but the
  store guard is what holds under concurrent applications.

NOT FOUND:
  Get* methods return (nil, nil) for missing records, matching the rest
  of the codebase. The Service turns that into ErrMemberNotFound etc.
*/
package cooperative

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// Members
	SaveMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, id MemberID) (*Member, error)
	ListMembers(ctx context.Context) ([]Member, error)

	// Savings ledger (append-only)
	AppendContribution(ctx context.Context, c Contribution) error
	ContributionByReference(ctx context.Context, reference string) (*Contribution, error)
	Contributions(ctx context.Context, memberID MemberID) ([]Contribution, error)
	ContributionTotal(ctx context.Context, memberID MemberID) (decimal.Decimal, error)

	// Loans
	CreateLoan(ctx context.Context, loan Loan, schedule []Installment) error
	GetLoan(ctx context.Context, id LoanID) (*Loan, error)
	LoansByMember(ctx context.Context, memberID MemberID) ([]Loan, error)
	ActiveLoan(ctx context.Context, memberID MemberID) (*Loan, error)
	CloseLoan(ctx context.Context, id LoanID, closedAt time.Time) error

	// Installments
	Installments(ctx context.Context, loanID LoanID) ([]Installment, error)
	MarkInstallmentPaid(ctx context.Context, loanID LoanID, number int, paidAt time.Time) error

	// UnpaidInstallments returns unpaid installments of ACTIVE loans due
	// strictly before the given instant, ordered by due date.
	UnpaidInstallments(ctx context.Context, dueBefore time.Time) ([]Installment, error)
	RecordPenalty(ctx context.Context, a PenaltyAssessment) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
