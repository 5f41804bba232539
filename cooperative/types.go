/*
Package cooperative runs the savings-and-loan workflow of the cooperative
on top of the lending engine.

PURPOSE:
  The lending package knows the rules; this package knows the members.
  It records verified contributions in an append-only savings ledger,
  reclassifies tiers, grants loans (at most one active loan per member),
  records repayments and periodically assesses overdue penalties.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member: A cooperative member
  - Contribution: An immutable savings ledger entry, keyed by payment reference
  - Loan: A granted loan with its tier, terms and cost summary
  - Installment: A persisted schedule line with payment and penalty state
  - PenaltyAssessment: One penalty evaluation of an overdue installment

DATA OWNERSHIP:
  All state lives in a Store. The lending engine never sees the store; the
  Service reads plain values out, asks the engine, and writes results back.

SEE ALSO:
  - service.go: Workflow operations
  - store.go: Persistence interfaces
  - lending/: The calculation engine
*/
package cooperative

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/farmlink/cooperative/lending"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type ContributionID string
type LoanID string

// =============================================================================
// MEMBER
// =============================================================================

type Member struct {
	ID       MemberID
	Name     string
	Email    string
	Phone    string
	JoinedAt time.Time
}

// =============================================================================
// CONTRIBUTION - Append-only savings ledger entry
// =============================================================================

// Contribution is never updated or deleted. PaymentReference is unique
// across the ledger and doubles as the idempotency key for retried
// payment notifications.
type Contribution struct {
	ID               ContributionID
	MemberID         MemberID
	Amount           decimal.Decimal
	PaymentReference string
	Channel          string // e.g. "mobile_money", "card", "cash"
	PaidAt           time.Time
	RecordedAt       time.Time
}

// VerifiedPayment is a payment the gateway integration has already
// confirmed. Signature checks happen before this point.
type VerifiedPayment struct {
	MemberID  MemberID
	Amount    decimal.Decimal
	Reference string
	Channel   string
	PaidAt    time.Time
}

// ContributionReceipt reports the ledger state after recording a payment.
type ContributionReceipt struct {
	Contribution Contribution
	Total        decimal.Decimal
	Tier         lending.Tier
	PreviousTier lending.Tier
	Upgraded     bool
	Duplicate    bool // payment reference was already recorded; nothing written
}

// Standing summarizes a member's borrowing position.
type Standing struct {
	MemberID      MemberID
	Total         decimal.Decimal
	Tier          lending.Tier
	MaxLoanAmount decimal.Decimal
	ActiveLoan    *Loan
	CanBorrow     bool
}

// =============================================================================
// LOAN
// =============================================================================

type LoanStatus string

const (
	LoanActive LoanStatus = "active"
	LoanRepaid LoanStatus = "repaid"
)

type Loan struct {
	ID                     LoanID
	MemberID               MemberID
	Tier                   lending.Tier
	Principal              decimal.Decimal
	MonthlyInterestPercent decimal.Decimal
	DurationMonths         int
	StartDate              time.Time
	Status                 LoanStatus
	Cost                   lending.LoanCostSummary
	CreatedAt              time.Time
	ClosedAt               *time.Time
}

// Installment is a persisted schedule line.
type Installment struct {
	LoanID LoanID
	lending.Installment
	PaidAt            *time.Time
	Penalty           decimal.Decimal
	DaysOverdue       int
	PenaltyAssessedAt *time.Time
}

// LoanApplication is a member's request to borrow.
// A zero StartDate means today; a nil rate means the tier's default rate.
type LoanApplication struct {
	MemberID               MemberID
	Amount                 decimal.Decimal
	DurationMonths         int
	StartDate              time.Time
	MonthlyInterestPercent *decimal.Decimal
}

// LoanDecision is the outcome of ApplyForLoan. Loan and Schedule are set
// only when Eligibility.Eligible is true.
type LoanDecision struct {
	Eligibility lending.Eligibility
	Loan        *Loan
	Schedule    []Installment
}

// =============================================================================
// QUOTES
// =============================================================================

// QuoteRequest asks for a loan cost preview without touching the store.
type QuoteRequest struct {
	Principal              decimal.Decimal
	DurationMonths         int
	Tier                   lending.Tier     // empty = basic
	MonthlyInterestPercent *decimal.Decimal // nil = tier default
	StartDate              time.Time        // zero = today
}

type Quote struct {
	Tier                   lending.Tier
	MonthlyInterestPercent decimal.Decimal
	StartDate              time.Time
	Cost                   lending.LoanCostSummary
	Schedule               []lending.Installment
}

// =============================================================================
// PENALTIES
// =============================================================================

// PenaltyAssessment records a penalty evaluation. Penalties are recomputed
// from elapsed time on every run, so the latest assessment supersedes
// earlier ones for the same installment.
type PenaltyAssessment struct {
	LoanID            LoanID
	MemberID          MemberID
	InstallmentNumber int
	DueDate           time.Time
	Outstanding       decimal.Decimal
	Result            lending.PenaltyResult
	AssessedAt        time.Time
}
