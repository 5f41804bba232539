/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Request amounts are decimal.Decimal and accept JSON numbers or strings.
  Response amounts are strings with two decimal places ("5300.00").
  Rates keep their full precision ("1.5").

DATES:
  Request dates accept "2006-01-02" or RFC 3339. Due and start dates are
  returned as "2006-01-02"; instants as RFC 3339.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/farmlink/cooperative/cooperative"
	"github.com/farmlink/cooperative/lending"
)

const dateLayout = "2006-01-02"

// =============================================================================
// MEMBERS
// =============================================================================

type MemberDTO struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

type CreateMemberRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// StandingDTO summarizes a member's borrowing position.
type StandingDTO struct {
	MemberID      string   `json:"member_id"`
	Total         string   `json:"total_contributions"`
	Tier          string   `json:"tier"`
	MaxLoanAmount string   `json:"max_loan_amount"`
	CanBorrow     bool     `json:"can_borrow"`
	ActiveLoan    *LoanDTO `json:"active_loan,omitempty"`
}

// =============================================================================
// CONTRIBUTIONS
// =============================================================================

// RecordContributionRequest is a payment already verified by the gateway.
type RecordContributionRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Channel   string          `json:"channel,omitempty"`
	PaidAt    string          `json:"paid_at,omitempty"`
}

type ContributionDTO struct {
	ID               string    `json:"id"`
	MemberID         string    `json:"member_id"`
	Amount           string    `json:"amount"`
	PaymentReference string    `json:"payment_reference"`
	Channel          string    `json:"channel,omitempty"`
	PaidAt           time.Time `json:"paid_at"`
	RecordedAt       time.Time `json:"recorded_at"`
}

type ContributionReceiptDTO struct {
	Contribution ContributionDTO `json:"contribution"`
	Total        string          `json:"total_contributions"`
	Tier         string          `json:"tier"`
	PreviousTier string          `json:"previous_tier"`
	Upgraded     bool            `json:"upgraded"`
	Duplicate    bool            `json:"duplicate"`
}

// =============================================================================
// LOANS
// =============================================================================

type ApplyLoanRequest struct {
	Amount                 decimal.Decimal  `json:"amount"`
	DurationMonths         int              `json:"duration_months"`
	StartDate              string           `json:"start_date,omitempty"`
	MonthlyInterestPercent *decimal.Decimal `json:"monthly_interest_percent,omitempty"`
}

type LoanDTO struct {
	ID                     string     `json:"id"`
	MemberID               string     `json:"member_id"`
	Tier                   string     `json:"tier"`
	Principal              string     `json:"principal"`
	MonthlyInterestPercent string     `json:"monthly_interest_percent"`
	DurationMonths         int        `json:"duration_months"`
	StartDate              string     `json:"start_date"`
	Status                 string     `json:"status"`
	TotalInterest          string     `json:"total_interest"`
	TotalRepayment         string     `json:"total_repayment"`
	MonthlyPayment         string     `json:"monthly_payment"`
	CreatedAt              time.Time  `json:"created_at"`
	ClosedAt               *time.Time `json:"closed_at,omitempty"`
}

type InstallmentDTO struct {
	Number      int        `json:"number"`
	DueDate     string     `json:"due_date"`
	Principal   string     `json:"principal"`
	Interest    string     `json:"interest"`
	TotalDue    string     `json:"total_due"`
	Paid        bool       `json:"paid"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	Penalty     string     `json:"penalty,omitempty"`
	DaysOverdue int        `json:"days_overdue,omitempty"`
}

// LoanDecisionDTO is returned by loan applications, granted or not.
type LoanDecisionDTO struct {
	Eligible bool             `json:"eligible"`
	Reason   string           `json:"reason,omitempty"`
	Message  string           `json:"message,omitempty"`
	Loan     *LoanDTO         `json:"loan,omitempty"`
	Schedule []InstallmentDTO `json:"schedule,omitempty"`
}

type RepaymentRequest struct {
	PaidAt string `json:"paid_at,omitempty"`
}

// =============================================================================
// QUOTES AND ELIGIBILITY
// =============================================================================

type QuoteRequest struct {
	Principal              decimal.Decimal  `json:"principal"`
	DurationMonths         int              `json:"duration_months"`
	Tier                   string           `json:"tier,omitempty"`
	MonthlyInterestPercent *decimal.Decimal `json:"monthly_interest_percent,omitempty"`
	StartDate              string           `json:"start_date,omitempty"`
}

type QuoteDTO struct {
	Tier                   string           `json:"tier"`
	MonthlyInterestPercent string           `json:"monthly_interest_percent"`
	StartDate              string           `json:"start_date"`
	Principal              string           `json:"principal"`
	DurationMonths         int              `json:"duration_months"`
	TotalInterest          string           `json:"total_interest"`
	TotalRepayment         string           `json:"total_repayment"`
	MonthlyPayment         string           `json:"monthly_payment"`
	Schedule               []InstallmentDTO `json:"schedule"`
}

// EligibilityRequest checks a hypothetical application without a member.
type EligibilityRequest struct {
	ContributionTotal decimal.Decimal `json:"contribution_total"`
	RequestedAmount   decimal.Decimal `json:"requested_amount"`
	HasActiveLoan     bool            `json:"has_active_loan"`
}

type EligibilityDTO struct {
	Eligible      bool   `json:"eligible"`
	Reason        string `json:"reason,omitempty"`
	Message       string `json:"message,omitempty"`
	Tier          string `json:"tier"`
	MaxLoanAmount string `json:"max_loan_amount"`
}

// =============================================================================
// PENALTIES
// =============================================================================

type PenaltyRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	DueDate string          `json:"due_date"`
	AsOf    string          `json:"as_of,omitempty"`
}

type PenaltyDTO struct {
	Amount      string    `json:"amount"`
	DueDate     string    `json:"due_date"`
	AsOf        time.Time `json:"as_of"`
	DaysOverdue int       `json:"days_overdue"`
	Penalty     string    `json:"penalty"`
}

type PenaltyAssessmentDTO struct {
	LoanID            string    `json:"loan_id"`
	MemberID          string    `json:"member_id"`
	InstallmentNumber int       `json:"installment_number"`
	DueDate           string    `json:"due_date"`
	Outstanding       string    `json:"outstanding"`
	DaysOverdue       int       `json:"days_overdue"`
	Penalty           string    `json:"penalty"`
	AssessedAt        time.Time `json:"assessed_at"`
}

type AssessPenaltiesResponse struct {
	Count       int                    `json:"count"`
	Assessments []PenaltyAssessmentDTO `json:"assessments"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toMemberDTO(m cooperative.Member) MemberDTO {
	return MemberDTO{
		ID:       string(m.ID),
		Name:     m.Name,
		Email:    m.Email,
		Phone:    m.Phone,
		JoinedAt: m.JoinedAt,
	}
}

func toContributionDTO(c cooperative.Contribution) ContributionDTO {
	return ContributionDTO{
		ID:               string(c.ID),
		MemberID:         string(c.MemberID),
		Amount:           money(c.Amount),
		PaymentReference: c.PaymentReference,
		Channel:          c.Channel,
		PaidAt:           c.PaidAt,
		RecordedAt:       c.RecordedAt,
	}
}

func toLoanDTO(l cooperative.Loan) LoanDTO {
	return LoanDTO{
		ID:                     string(l.ID),
		MemberID:               string(l.MemberID),
		Tier:                   string(l.Tier),
		Principal:              money(l.Principal),
		MonthlyInterestPercent: l.MonthlyInterestPercent.String(),
		DurationMonths:         l.DurationMonths,
		StartDate:              l.StartDate.Format(dateLayout),
		Status:                 string(l.Status),
		TotalInterest:          money(l.Cost.TotalInterest),
		TotalRepayment:         money(l.Cost.TotalRepayment),
		MonthlyPayment:         money(l.Cost.MonthlyPayment),
		CreatedAt:              l.CreatedAt,
		ClosedAt:               l.ClosedAt,
	}
}

func toScheduleDTOs(schedule []lending.Installment) []InstallmentDTO {
	dtos := make([]InstallmentDTO, len(schedule))
	for i, inst := range schedule {
		dtos[i] = InstallmentDTO{
			Number:    inst.Number,
			DueDate:   inst.DueDate.Format(dateLayout),
			Principal: money(inst.Principal),
			Interest:  money(inst.Interest),
			TotalDue:  money(inst.TotalDue),
			Paid:      inst.Paid,
		}
	}
	return dtos
}

func toInstallmentDTOs(installments []cooperative.Installment) []InstallmentDTO {
	dtos := make([]InstallmentDTO, len(installments))
	for i, inst := range installments {
		dto := InstallmentDTO{
			Number:      inst.Number,
			DueDate:     inst.DueDate.Format(dateLayout),
			Principal:   money(inst.Principal),
			Interest:    money(inst.Interest),
			TotalDue:    money(inst.TotalDue),
			Paid:        inst.Paid,
			PaidAt:      inst.PaidAt,
			DaysOverdue: inst.DaysOverdue,
		}
		if inst.Penalty.IsPositive() {
			dto.Penalty = money(inst.Penalty)
		}
		dtos[i] = dto
	}
	return dtos
}

func toDecisionDTO(d cooperative.LoanDecision) LoanDecisionDTO {
	dto := LoanDecisionDTO{Eligible: d.Eligibility.Eligible}
	if !d.Eligibility.Eligible {
		dto.Reason = string(d.Eligibility.Reason)
		dto.Message = d.Eligibility.Reason.Message()
	}
	if d.Loan != nil {
		loan := toLoanDTO(*d.Loan)
		dto.Loan = &loan
		dto.Schedule = toInstallmentDTOs(d.Schedule)
	}
	return dto
}

func toAssessmentDTO(a cooperative.PenaltyAssessment) PenaltyAssessmentDTO {
	return PenaltyAssessmentDTO{
		LoanID:            string(a.LoanID),
		MemberID:          string(a.MemberID),
		InstallmentNumber: a.InstallmentNumber,
		DueDate:           a.DueDate.Format(dateLayout),
		Outstanding:       money(a.Outstanding),
		DaysOverdue:       a.Result.DaysOverdue,
		Penalty:           money(a.Result.Penalty),
		AssessedAt:        a.AssessedAt,
	}
}
