/*
service.go - Cooperative savings and loan workflow

PURPOSE:
  Orchestrates Store reads, lending engine decisions and Store writes.
  Every multi-step read-modify-write runs inside Store.WithTx so concurrent
  requests for the same member are serialized by the store.

OPERATIONS:
  RegisterMember      Create a member record
  RecordContribution  Append a verified payment, reclassify the tier
  Standing            Total, tier, credit limit, active loan
  QuoteLoan           Cost + schedule preview (cached)
  ApplyForLoan        Eligibility check and loan creation
  RecordRepayment     Mark an installment paid, close the loan when done
  AssessPenalties     Evaluate every overdue installment of active loans

SEE ALSO:
  - lending/: Calculation rules
  - api/handlers.go: HTTP surface over this service
*/
package cooperative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmlink/cooperative/lending"
)

// QuoteCache stores serialized quotes. Misses and failures are not fatal.
type QuoteCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// DefaultQuoteTTL is how long a cached quote is served.
const DefaultQuoteTTL = 15 * time.Minute

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store    TxStore
	Engine   *lending.Engine
	Cache    QuoteCache // optional
	QuoteTTL time.Duration
	Logger   *slog.Logger

	// NewID generates record IDs. Defaults to random UUIDs.
	NewID func() string
}

// NewService creates a service with default ID generation and no cache.
func NewService(store TxStore, engine *lending.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Store:    store,
		Engine:   engine,
		QuoteTTL: DefaultQuoteTTL,
		Logger:   logger,
		NewID:    uuid.NewString,
	}
}

// =============================================================================
// MEMBERS
// =============================================================================

// RegisterMember stores a new member. An empty ID is generated.
func (s *Service) RegisterMember(ctx context.Context, m Member) (Member, error) {
	if strings.TrimSpace(m.Name) == "" {
		return Member{}, &ValidationError{Kind: ErrInvalidMember, Field: "name", Reason: "is required"}
	}
	if m.ID == "" {
		m.ID = MemberID(s.NewID())
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = s.Engine.Now().UTC()
	}

	err := s.Store.WithTx(ctx, func(st Store) error {
		existing, err := st.GetMember(ctx, m.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateMember
		}
		return st.SaveMember(ctx, m)
	})
	if err != nil {
		return Member{}, err
	}

	s.Logger.Info("member registered", "member_id", m.ID)
	return m, nil
}

// GetMember returns a member or ErrMemberNotFound.
func (s *Service) GetMember(ctx context.Context, id MemberID) (*Member, error) {
	return requireMember(ctx, s.Store, id)
}

// ListMembers returns all members.
func (s *Service) ListMembers(ctx context.Context) ([]Member, error) {
	return s.Store.ListMembers(ctx)
}

func requireMember(ctx context.Context, st Store, id MemberID) (*Member, error) {
	m, err := st.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}
	return m, nil
}

// =============================================================================
// CONTRIBUTIONS
// =============================================================================

// RecordContribution appends a verified payment to the member's savings and
// reports the resulting tier. Replaying the same payment reference for the
// same member returns the original receipt with Duplicate set.
func (s *Service) RecordContribution(ctx context.Context, p VerifiedPayment) (ContributionReceipt, error) {
	if err := validatePayment(p); err != nil {
		return ContributionReceipt{}, err
	}

	var receipt ContributionReceipt
	err := s.Store.WithTx(ctx, func(st Store) error {
		if _, err := requireMember(ctx, st, p.MemberID); err != nil {
			return err
		}

		existing, err := st.ContributionByReference(ctx, p.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.MemberID != p.MemberID {
				return ErrDuplicatePaymentReference
			}
			total, tier, err := s.totalAndTier(ctx, st, p.MemberID)
			if err != nil {
				return err
			}
			receipt = ContributionReceipt{
				Contribution: *existing,
				Total:        total,
				Tier:         tier,
				PreviousTier: tier,
				Duplicate:    true,
			}
			return nil
		}

		_, previousTier, err := s.totalAndTier(ctx, st, p.MemberID)
		if err != nil {
			return err
		}

		now := s.Engine.Now().UTC()
		paidAt := p.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		c := Contribution{
			ID:               ContributionID(s.NewID()),
			MemberID:         p.MemberID,
			Amount:           p.Amount,
			PaymentReference: p.Reference,
			Channel:          p.Channel,
			PaidAt:           paidAt,
			RecordedAt:       now,
		}
		if err := st.AppendContribution(ctx, c); err != nil {
			return err
		}

		total, tier, err := s.totalAndTier(ctx, st, p.MemberID)
		if err != nil {
			return err
		}
		receipt = ContributionReceipt{
			Contribution: c,
			Total:        total,
			Tier:         tier,
			PreviousTier: previousTier,
			Upgraded:     tier != previousTier,
		}
		return nil
	})
	if err != nil {
		return ContributionReceipt{}, err
	}

	if receipt.Duplicate {
		s.Logger.Info("duplicate payment ignored", "member_id", p.MemberID, "reference", p.Reference)
	} else {
		s.Logger.Info("contribution recorded",
			"member_id", p.MemberID,
			"amount", p.Amount.String(),
			"total", receipt.Total.String(),
			"tier", receipt.Tier)
		if receipt.Upgraded {
			s.Logger.Info("member tier changed", "member_id", p.MemberID, "from", receipt.PreviousTier, "to", receipt.Tier)
		}
	}
	return receipt, nil
}

// Contributions returns the member's savings ledger.
func (s *Service) Contributions(ctx context.Context, memberID MemberID) ([]Contribution, error) {
	if _, err := requireMember(ctx, s.Store, memberID); err != nil {
		return nil, err
	}
	return s.Store.Contributions(ctx, memberID)
}

func validatePayment(p VerifiedPayment) error {
	if p.MemberID == "" {
		return &ValidationError{Kind: ErrInvalidPayment, Field: "member_id", Reason: "is required"}
	}
	if !p.Amount.IsPositive() {
		return &ValidationError{Kind: ErrInvalidPayment, Field: "amount", Reason: "must be positive"}
	}
	if strings.TrimSpace(p.Reference) == "" {
		return &ValidationError{Kind: ErrInvalidPayment, Field: "reference", Reason: "is required"}
	}
	return nil
}

func (s *Service) totalAndTier(ctx context.Context, st Store, memberID MemberID) (decimal.Decimal, lending.Tier, error) {
	total, err := st.ContributionTotal(ctx, memberID)
	if err != nil {
		return decimal.Zero, "", err
	}
	tier, err := s.Engine.ClassifyTier(total)
	if err != nil {
		return decimal.Zero, "", err
	}
	return total, tier, nil
}

// =============================================================================
// STANDING
// =============================================================================

// Standing returns the member's savings total, tier and borrowing capacity.
func (s *Service) Standing(ctx context.Context, memberID MemberID) (Standing, error) {
	if _, err := requireMember(ctx, s.Store, memberID); err != nil {
		return Standing{}, err
	}

	total, tier, err := s.totalAndTier(ctx, s.Store, memberID)
	if err != nil {
		return Standing{}, err
	}
	limit, err := s.Engine.MaxLoanAmount(total)
	if err != nil {
		return Standing{}, err
	}
	active, err := s.Store.ActiveLoan(ctx, memberID)
	if err != nil {
		return Standing{}, err
	}

	minimum := s.Engine.Policy().Basic.MinContribution
	return Standing{
		MemberID:      memberID,
		Total:         total,
		Tier:          tier,
		MaxLoanAmount: limit,
		ActiveLoan:    active,
		CanBorrow:     active == nil && total.GreaterThanOrEqual(minimum),
	}, nil
}

// =============================================================================
// QUOTES
// =============================================================================

type cachedQuote struct {
	Tier     lending.Tier            `json:"tier"`
	Rate     decimal.Decimal         `json:"rate"`
	Start    time.Time               `json:"start"`
	Cost     lending.LoanCostSummary `json:"cost"`
	Schedule []lending.Installment   `json:"schedule"`
}

// QuoteLoan previews the cost and schedule of a loan.
func (s *Service) QuoteLoan(ctx context.Context, req QuoteRequest) (Quote, error) {
	tier := req.Tier
	if tier == "" {
		tier = lending.TierBasic
	}
	rate := s.rateFor(tier, req.MonthlyInterestPercent)
	start := req.StartDate
	if start.IsZero() {
		start = s.today()
	}

	key := quoteKey(tier, req.Principal, rate, req.DurationMonths, start)
	if q, ok := s.cachedQuote(ctx, key); ok {
		return q, nil
	}

	schedule, err := s.Engine.GenerateSchedule(req.Principal, rate, req.DurationMonths, start)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{
		Tier:                   tier,
		MonthlyInterestPercent: rate,
		StartDate:              start,
		Cost:                   lending.Summarize(req.Principal, schedule),
		Schedule:               schedule,
	}
	s.storeQuote(ctx, key, q)
	return q, nil
}

// quoteKey covers every input that shows up in the Quote, tier included.
func quoteKey(tier lending.Tier, principal, rate decimal.Decimal, months int, start time.Time) string {
	return fmt.Sprintf("quote:%s:%s:%s:%d:%s", tier, principal.String(), rate.String(), months, start.Format("2006-01-02"))
}

func (s *Service) cachedQuote(ctx context.Context, key string) (Quote, bool) {
	if s.Cache == nil {
		return Quote{}, false
	}
	raw, ok, err := s.Cache.Get(ctx, key)
	if err != nil {
		s.Logger.Warn("quote cache read failed", "key", key, "error", err)
		return Quote{}, false
	}
	if !ok {
		return Quote{}, false
	}
	var cq cachedQuote
	if err := json.Unmarshal([]byte(raw), &cq); err != nil {
		s.Logger.Warn("quote cache entry unreadable", "key", key, "error", err)
		return Quote{}, false
	}
	return Quote{
		Tier:                   cq.Tier,
		MonthlyInterestPercent: cq.Rate,
		StartDate:              cq.Start,
		Cost:                   cq.Cost,
		Schedule:               cq.Schedule,
	}, true
}

func (s *Service) storeQuote(ctx context.Context, key string, q Quote) {
	if s.Cache == nil {
		return
	}
	raw, err := json.Marshal(cachedQuote{
		Tier:     q.Tier,
		Rate:     q.MonthlyInterestPercent,
		Start:    q.StartDate,
		Cost:     q.Cost,
		Schedule: q.Schedule,
	})
	if err != nil {
		return
	}
	if err := s.Cache.Set(ctx, key, string(raw), s.QuoteTTL); err != nil {
		s.Logger.Warn("quote cache write failed", "key", key, "error", err)
	}
}

// =============================================================================
// LOANS
// =============================================================================

// ApplyForLoan checks eligibility and, when eligible, creates the loan and
// its schedule atomically. Ineligibility is returned as a decision, not an
// error.
func (s *Service) ApplyForLoan(ctx context.Context, app LoanApplication) (LoanDecision, error) {
	if !app.Amount.IsPositive() {
		return LoanDecision{}, lending.ErrInvalidRequestAmount
	}
	if app.DurationMonths < 1 {
		return LoanDecision{}, &lending.TermsError{Field: "duration_months", Value: fmt.Sprint(app.DurationMonths), Reason: "must be at least 1"}
	}
	if maxMonths := s.Engine.Policy().MaxDurationMonths; app.DurationMonths > maxMonths {
		return LoanDecision{}, &lending.TermsError{Field: "duration_months", Value: fmt.Sprint(app.DurationMonths), Reason: fmt.Sprintf("must be at most %d", maxMonths)}
	}
	if app.MonthlyInterestPercent != nil && app.MonthlyInterestPercent.IsNegative() {
		return LoanDecision{}, &lending.TermsError{Field: "monthly_interest_percent", Value: app.MonthlyInterestPercent.String(), Reason: "must not be negative"}
	}
	start := app.StartDate
	if start.IsZero() {
		start = s.today()
	}

	var decision LoanDecision
	err := s.Store.WithTx(ctx, func(st Store) error {
		if _, err := requireMember(ctx, st, app.MemberID); err != nil {
			return err
		}
		total, tier, err := s.totalAndTier(ctx, st, app.MemberID)
		if err != nil {
			return err
		}
		active, err := st.ActiveLoan(ctx, app.MemberID)
		if err != nil {
			return err
		}

		eligibility, err := s.Engine.CheckLoanEligibility(total, app.Amount, active != nil)
		if err != nil {
			return err
		}
		decision = LoanDecision{Eligibility: eligibility}
		if !eligibility.Eligible {
			return nil
		}

		rate := s.rateFor(tier, app.MonthlyInterestPercent)
		plan, err := s.Engine.GenerateSchedule(app.Amount, rate, app.DurationMonths, start)
		if err != nil {
			return err
		}

		loan := Loan{
			ID:                     LoanID(s.NewID()),
			MemberID:               app.MemberID,
			Tier:                   tier,
			Principal:              app.Amount,
			MonthlyInterestPercent: rate,
			DurationMonths:         app.DurationMonths,
			StartDate:              start,
			Status:                 LoanActive,
			Cost:                   lending.Summarize(app.Amount, plan),
			CreatedAt:              s.Engine.Now().UTC(),
		}
		schedule := make([]Installment, len(plan))
		for i, inst := range plan {
			schedule[i] = Installment{LoanID: loan.ID, Installment: inst, Penalty: decimal.Zero}
		}

		if err := st.CreateLoan(ctx, loan, schedule); err != nil {
			return err
		}
		decision.Loan = &loan
		decision.Schedule = schedule
		return nil
	})
	if errors.Is(err, ErrActiveLoanExists) {
		// Lost a race with a concurrent application.
		return LoanDecision{Eligibility: lending.Eligibility{Reason: lending.ReasonActiveLoan}}, nil
	}
	if err != nil {
		return LoanDecision{}, err
	}

	if decision.Eligibility.Eligible {
		s.Logger.Info("loan granted",
			"member_id", app.MemberID,
			"loan_id", decision.Loan.ID,
			"principal", app.Amount.String(),
			"tier", decision.Loan.Tier,
			"months", app.DurationMonths)
	} else {
		s.Logger.Info("loan declined", "member_id", app.MemberID, "reason", decision.Eligibility.Reason)
	}
	return decision, nil
}

// GetLoan returns a loan or ErrLoanNotFound.
func (s *Service) GetLoan(ctx context.Context, id LoanID) (*Loan, error) {
	return requireLoan(ctx, s.Store, id)
}

// LoansForMember returns every loan of a member, newest first.
func (s *Service) LoansForMember(ctx context.Context, memberID MemberID) ([]Loan, error) {
	if _, err := requireMember(ctx, s.Store, memberID); err != nil {
		return nil, err
	}
	return s.Store.LoansByMember(ctx, memberID)
}

// Schedule returns the installments of a loan.
func (s *Service) Schedule(ctx context.Context, loanID LoanID) ([]Installment, error) {
	if _, err := requireLoan(ctx, s.Store, loanID); err != nil {
		return nil, err
	}
	return s.Store.Installments(ctx, loanID)
}

// RecordRepayment marks one installment paid and closes the loan once every
// installment is paid.
func (s *Service) RecordRepayment(ctx context.Context, loanID LoanID, number int, paidAt time.Time) (*Loan, error) {
	if paidAt.IsZero() {
		paidAt = s.Engine.Now().UTC()
	}

	var result *Loan
	err := s.Store.WithTx(ctx, func(st Store) error {
		loan, err := requireLoan(ctx, st, loanID)
		if err != nil {
			return err
		}
		if loan.Status != LoanActive {
			return ErrLoanNotActive
		}

		installments, err := st.Installments(ctx, loanID)
		if err != nil {
			return err
		}
		found := false
		remaining := 0
		for _, inst := range installments {
			if inst.Number == number {
				found = true
				if inst.Paid {
					return ErrInstallmentAlreadyPaid
				}
				continue
			}
			if !inst.Paid {
				remaining++
			}
		}
		if !found {
			return ErrInstallmentNotFound
		}

		if err := st.MarkInstallmentPaid(ctx, loanID, number, paidAt); err != nil {
			return err
		}
		if remaining == 0 {
			if err := st.CloseLoan(ctx, loanID, paidAt); err != nil {
				return err
			}
			loan.Status = LoanRepaid
			loan.ClosedAt = &paidAt
		}
		result = loan
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("repayment recorded", "loan_id", loanID, "installment", number, "status", result.Status)
	return result, nil
}

func requireLoan(ctx context.Context, st Store, id LoanID) (*Loan, error) {
	loan, err := st.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}
	return loan, nil
}

// =============================================================================
// PENALTIES
// =============================================================================

// AssessPenalties evaluates every unpaid installment of every active loan
// against a single instant and stores the result on the installment.
// Only installments past the grace period are returned.
func (s *Service) AssessPenalties(ctx context.Context) ([]PenaltyAssessment, error) {
	asOf := s.Engine.Now().UTC()

	var assessments []PenaltyAssessment
	err := s.Store.WithTx(ctx, func(st Store) error {
		due, err := st.UnpaidInstallments(ctx, asOf)
		if err != nil {
			return err
		}

		owners := make(map[LoanID]MemberID)
		for _, inst := range due {
			result, err := s.Engine.CalculatePenaltyAt(asOf, inst.DueDate, inst.TotalDue)
			if err != nil {
				return err
			}
			if result.DaysOverdue == 0 && inst.DaysOverdue == 0 {
				continue
			}

			memberID, ok := owners[inst.LoanID]
			if !ok {
				loan, err := requireLoan(ctx, st, inst.LoanID)
				if err != nil {
					return err
				}
				memberID = loan.MemberID
				owners[inst.LoanID] = memberID
			}

			a := PenaltyAssessment{
				LoanID:            inst.LoanID,
				MemberID:          memberID,
				InstallmentNumber: inst.Number,
				DueDate:           inst.DueDate,
				Outstanding:       inst.TotalDue,
				Result:            result,
				AssessedAt:        asOf,
			}
			if err := st.RecordPenalty(ctx, a); err != nil {
				return err
			}
			if result.DaysOverdue > 0 {
				assessments = append(assessments, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("penalties assessed", "as_of", asOf, "overdue_installments", len(assessments))
	return assessments, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) rateFor(tier lending.Tier, explicit *decimal.Decimal) decimal.Decimal {
	if explicit != nil {
		return *explicit
	}
	return s.Engine.Policy().Rule(tier).MonthlyInterestPercent
}

func (s *Service) today() time.Time {
	now := s.Engine.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
