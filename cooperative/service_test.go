package cooperative_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/cooperative/cache"
	"github.com/farmlink/cooperative/cooperative"
	"github.com/farmlink/cooperative/cooperative/store"
	"github.com/farmlink/cooperative/lending"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var jan1 = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// stepClock is a clock tests can move forward.
type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

type fixture struct {
	svc   *cooperative.Service
	store *store.Memory
	clock *stepClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &stepClock{now: jan1}
	engine, err := lending.NewEngine(lending.DefaultPolicy(), clock)
	require.NoError(t, err)

	mem := store.NewMemory()
	svc := cooperative.NewService(mem, engine, slog.New(slog.NewTextHandler(io.Discard, nil)))

	seq := 0
	svc.NewID = func() string {
		seq++
		return "id-" + string(rune('a'+seq-1))
	}
	return &fixture{svc: svc, store: mem, clock: clock}
}

func (f *fixture) member(t *testing.T, id string) cooperative.MemberID {
	t.Helper()
	m, err := f.svc.RegisterMember(context.Background(), cooperative.Member{ID: cooperative.MemberID(id), Name: "Member " + id})
	require.NoError(t, err)
	return m.ID
}

func (f *fixture) contribute(t *testing.T, memberID cooperative.MemberID, ref string, amount int64) cooperative.ContributionReceipt {
	t.Helper()
	receipt, err := f.svc.RecordContribution(context.Background(), cooperative.VerifiedPayment{
		MemberID:  memberID,
		Amount:    lending.NewAmount(amount),
		Reference: ref,
		Channel:   "mobile_money",
	})
	require.NoError(t, err)
	return receipt
}

func amt(n int64) decimal.Decimal {
	return lending.NewAmount(n)
}

// =============================================================================
// MEMBER TESTS
// =============================================================================

func TestRegisterMember_GeneratesIDAndJoinDate(t *testing.T) {
	f := newFixture(t)

	m, err := f.svc.RegisterMember(context.Background(), cooperative.Member{Name: "Amina"})
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, jan1, m.JoinedAt)
}

func TestRegisterMember_RequiresName(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RegisterMember(context.Background(), cooperative.Member{Name: "  "})
	assert.ErrorIs(t, err, cooperative.ErrInvalidMember)
	assert.True(t, cooperative.IsClientError(err))
}

func TestRegisterMember_DuplicateID(t *testing.T) {
	f := newFixture(t)
	f.member(t, "m1")

	_, err := f.svc.RegisterMember(context.Background(), cooperative.Member{ID: "m1", Name: "Again"})
	assert.ErrorIs(t, err, cooperative.ErrDuplicateMember)
}

func TestGetMember_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetMember(context.Background(), "nobody")
	assert.True(t, cooperative.IsNotFound(err))
}

// =============================================================================
// CONTRIBUTION TESTS
// =============================================================================

func TestRecordContribution_TierUpgrade(t *testing.T) {
	f := newFixture(t)
	id := f.member(t, "m1")

	// GIVEN: A first contribution at the basic minimum
	r1 := f.contribute(t, id, "pay-1", 10000)
	assert.Equal(t, lending.TierBasic, r1.Tier)
	assert.False(t, r1.Upgraded)
	assert.True(t, r1.Total.Equal(amt(10000)))

	// WHEN: The total reaches the premium minimum
	r2 := f.contribute(t, id, "pay-2", 10000)

	// THEN: The member is upgraded
	assert.Equal(t, lending.TierPremium, r2.Tier)
	assert.Equal(t, lending.TierBasic, r2.PreviousTier)
	assert.True(t, r2.Upgraded)
	assert.True(t, r2.Total.Equal(amt(20000)))
}

func TestRecordContribution_SameReferenceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.member(t, "m1")

	first := f.contribute(t, id, "pay-1", 10000)

	// WHEN: The gateway retries the same notification
	again := f.contribute(t, id, "pay-1", 10000)

	// THEN: Nothing new is written and the original entry is returned
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Contribution.ID, again.Contribution.ID)
	assert.True(t, again.Total.Equal(amt(10000)))

	ledger, err := f.svc.Contributions(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}

func TestRecordContribution_ReferenceOwnedByAnotherMember(t *testing.T) {
	f := newFixture(t)
	a := f.member(t, "a")
	b := f.member(t, "b")
	f.contribute(t, a, "pay-1", 5000)

	_, err := f.svc.RecordContribution(context.Background(), cooperative.VerifiedPayment{
		MemberID: b, Amount: amt(5000), Reference: "pay-1",
	})
	assert.ErrorIs(t, err, cooperative.ErrDuplicatePaymentReference)
	assert.True(t, cooperative.IsConflict(err))
}

func TestRecordContribution_Validation(t *testing.T) {
	f := newFixture(t)
	id := f.member(t, "m1")

	tests := []struct {
		name    string
		payment cooperative.VerifiedPayment
	}{
		{"zero amount", cooperative.VerifiedPayment{MemberID: id, Amount: decimal.Zero, Reference: "r"}},
		{"negative amount", cooperative.VerifiedPayment{MemberID: id, Amount: amt(-5), Reference: "r"}},
		{"missing reference", cooperative.VerifiedPayment{MemberID: id, Amount: amt(5)}},
		{"missing member", cooperative.VerifiedPayment{Amount: amt(5), Reference: "r"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordContribution(context.Background(), tt.payment)
			assert.ErrorIs(t, err, cooperative.ErrInvalidPayment)
		})
	}
}

func TestRecordContribution_UnknownMember(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordContribution(context.Background(), cooperative.VerifiedPayment{
		MemberID: "ghost", Amount: amt(100), Reference: "r",
	})
	assert.ErrorIs(t, err, cooperative.ErrMemberNotFound)
}

// =============================================================================
// STANDING TESTS
// =============================================================================

func TestStanding(t *testing.T) {
	f := newFixture(t)
	id := f.member(t, "m1")
	ctx := context.Background()

	s, err := f.svc.Standing(ctx, id)
	require.NoError(t, err)
	assert.False(t, s.CanBorrow, "no savings yet")
	assert.True(t, s.MaxLoanAmount.IsZero())

	f.contribute(t, id, "pay-1", 25000)
	s, err = f.svc.Standing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, lending.TierPremium, s.Tier)
	assert.True(t, s.MaxLoanAmount.Equal(amt(75000)))
	assert.True(t, s.CanBorrow)
	assert.Nil(t, s.ActiveLoan)
}

// =============================================================================
// LOAN TESTS
// =============================================================================

func TestApplyForLoan_Granted(t *testing.T) {
	f := newFixture(t)
	id := f.member(t, "m1")
	f.contribute(t, id, "pay-1", 10000)

	decision, err := f.svc.ApplyForLoan(context.Background(), cooperative.LoanApplication{
		MemberID: id, Amount: amt(15000), DurationMonths: 3, StartDate: jan1,
	})
	require.NoError(t, err)

	require.True(t, decision.Eligibility.Eligible)
	require.NotNil(t, decision.Loan)
	loan := decision.Loan
	assert.Equal(t, lending.TierBasic, loan.Tier)
	assert.Equal(t, cooperative.LoanActive, loan.Status)
	assert.True(t, loan.MonthlyInterestPercent.Equal(amt(2)), "basic tier default rate")
	assert.True(t, loan.Cost.TotalInterest.Equal(amt(900)))
	assert.True(t, loan.Cost.TotalRepayment.Equal(amt(15900)))

	require.Len(t, decision.Schedule, 3)
	assert.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), decision.Schedule[0].DueDate)
	assert.True(t, decision.Schedule[0].TotalDue.Equal(amt(5300)))

	stored, err := f.svc.Schedule(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestApplyForLoan_PremiumRate(t *testing.T) {
	f := newFixture(t)
	id := f.member(t, "m1")
	f.contribute(t, id, "pay-1", 20000)

	decision, err := f.svc.ApplyForLoan(context.Background(), cooperative.LoanApplication{
		MemberID: id, Amount: amt(60000), DurationMonths: 6, StartDate: jan1,
	})
	require.NoError(t, err)
	require.True(t, decision.Eligibility.Eligible)
	assert.Equal(t, lending.TierPremium, decision.Loan.Tier)
	assert.True(t, decision.Loan.MonthlyInterestPercent.Equal(decimal.RequireFromString("1.5")))
}

func TestApplyForLoan_Declined(t *testing.T) {
	tests := []struct {
		name         string
		contribution int64
		amount       int64
		reason       lending.IneligibilityReason
	}{
		{"below minimum", 9999, 1000, lending.ReasonInsufficientContribution},
		{"over limit", 10000, 20001, lending.ReasonExceedsTierLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.member(t, "m1")
			f.contribute(t, id, "pay-1", tt.contribution)

			decision, err := f.svc.ApplyForLoan(context.Background(), cooperative.LoanApplication{
				MemberID: id, Amount: amt(tt.amount), DurationMonths: 6,
			})
			require.NoError(t, err, "ineligibility is a decision, not an error")
			assert.False(t, decision.Eligibility.Eligible)
			assert.Equal(t, tt.reason, decision.Eligibility.Reason)
			assert.Nil(t, decision.Loan)
		})
	}
}

func TestApplyForLoan_SecondActiveLoanDeclined(t *testing.T) {
	f := newFixture(t)
	id := f.member(t, "m1")
	f.contribute(t, id, "pay-1", 10000)
	ctx := context.Background()

	_, err := f.svc.ApplyForLoan(ctx, cooperative.LoanApplication{MemberID: id, Amount: amt(1000), DurationMonths: 2})
	require.NoError(t, err)

	decision, err := f.svc.ApplyForLoan(ctx, cooperative.LoanApplication{MemberID: id, Amount: amt(1000), DurationMonths: 2})
	require.NoError(t, err)
	assert.False(t, decision.Eligibility.Eligible)
	assert.Equal(t, lending.ReasonActiveLoan, decision.Eligibility.Reason)

	loans, err := f.svc.LoansForMember(ctx, id)
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}

func TestApplyForLoan_InvalidTerms(t *testing.T) {
	f := newFixture(t)
	id := f.member(t, "m1")
	f.contribute(t, id, "pay-1", 10000)
	negative := amt(-1)

	_, err := f.svc.ApplyForLoan(context.Background(), cooperative.LoanApplication{MemberID: id, Amount: amt(1000), DurationMonths: 0})
	assert.ErrorIs(t, err, lending.ErrInvalidLoanTerms)

	_, err = f.svc.ApplyForLoan(context.Background(), cooperative.LoanApplication{
		MemberID: id, Amount: amt(1000), DurationMonths: 3, MonthlyInterestPercent: &negative,
	})
	assert.ErrorIs(t, err, lending.ErrInvalidLoanTerms)
	assert.True(t, cooperative.IsClientError(err))

	_, err = f.svc.ApplyForLoan(context.Background(), cooperative.LoanApplication{MemberID: id, Amount: amt(1000), DurationMonths: 1 << 40})
	var terms *lending.TermsError
	require.ErrorAs(t, err, &terms)
	assert.Equal(t, "duration_months", terms.Field)

	_, err = f.svc.ApplyForLoan(context.Background(), cooperative.LoanApplication{MemberID: id, Amount: decimal.Zero, DurationMonths: 3})
	assert.ErrorIs(t, err, lending.ErrInvalidRequestAmount)

	loans, err := f.svc.LoansForMember(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, loans)
}

// =============================================================================
// REPAYMENT TESTS
// =============================================================================

func grantLoan(t *testing.T, f *fixture) *cooperative.Loan {
	t.Helper()
	id := f.member(t, "m1")
	f.contribute(t, id, "pay-1", 10000)
	decision, err := f.svc.ApplyForLoan(context.Background(), cooperative.LoanApplication{
		MemberID: id, Amount: amt(15000), DurationMonths: 3, StartDate: jan1,
	})
	require.NoError(t, err)
	require.True(t, decision.Eligibility.Eligible)
	return decision.Loan
}

func TestRecordRepayment_ClosesLoanWhenFullyPaid(t *testing.T) {
	f := newFixture(t)
	loan := grantLoan(t, f)
	ctx := context.Background()

	for n := 1; n <= 2; n++ {
		got, err := f.svc.RecordRepayment(ctx, loan.ID, n, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, cooperative.LoanActive, got.Status)
	}

	got, err := f.svc.RecordRepayment(ctx, loan.ID, 3, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, cooperative.LoanRepaid, got.Status)
	require.NotNil(t, got.ClosedAt)

	// THEN: The member may borrow again
	s, err := f.svc.Standing(ctx, loan.MemberID)
	require.NoError(t, err)
	assert.Nil(t, s.ActiveLoan)
	assert.True(t, s.CanBorrow)

	_, err = f.svc.RecordRepayment(ctx, loan.ID, 3, time.Time{})
	assert.ErrorIs(t, err, cooperative.ErrLoanNotActive)
}

func TestRecordRepayment_Errors(t *testing.T) {
	f := newFixture(t)
	loan := grantLoan(t, f)
	ctx := context.Background()

	_, err := f.svc.RecordRepayment(ctx, loan.ID, 1, time.Time{})
	require.NoError(t, err)

	_, err = f.svc.RecordRepayment(ctx, loan.ID, 1, time.Time{})
	assert.ErrorIs(t, err, cooperative.ErrInstallmentAlreadyPaid)

	_, err = f.svc.RecordRepayment(ctx, loan.ID, 9, time.Time{})
	assert.ErrorIs(t, err, cooperative.ErrInstallmentNotFound)

	_, err = f.svc.RecordRepayment(ctx, "missing", 1, time.Time{})
	assert.ErrorIs(t, err, cooperative.ErrLoanNotFound)
}

// =============================================================================
// PENALTY TESTS
// =============================================================================

func TestAssessPenalties_OnlyPastGrace(t *testing.T) {
	f := newFixture(t)
	loan := grantLoan(t, f)
	ctx := context.Background()

	// GIVEN: First installment due Feb 1, now Feb 8 (exactly grace)
	f.clock.now = time.Date(2025, time.February, 8, 0, 0, 0, 0, time.UTC)
	got, err := f.svc.AssessPenalties(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	// WHEN: 17 days after the due date
	f.clock.now = time.Date(2025, time.February, 18, 0, 0, 0, 0, time.UTC)
	got, err = f.svc.AssessPenalties(ctx)
	require.NoError(t, err)

	// THEN: 10 days overdue on 5,300 at 0.1%/day = 53
	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, loan.ID, a.LoanID)
	assert.Equal(t, loan.MemberID, a.MemberID)
	assert.Equal(t, 1, a.InstallmentNumber)
	assert.Equal(t, 10, a.Result.DaysOverdue)
	assert.True(t, a.Result.Penalty.Equal(amt(53)), "got %s", a.Result.Penalty)

	schedule, err := f.svc.Schedule(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, schedule[0].Penalty.Equal(amt(53)))
	assert.Equal(t, 10, schedule[0].DaysOverdue)
	require.NotNil(t, schedule[0].PenaltyAssessedAt)
	assert.True(t, schedule[1].Penalty.IsZero())
}

func TestAssessPenalties_SkipsPaidAndClosed(t *testing.T) {
	f := newFixture(t)
	loan := grantLoan(t, f)
	ctx := context.Background()

	_, err := f.svc.RecordRepayment(ctx, loan.ID, 1, jan1)
	require.NoError(t, err)

	f.clock.now = time.Date(2025, time.February, 18, 0, 0, 0, 0, time.UTC)
	got, err := f.svc.AssessPenalties(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "paid installment carries no penalty")
}

func TestAssessPenalties_Recomputed(t *testing.T) {
	f := newFixture(t)
	grantLoan(t, f)
	ctx := context.Background()

	f.clock.now = time.Date(2025, time.February, 18, 0, 0, 0, 0, time.UTC)
	first, err := f.svc.AssessPenalties(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// WHEN: Ten more days pass
	f.clock.now = f.clock.now.AddDate(0, 0, 10)
	second, err := f.svc.AssessPenalties(ctx)
	require.NoError(t, err)

	// THEN: The penalty grows with elapsed time and is not compounded
	require.Len(t, second, 1)
	assert.Equal(t, 20, second[0].Result.DaysOverdue)
	assert.True(t, second[0].Result.Penalty.Equal(amt(106)))
}

// =============================================================================
// QUOTE TESTS
// =============================================================================

func TestQuoteLoan(t *testing.T) {
	f := newFixture(t)

	q, err := f.svc.QuoteLoan(context.Background(), cooperative.QuoteRequest{
		Principal: amt(12000), DurationMonths: 12,
	})
	require.NoError(t, err)

	assert.Equal(t, lending.TierBasic, q.Tier)
	assert.Equal(t, jan1, q.StartDate)
	assert.True(t, q.Cost.TotalInterest.Equal(amt(2880)))
	assert.True(t, q.Cost.MonthlyPayment.Equal(amt(1240)))
	assert.Len(t, q.Schedule, 12)
}

func TestQuoteLoan_InvalidTerms(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.QuoteLoan(context.Background(), cooperative.QuoteRequest{Principal: amt(-1), DurationMonths: 12})
	assert.True(t, cooperative.IsClientError(err))
}

func TestQuoteLoan_Cached(t *testing.T) {
	f := newFixture(t)
	c := cache.NewMemory()
	f.svc.Cache = c
	ctx := context.Background()
	req := cooperative.QuoteRequest{Principal: amt(15000), DurationMonths: 3, Tier: lending.TierPremium, StartDate: jan1}

	first, err := f.svc.QuoteLoan(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	_, ok, err := c.Get(ctx, "quote:premium:15000:1.5:3:2025-01-01")
	require.NoError(t, err)
	assert.True(t, ok)

	second, err := f.svc.QuoteLoan(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Tier, second.Tier)
	assert.True(t, first.Cost.TotalRepayment.Equal(second.Cost.TotalRepayment))
	require.Len(t, second.Schedule, 3)
	assert.True(t, first.Schedule[2].DueDate.Equal(second.Schedule[2].DueDate))
}

func TestQuoteLoan_UnreadableCacheEntryRecomputed(t *testing.T) {
	f := newFixture(t)
	c := cache.NewMemory()
	f.svc.Cache = c
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "quote:basic:3000:2:3:2025-01-01", "{not json", time.Minute))

	q, err := f.svc.QuoteLoan(ctx, cooperative.QuoteRequest{Principal: amt(3000), DurationMonths: 3})
	require.NoError(t, err)
	assert.True(t, q.Cost.TotalInterest.Equal(amt(180)))
}

func TestQuoteLoan_CacheSeparatesTiers(t *testing.T) {
	f := newFixture(t)
	f.svc.Cache = cache.NewMemory()
	ctx := context.Background()
	two := amt(2)

	// GIVEN: a premium quote at an explicit 2%, which matches the basic default rate
	premium, err := f.svc.QuoteLoan(ctx, cooperative.QuoteRequest{
		Principal: amt(5000), DurationMonths: 3, Tier: lending.TierPremium, MonthlyInterestPercent: &two, StartDate: jan1,
	})
	require.NoError(t, err)
	require.Equal(t, lending.TierPremium, premium.Tier)

	// WHEN: the same terms are quoted with the default tier
	basic, err := f.svc.QuoteLoan(ctx, cooperative.QuoteRequest{Principal: amt(5000), DurationMonths: 3, StartDate: jan1})
	require.NoError(t, err)

	// THEN: the cached premium quote is not served
	assert.Equal(t, lending.TierBasic, basic.Tier)
	assert.True(t, basic.MonthlyInterestPercent.Equal(two))
}

func TestQuoteLoan_DurationAboveMaximum(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.QuoteLoan(context.Background(), cooperative.QuoteRequest{Principal: amt(5000), DurationMonths: 1 << 40})

	var terms *lending.TermsError
	require.ErrorAs(t, err, &terms)
	assert.Equal(t, "duration_months", terms.Field)
	assert.True(t, cooperative.IsClientError(err))
}
