/*
schedule.go - Flat-rate repayment schedule

PURPOSE:
  Expands loan terms into one installment per month.

ALGORITHM (flat rate, non-compounding):
  principal portion = principal / durationMonths          (same every month)
  interest portion  = principal * monthlyRatePercent / 100 (same every month)
  due date i        = AddMonthsClamped(start, i)           (i = 1..n)

  Interest is charged on the ORIGINAL principal for every installment, not
  on the declining balance. This is the cooperative's pricing rule and
  costs more than reducing-balance amortization. Keep it unless the
  business owner changes the rule.

PRECISION:
  Principal portions keep decimal's division precision (16 places), so
  they sum to the principal within 1e-15 per installment. Presentation
  layers round to cents.

MONTH-END POLICY:
  Due dates are derived from the start date each time (never chained) and
  clamp to the last day of short months: a loan started Jan 31 is due
  Feb 28, Mar 31, Apr 30, ...
*/
package lending

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// GenerateSchedule returns exactly durationMonths unpaid installments,
// ordered by number. Durations above Policy.MaxDurationMonths are rejected
// before anything is allocated.
func (e *Engine) GenerateSchedule(principal, monthlyRatePercent decimal.Decimal, durationMonths int, start time.Time) ([]Installment, error) {
	if err := e.validateTerms(principal, monthlyRatePercent, durationMonths); err != nil {
		return nil, err
	}

	principalPortion := principal.Div(decimal.NewFromInt(int64(durationMonths)))
	interestPortion := principal.Mul(monthlyRatePercent).Div(hundred)
	totalDue := principalPortion.Add(interestPortion)

	schedule := make([]Installment, durationMonths)
	for i := range schedule {
		n := i + 1
		schedule[i] = Installment{
			Number:    n,
			DueDate:   AddMonthsClamped(start, n),
			Principal: principalPortion,
			Interest:  interestPortion,
			TotalDue:  totalDue,
		}
	}
	return schedule, nil
}

func (e *Engine) validateTerms(principal, monthlyRatePercent decimal.Decimal, durationMonths int) error {
	if !principal.IsPositive() {
		return &TermsError{Field: "principal", Value: principal.String(), Reason: "must be positive"}
	}
	if durationMonths < 1 {
		return &TermsError{Field: "duration_months", Value: strconv.Itoa(durationMonths), Reason: "must be at least 1"}
	}
	if durationMonths > e.policy.MaxDurationMonths {
		return &TermsError{
			Field:  "duration_months",
			Value:  strconv.Itoa(durationMonths),
			Reason: "must be at most " + strconv.Itoa(e.policy.MaxDurationMonths),
		}
	}
	if monthlyRatePercent.IsNegative() {
		return &TermsError{Field: "monthly_interest_percent", Value: monthlyRatePercent.String(), Reason: "must not be negative"}
	}
	return nil
}
