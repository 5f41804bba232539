/*
penalty.go - Grace-period late-payment penalty

PURPOSE:
  Computes the penalty owed on an outstanding amount given its due date.
  Nothing is stored: the penalty is re-derived from elapsed time on every
  call, and the caller persists it if needed.

RULES:
  daysDiff    = whole days from due date to now (truncated)
  daysDiff <= GraceDays        -> penalty 0, daysOverdue 0 (future dates too)
  daysOverdue = daysDiff - GraceDays
  penalty     = round(amount * DailyPenaltyRate * daysOverdue)

  Exactly GraceDays late is still inside the grace period.

ROUNDING:
  Half away from zero to a whole unit. Amounts are never negative so this
  is round-half-up: 37.5 -> 38, 37.035 -> 37.

EXAMPLES (default policy):
  10,000 due 12 days ago   -> 5 days overdue, penalty 50
  50,000 due 27 days ago   -> 20 days overdue, penalty 1,000
  12,345 due 10 days ago   -> 3 days overdue, penalty 37
*/
package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculatePenalty evaluates the penalty as of the engine clock's now.
func (e *Engine) CalculatePenalty(dueDate time.Time, totalAmount decimal.Decimal) (PenaltyResult, error) {
	return e.CalculatePenaltyAt(e.clock.Now(), dueDate, totalAmount)
}

// CalculatePenaltyAt evaluates the penalty as of an explicit instant.
// Batch assessments use it so every installment shares one "now".
func (e *Engine) CalculatePenaltyAt(asOf, dueDate time.Time, totalAmount decimal.Decimal) (PenaltyResult, error) {
	if totalAmount.IsNegative() {
		return PenaltyResult{}, ErrNegativeAmount
	}

	daysDiff := WholeDaysBetween(dueDate, asOf)
	if daysDiff <= e.policy.GraceDays {
		return PenaltyResult{Penalty: decimal.Zero}, nil
	}

	daysOverdue := daysDiff - e.policy.GraceDays
	penalty := totalAmount.
		Mul(e.policy.DailyPenaltyRate).
		Mul(decimal.NewFromInt(int64(daysOverdue))).
		Round(0)

	return PenaltyResult{Penalty: penalty, DaysOverdue: daysOverdue}, nil
}
