package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// costScheduleStart is the start date used when only totals matter.
// Dates never affect amounts.
var costScheduleStart = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// CalculateLoanCost summarizes the total cost of a loan.
// TotalRepayment is always exactly Principal + TotalInterest.
func (e *Engine) CalculateLoanCost(principal, monthlyRatePercent decimal.Decimal, durationMonths int) (LoanCostSummary, error) {
	schedule, err := e.GenerateSchedule(principal, monthlyRatePercent, durationMonths, costScheduleStart)
	if err != nil {
		return LoanCostSummary{}, err
	}
	return Summarize(principal, schedule), nil
}

// Summarize aggregates an already generated schedule.
func Summarize(principal decimal.Decimal, schedule []Installment) LoanCostSummary {
	totalInterest := decimal.Zero
	for _, inst := range schedule {
		totalInterest = totalInterest.Add(inst.Interest)
	}
	totalRepayment := principal.Add(totalInterest)

	summary := LoanCostSummary{
		Principal:      principal,
		TotalInterest:  totalInterest,
		TotalRepayment: totalRepayment,
		DurationMonths: len(schedule),
	}
	if len(schedule) > 0 {
		summary.MonthlyPayment = totalRepayment.Div(decimal.NewFromInt(int64(len(schedule))))
	}
	return summary
}
