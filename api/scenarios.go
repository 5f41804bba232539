/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	members, savings and loans. Each scenario goes through the Service, so
	the seeded data obeys the same rules as live traffic.

AVAILABLE SCENARIOS:

	new-member:   Savings below the borrowing minimum
	tier-upgrade: Basic member crossing into premium
	active-loan:  Basic member repaying a loan on time
	overdue-loan: Loan with missed installments and assessed penalties

HOW SCENARIOS WORK:
 1. Register a member with a fixed demo ID (demo-<scenario>)
 2. Record back-dated verified contributions
 3. Optionally apply for a back-dated loan and record repayments
 4. Optionally run a penalty assessment

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "overdue-loan"}

NOTE:

	Scenarios do not reset the store. Loading the same scenario twice
	returns 409 because the demo member already exists.

SEE ALSO:
  - handlers.go: Workflow handlers the scenarios mirror
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/farmlink/cooperative/cooperative"
	"github.com/farmlink/cooperative/lending"
)

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-member",
		Name:        "New Member",
		Description: "Two small contributions, still below the 10,000 borrowing minimum",
	},
	{
		ID:          "tier-upgrade",
		Name:        "Tier Upgrade",
		Description: "Monthly savings that move a member from basic to premium",
	},
	{
		ID:          "active-loan",
		Name:        "Active Loan",
		Description: "Basic member with a 6-month loan, first installments repaid",
	},
	{
		ID:          "overdue-loan",
		Name:        "Overdue Loan",
		Description: "Premium member who stopped repaying; penalties assessed",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	today := dateOnly(h.Engine.Now())

	var (
		memberID cooperative.MemberID
		err      error
	)
	switch req.ScenarioID {
	case "new-member":
		memberID, err = h.loadNewMemberScenario(ctx, today)
	case "tier-upgrade":
		memberID, err = h.loadTierUpgradeScenario(ctx, today)
	case "active-loan":
		memberID, err = h.loadActiveLoanScenario(ctx, today)
	case "overdue-loan":
		memberID, err = h.loadOverdueLoanScenario(ctx, today)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("unknown scenario %q", req.ScenarioID))
		return
	}

	if err != nil {
		h.handleError(w, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "loaded",
		"scenario":  req.ScenarioID,
		"member_id": string(memberID),
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewMemberScenario(ctx context.Context, today time.Time) (cooperative.MemberID, error) {
	id, err := h.registerDemoMember(ctx, "new-member", "Amina Okafor", today.AddDate(0, -2, 0))
	if err != nil {
		return "", err
	}
	// 7,500 saved: one more deposit before the first loan
	return id, h.contributeMonthly(ctx, id, "new-member", today.AddDate(0, -2, 0), 2, 3750)
}

func (h *Handler) loadTierUpgradeScenario(ctx context.Context, today time.Time) (cooperative.MemberID, error) {
	id, err := h.registerDemoMember(ctx, "tier-upgrade", "Kwame Mensah", today.AddDate(0, -5, 0))
	if err != nil {
		return "", err
	}
	// 5 x 4,000 = 20,000: premium on the last deposit
	return id, h.contributeMonthly(ctx, id, "tier-upgrade", today.AddDate(0, -5, 0), 5, 4000)
}

func (h *Handler) loadActiveLoanScenario(ctx context.Context, today time.Time) (cooperative.MemberID, error) {
	id, err := h.registerDemoMember(ctx, "active-loan", "Fatima Bello", today.AddDate(0, -8, 0))
	if err != nil {
		return "", err
	}
	if err := h.contributeMonthly(ctx, id, "active-loan", today.AddDate(0, -8, 0), 4, 3000); err != nil {
		return "", err
	}

	// 12,000 saved -> basic limit 24,000
	loan, err := h.demoLoan(ctx, id, 18000, 6, today.AddDate(0, -2, 0))
	if err != nil {
		return "", err
	}
	for n := 1; n <= 2; n++ {
		paidAt := lending.AddMonthsClamped(loan.StartDate, n).AddDate(0, 0, -1)
		if _, err := h.Service.RecordRepayment(ctx, loan.ID, n, paidAt); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (h *Handler) loadOverdueLoanScenario(ctx context.Context, today time.Time) (cooperative.MemberID, error) {
	id, err := h.registerDemoMember(ctx, "overdue-loan", "Chidi Eze", today.AddDate(-1, 0, 0))
	if err != nil {
		return "", err
	}
	if err := h.contributeMonthly(ctx, id, "overdue-loan", today.AddDate(-1, 0, 0), 6, 4000); err != nil {
		return "", err
	}

	// 24,000 saved -> premium limit 72,000. First installment paid, the rest missed.
	loan, err := h.demoLoan(ctx, id, 60000, 12, today.AddDate(0, -4, 0))
	if err != nil {
		return "", err
	}
	if _, err := h.Service.RecordRepayment(ctx, loan.ID, 1, lending.AddMonthsClamped(loan.StartDate, 1)); err != nil {
		return "", err
	}

	_, err = h.Service.AssessPenalties(ctx)
	return id, err
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) registerDemoMember(ctx context.Context, scenario, name string, joined time.Time) (cooperative.MemberID, error) {
	m, err := h.Service.RegisterMember(ctx, cooperative.Member{
		ID:       cooperative.MemberID("demo-" + scenario),
		Name:     name,
		JoinedAt: joined,
	})
	return m.ID, err
}

// contributeMonthly records count deposits of amount, one month apart.
func (h *Handler) contributeMonthly(ctx context.Context, id cooperative.MemberID, scenario string, first time.Time, count int, amount int64) error {
	for i := 0; i < count; i++ {
		_, err := h.Service.RecordContribution(ctx, cooperative.VerifiedPayment{
			MemberID:  id,
			Amount:    lending.NewAmount(amount),
			Reference: fmt.Sprintf("demo-%s-%02d", scenario, i+1),
			Channel:   "mobile_money",
			PaidAt:    lending.AddMonthsClamped(first, i),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) demoLoan(ctx context.Context, id cooperative.MemberID, amount int64, months int, start time.Time) (*cooperative.Loan, error) {
	decision, err := h.Service.ApplyForLoan(ctx, cooperative.LoanApplication{
		MemberID:       id,
		Amount:         lending.NewAmount(amount),
		DurationMonths: months,
		StartDate:      start,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Eligibility.Eligible {
		return nil, fmt.Errorf("demo loan declined: %s", decision.Eligibility.Reason)
	}
	return decision.Loan, nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
