/*
handlers.go - HTTP API handlers for the cooperative lending service

PURPOSE:
  Exposes the savings and loan workflow via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the
  cooperative.Service and the lending engine.

ENDPOINTS:
  Policy:
    GET    /api/policy                          Active lending policy

  Members:
    GET    /api/members                         List members
    POST   /api/members                         Register member
    GET    /api/members/{id}                    Member details
    GET    /api/members/{id}/standing           Tier, credit limit, active loan
    POST   /api/members/{id}/contributions      Record a verified payment
    GET    /api/members/{id}/contributions      Savings ledger
    POST   /api/members/{id}/loans              Apply for a loan
    GET    /api/members/{id}/loans              Loan history

  Loans:
    GET    /api/loans/{id}                      Loan details
    GET    /api/loans/{id}/schedule             Installments with penalty state
    POST   /api/loans/{id}/installments/{n}/pay Record a repayment

  Calculators (no stored state):
    POST   /api/quotes                          Cost + schedule preview
    POST   /api/eligibility                     Eligibility for given figures
    POST   /api/penalties/calculate             Penalty for one due date

  Admin:
    POST   /api/penalties/assess                Run a penalty assessment now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Member, loan or installment not found
  - 409: Conflict (duplicate reference, already paid, loan closed)
  - 422: Loan application declined (body carries the reason)
  - 429: Rate limit exceeded on a write endpoint
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Payment notifications must be verified upstream.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/farmlink/cooperative/cooperative"
	"github.com/farmlink/cooperative/factory"
	"github.com/farmlink/cooperative/lending"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service       *cooperative.Service
	Engine        *lending.Engine
	PolicyFactory *factory.PolicyFactory
	Logger        *slog.Logger
	Limiter       *RateLimiter // optional, guards POST routes
}

// NewHandler creates a new handler over the service.
func NewHandler(svc *cooperative.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Service:       svc,
		Engine:        svc.Engine,
		PolicyFactory: factory.NewPolicyFactory(),
		Logger:        logger,
	}
}

// =============================================================================
// POLICY
// =============================================================================

// GetPolicy returns the active lending policy.
// GET /api/policy
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToJSON(h.Engine.Policy()))
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns all members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Service.ListMembers(r.Context())
	if err != nil {
		h.handleError(w, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember registers a new member.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	member, err := h.Service.RegisterMember(r.Context(), cooperative.Member{
		ID:    cooperative.MemberID(req.ID),
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		h.handleError(w, "Failed to register member", err)
		return
	}

	writeJSON(w, http.StatusCreated, toMemberDTO(member))
}

// GetMember returns a single member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.Service.GetMember(r.Context(), memberIDParam(r))
	if err != nil {
		h.handleError(w, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*member))
}

// GetStanding returns the member's tier and borrowing capacity.
func (h *Handler) GetStanding(w http.ResponseWriter, r *http.Request) {
	standing, err := h.Service.Standing(r.Context(), memberIDParam(r))
	if err != nil {
		h.handleError(w, "Failed to get standing", err)
		return
	}

	dto := StandingDTO{
		MemberID:      string(standing.MemberID),
		Total:         money(standing.Total),
		Tier:          string(standing.Tier),
		MaxLoanAmount: money(standing.MaxLoanAmount),
		CanBorrow:     standing.CanBorrow,
	}
	if standing.ActiveLoan != nil {
		loan := toLoanDTO(*standing.ActiveLoan)
		dto.ActiveLoan = &loan
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// CONTRIBUTION HANDLERS
// =============================================================================

// RecordContribution appends a verified payment to the member's savings.
// A replayed reference returns 200 with duplicate=true instead of 201.
func (h *Handler) RecordContribution(w http.ResponseWriter, r *http.Request) {
	var req RecordContributionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	paidAt, err := parseOptionalTime(req.PaidAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid paid_at", err)
		return
	}

	receipt, err := h.Service.RecordContribution(r.Context(), cooperative.VerifiedPayment{
		MemberID:  memberIDParam(r),
		Amount:    req.Amount,
		Reference: req.Reference,
		Channel:   req.Channel,
		PaidAt:    paidAt,
	})
	if err != nil {
		h.handleError(w, "Failed to record contribution", err)
		return
	}

	status := http.StatusCreated
	if receipt.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, ContributionReceiptDTO{
		Contribution: toContributionDTO(receipt.Contribution),
		Total:        money(receipt.Total),
		Tier:         string(receipt.Tier),
		PreviousTier: string(receipt.PreviousTier),
		Upgraded:     receipt.Upgraded,
		Duplicate:    receipt.Duplicate,
	})
}

// ListContributions returns the member's savings ledger.
func (h *Handler) ListContributions(w http.ResponseWriter, r *http.Request) {
	contributions, err := h.Service.Contributions(r.Context(), memberIDParam(r))
	if err != nil {
		h.handleError(w, "Failed to list contributions", err)
		return
	}

	dtos := make([]ContributionDTO, len(contributions))
	for i, c := range contributions {
		dtos[i] = toContributionDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ApplyForLoan evaluates and, when eligible, grants a loan.
func (h *Handler) ApplyForLoan(w http.ResponseWriter, r *http.Request) {
	var req ApplyLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := parseOptionalTime(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}

	decision, err := h.Service.ApplyForLoan(r.Context(), cooperative.LoanApplication{
		MemberID:               memberIDParam(r),
		Amount:                 req.Amount,
		DurationMonths:         req.DurationMonths,
		StartDate:              start,
		MonthlyInterestPercent: req.MonthlyInterestPercent,
	})
	if err != nil {
		h.handleError(w, "Failed to apply for loan", err)
		return
	}

	if !decision.Eligibility.Eligible {
		writeJSON(w, http.StatusUnprocessableEntity, toDecisionDTO(decision))
		return
	}
	writeJSON(w, http.StatusCreated, toDecisionDTO(decision))
}

// ListMemberLoans returns the member's loans, newest first.
func (h *Handler) ListMemberLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Service.LoansForMember(r.Context(), memberIDParam(r))
	if err != nil {
		h.handleError(w, "Failed to list loans", err)
		return
	}

	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = toLoanDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLoan returns a single loan.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.Service.GetLoan(r.Context(), loanIDParam(r))
	if err != nil {
		h.handleError(w, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(*loan))
}

// GetSchedule returns a loan's installments.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	installments, err := h.Service.Schedule(r.Context(), loanIDParam(r))
	if err != nil {
		h.handleError(w, "Failed to get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTOs(installments))
}

// PayInstallment records a repayment of one installment.
func (h *Handler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number < 1 {
		writeError(w, http.StatusBadRequest, "Invalid installment number", err)
		return
	}

	var req RepaymentRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	paidAt, err := parseOptionalTime(req.PaidAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid paid_at", err)
		return
	}

	loan, err := h.Service.RecordRepayment(r.Context(), loanIDParam(r), number, paidAt)
	if err != nil {
		h.handleError(w, "Failed to record repayment", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(*loan))
}

// =============================================================================
// CALCULATORS
// =============================================================================

// QuoteLoan previews a loan's cost and schedule.
// POST /api/quotes
func (h *Handler) QuoteLoan(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var tier lending.Tier
	if req.Tier != "" {
		t, ok := lending.ParseTier(req.Tier)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid tier", fmt.Errorf("unknown tier %q", req.Tier))
			return
		}
		tier = t
	}
	start, err := parseOptionalTime(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}

	quote, err := h.Service.QuoteLoan(r.Context(), cooperative.QuoteRequest{
		Principal:              req.Principal,
		DurationMonths:         req.DurationMonths,
		Tier:                   tier,
		MonthlyInterestPercent: req.MonthlyInterestPercent,
		StartDate:              start,
	})
	if err != nil {
		h.handleError(w, "Failed to quote loan", err)
		return
	}

	writeJSON(w, http.StatusOK, QuoteDTO{
		Tier:                   string(quote.Tier),
		MonthlyInterestPercent: quote.MonthlyInterestPercent.String(),
		StartDate:              quote.StartDate.Format(dateLayout),
		Principal:              money(quote.Cost.Principal),
		DurationMonths:         quote.Cost.DurationMonths,
		TotalInterest:          money(quote.Cost.TotalInterest),
		TotalRepayment:         money(quote.Cost.TotalRepayment),
		MonthlyPayment:         money(quote.Cost.MonthlyPayment),
		Schedule:               toScheduleDTOs(quote.Schedule),
	})
}

// CheckEligibility evaluates figures supplied by the caller.
// POST /api/eligibility
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	var req EligibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	eligibility, err := h.Engine.CheckLoanEligibility(req.ContributionTotal, req.RequestedAmount, req.HasActiveLoan)
	if err != nil {
		h.handleError(w, "Failed to check eligibility", err)
		return
	}
	tier, err := h.Engine.ClassifyTier(req.ContributionTotal)
	if err != nil {
		h.handleError(w, "Failed to classify tier", err)
		return
	}
	limit, err := h.Engine.MaxLoanAmount(req.ContributionTotal)
	if err != nil {
		h.handleError(w, "Failed to compute limit", err)
		return
	}

	writeJSON(w, http.StatusOK, EligibilityDTO{
		Eligible:      eligibility.Eligible,
		Reason:        string(eligibility.Reason),
		Message:       eligibility.Reason.Message(),
		Tier:          string(tier),
		MaxLoanAmount: money(limit),
	})
}

// CalculatePenalty computes the penalty for one outstanding amount.
// POST /api/penalties/calculate
func (h *Handler) CalculatePenalty(w http.ResponseWriter, r *http.Request) {
	var req PenaltyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	dueDate, err := parseTime(req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid due_date", err)
		return
	}
	asOf, err := parseOptionalTime(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return
	}
	if asOf.IsZero() {
		asOf = h.Engine.Now().UTC()
	}

	result, err := h.Engine.CalculatePenaltyAt(asOf, dueDate, req.Amount)
	if err != nil {
		h.handleError(w, "Failed to calculate penalty", err)
		return
	}

	writeJSON(w, http.StatusOK, PenaltyDTO{
		Amount:      money(req.Amount),
		DueDate:     dueDate.Format(dateLayout),
		AsOf:        asOf,
		DaysOverdue: result.DaysOverdue,
		Penalty:     money(result.Penalty),
	})
}

// AssessPenalties runs a penalty assessment over all active loans.
// POST /api/penalties/assess
func (h *Handler) AssessPenalties(w http.ResponseWriter, r *http.Request) {
	assessments, err := h.Service.AssessPenalties(r.Context())
	if err != nil {
		h.handleError(w, "Failed to assess penalties", err)
		return
	}

	dtos := make([]PenaltyAssessmentDTO, len(assessments))
	for i, a := range assessments {
		dtos[i] = toAssessmentDTO(a)
	}
	writeJSON(w, http.StatusOK, AssessPenaltiesResponse{Count: len(dtos), Assessments: dtos})
}

// =============================================================================
// HELPERS
// =============================================================================

func memberIDParam(r *http.Request) cooperative.MemberID {
	return cooperative.MemberID(chi.URLParam(r, "id"))
}

func loanIDParam(r *http.Request) cooperative.LoanID {
	return cooperative.LoanID(chi.URLParam(r, "id"))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseTime accepts a calendar date (UTC midnight) or an RFC 3339 instant.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("value is required")
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", s)
	}
	return t.UTC(), nil
}

func parseOptionalTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return parseTime(s)
}

// handleError maps domain errors to HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, message string, err error) {
	switch {
	case cooperative.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case cooperative.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case cooperative.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.Error(message, "error", err)
		writeError(w, http.StatusInternalServerError, message, nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
