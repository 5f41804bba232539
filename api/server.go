/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Timeout:    Per-request deadline
  6. CORS:       Cross-origin requests for the member portal

  POST routes that change state are additionally rate limited per client
  when Handler.Limiter is set (see ratelimit.go).

ROUTE GROUPS:
  /api/policy           Lending policy
  /api/members/*        Members, savings, loan applications
  /api/loans/*          Loans, schedules, repayments
  /api/quotes           Loan cost preview
  /api/eligibility      Stateless eligibility check
  /api/penalties/*      Penalty calculator and assessment
  /api/scenarios/*      Demo data
  /healthz              Liveness probe

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
// An empty allowedOrigins list disables cross-origin access.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	// cors treats an empty origin list as "*", so skip it entirely.
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limit := h.writeLimit()

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/policy", h.GetPolicy)

		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.With(limit).Post("/", h.CreateMember)
			r.Get("/{id}", h.GetMember)
			r.Get("/{id}/standing", h.GetStanding)
			r.Get("/{id}/contributions", h.ListContributions)
			r.With(limit).Post("/{id}/contributions", h.RecordContribution)
			r.Get("/{id}/loans", h.ListMemberLoans)
			r.With(limit).Post("/{id}/loans", h.ApplyForLoan)
		})

		// Loan routes
		r.Route("/loans", func(r chi.Router) {
			r.Get("/{id}", h.GetLoan)
			r.Get("/{id}/schedule", h.GetSchedule)
			r.With(limit).Post("/{id}/installments/{number}/pay", h.PayInstallment)
		})

		// Calculators
		r.Post("/quotes", h.QuoteLoan)
		r.Post("/eligibility", h.CheckEligibility)

		// Penalty routes
		r.Route("/penalties", func(r chi.Router) {
			r.Post("/calculate", h.CalculatePenalty)
			r.Post("/assess", h.AssessPenalties)
		})

		// Demo scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.With(limit).Post("/load", h.LoadScenario)
		})
	})

	return r
}

func (h *Handler) writeLimit() func(http.Handler) http.Handler {
	if h.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.Limiter.Middleware
}
