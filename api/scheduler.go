/*
scheduler.go - Automated penalty assessment scheduler

PURPOSE:
  Periodically assesses late-payment penalties on every unpaid installment
  of every active loan, so stored penalties track elapsed time without a
  manual trigger.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Each run is a single Service.AssessPenalties call; penalties are
    recomputed from the due date every time, so missed or repeated runs
    never double-charge

CONFIGURATION:
  - CheckInterval: How often to assess (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewPenaltyScheduler(svc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: AssessPenalties endpoint (manual run)
  - cooperative/service.go: AssessPenalties
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/farmlink/cooperative/cooperative"
)

// PenaltyScheduler handles automated penalty assessment.
type PenaltyScheduler struct {
	Service       *cooperative.Service
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// lastRun has its own lock: Stop holds mu while a run finishes.
	runMu   sync.Mutex
	lastRun time.Time
}

// NewPenaltyScheduler creates a new scheduler.
func NewPenaltyScheduler(svc *cooperative.Service, logger *slog.Logger) *PenaltyScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PenaltyScheduler{
		Service:       svc,
		Logger:        logger.With("component", "penalty_scheduler"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (ps *PenaltyScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled || ps.CheckInterval <= 0 {
		ps.Logger.Info("scheduler disabled, not starting")
		return
	}
	if ps.ticker != nil {
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.stop = make(chan struct{})
	ps.wg.Add(1)

	go ps.run(ps.ticker, ps.stop)

	ps.Logger.Info("scheduler started", "interval", ps.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (ps *PenaltyScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.ticker = nil
		ps.Logger.Info("scheduler stopped")
	}
}

func (ps *PenaltyScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ps.wg.Done()

	// Run immediately on start
	ps.RunNow()

	for {
		select {
		case <-ticker.C:
			ps.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow triggers an immediate assessment (for testing/admin).
func (ps *PenaltyScheduler) RunNow() []cooperative.PenaltyAssessment {
	ctx, cancel := context.WithTimeout(context.Background(), ps.runTimeout())
	defer cancel()

	assessments, err := ps.Service.AssessPenalties(ctx)
	if err != nil {
		ps.Logger.Error("penalty assessment failed", "error", err)
		return nil
	}

	ps.runMu.Lock()
	ps.lastRun = time.Now()
	ps.runMu.Unlock()
	return assessments
}

// LastRun returns when the last successful assessment finished.
func (ps *PenaltyScheduler) LastRun() time.Time {
	ps.runMu.Lock()
	defer ps.runMu.Unlock()
	return ps.lastRun
}

func (ps *PenaltyScheduler) runTimeout() time.Duration {
	if ps.CheckInterval > 0 && ps.CheckInterval < 5*time.Minute {
		return ps.CheckInterval
	}
	return 5 * time.Minute
}
