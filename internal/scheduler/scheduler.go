// Package scheduler manages the background goroutines of the issuance
// ledger:
//  1. verificationSweepLoop – expires stale KYC requests.
//  2. replaySweepLoop       – re-runs the bounded withheld-issuance replay
//     for investors whose verification released only part of the backlog.
//  3. valuationRefreshLoop  – keeps the valuation-mark cache warm.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/service"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sweep intervals
// ──────────────────────────────────────────────────────────────────────────────

const (
	verificationSweepInterval = 5 * time.Minute
	replaySweepInterval       = time.Minute
	valuationRefreshInterval  = 30 * time.Second
)

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler wires together the services and runs the maintenance
// goroutines. Call Start(ctx) once from main(); cancel the context to shut
// it down gracefully.
type Scheduler struct {
	verificationSvc *service.VerificationService
	valuationSvc    *service.ValuationService
	cfg             *config.Config
	logger          *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	verificationSvc *service.VerificationService,
	valuationSvc *service.ValuationService,
	cfg *config.Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		verificationSvc: verificationSvc,
		valuationSvc:    valuationSvc,
		cfg:             cfg,
		logger:          logger,
	}
}

// Start launches the background goroutines. It returns immediately; all
// loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.verificationSweepLoop(ctx)
	go s.replaySweepLoop(ctx)
	go s.valuationRefreshLoop(ctx)
	s.logger.Info("scheduler started")
}

// ──────────────────────────────────────────────────────────────────────────────
// verificationSweepLoop
// ──────────────────────────────────────────────────────────────────────────────

// verificationSweepLoop expires pending KYC requests past their TTL so a
// late provider callback cannot resolve a request the investor has long
// abandoned.
func (s *Scheduler) verificationSweepLoop(ctx context.Context) {
	defer s.recoverAndLog("verificationSweepLoop")

	ticker := time.NewTicker(verificationSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("verificationSweepLoop: shutting down")
			return
		case <-ticker.C:
			if _, err := s.verificationSvc.ExpireStaleRequests(ctx); err != nil {
				s.logger.Error("verificationSweepLoop: ExpireStaleRequests", "err", err)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// replaySweepLoop
// ──────────────────────────────────────────────────────────────────────────────

// replaySweepLoop releases withheld issuances that exceeded the per-event
// replay cap when their investor was verified.
func (s *Scheduler) replaySweepLoop(ctx context.Context) {
	defer s.recoverAndLog("replaySweepLoop")

	ticker := time.NewTicker(replaySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("replaySweepLoop: shutting down")
			return
		case <-ticker.C:
			if _, err := s.verificationSvc.ReplayVerifiedBacklog(ctx); err != nil {
				s.logger.Error("replaySweepLoop: ReplayVerifiedBacklog", "err", err)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// valuationRefreshLoop
// ──────────────────────────────────────────────────────────────────────────────

// valuationRefreshLoop re-fetches the cached valuation marks so reporting
// paths mostly hit a warm cache and staleness is detected promptly.
func (s *Scheduler) valuationRefreshLoop(ctx context.Context) {
	defer s.recoverAndLog("valuationRefreshLoop")

	ticker := time.NewTicker(valuationRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("valuationRefreshLoop: shutting down")
			return
		case <-ticker.C:
			if err := s.valuationSvc.Refresh(ctx); err != nil {
				s.logger.Warn("valuationRefreshLoop: refresh failed", "err", err)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each goroutine to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
