package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// VerificationBroadcaster is the minimal interface VerificationService needs
// from the WS hub.
type VerificationBroadcaster interface {
	BroadcastVerification(event *domain.VerificationEvent)
}

// VerificationService handles the asynchronous KYC round-trip: opening a
// request towards the external provider and consuming its callback. The
// callback path is idempotent so at-least-once delivery is safe, and each
// resolution releases at most a configured number of withheld issuances.
type VerificationService struct {
	db               *sqlx.DB
	verificationRepo *repository.VerificationRepository
	investorRepo     *repository.InvestorRepository
	ledgerRepo       *repository.LedgerRepository
	offeringRepo     *repository.OfferingRepository
	cfg              *config.Config
	broadcaster      VerificationBroadcaster
}

// NewVerificationService creates a VerificationService.
func NewVerificationService(
	db *sqlx.DB,
	verificationRepo *repository.VerificationRepository,
	investorRepo *repository.InvestorRepository,
	ledgerRepo *repository.LedgerRepository,
	offeringRepo *repository.OfferingRepository,
	cfg *config.Config,
) *VerificationService {
	return &VerificationService{
		db:               db,
		verificationRepo: verificationRepo,
		investorRepo:     investorRepo,
		ledgerRepo:       ledgerRepo,
		offeringRepo:     offeringRepo,
		cfg:              cfg,
	}
}

// SetBroadcaster injects the WS Hub dependency post-construction.
func (s *VerificationService) SetBroadcaster(b VerificationBroadcaster) { s.broadcaster = b }

// ──────────────────────────────────────────────────────────────────────────────
// RequestVerification
// ──────────────────────────────────────────────────────────────────────────────

// RequestVerification opens a pending KYC request for the investor. Refresh
// re-verifies an already-verified investor; without it a second request for
// a verified investor is a conflict. One unexpired pending request per
// investor is enforced to avoid duplicate provider round-trips.
func (s *VerificationService) RequestVerification(ctx context.Context, investorID uuid.UUID, provider string, refresh bool) (*domain.VerificationRequest, error) {
	investor, err := s.investorRepo.GetByID(ctx, investorID)
	if err != nil {
		return nil, fmt.Errorf("verification_service.RequestVerification: get investor: %w", err)
	}
	if investor.Verified && !refresh {
		return nil, domain.ErrAlreadyVerified
	}

	now := time.Now().UTC()
	pending, err := s.verificationRepo.HasPending(ctx, investorID, now)
	if err != nil {
		return nil, fmt.Errorf("verification_service.RequestVerification: check pending: %w", err)
	}
	if pending {
		return nil, domain.ErrAlreadyVerified
	}

	req := &domain.VerificationRequest{
		ID:         uuid.New(),
		InvestorID: investorID,
		Provider:   provider,
		Refresh:    refresh,
		Status:     domain.VerificationPending,
		ExpiresAt:  now.Add(s.cfg.Compliance.VerificationRequestTTL),
		CreatedAt:  now,
	}
	if err := s.verificationRepo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("verification_service.RequestVerification: create: %w", err)
	}
	slog.Info("verification requested",
		"request_id", req.ID, "investor_id", investorID, "provider", provider, "refresh", refresh)
	return req, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ResolveVerification — the provider callback
// ──────────────────────────────────────────────────────────────────────────────

// ResolveVerification consumes the external provider's callback. The request
// flip is a compare-and-set on the pending status, so a duplicate callback
// is a no-op that reports success without touching state again.
//
// On the winning call it marks the investor verified, then replays up to the
// configured number of withheld issuances inside the same transaction; any
// excess stays pending for a follow-up pass. Released units are re-gated:
// an issuance whose offering qualification still fails stays withheld.
func (s *VerificationService) ResolveVerification(ctx context.Context, requestID uuid.UUID, accredited bool) (released int, err error) {
	req, err := s.verificationRepo.GetByID(ctx, requestID)
	if err != nil {
		return 0, fmt.Errorf("verification_service.ResolveVerification: get request: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("verification_service.ResolveVerification: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	won, err := s.verificationRepo.Resolve(ctx, tx, requestID, accredited, now)
	if err != nil {
		return 0, fmt.Errorf("verification_service.ResolveVerification: resolve: %w", err)
	}
	if !won {
		// Duplicate delivery or an expired request. Duplicates are a safe
		// no-op; an expired request is surfaced so the provider can re-run.
		// The status read before the tx is stale when a concurrent duplicate
		// won the CAS in between, so re-fetch before deciding.
		_ = tx.Rollback()
		req, err = s.verificationRepo.GetByID(ctx, requestID)
		if err != nil {
			return 0, fmt.Errorf("verification_service.ResolveVerification: re-fetch: %w", err)
		}
		if req.Status == domain.VerificationResolved {
			return 0, nil
		}
		return 0, domain.ErrVerificationRequestNotFound
	}

	if err = s.investorRepo.SetVerification(ctx, tx, req.InvestorID, accredited); err != nil {
		return 0, fmt.Errorf("verification_service.ResolveVerification: set verification: %w", err)
	}

	released, err = s.replayWithheld(ctx, tx, req.InvestorID, now)
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("verification_service.ResolveVerification: commit: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastVerification(&domain.VerificationEvent{
			RequestID:         requestID,
			InvestorID:        req.InvestorID,
			Accredited:        accredited,
			ReleasedIssuances: released,
		})
	}
	slog.Info("verification resolved",
		"request_id", requestID, "investor_id", req.InvestorID,
		"accredited", accredited, "released", released)
	return released, nil
}

// replayWithheld releases withheld issuances for a freshly verified
// investor, bounded by the configured replay cap. Each released issuance is
// re-gated against its offering before the balance credit.
func (s *VerificationService) replayWithheld(ctx context.Context, tx *sqlx.Tx, investorID uuid.UUID, now time.Time) (int, error) {
	withheld, err := s.ledgerRepo.GetWithheldIssuances(ctx, tx, investorID, s.cfg.Compliance.MaxPendingIssuanceReplay)
	if err != nil {
		return 0, fmt.Errorf("verification_service.replayWithheld: list: %w", err)
	}
	if len(withheld) == 0 {
		return 0, nil
	}

	// Re-gate with the investor's full compliance profile as committed in
	// this transaction. The row carries QIB and sanction flags the callback
	// payload does not; a synthesized stand-in would drop them.
	investor, err := s.investorRepo.GetByIDForUpdate(ctx, tx, investorID)
	if err != nil {
		return 0, fmt.Errorf("verification_service.replayWithheld: get investor: %w", err)
	}

	released := 0
	for _, iss := range withheld {
		offering, err := s.offeringRepo.GetByAssetIDForUpdate(ctx, tx, iss.AssetID)
		if err != nil {
			return 0, fmt.Errorf("verification_service.replayWithheld: get offering: %w", err)
		}
		// The raise cap was committed at issue time; only qualification is
		// re-checked here.
		if decision := domain.EvaluateTransfer(nil, investor, iss.Amount, offering, nil, now); !decision.Allowed {
			slog.Warn("withheld issuance not released",
				"issuance_id", iss.ID, "investor_id", investorID, "reason", decision.Reason)
			continue
		}

		if err := s.ledgerRepo.MarkIssuanceVerified(ctx, tx, iss.ID); err != nil {
			return 0, fmt.Errorf("verification_service.replayWithheld: mark verified: %w", err)
		}
		before, after, err := s.ledgerRepo.CreditBalance(ctx, tx, investorID, iss.AssetID, iss.Amount)
		if err != nil {
			return 0, fmt.Errorf("verification_service.replayWithheld: credit: %w", err)
		}
		issIDCopy := iss.ID
		entry := &domain.LedgerEntry{
			ID:            uuid.New(),
			InvestorID:    investorID,
			AssetID:       iss.AssetID,
			Type:          domain.EntryReleaseIssue,
			Amount:        iss.Amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			RefID:         &issIDCopy,
			Description:   fmt.Sprintf("Released withheld issuance, doc %s", iss.DocRef),
			CreatedAt:     now,
		}
		if err := s.ledgerRepo.LogEntry(ctx, tx, entry); err != nil {
			return 0, fmt.Errorf("verification_service.replayWithheld: log entry: %w", err)
		}
		released++
	}
	return released, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Maintenance
// ──────────────────────────────────────────────────────────────────────────────

// ExpireStaleRequests sweeps pending requests past their TTL. Called
// periodically by the scheduler; a later provider callback for an expired
// request is rejected.
func (s *VerificationService) ExpireStaleRequests(ctx context.Context) (int64, error) {
	n, err := s.verificationRepo.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("verification_service.ExpireStaleRequests: %w", err)
	}
	if n > 0 {
		slog.Info("expired stale verification requests", "count", n)
	}
	return n, nil
}

// ReplayVerifiedBacklog releases withheld issuances left behind when a
// verification event hit the replay cap. Each investor's batch runs in its
// own transaction, bounded by the same cap as the callback path.
func (s *VerificationService) ReplayVerifiedBacklog(ctx context.Context) (int, error) {
	ids, err := s.ledgerRepo.ListInvestorsWithWithheld(ctx, 50)
	if err != nil {
		return 0, fmt.Errorf("verification_service.ReplayVerifiedBacklog: list: %w", err)
	}

	total := 0
	now := time.Now().UTC()
	for _, investorID := range ids {
		released, err := s.replayOne(ctx, investorID, now)
		if err != nil {
			return total, err
		}
		total += released
	}
	if total > 0 {
		slog.Info("replayed withheld issuance backlog", "released", total)
	}
	return total, nil
}

func (s *VerificationService) replayOne(ctx context.Context, investorID uuid.UUID, now time.Time) (released int, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("verification_service.replayOne: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	released, err = s.replayWithheld(ctx, tx, investorID, now)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("verification_service.replayOne: commit: %w", err)
	}
	return released, nil
}

// History returns the investor's verification requests, newest first.
func (s *VerificationService) History(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*domain.VerificationRequest, error) {
	list, err := s.verificationRepo.ListByInvestor(ctx, investorID, clampLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("verification_service.History: %w", err)
	}
	return list, nil
}
