// Package service contains the business logic of the issuance ledger. Every
// state-changing operation runs inside a single PostgreSQL transaction;
// broadcasts and external forwarding happen only after a successful commit.
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
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into LedgerService to avoid import cycles
// ──────────────────────────────────────────────────────────────────────────────

// LedgerBroadcaster is the minimal interface LedgerService needs from the WS
// hub. Implemented by ws.Hub.
type LedgerBroadcaster interface {
	BroadcastIssuance(event *domain.IssuanceEvent)
	BroadcastTransfer(event *domain.TransferEvent)
}

// ──────────────────────────────────────────────────────────────────────────────
// LedgerService
// ──────────────────────────────────────────────────────────────────────────────

// LedgerService orchestrates primary issuance, gated transfers, and forced
// transfers. Balance state is owned exclusively by the holdings table; all
// movement happens inside a single PostgreSQL transaction with an audit
// entry per affected holding.
type LedgerService struct {
	db           *sqlx.DB
	investorRepo *repository.InvestorRepository
	ledgerRepo   *repository.LedgerRepository
	offeringRepo *repository.OfferingRepository
	positionRepo *repository.PositionRepository
	cfg          *config.Config
	broadcaster  LedgerBroadcaster // injected after WS Hub is built
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(
	db *sqlx.DB,
	investorRepo *repository.InvestorRepository,
	ledgerRepo *repository.LedgerRepository,
	offeringRepo *repository.OfferingRepository,
	positionRepo *repository.PositionRepository,
	cfg *config.Config,
) *LedgerService {
	return &LedgerService{
		db:           db,
		investorRepo: investorRepo,
		ledgerRepo:   ledgerRepo,
		offeringRepo: offeringRepo,
		positionRepo: positionRepo,
		cfg:          cfg,
	}
}

// SetBroadcaster injects the WS Hub dependency post-construction.
func (s *LedgerService) SetBroadcaster(b LedgerBroadcaster) { s.broadcaster = b }

// ──────────────────────────────────────────────────────────────────────────────
// IssueTokens
// ──────────────────────────────────────────────────────────────────────────────

// IssueTokens mints units to an investor against an offering. Verified
// investors receive the units immediately; unverified investors get a
// withheld issuance that the KYC callback later releases. Sanctions and the
// raise cap are checked on both paths; accreditation and QIB qualification
// are re-checked at release time for withheld issuances.
//
// The offering row is locked FOR UPDATE so concurrent issues serialise on
// the raise cap.
func (s *LedgerService) IssueTokens(ctx context.Context, req domain.IssueRequest) (*domain.Issuance, error) {
	// ── 1. Input validation ──────────────────────────────────────────────────
	if req.InvestorID == uuid.Nil {
		return nil, domain.ErrZeroAddress
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrZeroAmount
	}
	if req.DocRef == "" {
		return nil, domain.ErrInvalidDoc
	}

	// ── 2. Begin transaction ─────────────────────────────────────────────────
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger_service.IssueTokens: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 3. Lock offering and check raise cap ─────────────────────────────────
	offering, err := s.offeringRepo.GetByAssetIDForUpdate(ctx, tx, req.AssetID)
	if err != nil {
		return nil, fmt.Errorf("ledger_service.IssueTokens: get offering: %w", err)
	}
	if offering.IsFinalized {
		err = domain.ErrOfferingFinalized
		return nil, err
	}

	// ── 4. Load investor ─────────────────────────────────────────────────────
	investor, err := s.investorRepo.GetByID(ctx, req.InvestorID)
	if err != nil {
		return nil, fmt.Errorf("ledger_service.IssueTokens: get investor: %w", err)
	}

	now := time.Now().UTC()

	// ── 5. Compliance ────────────────────────────────────────────────────────
	// Sanctions and the raise cap apply to every issuance; the full gate
	// (including accreditation / QIB qualification) only to verified
	// investors, since a withheld issuance is re-gated at release.
	if investor.Sanctioned {
		s.logDenial(ctx, investor.ID, req.AssetID, domain.ReasonSanctioned, "issuance denied")
		err = domain.ErrSanctioned
		return nil, err
	}
	if offering.WouldExceedCap(req.Amount) {
		s.logDenial(ctx, investor.ID, req.AssetID, domain.ReasonRaiseCapExceeded, "issuance denied")
		err = domain.ErrRaiseCapExceeded
		return nil, err
	}
	if investor.Verified {
		if decision := domain.EvaluateTransfer(nil, investor, req.Amount, offering, nil, now); !decision.Allowed {
			s.logDenial(ctx, investor.ID, req.AssetID, decision.Reason, "issuance denied")
			err = decision.Err()
			return nil, err
		}
	}

	// ── 6. Optional custodial account link ───────────────────────────────────
	if req.CustodialAccount != "" && !investor.HasCustodialAccount() {
		if err = s.investorRepo.LinkCustodialAccount(ctx, tx, investor.ID, req.CustodialAccount); err != nil {
			return nil, fmt.Errorf("ledger_service.IssueTokens: link account: %w", err)
		}
		pos := &domain.Position{
			ID:         uuid.New(),
			InvestorID: investor.ID,
			AssetID:    req.AssetID,
			AccountRef: req.CustodialAccount,
			Total:      decimal.Zero,
			Available:  decimal.Zero,
			Blocked:    decimal.Zero,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err = s.positionRepo.Create(ctx, tx, pos); err != nil {
			return nil, fmt.Errorf("ledger_service.IssueTokens: create position: %w", err)
		}
	}

	// ── 7. Persist the issuance record ───────────────────────────────────────
	lockup := req.LockupPeriod
	if lockup == 0 {
		lockup = offering.LockupPeriod
	}
	status := domain.IssuanceVerified
	if !investor.Verified {
		status = domain.IssuancePending
	}
	iss := &domain.Issuance{
		ID:         uuid.New(),
		InvestorID: investor.ID,
		AssetID:    req.AssetID,
		Amount:     req.Amount,
		DocRef:     req.DocRef,
		LockupEnd:  now.Add(lockup),
		Status:     status,
		IssuedAt:   now,
		CreatedAt:  now,
	}
	if err = s.ledgerRepo.CreateIssuance(ctx, tx, iss); err != nil {
		return nil, fmt.Errorf("ledger_service.IssueTokens: create issuance: %w", err)
	}

	// ── 8. Credit or withhold ────────────────────────────────────────────────
	issIDCopy := iss.ID
	if status == domain.IssuanceVerified {
		var before, after decimal.Decimal
		before, after, err = s.ledgerRepo.CreditBalance(ctx, tx, investor.ID, req.AssetID, req.Amount)
		if err != nil {
			return nil, fmt.Errorf("ledger_service.IssueTokens: credit: %w", err)
		}
		entry := &domain.LedgerEntry{
			ID:            uuid.New(),
			InvestorID:    investor.ID,
			AssetID:       req.AssetID,
			Type:          domain.EntryIssue,
			Amount:        req.Amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			RefID:         &issIDCopy,
			Description:   fmt.Sprintf("Issued against %s", req.DocRef),
			CreatedAt:     now,
		}
		if err = s.ledgerRepo.LogEntry(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("ledger_service.IssueTokens: log entry: %w", err)
		}
	} else {
		entry := &domain.LedgerEntry{
			ID:          uuid.New(),
			InvestorID:  investor.ID,
			AssetID:     req.AssetID,
			Type:        domain.EntryPendingIssue,
			Amount:      req.Amount,
			RefID:       &issIDCopy,
			Description: fmt.Sprintf("Withheld pending verification, doc %s", req.DocRef),
			CreatedAt:   now,
		}
		if err = s.ledgerRepo.LogEntry(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("ledger_service.IssueTokens: log entry: %w", err)
		}
	}

	// ── 9. Lockup and raise-cap totals ───────────────────────────────────────
	if lockup > 0 {
		if err = s.investorRepo.UpsertLock(ctx, tx, investor.ID, iss.LockupEnd, uuid.Nil); err != nil {
			return nil, fmt.Errorf("ledger_service.IssueTokens: upsert lock: %w", err)
		}
	}
	if err = s.offeringRepo.AddCommitted(ctx, tx, offering.ID, req.Amount, req.Amount); err != nil {
		return nil, fmt.Errorf("ledger_service.IssueTokens: add committed: %w", err)
	}

	// ── 10. Commit ───────────────────────────────────────────────────────────
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("ledger_service.IssueTokens: commit: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastIssuance(&domain.IssuanceEvent{
			IssuanceID: iss.ID,
			InvestorID: investor.ID,
			AssetID:    req.AssetID,
			Amount:     req.Amount,
			Withheld:   status == domain.IssuancePending,
		})
	}
	slog.Info("tokens issued",
		"issuance_id", iss.ID, "investor_id", investor.ID,
		"asset_id", req.AssetID, "amount", req.Amount, "status", status)
	return iss, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Transfer
// ──────────────────────────────────────────────────────────────────────────────

// Transfer moves units between investors after passing the compliance gate.
// Denials are audited and surfaced; they never mutate balances.
//
// The gate inputs are read under FOR UPDATE inside the same transaction as
// the balance move, so a sanction or lockup landing mid-flight either
// serialises before the evaluation or waits for the commit.
func (s *LedgerService) Transfer(ctx context.Context, req domain.TransferRequest) (err error) {
	if req.FromID == uuid.Nil || req.ToID == uuid.Nil {
		return domain.ErrZeroAddress
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrZeroAmount
	}

	offering, err := s.offeringRepo.GetByAssetID(ctx, req.AssetID)
	if err != nil {
		return fmt.Errorf("ledger_service.Transfer: get offering: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger_service.Transfer: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	from, err := s.investorRepo.GetByIDForUpdate(ctx, tx, req.FromID)
	if err != nil {
		return fmt.Errorf("ledger_service.Transfer: get sender: %w", err)
	}
	to, err := s.investorRepo.GetByIDForUpdate(ctx, tx, req.ToID)
	if err != nil {
		return fmt.Errorf("ledger_service.Transfer: get receiver: %w", err)
	}
	lock, err := s.investorRepo.GetLockForUpdate(ctx, tx, req.FromID)
	if err != nil {
		return fmt.Errorf("ledger_service.Transfer: get lock: %w", err)
	}

	now := time.Now().UTC()
	if decision := domain.EvaluateTransfer(from, to, req.Amount, offering, lock, now); !decision.Allowed {
		s.logDenial(ctx, from.ID, req.AssetID, decision.Reason,
			fmt.Sprintf("transfer to %s denied", to.ID))
		err = decision.Err()
		return err
	}

	if err = s.moveBalance(ctx, tx, from.ID, to.ID, req.AssetID, req.Amount,
		domain.EntryTransferOut, domain.EntryTransferIn, nil, "Transfer"); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ledger_service.Transfer: commit: %w", err)
	}

	s.broadcastTransfer(from.ID, to.ID, req.AssetID, req.Amount, false)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ForceTransfer
// ──────────────────────────────────────────────────────────────────────────────

// ForceTransfer is the privileged path for the compliance authority. It
// bypasses verification and offering qualification but never sanctions, and
// requires a non-empty justification that is recorded verbatim in the audit
// trail. Whether the sender's lockup still applies is a configured policy.
func (s *LedgerService) ForceTransfer(ctx context.Context, req domain.ForceTransferRequest) (err error) {
	if req.FromID == uuid.Nil || req.ToID == uuid.Nil {
		return domain.ErrZeroAddress
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrZeroAmount
	}
	if req.Justification == "" {
		return domain.ErrEmptyJustification
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger_service.ForceTransfer: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Same locking discipline as Transfer: the sanctions check must hold at
	// commit time, not just at read time.
	from, err := s.investorRepo.GetByIDForUpdate(ctx, tx, req.FromID)
	if err != nil {
		return fmt.Errorf("ledger_service.ForceTransfer: get sender: %w", err)
	}
	to, err := s.investorRepo.GetByIDForUpdate(ctx, tx, req.ToID)
	if err != nil {
		return fmt.Errorf("ledger_service.ForceTransfer: get receiver: %w", err)
	}
	lock, err := s.investorRepo.GetLockForUpdate(ctx, tx, req.FromID)
	if err != nil {
		return fmt.Errorf("ledger_service.ForceTransfer: get lock: %w", err)
	}

	now := time.Now().UTC()
	respectLockup := s.cfg.Compliance.ForceTransferRespectsLockup
	if decision := domain.EvaluateForcedTransfer(from, to, lock, respectLockup, now); !decision.Allowed {
		s.logDenial(ctx, from.ID, req.AssetID, decision.Reason,
			fmt.Sprintf("forced transfer denied: %s", req.Justification))
		err = decision.Err()
		return err
	}

	authorityID := req.AuthorityID
	if err = s.moveBalance(ctx, tx, from.ID, to.ID, req.AssetID, req.Amount,
		domain.EntryForceOut, domain.EntryForceIn, &authorityID,
		fmt.Sprintf("Forced transfer: %s", req.Justification)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ledger_service.ForceTransfer: commit: %w", err)
	}

	s.broadcastTransfer(from.ID, to.ID, req.AssetID, req.Amount, true)
	slog.Warn("forced transfer executed",
		"authority_id", req.AuthorityID, "from", req.FromID, "to", req.ToID,
		"asset_id", req.AssetID, "amount", req.Amount)
	return nil
}

// moveBalance debits the sender and credits the receiver inside the caller's
// transaction, writing one audit entry per affected holding. The caller owns
// commit and broadcast.
func (s *LedgerService) moveBalance(
	ctx context.Context,
	tx *sqlx.Tx,
	fromID, toID uuid.UUID,
	assetID string,
	amount decimal.Decimal,
	outType, inType domain.EntryType,
	actorID *uuid.UUID,
	description string,
) error {
	fromBefore, fromAfter, err := s.ledgerRepo.DebitBalance(ctx, tx, fromID, assetID, amount)
	if err != nil {
		return fmt.Errorf("ledger_service.moveBalance: debit: %w", err)
	}
	toBefore, toAfter, err := s.ledgerRepo.CreditBalance(ctx, tx, toID, assetID, amount)
	if err != nil {
		return fmt.Errorf("ledger_service.moveBalance: credit: %w", err)
	}

	now := time.Now().UTC()
	refID := uuid.New()
	outEntry := &domain.LedgerEntry{
		ID:            uuid.New(),
		InvestorID:    fromID,
		AssetID:       assetID,
		Type:          outType,
		Amount:        amount,
		BalanceBefore: fromBefore,
		BalanceAfter:  fromAfter,
		RefID:         &refID,
		ActorID:       actorID,
		Description:   description,
		CreatedAt:     now,
	}
	if err = s.ledgerRepo.LogEntry(ctx, tx, outEntry); err != nil {
		return fmt.Errorf("ledger_service.moveBalance: log out: %w", err)
	}
	inEntry := &domain.LedgerEntry{
		ID:            uuid.New(),
		InvestorID:    toID,
		AssetID:       assetID,
		Type:          inType,
		Amount:        amount,
		BalanceBefore: toBefore,
		BalanceAfter:  toAfter,
		RefID:         &refID,
		ActorID:       actorID,
		Description:   description,
		CreatedAt:     now,
	}
	if err = s.ledgerRepo.LogEntry(ctx, tx, inEntry); err != nil {
		return fmt.Errorf("ledger_service.moveBalance: log in: %w", err)
	}
	return nil
}

// broadcastTransfer emits the WS event after a successful commit.
func (s *LedgerService) broadcastTransfer(fromID, toID uuid.UUID, assetID string, amount decimal.Decimal, forced bool) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastTransfer(&domain.TransferEvent{
		FromID:  fromID,
		ToID:    toID,
		AssetID: assetID,
		Amount:  amount,
		Forced:  forced,
	})
}

// logDenial writes a zero-amount audit entry for a compliance denial. Runs
// outside any transaction: denials must survive the rollback of the call
// they denied.
func (s *LedgerService) logDenial(ctx context.Context, investorID uuid.UUID, assetID string, reason domain.ReasonCode, detail string) {
	entry := &domain.LedgerEntry{
		ID:          uuid.New(),
		InvestorID:  investorID,
		AssetID:     assetID,
		Type:        domain.EntryComplianceLog,
		Description: fmt.Sprintf("%s: %s", reason, detail),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.ledgerRepo.LogEntryDirect(ctx, entry); err != nil {
		slog.Error("failed to log compliance denial", "investor_id", investorID, "error", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Query helpers
// ──────────────────────────────────────────────────────────────────────────────

// GetHolding returns the balance for one (investor, asset) pair.
func (s *LedgerService) GetHolding(ctx context.Context, investorID uuid.UUID, assetID string) (*domain.Holding, error) {
	h, err := s.ledgerRepo.GetHolding(ctx, investorID, assetID)
	if err != nil {
		return nil, fmt.Errorf("ledger_service.GetHolding: %w", err)
	}
	return h, nil
}

// GetEntries returns the paginated audit trail for one investor.
func (s *LedgerService) GetEntries(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	entries, err := s.ledgerRepo.GetEntries(ctx, investorID, clampLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("ledger_service.GetEntries: %w", err)
	}
	return entries, nil
}

// GetIssuances returns paginated issuances for one investor.
func (s *LedgerService) GetIssuances(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*domain.Issuance, error) {
	list, err := s.ledgerRepo.GetIssuancesByInvestor(ctx, investorID, clampLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("ledger_service.GetIssuances: %w", err)
	}
	return list, nil
}

// TotalSupply returns the circulating supply of one asset.
func (s *LedgerService) TotalSupply(ctx context.Context, assetID string) (decimal.Decimal, error) {
	total, err := s.ledgerRepo.TotalSupply(ctx, assetID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger_service.TotalSupply: %w", err)
	}
	return total, nil
}
