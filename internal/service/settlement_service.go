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

// SettlementBroadcaster is the minimal interface SettlementService needs
// from the WS hub.
type SettlementBroadcaster interface {
	BroadcastSettlement(event *domain.SettlementEvent)
}

// SettlementService drives the settlement lifecycle:
//
//	PENDING → INSTRUCTED → CONFIRMED → SETTLED
//
// with CANCELLED reachable before the value date and FAILED from
// INSTRUCTED/CONFIRMED. Every transition is a single transaction that moves
// the status with a compare-and-set and mutates custodial positions so the
// position invariant holds at commit.
type SettlementService struct {
	db             *sqlx.DB
	settlementRepo *repository.SettlementRepository
	positionRepo   *repository.PositionRepository
	investorRepo   *repository.InvestorRepository
	cfg            *config.Config
	broadcaster    SettlementBroadcaster
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(
	db *sqlx.DB,
	settlementRepo *repository.SettlementRepository,
	positionRepo *repository.PositionRepository,
	investorRepo *repository.InvestorRepository,
	cfg *config.Config,
) *SettlementService {
	return &SettlementService{
		db:             db,
		settlementRepo: settlementRepo,
		positionRepo:   positionRepo,
		investorRepo:   investorRepo,
		cfg:            cfg,
	}
}

// SetBroadcaster injects the WS Hub dependency post-construction.
func (s *SettlementService) SetBroadcaster(b SettlementBroadcaster) { s.broadcaster = b }

// ──────────────────────────────────────────────────────────────────────────────
// Initiate
// ──────────────────────────────────────────────────────────────────────────────

// Initiate creates a settlement in PENDING state. Both parties must exist
// and carry a linked custodial account; no position is touched yet.
func (s *SettlementService) Initiate(ctx context.Context, req domain.InitiateSettlementRequest) (*domain.Settlement, error) {
	if req.BuyerID == uuid.Nil || req.SellerID == uuid.Nil {
		return nil, domain.ErrZeroAddress
	}
	if req.Quantity.LessThanOrEqual(decimal.Zero) || req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrZeroAmount
	}
	now := time.Now().UTC()
	if req.ValueDate.Before(now) {
		return nil, domain.ErrInvalidDate
	}

	buyer, err := s.investorRepo.GetByID(ctx, req.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("settlement_service.Initiate: get buyer: %w", err)
	}
	seller, err := s.investorRepo.GetByID(ctx, req.SellerID)
	if err != nil {
		return nil, fmt.Errorf("settlement_service.Initiate: get seller: %w", err)
	}
	if !buyer.HasCustodialAccount() || !seller.HasCustodialAccount() {
		return nil, domain.ErrNoCustodialAccount
	}

	settlement := &domain.Settlement{
		ID:        uuid.New(),
		TradeRef:  req.TradeRef,
		AssetID:   req.AssetID,
		BuyerID:   req.BuyerID,
		SellerID:  req.SellerID,
		Quantity:  req.Quantity,
		Amount:    req.Amount,
		Status:    domain.SettlementPending,
		ValueDate: req.ValueDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.settlementRepo.Create(ctx, settlement); err != nil {
		return nil, fmt.Errorf("settlement_service.Initiate: create: %w", err)
	}

	slog.Info("settlement initiated",
		"settlement_id", settlement.ID, "trade_ref", req.TradeRef,
		"asset_id", req.AssetID, "quantity", req.Quantity, "value_date", req.ValueDate)
	s.broadcast(settlement)
	return settlement, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// GenerateInstructions — PENDING → INSTRUCTED
// ──────────────────────────────────────────────────────────────────────────────

// GenerateInstructions creates the DELIVERY and RECEIPT legs and blocks the
// seller's quantity, moving the settlement to INSTRUCTED. Atomic: if the
// seller's available quantity is short, nothing is written.
func (s *SettlementService) GenerateInstructions(ctx context.Context, settlementID uuid.UUID) (instructions []*domain.Instruction, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settlement_service.GenerateInstructions: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	settlement, err := s.settlementRepo.GetForUpdate(ctx, tx, settlementID)
	if err != nil {
		return nil, fmt.Errorf("settlement_service.GenerateInstructions: get: %w", err)
	}
	if !settlement.Status.CanTransitionTo(domain.SettlementInstructed) {
		err = domain.ErrInvalidSettlementStatus
		return nil, err
	}

	sellerPos, err := s.positionRepo.GetForUpdate(ctx, tx, settlement.SellerID, settlement.AssetID)
	if err != nil {
		return nil, fmt.Errorf("settlement_service.GenerateInstructions: seller position: %w", err)
	}
	if !sellerPos.CanBlock(settlement.Quantity) {
		err = domain.ErrInsufficientAvailable
		return nil, err
	}
	if err = s.positionRepo.Block(ctx, tx, settlement.SellerID, settlement.AssetID, settlement.Quantity); err != nil {
		return nil, fmt.Errorf("settlement_service.GenerateInstructions: block: %w", err)
	}

	buyer, err := s.investorRepo.GetByID(ctx, settlement.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("settlement_service.GenerateInstructions: get buyer: %w", err)
	}

	now := time.Now().UTC()
	delivery := &domain.Instruction{
		ID:           uuid.New(),
		SettlementID: settlement.ID,
		Type:         domain.InstructionDelivery,
		InvestorID:   settlement.SellerID,
		AccountRef:   sellerPos.AccountRef,
		Quantity:     settlement.Quantity,
		CreatedAt:    now,
	}
	receipt := &domain.Instruction{
		ID:           uuid.New(),
		SettlementID: settlement.ID,
		Type:         domain.InstructionReceipt,
		InvestorID:   settlement.BuyerID,
		AccountRef:   derefAccount(buyer.CustodialAccount),
		Quantity:     settlement.Quantity,
		CreatedAt:    now,
	}
	if err = s.settlementRepo.InsertInstruction(ctx, tx, delivery); err != nil {
		return nil, fmt.Errorf("settlement_service.GenerateInstructions: delivery leg: %w", err)
	}
	if err = s.settlementRepo.InsertInstruction(ctx, tx, receipt); err != nil {
		return nil, fmt.Errorf("settlement_service.GenerateInstructions: receipt leg: %w", err)
	}

	if err = s.settlementRepo.UpdateStatus(ctx, tx, settlement.ID,
		domain.SettlementPending, domain.SettlementInstructed); err != nil {
		return nil, fmt.Errorf("settlement_service.GenerateInstructions: transition: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("settlement_service.GenerateInstructions: commit: %w", err)
	}

	settlement.Status = domain.SettlementInstructed
	s.broadcast(settlement)
	return []*domain.Instruction{delivery, receipt}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Confirm — INSTRUCTED → CONFIRMED
// ──────────────────────────────────────────────────────────────────────────────

// Confirm records the counterpart confirmation. No position changes.
func (s *SettlementService) Confirm(ctx context.Context, settlementID uuid.UUID) error {
	return s.transition(ctx, settlementID, domain.SettlementInstructed, domain.SettlementConfirmed, nil)
}

// ──────────────────────────────────────────────────────────────────────────────
// Complete — CONFIRMED → SETTLED
// ──────────────────────────────────────────────────────────────────────────────

// Complete performs the final movement: the seller's blocked quantity leaves
// the position, the buyer's position is credited, and the settlement is
// stamped SETTLED, all in one transaction.
func (s *SettlementService) Complete(ctx context.Context, settlementID uuid.UUID) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settlement_service.Complete: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	settlement, err := s.settlementRepo.GetForUpdate(ctx, tx, settlementID)
	if err != nil {
		return fmt.Errorf("settlement_service.Complete: get: %w", err)
	}
	if settlement.Status != domain.SettlementConfirmed {
		err = domain.ErrInvalidSettlementStatus
		return err
	}

	if err = s.positionRepo.SettleDebit(ctx, tx, settlement.SellerID, settlement.AssetID, settlement.Quantity); err != nil {
		return fmt.Errorf("settlement_service.Complete: debit seller: %w", err)
	}
	buyer, err := s.investorRepo.GetByID(ctx, settlement.BuyerID)
	if err != nil {
		return fmt.Errorf("settlement_service.Complete: get buyer: %w", err)
	}
	if err = s.positionRepo.SettleCredit(ctx, tx, settlement.BuyerID, settlement.AssetID,
		derefAccount(buyer.CustodialAccount), settlement.Quantity); err != nil {
		return fmt.Errorf("settlement_service.Complete: credit buyer: %w", err)
	}

	now := time.Now().UTC()
	if err = s.settlementRepo.MarkSettled(ctx, tx, settlement.ID, now); err != nil {
		return fmt.Errorf("settlement_service.Complete: mark settled: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("settlement_service.Complete: commit: %w", err)
	}

	settlement.Status = domain.SettlementSettled
	settlement.SettledAt = &now
	slog.Info("settlement completed",
		"settlement_id", settlement.ID, "trade_ref", settlement.TradeRef, "quantity", settlement.Quantity)
	s.broadcast(settlement)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Cancel — PENDING/INSTRUCTED → CANCELLED (pre-value-date only)
// ──────────────────────────────────────────────────────────────────────────────

// Cancel aborts a settlement before its value date. If instructions were
// already generated the seller's blocked quantity is released in the same
// transaction.
func (s *SettlementService) Cancel(ctx context.Context, settlementID uuid.UUID) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settlement_service.Cancel: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	settlement, err := s.settlementRepo.GetForUpdate(ctx, tx, settlementID)
	if err != nil {
		return fmt.Errorf("settlement_service.Cancel: get: %w", err)
	}
	now := time.Now().UTC()
	if !settlement.CanCancelAt(now) {
		err = domain.ErrInvalidSettlementStatus
		return err
	}

	if settlement.Status == domain.SettlementInstructed {
		if err = s.positionRepo.Release(ctx, tx, settlement.SellerID, settlement.AssetID, settlement.Quantity); err != nil {
			return fmt.Errorf("settlement_service.Cancel: release: %w", err)
		}
	}
	if err = s.settlementRepo.UpdateStatus(ctx, tx, settlement.ID,
		settlement.Status, domain.SettlementCancelled); err != nil {
		return fmt.Errorf("settlement_service.Cancel: transition: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("settlement_service.Cancel: commit: %w", err)
	}

	settlement.Status = domain.SettlementCancelled
	slog.Info("settlement cancelled", "settlement_id", settlement.ID, "trade_ref", settlement.TradeRef)
	s.broadcast(settlement)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Fail — INSTRUCTED/CONFIRMED → FAILED
// ──────────────────────────────────────────────────────────────────────────────

// Fail records an external settlement-system rejection. The seller's blocked
// quantity is released so the position returns to its pre-instruction shape.
func (s *SettlementService) Fail(ctx context.Context, settlementID uuid.UUID, reason string) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settlement_service.Fail: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	settlement, err := s.settlementRepo.GetForUpdate(ctx, tx, settlementID)
	if err != nil {
		return fmt.Errorf("settlement_service.Fail: get: %w", err)
	}
	if !settlement.Status.CanTransitionTo(domain.SettlementFailed) {
		err = domain.ErrInvalidSettlementStatus
		return err
	}

	if err = s.positionRepo.Release(ctx, tx, settlement.SellerID, settlement.AssetID, settlement.Quantity); err != nil {
		return fmt.Errorf("settlement_service.Fail: release: %w", err)
	}
	if err = s.settlementRepo.MarkFailed(ctx, tx, settlement.ID, settlement.Status, reason); err != nil {
		return fmt.Errorf("settlement_service.Fail: mark failed: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("settlement_service.Fail: commit: %w", err)
	}

	settlement.Status = domain.SettlementFailed
	settlement.FailReason = &reason
	slog.Warn("settlement failed",
		"settlement_id", settlement.ID, "trade_ref", settlement.TradeRef, "reason", reason)
	s.broadcast(settlement)
	return nil
}

// transition performs a position-neutral status move in one transaction.
func (s *SettlementService) transition(ctx context.Context, settlementID uuid.UUID, expected, next domain.SettlementStatus, settledAt *time.Time) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settlement_service.transition: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	settlement, err := s.settlementRepo.GetForUpdate(ctx, tx, settlementID)
	if err != nil {
		return fmt.Errorf("settlement_service.transition: get: %w", err)
	}
	if settlement.Status != expected || !expected.CanTransitionTo(next) {
		err = domain.ErrInvalidSettlementStatus
		return err
	}
	if err = s.settlementRepo.UpdateStatus(ctx, tx, settlementID, expected, next); err != nil {
		return fmt.Errorf("settlement_service.transition: update: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("settlement_service.transition: commit: %w", err)
	}

	settlement.Status = next
	settlement.SettledAt = settledAt
	s.broadcast(settlement)
	return nil
}

func (s *SettlementService) broadcast(settlement *domain.Settlement) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastSettlement(&domain.SettlementEvent{
		SettlementID: settlement.ID,
		TradeRef:     settlement.TradeRef,
		AssetID:      settlement.AssetID,
		Status:       settlement.Status,
		FailReason:   settlement.FailReason,
	})
}

func derefAccount(ref *string) string {
	if ref == nil {
		return ""
	}
	return *ref
}

// ──────────────────────────────────────────────────────────────────────────────
// Query helpers
// ──────────────────────────────────────────────────────────────────────────────

// Get returns one settlement with its instruction legs.
func (s *SettlementService) Get(ctx context.Context, settlementID uuid.UUID) (*domain.Settlement, []*domain.Instruction, error) {
	settlement, err := s.settlementRepo.GetByID(ctx, settlementID)
	if err != nil {
		return nil, nil, fmt.Errorf("settlement_service.Get: %w", err)
	}
	instructions, err := s.settlementRepo.GetInstructions(ctx, settlementID)
	if err != nil {
		return nil, nil, fmt.Errorf("settlement_service.Get: instructions: %w", err)
	}
	return settlement, instructions, nil
}

// ListByInvestor returns settlements where the investor participates.
func (s *SettlementService) ListByInvestor(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*domain.Settlement, error) {
	list, err := s.settlementRepo.ListByInvestor(ctx, investorID, clampLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("settlement_service.ListByInvestor: %w", err)
	}
	return list, nil
}

// ListByStatus returns settlements in one lifecycle state.
func (s *SettlementService) ListByStatus(ctx context.Context, status domain.SettlementStatus, limit, offset int) ([]*domain.Settlement, error) {
	list, err := s.settlementRepo.ListByStatus(ctx, status, clampLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("settlement_service.ListByStatus: %w", err)
	}
	return list, nil
}
