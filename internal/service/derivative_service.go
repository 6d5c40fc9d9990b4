package service

import (
	"context"
	"encoding/json"
	"errors"
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

// MarkProvider is the minimal interface DerivativeService needs from the
// valuation feed. Implemented by ValuationService.
type MarkProvider interface {
	CurrentMark(ctx context.Context, assetID string) (Mark, error)
}

// DerivativeService implements the trade registry: UTI-keyed reports,
// append-only corrections and error notices, capped position reports, and
// all-or-nothing batch reporting. Every accepted report is forwarded
// asynchronously to the external trade repository after commit.
type DerivativeService struct {
	db             *sqlx.DB
	derivativeRepo *repository.DerivativeRepository
	marks          MarkProvider
	forwarder      TradeForwarder
	cfg            *config.Config
}

// NewDerivativeService creates a DerivativeService.
func NewDerivativeService(
	db *sqlx.DB,
	derivativeRepo *repository.DerivativeRepository,
	marks MarkProvider,
	forwarder TradeForwarder,
	cfg *config.Config,
) *DerivativeService {
	return &DerivativeService{
		db:             db,
		derivativeRepo: derivativeRepo,
		marks:          marks,
		forwarder:      forwarder,
		cfg:            cfg,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Report
// ──────────────────────────────────────────────────────────────────────────────

// Report registers a new trade under its UTI. Field validation happens
// before any write; a duplicate UTI is rejected by the unique index. On
// success an immutable copy is forwarded to the trade repository.
func (s *DerivativeService) Report(ctx context.Context, trade *domain.DerivativeTrade) (err error) {
	if err = trade.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	trade.ID = uuid.New()
	trade.Version = 1
	trade.ReportedAt = now
	trade.CreatedAt = now
	trade.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("derivative_service.Report: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.derivativeRepo.Insert(ctx, tx, trade); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("derivative_service.Report: commit: %w", err)
	}

	go s.forwardAsync("report", trade.UTI, func(fctx context.Context) error {
		return s.forwarder.ForwardReport(fctx, trade)
	})
	slog.Info("derivative reported", "uti", trade.UTI, "notional", trade.Notional, "currency", trade.Currency)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Correct
// ──────────────────────────────────────────────────────────────────────────────

// Correct supersedes the current view of an existing trade. The previous
// view is snapshotted into the append-only correction history before the
// replacement is written, all in one transaction.
func (s *DerivativeService) Correct(ctx context.Context, uti string, priorUTI *string, corrected *domain.DerivativeTrade, correctedBy uuid.UUID) (err error) {
	if err = corrected.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("derivative_service.Correct: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := s.derivativeRepo.GetByUTIForUpdate(ctx, tx, uti)
	if err != nil {
		return err
	}

	snapshot, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("derivative_service.Correct: snapshot: %w", err)
	}
	now := time.Now().UTC()
	correction := &domain.Correction{
		ID:          uuid.New(),
		UTI:         uti,
		PriorUTI:    priorUTI,
		Version:     current.Version,
		TradeJSON:   string(snapshot),
		CorrectedBy: correctedBy,
		CorrectedAt: now,
	}
	if err = s.derivativeRepo.InsertCorrection(ctx, tx, correction); err != nil {
		return err
	}

	corrected.ID = current.ID
	corrected.UTI = uti
	corrected.PriorUTI = priorUTI
	corrected.Version = current.Version + 1
	if err = s.derivativeRepo.UpdateCurrentView(ctx, tx, corrected); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("derivative_service.Correct: commit: %w", err)
	}

	go s.forwardAsync("correction", uti, func(fctx context.Context) error {
		return s.forwarder.ForwardCorrection(fctx, correction)
	})
	slog.Info("derivative corrected", "uti", uti, "version", corrected.Version)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ReportError
// ──────────────────────────────────────────────────────────────────────────────

// ReportError appends an error notice against an existing trade. The trade
// itself is never mutated.
func (s *DerivativeService) ReportError(ctx context.Context, uti, reason string, reportedBy uuid.UUID) error {
	if _, err := s.derivativeRepo.GetByUTI(ctx, uti); err != nil {
		return err
	}
	report := &domain.ErrorReport{
		ID:         uuid.New(),
		UTI:        uti,
		Reason:     reason,
		ReportedBy: reportedBy,
		ReportedAt: time.Now().UTC(),
	}
	if err := s.derivativeRepo.InsertErrorReport(ctx, report); err != nil {
		return err
	}

	go s.forwardAsync("error", uti, func(fctx context.Context) error {
		return s.forwarder.ForwardError(fctx, report)
	})
	slog.Info("derivative error reported", "uti", uti, "reason", reason)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ReportPosition
// ──────────────────────────────────────────────────────────────────────────────

// ReportPosition aggregates existing trades under one position reference.
// The underlying list is capped; entries beyond the cap reject the whole
// call, and every referenced UTI must already exist.
func (s *DerivativeService) ReportPosition(ctx context.Context, positionRef string, underlyingUTIs []string, valuation decimal.Decimal, reportedBy uuid.UUID) (err error) {
	if len(underlyingUTIs) > s.cfg.Compliance.MaxUnderlyingTrades {
		return domain.ErrTooManyUnderlyings
	}
	existing, err := s.derivativeRepo.CountExisting(ctx, underlyingUTIs)
	if err != nil {
		return err
	}
	if existing != len(underlyingUTIs) {
		return domain.ErrDerivativeNotFound
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("derivative_service.ReportPosition: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	pos := &domain.DerivativePosition{
		ID:             uuid.New(),
		PositionRef:    positionRef,
		UnderlyingUTIs: underlyingUTIs,
		Valuation:      valuation,
		ReportedBy:     reportedBy,
		ReportedAt:     time.Now().UTC(),
	}
	if err = s.derivativeRepo.InsertPosition(ctx, tx, pos); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("derivative_service.ReportPosition: commit: %w", err)
	}

	slog.Info("derivative position reported",
		"position_ref", positionRef, "underlyings", len(underlyingUTIs))
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// BatchReport
// ──────────────────────────────────────────────────────────────────────────────

// BatchReport registers multiple trades in one call. All-or-nothing: the
// parallel arrays are checked for length mismatch, then the size cap, then
// every entry is validated, all before the first write — and the writes
// share one transaction so a duplicate UTI anywhere rolls the whole batch
// back.
func (s *DerivativeService) BatchReport(ctx context.Context, trades []domain.DerivativeTrade, collaterals, valuations []decimal.Decimal, reportedBy uuid.UUID) (utis []string, err error) {
	if err = domain.ValidateBatch(trades, collaterals, valuations, s.cfg.Compliance.MaxBatchReport); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("derivative_service.BatchReport: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	utis = make([]string, 0, len(trades))
	inserted := make([]*domain.DerivativeTrade, 0, len(trades))
	for i := range trades {
		trade := trades[i]
		trade.ID = uuid.New()
		trade.Collateral = collaterals[i]
		trade.Valuation = valuations[i]
		trade.Version = 1
		trade.ReportedBy = reportedBy
		trade.ReportedAt = now
		trade.CreatedAt = now
		trade.UpdatedAt = now
		if err = s.derivativeRepo.Insert(ctx, tx, &trade); err != nil {
			return nil, err
		}
		utis = append(utis, trade.UTI)
		inserted = append(inserted, &trade)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("derivative_service.BatchReport: commit: %w", err)
	}

	for _, trade := range inserted {
		t := trade
		go s.forwardAsync("report", t.UTI, func(fctx context.Context) error {
			return s.forwarder.ForwardReport(fctx, t)
		})
	}
	slog.Info("derivative batch reported", "count", len(utis))
	return utis, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// RevalueTrade
// ──────────────────────────────────────────────────────────────────────────────

// RevalueTrade refreshes a trade's valuation from the external feed. The
// feed's last-updated timestamp is a hard precondition: a stale mark fails
// the call and the stored valuation is left untouched.
func (s *DerivativeService) RevalueTrade(ctx context.Context, uti string) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("derivative_service.RevalueTrade: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	trade, err := s.derivativeRepo.GetByUTIForUpdate(ctx, tx, uti)
	if err != nil {
		return err
	}

	feedKey := uti
	if trade.UPI != nil && *trade.UPI != "" {
		feedKey = *trade.UPI
	}
	mark, err := s.marks.CurrentMark(ctx, feedKey)
	if err != nil {
		if errors.Is(err, domain.ErrStaleValuation) {
			return domain.ErrStaleValuation
		}
		return fmt.Errorf("derivative_service.RevalueTrade: fetch mark: %w", err)
	}

	trade.Valuation = mark.Value
	if err = s.derivativeRepo.UpdateCurrentView(ctx, tx, trade); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("derivative_service.RevalueTrade: commit: %w", err)
	}

	slog.Info("derivative revalued", "uti", uti, "valuation", mark.Value, "as_of", mark.AsOf)
	return nil
}

// forwardAsync pushes one registry event to the trade repository with its
// own timeout. Failures are logged for out-of-band replay; the originating
// call already committed.
func (s *DerivativeService) forwardAsync(kind, uti string, fn func(ctx context.Context) error) {
	if s.forwarder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TradeRepo.Timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Error("trade repository forward failed", "kind", kind, "uti", uti, "error", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Query helpers
// ──────────────────────────────────────────────────────────────────────────────

// GetTrade returns the current view of one trade.
func (s *DerivativeService) GetTrade(ctx context.Context, uti string) (*domain.DerivativeTrade, error) {
	return s.derivativeRepo.GetByUTI(ctx, uti)
}

// GetHistory returns a trade's correction history, oldest first.
func (s *DerivativeService) GetHistory(ctx context.Context, uti string) ([]*domain.Correction, error) {
	if _, err := s.derivativeRepo.GetByUTI(ctx, uti); err != nil {
		return nil, err
	}
	return s.derivativeRepo.GetCorrections(ctx, uti)
}

// GetErrorReports returns a trade's error notices, newest first.
func (s *DerivativeService) GetErrorReports(ctx context.Context, uti string) ([]*domain.ErrorReport, error) {
	if _, err := s.derivativeRepo.GetByUTI(ctx, uti); err != nil {
		return nil, err
	}
	return s.derivativeRepo.GetErrorReports(ctx, uti)
}

// GetPosition returns one position report with its underlying UTIs.
func (s *DerivativeService) GetPosition(ctx context.Context, positionRef string) (*domain.DerivativePosition, error) {
	return s.derivativeRepo.GetPosition(ctx, positionRef)
}

// ListTrades returns paginated trades, newest first.
func (s *DerivativeService) ListTrades(ctx context.Context, limit, offset int) ([]*domain.DerivativeTrade, error) {
	return s.derivativeRepo.List(ctx, clampLimit(limit), offset)
}
