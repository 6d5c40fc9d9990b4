package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for a unique-constraint breach.
const uniqueViolation = "23505"

// DerivativeRepository handles database operations for the trade registry:
// trades keyed by UTI, append-only corrections and error reports, and
// position reports with their underlying links.
type DerivativeRepository struct {
	db *sqlx.DB
}

// NewDerivativeRepository creates a new DerivativeRepository.
func NewDerivativeRepository(db *sqlx.DB) *DerivativeRepository {
	return &DerivativeRepository{db: db}
}

// ── Trades ────────────────────────────────────────────────────────────────────

// Insert stores a new trade. The unique index on uti is the authoritative
// duplicate check; a violation maps to ErrDerivativeAlreadyReported.
func (r *DerivativeRepository) Insert(ctx context.Context, tx *sqlx.Tx, t *domain.DerivativeTrade) error {
	query := `
		INSERT INTO derivative_trades
			(id, uti, prior_uti, counterparty_a, counterparty_b, upi, notional, currency,
			 effective_date, expiration_date, collateral, valuation, version,
			 reported_by, reported_at, created_at, updated_at)
		VALUES
			(:id, :uti, :prior_uti, :counterparty_a, :counterparty_b, :upi, :notional, :currency,
			 :effective_date, :expiration_date, :collateral, :valuation, :version,
			 :reported_by, :reported_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, t); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrDerivativeAlreadyReported
		}
		return fmt.Errorf("derivative_repo.Insert: %w", err)
	}
	return nil
}

// GetByUTI fetches the current view of one trade.
func (r *DerivativeRepository) GetByUTI(ctx context.Context, uti string) (*domain.DerivativeTrade, error) {
	var t domain.DerivativeTrade
	err := r.db.GetContext(ctx, &t, `SELECT * FROM derivative_trades WHERE uti = $1`, uti)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDerivativeNotFound
		}
		return nil, fmt.Errorf("derivative_repo.GetByUTI: %w", err)
	}
	return &t, nil
}

// GetByUTIForUpdate locks the trade row inside the caller's transaction so a
// correction's version bump and history snapshot commit atomically.
func (r *DerivativeRepository) GetByUTIForUpdate(ctx context.Context, tx *sqlx.Tx, uti string) (*domain.DerivativeTrade, error) {
	var t domain.DerivativeTrade
	err := tx.GetContext(ctx, &t, `SELECT * FROM derivative_trades WHERE uti = $1 FOR UPDATE`, uti)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDerivativeNotFound
		}
		return nil, fmt.Errorf("derivative_repo.GetByUTIForUpdate: %w", err)
	}
	return &t, nil
}

// UpdateCurrentView replaces the current view of an existing trade and bumps
// the version inside the caller's transaction. The UTI itself never changes.
func (r *DerivativeRepository) UpdateCurrentView(ctx context.Context, tx *sqlx.Tx, t *domain.DerivativeTrade) error {
	query := `
		UPDATE derivative_trades
		SET prior_uti = :prior_uti, counterparty_a = :counterparty_a,
		    counterparty_b = :counterparty_b, upi = :upi, notional = :notional,
		    currency = :currency, effective_date = :effective_date,
		    expiration_date = :expiration_date, collateral = :collateral,
		    valuation = :valuation, version = :version, updated_at = now()
		WHERE uti = :uti`
	if _, err := tx.NamedExecContext(ctx, query, t); err != nil {
		return fmt.Errorf("derivative_repo.UpdateCurrentView: %w", err)
	}
	return nil
}

// CountExisting returns how many of the given UTIs are already registered.
// Used by batchReport and reportPosition to validate referenced trades in a
// single round trip.
func (r *DerivativeRepository) CountExisting(ctx context.Context, utis []string) (int, error) {
	if len(utis) == 0 {
		return 0, nil
	}
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM derivative_trades WHERE uti = ANY($1)`, pq.Array(utis))
	if err != nil {
		return 0, fmt.Errorf("derivative_repo.CountExisting: %w", err)
	}
	return count, nil
}

// List returns paginated trades, newest first.
func (r *DerivativeRepository) List(ctx context.Context, limit, offset int) ([]*domain.DerivativeTrade, error) {
	var list []*domain.DerivativeTrade
	err := r.db.SelectContext(ctx, &list, `
		SELECT * FROM derivative_trades
		ORDER BY reported_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("derivative_repo.List: %w", err)
	}
	return list, nil
}

// ── Corrections and error reports ─────────────────────────────────────────────

// InsertCorrection appends one supersession record inside the caller's
// transaction.
func (r *DerivativeRepository) InsertCorrection(ctx context.Context, tx *sqlx.Tx, c *domain.Correction) error {
	query := `
		INSERT INTO derivative_corrections
			(id, uti, prior_uti, version, trade_json, corrected_by, corrected_at)
		VALUES
			(:id, :uti, :prior_uti, :version, :trade_json, :corrected_by, :corrected_at)`
	if _, err := tx.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("derivative_repo.InsertCorrection: %w", err)
	}
	return nil
}

// GetCorrections returns the supersession history of one UTI, oldest first.
func (r *DerivativeRepository) GetCorrections(ctx context.Context, uti string) ([]*domain.Correction, error) {
	var list []*domain.Correction
	err := r.db.SelectContext(ctx, &list, `
		SELECT * FROM derivative_corrections
		WHERE uti = $1
		ORDER BY version ASC`,
		uti)
	if err != nil {
		return nil, fmt.Errorf("derivative_repo.GetCorrections: %w", err)
	}
	return list, nil
}

// InsertErrorReport appends one error notice against an existing trade.
func (r *DerivativeRepository) InsertErrorReport(ctx context.Context, e *domain.ErrorReport) error {
	query := `
		INSERT INTO derivative_error_reports
			(id, uti, reason, reported_by, reported_at)
		VALUES
			(:id, :uti, :reason, :reported_by, :reported_at)`
	if _, err := r.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("derivative_repo.InsertErrorReport: %w", err)
	}
	return nil
}

// GetErrorReports returns all error notices for one UTI, newest first.
func (r *DerivativeRepository) GetErrorReports(ctx context.Context, uti string) ([]*domain.ErrorReport, error) {
	var list []*domain.ErrorReport
	err := r.db.SelectContext(ctx, &list, `
		SELECT * FROM derivative_error_reports
		WHERE uti = $1
		ORDER BY reported_at DESC`,
		uti)
	if err != nil {
		return nil, fmt.Errorf("derivative_repo.GetErrorReports: %w", err)
	}
	return list, nil
}

// ── Position reports ──────────────────────────────────────────────────────────

// InsertPosition stores a position report and its underlying links in the
// caller's transaction.
func (r *DerivativeRepository) InsertPosition(ctx context.Context, tx *sqlx.Tx, p *domain.DerivativePosition) error {
	query := `
		INSERT INTO derivative_positions
			(id, position_ref, valuation, reported_by, reported_at)
		VALUES
			(:id, :position_ref, :valuation, :reported_by, :reported_at)`
	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrDerivativeAlreadyReported
		}
		return fmt.Errorf("derivative_repo.InsertPosition: %w", err)
	}
	for _, uti := range p.UnderlyingUTIs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO derivative_position_underlyings (id, position_id, uti)
			VALUES ($1, $2, $3)`,
			uuid.New(), p.ID, uti)
		if err != nil {
			return fmt.Errorf("derivative_repo.InsertPosition underlying: %w", err)
		}
	}
	return nil
}

// GetPosition fetches one position report with its underlying UTIs.
func (r *DerivativeRepository) GetPosition(ctx context.Context, positionRef string) (*domain.DerivativePosition, error) {
	var p domain.DerivativePosition
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM derivative_positions WHERE position_ref = $1`, positionRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDerivativeNotFound
		}
		return nil, fmt.Errorf("derivative_repo.GetPosition: %w", err)
	}
	err = r.db.SelectContext(ctx, &p.UnderlyingUTIs, `
		SELECT uti FROM derivative_position_underlyings
		WHERE position_id = $1
		ORDER BY uti`,
		p.ID)
	if err != nil {
		return nil, fmt.Errorf("derivative_repo.GetPosition underlyings: %w", err)
	}
	return &p, nil
}
