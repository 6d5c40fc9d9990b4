package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SettlementRepository handles database operations for settlements and their
// instruction legs.
type SettlementRepository struct {
	db *sqlx.DB
}

// NewSettlementRepository creates a new SettlementRepository.
func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Create inserts a new settlement in PENDING state.
func (r *SettlementRepository) Create(ctx context.Context, s *domain.Settlement) error {
	query := `
		INSERT INTO settlements
			(id, trade_ref, asset_id, buyer_id, seller_id, quantity, amount,
			 status, value_date, fail_reason, created_at, updated_at, settled_at)
		VALUES
			(:id, :trade_ref, :asset_id, :buyer_id, :seller_id, :quantity, :amount,
			 :status, :value_date, :fail_reason, :created_at, :updated_at, :settled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("settlement_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches one settlement.
func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error) {
	var s domain.Settlement
	err := r.db.GetContext(ctx, &s, `SELECT * FROM settlements WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("settlement_repo.GetByID: %w", err)
	}
	return &s, nil
}

// GetForUpdate fetches one settlement with a row lock inside the caller's
// transaction. Lifecycle methods lock the settlement row first so
// concurrent transitions serialise on it.
func (r *SettlementRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Settlement, error) {
	var s domain.Settlement
	err := tx.GetContext(ctx, &s, `SELECT * FROM settlements WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("settlement_repo.GetForUpdate: %w", err)
	}
	return &s, nil
}

// UpdateStatus moves the settlement from expected to next inside the
// caller's transaction. The WHERE status guard is a compare-and-set: zero
// rows affected means another transition won, and the caller's transaction
// rolls back without touching positions.
func (r *SettlementRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, expected, next domain.SettlementStatus) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE settlements SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		next, id, expected)
	if err != nil {
		return fmt.Errorf("settlement_repo.UpdateStatus: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrInvalidSettlementStatus
	}
	return nil
}

// MarkSettled stamps the terminal SETTLED state with the completion time.
func (r *SettlementRepository) MarkSettled(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, settledAt time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE settlements SET status = $1, settled_at = $2, updated_at = now()
		WHERE id = $3 AND status = $4`,
		domain.SettlementSettled, settledAt, id, domain.SettlementConfirmed)
	if err != nil {
		return fmt.Errorf("settlement_repo.MarkSettled: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrInvalidSettlementStatus
	}
	return nil
}

// MarkFailed stamps the terminal FAILED state with the external reason.
func (r *SettlementRepository) MarkFailed(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, expected domain.SettlementStatus, reason string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE settlements SET status = $1, fail_reason = $2, updated_at = now()
		WHERE id = $3 AND status = $4`,
		domain.SettlementFailed, reason, id, expected)
	if err != nil {
		return fmt.Errorf("settlement_repo.MarkFailed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrInvalidSettlementStatus
	}
	return nil
}

// InsertInstruction appends one settlement leg inside the caller's
// transaction.
func (r *SettlementRepository) InsertInstruction(ctx context.Context, tx *sqlx.Tx, ins *domain.Instruction) error {
	query := `
		INSERT INTO settlement_instructions
			(id, settlement_id, type, investor_id, account_ref, quantity, created_at)
		VALUES
			(:id, :settlement_id, :type, :investor_id, :account_ref, :quantity, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, ins); err != nil {
		return fmt.Errorf("settlement_repo.InsertInstruction: %w", err)
	}
	return nil
}

// GetInstructions returns both legs of a settlement, DELIVERY first.
func (r *SettlementRepository) GetInstructions(ctx context.Context, settlementID uuid.UUID) ([]*domain.Instruction, error) {
	var list []*domain.Instruction
	err := r.db.SelectContext(ctx, &list, `
		SELECT * FROM settlement_instructions
		WHERE settlement_id = $1
		ORDER BY type`,
		settlementID)
	if err != nil {
		return nil, fmt.Errorf("settlement_repo.GetInstructions: %w", err)
	}
	return list, nil
}

// ListByInvestor returns paginated settlements where the investor is buyer
// or seller, newest first.
func (r *SettlementRepository) ListByInvestor(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*domain.Settlement, error) {
	var list []*domain.Settlement
	err := r.db.SelectContext(ctx, &list, `
		SELECT * FROM settlements
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		investorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("settlement_repo.ListByInvestor: %w", err)
	}
	return list, nil
}

// ListByStatus returns paginated settlements in one state (back-office view).
func (r *SettlementRepository) ListByStatus(ctx context.Context, status domain.SettlementStatus, limit, offset int) ([]*domain.Settlement, error) {
	var list []*domain.Settlement
	err := r.db.SelectContext(ctx, &list, `
		SELECT * FROM settlements
		WHERE status = $1
		ORDER BY value_date ASC
		LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("settlement_repo.ListByStatus: %w", err)
	}
	return list, nil
}

// CountByStatus returns the settlement count per state for the dashboard.
func (r *SettlementRepository) CountByStatus(ctx context.Context) (map[domain.SettlementStatus]int, error) {
	rows := []struct {
		Status domain.SettlementStatus `db:"status"`
		Count  int                     `db:"count"`
	}{}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS count FROM settlements GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("settlement_repo.CountByStatus: %w", err)
	}
	counts := make(map[domain.SettlementStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
