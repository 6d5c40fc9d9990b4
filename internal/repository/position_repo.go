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
	"github.com/shopspring/decimal"
)

// PositionRepository handles database operations for custodial positions.
// Every mutation is a single UPDATE that moves quantity between the
// available and blocked columns, so total == available + blocked holds
// row-by-row and no intermediate state is ever visible to a reader.
type PositionRepository struct {
	db *sqlx.DB
}

// NewPositionRepository creates a new PositionRepository.
func NewPositionRepository(db *sqlx.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Get fetches one position.
func (r *PositionRepository) Get(ctx context.Context, investorID uuid.UUID, assetID string) (*domain.Position, error) {
	var p domain.Position
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM positions WHERE investor_id = $1 AND asset_id = $2`,
		investorID, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPositionNotFound
		}
		return nil, fmt.Errorf("position_repo.Get: %w", err)
	}
	return &p, nil
}

// GetForUpdate fetches one position with a row lock inside the caller's
// transaction.
func (r *PositionRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, investorID uuid.UUID, assetID string) (*domain.Position, error) {
	var p domain.Position
	err := tx.GetContext(ctx, &p,
		`SELECT * FROM positions WHERE investor_id = $1 AND asset_id = $2 FOR UPDATE`,
		investorID, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPositionNotFound
		}
		return nil, fmt.Errorf("position_repo.GetForUpdate: %w", err)
	}
	return &p, nil
}

// Create inserts a new empty position row. Called when an investor's
// custodial account is linked.
func (r *PositionRepository) Create(ctx context.Context, tx *sqlx.Tx, p *domain.Position) error {
	query := `
		INSERT INTO positions
			(id, investor_id, asset_id, account_ref, total, available, blocked, created_at, updated_at)
		VALUES
			(:id, :investor_id, :asset_id, :account_ref, :total, :available, :blocked, :created_at, :updated_at)
		ON CONFLICT (investor_id, asset_id) DO NOTHING`
	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("position_repo.Create: %w", err)
	}
	return nil
}

// Block moves qty from available to blocked. The WHERE guard rejects the
// move atomically when available is short; zero rows affected means either
// the position is missing or the quantity is not available.
func (r *PositionRepository) Block(ctx context.Context, tx *sqlx.Tx, investorID uuid.UUID, assetID string, qty decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE positions
		SET available = available - $1, blocked = blocked + $1, updated_at = now()
		WHERE investor_id = $2 AND asset_id = $3 AND available >= $1`,
		qty, investorID, assetID)
	if err != nil {
		return fmt.Errorf("position_repo.Block: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, gerr := r.getInTx(ctx, tx, investorID, assetID); gerr != nil {
			return gerr
		}
		return domain.ErrInsufficientAvailable
	}
	return nil
}

// Release moves qty back from blocked to available (cancellation or failure
// after instruction).
func (r *PositionRepository) Release(ctx context.Context, tx *sqlx.Tx, investorID uuid.UUID, assetID string, qty decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE positions
		SET available = available + $1, blocked = blocked - $1, updated_at = now()
		WHERE investor_id = $2 AND asset_id = $3 AND blocked >= $1`,
		qty, investorID, assetID)
	if err != nil {
		return fmt.Errorf("position_repo.Release: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrPositionNotFound
	}
	return nil
}

// SettleDebit removes qty from the seller's blocked quantity and total at
// completion time.
func (r *PositionRepository) SettleDebit(ctx context.Context, tx *sqlx.Tx, investorID uuid.UUID, assetID string, qty decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE positions
		SET blocked = blocked - $1, total = total - $1, updated_at = now()
		WHERE investor_id = $2 AND asset_id = $3 AND blocked >= $1`,
		qty, investorID, assetID)
	if err != nil {
		return fmt.Errorf("position_repo.SettleDebit: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrPositionNotFound
	}
	return nil
}

// SettleCredit adds qty to the buyer's available quantity and total at
// completion time, creating the position row on first settlement.
func (r *PositionRepository) SettleCredit(ctx context.Context, tx *sqlx.Tx, investorID uuid.UUID, assetID, accountRef string, qty decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE positions
		SET available = available + $1, total = total + $1, updated_at = now()
		WHERE investor_id = $2 AND asset_id = $3`,
		qty, investorID, assetID)
	if err != nil {
		return fmt.Errorf("position_repo.SettleCredit: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO positions
			(id, investor_id, asset_id, account_ref, total, available, blocked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5, 0, $6, $6)`,
		uuid.New(), investorID, assetID, accountRef, qty, now)
	if err != nil {
		return fmt.Errorf("position_repo.SettleCredit insert: %w", err)
	}
	return nil
}

// ListByInvestor returns all positions of one investor.
func (r *PositionRepository) ListByInvestor(ctx context.Context, investorID uuid.UUID) ([]*domain.Position, error) {
	var list []*domain.Position
	err := r.db.SelectContext(ctx, &list, `
		SELECT * FROM positions
		WHERE investor_id = $1
		ORDER BY asset_id`,
		investorID)
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListByInvestor: %w", err)
	}
	return list, nil
}

// ListByAsset returns all positions for one asset (back-office view).
func (r *PositionRepository) ListByAsset(ctx context.Context, assetID string, limit, offset int) ([]*domain.Position, error) {
	var list []*domain.Position
	err := r.db.SelectContext(ctx, &list, `
		SELECT * FROM positions
		WHERE asset_id = $1
		ORDER BY total DESC
		LIMIT $2 OFFSET $3`,
		assetID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListByAsset: %w", err)
	}
	return list, nil
}

func (r *PositionRepository) getInTx(ctx context.Context, tx *sqlx.Tx, investorID uuid.UUID, assetID string) (*domain.Position, error) {
	var p domain.Position
	err := tx.GetContext(ctx, &p,
		`SELECT * FROM positions WHERE investor_id = $1 AND asset_id = $2`,
		investorID, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPositionNotFound
		}
		return nil, fmt.Errorf("position_repo.getInTx: %w", err)
	}
	return &p, nil
}
