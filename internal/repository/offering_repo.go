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

// OfferingRepository handles database operations for offerings and the
// external identifier registry.
type OfferingRepository struct {
	db *sqlx.DB
}

// NewOfferingRepository creates a new OfferingRepository.
func NewOfferingRepository(db *sqlx.DB) *OfferingRepository {
	return &OfferingRepository{db: db}
}

// Create inserts a new offering.
func (r *OfferingRepository) Create(ctx context.Context, o *domain.Offering) error {
	query := `
		INSERT INTO offerings
			(id, asset_id, offering_type, max_raise_amount, lockup_seconds, base_currency,
			 total_committed, total_units_issued, is_finalized, finalized_at, created_at, updated_at)
		VALUES
			(:id, :asset_id, :offering_type, :max_raise_amount, :lockup_seconds, :base_currency,
			 :total_committed, :total_units_issued, :is_finalized, :finalized_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, o); err != nil {
		return fmt.Errorf("offering_repo.Create: %w", err)
	}
	return nil
}

// GetByAssetID fetches the offering for one asset.
func (r *OfferingRepository) GetByAssetID(ctx context.Context, assetID string) (*domain.Offering, error) {
	var o domain.Offering
	err := r.db.GetContext(ctx, &o, `SELECT * FROM offerings WHERE asset_id = $1`, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOfferingNotFound
		}
		return nil, fmt.Errorf("offering_repo.GetByAssetID: %w", err)
	}
	o.LockupPeriod = time.Duration(o.LockupSeconds) * time.Second
	return &o, nil
}

// GetByAssetIDForUpdate locks the offering row inside the caller's
// transaction; issuance serialises on it so the raise cap cannot be breached
// by concurrent issues.
func (r *OfferingRepository) GetByAssetIDForUpdate(ctx context.Context, tx *sqlx.Tx, assetID string) (*domain.Offering, error) {
	var o domain.Offering
	err := tx.GetContext(ctx, &o, `SELECT * FROM offerings WHERE asset_id = $1 FOR UPDATE`, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOfferingNotFound
		}
		return nil, fmt.Errorf("offering_repo.GetByAssetIDForUpdate: %w", err)
	}
	o.LockupPeriod = time.Duration(o.LockupSeconds) * time.Second
	return &o, nil
}

// AddCommitted bumps the running totals inside the caller's transaction.
func (r *OfferingRepository) AddCommitted(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, amount, units decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE offerings
		SET total_committed = total_committed + $1,
		    total_units_issued = total_units_issued + $2,
		    updated_at = now()
		WHERE id = $3`,
		amount, units, id)
	if err != nil {
		return fmt.Errorf("offering_repo.AddCommitted: %w", err)
	}
	return nil
}

// Finalize closes the offering to further issuance. Idempotent: finalizing
// twice is a conflict so the caller can report it.
func (r *OfferingRepository) Finalize(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE offerings
		SET is_finalized = TRUE, finalized_at = $1, updated_at = now()
		WHERE id = $2 AND is_finalized = FALSE`,
		at, id)
	if err != nil {
		return fmt.Errorf("offering_repo.Finalize: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrOfferingFinalized
	}
	return nil
}

// List returns all offerings, newest first.
func (r *OfferingRepository) List(ctx context.Context, limit, offset int) ([]*domain.Offering, error) {
	var list []*domain.Offering
	err := r.db.SelectContext(ctx, &list, `
		SELECT * FROM offerings
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("offering_repo.List: %w", err)
	}
	for _, o := range list {
		o.LockupPeriod = time.Duration(o.LockupSeconds) * time.Second
	}
	return list, nil
}

// ── Identifier registry ───────────────────────────────────────────────────────

// UpsertIdentifier stores or refreshes the external identifiers of an asset.
func (r *OfferingRepository) UpsertIdentifier(ctx context.Context, ident *domain.Identifier) error {
	query := `
		INSERT INTO asset_identifiers
			(id, asset_id, isin, lei, upi, cusip, clearstream_asset_id, euroclear_asset_id,
			 created_at, updated_at)
		VALUES
			(:id, :asset_id, :isin, :lei, :upi, :cusip, :clearstream_asset_id, :euroclear_asset_id,
			 :created_at, :updated_at)
		ON CONFLICT (asset_id) DO UPDATE SET
			isin = EXCLUDED.isin, lei = EXCLUDED.lei, upi = EXCLUDED.upi,
			cusip = EXCLUDED.cusip, clearstream_asset_id = EXCLUDED.clearstream_asset_id,
			euroclear_asset_id = EXCLUDED.euroclear_asset_id, updated_at = now()`
	if _, err := r.db.NamedExecContext(ctx, query, ident); err != nil {
		return fmt.Errorf("offering_repo.UpsertIdentifier: %w", err)
	}
	return nil
}

// GetIdentifier fetches the identifier row for one asset.
func (r *OfferingRepository) GetIdentifier(ctx context.Context, assetID string) (*domain.Identifier, error) {
	var ident domain.Identifier
	err := r.db.GetContext(ctx, &ident,
		`SELECT * FROM asset_identifiers WHERE asset_id = $1`, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOfferingNotFound
		}
		return nil, fmt.Errorf("offering_repo.GetIdentifier: %w", err)
	}
	return &ident, nil
}
