// Package repository contains all database access for the issuance ledger.
// One repository per aggregate; services own the transaction boundaries.
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

// InvestorRepository handles database operations for Investors and their
// transfer locks.
type InvestorRepository struct {
	db *sqlx.DB
}

// NewInvestorRepository creates a new InvestorRepository.
func NewInvestorRepository(db *sqlx.DB) *InvestorRepository {
	return &InvestorRepository{db: db}
}

// GetByID fetches one investor.
func (r *InvestorRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Investor, error) {
	var inv domain.Investor
	err := r.db.GetContext(ctx, &inv, `SELECT * FROM investors WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvestorNotFound
		}
		return nil, fmt.Errorf("investor_repo.GetByID: %w", err)
	}
	return &inv, nil
}

// GetByIDForUpdate fetches one investor inside the caller's transaction with
// a row lock, so compliance flags cannot change under an in-flight evaluation.
func (r *InvestorRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Investor, error) {
	var inv domain.Investor
	err := tx.GetContext(ctx, &inv, `SELECT * FROM investors WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvestorNotFound
		}
		return nil, fmt.Errorf("investor_repo.GetByIDForUpdate: %w", err)
	}
	return &inv, nil
}

// GetByWalletAddress fetches an investor by external wallet address.
func (r *InvestorRepository) GetByWalletAddress(ctx context.Context, addr string) (*domain.Investor, error) {
	var inv domain.Investor
	err := r.db.GetContext(ctx, &inv, `SELECT * FROM investors WHERE wallet_address = $1`, addr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvestorNotFound
		}
		return nil, fmt.Errorf("investor_repo.GetByWalletAddress: %w", err)
	}
	return &inv, nil
}

// Create inserts a new investor row.
func (r *InvestorRepository) Create(ctx context.Context, inv *domain.Investor) error {
	query := `
		INSERT INTO investors
			(id, wallet_address, jurisdiction, verified, accredited, is_qib, sanctioned,
			 custodial_account, verified_at, created_at, updated_at)
		VALUES
			(:id, :wallet_address, :jurisdiction, :verified, :accredited, :is_qib, :sanctioned,
			 :custodial_account, :verified_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, inv); err != nil {
		return fmt.Errorf("investor_repo.Create: %w", err)
	}
	return nil
}

// SetVerification marks the investor verified and records the accreditation
// outcome reported by the KYC provider. Runs inside the caller's transaction
// so the pending-issuance replay commits atomically with the flag flip.
func (r *InvestorRepository) SetVerification(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, accredited bool) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE investors
		SET verified = TRUE, accredited = $1, verified_at = now(), updated_at = now()
		WHERE id = $2`,
		accredited, id)
	if err != nil {
		return fmt.Errorf("investor_repo.SetVerification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvestorNotFound
	}
	return nil
}

// SetQIB flips the qualified-institutional-buyer flag (compliance action).
func (r *InvestorRepository) SetQIB(ctx context.Context, id uuid.UUID, isQIB bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE investors SET is_qib = $1, updated_at = now() WHERE id = $2`,
		isQIB, id)
	if err != nil {
		return fmt.Errorf("investor_repo.SetQIB: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvestorNotFound
	}
	return nil
}

// SetSanctioned flips the sanction flag (compliance action).
func (r *InvestorRepository) SetSanctioned(ctx context.Context, id uuid.UUID, sanctioned bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE investors SET sanctioned = $1, updated_at = now() WHERE id = $2`,
		sanctioned, id)
	if err != nil {
		return fmt.Errorf("investor_repo.SetSanctioned: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvestorNotFound
	}
	return nil
}

// LinkCustodialAccount stores the opaque external account reference. Runs in
// the caller's transaction when issuance links an account atomically.
func (r *InvestorRepository) LinkCustodialAccount(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, accountRef string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE investors SET custodial_account = $1, updated_at = now() WHERE id = $2`,
		accountRef, id)
	if err != nil {
		return fmt.Errorf("investor_repo.LinkCustodialAccount: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvestorNotFound
	}
	return nil
}

// List returns paginated investors, newest first.
func (r *InvestorRepository) List(ctx context.Context, limit, offset int) ([]*domain.Investor, error) {
	var invs []*domain.Investor
	err := r.db.SelectContext(ctx, &invs, `
		SELECT * FROM investors
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("investor_repo.List: %w", err)
	}
	return invs, nil
}

// ── Transfer locks ────────────────────────────────────────────────────────────

// GetLock returns the investor's transfer lock, or (nil, nil) when no lock
// row exists.
func (r *InvestorRepository) GetLock(ctx context.Context, investorID uuid.UUID) (*domain.TransferLock, error) {
	var lock domain.TransferLock
	err := r.db.GetContext(ctx, &lock,
		`SELECT * FROM transfer_locks WHERE investor_id = $1`, investorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("investor_repo.GetLock: %w", err)
	}
	return &lock, nil
}

// GetLockForUpdate is the tx-scoped variant of GetLock. The row lock keeps a
// concurrent lock upsert from racing a transfer that already passed the gate.
func (r *InvestorRepository) GetLockForUpdate(ctx context.Context, tx *sqlx.Tx, investorID uuid.UUID) (*domain.TransferLock, error) {
	var lock domain.TransferLock
	err := tx.GetContext(ctx, &lock,
		`SELECT * FROM transfer_locks WHERE investor_id = $1 FOR UPDATE`, investorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("investor_repo.GetLockForUpdate: %w", err)
	}
	return &lock, nil
}

// UpsertLock sets the unlock time. Locks are monotonically settable and
// never removed; a later issuance or compliance action only supersedes the
// previous unlock time.
func (r *InvestorRepository) UpsertLock(ctx context.Context, tx *sqlx.Tx, investorID uuid.UUID, unlockTime time.Time, setBy uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transfer_locks (investor_id, unlock_time, set_by, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (investor_id)
		DO UPDATE SET unlock_time = EXCLUDED.unlock_time, set_by = EXCLUDED.set_by, updated_at = now()`,
		investorID, unlockTime, setBy)
	if err != nil {
		return fmt.Errorf("investor_repo.UpsertLock: %w", err)
	}
	return nil
}

// UpsertLockDirect is the non-transactional variant used by the back office.
func (r *InvestorRepository) UpsertLockDirect(ctx context.Context, investorID uuid.UUID, unlockTime time.Time, setBy uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transfer_locks (investor_id, unlock_time, set_by, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (investor_id)
		DO UPDATE SET unlock_time = EXCLUDED.unlock_time, set_by = EXCLUDED.set_by, updated_at = now()`,
		investorID, unlockTime, setBy)
	if err != nil {
		return fmt.Errorf("investor_repo.UpsertLockDirect: %w", err)
	}
	return nil
}
