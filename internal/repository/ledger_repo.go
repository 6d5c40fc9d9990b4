package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// LedgerRepository handles database operations for Holdings, Issuances, and
// the append-only ledger audit trail. The token ledger exclusively owns
// balance state.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// ── Holdings ──────────────────────────────────────────────────────────────────

// GetHolding fetches the balance row for one (investor, asset) pair.
func (r *LedgerRepository) GetHolding(ctx context.Context, investorID uuid.UUID, assetID string) (*domain.Holding, error) {
	var h domain.Holding
	err := r.db.GetContext(ctx, &h,
		`SELECT * FROM holdings WHERE investor_id = $1 AND asset_id = $2`,
		investorID, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrHoldingNotFound
		}
		return nil, fmt.Errorf("ledger_repo.GetHolding: %w", err)
	}
	return &h, nil
}

// DebitBalance subtracts amount from a holding inside a transaction.
// Uses FOR UPDATE to serialise concurrent spends of the same holding;
// returns ErrInsufficientBalance when the balance would go negative.
func (r *LedgerRepository) DebitBalance(ctx context.Context, tx *sqlx.Tx, investorID uuid.UUID, assetID string, amount decimal.Decimal) (before, after decimal.Decimal, err error) {
	var balance decimal.Decimal
	err = tx.GetContext(ctx, &balance,
		`SELECT balance FROM holdings WHERE investor_id = $1 AND asset_id = $2 FOR UPDATE`,
		investorID, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, decimal.Zero, domain.ErrHoldingNotFound
		}
		return decimal.Zero, decimal.Zero, fmt.Errorf("ledger_repo.DebitBalance lock: %w", err)
	}

	if balance.LessThan(amount) {
		return decimal.Zero, decimal.Zero, domain.ErrInsufficientBalance
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE holdings SET balance = balance - $1, updated_at = now()
		 WHERE investor_id = $2 AND asset_id = $3`,
		amount, investorID, assetID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("ledger_repo.DebitBalance update: %w", err)
	}
	return balance, balance.Sub(amount), nil
}

// CreditBalance adds amount to a holding inside a transaction, creating the
// holding row on first credit. Returns the balance before and after.
func (r *LedgerRepository) CreditBalance(ctx context.Context, tx *sqlx.Tx, investorID uuid.UUID, assetID string, amount decimal.Decimal) (before, after decimal.Decimal, err error) {
	var balance decimal.Decimal
	err = tx.GetContext(ctx, &balance,
		`SELECT balance FROM holdings WHERE investor_id = $1 AND asset_id = $2 FOR UPDATE`,
		investorID, assetID)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO holdings (id, investor_id, asset_id, balance, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())`,
			uuid.New(), investorID, assetID, amount)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("ledger_repo.CreditBalance insert: %w", err)
		}
		return decimal.Zero, amount, nil
	}
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("ledger_repo.CreditBalance lock: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE holdings SET balance = balance + $1, updated_at = now()
		 WHERE investor_id = $2 AND asset_id = $3`,
		amount, investorID, assetID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("ledger_repo.CreditBalance update: %w", err)
	}
	return balance, balance.Add(amount), nil
}

// TotalSupply sums all holdings for the asset. Used by conservation checks
// and the back-office dashboard.
func (r *LedgerRepository) TotalSupply(ctx context.Context, assetID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(balance), 0) FROM holdings WHERE asset_id = $1`, assetID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger_repo.TotalSupply: %w", err)
	}
	return total, nil
}

// ── Issuances ─────────────────────────────────────────────────────────────────

// CreateIssuance appends one issuance record inside a transaction.
func (r *LedgerRepository) CreateIssuance(ctx context.Context, tx *sqlx.Tx, iss *domain.Issuance) error {
	query := `
		INSERT INTO issuances
			(id, investor_id, asset_id, amount, doc_ref, lockup_end, status, issued_at, created_at)
		VALUES
			(:id, :investor_id, :asset_id, :amount, :doc_ref, :lockup_end, :status, :issued_at, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, iss); err != nil {
		return fmt.Errorf("ledger_repo.CreateIssuance: %w", err)
	}
	return nil
}

// GetIssuance fetches one issuance record.
func (r *LedgerRepository) GetIssuance(ctx context.Context, id uuid.UUID) (*domain.Issuance, error) {
	var iss domain.Issuance
	err := r.db.GetContext(ctx, &iss, `SELECT * FROM issuances WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIssuanceNotFound
		}
		return nil, fmt.Errorf("ledger_repo.GetIssuance: %w", err)
	}
	return &iss, nil
}

// GetIssuancesByInvestor returns paginated issuances for an investor.
func (r *LedgerRepository) GetIssuancesByInvestor(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*domain.Issuance, error) {
	var list []*domain.Issuance
	err := r.db.SelectContext(ctx, &list, `
		SELECT * FROM issuances
		WHERE investor_id = $1
		ORDER BY issued_at DESC
		LIMIT $2 OFFSET $3`,
		investorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ledger_repo.GetIssuancesByInvestor: %w", err)
	}
	return list, nil
}

// GetWithheldIssuances returns up to limit issuances still pending KYC for
// the investor, oldest first. The limit is the bounded replay cap: excess
// rows stay pending for a follow-up call rather than failing.
func (r *LedgerRepository) GetWithheldIssuances(ctx context.Context, tx *sqlx.Tx, investorID uuid.UUID, limit int) ([]*domain.Issuance, error) {
	var list []*domain.Issuance
	err := tx.SelectContext(ctx, &list, `
		SELECT * FROM issuances
		WHERE investor_id = $1 AND status = $2
		ORDER BY issued_at ASC
		LIMIT $3
		FOR UPDATE`,
		investorID, domain.IssuancePending, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger_repo.GetWithheldIssuances: %w", err)
	}
	return list, nil
}

// ListInvestorsWithWithheld returns ids of verified investors that still
// have withheld issuances, for the follow-up replay sweep.
func (r *LedgerRepository) ListInvestorsWithWithheld(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT i.investor_id FROM issuances i
		JOIN investors inv ON inv.id = i.investor_id
		WHERE i.status = $1 AND inv.verified = TRUE
		LIMIT $2`,
		domain.IssuancePending, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger_repo.ListInvestorsWithWithheld: %w", err)
	}
	return ids, nil
}

// MarkIssuanceVerified flips one withheld issuance to verified inside the
// caller's transaction. The WHERE status guard makes the replay idempotent.
func (r *LedgerRepository) MarkIssuanceVerified(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE issuances SET status = $1
		WHERE id = $2 AND status = $3`,
		domain.IssuanceVerified, id, domain.IssuancePending)
	if err != nil {
		return fmt.Errorf("ledger_repo.MarkIssuanceVerified: %w", err)
	}
	// Zero rows means another replay already released it: a no-op, not an error.
	_, _ = res.RowsAffected()
	return nil
}

// ── Audit trail ───────────────────────────────────────────────────────────────

// LogEntry appends an audit record inside a transaction. Every balance
// mutation and every compliance denial writes through here.
func (r *LedgerRepository) LogEntry(ctx context.Context, tx *sqlx.Tx, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries
			(id, investor_id, asset_id, type, amount, balance_before, balance_after,
			 ref_id, actor_id, description, created_at)
		VALUES
			(:id, :investor_id, :asset_id, :type, :amount, :balance_before, :balance_after,
			 :ref_id, :actor_id, :description, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("ledger_repo.LogEntry: %w", err)
	}
	return nil
}

// LogEntryDirect writes an audit record outside a transaction (e.g.
// compliance denials, which carry no balance mutation to roll back).
func (r *LedgerRepository) LogEntryDirect(ctx context.Context, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries
			(id, investor_id, asset_id, type, amount, balance_before, balance_after,
			 ref_id, actor_id, description, created_at)
		VALUES
			(:id, :investor_id, :asset_id, :type, :amount, :balance_before, :balance_after,
			 :ref_id, :actor_id, :description, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("ledger_repo.LogEntryDirect: %w", err)
	}
	return nil
}

// GetEntries returns the paginated audit trail for one investor.
func (r *LedgerRepository) GetEntries(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM ledger_entries
		WHERE investor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		investorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ledger_repo.GetEntries: %w", err)
	}
	return entries, nil
}

// GetForcedTransferEntries returns the forced-transfer audit log for the
// back office, newest first.
func (r *LedgerRepository) GetForcedTransferEntries(ctx context.Context, limit, offset int) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM ledger_entries
		WHERE type IN ($1, $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		domain.EntryForceOut, domain.EntryForceIn, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ledger_repo.GetForcedTransferEntries: %w", err)
	}
	return entries, nil
}
