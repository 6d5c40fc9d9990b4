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

// VerificationRepository handles database operations for pending KYC
// verification requests.
type VerificationRepository struct {
	db *sqlx.DB
}

// NewVerificationRepository creates a new VerificationRepository.
func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Create inserts a new pending verification request.
func (r *VerificationRepository) Create(ctx context.Context, req *domain.VerificationRequest) error {
	query := `
		INSERT INTO verification_requests
			(id, investor_id, provider, refresh, status, accredited, expires_at, resolved_at, created_at)
		VALUES
			(:id, :investor_id, :provider, :refresh, :status, :accredited, :expires_at, :resolved_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("verification_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches one verification request.
func (r *VerificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.VerificationRequest, error) {
	var req domain.VerificationRequest
	err := r.db.GetContext(ctx, &req, `SELECT * FROM verification_requests WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrVerificationRequestNotFound
		}
		return nil, fmt.Errorf("verification_repo.GetByID: %w", err)
	}
	return &req, nil
}

// Resolve flips one pending request to resolved inside the caller's
// transaction. The WHERE status guard makes duplicate provider callbacks a
// detectable no-op: resolved reports whether this call won the flip.
func (r *VerificationRepository) Resolve(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, accredited bool, now time.Time) (resolved bool, err error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE verification_requests
		SET status = $1, accredited = $2, resolved_at = $3
		WHERE id = $4 AND status = $5 AND expires_at > $3`,
		domain.VerificationResolved, accredited, now, id, domain.VerificationPending)
	if err != nil {
		return false, fmt.Errorf("verification_repo.Resolve: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// HasPending reports whether the investor already has an unexpired pending
// request; used to avoid fanning out duplicate provider round-trips.
func (r *VerificationRepository) HasPending(ctx context.Context, investorID uuid.UUID, now time.Time) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM verification_requests
		WHERE investor_id = $1 AND status = $2 AND expires_at > $3`,
		investorID, domain.VerificationPending, now)
	if err != nil {
		return false, fmt.Errorf("verification_repo.HasPending: %w", err)
	}
	return count > 0, nil
}

// ExpireStale marks all pending requests past their deadline as expired and
// returns how many were swept. Called periodically by the scheduler.
func (r *VerificationRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_requests
		SET status = $1
		WHERE status = $2 AND expires_at <= $3`,
		domain.VerificationExpired, domain.VerificationPending, now)
	if err != nil {
		return 0, fmt.Errorf("verification_repo.ExpireStale: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListByInvestor returns the investor's verification history, newest first.
func (r *VerificationRepository) ListByInvestor(ctx context.Context, investorID uuid.UUID, limit, offset int) ([]*domain.VerificationRequest, error) {
	var list []*domain.VerificationRequest
	err := r.db.SelectContext(ctx, &list, `
		SELECT * FROM verification_requests
		WHERE investor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		investorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("verification_repo.ListByInvestor: %w", err)
	}
	return list, nil
}
