// Package domain defines the core business entities for the regulated-asset
// issuance and settlement ledger.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Investor
// ──────────────────────────────────────────────────────────────────────────────

// Investor is a registered participant in the issuance ledger. Flags are
// mutated by the KYC verification callback and by compliance-authority
// actions; an investor row is never deleted.
type Investor struct {
	ID               uuid.UUID  `json:"id"                db:"id"`
	WalletAddress    string     `json:"wallet_address"    db:"wallet_address"`
	Jurisdiction     string     `json:"jurisdiction"      db:"jurisdiction"`
	Verified         bool       `json:"verified"          db:"verified"`
	Accredited       bool       `json:"accredited"        db:"accredited"`
	IsQIB            bool       `json:"is_qib"            db:"is_qib"`
	Sanctioned       bool       `json:"sanctioned"        db:"sanctioned"`
	CustodialAccount *string    `json:"custodial_account" db:"custodial_account"`
	VerifiedAt       *time.Time `json:"verified_at"       db:"verified_at"`
	CreatedAt        time.Time  `json:"created_at"        db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"        db:"updated_at"`
}

// HasCustodialAccount returns true when the investor is linked to an external
// settlement-system account and can take part in DvP settlements.
func (i *Investor) HasCustodialAccount() bool {
	return i.CustodialAccount != nil && *i.CustodialAccount != ""
}

// ──────────────────────────────────────────────────────────────────────────────
// TransferLock
// ──────────────────────────────────────────────────────────────────────────────

// TransferLock holds the per-investor lockup state. UnlockTime is only ever
// moved by the compliance authority or by a fresh issuance; locks are never
// removed, only superseded.
type TransferLock struct {
	InvestorID uuid.UUID `json:"investor_id" db:"investor_id"`
	UnlockTime time.Time `json:"unlock_time" db:"unlock_time"`
	SetBy      uuid.UUID `json:"set_by"      db:"set_by"`
	UpdatedAt  time.Time `json:"updated_at"  db:"updated_at"`
}

// LockedAt returns true while the lockup is still in force at the given time.
func (l *TransferLock) LockedAt(now time.Time) bool {
	return l != nil && now.Before(l.UnlockTime)
}

// ──────────────────────────────────────────────────────────────────────────────
// VerificationRequest — async KYC request/callback state
// ──────────────────────────────────────────────────────────────────────────────

// VerificationStatus is the lifecycle state of a pending KYC request.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationResolved VerificationStatus = "resolved"
	VerificationExpired  VerificationStatus = "expired"
)

// VerificationRequest records one outstanding KYC verification round-trip.
// The external provider resolves it by request id; duplicate resolutions are
// a no-op so at-least-once callback delivery is safe.
type VerificationRequest struct {
	ID         uuid.UUID          `json:"id"          db:"id"`
	InvestorID uuid.UUID          `json:"investor_id" db:"investor_id"`
	Provider   string             `json:"provider"    db:"provider"`
	Refresh    bool               `json:"refresh"     db:"refresh"`
	Status     VerificationStatus `json:"status"      db:"status"`
	Accredited *bool              `json:"accredited"  db:"accredited"`
	ExpiresAt  time.Time          `json:"expires_at"  db:"expires_at"`
	ResolvedAt *time.Time         `json:"resolved_at" db:"resolved_at"`
	CreatedAt  time.Time          `json:"created_at"  db:"created_at"`
}

// IsPending returns true while the request can still be resolved.
func (r *VerificationRequest) IsPending() bool {
	return r.Status == VerificationPending
}
