package domain

import (
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// UserRole
// ──────────────────────────────────────────────────────────────────────────────

// UserRole controls which capability a back-office or API user carries. Role
// checks happen once at the entry of each operation, separate from the
// ledger mutation itself.
type UserRole string

const (
	RoleParticipant UserRole = "participant" // standard investor-facing account
	RoleAdmin       UserRole = "admin"       // full back-office access
	RoleCompliance  UserRole = "compliance"  // sanctions, locks, forced transfers
	RoleOps         UserRole = "ops"         // offerings, issuance operations
	RoleSettlement  UserRole = "settlement"  // settlement lifecycle operations
	RoleReporting   UserRole = "reporting"   // derivative trade reporting agent
	RoleReadOnly    UserRole = "readonly"    // read-only back-office access
)

// CanAccessBackoffice returns true for all non-participant roles.
func (r UserRole) CanAccessBackoffice() bool {
	return r != RoleParticipant
}

// IsComplianceAuthority returns true for roles allowed to sanction, lock,
// and force-transfer.
func (r UserRole) IsComplianceAuthority() bool {
	return r == RoleCompliance || r == RoleAdmin
}

// CanReportDerivatives returns true for roles allowed to write to the trade
// registry.
func (r UserRole) CanReportDerivatives() bool {
	return r == RoleReporting || r == RoleAdmin
}

// CanOperateSettlements returns true for roles allowed to drive the
// settlement lifecycle.
func (r UserRole) CanOperateSettlements() bool {
	return r == RoleSettlement || r == RoleOps || r == RoleAdmin
}

// ──────────────────────────────────────────────────────────────────────────────
// User
// ──────────────────────────────────────────────────────────────────────────────

// User is the authentication entity. A participant user may be linked to an
// Investor row; authority roles are not.
type User struct {
	ID           uuid.UUID  `json:"id"          db:"id"`
	Email        string     `json:"email"       db:"email"`
	PasswordHash string     `json:"-"           db:"password_hash"` // never serialised
	Role         UserRole   `json:"role"        db:"role"`
	InvestorID   *uuid.UUID `json:"investor_id" db:"investor_id"`
	IsActive     bool       `json:"is_active"   db:"is_active"`
	CreatedAt    time.Time  `json:"created_at"  db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"  db:"updated_at"`
}
