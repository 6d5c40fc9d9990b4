package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Issuance
// ──────────────────────────────────────────────────────────────────────────────

// IssuanceStatus tracks whether the issued units have been released to the
// investor or are withheld pending KYC verification.
type IssuanceStatus string

const (
	IssuanceVerified IssuanceStatus = "verified" // units credited to the holding
	IssuancePending  IssuanceStatus = "pending"  // withheld until verification resolves
)

// Issuance is the immutable record of one primary issuance of ownership
// units. Once the verified flag is set the record never changes again.
type Issuance struct {
	ID         uuid.UUID       `json:"id"          db:"id"`
	InvestorID uuid.UUID       `json:"investor_id" db:"investor_id"`
	AssetID    string          `json:"asset_id"    db:"asset_id"`
	Amount     decimal.Decimal `json:"amount"      db:"amount"`
	DocRef     string          `json:"doc_ref"     db:"doc_ref"`
	LockupEnd  time.Time       `json:"lockup_end"  db:"lockup_end"`
	Status     IssuanceStatus  `json:"status"      db:"status"`
	IssuedAt   time.Time       `json:"issued_at"   db:"issued_at"`
	CreatedAt  time.Time       `json:"created_at"  db:"created_at"`
}

// IsWithheld returns true while the issuance awaits KYC verification.
func (i *Issuance) IsWithheld() bool {
	return i.Status == IssuancePending
}

// ──────────────────────────────────────────────────────────────────────────────
// Holding — token-ledger balance per (investor, asset)
// ──────────────────────────────────────────────────────────────────────────────

// Holding is the token-ledger balance row. The ledger exclusively owns this
// state; settlements and positions never write it directly.
type Holding struct {
	ID         uuid.UUID       `json:"id"          db:"id"`
	InvestorID uuid.UUID       `json:"investor_id" db:"investor_id"`
	AssetID    string          `json:"asset_id"    db:"asset_id"`
	Balance    decimal.Decimal `json:"balance"     db:"balance"`
	CreatedAt  time.Time       `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"  db:"updated_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// LedgerEntry — append-only audit trail
// ──────────────────────────────────────────────────────────────────────────────

// EntryType labels a ledger audit entry.
type EntryType string

const (
	EntryIssue         EntryType = "issue"
	EntryTransferOut   EntryType = "transfer_out"
	EntryTransferIn    EntryType = "transfer_in"
	EntryForceOut      EntryType = "force_transfer_out"
	EntryForceIn       EntryType = "force_transfer_in"
	EntryPendingIssue  EntryType = "pending_issue"
	EntryReleaseIssue  EntryType = "release_issue"
	EntryComplianceLog EntryType = "compliance_denied"
)

// LedgerEntry is one append-only audit record. Every balance mutation writes
// exactly one entry per affected holding inside the same transaction, and
// compliance denials are logged with a zero amount.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id"             db:"id"`
	InvestorID    uuid.UUID       `json:"investor_id"    db:"investor_id"`
	AssetID       string          `json:"asset_id"       db:"asset_id"`
	Type          EntryType       `json:"type"           db:"type"`
	Amount        decimal.Decimal `json:"amount"         db:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"  db:"balance_after"`
	RefID         *uuid.UUID      `json:"ref_id"         db:"ref_id"`
	ActorID       *uuid.UUID      `json:"actor_id"       db:"actor_id"`
	Description   string          `json:"description"    db:"description"`
	CreatedAt     time.Time       `json:"created_at"     db:"created_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Request value objects
// ──────────────────────────────────────────────────────────────────────────────

// IssueRequest carries the validated inputs for issuing units.
type IssueRequest struct {
	InvestorID       uuid.UUID
	AssetID          string
	Amount           decimal.Decimal
	DocRef           string
	LockupPeriod     time.Duration
	CustodialAccount string // optional: links a custodial account on issue
}

// TransferRequest carries the validated inputs for a gated transfer.
type TransferRequest struct {
	FromID  uuid.UUID
	ToID    uuid.UUID
	AssetID string
	Amount  decimal.Decimal
}

// ForceTransferRequest is the privileged variant. Justification must be
// non-empty and is recorded verbatim in the audit log.
type ForceTransferRequest struct {
	AuthorityID   uuid.UUID
	FromID        uuid.UUID
	ToID          uuid.UUID
	AssetID       string
	Amount        decimal.Decimal
	Justification string
}
