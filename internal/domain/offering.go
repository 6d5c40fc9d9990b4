package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// OfferingType
// ──────────────────────────────────────────────────────────────────────────────

// OfferingType selects which exemption rules the compliance gate applies.
type OfferingType string

const (
	OfferingRegD506C OfferingType = "REG_D_506C" // accredited investors only
	OfferingRule144A OfferingType = "RULE_144A"  // qualified institutional buyers only
	OfferingRegCF    OfferingType = "REG_CF"     // verified retail, capped raise
	OfferingRegS     OfferingType = "REG_S"      // offshore; verification only
)

// IsValid returns true if the offering type is a recognised exemption.
func (o OfferingType) IsValid() bool {
	switch o {
	case OfferingRegD506C, OfferingRule144A, OfferingRegCF, OfferingRegS:
		return true
	}
	return false
}

// ──────────────────────────────────────────────────────────────────────────────
// Offering
// ──────────────────────────────────────────────────────────────────────────────

// Offering describes one regulated asset being issued: its exemption type,
// raise cap, lockup period, and running totals. Once finalized no further
// issuance is accepted.
type Offering struct {
	ID               uuid.UUID       `json:"id"                 db:"id"`
	AssetID          string          `json:"asset_id"           db:"asset_id"`
	OfferingType     OfferingType    `json:"offering_type"      db:"offering_type"`
	MaxRaiseAmount   decimal.Decimal `json:"max_raise_amount"   db:"max_raise_amount"`
	LockupPeriod     time.Duration   `json:"lockup_period"      db:"-"`
	LockupSeconds    int64           `json:"-"                  db:"lockup_seconds"`
	BaseCurrency     string          `json:"base_currency"      db:"base_currency"`
	TotalCommitted   decimal.Decimal `json:"total_committed"    db:"total_committed"`
	TotalUnitsIssued decimal.Decimal `json:"total_units_issued" db:"total_units_issued"`
	IsFinalized      bool            `json:"is_finalized"       db:"is_finalized"`
	FinalizedAt      *time.Time      `json:"finalized_at"       db:"finalized_at"`
	CreatedAt        time.Time       `json:"created_at"         db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"         db:"updated_at"`
}

// RemainingCapacity returns how much more can be committed before the raise
// cap is hit. A zero MaxRaiseAmount means the offering is uncapped.
func (o *Offering) RemainingCapacity() decimal.Decimal {
	if o.MaxRaiseAmount.IsZero() {
		return decimal.Zero
	}
	return o.MaxRaiseAmount.Sub(o.TotalCommitted)
}

// WouldExceedCap reports whether committing amount would breach the raise cap.
func (o *Offering) WouldExceedCap(amount decimal.Decimal) bool {
	if o.MaxRaiseAmount.IsZero() {
		return false
	}
	return o.TotalCommitted.Add(amount).GreaterThan(o.MaxRaiseAmount)
}

// ──────────────────────────────────────────────────────────────────────────────
// Identifier — external identifier registry per asset
// ──────────────────────────────────────────────────────────────────────────────

// Identifier maps an internal asset to its external identifiers (ISIN, LEI of
// the issuer, UPI, CUSIP) and CSD-specific asset ids.
type Identifier struct {
	ID                 uuid.UUID `json:"id"                   db:"id"`
	AssetID            string    `json:"asset_id"             db:"asset_id"`
	ISIN               *string   `json:"isin"                 db:"isin"`
	LEI                *string   `json:"lei"                  db:"lei"`
	UPI                *string   `json:"upi"                  db:"upi"`
	CUSIP              *string   `json:"cusip"                db:"cusip"`
	ClearstreamAssetID *string   `json:"clearstream_asset_id" db:"clearstream_asset_id"`
	EuroclearAssetID   *string   `json:"euroclear_asset_id"   db:"euroclear_asset_id"`
	CreatedAt          time.Time `json:"created_at"           db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"           db:"updated_at"`
}
