package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Position — custodial position per (investor, asset)
// ──────────────────────────────────────────────────────────────────────────────

// Position is one custodial position. The invariant
//
//	Total == Available + Blocked
//
// must hold after every operation; all mutations happen through
// PositionRepository inside a single SQL transaction so no intermediate
// state is ever observable.
type Position struct {
	ID         uuid.UUID       `json:"id"          db:"id"`
	InvestorID uuid.UUID       `json:"investor_id" db:"investor_id"`
	AssetID    string          `json:"asset_id"    db:"asset_id"`
	AccountRef string          `json:"account_ref" db:"account_ref"`
	Total      decimal.Decimal `json:"total"       db:"total"`
	Available  decimal.Decimal `json:"available"   db:"available"`
	Blocked    decimal.Decimal `json:"blocked"     db:"blocked"`
	CreatedAt  time.Time       `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"  db:"updated_at"`
}

// Consistent reports whether the position satisfies the ledger invariant.
func (p *Position) Consistent() bool {
	return p.Total.Equal(p.Available.Add(p.Blocked))
}

// CanBlock reports whether qty can be moved from available to blocked.
func (p *Position) CanBlock(qty decimal.Decimal) bool {
	return p.Available.GreaterThanOrEqual(qty)
}
