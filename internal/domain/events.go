package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event payloads pushed to WebSocket subscribers after a successful commit.
// They carry only committed state; subscribers must treat them as
// notifications and re-query for authoritative data.

// IssuanceEvent announces a primary issuance (released or withheld).
type IssuanceEvent struct {
	IssuanceID uuid.UUID       `json:"issuance_id"`
	InvestorID uuid.UUID       `json:"investor_id"`
	AssetID    string          `json:"asset_id"`
	Amount     decimal.Decimal `json:"amount"`
	Withheld   bool            `json:"withheld"`
}

// TransferEvent announces a completed transfer of units.
type TransferEvent struct {
	FromID  uuid.UUID       `json:"from_id"`
	ToID    uuid.UUID       `json:"to_id"`
	AssetID string          `json:"asset_id"`
	Amount  decimal.Decimal `json:"amount"`
	Forced  bool            `json:"forced"`
}

// SettlementEvent announces a settlement lifecycle transition.
type SettlementEvent struct {
	SettlementID uuid.UUID        `json:"settlement_id"`
	TradeRef     string           `json:"trade_ref"`
	AssetID      string           `json:"asset_id"`
	Status       SettlementStatus `json:"status"`
	FailReason   *string          `json:"fail_reason,omitempty"`
}

// VerificationEvent announces a resolved KYC verification, including how
// many withheld issuances the resolution released.
type VerificationEvent struct {
	RequestID         uuid.UUID `json:"request_id"`
	InvestorID        uuid.UUID `json:"investor_id"`
	Accredited        bool      `json:"accredited"`
	ReleasedIssuances int       `json:"released_issuances"`
}
