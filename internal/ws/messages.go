// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs broadcast to connected clients.
package ws

import (
	"time"

	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeSettlementUpdate MsgType = "settlement_update"
	MsgTypeIssuance         MsgType = "issuance"
	MsgTypeTransfer         MsgType = "transfer"
	MsgTypeVerification     MsgType = "verification"
	MsgTypeError            MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// SettlementUpdateMessage — broadcast on every lifecycle transition.
// ──────────────────────────────────────────────────────────────────────────────

// SettlementUpdateMessage tells clients that a settlement changed state.
type SettlementUpdateMessage struct {
	Type         MsgType                 `json:"type"`
	SettlementID uuid.UUID               `json:"settlement_id"`
	TradeRef     string                  `json:"trade_ref"`
	AssetID      string                  `json:"asset_id"`
	Status       domain.SettlementStatus `json:"status"`
	FailReason   *string                 `json:"fail_reason,omitempty"`
	Timestamp    time.Time               `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// IssuanceMessage — broadcast after a primary issuance commits.
// ──────────────────────────────────────────────────────────────────────────────

// IssuanceMessage announces issued (or withheld) units.
type IssuanceMessage struct {
	Type       MsgType         `json:"type"`
	IssuanceID uuid.UUID       `json:"issuance_id"`
	InvestorID uuid.UUID       `json:"investor_id"`
	AssetID    string          `json:"asset_id"`
	Amount     decimal.Decimal `json:"amount"`
	Withheld   bool            `json:"withheld"`
	Timestamp  time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// TransferMessage — broadcast after a transfer commits.
// ──────────────────────────────────────────────────────────────────────────────

// TransferMessage announces moved units; forced transfers are flagged.
type TransferMessage struct {
	Type      MsgType         `json:"type"`
	FromID    uuid.UUID       `json:"from_id"`
	ToID      uuid.UUID       `json:"to_id"`
	AssetID   string          `json:"asset_id"`
	Amount    decimal.Decimal `json:"amount"`
	Forced    bool            `json:"forced"`
	Timestamp time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// VerificationMessage — broadcast when a KYC request resolves.
// ──────────────────────────────────────────────────────────────────────────────

// VerificationMessage announces a resolved verification and the count of
// withheld issuances it released.
type VerificationMessage struct {
	Type              MsgType   `json:"type"`
	RequestID         uuid.UUID `json:"request_id"`
	InvestorID        uuid.UUID `json:"investor_id"`
	Accredited        bool      `json:"accredited"`
	ReleasedIssuances int       `json:"released_issuances"`
	Timestamp         time.Time `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ErrorMessage — sent to a single client on a non-fatal error.
// ──────────────────────────────────────────────────────────────────────────────

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
