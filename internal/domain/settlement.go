package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// SettlementStatus — fixed transition DAG
// ──────────────────────────────────────────────────────────────────────────────

// SettlementStatus represents the lifecycle state of a settlement.
type SettlementStatus string

const (
	SettlementPending    SettlementStatus = "pending"    // created, awaiting instructions
	SettlementInstructed SettlementStatus = "instructed" // instructions generated, seller qty blocked
	SettlementConfirmed  SettlementStatus = "confirmed"  // counterpart confirmed, awaiting completion
	SettlementSettled    SettlementStatus = "settled"    // terminal: quantity moved
	SettlementFailed     SettlementStatus = "failed"     // terminal: external rejection
	SettlementCancelled  SettlementStatus = "cancelled"  // terminal: cancelled pre-value-date
)

// settlementTransitions is the full transition DAG. No transition may skip a
// state or move backward; terminal states have no successors.
var settlementTransitions = map[SettlementStatus][]SettlementStatus{
	SettlementPending:    {SettlementInstructed, SettlementCancelled},
	SettlementInstructed: {SettlementConfirmed, SettlementCancelled, SettlementFailed},
	SettlementConfirmed:  {SettlementSettled, SettlementFailed},
}

// CanTransitionTo reports whether moving from s to next is a legal step.
func (s SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	for _, allowed := range settlementTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states with no outgoing transitions.
func (s SettlementStatus) IsTerminal() bool {
	return len(settlementTransitions[s]) == 0
}

// ──────────────────────────────────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────────────────────────────────

// Settlement is one DvP settlement between a buyer and a seller. It
// references custodial positions but never owns them; all position mutations
// go through the position repository inside the orchestrator's transaction.
type Settlement struct {
	ID         uuid.UUID        `json:"id"          db:"id"`
	TradeRef   string           `json:"trade_ref"   db:"trade_ref"`
	AssetID    string           `json:"asset_id"    db:"asset_id"`
	BuyerID    uuid.UUID        `json:"buyer_id"    db:"buyer_id"`
	SellerID   uuid.UUID        `json:"seller_id"   db:"seller_id"`
	Quantity   decimal.Decimal  `json:"quantity"    db:"quantity"`
	Amount     decimal.Decimal  `json:"amount"      db:"amount"`
	Status     SettlementStatus `json:"status"      db:"status"`
	ValueDate  time.Time        `json:"value_date"  db:"value_date"`
	FailReason *string          `json:"fail_reason" db:"fail_reason"`
	CreatedAt  time.Time        `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"  db:"updated_at"`
	SettledAt  *time.Time       `json:"settled_at"  db:"settled_at"`
}

// CanCancelAt reports whether the settlement may still be cancelled: only
// from PENDING/INSTRUCTED and strictly before the value date.
func (s *Settlement) CanCancelAt(now time.Time) bool {
	if s.Status != SettlementPending && s.Status != SettlementInstructed {
		return false
	}
	return now.Before(s.ValueDate)
}

// ──────────────────────────────────────────────────────────────────────────────
// Instruction
// ──────────────────────────────────────────────────────────────────────────────

// InstructionType distinguishes the outbound and inbound legs.
type InstructionType string

const (
	InstructionDelivery InstructionType = "DELIVERY" // seller's outbound leg
	InstructionReceipt  InstructionType = "RECEIPT"  // buyer's inbound leg
)

// Instruction is one settlement leg. Exactly one DELIVERY and one RECEIPT
// exist per settlement; rows are immutable once created.
type Instruction struct {
	ID           uuid.UUID       `json:"id"            db:"id"`
	SettlementID uuid.UUID       `json:"settlement_id" db:"settlement_id"`
	Type         InstructionType `json:"type"          db:"type"`
	InvestorID   uuid.UUID       `json:"investor_id"   db:"investor_id"`
	AccountRef   string          `json:"account_ref"   db:"account_ref"`
	Quantity     decimal.Decimal `json:"quantity"      db:"quantity"`
	CreatedAt    time.Time       `json:"created_at"    db:"created_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// InitiateSettlementRequest — value object used by SettlementService
// ──────────────────────────────────────────────────────────────────────────────

// InitiateSettlementRequest carries the validated inputs for initiating a
// settlement.
type InitiateSettlementRequest struct {
	TradeRef  string
	AssetID   string
	BuyerID   uuid.UUID
	SellerID  uuid.UUID
	Quantity  decimal.Decimal
	Amount    decimal.Decimal
	ValueDate time.Time
}
