package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Caps — deliberate backpressure limits; per-call cost stays constant
// regardless of adversarial input size. Exposed as config fields with these
// defaults.
// ──────────────────────────────────────────────────────────────────────────────

const (
	// DefaultMaxBatchReport bounds one batchReport call (cap inclusive).
	DefaultMaxBatchReport = 20

	// DefaultMaxUnderlyingTrades bounds the underlying list of one position
	// report (cap inclusive).
	DefaultMaxUnderlyingTrades = 50

	// DefaultMaxPendingIssuanceReplay bounds how many withheld issuances one
	// verification event releases; the rest wait for a follow-up pass.
	DefaultMaxPendingIssuanceReplay = 100
)

// ──────────────────────────────────────────────────────────────────────────────
// DerivativeTrade
// ──────────────────────────────────────────────────────────────────────────────

// DerivativeTrade is one reported derivative, keyed by its UTI. The UTI is
// unique across all time: corrections supersede the current view but never
// replace the original row, and error reports never mutate the trade.
type DerivativeTrade struct {
	ID             uuid.UUID       `json:"id"              db:"id"`
	UTI            string          `json:"uti"             db:"uti"`
	PriorUTI       *string         `json:"prior_uti"       db:"prior_uti"`
	CounterpartyA  string          `json:"counterparty_a"  db:"counterparty_a"` // LEI
	CounterpartyB  string          `json:"counterparty_b"  db:"counterparty_b"` // LEI
	UPI            *string         `json:"upi"             db:"upi"`
	Notional       decimal.Decimal `json:"notional"        db:"notional"`
	Currency       string          `json:"currency"        db:"currency"`
	EffectiveDate  time.Time       `json:"effective_date"  db:"effective_date"`
	ExpirationDate time.Time       `json:"expiration_date" db:"expiration_date"`
	Collateral     decimal.Decimal `json:"collateral"      db:"collateral"`
	Valuation      decimal.Decimal `json:"valuation"       db:"valuation"`
	Version        int             `json:"version"         db:"version"`
	ReportedBy     uuid.UUID       `json:"reported_by"     db:"reported_by"`
	ReportedAt     time.Time       `json:"reported_at"     db:"reported_at"`
	CreatedAt      time.Time       `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"      db:"updated_at"`
}

// Validate checks date ordering, notional, currency code, and counterparty
// identifier well-formedness. It performs no I/O; the uniqueness check
// belongs to the repository.
func (t *DerivativeTrade) Validate() error {
	if t.UTI == "" {
		return ErrInvalidUTI
	}
	if !ValidLEI(t.CounterpartyA) || !ValidLEI(t.CounterpartyB) {
		return ErrInvalidLEI
	}
	if t.Notional.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidNotional
	}
	if !ValidCurrency(t.Currency) {
		return ErrInvalidCurrency
	}
	if t.ExpirationDate.Before(t.EffectiveDate) {
		return ErrInvalidDate
	}
	return nil
}

// ValidCurrency reports whether code is a 3-letter uppercase ISO 4217 code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// ValidLEI reports whether id is a plausible 20-character LEI
// (alphanumeric, uppercase letters and digits only).
func ValidLEI(id string) bool {
	if len(id) != 20 {
		return false
	}
	for _, c := range id {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// ──────────────────────────────────────────────────────────────────────────────
// Correction — append-only supersession history
// ──────────────────────────────────────────────────────────────────────────────

// Correction records one supersession of a trade's current view. History is
// append-only: prior versions are retained for audit.
type Correction struct {
	ID          uuid.UUID `json:"id"           db:"id"`
	UTI         string    `json:"uti"          db:"uti"`
	PriorUTI    *string   `json:"prior_uti"    db:"prior_uti"`
	Version     int       `json:"version"      db:"version"`
	TradeJSON   string    `json:"trade_json"   db:"trade_json"` // snapshot of the superseded view
	CorrectedBy uuid.UUID `json:"corrected_by" db:"corrected_by"`
	CorrectedAt time.Time `json:"corrected_at" db:"corrected_at"`
}

// ErrorReport is one append-only error notice against an existing trade.
// It never mutates the trade itself.
type ErrorReport struct {
	ID         uuid.UUID `json:"id"          db:"id"`
	UTI        string    `json:"uti"         db:"uti"`
	Reason     string    `json:"reason"      db:"reason"`
	ReportedBy uuid.UUID `json:"reported_by" db:"reported_by"`
	ReportedAt time.Time `json:"reported_at" db:"reported_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// DerivativePosition — aggregation over existing UTIs
// ──────────────────────────────────────────────────────────────────────────────

// DerivativePosition aggregates a capped list of underlying trades under one
// position id. Every referenced UTI must already exist at report time.
type DerivativePosition struct {
	ID             uuid.UUID       `json:"id"              db:"id"`
	PositionRef    string          `json:"position_ref"    db:"position_ref"`
	UnderlyingUTIs []string        `json:"underlying_utis" db:"-"`
	Valuation      decimal.Decimal `json:"valuation"       db:"valuation"`
	ReportedBy     uuid.UUID       `json:"reported_by"     db:"reported_by"`
	ReportedAt     time.Time       `json:"reported_at"     db:"reported_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Batch validation — all-or-nothing before any storage write
// ──────────────────────────────────────────────────────────────────────────────

// ValidateBatch rejects the whole batch before any entry is processed:
// parallel-array length mismatches first, then the size cap (inclusive),
// then per-entry field validation in order.
func ValidateBatch(trades []DerivativeTrade, collaterals, valuations []decimal.Decimal, maxBatch int) error {
	if len(collaterals) != len(trades) || len(valuations) != len(trades) {
		return ErrBatchMismatched
	}
	if len(trades) > maxBatch {
		return ErrBatchTooLarge
	}
	for i := range trades {
		if err := trades[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
