package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	leiA = "5493001KJTIIGC8Y1R12"
	leiB = "2138001ABCDEFGHJK123"
)

func validTrade(uti string) domain.DerivativeTrade {
	now := time.Now().UTC()
	return domain.DerivativeTrade{
		ID:             uuid.New(),
		UTI:            uti,
		CounterpartyA:  leiA,
		CounterpartyB:  leiB,
		Notional:       decimal.NewFromInt(1_000_000),
		Currency:       "USD",
		EffectiveDate:  now,
		ExpirationDate: now.AddDate(1, 0, 0),
	}
}

// ── Field validation ──────────────────────────────────────────────────────────

func TestDerivativeTrade_Validate_OK(t *testing.T) {
	tr := validTrade("UTI-001")
	if err := tr.Validate(); err != nil {
		t.Errorf("valid trade rejected: %v", err)
	}
}

func TestDerivativeTrade_Validate_MissingUTI(t *testing.T) {
	tr := validTrade("")
	err := tr.Validate()
	if !errors.Is(err, domain.ErrInvalidUTI) {
		t.Errorf("err = %v, want ErrInvalidUTI", err)
	}
	if !domain.IsValidation(err) {
		t.Errorf("ErrInvalidUTI should classify as a validation error")
	}
}

func TestDerivativeTrade_Validate_BadLEI(t *testing.T) {
	tr := validTrade("UTI-001")
	tr.CounterpartyA = "short"
	if err := tr.Validate(); !errors.Is(err, domain.ErrInvalidLEI) {
		t.Errorf("err = %v, want ErrInvalidLEI", err)
	}
}

func TestDerivativeTrade_Validate_NonPositiveNotional(t *testing.T) {
	tr := validTrade("UTI-001")
	tr.Notional = decimal.Zero
	if err := tr.Validate(); !errors.Is(err, domain.ErrInvalidNotional) {
		t.Errorf("err = %v, want ErrInvalidNotional", err)
	}
	tr.Notional = decimal.NewFromInt(-5)
	if err := tr.Validate(); !errors.Is(err, domain.ErrInvalidNotional) {
		t.Errorf("negative notional: err = %v, want ErrInvalidNotional", err)
	}
}

func TestDerivativeTrade_Validate_BadCurrency(t *testing.T) {
	tr := validTrade("UTI-001")
	tr.Currency = "usd"
	if err := tr.Validate(); !errors.Is(err, domain.ErrInvalidCurrency) {
		t.Errorf("err = %v, want ErrInvalidCurrency", err)
	}
}

func TestDerivativeTrade_Validate_ExpiryBeforeEffective(t *testing.T) {
	tr := validTrade("UTI-001")
	tr.ExpirationDate = tr.EffectiveDate.Add(-time.Hour)
	if err := tr.Validate(); !errors.Is(err, domain.ErrInvalidDate) {
		t.Errorf("err = %v, want ErrInvalidDate", err)
	}
}

// ── Identifier well-formedness ────────────────────────────────────────────────

func TestValidLEI(t *testing.T) {
	if !domain.ValidLEI(leiA) {
		t.Errorf("%s should be a valid LEI", leiA)
	}
	for _, bad := range []string{"", "too-short", leiA + "X", "5493001kjtiigc8y1r12"} {
		if domain.ValidLEI(bad) {
			t.Errorf("%q should not be a valid LEI", bad)
		}
	}
}

func TestValidCurrency(t *testing.T) {
	for _, ok := range []string{"USD", "EUR", "CHF"} {
		if !domain.ValidCurrency(ok) {
			t.Errorf("%s should be a valid currency", ok)
		}
	}
	for _, bad := range []string{"", "US", "USDT", "us$", "usd"} {
		if domain.ValidCurrency(bad) {
			t.Errorf("%q should not be a valid currency", bad)
		}
	}
}

// ── Batch validation ordering ─────────────────────────────────────────────────

func TestValidateBatch_MismatchBeforeSizeCap(t *testing.T) {
	// Oversized AND mismatched: the mismatch must be reported first.
	trades := make([]domain.DerivativeTrade, domain.DefaultMaxBatchReport+5)
	for i := range trades {
		trades[i] = validTrade("UTI-BATCH")
	}
	collaterals := make([]decimal.Decimal, 1) // wrong length
	valuations := make([]decimal.Decimal, len(trades))

	err := domain.ValidateBatch(trades, collaterals, valuations, domain.DefaultMaxBatchReport)
	if !errors.Is(err, domain.ErrBatchMismatched) {
		t.Errorf("err = %v, want ErrBatchMismatched before size check", err)
	}
}

func TestValidateBatch_SizeCapInclusive(t *testing.T) {
	mk := func(n int) ([]domain.DerivativeTrade, []decimal.Decimal, []decimal.Decimal) {
		trades := make([]domain.DerivativeTrade, n)
		for i := range trades {
			trades[i] = validTrade("UTI-BATCH")
		}
		return trades, make([]decimal.Decimal, n), make([]decimal.Decimal, n)
	}

	trades, cols, vals := mk(domain.DefaultMaxBatchReport)
	for i := range cols {
		cols[i] = decimal.NewFromInt(1)
		vals[i] = decimal.NewFromInt(1)
	}
	if err := domain.ValidateBatch(trades, cols, vals, domain.DefaultMaxBatchReport); err != nil {
		t.Errorf("batch exactly at cap rejected: %v", err)
	}

	trades, cols, vals = mk(domain.DefaultMaxBatchReport + 1)
	if err := domain.ValidateBatch(trades, cols, vals, domain.DefaultMaxBatchReport); !errors.Is(err, domain.ErrBatchTooLarge) {
		t.Errorf("err = %v, want ErrBatchTooLarge", err)
	}
}

func TestValidateBatch_PerEntryValidation(t *testing.T) {
	trades := []domain.DerivativeTrade{validTrade("UTI-1"), validTrade("UTI-2")}
	trades[1].Currency = "nope"
	cols := make([]decimal.Decimal, 2)
	vals := make([]decimal.Decimal, 2)

	if err := domain.ValidateBatch(trades, cols, vals, domain.DefaultMaxBatchReport); !errors.Is(err, domain.ErrInvalidCurrency) {
		t.Errorf("err = %v, want ErrInvalidCurrency from entry 2", err)
	}
}
