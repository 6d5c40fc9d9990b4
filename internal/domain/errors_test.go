package domain_test

import (
	"fmt"
	"testing"

	"github.com/dpoglobal/issuance/internal/domain"
)

func TestIsNotFound_Issuance(t *testing.T) {
	// Repositories wrap with %w; the predicate must see through the chain.
	wrapped := fmt.Errorf("ledger_repo.GetIssuance: %w", domain.ErrIssuanceNotFound)
	if !domain.IsNotFound(wrapped) {
		t.Error("ErrIssuanceNotFound should classify as not-found")
	}
	if domain.IsConflict(wrapped) || domain.IsValidation(wrapped) {
		t.Error("ErrIssuanceNotFound must not classify as conflict or validation")
	}
}

func TestSentinelClassificationsDisjoint(t *testing.T) {
	cases := []struct {
		err  error
		name string
	}{
		{domain.ErrIssuanceNotFound, "ErrIssuanceNotFound"},
		{domain.ErrHoldingNotFound, "ErrHoldingNotFound"},
		{domain.ErrInvalidUTI, "ErrInvalidUTI"},
		{domain.ErrNotQIB, "ErrNotQIB"},
		{domain.ErrInsufficientBalance, "ErrInsufficientBalance"},
	}
	for _, tc := range cases {
		n := 0
		for _, hit := range []bool{
			domain.IsNotFound(tc.err),
			domain.IsValidation(tc.err),
			domain.IsComplianceViolation(tc.err),
			domain.IsConflict(tc.err),
			domain.IsResourceLimit(tc.err),
			domain.IsAuthError(tc.err),
		} {
			if hit {
				n++
			}
		}
		if n != 1 {
			t.Errorf("%s matches %d classifications, want exactly 1", tc.name, n)
		}
	}
}
