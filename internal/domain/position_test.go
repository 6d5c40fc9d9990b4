package domain_test

import (
	"testing"

	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/shopspring/decimal"
)

func TestPosition_Consistent(t *testing.T) {
	p := &domain.Position{
		Total:     decimal.NewFromInt(1000),
		Available: decimal.NewFromInt(700),
		Blocked:   decimal.NewFromInt(300),
	}
	if !p.Consistent() {
		t.Error("700 + 300 = 1000 should be consistent")
	}

	p.Blocked = decimal.NewFromInt(301)
	if p.Consistent() {
		t.Error("700 + 301 != 1000 should be inconsistent")
	}
}

func TestPosition_CanBlock(t *testing.T) {
	p := &domain.Position{
		Total:     decimal.NewFromInt(1000),
		Available: decimal.NewFromInt(100),
		Blocked:   decimal.NewFromInt(900),
	}
	if !p.CanBlock(decimal.NewFromInt(100)) {
		t.Error("blocking exactly the available quantity should be allowed")
	}
	if p.CanBlock(decimal.NewFromInt(101)) {
		t.Error("blocking more than available should be refused")
	}
}
