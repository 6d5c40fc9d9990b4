package domain_test

import (
	"testing"
	"time"

	"github.com/dpoglobal/issuance/internal/domain"
)

// ── Transition DAG ────────────────────────────────────────────────────────────

func TestSettlementStatus_LegalTransitions(t *testing.T) {
	legal := []struct {
		from, to domain.SettlementStatus
	}{
		{domain.SettlementPending, domain.SettlementInstructed},
		{domain.SettlementPending, domain.SettlementCancelled},
		{domain.SettlementInstructed, domain.SettlementConfirmed},
		{domain.SettlementInstructed, domain.SettlementCancelled},
		{domain.SettlementInstructed, domain.SettlementFailed},
		{domain.SettlementConfirmed, domain.SettlementSettled},
		{domain.SettlementConfirmed, domain.SettlementFailed},
	}
	for _, tr := range legal {
		if !tr.from.CanTransitionTo(tr.to) {
			t.Errorf("%s -> %s should be legal", tr.from, tr.to)
		}
	}
}

func TestSettlementStatus_IllegalTransitions(t *testing.T) {
	illegal := []struct {
		from, to domain.SettlementStatus
	}{
		{domain.SettlementPending, domain.SettlementConfirmed}, // skips INSTRUCTED
		{domain.SettlementPending, domain.SettlementSettled},
		{domain.SettlementPending, domain.SettlementFailed},
		{domain.SettlementInstructed, domain.SettlementSettled}, // skips CONFIRMED
		{domain.SettlementConfirmed, domain.SettlementCancelled},
		{domain.SettlementConfirmed, domain.SettlementPending}, // backward
		{domain.SettlementSettled, domain.SettlementFailed},    // terminal
		{domain.SettlementFailed, domain.SettlementPending},
		{domain.SettlementCancelled, domain.SettlementInstructed},
	}
	for _, tr := range illegal {
		if tr.from.CanTransitionTo(tr.to) {
			t.Errorf("%s -> %s should be illegal", tr.from, tr.to)
		}
	}
}

func TestSettlementStatus_Terminal(t *testing.T) {
	for _, s := range []domain.SettlementStatus{
		domain.SettlementSettled, domain.SettlementFailed, domain.SettlementCancelled,
	} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []domain.SettlementStatus{
		domain.SettlementPending, domain.SettlementInstructed, domain.SettlementConfirmed,
	} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

// ── Cancel window ─────────────────────────────────────────────────────────────

func TestSettlement_CanCancelAt(t *testing.T) {
	now := time.Now().UTC()
	s := &domain.Settlement{
		Status:    domain.SettlementPending,
		ValueDate: now.Add(24 * time.Hour),
	}
	if !s.CanCancelAt(now) {
		t.Error("pending settlement before value date should be cancellable")
	}

	s.Status = domain.SettlementInstructed
	if !s.CanCancelAt(now) {
		t.Error("instructed settlement before value date should be cancellable")
	}

	s.Status = domain.SettlementConfirmed
	if s.CanCancelAt(now) {
		t.Error("confirmed settlement must not be cancellable")
	}

	// On/after value date cancellation closes even from PENDING.
	s.Status = domain.SettlementPending
	s.ValueDate = now
	if s.CanCancelAt(now) {
		t.Error("cancellation must be strictly before the value date")
	}
	s.ValueDate = now.Add(-time.Hour)
	if s.CanCancelAt(now) {
		t.Error("past value date must not be cancellable")
	}
}
