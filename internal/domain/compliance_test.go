package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func cleanInvestor() *domain.Investor {
	return &domain.Investor{
		ID:            uuid.New(),
		WalletAddress: "0xabc",
		Jurisdiction:  "US",
		Verified:      true,
		Accredited:    true,
	}
}

// ── Transfer gate rule order ──────────────────────────────────────────────────

func TestEvaluateTransfer_CleanParties(t *testing.T) {
	now := time.Now().UTC()
	d := domain.EvaluateTransfer(cleanInvestor(), cleanInvestor(), decimal.NewFromInt(100), nil, nil, now)
	if !d.Allowed {
		t.Errorf("clean transfer denied: %s", d.Reason)
	}
	if d.Err() != nil {
		t.Errorf("allowed decision should map to nil error, got %v", d.Err())
	}
}

func TestEvaluateTransfer_SanctionsWinFirst(t *testing.T) {
	now := time.Now().UTC()

	// Receiver is sanctioned AND unverified AND locked: sanctions must win.
	to := cleanInvestor()
	to.Sanctioned = true
	to.Verified = false
	from := cleanInvestor()
	lock := &domain.TransferLock{InvestorID: from.ID, UnlockTime: now.Add(time.Hour)}

	d := domain.EvaluateTransfer(from, to, decimal.NewFromInt(1), nil, lock, now)
	if d.Allowed {
		t.Fatal("sanctioned receiver must be denied")
	}
	if d.Reason != domain.ReasonSanctioned {
		t.Errorf("reason = %s, want SANCTIONED (first failure wins)", d.Reason)
	}
	if !errors.Is(d.Err(), domain.ErrSanctioned) {
		t.Errorf("Err() = %v, want ErrSanctioned", d.Err())
	}
}

func TestEvaluateTransfer_SanctionedSender(t *testing.T) {
	now := time.Now().UTC()
	from := cleanInvestor()
	from.Sanctioned = true

	d := domain.EvaluateTransfer(from, cleanInvestor(), decimal.NewFromInt(1), nil, nil, now)
	if d.Reason != domain.ReasonSanctioned {
		t.Errorf("reason = %s, want SANCTIONED", d.Reason)
	}
}

func TestEvaluateTransfer_UnverifiedReceiver(t *testing.T) {
	now := time.Now().UTC()
	to := cleanInvestor()
	to.Verified = false

	d := domain.EvaluateTransfer(cleanInvestor(), to, decimal.NewFromInt(1), nil, nil, now)
	if d.Reason != domain.ReasonNotVerified {
		t.Errorf("reason = %s, want NOT_VERIFIED", d.Reason)
	}
}

func TestEvaluateTransfer_IssuanceSkipsVerification(t *testing.T) {
	now := time.Now().UTC()
	to := cleanInvestor()
	to.Verified = false

	// from == nil is the system account (primary issuance).
	d := domain.EvaluateTransfer(nil, to, decimal.NewFromInt(1), nil, nil, now)
	if !d.Allowed {
		t.Errorf("issuance to unverified investor should pass the gate, denied with %s", d.Reason)
	}
}

func TestEvaluateTransfer_IssuanceNeverSkipsSanctions(t *testing.T) {
	now := time.Now().UTC()
	to := cleanInvestor()
	to.Sanctioned = true

	d := domain.EvaluateTransfer(nil, to, decimal.NewFromInt(1), nil, nil, now)
	if d.Reason != domain.ReasonSanctioned {
		t.Errorf("issuance to sanctioned investor: reason = %s, want SANCTIONED", d.Reason)
	}
}

// ── Offering-specific qualification ───────────────────────────────────────────

func TestEvaluateTransfer_RegD_RequiresAccreditation(t *testing.T) {
	now := time.Now().UTC()
	off := &domain.Offering{OfferingType: domain.OfferingRegD506C}
	to := cleanInvestor()
	to.Accredited = false

	d := domain.EvaluateTransfer(cleanInvestor(), to, decimal.NewFromInt(1), off, nil, now)
	if d.Reason != domain.ReasonNotAccredited {
		t.Errorf("reason = %s, want NOT_ACCREDITED", d.Reason)
	}
}

func TestEvaluateTransfer_144A_RequiresQIB(t *testing.T) {
	now := time.Now().UTC()
	off := &domain.Offering{OfferingType: domain.OfferingRule144A}
	to := cleanInvestor() // accredited but not QIB

	d := domain.EvaluateTransfer(cleanInvestor(), to, decimal.NewFromInt(1), off, nil, now)
	if d.Reason != domain.ReasonNotQIB {
		t.Errorf("reason = %s, want NOT_QIB", d.Reason)
	}

	to.IsQIB = true
	d = domain.EvaluateTransfer(cleanInvestor(), to, decimal.NewFromInt(1), off, nil, now)
	if !d.Allowed {
		t.Errorf("QIB receiver denied under 144A: %s", d.Reason)
	}
}

func TestEvaluateTransfer_144A_ReleaseUsesQIBFlag(t *testing.T) {
	// Release of a withheld 144A issuance (from == nil) must be gated on the
	// investor's stored QIB flag; verified + accredited alone is not enough.
	now := time.Now().UTC()
	off := &domain.Offering{OfferingType: domain.OfferingRule144A}

	investor := cleanInvestor() // verified + accredited, not QIB
	d := domain.EvaluateTransfer(nil, investor, decimal.NewFromInt(100), off, nil, now)
	if d.Reason != domain.ReasonNotQIB {
		t.Errorf("reason = %s, want NOT_QIB", d.Reason)
	}

	investor.IsQIB = true
	d = domain.EvaluateTransfer(nil, investor, decimal.NewFromInt(100), off, nil, now)
	if !d.Allowed {
		t.Errorf("QIB investor's 144A release denied: %s", d.Reason)
	}
}

func TestEvaluateTransfer_RegCF_RaiseCap(t *testing.T) {
	now := time.Now().UTC()
	off := &domain.Offering{
		OfferingType:   domain.OfferingRegCF,
		MaxRaiseAmount: decimal.NewFromInt(1000),
		TotalCommitted: decimal.NewFromInt(950),
	}

	// 950 + 50 == 1000: at the cap, allowed (cap is inclusive).
	d := domain.EvaluateTransfer(cleanInvestor(), cleanInvestor(), decimal.NewFromInt(50), off, nil, now)
	if !d.Allowed {
		t.Errorf("commit exactly at cap should pass, denied with %s", d.Reason)
	}

	// 950 + 51 > 1000: over the cap.
	d = domain.EvaluateTransfer(cleanInvestor(), cleanInvestor(), decimal.NewFromInt(51), off, nil, now)
	if d.Reason != domain.ReasonRaiseCapExceeded {
		t.Errorf("reason = %s, want RAISE_CAP_EXCEEDED", d.Reason)
	}
}

func TestEvaluateTransfer_RegCF_UncappedWhenZero(t *testing.T) {
	now := time.Now().UTC()
	off := &domain.Offering{
		OfferingType:   domain.OfferingRegCF,
		MaxRaiseAmount: decimal.Zero, // zero = uncapped
		TotalCommitted: decimal.NewFromInt(1_000_000),
	}
	d := domain.EvaluateTransfer(cleanInvestor(), cleanInvestor(), decimal.NewFromInt(500), off, nil, now)
	if !d.Allowed {
		t.Errorf("uncapped offering denied: %s", d.Reason)
	}
}

// ── Lockup ────────────────────────────────────────────────────────────────────

func TestEvaluateTransfer_Lockup(t *testing.T) {
	now := time.Now().UTC()
	from := cleanInvestor()

	lock := &domain.TransferLock{InvestorID: from.ID, UnlockTime: now.Add(time.Hour)}
	d := domain.EvaluateTransfer(from, cleanInvestor(), decimal.NewFromInt(1), nil, lock, now)
	if d.Reason != domain.ReasonTokensLocked {
		t.Errorf("reason = %s, want TOKENS_LOCKED", d.Reason)
	}

	// Lock in the past no longer blocks.
	lock.UnlockTime = now.Add(-time.Second)
	d = domain.EvaluateTransfer(from, cleanInvestor(), decimal.NewFromInt(1), nil, lock, now)
	if !d.Allowed {
		t.Errorf("expired lock should not block: %s", d.Reason)
	}
}

func TestTransferLock_NilIsUnlocked(t *testing.T) {
	var lock *domain.TransferLock
	if lock.LockedAt(time.Now().UTC()) {
		t.Error("nil lock should never report locked")
	}
}

// ── Forced path ───────────────────────────────────────────────────────────────

func TestEvaluateForcedTransfer_BypassesVerificationNotSanctions(t *testing.T) {
	now := time.Now().UTC()
	to := cleanInvestor()
	to.Verified = false
	to.Accredited = false

	d := domain.EvaluateForcedTransfer(cleanInvestor(), to, nil, true, now)
	if !d.Allowed {
		t.Errorf("forced path should bypass verification/qualification, denied with %s", d.Reason)
	}

	to.Sanctioned = true
	d = domain.EvaluateForcedTransfer(cleanInvestor(), to, nil, true, now)
	if d.Reason != domain.ReasonSanctioned {
		t.Errorf("forced path must never bypass sanctions: reason = %s", d.Reason)
	}
}

func TestEvaluateForcedTransfer_LockupPolicy(t *testing.T) {
	now := time.Now().UTC()
	from := cleanInvestor()
	lock := &domain.TransferLock{InvestorID: from.ID, UnlockTime: now.Add(time.Hour)}

	d := domain.EvaluateForcedTransfer(from, cleanInvestor(), lock, true, now)
	if d.Reason != domain.ReasonTokensLocked {
		t.Errorf("respectLockup=true: reason = %s, want TOKENS_LOCKED", d.Reason)
	}

	d = domain.EvaluateForcedTransfer(from, cleanInvestor(), lock, false, now)
	if !d.Allowed {
		t.Errorf("respectLockup=false should ignore the lock, denied with %s", d.Reason)
	}
}
