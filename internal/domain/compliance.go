package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Compliance gate — pure decision logic, no I/O
// ──────────────────────────────────────────────────────────────────────────────

// ReasonCode is the machine-readable denial reason surfaced to audit logs.
type ReasonCode string

const (
	ReasonNone             ReasonCode = ""
	ReasonSanctioned       ReasonCode = "SANCTIONED"
	ReasonNotVerified      ReasonCode = "NOT_VERIFIED"
	ReasonNotAccredited    ReasonCode = "NOT_ACCREDITED"
	ReasonNotQIB           ReasonCode = "NOT_QIB"
	ReasonTokensLocked     ReasonCode = "TOKENS_LOCKED"
	ReasonRaiseCapExceeded ReasonCode = "RAISE_CAP_EXCEEDED"
)

// Decision is the result of a gate evaluation.
type Decision struct {
	Allowed bool
	Reason  ReasonCode
}

// Err maps a denial to its sentinel error; returns nil when allowed.
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonNone:
		return nil
	case ReasonSanctioned:
		return ErrSanctioned
	case ReasonNotVerified:
		return ErrNotVerified
	case ReasonNotAccredited:
		return ErrNotAccredited
	case ReasonNotQIB:
		return ErrNotQIB
	case ReasonTokensLocked:
		return ErrTokensLocked
	case ReasonRaiseCapExceeded:
		return ErrRaiseCapExceeded
	}
	return ErrForbidden
}

func allow() Decision            { return Decision{Allowed: true} }
func deny(r ReasonCode) Decision { return Decision{Allowed: false, Reason: r} }

// ──────────────────────────────────────────────────────────────────────────────
// EvaluateTransfer
// ──────────────────────────────────────────────────────────────────────────────

// EvaluateTransfer applies the transfer rules in order; the first failure
// wins. `from` is nil for primary issuance (the system account), which skips
// the receiver-verification and offering checks only when the offering rules
// say so — sanctions are always applied to both present parties.
//
// Rule order:
//  1. neither party sanctioned
//  2. receiver verified (skipped for issuance from the system account)
//  3. offering-specific qualification (accredited / QIB / raise cap)
//  4. sender lockup expired
func EvaluateTransfer(
	from, to *Investor,
	amount decimal.Decimal,
	offering *Offering,
	lock *TransferLock,
	now time.Time,
) Decision {
	// Rule 1: sanctions — never skipped, for either side.
	if to != nil && to.Sanctioned {
		return deny(ReasonSanctioned)
	}
	if from != nil && from.Sanctioned {
		return deny(ReasonSanctioned)
	}

	isIssuance := from == nil

	// Rule 2: receiver verification.
	if !isIssuance && (to == nil || !to.Verified) {
		return deny(ReasonNotVerified)
	}

	// Rule 3: offering-specific qualification.
	if offering != nil && to != nil {
		switch offering.OfferingType {
		case OfferingRegD506C:
			if !to.Accredited {
				return deny(ReasonNotAccredited)
			}
		case OfferingRule144A:
			if !to.IsQIB {
				return deny(ReasonNotQIB)
			}
		case OfferingRegCF:
			if !to.Verified {
				return deny(ReasonNotVerified)
			}
			if offering.WouldExceedCap(amount) {
				return deny(ReasonRaiseCapExceeded)
			}
		}
	}

	// Rule 4: sender lockup.
	if !isIssuance && lock.LockedAt(now) {
		return deny(ReasonTokensLocked)
	}

	return allow()
}

// ──────────────────────────────────────────────────────────────────────────────
// EvaluateForcedTransfer
// ──────────────────────────────────────────────────────────────────────────────

// EvaluateForcedTransfer is the privileged gate path for the compliance
// authority. It bypasses verification and offering qualification but never
// sanctions. respectLockup carries the configured policy choice; when true
// the sender's lockup still blocks the transfer.
func EvaluateForcedTransfer(
	from, to *Investor,
	lock *TransferLock,
	respectLockup bool,
	now time.Time,
) Decision {
	if to != nil && to.Sanctioned {
		return deny(ReasonSanctioned)
	}
	if from != nil && from.Sanctioned {
		return deny(ReasonSanctioned)
	}
	if respectLockup && lock.LockedAt(now) {
		return deny(ReasonTokensLocked)
	}
	return allow()
}
