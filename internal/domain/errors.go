package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Validation errors — malformed input; the call aborts with no state change.
var (
	// ErrZeroAddress is returned when an operation references the zero/system
	// account where a real participant is required.
	ErrZeroAddress = errors.New("investor address must not be zero")

	// ErrZeroAmount is returned when an amount or quantity is zero or negative.
	ErrZeroAmount = errors.New("amount must be greater than zero")

	// ErrInvalidDoc is returned when an issuance document reference is empty
	// or malformed.
	ErrInvalidDoc = errors.New("invalid issuance document reference")

	// ErrInvalidDate is returned when a date ordering precondition fails
	// (expiration before effective date, value date in the past).
	ErrInvalidDate = errors.New("invalid date ordering")

	// ErrInvalidNotional is returned when a derivative notional is zero or
	// negative.
	ErrInvalidNotional = errors.New("notional must be greater than zero")

	// ErrInvalidCurrency is returned when a currency code is not a 3-letter
	// ISO 4217 code.
	ErrInvalidCurrency = errors.New("currency must be a 3-letter ISO code")

	// ErrInvalidLEI is returned when a counterparty identifier is not a
	// well-formed 20-character LEI.
	ErrInvalidLEI = errors.New("counterparty LEI is malformed")

	// ErrInvalidUTI is returned when a trade's unique transaction identifier
	// is missing.
	ErrInvalidUTI = errors.New("unique transaction identifier is required")

	// ErrEmptyJustification is returned when a forced transfer is attempted
	// without an audit justification.
	ErrEmptyJustification = errors.New("forced transfer requires a justification")
)

// Compliance violations — surfaced with a machine-readable reason code, never
// silently retried.
var (
	// ErrSanctioned is returned when either party of a transfer is sanctioned.
	ErrSanctioned = errors.New("participant is sanctioned")

	// ErrNotVerified is returned when the receiving investor has not passed
	// KYC verification.
	ErrNotVerified = errors.New("investor is not verified")

	// ErrNotAccredited is returned for REG_D_506C transfers to a
	// non-accredited investor.
	ErrNotAccredited = errors.New("investor is not accredited")

	// ErrNotQIB is returned for RULE_144A transfers to an investor that is
	// not a qualified institutional buyer.
	ErrNotQIB = errors.New("investor is not a qualified institutional buyer")

	// ErrTokensLocked is returned while the sender's lockup period is active.
	ErrTokensLocked = errors.New("tokens are locked")

	// ErrRaiseCapExceeded is returned when a REG_CF issuance would exceed the
	// offering's maximum raise amount.
	ErrRaiseCapExceeded = errors.New("offering raise cap exceeded")
)

// Not-found errors — fatal to the call.
var (
	// ErrInvestorNotFound is returned when no investor matches the given id.
	ErrInvestorNotFound = errors.New("investor not found")

	// ErrHoldingNotFound is returned when the investor has no ledger holding.
	ErrHoldingNotFound = errors.New("holding not found")

	// ErrOfferingNotFound is returned when no offering matches the asset.
	ErrOfferingNotFound = errors.New("offering not found")

	// ErrSettlementNotFound is returned when no settlement matches the id.
	ErrSettlementNotFound = errors.New("settlement not found")

	// ErrNoCustodialAccount is returned when a settlement party has no linked
	// custodial account.
	ErrNoCustodialAccount = errors.New("participant has no custodial account")

	// ErrPositionNotFound is returned when no custodial position exists for
	// the (investor, asset) pair.
	ErrPositionNotFound = errors.New("custodial position not found")

	// ErrIssuanceNotFound is returned when no issuance record matches the id.
	ErrIssuanceNotFound = errors.New("issuance not found")

	// ErrDerivativeNotFound is returned when no trade matches the UTI.
	ErrDerivativeNotFound = errors.New("derivative trade not found")

	// ErrVerificationRequestNotFound is returned when a callback references
	// an unknown (or expired) verification request id.
	ErrVerificationRequestNotFound = errors.New("verification request not found")

	// ErrUserNotFound is returned when no user matches the given criteria.
	ErrUserNotFound = errors.New("user not found")
)

// Conflict errors — fatal to the call; recoverable by choosing a different
// key or waiting for the correct state.
var (
	// ErrDerivativeAlreadyReported is returned when the UTI already exists.
	ErrDerivativeAlreadyReported = errors.New("derivative already reported for this UTI")

	// ErrAlreadyVerified is returned when a verification request is opened
	// for an investor that is already verified (and refresh was not set).
	ErrAlreadyVerified = errors.New("investor is already verified")

	// ErrInvalidSettlementStatus is returned when a lifecycle method is
	// called in the wrong state. Settlement and position state are untouched.
	ErrInvalidSettlementStatus = errors.New("invalid settlement status for this operation")

	// ErrOfferingFinalized is returned when issuing against a finalized
	// offering.
	ErrOfferingFinalized = errors.New("offering is finalized")

	// ErrInsufficientBalance is returned when a debit would take a holding
	// below zero.
	ErrInsufficientBalance = errors.New("insufficient ledger balance")

	// ErrInsufficientAvailable is returned when blocking more than the
	// position's available quantity.
	ErrInsufficientAvailable = errors.New("insufficient available position")

	// ErrEmailTaken is returned on registration when the email already exists.
	ErrEmailTaken = errors.New("email address is already registered")
)

// Resource-limit errors — the whole call is rejected before any partial
// processing.
var (
	// ErrBatchTooLarge is returned when a derivative batch exceeds the
	// configured cap.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")

	// ErrBatchMismatched is returned when parallel batch arrays differ in
	// length.
	ErrBatchMismatched = errors.New("batch arrays have mismatched lengths")

	// ErrTooManyUnderlyings is returned when a position report references
	// more underlying trades than the configured cap.
	ErrTooManyUnderlyings = errors.New("too many underlying trades")
)

// External-data errors.
var (
	// ErrStaleValuation is returned when the valuation feed's last update is
	// older than the configured staleness threshold.
	ErrStaleValuation = errors.New("valuation data is stale")
)

// Auth errors
var (
	// ErrUnauthorized is returned when a valid token is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the authenticated user lacks the required
	// capability.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenExpired is returned when a JWT has passed its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its
	// signature does not match.
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrInvalidCredentials is returned when login credentials are wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUserInactive is returned when a suspended user attempts an action.
	ErrUserInactive = errors.New("user account is inactive")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects all "entity not found" sentinel errors so that
// IsNotFound can stay in sync automatically.
var notFoundErrors = []error{
	ErrInvestorNotFound,
	ErrHoldingNotFound,
	ErrIssuanceNotFound,
	ErrOfferingNotFound,
	ErrSettlementNotFound,
	ErrPositionNotFound,
	ErrDerivativeNotFound,
	ErrVerificationRequestNotFound,
	ErrUserNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors. Use this instead of comparing error values
// directly when translating domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidation returns true for malformed-input errors that map to HTTP 400.
func IsValidation(err error) bool {
	validationErrors := []error{
		ErrZeroAddress,
		ErrZeroAmount,
		ErrInvalidDoc,
		ErrInvalidDate,
		ErrInvalidNotional,
		ErrInvalidCurrency,
		ErrInvalidLEI,
		ErrInvalidUTI,
		ErrEmptyJustification,
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsComplianceViolation returns true for gate denials. These are audited and
// never retried automatically.
func IsComplianceViolation(err error) bool {
	complianceErrors := []error{
		ErrSanctioned,
		ErrNotVerified,
		ErrNotAccredited,
		ErrNotQIB,
		ErrTokensLocked,
		ErrRaiseCapExceeded,
	}
	for _, target := range complianceErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict (e.g.
// duplicate UTI or an out-of-order settlement transition).
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrDerivativeAlreadyReported,
		ErrAlreadyVerified,
		ErrInvalidSettlementStatus,
		ErrOfferingFinalized,
		ErrInsufficientBalance,
		ErrInsufficientAvailable,
		ErrEmailTaken,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsResourceLimit returns true for bounded-cost rejections (batch caps).
func IsResourceLimit(err error) bool {
	limitErrors := []error{
		ErrBatchTooLarge,
		ErrBatchMismatched,
		ErrTooManyUnderlyings,
	}
	for _, target := range limitErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	authErrors := []error{
		ErrUnauthorized,
		ErrForbidden,
		ErrTokenExpired,
		ErrTokenInvalid,
		ErrInvalidCredentials,
		ErrUserInactive,
	}
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
