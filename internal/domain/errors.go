package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Input validation errors — always rejected before any state mutation.
var (
	// ErrAmountNotPositive is returned when an operation amount is zero or
	// negative.
	ErrAmountNotPositive = errors.New("amount must be a positive value")

	// ErrInvalidAsset is returned when the asset symbol is not in the
	// collateral registry.
	ErrInvalidAsset = errors.New("asset is not an approved collateral")
)

// Ledger errors — rejected before mutation, never produce partial debits.
var (
	// ErrInsufficientCollateral is returned when a debit would drive a
	// collateral position negative.
	ErrInsufficientCollateral = errors.New("insufficient collateral deposited")

	// ErrInsufficientDebt is returned when a debt repayment exceeds the
	// account's outstanding debt.
	ErrInsufficientDebt = errors.New("repayment exceeds outstanding debt")
)

// External-call failures — propagated immediately, aborting the whole call.
var (
	// ErrTransferFailed is returned when a token transfer into or out of
	// custody cannot be completed.
	ErrTransferFailed = errors.New("token transfer failed")

	// ErrMintFailed is returned when issuance of the stable unit fails.
	ErrMintFailed = errors.New("stable unit mint failed")

	// ErrNotAuthorized is returned when a mint or burn is attempted without
	// the engine's mint authority.
	ErrNotAuthorized = errors.New("caller lacks mint/burn authority")

	// ErrStalePrice is returned when a price reading is older than the
	// configured staleness timeout.
	ErrStalePrice = errors.New("price reading is stale")

	// ErrFeedNotFound is returned when no reading exists yet for a feed.
	ErrFeedNotFound = errors.New("price feed has no reading")
)

// Solvency violations — checked as post-conditions after tentative mutation;
// any violation unwinds every mutation performed during that call.
var (
	// ErrHealthFactorBroken is returned when a mint or redeem would leave the
	// caller's health factor below the minimum.
	ErrHealthFactorBroken = errors.New("operation would break the minimum health factor")

	// ErrHealthFactorNotImproved is returned when a liquidation fails to
	// strictly raise the target's health factor.
	ErrHealthFactorNotImproved = errors.New("liquidation did not improve the health factor")

	// ErrNotLiquidatable is returned when the liquidation target is still
	// solvent.
	ErrNotLiquidatable = errors.New("target position is not eligible for liquidation")
)

// Account / auth errors
var (
	// ErrAccountNotFound is returned when no account matches the given criteria.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmailTaken is returned on registration when the email already exists.
	ErrEmailTaken = errors.New("email address is already registered")

	// ErrUsernameTaken is returned on registration when the username already exists.
	ErrUsernameTaken = errors.New("username is already taken")

	// ErrInvalidCredentials is returned when login credentials are wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountInactive is returned when a suspended account attempts an action.
	ErrAccountInactive = errors.New("account is inactive")

	// ErrUnauthorized is returned when a valid token is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the authenticated account lacks the
	// required role.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenExpired is returned when a JWT has passed its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its
	// signature does not match.
	ErrTokenInvalid = errors.New("token is invalid")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// IsValidation returns true for input validation errors that should map to
// HTTP 400 responses.
func IsValidation(err error) bool {
	validationErrors := []error{
		ErrAmountNotPositive,
		ErrInvalidAsset,
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsSolvencyViolation returns true for errors raised by a failed post-condition
// check (the operation was structurally valid but would break solvency rules).
func IsSolvencyViolation(err error) bool {
	solvencyErrors := []error{
		ErrHealthFactorBroken,
		ErrHealthFactorNotImproved,
		ErrNotLiquidatable,
	}
	for _, target := range solvencyErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsBalanceError returns true for insufficient-balance errors on either ledger
// or the token custody layer.
func IsBalanceError(err error) bool {
	balanceErrors := []error{
		ErrInsufficientCollateral,
		ErrInsufficientDebt,
		ErrTransferFailed,
	}
	for _, target := range balanceErrors {
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
	}
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
