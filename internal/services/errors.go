package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownVault means the vault id is not configured or disabled.
	ErrUnknownVault = errors.New("unknown or disabled vault")

	// ErrMissingNativeAddress blocks a redeem submission when no prior mint
	// request exists to supply the native recipient address. It never blocks
	// burn validation itself.
	ErrMissingNativeAddress = errors.New("no prior mint request found for this vault")

	// ErrAlreadyRedeemed means the burn transaction hash was already used.
	ErrAlreadyRedeemed = errors.New("burn transaction already redeemed")

	// ErrInvalidBurnHash means the burn hash failed the shape sanity check.
	ErrInvalidBurnHash = errors.New("invalid burn transaction hash")

	// ErrNotReadyToMint means the request has not passed both the
	// verification and the admin whitelist gate.
	ErrNotReadyToMint = errors.New("mint request is not verified and whitelisted")

	// ErrInvalidTransition means the requested status change would move the
	// request backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMintInFlight means the mint transaction was broadcast but its
	// receipt was not observed before the deadline. The request keeps its
	// in-flight marker and must be reconciled, not assumed failed.
	ErrMintInFlight = errors.New("mint transaction broadcast, receipt pending reconciliation")

	// ErrNothingToReconcile means reconciliation was requested for a record
	// with no broadcast transaction outstanding.
	ErrNothingToReconcile = errors.New("no in-flight mint transaction to reconcile")
)

// ValidationError reports a missing or malformed required field. It is
// resolved synchronously at the boundary with a field-level message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("invalid field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// ContractCallError wraps an on-chain execution failure. Revert reasons are
// surfaced verbatim when the chain provides one, otherwise Reason is empty
// and callers fall back to a generic message.
type ContractCallError struct {
	TxHash string
	Reason string
	Err    error
}

func (e *ContractCallError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("contract call reverted: %s", e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("contract call failed: %v", e.Err)
	}
	return "contract call failed"
}

func (e *ContractCallError) Unwrap() error { return e.Err }
