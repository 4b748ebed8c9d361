package domain

import (
	"errors"
	"fmt"
)

// Gasless operation error taxonomy. The facade normalizes every failure mode
// into exactly one of these sentinels so feature callers never have to
// pattern-match relay internals. Wrap with fmt.Errorf and classify with
// errors.Is.
var (
	// ErrNotConnected means no signer or address is available; the operation
	// never starts.
	ErrNotConnected = errors.New("no signer connected")

	// ErrChainMismatch means the signer is on the wrong chain and either the
	// switch negotiation failed or the user declined it. Never retried
	// automatically.
	ErrChainMismatch = errors.New("signer chain does not match forwarder chain")

	// ErrSignatureCancelled means the user declined or dismissed the signing
	// prompt. Terminal, but distinct from ErrSigningFailed so a UI can offer
	// "try again" instead of a technical message.
	ErrSignatureCancelled = errors.New("signature request cancelled")

	// ErrSigningFailed covers every signer error other than user cancellation.
	ErrSigningFailed = errors.New("signing failed")

	// ErrRelayRateLimited means the relay returned HTTP 429. Retried
	// internally with backoff; surfaced only once attempts are exhausted.
	ErrRelayRateLimited = errors.New("relay rate limited")

	// ErrRelayNonceConflict means the relay rejected the request because the
	// nonce was already consumed. Retried internally with a fresh nonce.
	ErrRelayNonceConflict = errors.New("relay nonce conflict")

	// ErrRelayRejected means the relay or forwarder rejected the request for
	// any other reason (invalid target, expired deadline, malformed
	// signature). Terminal; the relay's message is preserved verbatim.
	ErrRelayRejected = errors.New("relay rejected request")

	// ErrOnChainReverted means the relayed transaction was mined but the
	// inner call reverted. Terminal.
	ErrOnChainReverted = errors.New("inner call reverted on chain")

	// ErrConfirmationTimeout means the receipt wait exceeded its bound. The
	// outcome is UNKNOWN, not failed: the transaction may still land later.
	ErrConfirmationTimeout = errors.New("confirmation wait timed out")

	// ErrUnknownTarget means the requested contract is not in the forwarder's
	// allow-list. Rejected before any signature prompt is issued.
	ErrUnknownTarget = errors.New("target contract not allow-listed")
)

// General application errors shared across stores, caches, and services.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
	ErrInvalidInput  = errors.New("invalid input")
)

// RevertError carries the decoded revert reason of a mined-but-reverted
// relayed call. It wraps ErrOnChainReverted so errors.Is classification still
// works, while callers that care (e.g. "Order: already accepted" means the
// state is merely stale) can inspect the structured reason instead of
// substring-matching a raw RPC message.
type RevertError struct {
	Reason string // decoded Error(string) reason, empty if undecodable
	TxHash string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "inner call reverted on chain (no reason)"
	}
	return "inner call reverted on chain: " + e.Reason
}

func (e *RevertError) Unwrap() error { return ErrOnChainReverted }

// RelayError preserves the relay endpoint's verbatim error message together
// with its classification sentinel.
type RelayError struct {
	StatusCode int
	Message    string
	kind       error
}

// NewRelayError builds a RelayError wrapping the given sentinel
// (ErrRelayRateLimited, ErrRelayNonceConflict, or ErrRelayRejected).
func NewRelayError(status int, message string, kind error) *RelayError {
	return &RelayError{StatusCode: status, Message: message, kind: kind}
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RelayError) Unwrap() error { return e.kind }
