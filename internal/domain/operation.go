package domain

import "time"

// OperationState is the per-invocation state of a gasless operation as it
// moves through the facade. Failed and Succeeded are terminal; a fresh
// invocation always re-enters at Idle.
type OperationState string

const (
	OpIdle              OperationState = "idle"
	OpCheckingChain     OperationState = "checking-chain"
	OpReadingNonce      OperationState = "reading-nonce"
	OpAwaitingSignature OperationState = "awaiting-signature"
	OpSubmitting        OperationState = "submitting"
	OpConfirming        OperationState = "confirming"
	OpSucceeded         OperationState = "succeeded"
	OpFailed            OperationState = "failed"
)

// Terminal reports whether the state ends the invocation.
func (s OperationState) Terminal() bool {
	return s == OpSucceeded || s == OpFailed
}

// ErrorKind is the taxonomy bucket recorded for a failed operation, matching
// the sentinel that terminated it.
type ErrorKind string

const (
	ErrKindNone                ErrorKind = ""
	ErrKindNotConnected        ErrorKind = "not_connected"
	ErrKindChainMismatch       ErrorKind = "chain_mismatch"
	ErrKindSignatureCancelled  ErrorKind = "signature_cancelled"
	ErrKindSigningFailed       ErrorKind = "signing_failed"
	ErrKindRelayRateLimited    ErrorKind = "relay_rate_limited"
	ErrKindRelayNonceConflict  ErrorKind = "relay_nonce_conflict"
	ErrKindRelayRejected       ErrorKind = "relay_rejected"
	ErrKindOnChainReverted     ErrorKind = "on_chain_reverted"
	ErrKindConfirmationTimeout ErrorKind = "confirmation_timeout"
	ErrKindUnknownTarget       ErrorKind = "unknown_target"
)

// Operation is the audit record of one facade invocation. Requests themselves
// are never persisted (they are single-use and discarded); the record captures
// what a dashboard or an operator needs after the fact.
type Operation struct {
	ID          string
	Signer      string // 0x address of the logical sender
	Target      Target
	Function    string
	State       OperationState
	Attempts    int
	TxHash      string
	ErrorKind   ErrorKind
	ErrorDetail string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// OperationEvent is the payload broadcast to dashboard subscribers on every
// state transition.
type OperationEvent struct {
	OperationID string         `json:"operation_id"`
	Signer      string         `json:"signer"`
	Target      Target         `json:"target"`
	Function    string         `json:"function"`
	State       OperationState `json:"state"`
	Attempt     int            `json:"attempt"`
	TxHash      string         `json:"tx_hash,omitempty"`
	ErrorKind   ErrorKind      `json:"error_kind,omitempty"`
	Error       string         `json:"error,omitempty"`
	At          time.Time      `json:"at"`
}
