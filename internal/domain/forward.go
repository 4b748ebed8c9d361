package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Target identifies one of the allow-listed contracts the forwarder is
// willing to relay to. Any other destination is rejected client-side before a
// signature prompt is ever issued.
type Target string

const (
	TargetMarketplace        Target = "marketplace"
	TargetAmbassadorRewards  Target = "ambassador_rewards"
	TargetDisputeResolution  Target = "dispute_resolution"
	TargetGovernmentRequests Target = "government_requests"
)

// AllTargets lists every target the forwarder relays to, in a stable order.
var AllTargets = []Target{
	TargetMarketplace,
	TargetAmbassadorRewards,
	TargetDisputeResolution,
	TargetGovernmentRequests,
}

// ForwardRequest is the unit of gasless intent: the seven fields covered by
// the EIP-712 signature under the forwarder's domain. A request is immutable
// once signed — mutating any field invalidates the signature — and is used
// exactly once, success or terminal failure.
type ForwardRequest struct {
	// From is the logical sender whose nonce and authorization the request
	// consumes. Not necessarily the key that pays gas.
	From common.Address

	// To is the target contract. Must be allow-listed.
	To common.Address

	// Value is the native-currency amount forwarded with the call. Always
	// zero in this system; kept explicit because it is part of the signed
	// payload.
	Value *big.Int

	// Gas is the gas budget for the inner call.
	Gas uint64

	// Nonce is the forwarder's replay counter for From, read fresh from
	// chain immediately before signing.
	Nonce *big.Int

	// Deadline is the Unix timestamp (uint48 on chain) after which the
	// forwarder rejects the request even with a valid signature.
	Deadline uint64

	// Data is the ABI-encoded inner call: selector plus arguments.
	Data []byte
}

// Expired reports whether the request's deadline has passed at the given time.
func (r ForwardRequest) Expired(now time.Time) bool {
	return uint64(now.Unix()) > r.Deadline
}

// ForwarderTypeString is the canonical EIP-712 type string the forwarder
// contract verifies against. The uint48 deadline is part of the type even
// though it hashes as a 32-byte word.
const ForwarderTypeString = "ForwardRequest(address from,address to,uint256 value,uint256 gas,uint256 nonce,uint48 deadline,bytes data)"

// Forwarder EIP-712 domain constants. chainId and verifyingContract complete
// the domain per deployment.
const (
	ForwarderDomainName    = "ERC2771Forwarder"
	ForwarderDomainVersion = "1"
)
