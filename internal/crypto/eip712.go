package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/openharvest/harvestd/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// ForwardRequest(address from,address to,uint256 value,uint256 gas,uint256 nonce,uint48 deadline,bytes data)
	forwardRequestTypeHash = ethcrypto.Keccak256(
		[]byte(domain.ForwarderTypeString),
	)
)

// ForwarderDomain pins a signature to one forwarder deployment: the name and
// version are fixed by the contract, chain ID and verifying contract vary per
// deployment. A signature produced under one domain is worthless against any
// other chain ID or forwarder address.
type ForwarderDomain struct {
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Separator returns the EIP-712 domain separator:
// keccak256(abi.encode(typeHash, nameHash, versionHash, chainId, verifyingContract)).
func (d ForwarderDomain) Separator() []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(domain.ForwarderDomainName)),
			ethcrypto.Keccak256([]byte(domain.ForwarderDomainVersion)),
			bigIntTo32Bytes(d.ChainID),
			common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
		),
	)
}

// StructHash encodes and hashes a ForwardRequest according to EIP-712. The
// uint48 deadline hashes as a full 32-byte word; the dynamic data field
// contributes keccak256(data).
func StructHash(req domain.ForwardRequest) []byte {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	nonce := req.Nonce
	if nonce == nil {
		nonce = new(big.Int)
	}

	return ethcrypto.Keccak256(
		concatBytes(
			forwardRequestTypeHash,
			common.LeftPadBytes(req.From.Bytes(), 32),
			common.LeftPadBytes(req.To.Bytes(), 32),
			bigIntTo32Bytes(value),
			bigIntTo32Bytes(new(big.Int).SetUint64(req.Gas)),
			bigIntTo32Bytes(nonce),
			bigIntTo32Bytes(new(big.Int).SetUint64(req.Deadline)),
			ethcrypto.Keccak256(req.Data),
		),
	)
}

// Digest computes the final EIP-712 signing digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func Digest(d ForwarderDomain, req domain.ForwardRequest) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			d.Separator(),
			StructHash(req),
		),
	)
}

// SignForwardRequest signs the request digest with the given secp256k1 key
// and returns a 65-byte r||s||v signature with v in {27,28}, the form the
// forwarder contract's ECDSA.recover expects.
func SignForwardRequest(d ForwarderDomain, req domain.ForwardRequest, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := ethcrypto.Sign(Digest(d, req), key)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign forward request: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// RecoverSigner recovers the address that produced the signature over the
// request under the given domain.
func RecoverSigner(d ForwarderDomain, req domain.ForwardRequest, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto: signature must be 65 bytes, got %d", len(sig))
	}
	// Normalize v back to {0,1} for go-ethereum's recovery.
	rsv := make([]byte, 65)
	copy(rsv, sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(Digest(d, req), rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyForwardRequest reports whether sig is a valid signature by req.From
// over req under the given domain. This mirrors the forwarder contract's
// verify() so stale or mutated requests can be caught before submission.
func VerifyForwardRequest(d ForwarderDomain, req domain.ForwardRequest, sig []byte) bool {
	addr, err := RecoverSigner(d, req, sig)
	if err != nil {
		return false
	}
	return addr == req.From
}

// TypedData renders the request as the generic EIP-712 typed-data document
// wallets consume via eth_signTypedData_v4. Hashing this document with
// go-ethereum's apitypes implementation yields the same digest as Digest; the
// two paths must stay byte-identical so the forwarder cannot tell which
// signer variant produced a signature.
func TypedData(d ForwarderDomain, req domain.ForwardRequest) apitypes.TypedData {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	nonce := req.Nonce
	if nonce == nil {
		nonce = new(big.Int)
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"ForwardRequest": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "gas", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint48"},
				{Name: "data", Type: "bytes"},
			},
		},
		PrimaryType: "ForwardRequest",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.ForwarderDomainName,
			Version:           domain.ForwarderDomainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(d.ChainID)),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":     req.From.Hex(),
			"to":       req.To.Hex(),
			"value":    value.String(),
			"gas":      new(big.Int).SetUint64(req.Gas).String(),
			"nonce":    nonce.String(),
			"deadline": new(big.Int).SetUint64(req.Deadline).String(),
			"data":     hexutil.Encode(req.Data),
		},
	}
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	padded := make([]byte, 32)
	n.FillBytes(padded)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
