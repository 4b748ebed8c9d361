package crypto

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"github.com/openharvest/harvestd/internal/domain"
)

func testDomain() ForwarderDomain {
	return ForwarderDomain{
		ChainID:           big.NewInt(80002),
		VerifyingContract: common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}
}

func testRequest() domain.ForwardRequest {
	return domain.ForwardRequest{
		From:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
		To:       common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Value:    big.NewInt(0),
		Gas:      150_000,
		Nonce:    big.NewInt(7),
		Deadline: uint64(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC).Unix()),
		Data:     common.FromHex("0xdeadbeef"),
	}
}

// The embedded signing path and the wallet typed-data path must hash to the
// same digest, otherwise signatures from one backend fail verification against
// the forwarder while the other's pass.
func TestDigestMatchesTypedDataHash(t *testing.T) {
	d := testDomain()
	req := testRequest()

	want, _, err := apitypes.TypedDataAndHash(TypedData(d, req))
	require.NoError(t, err)
	require.Equal(t, want, Digest(d, req))
}

func TestDigestMatchesTypedDataHashEmptyData(t *testing.T) {
	d := testDomain()
	req := testRequest()
	req.Data = nil

	want, _, err := apitypes.TypedDataAndHash(TypedData(d, req))
	require.NoError(t, err)
	require.Equal(t, want, Digest(d, req))
}

func TestSignRecoverRoundTrip(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(key.PublicKey)

	d := testDomain()
	req := testRequest()
	req.From = addr

	sig, err := SignForwardRequest(d, req, key)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.True(t, sig[64] == 27 || sig[64] == 28, "v must be 27 or 28, got %d", sig[64])

	recovered, err := RecoverSigner(d, req, sig)
	require.NoError(t, err)
	require.Equal(t, addr, recovered)

	require.True(t, VerifyForwardRequest(d, req, sig))
}

// Any mutation of a signed request must invalidate the signature: the request
// is immutable once signed.
func TestVerifyRejectsMutatedRequest(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	d := testDomain()
	req := testRequest()
	req.From = ethcrypto.PubkeyToAddress(key.PublicKey)

	sig, err := SignForwardRequest(d, req, key)
	require.NoError(t, err)
	require.True(t, VerifyForwardRequest(d, req, sig))

	mutations := map[string]func(r *domain.ForwardRequest){
		"to":       func(r *domain.ForwardRequest) { r.To = common.HexToAddress("0x4444444444444444444444444444444444444444") },
		"value":    func(r *domain.ForwardRequest) { r.Value = big.NewInt(1) },
		"gas":      func(r *domain.ForwardRequest) { r.Gas++ },
		"nonce":    func(r *domain.ForwardRequest) { r.Nonce = big.NewInt(8) },
		"deadline": func(r *domain.ForwardRequest) { r.Deadline++ },
		"data":     func(r *domain.ForwardRequest) { r.Data = common.FromHex("0xdeadbeee") },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			mutated := req
			mutate(&mutated)
			require.False(t, VerifyForwardRequest(d, mutated, sig))
		})
	}
}

// A signature is pinned to one forwarder deployment: a different chain ID or
// verifying contract yields a different domain separator.
func TestVerifyRejectsForeignDomain(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	d := testDomain()
	req := testRequest()
	req.From = ethcrypto.PubkeyToAddress(key.PublicKey)

	sig, err := SignForwardRequest(d, req, key)
	require.NoError(t, err)

	otherChain := d
	otherChain.ChainID = big.NewInt(137)
	require.False(t, VerifyForwardRequest(otherChain, req, sig))

	otherContract := d
	otherContract.VerifyingContract = common.HexToAddress("0x9999999999999999999999999999999999999999")
	require.False(t, VerifyForwardRequest(otherContract, req, sig))
}

func TestRecoverSignerRejectsBadLength(t *testing.T) {
	_, err := RecoverSigner(testDomain(), testRequest(), make([]byte, 64))
	require.Error(t, err)
	require.Contains(t, err.Error(), "65 bytes")
}

// Nil Value and Nonce hash like explicit zeros so callers never have to
// special-case unset big.Ints.
func TestStructHashNilBigIntsAsZero(t *testing.T) {
	req := testRequest()
	req.Value = big.NewInt(0)
	req.Nonce = big.NewInt(0)
	explicit := StructHash(req)

	req.Value = nil
	req.Nonce = nil
	require.Equal(t, explicit, StructHash(req))
}
