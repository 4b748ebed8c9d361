// Package gasless implements the client side of the marketplace's ERC-2771
// meta-transaction protocol: building forward requests, producing EIP-712
// signatures through interchangeable signer backends, and driving each
// request through the relay to on-chain confirmation.
package gasless

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/openharvest/harvestd/internal/crypto"
	"github.com/openharvest/harvestd/internal/domain"
)

// userRejectedCode is the EIP-1193 error code a wallet provider returns when
// the user dismisses a prompt.
const userRejectedCode = 4001

// Signer produces an EIP-712 signature over a forward request. The two
// implementations (embedded key, external wallet) must yield byte-identical
// signature semantics so the forwarder's verification cannot tell them apart.
type Signer interface {
	// Address is the logical sender whose nonce the request consumes.
	Address() common.Address

	// SignForwardRequest signs the request under the forwarder's domain. It
	// returns domain.ErrSignatureCancelled (wrapped) when the user dismissed
	// an interactive prompt, and domain.ErrSigningFailed for anything else.
	// May block on user interaction for an unbounded time; honor ctx.
	SignForwardRequest(ctx context.Context, req domain.ForwardRequest) ([]byte, error)
}

// ChainAware is implemented by signers whose active chain can drift from the
// forwarder's deployment chain (external wallets). Fixed-chain signers omit
// it and skip the chain-affinity check entirely.
type ChainAware interface {
	ActiveChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
}

// --------------------------------------------------------------------------
// Embedded signer: an in-process key, bound to one chain by construction.
// --------------------------------------------------------------------------

// LocalSigner signs with a key held in this process (the custodial/embedded
// variant). It never prompts and is pinned to the forwarder's chain, so the
// chain-affinity guard has nothing to check.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	domain  crypto.ForwarderDomain
}

// NewLocalSigner creates a LocalSigner for the given forwarder domain.
func NewLocalSigner(key *ecdsa.PrivateKey, dom crypto.ForwarderDomain) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		domain:  dom,
	}
}

// Address returns the address derived from the signer's key.
func (s *LocalSigner) Address() common.Address { return s.address }

// SignForwardRequest signs the request digest directly.
func (s *LocalSigner) SignForwardRequest(_ context.Context, req domain.ForwardRequest) ([]byte, error) {
	sig, err := crypto.SignForwardRequest(s.domain, req, s.key)
	if err != nil {
		return nil, fmt.Errorf("gasless: local signer: %w: %w", domain.ErrSigningFailed, err)
	}
	return sig, nil
}

// --------------------------------------------------------------------------
// External wallet signer: delegates to a wallet provider over JSON-RPC.
// --------------------------------------------------------------------------

// WalletSigner delegates typed-data signing to a connected wallet provider
// via eth_signTypedData_v4. Signing may suspend on an interactive approval
// prompt; the user dismissing it is surfaced as ErrSignatureCancelled,
// distinct from provider failures.
type WalletSigner struct {
	client  *rpc.Client
	address common.Address
	domain  crypto.ForwarderDomain
	logger  *slog.Logger
}

// NewWalletSigner connects to the wallet provider's RPC endpoint for the
// given account.
func NewWalletSigner(ctx context.Context, providerURL string, address common.Address, dom crypto.ForwarderDomain, logger *slog.Logger) (*WalletSigner, error) {
	client, err := rpc.DialContext(ctx, providerURL)
	if err != nil {
		return nil, fmt.Errorf("gasless: dial wallet provider: %w", err)
	}
	return &WalletSigner{
		client:  client,
		address: address,
		domain:  dom,
		logger:  logger.With(slog.String("component", "wallet_signer")),
	}, nil
}

// Address returns the connected account.
func (s *WalletSigner) Address() common.Address { return s.address }

// SignForwardRequest renders the request as EIP-712 typed data and asks the
// wallet to sign it. The wallet hashes independently, so the typed-data
// document must reproduce exactly the digest the embedded path computes.
func (s *WalletSigner) SignForwardRequest(ctx context.Context, req domain.ForwardRequest) ([]byte, error) {
	td := crypto.TypedData(s.domain, req)
	payload, err := json.Marshal(td)
	if err != nil {
		return nil, fmt.Errorf("gasless: marshal typed data: %w: %w", domain.ErrSigningFailed, err)
	}

	var sigHex string
	err = s.client.CallContext(ctx, &sigHex, "eth_signTypedData_v4", s.address.Hex(), json.RawMessage(payload))
	if err != nil {
		if isUserRejection(err) {
			return nil, fmt.Errorf("gasless: wallet signer: %w", domain.ErrSignatureCancelled)
		}
		return nil, fmt.Errorf("gasless: wallet signer: %w: %w", domain.ErrSigningFailed, err)
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return nil, fmt.Errorf("gasless: decode wallet signature: %w: %w", domain.ErrSigningFailed, err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("gasless: wallet signature is %d bytes, want 65: %w", len(sig), domain.ErrSigningFailed)
	}
	// Some providers return v in {0,1}; the forwarder expects {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// ActiveChainID reports the chain the wallet is currently connected to.
func (s *WalletSigner) ActiveChainID(ctx context.Context) (*big.Int, error) {
	var idHex hexutil.Big
	if err := s.client.CallContext(ctx, &idHex, "eth_chainId"); err != nil {
		return nil, fmt.Errorf("gasless: read wallet chain id: %w", err)
	}
	return (*big.Int)(&idHex), nil
}

// SwitchChain asks the wallet to move to the given chain. The user may
// decline; the caller (the chain guard) classifies that outcome.
func (s *WalletSigner) SwitchChain(ctx context.Context, chainID *big.Int) error {
	params := map[string]string{"chainId": hexutil.EncodeBig(chainID)}
	var result any
	if err := s.client.CallContext(ctx, &result, "wallet_switchEthereumChain", params); err != nil {
		if isUserRejection(err) {
			return fmt.Errorf("gasless: chain switch declined by user: %w", err)
		}
		return fmt.Errorf("gasless: chain switch failed: %w", err)
	}
	s.logger.Info("wallet switched chain", slog.String("chain_id", chainID.String()))
	return nil
}

// Close releases the provider connection.
func (s *WalletSigner) Close() { s.client.Close() }

// isUserRejection detects the EIP-1193 "user rejected request" error code.
func isUserRejection(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode
}

// Compile-time interface checks.
var (
	_ Signer     = (*LocalSigner)(nil)
	_ Signer     = (*WalletSigner)(nil)
	_ ChainAware = (*WalletSigner)(nil)
)
