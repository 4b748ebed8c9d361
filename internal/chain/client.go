// Package chain wraps the JSON-RPC connection to the marketplace's chain:
// the forwarder binding (nonces, receipt confirmation, revert decoding) and
// the read-only views the dashboards consume.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of the RPC client the chain package needs. Satisfied
// by *ethclient.Client; tests substitute fakes.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Client is a verified connection to the forwarder's deployment chain.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	logger  *slog.Logger
}

// Dial connects to rpcURL and verifies the node serves the expected chain.
// A node on the wrong chain would make every signature domain-invalid, so
// this fails fast instead of producing unverifiable requests later.
func Dial(ctx context.Context, rpcURL string, wantChainID int64, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	id, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: read chain id: %w", err)
	}
	if id.Int64() != wantChainID {
		eth.Close()
		return nil, fmt.Errorf("chain: rpc node serves chain %d, expected %d", id.Int64(), wantChainID)
	}

	logger.Info("connected to chain rpc",
		slog.String("url", rpcURL),
		slog.Int64("chain_id", wantChainID),
	)

	return &Client{eth: eth, chainID: id, logger: logger}, nil
}

// Backend returns the underlying RPC backend.
func (c *Client) Backend() Backend { return c.eth }

// ChainID returns the verified chain ID.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Close releases the RPC connection.
func (c *Client) Close() { c.eth.Close() }
