package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/openharvest/harvestd/internal/domain"
)

const (
	// defaultReceiptTimeout bounds the wait for a relayed transaction to be
	// mined. Exceeding it means UNKNOWN outcome, not failure.
	defaultReceiptTimeout = 60 * time.Second

	// receiptPollInterval is how often the receipt is re-queried while
	// waiting for confirmation.
	receiptPollInterval = 2 * time.Second
)

// Forwarder is the client-side binding to the ERC-2771 forwarder contract.
// From this subsystem's perspective it is read-only: the relay server is the
// one that calls execute(); we read nonces and watch for receipts.
type Forwarder struct {
	backend        Backend
	address        common.Address
	receiptTimeout time.Duration
	pollInterval   time.Duration
	logger         *slog.Logger
}

// NewForwarder creates a forwarder binding. receiptTimeout <= 0 selects the
// default 60s bound.
func NewForwarder(backend Backend, address common.Address, receiptTimeout time.Duration, logger *slog.Logger) *Forwarder {
	if receiptTimeout <= 0 {
		receiptTimeout = defaultReceiptTimeout
	}
	return &Forwarder{
		backend:        backend,
		address:        address,
		receiptTimeout: receiptTimeout,
		pollInterval:   receiptPollInterval,
		logger:         logger.With(slog.String("component", "forwarder")),
	}
}

// Address returns the forwarder contract address.
func (f *Forwarder) Address() common.Address { return f.address }

// WithPollInterval overrides how often the receipt is re-queried while
// waiting for confirmation.
func (f *Forwarder) WithPollInterval(d time.Duration) *Forwarder {
	if d > 0 {
		f.pollInterval = d
	}
	return f
}

// Nonces reads the current replay-protection counter for signer from the
// forwarder contract. Callers must re-read immediately before every signing
// attempt: a nonce cached across attempts is invalid the moment any
// transaction from that signer lands, including one submitted by a parallel
// client instance.
func (f *Forwarder) Nonces(ctx context.Context, signer common.Address) (*big.Int, error) {
	input, err := ForwarderABI.Pack("nonces", signer)
	if err != nil {
		return nil, fmt.Errorf("chain: pack nonces call: %w", err)
	}

	out, err := f.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &f.address,
		Data: input,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: read nonce for %s: %w", signer.Hex(), err)
	}

	results, err := ForwarderABI.Unpack("nonces", out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack nonce: %w", err)
	}
	nonce, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: unexpected nonce type %T", results[0])
	}
	return nonce, nil
}

// WaitMined polls for the transaction's receipt until it is mined or the
// receipt timeout elapses. A timeout returns domain.ErrConfirmationTimeout:
// the transaction may still land later, so callers must treat it as unknown
// rather than failed.
func (f *Forwarder) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, f.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := f.backend.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			// Transient RPC errors are logged but not fatal; the next poll
			// may succeed within the bound.
			f.logger.Debug("receipt poll error",
				slog.String("tx", txHash.Hex()),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, fmt.Errorf("chain: wait for %s: %w", txHash.Hex(), ctx.Err())
			}
			return nil, fmt.Errorf("chain: wait for %s after %s: %w",
				txHash.Hex(), f.receiptTimeout, domain.ErrConfirmationTimeout)
		case <-ticker.C:
		}
	}
}
