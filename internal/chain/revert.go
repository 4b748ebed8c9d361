package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// rpcDataError is implemented by go-ethereum RPC errors that carry the
// revert payload returned by the node.
type rpcDataError interface {
	Error() string
	ErrorData() interface{}
}

// RevertReason recovers the revert reason of a mined-but-failed transaction
// by replaying it as an eth_call at its mined block and decoding the
// Error(string) payload. This replaces substring-matching of RPC error
// messages: callers get the contract's actual reason (e.g. "Order: already
// accepted") or an empty string when the revert carried no reason or a
// custom error selector.
func (f *Forwarder) RevertReason(ctx context.Context, receipt *types.Receipt) (string, error) {
	if receipt.Status == types.ReceiptStatusSuccessful {
		return "", nil
	}

	tx, _, err := f.backend.TransactionByHash(ctx, receipt.TxHash)
	if err != nil {
		return "", fmt.Errorf("chain: fetch tx %s: %w", receipt.TxHash.Hex(), err)
	}

	chainID, err := f.backend.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("chain: read chain id: %w", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return "", fmt.Errorf("chain: recover tx sender: %w", err)
	}

	msg := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}

	_, callErr := f.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if callErr == nil {
		// Replay succeeded: state has moved since the block, no reason
		// recoverable.
		return "", nil
	}

	return decodeRevertData(callErr), nil
}

// decodeRevertData extracts an Error(string) reason from an RPC error, if
// the node attached revert data.
func decodeRevertData(err error) string {
	de, ok := err.(rpcDataError)
	if !ok {
		return ""
	}

	var payload []byte
	switch data := de.ErrorData().(type) {
	case string:
		b, decErr := hexutil.Decode(data)
		if decErr != nil {
			return ""
		}
		payload = b
	case []byte:
		payload = data
	default:
		return ""
	}

	reason, unpackErr := abi.UnpackRevert(payload)
	if unpackErr != nil {
		// Custom error selector or malformed payload; surface the raw
		// selector for debugging.
		if len(payload) >= 4 {
			return "custom error " + hexutil.Encode(payload[:4])
		}
		return ""
	}
	return reason
}

// UnpackRevertPayload decodes a raw revert payload (as found in trace or
// debug output) into its Error(string) reason. Exposed for tests and tooling.
func UnpackRevertPayload(payload []byte) (string, error) {
	reason, err := abi.UnpackRevert(payload)
	if err != nil {
		return "", fmt.Errorf("chain: unpack revert: %w", err)
	}
	return reason, nil
}
