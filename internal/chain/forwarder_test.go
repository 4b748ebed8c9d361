package chain

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/openharvest/harvestd/internal/domain"
)

var (
	forwarderAddr = common.HexToAddress("0x00000000000000000000000000000000000000F1")
	signerAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	someTxHash    = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
)

// fakeBackend scripts the RPC responses the forwarder binding reads.
type fakeBackend struct {
	nonce *big.Int

	receipt        *types.Receipt
	receiptPending int // NotFound responses before the receipt appears
	receiptCalls   int

	lastCall ethereum.CallMsg
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(80002), nil
}

func (b *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.lastCall = msg
	out := make([]byte, 32)
	b.nonce.FillBytes(out)
	return out, nil
}

func (b *fakeBackend) TransactionByHash(context.Context, common.Hash) (*types.Transaction, bool, error) {
	return nil, false, errors.New("not scripted")
}

func (b *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	b.receiptCalls++
	if b.receiptCalls <= b.receiptPending || b.receipt == nil {
		return nil, ethereum.NotFound
	}
	return b.receipt, nil
}

func TestNonces(t *testing.T) {
	backend := &fakeBackend{nonce: big.NewInt(42)}
	f := NewForwarder(backend, forwarderAddr, 0, slog.Default())

	nonce, err := f.Nonces(context.Background(), signerAddr)
	require.NoError(t, err)
	require.Equal(t, int64(42), nonce.Int64())

	// The read must hit nonces(signer) on the forwarder contract.
	require.NotNil(t, backend.lastCall.To)
	require.Equal(t, forwarderAddr, *backend.lastCall.To)
	want, err := ForwarderABI.Pack("nonces", signerAddr)
	require.NoError(t, err)
	require.Equal(t, want, backend.lastCall.Data)
}

func TestWaitMinedPollsUntilReceipt(t *testing.T) {
	backend := &fakeBackend{
		receipt:        &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: someTxHash},
		receiptPending: 2,
	}
	f := NewForwarder(backend, forwarderAddr, 5*time.Second, slog.Default()).
		WithPollInterval(time.Millisecond)

	receipt, err := f.WaitMined(context.Background(), someTxHash)
	require.NoError(t, err)
	require.Same(t, backend.receipt, receipt)
	require.Equal(t, 3, backend.receiptCalls)
}

// Exceeding the receipt bound is an UNKNOWN outcome, reported through the
// confirmation-timeout sentinel rather than a generic error.
func TestWaitMinedTimeout(t *testing.T) {
	backend := &fakeBackend{} // receipt never appears
	f := NewForwarder(backend, forwarderAddr, 30*time.Millisecond, slog.Default()).
		WithPollInterval(5 * time.Millisecond)

	_, err := f.WaitMined(context.Background(), someTxHash)
	require.ErrorIs(t, err, domain.ErrConfirmationTimeout)
}

// Caller cancellation is not a confirmation timeout.
func TestWaitMinedContextCancelled(t *testing.T) {
	backend := &fakeBackend{}
	f := NewForwarder(backend, forwarderAddr, time.Minute, slog.Default()).
		WithPollInterval(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.WaitMined(ctx, someTxHash)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, domain.ErrConfirmationTimeout)
}

func errorStringPayload(t *testing.T, reason string) []byte {
	t.Helper()
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	encoded, err := abi.Arguments{{Type: strType}}.Pack(reason)
	require.NoError(t, err)
	// 0x08c379a0 is the Error(string) selector.
	return append(common.Hex2Bytes("08c379a0"), encoded...)
}

func TestUnpackRevertPayload(t *testing.T) {
	reason, err := UnpackRevertPayload(errorStringPayload(t, "Order: not found"))
	require.NoError(t, err)
	require.Equal(t, "Order: not found", reason)

	_, err = UnpackRevertPayload([]byte{0x01, 0x02})
	require.Error(t, err)
}

type fakeDataErr struct{ data any }

func (e fakeDataErr) Error() string          { return "execution reverted" }
func (e fakeDataErr) ErrorData() interface{} { return e.data }

func TestDecodeRevertData(t *testing.T) {
	payload := errorStringPayload(t, "Listing: not active")

	require.Equal(t, "Listing: not active",
		decodeRevertData(fakeDataErr{data: hexutil.Encode(payload)}))
	require.Equal(t, "Listing: not active",
		decodeRevertData(fakeDataErr{data: payload}))

	// Custom error selectors surface raw for debugging.
	require.Equal(t, "custom error 0xdeadbeef",
		decodeRevertData(fakeDataErr{data: common.Hex2Bytes("deadbeef")}))

	require.Empty(t, decodeRevertData(fakeDataErr{data: 42}))
	require.Empty(t, decodeRevertData(errors.New("no data attached")))
}
