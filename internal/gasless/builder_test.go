package gasless

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/openharvest/harvestd/internal/chain"
	"github.com/openharvest/harvestd/internal/crypto"
	"github.com/openharvest/harvestd/internal/domain"
)

var (
	testFrom        = common.HexToAddress("0xAAAAaaaaAAAAAAAAaaaaAAaaaaAAAAaaaaaAAaA1")
	marketplaceAddr = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	disputeAddr     = common.HexToAddress("0x00000000000000000000000000000000000000A2")
)

func testBuilder(window time.Duration) *Builder {
	return NewBuilder(map[domain.Target]TargetBinding{
		domain.TargetMarketplace: {
			Address: marketplaceAddr,
			ABI:     chain.MarketplaceABI,
		},
		domain.TargetDisputeResolution: {
			Address: disputeAddr,
			ABI:     chain.DisputeResolutionABI,
		},
	}, window)
}

func TestBuildRejectsUnknownTarget(t *testing.T) {
	b := testBuilder(0)

	_, err := b.Build(testFrom, big.NewInt(0), Call{
		Target:   domain.TargetAmbassadorRewards,
		Function: "claimRewards",
	})
	require.ErrorIs(t, err, domain.ErrUnknownTarget)
}

func TestBuildRejectsBadArguments(t *testing.T) {
	b := testBuilder(0)

	// acceptOrder takes a uint256, not a string.
	_, err := b.Build(testFrom, big.NewInt(0), Call{
		Target:   domain.TargetMarketplace,
		Function: "acceptOrder",
		Args:     []any{"not-a-number"},
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrUnknownTarget)
}

func TestBuildEncodesCall(t *testing.T) {
	b := testBuilder(0)

	req, err := b.Build(testFrom, big.NewInt(3), Call{
		Target:   domain.TargetMarketplace,
		Function: "createOrder",
		Args:     []any{big.NewInt(12), big.NewInt(5)},
	})
	require.NoError(t, err)

	want, err := chain.MarketplaceABI.Pack("createOrder", big.NewInt(12), big.NewInt(5))
	require.NoError(t, err)

	require.Equal(t, testFrom, req.From)
	require.Equal(t, marketplaceAddr, req.To)
	require.Equal(t, want, req.Data)
	require.NotNil(t, req.Value)
	require.Zero(t, req.Value.Sign())
}

func TestBuildGasBudgets(t *testing.T) {
	b := testBuilder(0)

	cases := []struct {
		name string
		call Call
		want uint64
	}{
		{
			name: "default",
			call: Call{Target: domain.TargetMarketplace, Function: "createOrder", Args: []any{big.NewInt(1), big.NewInt(1)}},
			want: DefaultGasBudget,
		},
		{
			name: "transition",
			call: Call{Target: domain.TargetMarketplace, Function: "acceptOrder", Args: []any{big.NewInt(1)}},
			want: TransitionGasBudget,
		},
		{
			name: "admin",
			call: Call{Target: domain.TargetDisputeResolution, Function: "resolveDispute", Args: []any{big.NewInt(1), uint8(0)}},
			want: AdminGasBudget,
		},
		{
			name: "explicit override",
			call: Call{Target: domain.TargetMarketplace, Function: "acceptOrder", Args: []any{big.NewInt(1)}, GasBudget: 777_000},
			want: 777_000,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := b.Build(testFrom, big.NewInt(0), tc.call)
			require.NoError(t, err)
			require.Equal(t, tc.want, req.Gas)
		})
	}
}

func TestBuildStampsDeadline(t *testing.T) {
	b := testBuilder(5 * time.Minute)
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	req, err := b.Build(testFrom, big.NewInt(0), Call{
		Target:   domain.TargetMarketplace,
		Function: "acceptOrder",
		Args:     []any{big.NewInt(1)},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(now.Add(5*time.Minute).Unix()), req.Deadline)
	require.False(t, req.Expired(now))
	require.True(t, req.Expired(now.Add(6*time.Minute)))
}

// Pinned signing vector shared with the browser client: acceptOrder(42) from
// a fixed sender at nonce 7, built at 2026-09-01T00:00:00Z with a 10-minute
// deadline window on Amoy. The hashes below were cross-checked against an
// independent EIP-712 implementation; a drift in calldata encoding, field
// order, or the uint48 deadline word shows up here as a digest mismatch.
func TestBuildAcceptOrderDigestVector(t *testing.T) {
	b := testBuilder(10 * time.Minute)
	b.now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }

	req, err := b.Build(testFrom, big.NewInt(7), Call{
		Target:   domain.TargetMarketplace,
		Function: "acceptOrder",
		Args:     []any{big.NewInt(42)},
	})
	require.NoError(t, err)

	require.Equal(t, uint64(150_000), req.Gas)
	require.Equal(t, uint64(1788221400), req.Deadline)
	require.Equal(t,
		"0xef18e9ed000000000000000000000000000000000000000000000000000000000000002a",
		hexutil.Encode(req.Data))

	d := crypto.ForwarderDomain{
		ChainID:           big.NewInt(80002),
		VerifyingContract: common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}
	require.Equal(t,
		"0x8b4f5a690945a4ba0ef8a8f90ea5db42c9ab5c92bc631ab2eb32120114fe5b8e",
		hexutil.Encode(d.Separator()))
	require.Equal(t,
		"0x5c674ccf3004877425bcb36d2ca576afe38b5ae8be94ffdb45433a47e475ac36",
		hexutil.Encode(crypto.StructHash(req)))
	require.Equal(t,
		"0xe33899022357e20856425750aec0ea25baca1c5dc733a7ba81939c7d6c134328",
		hexutil.Encode(crypto.Digest(d, req)))
}

// The builder copies the nonce so a caller reusing its big.Int cannot mutate
// a request after the fact.
func TestBuildCopiesNonce(t *testing.T) {
	b := testBuilder(0)

	nonce := big.NewInt(41)
	req, err := b.Build(testFrom, nonce, Call{
		Target:   domain.TargetMarketplace,
		Function: "acceptOrder",
		Args:     []any{big.NewInt(1)},
	})
	require.NoError(t, err)

	nonce.SetInt64(999)
	require.Equal(t, int64(41), req.Nonce.Int64())
}

func TestTargetAddress(t *testing.T) {
	b := testBuilder(0)

	addr, ok := b.TargetAddress(domain.TargetMarketplace)
	require.True(t, ok)
	require.Equal(t, marketplaceAddr, addr)

	_, ok = b.TargetAddress(domain.TargetGovernmentRequests)
	require.False(t, ok)
}
