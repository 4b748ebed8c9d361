package gasless

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/openharvest/harvestd/internal/domain"
)

// fixedChainSigner has no ChainAware implementation and therefore passes the
// guard without any RPC round-trip.
type fixedChainSigner struct{}

func (fixedChainSigner) Address() common.Address { return testFrom }
func (fixedChainSigner) SignForwardRequest(context.Context, domain.ForwardRequest) ([]byte, error) {
	return make([]byte, 65), nil
}

// driftingSigner scripts a wallet whose active chain can drift.
type driftingSigner struct {
	fixedChainSigner

	active    []*big.Int // consumed one per ActiveChainID call
	activeErr error
	switchErr error

	switchCalls int
}

func (s *driftingSigner) ActiveChainID(context.Context) (*big.Int, error) {
	if s.activeErr != nil {
		return nil, s.activeErr
	}
	id := s.active[0]
	if len(s.active) > 1 {
		s.active = s.active[1:]
	}
	return id, nil
}

func (s *driftingSigner) SwitchChain(context.Context, *big.Int) error {
	s.switchCalls++
	return s.switchErr
}

func testGuard() *ChainGuard {
	return NewChainGuard(big.NewInt(80002), slog.Default())
}

func TestEnsurePassesFixedChainSigner(t *testing.T) {
	require.NoError(t, testGuard().Ensure(context.Background(), fixedChainSigner{}))
}

func TestEnsurePassesMatchingChain(t *testing.T) {
	s := &driftingSigner{active: []*big.Int{big.NewInt(80002)}}
	require.NoError(t, testGuard().Ensure(context.Background(), s))
	require.Zero(t, s.switchCalls)
}

func TestEnsureNegotiatesSwitch(t *testing.T) {
	s := &driftingSigner{active: []*big.Int{big.NewInt(1), big.NewInt(80002)}}
	require.NoError(t, testGuard().Ensure(context.Background(), s))
	require.Equal(t, 1, s.switchCalls)
}

func TestEnsureDeclinedSwitch(t *testing.T) {
	s := &driftingSigner{
		active:    []*big.Int{big.NewInt(1)},
		switchErr: errors.New("user declined"),
	}
	err := testGuard().Ensure(context.Background(), s)
	require.ErrorIs(t, err, domain.ErrChainMismatch)
}

// Some providers ack the switch request before the chain actually changes;
// the guard re-reads instead of trusting the ack.
func TestEnsureSwitchAckedButChainUnchanged(t *testing.T) {
	s := &driftingSigner{active: []*big.Int{big.NewInt(1), big.NewInt(1)}}
	err := testGuard().Ensure(context.Background(), s)
	require.ErrorIs(t, err, domain.ErrChainMismatch)
	require.Equal(t, 1, s.switchCalls)
}

func TestEnsureUnreadableChain(t *testing.T) {
	s := &driftingSigner{activeErr: errors.New("provider down")}
	err := testGuard().Ensure(context.Background(), s)
	require.ErrorIs(t, err, domain.ErrChainMismatch)
	require.Zero(t, s.switchCalls)
}
