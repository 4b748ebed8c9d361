package gasless

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/openharvest/harvestd/internal/domain"
)

// ChainGuard ensures the signer's active chain matches the forwarder's
// deployment chain before anything is built or signed. Running the check
// first means a misaligned wallet never receives a signature prompt it
// would waste.
type ChainGuard struct {
	want   *big.Int
	logger *slog.Logger
}

// NewChainGuard creates a guard pinned to the forwarder's chain ID.
func NewChainGuard(chainID *big.Int, logger *slog.Logger) *ChainGuard {
	return &ChainGuard{
		want:   new(big.Int).Set(chainID),
		logger: logger.With(slog.String("component", "chain_guard")),
	}
}

// Ensure verifies chain alignment, negotiating a switch when the signer
// supports it. Signers bound to a single chain by construction (no
// ChainAware implementation) pass trivially. Every failure path wraps
// domain.ErrChainMismatch; none of them reaches the signing step.
func (g *ChainGuard) Ensure(ctx context.Context, signer Signer) error {
	ca, ok := signer.(ChainAware)
	if !ok {
		return nil
	}

	active, err := ca.ActiveChainID(ctx)
	if err != nil {
		return fmt.Errorf("gasless: %w: cannot determine signer chain: %w", domain.ErrChainMismatch, err)
	}
	if active.Cmp(g.want) == 0 {
		return nil
	}

	g.logger.Info("signer on wrong chain, negotiating switch",
		slog.String("active", active.String()),
		slog.String("want", g.want.String()),
	)

	if err := ca.SwitchChain(ctx, g.want); err != nil {
		return fmt.Errorf("gasless: %w: %w", domain.ErrChainMismatch, err)
	}

	// Re-read rather than trusting the switch call: some providers ack the
	// request before the chain actually changes.
	active, err = ca.ActiveChainID(ctx)
	if err != nil {
		return fmt.Errorf("gasless: %w: cannot confirm signer chain after switch: %w", domain.ErrChainMismatch, err)
	}
	if active.Cmp(g.want) != 0 {
		return fmt.Errorf("gasless: %w: signer still on chain %s after switch", domain.ErrChainMismatch, active)
	}
	return nil
}
