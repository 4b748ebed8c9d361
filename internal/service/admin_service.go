package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/openharvest/harvestd/internal/domain"
	"github.com/openharvest/harvestd/internal/gasless"
)

// Dispute outcomes as the dispute-resolution contract encodes them.
const (
	DisputeOutcomeBuyerRefund  uint8 = 0
	DisputeOutcomeSellerPayout uint8 = 1
	DisputeOutcomeSplit        uint8 = 2
)

// AdminService covers the non-marketplace targets: ambassador rewards,
// dispute resolution, and government produce requests. All writes go through
// the same facade; these are privileged roles only in the contracts' eyes,
// not in this service's.
type AdminService struct {
	exec   Executor
	pins   MetadataPinner
	logger *slog.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(exec Executor, pins MetadataPinner, logger *slog.Logger) *AdminService {
	return &AdminService{
		exec:   exec,
		pins:   pins,
		logger: logger.With(slog.String("component", "admin_service")),
	}
}

// ClaimRewards claims the caller's accumulated ambassador rewards.
func (s *AdminService) ClaimRewards(ctx context.Context) (gasless.Result, error) {
	return s.exec.Execute(ctx, gasless.Call{
		Target:   domain.TargetAmbassadorRewards,
		Function: "claimRewards",
	})
}

// CastVote votes on an ambassador governance proposal.
func (s *AdminService) CastVote(ctx context.Context, proposalID uint64, support bool) (gasless.Result, error) {
	return s.exec.Execute(ctx, gasless.Call{
		Target:   domain.TargetAmbassadorRewards,
		Function: "castVote",
		Args:     []any{new(big.Int).SetUint64(proposalID), support},
	})
}

// ResolveDispute settles a dispute with the given outcome. Admin gas budget:
// settlement walks the escrow bookkeeping.
func (s *AdminService) ResolveDispute(ctx context.Context, disputeID uint64, outcome uint8) (gasless.Result, error) {
	if outcome > DisputeOutcomeSplit {
		return gasless.Result{}, fmt.Errorf("admin_service: unknown dispute outcome %d: %w", outcome, domain.ErrInvalidInput)
	}
	return s.exec.Execute(ctx, gasless.Call{
		Target:   domain.TargetDisputeResolution,
		Function: "resolveDispute",
		Args:     []any{new(big.Int).SetUint64(disputeID), outcome},
	})
}

// SubmitRequest files a government produce request. The details document is
// pinned first; only its CID goes on chain.
func (s *AdminService) SubmitRequest(ctx context.Context, details map[string]any) (gasless.Result, error) {
	if len(details) == 0 {
		return gasless.Result{}, fmt.Errorf("admin_service: request details required: %w", domain.ErrInvalidInput)
	}

	cid, err := s.pins.PinJSON(ctx, "government-request", details)
	if err != nil {
		return gasless.Result{}, fmt.Errorf("admin_service: pin request details: %w", err)
	}

	return s.exec.Execute(ctx, gasless.Call{
		Target:   domain.TargetGovernmentRequests,
		Function: "submitRequest",
		Args:     []any{cid},
	})
}

// ApproveRequest approves a filed government request.
func (s *AdminService) ApproveRequest(ctx context.Context, requestID uint64) (gasless.Result, error) {
	return s.exec.Execute(ctx, gasless.Call{
		Target:   domain.TargetGovernmentRequests,
		Function: "approveRequest",
		Args:     []any{new(big.Int).SetUint64(requestID)},
	})
}
