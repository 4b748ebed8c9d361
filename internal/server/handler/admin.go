package handler

import (
	"log/slog"
	"net/http"

	"github.com/openharvest/harvestd/internal/gasless"
	"github.com/openharvest/harvestd/internal/service"
)

// AdminHandler serves the ambassador-rewards, dispute-resolution, and
// government-request endpoints. Authorization lives in the contracts: a
// non-privileged signer's call simply reverts.
type AdminHandler struct {
	svc    *service.AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler backed by the admin service.
func NewAdminHandler(svc *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logHandler(logger, "admin")}
}

// ClaimRewards claims the signer's accumulated ambassador rewards.
// POST /api/rewards/claim
func (h *AdminHandler) ClaimRewards(w http.ResponseWriter, r *http.Request) {
	h.writeResult(w, "claim rewards")(h.svc.ClaimRewards(r.Context()))
}

type castVoteRequest struct {
	ProposalID uint64 `json:"proposal_id"`
	Support    bool   `json:"support"`
}

// CastVote votes on an ambassador governance proposal.
// POST /api/governance/votes
func (h *AdminHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req castVoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.writeResult(w, "cast vote")(h.svc.CastVote(r.Context(), req.ProposalID, req.Support))
}

type resolveDisputeRequest struct {
	Outcome string `json:"outcome"` // "buyer_refund", "seller_payout", or "split"
}

// ResolveDispute settles a dispute with the given outcome.
// POST /api/disputes/{id}/resolve
func (h *AdminHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return
	}

	var req resolveDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var outcome uint8
	switch req.Outcome {
	case "buyer_refund":
		outcome = service.DisputeOutcomeBuyerRefund
	case "seller_payout":
		outcome = service.DisputeOutcomeSellerPayout
	case "split":
		outcome = service.DisputeOutcomeSplit
	default:
		writeError(w, http.StatusBadRequest, "outcome must be buyer_refund, seller_payout, or split")
		return
	}

	h.writeResult(w, "resolve dispute")(h.svc.ResolveDispute(r.Context(), id, outcome))
}

type submitRequestRequest struct {
	Details map[string]any `json:"details"`
}

// SubmitRequest files a government produce request.
// POST /api/requests
func (h *AdminHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req submitRequestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.writeResult(w, "submit request")(h.svc.SubmitRequest(r.Context(), req.Details))
}

// ApproveRequest approves a filed government request.
// POST /api/requests/{id}/approve
func (h *AdminHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	h.writeResult(w, "approve request")(h.svc.ApproveRequest(r.Context(), id))
}

// writeResult renders a gasless result or its mapped error.
func (h *AdminHandler) writeResult(w http.ResponseWriter, op string) func(gasless.Result, error) {
	return func(result gasless.Result, err error) {
		if err != nil {
			h.logger.Error(op+" failed", slog.String("error", err.Error()))
			writeOperationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"operation_id": result.OperationID,
			"tx_hash":      result.TxHash.Hex(),
		})
	}
}
