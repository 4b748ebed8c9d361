package handler

import (
	"log/slog"
	"net/http"

	"github.com/openharvest/harvestd/internal/domain"
)

// OperationHandler serves the gasless operation audit trail.
type OperationHandler struct {
	store  domain.OperationStore
	logger *slog.Logger
}

// NewOperationHandler creates an OperationHandler backed by the audit store.
func NewOperationHandler(store domain.OperationStore, logger *slog.Logger) *OperationHandler {
	return &OperationHandler{store: store, logger: logHandler(logger, "operation")}
}

// GetOperation returns one audit record by id.
// GET /api/operations/{id}
func (h *OperationHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "operation id is required")
		return
	}

	op, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, op)
}

// ListOperations returns a signer's audit records, newest first. The signer
// query parameter is required; since/until narrow the window.
// GET /api/operations
func (h *OperationHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	signer := r.URL.Query().Get("signer")
	if signer == "" {
		writeError(w, http.StatusBadRequest, "signer query parameter is required")
		return
	}

	ops, err := h.store.ListBySigner(r.Context(), signer, parseListOpts(r))
	if err != nil {
		h.logger.Error("list operations failed",
			slog.String("signer", signer),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list operations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"operations": ops,
		"count":      len(ops),
	})
}
