package handler

import (
	"log/slog"
	"math/big"
	"net/http"

	"github.com/openharvest/harvestd/internal/domain"
	"github.com/openharvest/harvestd/internal/service"
)

// ListingHandler serves seller registration and the listing endpoints.
type ListingHandler struct {
	svc    *service.ListingService
	logger *slog.Logger
}

// NewListingHandler creates a ListingHandler backed by the listing service.
func NewListingHandler(svc *service.ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{svc: svc, logger: logHandler(logger, "listing")}
}

// RegisterSeller pins a seller profile and registers its CID on chain.
// POST /api/sellers
func (h *ListingHandler) RegisterSeller(w http.ResponseWriter, r *http.Request) {
	var profile domain.SellerProfile
	if err := decodeBody(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.RegisterSeller(r.Context(), profile)
	if err != nil {
		h.logger.Error("register seller failed", slog.String("error", err.Error()))
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"operation_id": result.OperationID,
		"tx_hash":      result.TxHash.Hex(),
	})
}

type createListingRequest struct {
	Metadata  domain.ListingMetadata `json:"metadata"`
	UnitPrice string                 `json:"unit_price"` // smallest-unit decimal string
	Quantity  uint64                 `json:"quantity"`
}

// CreateListing pins metadata, submits the listing on chain, and returns the
// mirrored record.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	price, ok := new(big.Int).SetString(req.UnitPrice, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "unit_price must be a decimal string")
		return
	}

	listing, err := h.svc.CreateListing(r.Context(), req.Metadata, price, req.Quantity)
	if err != nil {
		h.logger.Error("create listing failed", slog.String("error", err.Error()))
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, listing)
}

// DelistListing takes a listing off the marketplace.
// DELETE /api/listings/{id}
func (h *ListingHandler) DelistListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	listing, err := h.svc.DelistListing(r.Context(), id)
	if err != nil {
		h.logger.Error("delist listing failed", slog.Uint64("id", id), slog.String("error", err.Error()))
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

// GetListing returns one listing, cache first.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	listing, err := h.svc.GetListing(r.Context(), id)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

// ListListings returns active listings, or a seller's listings when the
// seller query parameter is present.
// GET /api/listings
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		listings []domain.Listing
		err      error
	)
	if seller := r.URL.Query().Get("seller"); seller != "" {
		listings, err = h.svc.ListBySeller(r.Context(), seller, opts)
	} else {
		listings, err = h.svc.ListActive(r.Context(), opts)
	}
	if err != nil {
		h.logger.Error("list listings failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"listings": listings,
		"count":    len(listings),
	})
}
