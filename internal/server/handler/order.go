package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openharvest/harvestd/internal/domain"
	"github.com/openharvest/harvestd/internal/service"
)

// OrderHandler serves the order lifecycle endpoints. Each transition endpoint
// submits one gasless write and returns the refreshed order mirror.
type OrderHandler struct {
	svc    *service.OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler backed by the order service.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, logger: logHandler(logger, "order")}
}

type createOrderRequest struct {
	ListingID uint64 `json:"listing_id"`
	Quantity  uint64 `json:"quantity"`
}

// CreateOrder places a buyer's order against a listing.
// POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), req.ListingID, req.Quantity)
	if err != nil {
		h.logger.Error("create order failed",
			slog.Uint64("listing_id", req.ListingID),
			slog.String("error", err.Error()),
		)
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// AcceptOrder is the seller accepting a created order.
// POST /api/orders/{id}/accept
func (h *OrderHandler) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.AcceptOrder)
}

// ShipOrder is the seller marking an accepted order shipped.
// POST /api/orders/{id}/ship
func (h *OrderHandler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.ShipOrder)
}

// CompleteOrder is the buyer confirming receipt.
// POST /api/orders/{id}/complete
func (h *OrderHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.CompleteOrder)
}

// CancelOrder cancels an order.
// POST /api/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.CancelOrder)
}

type raiseDisputeRequest struct {
	ReasonCID string `json:"reason_cid"`
}

// RaiseDispute escalates an order to dispute resolution.
// POST /api/orders/{id}/dispute
func (h *OrderHandler) RaiseDispute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req raiseDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ReasonCID == "" {
		writeError(w, http.StatusBadRequest, "reason_cid is required")
		return
	}

	order, err := h.svc.RaiseDispute(r.Context(), id, req.ReasonCID)
	if err != nil {
		h.logger.Error("raise dispute failed", slog.Uint64("order_id", id), slog.String("error", err.Error()))
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// GetOrder returns one order from chain state.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// ListOrders returns orders for a buyer or seller. Exactly one of the buyer
// and seller query parameters is required.
// GET /api/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	buyer := r.URL.Query().Get("buyer")
	seller := r.URL.Query().Get("seller")

	var (
		orders []domain.Order
		err    error
	)
	switch {
	case buyer != "" && seller == "":
		orders, err = h.svc.ListByBuyer(r.Context(), buyer, opts)
	case seller != "" && buyer == "":
		orders, err = h.svc.ListBySeller(r.Context(), seller, opts)
	default:
		writeError(w, http.StatusBadRequest, "exactly one of buyer or seller is required")
		return
	}
	if err != nil {
		h.logger.Error("list orders failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"count":  len(orders),
	})
}

func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, orderID uint64) (domain.Order, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := fn(r.Context(), id)
	if err != nil {
		h.logger.Error("order transition failed", slog.Uint64("order_id", id), slog.String("error", err.Error()))
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}
