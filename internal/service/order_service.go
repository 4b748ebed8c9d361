package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/openharvest/harvestd/internal/domain"
	"github.com/openharvest/harvestd/internal/gasless"
	"github.com/openharvest/harvestd/internal/notify"
)

// OrderService drives the order lifecycle. Every transition is a gasless
// write against the marketplace contract; the contract enforces who may move
// an order and from which state, so the service never second-guesses it and
// simply surfaces reverts.
type OrderService struct {
	exec     Executor
	reader   MarketplaceReader
	orders   domain.OrderStore
	cache    domain.ListingCache
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewOrderService creates an OrderService with all required dependencies.
// notifier may be nil.
func NewOrderService(
	exec Executor,
	reader MarketplaceReader,
	orders domain.OrderStore,
	cache domain.ListingCache,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		exec:     exec,
		reader:   reader,
		orders:   orders,
		cache:    cache,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "order_service")),
	}
}

// CreateOrder places a buyer's order against a listing and mirrors it once
// confirmed. The listing cache entry is invalidated because the purchase
// changes the remaining quantity.
func (s *OrderService) CreateOrder(ctx context.Context, listingID uint64, quantity uint64) (domain.Order, error) {
	if quantity == 0 {
		return domain.Order{}, fmt.Errorf("order_service: quantity must be positive: %w", domain.ErrInvalidInput)
	}

	result, err := s.exec.Execute(ctx, gasless.Call{
		Target:   domain.TargetMarketplace,
		Function: "createOrder",
		Args:     []any{new(big.Int).SetUint64(listingID), new(big.Int).SetUint64(quantity)},
	})
	if err != nil {
		return domain.Order{}, err
	}

	count, err := s.reader.OrderCount(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: read order count: %w", err)
	}
	if count == 0 {
		return domain.Order{}, fmt.Errorf("order_service: order count zero after create")
	}

	order, err := s.refresh(ctx, count-1, result.TxHash.Hex())
	if err != nil {
		return domain.Order{}, err
	}

	if cErr := s.cache.Invalidate(ctx, listingID); cErr != nil {
		s.logger.Warn("listing cache invalidate failed",
			slog.Uint64("listing_id", listingID),
			slog.String("error", cErr.Error()),
		)
	}
	return order, nil
}

// AcceptOrder is the seller accepting a created order.
func (s *OrderService) AcceptOrder(ctx context.Context, orderID uint64) (domain.Order, error) {
	return s.transition(ctx, orderID, "acceptOrder")
}

// ShipOrder is the seller marking an accepted order shipped.
func (s *OrderService) ShipOrder(ctx context.Context, orderID uint64) (domain.Order, error) {
	return s.transition(ctx, orderID, "shipOrder")
}

// CompleteOrder is the buyer confirming receipt, releasing the escrow.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID uint64) (domain.Order, error) {
	return s.transition(ctx, orderID, "completeOrder")
}

// CancelOrder cancels an order from a state the contract allows.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uint64) (domain.Order, error) {
	return s.transition(ctx, orderID, "cancelOrder")
}

// RaiseDispute escalates an order to the dispute-resolution contract. The
// reason document is expected to be pinned already; only its CID travels.
func (s *OrderService) RaiseDispute(ctx context.Context, orderID uint64, reasonCID string) (domain.Order, error) {
	result, err := s.exec.Execute(ctx, gasless.Call{
		Target:   domain.TargetDisputeResolution,
		Function: "raiseDispute",
		Args:     []any{new(big.Int).SetUint64(orderID), reasonCID},
	})
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.refresh(ctx, orderID, result.TxHash.Hex())
	if err != nil {
		return domain.Order{}, err
	}

	if s.notifier != nil {
		if nErr := s.notifier.OrderDisputed(ctx, order, result.TxHash.Hex()); nErr != nil {
			s.logger.Warn("dispute notification failed", slog.String("error", nErr.Error()))
		}
	}
	return order, nil
}

// GetOrder reads one order from chain state and refreshes the mirror.
func (s *OrderService) GetOrder(ctx context.Context, orderID uint64) (domain.Order, error) {
	return s.refresh(ctx, orderID, "")
}

// ListByBuyer returns a buyer's orders from the mirror.
func (s *OrderService) ListByBuyer(ctx context.Context, buyer string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.orders.ListByBuyer(ctx, buyer, opts)
}

// ListBySeller returns a seller's orders from the mirror.
func (s *OrderService) ListBySeller(ctx context.Context, seller string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.orders.ListBySeller(ctx, seller, opts)
}

func (s *OrderService) transition(ctx context.Context, orderID uint64, function string) (domain.Order, error) {
	result, err := s.exec.Execute(ctx, gasless.Call{
		Target:   domain.TargetMarketplace,
		Function: function,
		Args:     []any{new(big.Int).SetUint64(orderID)},
	})
	if err != nil {
		return domain.Order{}, err
	}
	return s.refresh(ctx, orderID, result.TxHash.Hex())
}

// refresh re-reads one order from chain and updates the mirror. txHash, when
// non-empty, is recorded as the transaction that last moved the order.
func (s *OrderService) refresh(ctx context.Context, orderID uint64, txHash string) (domain.Order, error) {
	order, err := s.reader.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: read order %d: %w", orderID, err)
	}
	if txHash != "" {
		order.TxHash = txHash
	}

	if err := s.orders.Upsert(ctx, order); err != nil {
		s.logger.Warn("order mirror upsert failed",
			slog.Uint64("id", orderID),
			slog.String("error", err.Error()),
		)
	}
	return order, nil
}
