package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/openharvest/harvestd/internal/domain"
)

// listingStatusByCode maps the contract's uint8 listing status to the domain
// value. Unknown codes map to delisted, the safest read-side default.
var listingStatusByCode = map[uint8]domain.ListingStatus{
	0: domain.ListingStatusActive,
	1: domain.ListingStatusSoldOut,
	2: domain.ListingStatusDelisted,
}

var orderStatusByCode = map[uint8]domain.OrderStatus{
	0: domain.OrderStatusCreated,
	1: domain.OrderStatusAccepted,
	2: domain.OrderStatusShipped,
	3: domain.OrderStatusCompleted,
	4: domain.OrderStatusDisputed,
	5: domain.OrderStatusCancelled,
}

// MarketplaceReader exposes the marketplace contract's view methods for the
// dashboard read path. Writes never go through here; they go through the
// gasless facade.
type MarketplaceReader struct {
	backend Backend
	address common.Address
}

// NewMarketplaceReader creates a reader bound to the marketplace contract.
func NewMarketplaceReader(backend Backend, address common.Address) *MarketplaceReader {
	return &MarketplaceReader{backend: backend, address: address}
}

func (r *MarketplaceReader) call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := MarketplaceABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", method, err)
	}
	results, err := MarketplaceABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return results, nil
}

// GetListing reads one listing from chain state. Metadata stays unresolved;
// the service layer joins it with the pinned IPFS document.
func (r *MarketplaceReader) GetListing(ctx context.Context, id uint64) (domain.Listing, error) {
	results, err := r.call(ctx, "getListing", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.Listing{}, err
	}
	if len(results) != 5 {
		return domain.Listing{}, fmt.Errorf("chain: getListing returned %d values", len(results))
	}

	seller, _ := results[0].(common.Address)
	cid, _ := results[1].(string)
	price, _ := results[2].(*big.Int)
	quantity, _ := results[3].(*big.Int)
	statusCode, _ := results[4].(uint8)

	status, ok := listingStatusByCode[statusCode]
	if !ok {
		status = domain.ListingStatusDelisted
	}

	return domain.Listing{
		ID:          id,
		Seller:      seller.Hex(),
		MetadataCID: cid,
		UnitPrice:   price.String(),
		Quantity:    quantity.Uint64(),
		Status:      status,
	}, nil
}

// GetOrder reads one order from chain state.
func (r *MarketplaceReader) GetOrder(ctx context.Context, id uint64) (domain.Order, error) {
	results, err := r.call(ctx, "getOrder", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.Order{}, err
	}
	if len(results) != 6 {
		return domain.Order{}, fmt.Errorf("chain: getOrder returned %d values", len(results))
	}

	listingID, _ := results[0].(*big.Int)
	buyer, _ := results[1].(common.Address)
	seller, _ := results[2].(common.Address)
	quantity, _ := results[3].(*big.Int)
	total, _ := results[4].(*big.Int)
	statusCode, _ := results[5].(uint8)

	status, ok := orderStatusByCode[statusCode]
	if !ok {
		status = domain.OrderStatusCreated
	}

	return domain.Order{
		ID:        id,
		ListingID: listingID.Uint64(),
		Buyer:     buyer.Hex(),
		Seller:    seller.Hex(),
		Quantity:  quantity.Uint64(),
		Total:     total.String(),
		Status:    status,
	}, nil
}

// ListingCount returns the number of listings ever created.
func (r *MarketplaceReader) ListingCount(ctx context.Context) (uint64, error) {
	return r.count(ctx, "listingCount")
}

// OrderCount returns the number of orders ever created.
func (r *MarketplaceReader) OrderCount(ctx context.Context) (uint64, error) {
	return r.count(ctx, "orderCount")
}

func (r *MarketplaceReader) count(ctx context.Context, method string) (uint64, error) {
	results, err := r.call(ctx, method)
	if err != nil {
		return 0, err
	}
	count, ok := results[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("chain: unexpected %s type %T", method, results[0])
	}
	return count.Uint64(), nil
}

// SellerOf resolves the seller address behind a listing.
func (r *MarketplaceReader) SellerOf(ctx context.Context, listingID uint64) (common.Address, error) {
	results, err := r.call(ctx, "sellerOf", new(big.Int).SetUint64(listingID))
	if err != nil {
		return common.Address{}, err
	}
	seller, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("chain: unexpected sellerOf type %T", results[0])
	}
	return seller, nil
}
