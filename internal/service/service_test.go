package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openharvest/harvestd/internal/domain"
	"github.com/openharvest/harvestd/internal/gasless"
)

// Shared fakes for the service tests. The services only see interfaces, so
// every collaborator is scripted in memory.

var fakeTxHash = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")

type fakeExecutor struct {
	calls []gasless.Call
	err   error
}

func (e *fakeExecutor) Execute(_ context.Context, call gasless.Call) (gasless.Result, error) {
	e.calls = append(e.calls, call)
	if e.err != nil {
		return gasless.Result{}, e.err
	}
	return gasless.Result{OperationID: "op-1", TxHash: fakeTxHash}, nil
}

type fakeReader struct {
	listings     map[uint64]domain.Listing
	orders       map[uint64]domain.Order
	listingTotal uint64
	orderTotal   uint64
}

func (r *fakeReader) GetListing(_ context.Context, id uint64) (domain.Listing, error) {
	l, ok := r.listings[id]
	if !ok {
		return domain.Listing{}, fmt.Errorf("listing %d: %w", id, domain.ErrNotFound)
	}
	return l, nil
}

func (r *fakeReader) GetOrder(_ context.Context, id uint64) (domain.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

func (r *fakeReader) ListingCount(context.Context) (uint64, error) { return r.listingTotal, nil }
func (r *fakeReader) OrderCount(context.Context) (uint64, error)   { return r.orderTotal, nil }

func (r *fakeReader) SellerOf(_ context.Context, listingID uint64) (common.Address, error) {
	return common.HexToAddress(r.listings[listingID].Seller), nil
}

type fakePinner struct {
	cid      string
	pinned   []string // document names in pin order
	metadata map[string]domain.ListingMetadata
	pinErr   error
	fetchErr error
}

func (p *fakePinner) PinJSON(_ context.Context, name string, _ any) (string, error) {
	if p.pinErr != nil {
		return "", p.pinErr
	}
	p.pinned = append(p.pinned, name)
	return p.cid, nil
}

func (p *fakePinner) FetchMetadata(_ context.Context, cid string) (domain.ListingMetadata, error) {
	if p.fetchErr != nil {
		return domain.ListingMetadata{}, p.fetchErr
	}
	meta, ok := p.metadata[cid]
	if !ok {
		return domain.ListingMetadata{}, fmt.Errorf("cid %s: %w", cid, domain.ErrNotFound)
	}
	return meta, nil
}

type fakeListingStore struct {
	upserts  []domain.Listing
	active   []domain.Listing
	bySeller []domain.Listing
}

func (s *fakeListingStore) Upsert(_ context.Context, l domain.Listing) error {
	s.upserts = append(s.upserts, l)
	return nil
}

func (s *fakeListingStore) GetByID(_ context.Context, id uint64) (domain.Listing, error) {
	return domain.Listing{}, domain.ErrNotFound
}

func (s *fakeListingStore) ListBySeller(_ context.Context, _ string, _ domain.ListOpts) ([]domain.Listing, error) {
	return s.bySeller, nil
}

func (s *fakeListingStore) ListActive(_ context.Context, _ domain.ListOpts) ([]domain.Listing, error) {
	return s.active, nil
}

type fakeOrderStore struct {
	upserts  []domain.Order
	byBuyer  []domain.Order
	bySeller []domain.Order
}

func (s *fakeOrderStore) Upsert(_ context.Context, o domain.Order) error {
	s.upserts = append(s.upserts, o)
	return nil
}

func (s *fakeOrderStore) UpdateStatus(context.Context, uint64, domain.OrderStatus, string) error {
	return nil
}

func (s *fakeOrderStore) GetByID(context.Context, uint64) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}

func (s *fakeOrderStore) ListBySeller(_ context.Context, _ string, _ domain.ListOpts) ([]domain.Order, error) {
	return s.bySeller, nil
}

func (s *fakeOrderStore) ListByBuyer(_ context.Context, _ string, _ domain.ListOpts) ([]domain.Order, error) {
	return s.byBuyer, nil
}

type fakeListingCache struct {
	entries     map[uint64]domain.Listing
	sets        []uint64
	invalidated []uint64
}

func newFakeListingCache() *fakeListingCache {
	return &fakeListingCache{entries: map[uint64]domain.Listing{}}
}

func (c *fakeListingCache) Set(_ context.Context, l domain.Listing) error {
	c.entries[l.ID] = l
	c.sets = append(c.sets, l.ID)
	return nil
}

func (c *fakeListingCache) Get(_ context.Context, id uint64) (domain.Listing, error) {
	l, ok := c.entries[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (c *fakeListingCache) Invalidate(_ context.Context, id uint64) error {
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

// Compile-time interface checks for the fakes.
var (
	_ Executor            = (*fakeExecutor)(nil)
	_ MarketplaceReader   = (*fakeReader)(nil)
	_ MetadataPinner      = (*fakePinner)(nil)
	_ domain.ListingStore = (*fakeListingStore)(nil)
	_ domain.OrderStore   = (*fakeOrderStore)(nil)
	_ domain.ListingCache = (*fakeListingCache)(nil)
)
