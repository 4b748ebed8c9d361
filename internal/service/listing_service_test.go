package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openharvest/harvestd/internal/domain"
)

type listingFixture struct {
	exec     *fakeExecutor
	reader   *fakeReader
	pins     *fakePinner
	listings *fakeListingStore
	cache    *fakeListingCache
	svc      *ListingService
}

func newListingFixture() *listingFixture {
	fx := &listingFixture{
		exec:     &fakeExecutor{},
		reader:   &fakeReader{listings: map[uint64]domain.Listing{}},
		pins:     &fakePinner{cid: "QmTestCID", metadata: map[string]domain.ListingMetadata{}},
		listings: &fakeListingStore{},
		cache:    newFakeListingCache(),
	}
	fx.svc = NewListingService(fx.exec, fx.reader, fx.pins, fx.listings, fx.cache, slog.Default())
	return fx
}

func validMetadata() domain.ListingMetadata {
	return domain.ListingMetadata{
		Name:     "Hass Avocados",
		Category: "fruit",
		Unit:     "crate",
	}
}

func TestRegisterSellerPinsProfileFirst(t *testing.T) {
	fx := newListingFixture()

	res, err := fx.svc.RegisterSeller(context.Background(), domain.SellerProfile{
		Name:   "Green Valley Farm",
		Region: "Limpopo",
	})
	require.NoError(t, err)
	require.Equal(t, fakeTxHash, res.TxHash)

	require.Equal(t, []string{"seller-profile-Green Valley Farm"}, fx.pins.pinned)
	require.Len(t, fx.exec.calls, 1)
	require.Equal(t, domain.TargetMarketplace, fx.exec.calls[0].Target)
	require.Equal(t, "registerSeller", fx.exec.calls[0].Function)
	require.Equal(t, []any{"QmTestCID"}, fx.exec.calls[0].Args)
}

func TestRegisterSellerRequiresName(t *testing.T) {
	fx := newListingFixture()

	_, err := fx.svc.RegisterSeller(context.Background(), domain.SellerProfile{})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.Empty(t, fx.pins.pinned)
	require.Empty(t, fx.exec.calls)
}

func TestCreateListingValidation(t *testing.T) {
	fx := newListingFixture()
	ctx := context.Background()

	_, err := fx.svc.CreateListing(ctx, domain.ListingMetadata{Name: "x"}, big.NewInt(1), 1)
	require.ErrorIs(t, err, domain.ErrInvalidInput, "missing category and unit")

	_, err = fx.svc.CreateListing(ctx, validMetadata(), big.NewInt(0), 1)
	require.ErrorIs(t, err, domain.ErrInvalidInput, "non-positive price")

	_, err = fx.svc.CreateListing(ctx, validMetadata(), nil, 1)
	require.ErrorIs(t, err, domain.ErrInvalidInput, "nil price")

	_, err = fx.svc.CreateListing(ctx, validMetadata(), big.NewInt(1), 0)
	require.ErrorIs(t, err, domain.ErrInvalidInput, "zero quantity")

	require.Empty(t, fx.exec.calls, "invalid input must never reach the facade")
}

func TestCreateListingMirrorsNewListing(t *testing.T) {
	fx := newListingFixture()
	meta := validMetadata()

	// After the write confirms, ids 0..4 exist; the new listing is id 4.
	fx.reader.listingTotal = 5
	fx.reader.listings[4] = domain.Listing{
		ID:          4,
		Seller:      "0x2222222222222222222222222222222222222222",
		MetadataCID: "QmTestCID",
		UnitPrice:   "2500000",
		Quantity:    10,
		Status:      domain.ListingStatusActive,
	}
	fx.pins.metadata["QmTestCID"] = meta

	listing, err := fx.svc.CreateListing(context.Background(), meta, big.NewInt(2_500_000), 10)
	require.NoError(t, err)
	require.Equal(t, uint64(4), listing.ID)
	require.Equal(t, meta, listing.Metadata, "pinned metadata joined onto the chain record")

	require.Len(t, fx.exec.calls, 1)
	require.Equal(t, "createListing", fx.exec.calls[0].Function)

	require.Len(t, fx.listings.upserts, 1)
	require.Equal(t, []uint64{4}, fx.cache.sets)
}

func TestCreateListingExecFailurePropagates(t *testing.T) {
	fx := newListingFixture()
	fx.exec.err = &domain.RevertError{Reason: "Marketplace: seller not registered"}

	_, err := fx.svc.CreateListing(context.Background(), validMetadata(), big.NewInt(1), 1)
	require.ErrorIs(t, err, domain.ErrOnChainReverted)
	require.Empty(t, fx.listings.upserts)
}

func TestGetListingCacheHitSkipsChain(t *testing.T) {
	fx := newListingFixture()
	cached := domain.Listing{ID: 7, Status: domain.ListingStatusActive}
	fx.cache.entries[7] = cached

	listing, err := fx.svc.GetListing(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, cached, listing)
}

func TestGetListingCacheMissRefreshes(t *testing.T) {
	fx := newListingFixture()
	fx.reader.listings[7] = domain.Listing{ID: 7, Status: domain.ListingStatusActive}

	listing, err := fx.svc.GetListing(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, uint64(7), listing.ID)
	require.Equal(t, []uint64{7}, fx.cache.sets)
}

func TestDelistListingRefreshesMirror(t *testing.T) {
	fx := newListingFixture()
	fx.reader.listings[3] = domain.Listing{ID: 3, Status: domain.ListingStatusDelisted}

	listing, err := fx.svc.DelistListing(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusDelisted, listing.Status)
	require.Equal(t, "delistListing", fx.exec.calls[0].Function)
}

// A missing pin degrades the listing to its chain fields instead of failing
// the read.
func TestRefreshToleratesMissingMetadata(t *testing.T) {
	fx := newListingFixture()
	fx.reader.listings[1] = domain.Listing{ID: 1, MetadataCID: "QmGone", Status: domain.ListingStatusActive}
	fx.pins.fetchErr = errors.New("gateway timeout")

	listing, err := fx.svc.GetListing(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, domain.ListingMetadata{}, listing.Metadata)
}
