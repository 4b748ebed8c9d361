// Package service implements the marketplace features as thin callers over
// the gasless facade: each write is one Call threaded through the shared
// pipeline, followed by a chain re-read to refresh the local mirror.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openharvest/harvestd/internal/domain"
	"github.com/openharvest/harvestd/internal/gasless"
)

// Executor runs one gasless operation end to end. Implemented by
// gasless.Facade.
type Executor interface {
	Execute(ctx context.Context, call gasless.Call) (gasless.Result, error)
}

// MarketplaceReader reads marketplace contract state. Implemented by
// chain.MarketplaceReader.
type MarketplaceReader interface {
	GetListing(ctx context.Context, id uint64) (domain.Listing, error)
	GetOrder(ctx context.Context, id uint64) (domain.Order, error)
	ListingCount(ctx context.Context) (uint64, error)
	OrderCount(ctx context.Context) (uint64, error)
	SellerOf(ctx context.Context, listingID uint64) (common.Address, error)
}

// MetadataPinner pins and retrieves IPFS documents. Implemented by
// pinata.Client.
type MetadataPinner interface {
	PinJSON(ctx context.Context, name string, doc any) (string, error)
	FetchMetadata(ctx context.Context, cid string) (domain.ListingMetadata, error)
}

// ListingService handles seller registration and the listing lifecycle.
type ListingService struct {
	exec     Executor
	reader   MarketplaceReader
	pins     MetadataPinner
	listings domain.ListingStore
	cache    domain.ListingCache
	logger   *slog.Logger
}

// NewListingService creates a ListingService with all required dependencies.
func NewListingService(
	exec Executor,
	reader MarketplaceReader,
	pins MetadataPinner,
	listings domain.ListingStore,
	cache domain.ListingCache,
	logger *slog.Logger,
) *ListingService {
	return &ListingService{
		exec:     exec,
		reader:   reader,
		pins:     pins,
		listings: listings,
		cache:    cache,
		logger:   logger.With(slog.String("component", "listing_service")),
	}
}

// RegisterSeller pins the seller's profile document and registers its CID on
// chain.
func (s *ListingService) RegisterSeller(ctx context.Context, profile domain.SellerProfile) (gasless.Result, error) {
	if profile.Name == "" {
		return gasless.Result{}, fmt.Errorf("listing_service: profile name required: %w", domain.ErrInvalidInput)
	}

	cid, err := s.pins.PinJSON(ctx, "seller-profile-"+profile.Name, profile)
	if err != nil {
		return gasless.Result{}, fmt.Errorf("listing_service: pin seller profile: %w", err)
	}

	return s.exec.Execute(ctx, gasless.Call{
		Target:   domain.TargetMarketplace,
		Function: "registerSeller",
		Args:     []any{cid},
	})
}

// CreateListing pins the metadata document, submits createListing through the
// facade, and mirrors the new listing locally once confirmed.
func (s *ListingService) CreateListing(ctx context.Context, meta domain.ListingMetadata, unitPrice *big.Int, quantity uint64) (domain.Listing, error) {
	if meta.Name == "" || meta.Category == "" || meta.Unit == "" {
		return domain.Listing{}, fmt.Errorf("listing_service: metadata name, category, and unit required: %w", domain.ErrInvalidInput)
	}
	if unitPrice == nil || unitPrice.Sign() <= 0 {
		return domain.Listing{}, fmt.Errorf("listing_service: unit price must be positive: %w", domain.ErrInvalidInput)
	}
	if quantity == 0 {
		return domain.Listing{}, fmt.Errorf("listing_service: quantity must be positive: %w", domain.ErrInvalidInput)
	}

	cid, err := s.pins.PinJSON(ctx, "listing-"+meta.Name, meta)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: pin listing metadata: %w", err)
	}

	_, err = s.exec.Execute(ctx, gasless.Call{
		Target:   domain.TargetMarketplace,
		Function: "createListing",
		Args:     []any{cid, unitPrice, new(big.Int).SetUint64(quantity)},
	})
	if err != nil {
		return domain.Listing{}, err
	}

	// The contract assigns ids sequentially; after the settle delay the new
	// listing is the last one.
	count, err := s.reader.ListingCount(ctx)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: read listing count: %w", err)
	}
	if count == 0 {
		return domain.Listing{}, fmt.Errorf("listing_service: listing count zero after create")
	}
	return s.refresh(ctx, count-1)
}

// DelistListing takes a listing off the marketplace and refreshes the mirror.
func (s *ListingService) DelistListing(ctx context.Context, id uint64) (domain.Listing, error) {
	_, err := s.exec.Execute(ctx, gasless.Call{
		Target:   domain.TargetMarketplace,
		Function: "delistListing",
		Args:     []any{new(big.Int).SetUint64(id)},
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return s.refresh(ctx, id)
}

// GetListing serves a listing from the cache when possible, otherwise from
// chain state with a mirror refresh.
func (s *ListingService) GetListing(ctx context.Context, id uint64) (domain.Listing, error) {
	listing, err := s.cache.Get(ctx, id)
	if err == nil {
		return listing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("listing cache read failed", slog.Uint64("id", id), slog.String("error", err.Error()))
	}
	return s.refresh(ctx, id)
}

// ListActive returns active listings for the marketplace feed.
func (s *ListingService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	return s.listings.ListActive(ctx, opts)
}

// ListBySeller returns a seller's listings.
func (s *ListingService) ListBySeller(ctx context.Context, seller string, opts domain.ListOpts) ([]domain.Listing, error) {
	return s.listings.ListBySeller(ctx, seller, opts)
}

// refresh re-reads one listing from chain, joins its pinned metadata, and
// updates the store and cache.
func (s *ListingService) refresh(ctx context.Context, id uint64) (domain.Listing, error) {
	listing, err := s.reader.GetListing(ctx, id)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: read listing %d: %w", id, err)
	}

	if listing.MetadataCID != "" {
		meta, err := s.pins.FetchMetadata(ctx, listing.MetadataCID)
		if err != nil {
			// A missing pin degrades the listing to chain fields only.
			s.logger.Warn("listing metadata unavailable",
				slog.Uint64("id", id),
				slog.String("cid", listing.MetadataCID),
				slog.String("error", err.Error()),
			)
		} else {
			listing.Metadata = meta
		}
	}

	if err := s.listings.Upsert(ctx, listing); err != nil {
		s.logger.Warn("listing mirror upsert failed", slog.Uint64("id", id), slog.String("error", err.Error()))
	}
	if err := s.cache.Set(ctx, listing); err != nil {
		s.logger.Warn("listing cache set failed", slog.Uint64("id", id), slog.String("error", err.Error()))
	}
	return listing, nil
}
