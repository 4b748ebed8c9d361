package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openharvest/harvestd/internal/domain"
)

const listingTTL = 5 * time.Minute

// ListingCache implements domain.ListingCache using JSON-serialized listings
// under a short TTL. The cache is a read accelerator only: the gasless write
// path invalidates entries after its settle delay, and a miss falls through
// to the chain reader.
//
// Key schema:
//
//	listing:{id} - JSON-encoded domain.Listing
type ListingCache struct {
	rdb *redis.Client
}

// NewListingCache creates a ListingCache backed by the given Client.
func NewListingCache(c *Client) *ListingCache {
	return &ListingCache{rdb: c.rdb}
}

func listingKey(id uint64) string {
	return "listing:" + strconv.FormatUint(id, 10)
}

// Set stores a listing with the cache TTL.
func (lc *ListingCache) Set(ctx context.Context, listing domain.Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("redis: marshal listing %d: %w", listing.ID, err)
	}
	if err := lc.rdb.Set(ctx, listingKey(listing.ID), data, listingTTL).Err(); err != nil {
		return fmt.Errorf("redis: set listing %d: %w", listing.ID, err)
	}
	return nil
}

// Get retrieves a listing by ID. It returns domain.ErrNotFound when the key
// does not exist.
func (lc *ListingCache) Get(ctx context.Context, id uint64) (domain.Listing, error) {
	data, err := lc.rdb.Get(ctx, listingKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("redis: get listing %d: %w", id, err)
	}

	var listing domain.Listing
	if err := json.Unmarshal(data, &listing); err != nil {
		return domain.Listing{}, fmt.Errorf("redis: unmarshal listing %d: %w", id, err)
	}
	return listing, nil
}

// Invalidate removes a listing from the cache. Called after a confirmed write
// touching the listing, once its settle delay has elapsed.
func (lc *ListingCache) Invalidate(ctx context.Context, id uint64) error {
	if err := lc.rdb.Del(ctx, listingKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate listing %d: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ListingCache = (*ListingCache)(nil)
