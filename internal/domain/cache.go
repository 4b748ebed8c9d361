package domain

import (
	"context"
	"time"
)

// ListingCache provides fast listing lookups for the dashboard read path.
// Entries are invalidated after a gasless write confirms and its settle delay
// elapses, so readers never see state older than the RPC node itself.
type ListingCache interface {
	Set(ctx context.Context, listing Listing) error
	Get(ctx context.Context, id uint64) (Listing, error)
	Invalidate(ctx context.Context, id uint64) error
}

// RateLimiter provides distributed rate limiting, keyed per signer, used to
// pre-throttle relay submissions before the relay's own HTTP 429 kicks in.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. The archive job takes a lock so
// only one instance exports a given batch.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
