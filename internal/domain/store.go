package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OperationStore persists gasless operation audit records.
type OperationStore interface {
	Create(ctx context.Context, op Operation) error
	UpdateState(ctx context.Context, id string, state OperationState, attempts int) error
	Complete(ctx context.Context, id string, state OperationState, txHash string, kind ErrorKind, detail string) error
	GetByID(ctx context.Context, id string) (Operation, error)
	ListBySigner(ctx context.Context, signer string, opts ListOpts) ([]Operation, error)
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]Operation, error)
	DeleteBatch(ctx context.Context, ids []string) error
}

// ListingStore persists listing records mirrored from chain and IPFS.
type ListingStore interface {
	Upsert(ctx context.Context, listing Listing) error
	GetByID(ctx context.Context, id uint64) (Listing, error)
	ListBySeller(ctx context.Context, seller string, opts ListOpts) ([]Listing, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Listing, error)
}

// OrderStore persists order records mirrored from chain.
type OrderStore interface {
	Upsert(ctx context.Context, order Order) error
	UpdateStatus(ctx context.Context, id uint64, status OrderStatus, txHash string) error
	GetByID(ctx context.Context, id uint64) (Order, error)
	ListBySeller(ctx context.Context, seller string, opts ListOpts) ([]Order, error)
	ListByBuyer(ctx context.Context, buyer string, opts ListOpts) ([]Order, error)
}
