package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openharvest/harvestd/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL. Rows mirror
// chain state joined with pinned metadata; the chain stays authoritative and
// rows are refreshed by upsert whenever the dashboard re-reads a listing.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given connection
// pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// Upsert inserts or refreshes a listing row. Metadata is stored as JSONB.
func (s *ListingStore) Upsert(ctx context.Context, listing domain.Listing) error {
	metaJSON, err := json.Marshal(listing.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal listing metadata: %w", err)
	}

	const query = `
		INSERT INTO listings (id, seller, metadata_cid, unit_price, quantity, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			seller = EXCLUDED.seller,
			metadata_cid = EXCLUDED.metadata_cid,
			unit_price = EXCLUDED.unit_price,
			quantity = EXCLUDED.quantity,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()`
	_, err = s.pool.Exec(ctx, query,
		int64(listing.ID), listing.Seller, listing.MetadataCID,
		listing.UnitPrice, int64(listing.Quantity), string(listing.Status), metaJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert listing %d: %w", listing.ID, err)
	}
	return nil
}

const listingColumns = `id, seller, metadata_cid, unit_price, quantity, status, metadata, created_at, updated_at`

func scanListing(row pgx.Row) (domain.Listing, error) {
	var l domain.Listing
	var id, quantity int64
	var status string
	var metaJSON []byte

	err := row.Scan(&id, &l.Seller, &l.MetadataCID, &l.UnitPrice, &quantity, &status, &metaJSON, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return domain.Listing{}, err
	}
	l.ID = uint64(id)
	l.Quantity = uint64(quantity)
	l.Status = domain.ListingStatus(status)
	if metaJSON != nil {
		if err := json.Unmarshal(metaJSON, &l.Metadata); err != nil {
			return domain.Listing{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return l, nil
}

// GetByID returns a single listing.
func (s *ListingStore) GetByID(ctx context.Context, id uint64) (domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	l, err := scanListing(s.pool.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %d: %w", id, err)
	}
	return l, nil
}

// ListBySeller returns a seller's listings, newest first.
func (s *ListingStore) ListBySeller(ctx context.Context, seller string, opts domain.ListOpts) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE seller = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, []any{seller}, opts, 2)
}

// ListActive returns active listings for the marketplace feed, newest first.
func (s *ListingStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE status = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, []any{string(domain.ListingStatusActive)}, opts, 2)
}

func (s *ListingStore) list(ctx context.Context, query string, args []any, opts domain.ListOpts, argIdx int) ([]domain.Listing, error) {
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list listings rows: %w", err)
	}
	return listings, nil
}

var _ domain.ListingStore = (*ListingStore)(nil)
