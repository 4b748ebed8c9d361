package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openharvest/harvestd/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. Like listings,
// rows mirror chain state; the contract's order state machine is
// authoritative and rows are refreshed after each confirmed transition.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Upsert inserts or refreshes an order row.
func (s *OrderStore) Upsert(ctx context.Context, order domain.Order) error {
	const query = `
		INSERT INTO orders (id, listing_id, buyer, seller, quantity, total, status, tx_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			total = EXCLUDED.total,
			status = EXCLUDED.status,
			tx_hash = EXCLUDED.tx_hash,
			updated_at = NOW()`
	_, err := s.pool.Exec(ctx, query,
		int64(order.ID), int64(order.ListingID), order.Buyer, order.Seller,
		int64(order.Quantity), order.Total, string(order.Status), order.TxHash,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order %d: %w", order.ID, err)
	}
	return nil
}

// UpdateStatus records a confirmed order-state transition and the transaction
// that caused it.
func (s *OrderStore) UpdateStatus(ctx context.Context, id uint64, status domain.OrderStatus, txHash string) error {
	const query = `UPDATE orders SET status = $2, tx_hash = $3, updated_at = NOW() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, int64(id), string(status), txHash)
	if err != nil {
		return fmt.Errorf("postgres: update order %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: order %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

const orderColumns = `id, listing_id, buyer, seller, quantity, total, status, tx_hash, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var id, listingID, quantity int64
	var status string

	err := row.Scan(&id, &listingID, &o.Buyer, &o.Seller, &quantity, &o.Total, &status, &o.TxHash, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.ID = uint64(id)
	o.ListingID = uint64(listingID)
	o.Quantity = uint64(quantity)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// GetByID returns a single order.
func (s *OrderStore) GetByID(ctx context.Context, id uint64) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(s.pool.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %d: %w", id, err)
	}
	return o, nil
}

// ListBySeller returns orders where the given address is the seller, newest
// first.
func (s *OrderStore) ListBySeller(ctx context.Context, seller string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE seller = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, []any{seller}, opts, 2)
}

// ListByBuyer returns orders where the given address is the buyer, newest
// first.
func (s *OrderStore) ListByBuyer(ctx context.Context, buyer string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE buyer = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, []any{buyer}, opts, 2)
}

func (s *OrderStore) list(ctx context.Context, query string, args []any, opts domain.ListOpts, argIdx int) ([]domain.Order, error) {
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
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return orders, nil
}

var _ domain.OrderStore = (*OrderStore)(nil)
