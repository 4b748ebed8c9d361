package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openharvest/harvestd/internal/domain"
)

// OperationStore implements domain.OperationStore using PostgreSQL.
type OperationStore struct {
	pool *pgxpool.Pool
}

// NewOperationStore creates a new OperationStore backed by the given
// connection pool.
func NewOperationStore(pool *pgxpool.Pool) *OperationStore {
	return &OperationStore{pool: pool}
}

// Create inserts the initial audit record for a gasless operation.
func (s *OperationStore) Create(ctx context.Context, op domain.Operation) error {
	const query = `
		INSERT INTO operations (id, signer, target, function, state, attempts, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		op.ID, op.Signer, string(op.Target), op.Function, string(op.State), op.Attempts, op.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create operation %s: %w", op.ID, err)
	}
	return nil
}

// UpdateState records a non-terminal state transition.
func (s *OperationStore) UpdateState(ctx context.Context, id string, state domain.OperationState, attempts int) error {
	const query = `UPDATE operations SET state = $2, attempts = $3 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, string(state), attempts)
	if err != nil {
		return fmt.Errorf("postgres: update operation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: operation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Complete finalizes the record with its terminal state and outcome.
func (s *OperationStore) Complete(ctx context.Context, id string, state domain.OperationState, txHash string, kind domain.ErrorKind, detail string) error {
	const query = `
		UPDATE operations
		SET state = $2, tx_hash = $3, error_kind = $4, error_detail = $5, completed_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, string(state), txHash, string(kind), detail)
	if err != nil {
		return fmt.Errorf("postgres: complete operation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: operation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

const operationColumns = `id, signer, target, function, state, attempts, tx_hash, error_kind, error_detail, started_at, completed_at`

func scanOperation(row pgx.Row) (domain.Operation, error) {
	var op domain.Operation
	var target, state, kind string
	err := row.Scan(
		&op.ID, &op.Signer, &target, &op.Function, &state, &op.Attempts,
		&op.TxHash, &kind, &op.ErrorDetail, &op.StartedAt, &op.CompletedAt,
	)
	if err != nil {
		return domain.Operation{}, err
	}
	op.Target = domain.Target(target)
	op.State = domain.OperationState(state)
	op.ErrorKind = domain.ErrorKind(kind)
	return op, nil
}

// GetByID returns a single operation record.
func (s *OperationStore) GetByID(ctx context.Context, id string) (domain.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = $1`
	op, err := scanOperation(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Operation{}, domain.ErrNotFound
		}
		return domain.Operation{}, fmt.Errorf("postgres: get operation %s: %w", id, err)
	}
	return op, nil
}

// ListBySigner returns a signer's operations, newest first.
func (s *OperationStore) ListBySigner(ctx context.Context, signer string, opts domain.ListOpts) ([]domain.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE signer = $1`
	args := []any{signer}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND started_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND started_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY started_at DESC"

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
		return nil, fmt.Errorf("postgres: list operations for %s: %w", signer, err)
	}
	defer rows.Close()

	var ops []domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list operations rows: %w", err)
	}
	return ops, nil
}

// ListTerminalBefore returns completed operations older than cutoff, oldest
// first, for the archival job.
func (s *OperationStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Operation, error) {
	query := `SELECT ` + operationColumns + `
		FROM operations
		WHERE completed_at IS NOT NULL AND completed_at < $1
		ORDER BY completed_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list terminal operations rows: %w", err)
	}
	return ops, nil
}

// DeleteBatch removes the given operations after successful archival.
func (s *OperationStore) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `DELETE FROM operations WHERE id = ANY($1)`
	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("postgres: delete %d operations: %w", len(ids), err)
	}
	return nil
}

var _ domain.OperationStore = (*OperationStore)(nil)
