// Package postgres stores payments in PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/jcmexdev/orchestrated-sagas/internal/payment-service/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS payments (
    id              BIGSERIAL        PRIMARY KEY,
    order_id        TEXT             NOT NULL,
    transaction_id  TEXT             NOT NULL,
    total_items     INTEGER          NOT NULL,
    total_amount    DOUBLE PRECISION NOT NULL,
    status          TEXT             NOT NULL,
    created_at      TIMESTAMPTZ      NOT NULL,
    updated_at      TIMESTAMPTZ      NOT NULL,
    CONSTRAINT payments_order_transaction_key UNIQUE (order_id, transaction_id)
);
`

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	repo := New(db)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// New wraps an open connection pool.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the payments table if needed.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) ExistsByOrderIDAndTransactionID(ctx context.Context, orderID, transactionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND transaction_id = $2)`,
		orderID, transactionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: exists payment %q: %w", transactionID, err)
	}
	return exists, nil
}

func (r *Repository) FindByOrderIDAndTransactionID(ctx context.Context, orderID, transactionID string) (*domain.Payment, error) {
	const q = `
		SELECT id, order_id, transaction_id, total_items, total_amount, status, created_at, updated_at
		FROM   payments
		WHERE  order_id = $1 AND transaction_id = $2`

	var p domain.Payment
	err := r.db.QueryRowContext(ctx, q, orderID, transactionID).Scan(
		&p.ID, &p.OrderID, &p.TransactionID, &p.TotalItems, &p.TotalAmount, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find payment %q: %w", transactionID, err)
	}
	return &p, nil
}

// Insert stores p and sets its ID.
func (r *Repository) Insert(ctx context.Context, p *domain.Payment) error {
	const q = `
		INSERT INTO payments (order_id, transaction_id, total_items, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, q,
		p.OrderID, p.TransactionID, p.TotalItems, p.TotalAmount, string(p.Status), p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("postgres: insert payment %q: %w", p.TransactionID, err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, p *domain.Payment) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = $1, total_items = $2, total_amount = $3, updated_at = $4 WHERE id = $5`,
		string(p.Status), p.TotalItems, p.TotalAmount, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update payment %d: %w", p.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var _ domain.Repository = (*Repository)(nil)
