// Package sqlite stores the product catalog and validations in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/product-validation-service/domain"

	_ "modernc.org/sqlite"
)

// Catalog is the product list seeded on first open.
var Catalog = []string{"COMIC_BOOKS", "BOOKS", "MOVIES", "MUSIC"}

const schema = `
CREATE TABLE IF NOT EXISTS products (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    code    TEXT    NOT NULL UNIQUE
);

-- One row per saga; the unique pair is the idempotency guard.
CREATE TABLE IF NOT EXISTS validations (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id        TEXT    NOT NULL,
    transaction_id  TEXT    NOT NULL,
    success         INTEGER NOT NULL,
    created_at      TEXT    NOT NULL,
    updated_at      TEXT    NOT NULL,
    UNIQUE (order_id, transaction_id)
);
`

// Repository implements domain.ValidationRepository and domain.ProductRepository.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path, applies the schema and
// seeds the catalog.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	for _, code := range Catalog {
		if _, err := db.Exec(`INSERT OR IGNORE INTO products (code) VALUES (?)`, code); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: seed product %s: %w", code, err)
		}
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping is used by the health check.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM products WHERE code = ?`, code).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: exists product %q: %w", code, err)
	}
	return n > 0, nil
}

func (r *Repository) ExistsByOrderIDAndTransactionID(ctx context.Context, orderID, transactionID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM validations WHERE order_id = ? AND transaction_id = ?`,
		orderID, transactionID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: exists validation %q: %w", transactionID, err)
	}
	return n > 0, nil
}

func (r *Repository) FindByOrderIDAndTransactionID(ctx context.Context, orderID, transactionID string) (*domain.Validation, error) {
	const q = `
		SELECT id, order_id, transaction_id, success, created_at, updated_at
		FROM   validations
		WHERE  order_id = ? AND transaction_id = ?`

	var (
		v                    domain.Validation
		createdAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, q, orderID, transactionID).Scan(
		&v.ID, &v.OrderID, &v.TransactionID, &v.Success, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find validation %q: %w", transactionID, err)
	}

	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if v.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// Insert stores v and sets its ID. The unique pair turns a concurrent
// duplicate into domain.ErrDuplicate.
func (r *Repository) Insert(ctx context.Context, v *domain.Validation) error {
	const q = `
		INSERT INTO validations (order_id, transaction_id, success, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (order_id, transaction_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, q,
		v.OrderID, v.TransactionID, v.Success, formatTime(v.CreatedAt), formatTime(v.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert validation %q: %w", v.TransactionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: insert validation %q: %w", v.TransactionID, err)
	}
	if n == 0 {
		return domain.ErrDuplicate
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("sqlite: insert validation %q: %w", v.TransactionID, err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, v *domain.Validation) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE validations SET success = ?, updated_at = ? WHERE id = ?`,
		v.Success, formatTime(v.UpdatedAt), v.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update validation %d: %w", v.ID, err)
	}
	return nil
}

// Same fixed-width UTC layout as the order store, so the TEXT columns sort
// lexically even when sub-second digits differ.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

var (
	_ domain.ValidationRepository = (*Repository)(nil)
	_ domain.ProductRepository    = (*Repository)(nil)
)
