package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/ports"
)

type itemRow struct {
	ProductCode string  `json:"productCode"`
	Quantity    int     `json:"quantity"`
	UnitValue   float64 `json:"unitValue"`
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(d *DB) *OrderRepository {
	return &OrderRepository{db: d.db}
}

func (r *OrderRepository) Save(ctx context.Context, o *domain.Order) error {
	rows := make([]itemRow, len(o.Items))
	for i, it := range o.Items {
		rows[i] = itemRow{ProductCode: it.ProductCode, Quantity: it.Quantity, UnitValue: it.UnitValue}
	}
	items, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("sqlite: encode items of order %q: %w", o.ID, err)
	}

	const q = `
		INSERT INTO orders (id, transaction_id, items, status, idempotency_key, saga_started, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, q,
		o.ID,
		o.TransactionID,
		string(items),
		string(o.Status),
		nullableString(o.IdempotencyKey),
		o.SagaStarted,
		formatTime(o.CreatedAt),
		formatTime(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save order %q: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOne(ctx, "id", id)
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return r.findOne(ctx, "idempotency_key", key)
}

func (r *OrderRepository) findOne(ctx context.Context, column, value string) (*domain.Order, error) {
	q := `
		SELECT id, transaction_id, items, status, COALESCE(idempotency_key, ''), saga_started, created_at, updated_at
		FROM   orders
		WHERE  ` + column + ` = ?`

	var (
		o                           domain.Order
		items, createdAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, q, value).Scan(
		&o.ID, &o.TransactionID, &items, &o.Status, &o.IdempotencyKey, &o.SagaStarted, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find order by %s: %w", column, err)
	}

	var rows []itemRow
	if err := json.Unmarshal([]byte(items), &rows); err != nil {
		return nil, fmt.Errorf("sqlite: decode items of order %q: %w", o.ID, err)
	}
	for _, row := range rows {
		o.Items = append(o.Items, domain.OrderItem{ProductCode: row.ProductCode, Quantity: row.Quantity, UnitValue: row.UnitValue})
	}

	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update order %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update order %q: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) MarkSagaStarted(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET saga_started = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: mark order %q started: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: mark order %q started: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ ports.OrderRepository = (*OrderRepository)(nil)
