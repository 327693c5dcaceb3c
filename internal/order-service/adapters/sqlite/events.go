package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/order-service/ports"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/telemetry"
	"github.com/jcmexdev/orchestrated-sagas/internal/saga"
)

type EventRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewEventRepository(d *DB) *EventRepository {
	return &EventRepository{db: d.db, now: func() time.Time { return time.Now().UTC() }}
}

// Save upserts e by id, assigning a new id first if it has none.
func (r *EventRepository) Save(ctx context.Context, e *saga.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("sqlite: encode payload of %q: %w", e.TransactionID, err)
	}
	history := e.History
	if history == nil {
		history = []saga.History{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("sqlite: encode history of %q: %w", e.TransactionID, err)
	}

	ti := telemetry.ExtractTraceInfo(ctx)

	const q = `
		INSERT INTO saga_events
			(id, transaction_id, order_id, source, status, payload, history, trace_id, span_id, created_at, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source     = excluded.source,
			status     = excluded.status,
			payload    = excluded.payload,
			history    = excluded.history,
			trace_id   = excluded.trace_id,
			span_id    = excluded.span_id,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, q,
		e.ID,
		e.TransactionID,
		e.OrderID,
		string(e.Source),
		string(e.Status),
		string(payload),
		string(historyJSON),
		ti.TraceID,
		ti.SpanID,
		formatTime(e.CreatedAt),
		formatTime(r.now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save event %q: %w", e.TransactionID, err)
	}
	return nil
}

const selectEvents = `
	SELECT id, transaction_id, order_id, source, status, payload, history, created_at
	FROM   saga_events`

func (r *EventRepository) FindAllOrderByCreatedAtDesc(ctx context.Context) ([]saga.Event, error) {
	rows, err := r.db.QueryContext(ctx, selectEvents+` ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	defer rows.Close()

	events := []saga.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	return events, nil
}

func (r *EventRepository) FindTop1ByOrderIDOrderByCreatedAtDesc(ctx context.Context, orderID string) (*saga.Event, error) {
	return r.findLatest(ctx, "order_id", orderID)
}

func (r *EventRepository) FindTop1ByTransactionIDOrderByCreatedAtDesc(ctx context.Context, transactionID string) (*saga.Event, error) {
	return r.findLatest(ctx, "transaction_id", transactionID)
}

func (r *EventRepository) findLatest(ctx context.Context, column, value string) (*saga.Event, error) {
	row := r.db.QueryRowContext(ctx,
		selectEvents+` WHERE `+column+` = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		value,
	)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*saga.Event, error) {
	var (
		e                           saga.Event
		payload, history, createdAt string
	)
	err := s.Scan(&e.ID, &e.TransactionID, &e.OrderID, &e.Source, &e.Status, &payload, &history, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan event: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return nil, fmt.Errorf("sqlite: decode payload of %q: %w", e.TransactionID, err)
	}
	if err := json.Unmarshal([]byte(history), &e.History); err != nil {
		return nil, fmt.Errorf("sqlite: decode history of %q: %w", e.TransactionID, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &e, nil
}

var _ ports.EventRepository = (*EventRepository)(nil)
