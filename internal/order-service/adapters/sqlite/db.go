// Package sqlite stores orders and saga events in SQLite.
//
// WAL mode is enabled on Open so that readers never block writers: the
// notify_ending consumer writes while the HTTP API reads.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Pure-Go driver, no CGO needed in the Alpine images.
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id               TEXT PRIMARY KEY,
    transaction_id   TEXT NOT NULL UNIQUE,

    -- JSON array of {productCode, quantity, unitValue}.
    items            TEXT NOT NULL,

    -- PENDING until the saga ends, then COMPLETED or CANCELLED.
    status           TEXT NOT NULL,

    -- NULL when the client sent no x-idempotency-key header.
    idempotency_key  TEXT UNIQUE,

    -- 1 once start_saga was published; a replay re-publishes while 0.
    saga_started     INTEGER NOT NULL DEFAULT 0,

    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

-- One row per saga. The row is replaced as the envelope comes back from
-- notify_ending, so it always holds the latest known status and history.
CREATE TABLE IF NOT EXISTS saga_events (
    id              TEXT PRIMARY KEY,
    transaction_id  TEXT NOT NULL,
    order_id        TEXT NOT NULL,
    source          TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT '',
    payload         TEXT NOT NULL,
    history         TEXT NOT NULL DEFAULT '[]',

    -- W3C ids of the span active when the row was written.
    trace_id        TEXT NOT NULL DEFAULT '',
    span_id         TEXT NOT NULL DEFAULT '',

    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_events_order_id ON saga_events(order_id, created_at);
CREATE INDEX IF NOT EXISTS idx_saga_events_transaction_id ON saga_events(transaction_id, created_at);
CREATE INDEX IF NOT EXISTS idx_saga_events_created_at ON saga_events(created_at);
`

// DB is the shared connection behind the order and event repositories.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
//
//	db, err := sqlite.Open("./data/orders.db")
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// nullableString returns nil for empty strings so SQLite stores NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
