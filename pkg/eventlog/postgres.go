// Copyright 2025 Certen Protocol
//
// PostgreSQL secondary index for the event log, adapted from
// pkg/database's connection-pooling Client: same lib/pq driver, narrowed
// here to the one table the event log needs instead of a general
// repository layer.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/certenio/manynet/pkg/identity"
)

// PostgresIndex is a SecondaryIndex backed by a single `events` table.
type PostgresIndex struct {
	db *sql.DB
}

// OpenPostgresIndex connects to dsn and ensures the events table exists.
func OpenPostgresIndex(ctx context.Context, dsn string) (*PostgresIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: failed to ping database: %w", err)
	}
	idx := &PostgresIndex{db: db}
	if err := idx.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS events (
	id BYTEA PRIMARY KEY,
	height BIGINT NOT NULL,
	kind TEXT NOT NULL,
	from_identity TEXT,
	to_identity TEXT
);
CREATE INDEX IF NOT EXISTS events_kind_idx ON events (kind);
CREATE INDEX IF NOT EXISTS events_from_idx ON events (from_identity);
CREATE INDEX IF NOT EXISTS events_to_idx ON events (to_identity);
`

func (p *PostgresIndex) migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schemaSQL)
	return err
}

// Close closes the underlying connection pool.
func (p *PostgresIndex) Close() error {
	return p.db.Close()
}

// Index inserts e's queryable columns. The row body itself (the wire
// representation) still lives only in the authenticated KV store; this
// table exists purely to accelerate Query.
func (p *PostgresIndex) Index(e Event) error {
	var fromText, toText *string
	if len(e.From) > 0 {
		if id, err := identity.FromBytes(e.From); err == nil {
			s := id.ToText()
			fromText = &s
		}
	}
	if len(e.To) > 0 {
		if id, err := identity.FromBytes(e.To); err == nil {
			s := id.ToText()
			toText = &s
		}
	}
	_, err := p.db.Exec(
		`INSERT INTO events (id, height, kind, from_identity, to_identity)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		e.ID.Bytes(), e.Height, e.Kind, fromText, toText,
	)
	return err
}

// Query resolves a Filter against indexed columns only and returns
// id/height/kind stubs; Log.Filter re-hydrates full event bodies from the
// KV store before returning to its own caller.
func (p *PostgresIndex) Query(f Filter) (Page, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argN := 1

	if f.Kind != "" {
		where += fmt.Sprintf(" AND kind = $%d", argN)
		args = append(args, f.Kind)
		argN++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND from_identity = $%d", argN)
		args = append(args, f.From.ToText())
		argN++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND to_identity = $%d", argN)
		args = append(args, f.To.ToText())
		argN++
	}

	if len(f.PageToken) > 0 {
		cmp := ">"
		if f.Order == OrderDescending {
			cmp = "<"
		}
		where += fmt.Sprintf(" AND id %s $%d", cmp, argN)
		args = append(args, f.PageToken)
		argN++
	}

	order := "ASC"
	if f.Order == OrderDescending {
		order = "DESC"
	}
	limit := f.pageSize() + 1
	query := fmt.Sprintf("SELECT id, height, kind FROM events %s ORDER BY id %s LIMIT %d", where, order, limit)

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var idBytes []byte
		var e Event
		if err := rows.Scan(&idBytes, &e.Height, &e.Kind); err != nil {
			return Page{}, err
		}
		copy(e.ID[:], idBytes)
		out = append(out, e)
	}

	var next []byte
	if len(out) == f.pageSize()+1 {
		out = out[:len(out)-1]
		next = out[len(out)-1].ID.Bytes()
	}
	return Page{Events: out, NextPageToken: next}, rows.Err()
}
