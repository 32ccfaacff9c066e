package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgTable = "bfi_bench"

// pgBackend stores one column per field with a btree index on each, the
// conventional alternative to a signature scan
type pgBackend struct {
	pool    *pgxpool.Pool
	pending [][]any
	columns []string
}

func newPGBackend(ctx context.Context, databaseURL string) (*pgBackend, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.MaxConns = 4
	config.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	columns := []string{"pk"}
	defs := []string{"pk INTEGER PRIMARY KEY"}
	for f := 0; f < fields; f++ {
		columns = append(columns, fmt.Sprintf("foo_%d", f))
		defs = append(defs, fmt.Sprintf("foo_%d TEXT NOT NULL", f))
	}

	stmts := []string{
		"DROP TABLE IF EXISTS " + pgTable,
		fmt.Sprintf("CREATE TABLE %s (%s)", pgTable, strings.Join(defs, ", ")),
	}
	for _, c := range columns[1:] {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX ON %s (%s)", pgTable, c))
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return &pgBackend{pool: pool, columns: columns}, nil
}

func (p *pgBackend) Name() string { return "PostgreSQL" }

// Add buffers rows until Sync copies them in one batch
func (p *pgBackend) Add(_ context.Context, pk int, values []string) error {
	row := make([]any, 0, len(values)+1)
	row = append(row, pk)
	for _, v := range values {
		_, value, _ := strings.Cut(v, ":")
		row = append(row, value)
	}
	p.pending = append(p.pending, row)
	return nil
}

func (p *pgBackend) Sync(ctx context.Context) error {
	if len(p.pending) == 0 {
		return nil
	}
	_, err := p.pool.CopyFrom(ctx, pgx.Identifier{pgTable}, p.columns, pgx.CopyFromRows(p.pending))
	if err != nil {
		return err
	}
	p.pending = p.pending[:0]
	_, err = p.pool.Exec(ctx, "ANALYZE "+pgTable)
	return err
}

func (p *pgBackend) Lookup(ctx context.Context, terms []string) ([]int, error) {
	where := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms))
	for i, term := range terms {
		field, value, ok := strings.Cut(term, ":")
		if !ok {
			return nil, fmt.Errorf("term %q is not field:value", term)
		}
		where = append(where, fmt.Sprintf("%s = $%d", strings.ToLower(field), i+1))
		args = append(args, value)
	}
	query := fmt.Sprintf("SELECT pk FROM %s WHERE %s ORDER BY pk", pgTable, strings.Join(where, " AND "))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

func (p *pgBackend) Size(ctx context.Context) (int64, error) {
	var size int64
	err := p.pool.QueryRow(ctx, "SELECT pg_total_relation_size($1)", pgTable).Scan(&size)
	return size, err
}

func (p *pgBackend) Close() error {
	p.pool.Close()
	return nil
}
