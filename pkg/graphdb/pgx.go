package graphdb

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxIConn is the subset of a pgx pool or connection the client needs.
// Taking the interface keeps the client testable against fakes.
type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// PgxClient implements Client on PostgreSQL via pgx. Named parameters in the
// query text (@name) are bound with pgx.NamedArgs.
type PgxClient struct {
	conn pgxIConn
}

// NewPgxClientParams configures a PgxClient.
type NewPgxClientParams struct {
	Conn pgxIConn
}

// NewPgxClient creates a PgxClient over an existing pool or connection.
func NewPgxClient(params NewPgxClientParams) (*PgxClient, error) {
	if params.Conn == nil {
		return nil, fmt.Errorf("graphdb client requires a connection")
	}
	return &PgxClient{conn: params.Conn}, nil
}

func (c *PgxClient) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	rows, err := c.conn.Query(ctx, query, pgxv5.NamedArgs(params))
	if err != nil {
		return nil, fmt.Errorf("graph read failed: %w", err)
	}
	defer rows.Close()

	return collectRows(rows)
}

func (c *PgxClient) ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	rows, err := c.conn.Query(ctx, query, pgxv5.NamedArgs(params))
	if err != nil {
		return nil, fmt.Errorf("graph write failed: %w", err)
	}
	defer rows.Close()

	return collectRows(rows)
}

// ExecuteWriteBatch runs all statements inside one transaction so a partial
// batch never becomes visible.
func (c *PgxClient) ExecuteWriteBatch(ctx context.Context, statements []Statement) error {
	if len(statements) == 0 {
		return nil
	}

	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("graph batch begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgxv5.Batch{}
	for _, statement := range statements {
		batch.Queue(statement.Query, pgxv5.NamedArgs(statement.Params))
	}

	results := tx.SendBatch(ctx, batch)
	for i := range statements {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("graph batch statement %d failed: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("graph batch close failed: %w", err)
	}

	return tx.Commit(ctx)
}

func collectRows(rows pgxv5.Rows) ([]Row, error) {
	fields := rows.FieldDescriptions()

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("graph row scan failed: %w", err)
		}
		row := make(Row, len(fields))
		for i, field := range fields {
			row[field.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graph rows failed: %w", err)
	}

	return out, nil
}
