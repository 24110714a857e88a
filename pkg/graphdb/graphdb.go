package graphdb

import (
	"context"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Statement is a parameterized query queued into a write batch. Parameters
// are always bound, never interpolated into the query text.
type Statement struct {
	Query  string
	Params map[string]any
}

// Client is the graph-query surface the engine builds on. Reads and writes
// are single statements; ExecuteWriteBatch flushes a sequence of statements
// in one round trip and one transaction.
type Client interface {
	ExecuteRead(ctx context.Context, query string, params map[string]any) ([]Row, error)
	ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]Row, error)
	ExecuteWriteBatch(ctx context.Context, statements []Statement) error
}
