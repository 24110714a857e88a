package retrieval

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/graphweave/graphweave/pkg/graphdb"
	"github.com/graphweave/graphweave/pkg/logger"
)

// QueryType is the closed set of structured queries the compiler knows.
type QueryType string

const (
	NotStructured QueryType = "NOT_STRUCTURED"

	CountDocuments     QueryType = "COUNT_DOCUMENTS"
	ListDocuments      QueryType = "LIST_DOCUMENTS"
	CountEntities      QueryType = "COUNT_ENTITIES"
	ListEntities       QueryType = "LIST_ENTITIES"
	ListEntityTypes    QueryType = "LIST_ENTITY_TYPES"
	CountRelationships QueryType = "COUNT_RELATIONSHIPS"
	ListRelationships  QueryType = "LIST_RELATIONSHIPS"
	CountChunks        QueryType = "COUNT_CHUNKS"
	GraphStats         QueryType = "GRAPH_STATS"
)

// detectorRules map query phrasings to query types; first match wins.
// Matching is case-insensitive over the normalized query.
var detectorRules = []struct {
	pattern   *regexp.Regexp
	queryType QueryType
}{
	{regexp.MustCompile(`how many (documents|files)`), CountDocuments},
	{regexp.MustCompile(`(list|show|what)( all| are)?( the)? documents`), ListDocuments},
	{regexp.MustCompile(`(number|count) of (documents|files)`), CountDocuments},
	{regexp.MustCompile(`how many entities`), CountEntities},
	{regexp.MustCompile(`(number|count) of entities`), CountEntities},
	{regexp.MustCompile(`(list|show|what)( all| are)?( the)? entities`), ListEntities},
	{regexp.MustCompile(`(list|show|what)( all| are)?( the)? entity types`), ListEntityTypes},
	{regexp.MustCompile(`(what|which) types of entities`), ListEntityTypes},
	{regexp.MustCompile(`how many (relationships|connections)`), CountRelationships},
	{regexp.MustCompile(`(number|count) of (relationships|connections)`), CountRelationships},
	{regexp.MustCompile(`(list|show)( all| the)? (relationships|connections)`), ListRelationships},
	{regexp.MustCompile(`how many chunks`), CountChunks},
	{regexp.MustCompile(`(graph|knowledge base) (stats|statistics|overview)`), GraphStats},
}

// DetectQueryType classifies a query against the ordered rule set.
func DetectQueryType(query string) QueryType {
	normalized := strings.ToLower(strings.TrimSpace(query))
	for _, rule := range detectorRules {
		if rule.pattern.MatchString(normalized) {
			return rule.queryType
		}
	}
	return NotStructured
}

// queryTemplates map each query type to one fixed parameterized template.
// User input is never part of the query text; tenant and limit are bound.
var queryTemplates = map[QueryType]string{
	CountDocuments: `SELECT count(*) AS count FROM documents WHERE tenant_id = @tenant_id`,
	ListDocuments: `SELECT id, title FROM documents
WHERE tenant_id = @tenant_id ORDER BY title LIMIT @limit`,
	CountEntities: `SELECT count(*) AS count FROM entities WHERE tenant_id = @tenant_id`,
	ListEntities: `SELECT name, type, importance_score FROM entities
WHERE tenant_id = @tenant_id ORDER BY importance_score DESC LIMIT @limit`,
	ListEntityTypes: `SELECT type, count(*) AS count FROM entities
WHERE tenant_id = @tenant_id GROUP BY type ORDER BY count DESC LIMIT @limit`,
	CountRelationships: `SELECT count(*) AS count FROM relationships WHERE tenant_id = @tenant_id`,
	ListRelationships: `SELECT source_entity, target_entity, relationship_type, strength FROM relationships
WHERE tenant_id = @tenant_id ORDER BY strength DESC LIMIT @limit`,
	CountChunks: `SELECT count(*) AS count FROM chunks WHERE tenant_id = @tenant_id`,
	GraphStats: `SELECT
  (SELECT count(*) FROM documents WHERE tenant_id = @tenant_id) AS documents,
  (SELECT count(*) FROM chunks WHERE tenant_id = @tenant_id) AS chunks,
  (SELECT count(*) FROM entities WHERE tenant_id = @tenant_id) AS entities,
  (SELECT count(*) FROM relationships WHERE tenant_id = @tenant_id) AS relationships,
  (SELECT count(*) FROM communities WHERE tenant_id = @tenant_id) AS communities`,
}

// countTypes return a scalar count instead of rows.
var countTypes = map[QueryType]bool{
	CountDocuments:     true,
	CountEntities:      true,
	CountRelationships: true,
	CountChunks:        true,
}

// StructuredResult is the typed outcome of a structured execution. A failed
// execution is a result with Success=false, never an error to the caller.
type StructuredResult struct {
	QueryType  QueryType
	Success    bool
	Rows       []graphdb.Row
	Count      *int64
	Error      string
	DurationMs int64
}

const defaultStructuredLimit = 50

var errNoGraphClient = errors.New("structured executor requires a graph client")

// StructuredExecutor compiles and runs structured queries.
type StructuredExecutor struct {
	db    graphdb.Client
	limit int
}

// NewStructuredExecutorParams configures a StructuredExecutor.
type NewStructuredExecutorParams struct {
	DB    graphdb.Client
	Limit int
}

// NewStructuredExecutor creates a StructuredExecutor.
func NewStructuredExecutor(params NewStructuredExecutorParams) (*StructuredExecutor, error) {
	if params.DB == nil {
		return nil, errNoGraphClient
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultStructuredLimit
	}
	return &StructuredExecutor{db: params.DB, limit: limit}, nil
}

// TryExecute runs detect, generate, execute. It returns nil when the query
// is not structured so the caller falls through to the retrieval pipeline,
// and never returns an error: execution failures come back as a failed
// result.
func (e *StructuredExecutor) TryExecute(ctx context.Context, query string, tenantID string) *StructuredResult {
	queryType := DetectQueryType(query)
	if queryType == NotStructured {
		return nil
	}

	template := queryTemplates[queryType]
	start := time.Now()

	rows, err := e.db.ExecuteRead(ctx, template, map[string]any{
		"tenant_id": tenantID,
		"limit":     e.limit,
	})
	result := &StructuredResult{
		QueryType:  queryType,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		logger.Warn("[Structured] Execution failed", "type", queryType, "error", err)
		result.Error = err.Error()
		return result
	}

	result.Success = true
	if countTypes[queryType] {
		result.Count = extractCount(rows)
	} else {
		result.Rows = rows
	}
	return result
}

func extractCount(rows []graphdb.Row) *int64 {
	zero := int64(0)
	if len(rows) == 0 {
		return &zero
	}
	switch v := rows[0]["count"].(type) {
	case int64:
		return &v
	case int:
		n := int64(v)
		return &n
	case float64:
		n := int64(v)
		return &n
	}
	return &zero
}
