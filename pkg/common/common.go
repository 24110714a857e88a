package common

// Chunk is a contiguous segment of a tenant document and the unit of work
// for graph extraction. Chunks are produced upstream by the ingestion
// pipeline; this package only consumes them.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	TenantID   string `json:"tenant_id"`
	Content    string `json:"content"`
}

// Entity is a node extracted from a chunk. Names and types are canonicalized
// to upper case so that entities from different chunks merge predictably.
//
// ImportanceScore in [0,1] ranks how central the entity is to its source
// text; extraction drops entities below 0.5.
type Entity struct {
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Description     string   `json:"description"`
	ImportanceScore float64  `json:"importance_score"`
	SourceChunks    []string `json:"source_chunks"`
}

// Relationship is a directional edge between two extracted entities,
// referenced by canonical entity name. Strength in [0,1].
type Relationship struct {
	SourceEntity     string   `json:"source_entity"`
	TargetEntity     string   `json:"target_entity"`
	RelationshipType string   `json:"relationship_type"`
	Description      string   `json:"description"`
	Strength         float64  `json:"strength"`
	SourceChunks     []string `json:"source_chunks"`
}

// Usage accumulates model accounting across the LLM calls of one
// extraction (or one whole batch).
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostEstimate float64 `json:"cost_estimate"`
	LLMCalls     int     `json:"llm_calls"`
	CacheHit     bool    `json:"cache_hit"`
	Model        string  `json:"model,omitempty"`
	Provider     string  `json:"provider,omitempty"`
}

// Add folds another usage record into u. CacheHit is left untouched; it
// describes a single lookup and is stamped by the extraction path, not
// derived from folded records.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CostEstimate += other.CostEstimate
	u.LLMCalls += other.LLMCalls
	if other.Model != "" {
		u.Model = other.Model
	}
	if other.Provider != "" {
		u.Provider = other.Provider
	}
}

// ExtractionResult is the outcome of extracting one chunk. CallErrors
// records model-call failures that were absorbed (a failed pass keeps the
// results of earlier passes); ParseErrors records tuple lines the parser
// rejected. Both exist for observability and admission-control signals,
// neither aborts an extraction.
type ExtractionResult struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	Usage         Usage          `json:"usage"`

	CallErrors  []string `json:"-"`
	ParseErrors []string `json:"-"`
}
