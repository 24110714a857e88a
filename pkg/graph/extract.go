package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/graphweave/graphweave/internal/util"
	"github.com/graphweave/graphweave/pkg/ai"
	"github.com/graphweave/graphweave/pkg/common"
	"github.com/graphweave/graphweave/pkg/extractcache"
	"github.com/graphweave/graphweave/pkg/logger"
	"github.com/graphweave/graphweave/pkg/ontology"
	"github.com/graphweave/graphweave/pkg/tenant"
)

// StepGraphExtraction is the tenant-config namespace for extraction
// overrides ("steps.ingestion.graph_extraction.*").
const StepGraphExtraction = "ingestion.graph_extraction"

// ExtractorVersion participates in cache keys. Bump it whenever prompt
// structure, parsing or merge semantics change, so stale cached results are
// never served across releases.
const ExtractorVersion = "1"

// Gleaning modes. Gleaning runs corrective extraction passes over the same
// chunk to recover entities the first pass missed.
const (
	GleaningOff    = "off"
	GleaningAlways = "always"
	GleaningSmart  = "smart"
)

const (
	// minImportance is the quality floor; entities scored below it are
	// dropped after all passes.
	minImportance = 0.5

	// gleanSampleSize bounds how many already-extracted entity names are
	// echoed back into the gleaning prompt.
	gleanSampleSize = 20

	llmCallRetries = 2
)

type gleaningConfig struct {
	mode             string
	maxPasses        int
	minChunkChars    int
	minEntities      int
	minRelationships int
}

func resolveGleaning(cfg *tenant.Config) gleaningConfig {
	gc := gleaningConfig{
		mode:             GleaningSmart,
		maxPasses:        2,
		minChunkChars:    600,
		minEntities:      3,
		minRelationships: 1,
	}

	if mode, ok := cfg.StepString(StepGraphExtraction, "gleaning_mode"); ok {
		switch mode {
		case GleaningOff, GleaningAlways, GleaningSmart:
			gc.mode = mode
		default:
			logger.Warn("[Extract] Unknown gleaning mode, using smart", "mode", mode)
		}
	}
	if v, ok := cfg.StepInt(StepGraphExtraction, "gleaning_max_passes"); ok && v >= 0 {
		gc.maxPasses = v
	}
	if v, ok := cfg.StepInt(StepGraphExtraction, "gleaning_min_chunk_chars"); ok && v > 0 {
		gc.minChunkChars = v
	}
	if v, ok := cfg.StepInt(StepGraphExtraction, "gleaning_min_entities"); ok && v > 0 {
		gc.minEntities = v
	}
	if v, ok := cfg.StepInt(StepGraphExtraction, "gleaning_min_relationships"); ok && v >= 0 {
		gc.minRelationships = v
	}

	return gc
}

// decide returns whether gleaning should run after the first pass and the
// reason, which is logged for observability.
func (gc gleaningConfig) decide(chunkLen, entityYield, relationshipYield int) (bool, string) {
	switch gc.mode {
	case GleaningOff:
		return false, "gleaning disabled"
	case GleaningAlways:
		return gc.maxPasses > 0, "gleaning always on"
	}

	if chunkLen < gc.minChunkChars && entityYield >= gc.minEntities {
		return false, "short chunk with sufficient yield"
	}
	if entityYield < gc.minEntities || relationshipYield < gc.minRelationships {
		return gc.maxPasses > 0, "yield below threshold"
	}
	return false, "sufficient yield"
}

// Extractor turns one chunk of text into entities and relationships via
// ontology-guided prompting. It is safe for concurrent use.
type Extractor struct {
	llm      ai.Client
	cache    *extractcache.Cache
	ontology *ontology.Ontology
	settings *tenant.Settings
}

// NewExtractorParams configures an Extractor. Cache is optional; without
// one every chunk is extracted fresh.
type NewExtractorParams struct {
	LLM      ai.Client
	Cache    *extractcache.Cache
	Ontology *ontology.Ontology
	Settings *tenant.Settings
}

// NewExtractor creates an Extractor. A nil ontology falls back to the
// built-in default.
func NewExtractor(params NewExtractorParams) (*Extractor, error) {
	if params.LLM == nil {
		return nil, fmt.Errorf("extractor requires an AI client")
	}
	if params.Settings == nil {
		return nil, fmt.Errorf("extractor requires worker settings")
	}
	if err := params.Settings.Validate(); err != nil {
		return nil, err
	}

	ont := params.Ontology
	if ont == nil {
		ont = ontology.Default()
	}

	return &Extractor{
		llm:      params.LLM,
		cache:    params.Cache,
		ontology: ont,
		settings: params.Settings,
	}, nil
}

// Extract runs the full per-chunk pipeline: cache lookup, first extraction
// pass, optional gleaning passes, quality filtering, deduplication and
// referential cleanup, then a cache write-through.
//
// Model failures never surface as errors; a failed pass keeps what earlier
// passes produced, so the only error path is tenant misconfiguration.
func (e *Extractor) Extract(
	ctx context.Context,
	chunk common.Chunk,
	cfg *tenant.Config,
) (*common.ExtractionResult, error) {
	step, err := tenant.ResolveStep(cfg, StepGraphExtraction, e.settings)
	if err != nil {
		return nil, err
	}

	entityTypes := strings.Join(e.ontology.EntityTypes, ", ")
	relationshipTypes := strings.Join(e.ontology.RelationshipTypes, ", ")
	prompt := fmt.Sprintf(ai.ExtractPrompt, entityTypes, relationshipTypes, entityTypes, chunk.Content)

	gleanCfg := resolveGleaning(cfg)

	cacheEnabled := e.cache != nil
	if v, ok := cfg.StepBool(StepGraphExtraction, "cache_enabled"); ok {
		cacheEnabled = cacheEnabled && v
	}

	cacheKey := extractcache.Key(extractcache.KeyParams{
		TenantID:         cfg.TenantID(),
		Content:          chunk.Content,
		Prompt:           prompt,
		OntologyHash:     e.ontology.Hash(),
		Model:            step.Model,
		Temperature:      step.Temperature,
		Seed:             step.Seed,
		GleaningMode:     gleanCfg.mode,
		ExtractorVersion: ExtractorVersion,
	})

	if cacheEnabled {
		if cached, found := e.cache.Get(ctx, cacheKey); found {
			logger.Debug("[Extract] Cache hit", "tenant", cfg.TenantID(), "chunk", chunk.ID)
			cached.Usage.CacheHit = true
			stampSourceChunks(cached, chunk.ID)
			return cached, nil
		}
	}

	result := &common.ExtractionResult{}

	response, err := e.generate(ctx, prompt, step)
	if err != nil {
		logger.Error("[Extract] Extraction pass failed", "tenant", cfg.TenantID(), "chunk", chunk.ID, "error", err)
		result.CallErrors = append(result.CallErrors, err.Error())
		return result, nil
	}
	accumulateUsage(&result.Usage, response)

	parsed := ParseTuples(response.Text)
	result.Entities = parsed.Entities
	result.Relationships = parsed.Relationships
	result.ParseErrors = parsed.Errors

	rawOutput := response.Text

	shouldGlean, reason := gleanCfg.decide(len(chunk.Content), len(result.Entities), len(result.Relationships))
	logger.Debug("[Extract] Gleaning decision",
		"chunk", chunk.ID, "glean", shouldGlean, "reason", reason,
		"entities", len(result.Entities), "relationships", len(result.Relationships))

	if shouldGlean {
		rawOutput = e.glean(ctx, chunk, cfg, step, gleanCfg, entityTypes, rawOutput, result)
	}

	result.Entities = filterByImportance(result.Entities, minImportance)
	result.Entities = dedupeEntities(result.Entities)
	result.Relationships = dedupeRelationships(result.Relationships)
	result.Relationships = filterDanglingRelationships(result.Entities, result.Relationships)

	if cacheEnabled && len(result.CallErrors) == 0 {
		e.cache.Set(ctx, cacheKey, result)
	}

	stampSourceChunks(result, chunk.ID)

	return result, nil
}

// glean runs corrective passes. Each pass sees the accumulated raw output of
// every previous pass plus a sample of known entity names, and stops early
// when a pass yields no new entity. Returns the accumulated raw output.
func (e *Extractor) glean(
	ctx context.Context,
	chunk common.Chunk,
	cfg *tenant.Config,
	step *tenant.StepSettings,
	gleanCfg gleaningConfig,
	entityTypes string,
	rawOutput string,
	result *common.ExtractionResult,
) string {
	for pass := 1; pass <= gleanCfg.maxPasses; pass++ {
		sample := sampleEntityNames(result.Entities, gleanSampleSize)
		prompt := fmt.Sprintf(ai.GleanPrompt, entityTypes, strings.Join(sample, ", "), rawOutput, chunk.Content)

		response, err := e.generate(ctx, prompt, step)
		if err != nil {
			logger.Warn("[Extract] Gleaning pass failed, keeping prior results",
				"chunk", chunk.ID, "pass", pass, "error", err)
			result.CallErrors = append(result.CallErrors, err.Error())
			return rawOutput
		}
		accumulateUsage(&result.Usage, response)
		rawOutput += "\n" + response.Text

		parsed := ParseTuples(response.Text)
		result.ParseErrors = append(result.ParseErrors, parsed.Errors...)

		known := make(map[string]struct{}, len(result.Entities))
		for _, entity := range result.Entities {
			known[entity.Name+"|"+entity.Type] = struct{}{}
		}

		newEntities := 0
		for _, entity := range parsed.Entities {
			if _, exists := known[entity.Name+"|"+entity.Type]; exists {
				continue
			}
			result.Entities = append(result.Entities, entity)
			newEntities++
		}
		result.Relationships = append(result.Relationships, parsed.Relationships...)

		logger.Debug("[Extract] Gleaning pass complete",
			"chunk", chunk.ID, "pass", pass, "new_entities", newEntities)

		if newEntities == 0 {
			return rawOutput
		}
	}
	return rawOutput
}

func (e *Extractor) generate(ctx context.Context, prompt string, step *tenant.StepSettings) (*ai.Response, error) {
	opts := []ai.GenerateOption{
		ai.WithModel(step.Model),
		ai.WithTemperature(step.Temperature),
	}
	if step.Seed != nil {
		opts = append(opts, ai.WithSeed(*step.Seed))
	}

	return util.RetryWithContext(ctx, llmCallRetries, func(ctx context.Context) (*ai.Response, error) {
		return e.llm.Generate(ctx, prompt, opts...)
	})
}

func accumulateUsage(usage *common.Usage, response *ai.Response) {
	usage.Add(common.Usage{
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
		TotalTokens:  response.Usage.TotalTokens,
		CostEstimate: response.CostEstimate,
		LLMCalls:     1,
		Model:        response.Model,
		Provider:     response.Provider,
	})
}

func sampleEntityNames(entities []common.Entity, limit int) []string {
	if len(entities) < limit {
		limit = len(entities)
	}
	names := make([]string, 0, limit)
	for _, entity := range entities[:limit] {
		names = append(names, entity.Name)
	}
	return names
}

func filterByImportance(entities []common.Entity, floor float64) []common.Entity {
	kept := entities[:0]
	for _, entity := range entities {
		if entity.ImportanceScore >= floor {
			kept = append(kept, entity)
		}
	}
	return kept
}

func stampSourceChunks(result *common.ExtractionResult, chunkID string) {
	for i := range result.Entities {
		result.Entities[i].SourceChunks = []string{chunkID}
	}
	for i := range result.Relationships {
		result.Relationships[i].SourceChunks = []string{chunkID}
	}
}
