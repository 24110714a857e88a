package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/graphweave/graphweave/pkg/ai"
	"github.com/graphweave/graphweave/pkg/logger"
)

// Keyword sets for the routing heuristics. Matched case-insensitively as
// substrings of the query.
var (
	globalKeywords = []string{
		"summarize", "summary", "overall", "overview", "themes",
		"main topics", "across the corpus", "across all", "all findings",
		"big picture", "holistic",
	}
	driftKeywords = []string{
		"compare", "contrast", "difference between", "relationship between",
		"connection between", "how does", "how are", "relate",
		"step by step", "trace",
	}
)

// Router picks a retrieval mode for a query. The LLM classifier is the last
// resort before the default and is optional.
type Router struct {
	llm ai.Client
}

// NewRouterParams configures a Router. LLM may be nil, disabling the
// classification fallback.
type NewRouterParams struct {
	LLM ai.Client
}

// NewRouter creates a Router.
func NewRouter(params NewRouterParams) *Router {
	return &Router{llm: params.LLM}
}

// Route decides the retrieval mode. The cascade, first satisfied wins:
// explicit caller override, structured-intent heuristic, global keywords,
// drift keywords, LLM single-label classification (if enabled), default
// basic. Invalid classifier output is discarded, never trusted.
func (r *Router) Route(ctx context.Context, query string, explicit Mode, useLLM bool) Mode {
	if explicit != "" && ValidMode(explicit) {
		return explicit
	}

	if DetectQueryType(query) != NotStructured {
		return ModeStructured
	}

	normalized := strings.ToLower(query)
	for _, keyword := range globalKeywords {
		if strings.Contains(normalized, keyword) {
			return ModeGlobal
		}
	}
	for _, keyword := range driftKeywords {
		if strings.Contains(normalized, keyword) {
			return ModeDrift
		}
	}

	if useLLM && r.llm != nil {
		if mode, ok := r.classify(ctx, query); ok {
			return mode
		}
	}

	return ModeBasic
}

func (r *Router) classify(ctx context.Context, query string) (Mode, bool) {
	response, err := r.llm.Generate(ctx, fmt.Sprintf(ai.RouteClassifyPrompt, query))
	if err != nil {
		logger.Warn("[Router] Classification failed, falling back", "error", err)
		return "", false
	}

	label := Mode(strings.ToLower(strings.TrimSpace(response.Text)))
	switch label {
	case ModeBasic, ModeLocal, ModeGlobal, ModeDrift:
		return label, true
	}

	logger.Debug("[Router] Discarding invalid classification", "label", string(label))
	return "", false
}
