package ai

// ExtractPrompt instructs the model to emit entities and relationships in the
// tuple-delimited line format consumed by the graph tuple parser. The
// placeholders are: entity types, relationship type suggestions, entity types
// again for the per-record rules.
const ExtractPrompt = `
# Task Context
You are tasked with extracting structured entity and relationship information from the provided text. Capture all details explicitly present in the text, without omission.

# Background Data
- Entity_types: [%s]
- Relationship_types (suggestions, extend if needed): [%s]

# Detailed Task Description & Rules

## Entity Extraction
1. Identify all entities of the specified types [%s].
2. For each entity emit exactly one line:
("entity"<|>ENTITY_NAME<|>ENTITY_TYPE<|>ENTITY_DESCRIPTION<|>IMPORTANCE_SCORE)
   - ENTITY_NAME: the name of the entity in ALL CAPITAL LETTERS.
   - ENTITY_TYPE: one of the provided entity types.
   - ENTITY_DESCRIPTION: a comprehensive description of the entity's attributes, activities and information provided by the source.
   - IMPORTANCE_SCORE: a number between 0.0 and 1.0 indicating how central the entity is to the text.

## Relationship Extraction
1. Identify all relationships between the entities extracted in step 1.
2. For each relationship emit exactly one line:
("relationship"<|>SOURCE_ENTITY<|>TARGET_ENTITY<|>RELATIONSHIP_TYPE<|>RELATIONSHIP_DESCRIPTION<|>STRENGTH)
   - SOURCE_ENTITY and TARGET_ENTITY: entity names exactly as emitted in step 1.
   - RELATIONSHIP_TYPE: UPPER_SNAKE_CASE label, preferably one of the suggested types.
   - RELATIONSHIP_DESCRIPTION: why the source and target entity are related.
   - STRENGTH: a number between 0.0 and 1.0 indicating the strength of the relationship.

# Output Formatting
- One tuple per line, nothing else.
- Use <|> as the field delimiter inside tuples.
- Do not add commentary, headings or explanations.

# Text
%s
`

// GleanPrompt runs a corrective extraction pass. It receives the source text,
// the raw output of the previous pass and a sample of already-extracted entity
// names, and asks only for entities that were missed.
const GleanPrompt = `
# Task Context
A previous extraction pass over the text below may have missed entities. Your task is to find ONLY additional entities and relationships that are not yet covered.

# Background Data
- Entity_types: [%s]
- Already extracted entities (sample): [%s]

# Previous Output
%s

# Detailed Task Description & Rules
- Emit ONLY entities that do not appear in the already-extracted list.
- Use the same tuple format as before:
("entity"<|>ENTITY_NAME<|>ENTITY_TYPE<|>ENTITY_DESCRIPTION<|>IMPORTANCE_SCORE)
("relationship"<|>SOURCE_ENTITY<|>TARGET_ENTITY<|>RELATIONSHIP_TYPE<|>RELATIONSHIP_DESCRIPTION<|>STRENGTH)
- Relationships may reference entities from the previous pass.
- If there is nothing left to add, output nothing.

# Text
%s
`

// RouteClassifyPrompt asks for a single retrieval-mode label. Any output that
// is not exactly one of the listed labels is discarded by the router.
const RouteClassifyPrompt = `
# Task Context
You classify a user question into exactly one retrieval mode for a knowledge-graph search system.

# Modes
- basic: simple factual lookup answerable from a few text passages
- local: question about specific named entities and their direct connections
- global: question asking for themes, summaries or patterns across the whole corpus
- drift: multi-hop comparison or reasoning question that needs iterative follow-up queries

# Immediate Task Description or Request
Question: %s

# Output Formatting
Reply with exactly one word: basic, local, global or drift. No other text.
`

// GlobalMapPrompt extracts scored key points from one community summary with
// respect to the user query (map phase of the global strategy).
const GlobalMapPrompt = `
# Task Context
You extract key points from a community report that are relevant to a user question.

# Background Data
- Community id: %s
- Community report:
%s

# Immediate Task Description or Request
Question: %s

# Output Formatting
Return JSON:
{
  "points": [
    {"text": string, "score": number}   // score in 0-100, relevance of the point to the question
  ]
}
Return {"points": []} if the report is irrelevant. Output must be valid JSON only.
`

// GlobalReducePrompt synthesizes the final answer from aggregated key points
// (reduce phase of the global strategy). Points carry their community ids so
// the answer can cite contributing communities.
const GlobalReducePrompt = `
# Task Context
You write a holistic answer to a user question from key points gathered across communities of a knowledge graph.

# Background Data
Key points (format: [community_id] score: text):
%s

# Immediate Task Description or Request
Question: %s

# Detailed Task Description & Rules
- Ground the answer only in the provided key points.
- Cite contributing communities inline as [community_id].
- If the key points do not answer the question, say so.
`

// DriftFollowUpPrompt asks for follow-up sub-questions given the accumulated
// context. The model signals completion with an empty list and done=true.
const DriftFollowUpPrompt = `
# Task Context
You steer an iterative retrieval loop. Given a user question and the context gathered so far, propose follow-up questions that would close remaining information gaps.

# Background Data
Context gathered so far:
%s

# Immediate Task Description or Request
Question: %s

# Detailed Task Description & Rules
- Propose at most %d follow-up questions.
- Each follow-up must target information that is missing from the context.
- If the context is sufficient to answer the question, return an empty list and set done to true.

# Output Formatting
Return JSON:
{
  "follow_ups": [string],
  "done": boolean
}
Output must be valid JSON only.
`

// DriftSynthesisPrompt grounds the final DRIFT answer in the full accumulated
// context.
const DriftSynthesisPrompt = `
# Task Context
You answer a user question using context accumulated over several retrieval iterations.

# Background Data
%s

# Immediate Task Description or Request
Question: %s

# Detailed Task Description & Rules
- Use only the provided context.
- If the context is insufficient, state what is missing instead of guessing.
`
