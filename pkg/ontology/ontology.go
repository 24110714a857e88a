package ontology

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Ontology is the closed set of entity-type labels and the open set of
// relationship-type suggestions injected into extraction prompts. It is
// loaded once at startup and treated as immutable afterwards.
type Ontology struct {
	EntityTypes       []string `yaml:"entity_types"`
	RelationshipTypes []string `yaml:"relationship_types"`
}

// Default returns the built-in ontology used when no ontology file is
// configured.
func Default() *Ontology {
	return &Ontology{
		EntityTypes: []string{
			"ORGANIZATION", "PERSON", "LOCATION", "CONCEPT",
			"CREATIVE_WORK", "DATE", "PRODUCT", "EVENT",
		},
		RelationshipTypes: []string{
			"PART_OF", "LOCATED_IN", "WORKS_FOR", "CREATED_BY",
			"RELATED_TO", "PARTICIPATES_IN", "OWNS", "PRECEDES",
		},
	}
}

// Load reads an ontology from a YAML file. Types are upper-cased for
// canonical comparison with extractor output.
func Load(path string) (*Ontology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ontology file: %w", err)
	}

	var o Ontology
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse ontology file: %w", err)
	}
	if len(o.EntityTypes) == 0 {
		return nil, fmt.Errorf("ontology file %s declares no entity types", path)
	}

	for i, t := range o.EntityTypes {
		o.EntityTypes[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	for i, t := range o.RelationshipTypes {
		o.RelationshipTypes[i] = strings.ToUpper(strings.TrimSpace(t))
	}

	return &o, nil
}

// Hash returns a stable digest of the ontology content, used as part of
// extraction cache keys so that ontology changes invalidate cached results.
func (o *Ontology) Hash() string {
	h := sha256.New()
	h.Write([]byte(strings.Join(o.EntityTypes, ",")))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(o.RelationshipTypes, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
