package graph

import (
	"github.com/graphweave/graphweave/pkg/common"
)

// dedupeEntities collapses entities sharing name and type. The survivor
// keeps the higher importance score; descriptions are not merged here, the
// downstream graph writer consolidates provenance.
func dedupeEntities(entities []common.Entity) []common.Entity {
	seen := make(map[string]int, len(entities))
	deduped := make([]common.Entity, 0, len(entities))

	for _, entity := range entities {
		key := entity.Name + "|" + entity.Type
		idx, exists := seen[key]
		if !exists {
			seen[key] = len(deduped)
			deduped = append(deduped, entity)
			continue
		}
		if entity.ImportanceScore > deduped[idx].ImportanceScore {
			kept := deduped[idx]
			deduped[idx] = entity
			if deduped[idx].Description == "" {
				deduped[idx].Description = kept.Description
			}
		}
	}

	return deduped
}

// dedupeRelationships collapses relationships sharing source, target and
// type, keeping the higher strength.
func dedupeRelationships(relationships []common.Relationship) []common.Relationship {
	seen := make(map[string]int, len(relationships))
	deduped := make([]common.Relationship, 0, len(relationships))

	for _, relationship := range relationships {
		key := relationship.SourceEntity + "|" + relationship.TargetEntity + "|" + relationship.RelationshipType
		idx, exists := seen[key]
		if !exists {
			seen[key] = len(deduped)
			deduped = append(deduped, relationship)
			continue
		}
		if relationship.Strength > deduped[idx].Strength {
			kept := deduped[idx]
			deduped[idx] = relationship
			if deduped[idx].Description == "" {
				deduped[idx].Description = kept.Description
			}
		}
	}

	return deduped
}

// filterDanglingRelationships drops relationships whose endpoints did not
// survive extraction, so the graph writer never sees an edge into nothing.
func filterDanglingRelationships(
	entities []common.Entity,
	relationships []common.Relationship,
) []common.Relationship {
	names := make(map[string]struct{}, len(entities))
	for _, entity := range entities {
		names[entity.Name] = struct{}{}
	}

	kept := relationships[:0]
	for _, relationship := range relationships {
		if _, ok := names[relationship.SourceEntity]; !ok {
			continue
		}
		if _, ok := names[relationship.TargetEntity]; !ok {
			continue
		}
		kept = append(kept, relationship)
	}

	return kept
}
