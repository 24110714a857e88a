package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/graphweave/graphweave/pkg/common"
)

const (
	tupleDelimiter = "<|>"

	defaultScore = 0.5
)

// ParseResult holds the tuples recovered from one model response. Lines that
// attempted the tuple format but failed it are reported in Errors; prose
// lines the model emitted around the tuples are ignored without error.
type ParseResult struct {
	Entities      []common.Entity
	Relationships []common.Relationship
	Errors        []string
}

// ParseTuples parses the line-oriented tuple format
//
//	("entity"<|>NAME<|>TYPE<|>DESCRIPTION<|>IMPORTANCE)
//	("relationship"<|>SOURCE<|>TARGET<|>TYPE<|>DESCRIPTION<|>STRENGTH)
//
// Each line is parsed independently, so one malformed tuple never poisons
// the rest of the response. Names and types are upper-cased; missing or
// invalid score fields fall back to 0.5.
func ParseTuples(text string) *ParseResult {
	result := &ParseResult{}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, `("`) || !strings.HasSuffix(line, ")") {
			// Only lines that look like tuple attempts count as errors.
			if strings.HasPrefix(line, "(") || strings.Contains(line, tupleDelimiter) {
				result.Errors = append(result.Errors, fmt.Sprintf("malformed tuple line: %s", truncateLine(line)))
			}
			continue
		}

		fields := strings.Split(line[1:len(line)-1], tupleDelimiter)
		tupleType := strings.ToLower(strings.Trim(strings.TrimSpace(fields[0]), `"`))

		switch tupleType {
		case "entity":
			entity, err := parseEntityTuple(fields[1:])
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%v: %s", err, truncateLine(line)))
				continue
			}
			result.Entities = append(result.Entities, entity)
		case "relationship":
			relationship, err := parseRelationshipTuple(fields[1:])
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%v: %s", err, truncateLine(line)))
				continue
			}
			result.Relationships = append(result.Relationships, relationship)
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("unknown tuple type %q: %s", tupleType, truncateLine(line)))
		}
	}

	return result
}

func parseEntityTuple(fields []string) (common.Entity, error) {
	if len(fields) < 2 {
		return common.Entity{}, fmt.Errorf("entity tuple needs name and type")
	}

	entity := common.Entity{
		Name:            canonicalName(fields[0]),
		Type:            canonicalName(fields[1]),
		ImportanceScore: defaultScore,
	}
	if entity.Name == "" || entity.Type == "" {
		return common.Entity{}, fmt.Errorf("entity tuple has empty name or type")
	}
	if len(fields) > 2 {
		entity.Description = strings.TrimSpace(fields[2])
	}
	if len(fields) > 3 {
		entity.ImportanceScore = parseScore(fields[3])
	}

	return entity, nil
}

func parseRelationshipTuple(fields []string) (common.Relationship, error) {
	if len(fields) < 3 {
		return common.Relationship{}, fmt.Errorf("relationship tuple needs source, target and type")
	}

	relationship := common.Relationship{
		SourceEntity:     canonicalName(fields[0]),
		TargetEntity:     canonicalName(fields[1]),
		RelationshipType: canonicalRelationType(fields[2]),
		Strength:         defaultScore,
	}
	if relationship.SourceEntity == "" || relationship.TargetEntity == "" || relationship.RelationshipType == "" {
		return common.Relationship{}, fmt.Errorf("relationship tuple has empty source, target or type")
	}
	if len(fields) > 3 {
		relationship.Description = strings.TrimSpace(fields[3])
	}
	if len(fields) > 4 {
		relationship.Strength = parseScore(fields[4])
	}

	return relationship, nil
}

func canonicalName(s string) string {
	return strings.ToUpper(strings.Trim(strings.TrimSpace(s), `"`))
}

func canonicalRelationType(s string) string {
	return strings.ReplaceAll(canonicalName(s), " ", "_")
}

// parseScore is deliberately forgiving: models frequently emit scores with
// trailing punctuation or out of range. Anything unusable becomes 0.5.
func parseScore(s string) float64 {
	v, err := strconv.ParseFloat(strings.Trim(strings.TrimSpace(s), `")`), 64)
	if err != nil || v < 0 || v > 1 {
		return defaultScore
	}
	return v
}

func truncateLine(line string) string {
	const max = 120
	if len(line) <= max {
		return line
	}
	return line[:max] + "..."
}
