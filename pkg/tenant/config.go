package tenant

import (
	"strconv"
	"strings"
)

// Config is a read-only nested key/value view of one tenant's configuration.
// Step-level overrides are namespaced by a stable step identifier, e.g.
// "ingestion.graph_extraction" or "retrieval.query_rewrite":
//
//	steps:
//	  ingestion.graph_extraction:
//	    model: gpt-4o-mini
//	    gleaning_mode: smart
type Config struct {
	tenantID string
	values   map[string]any
}

// NewConfig creates a tenant configuration view over the given nested values.
func NewConfig(tenantID string, values map[string]any) *Config {
	if values == nil {
		values = map[string]any{}
	}
	return &Config{tenantID: tenantID, values: values}
}

// TenantID returns the tenant this configuration belongs to.
func (c *Config) TenantID() string {
	return c.tenantID
}

// Lookup resolves a dot-separated path through the nested values. Step
// identifiers themselves contain dots, so path segments are matched
// greedily: "steps.ingestion.graph_extraction.model" first tries the full
// remainder as a key at each level before splitting further.
func (c *Config) Lookup(path string) (any, bool) {
	return lookup(c.values, path)
}

func lookup(values map[string]any, path string) (any, bool) {
	if v, ok := values[path]; ok {
		return v, true
	}

	for i := len(path) - 1; i > 0; i-- {
		if path[i] != '.' {
			continue
		}
		head, rest := path[:i], path[i+1:]
		child, ok := values[head]
		if !ok {
			continue
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			continue
		}
		if v, found := lookup(childMap, rest); found {
			return v, true
		}
	}

	return nil, false
}

// String returns the string value at path, or ok=false if absent or not a
// string.
func (c *Config) String(path string) (string, bool) {
	v, ok := c.Lookup(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float returns the numeric value at path. Integers, floats and numeric
// strings are accepted.
func (c *Config) Float(path string) (float64, bool) {
	v, ok := c.Lookup(path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Int returns the integer value at path.
func (c *Config) Int(path string) (int, bool) {
	f, ok := c.Float(path)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Bool returns the boolean value at path. The strings "true" and "false"
// are accepted.
func (c *Config) Bool(path string) (bool, bool) {
	v, ok := c.Lookup(path)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		if b == "true" || b == "false" {
			return b == "true", true
		}
	}
	return false, false
}

// StepString returns the value of key under the given step namespace.
func (c *Config) StepString(step, key string) (string, bool) {
	return c.String("steps." + step + "." + key)
}

// StepFloat returns the numeric value of key under the given step namespace.
func (c *Config) StepFloat(step, key string) (float64, bool) {
	return c.Float("steps." + step + "." + key)
}

// StepInt returns the integer value of key under the given step namespace.
func (c *Config) StepInt(step, key string) (int, bool) {
	return c.Int("steps." + step + "." + key)
}

// StepBool returns the boolean value of key under the given step namespace.
func (c *Config) StepBool(step, key string) (bool, bool) {
	return c.Bool("steps." + step + "." + key)
}
