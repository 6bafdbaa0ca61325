package dbclean

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Count groups reported by Inspect.
const (
	GroupTable        = "table"
	GroupTotal        = "total"
	GroupLabel        = "label"
	GroupRelationship = "relationship"
)

// Count is one named row or element count.
type Count struct {
	Group string `json:"group"`
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Inventory is what one database currently holds.
type Inventory struct {
	DB     string  `json:"db"`
	Method string  `json:"method,omitempty"`
	Counts []Count `json:"counts"`
	Error  string  `json:"error,omitempty"`
}

// Inspector reports row, node and relationship counts.
type Inspector interface {
	Name() string
	Inspect(ctx context.Context) (*Inventory, error)
}

// Inspect collects an inventory from every target that supports it. A
// failing target is reported in its Inventory and does not stop the others.
func (c *Cleaner) Inspect(ctx context.Context) []Inventory {
	var out []Inventory
	for _, t := range c.Targets {
		in, ok := t.(Inspector)
		if !ok {
			continue
		}
		inv, err := in.Inspect(ctx)
		if err != nil {
			c.Logger.Error("database inspection failed", zap.String("db", t.Name()), zap.Error(err))
			out = append(out, Inventory{DB: t.Name(), Counts: []Count{}, Error: err.Error()})
			continue
		}
		out = append(out, *inv)
	}
	return out
}

// sortedCounts turns a name → count map into Counts ordered by name.
func sortedCounts(group string, m map[string]int64) []Count {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Count, 0, len(names))
	for _, name := range names {
		out = append(out, Count{Group: group, Name: name, Value: m[name]})
	}
	return out
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}

func toCountMap(v any) (map[string]int64, error) {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected map type %T", v)
	}
	out := make(map[string]int64, len(raw))
	for k, val := range raw {
		n, err := toInt64(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}
