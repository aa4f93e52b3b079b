package formatter

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tanpawarit/bizai-insight/agent/response"
)

// Result is a decoded JSON tree: a GraphQL response or a tool payload.
type Result map[string]any

type node = map[string]any

// nodes flattens a relay connection ({edges:[{node}]}) or a plain list into
// its items. total is the connection totalCount when present, else -1.
func nodes(conn any) ([]node, int) {
	total := -1
	switch c := conn.(type) {
	case map[string]any:
		if v, ok := toFloat(c["totalCount"]); ok {
			total = int(v)
		}
		edges, _ := c["edges"].([]any)
		out := make([]node, 0, len(edges))
		for _, e := range edges {
			edge, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if n, ok := edge["node"].(map[string]any); ok {
				out = append(out, n)
			}
		}
		return out, total
	case []any:
		out := make([]node, 0, len(c))
		for _, e := range c {
			if n, ok := e.(map[string]any); ok {
				out = append(out, n)
			}
		}
		return out, total
	default:
		return nil, total
	}
}

func rootNodes(raw Result, field string) ([]node, int) {
	data, _ := raw["data"].(map[string]any)
	return nodes(data[field])
}

func isPrediction(raw Result) bool {
	t, _ := raw["type"].(string)
	return t == "prediction"
}

// toFloat reports false for NaN and infinities, which JSON cannot carry.
func toFloat(v any) (float64, bool) {
	f, ok := rawFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func rawFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func floatOf(n node, key string) float64 {
	f, _ := toFloat(n[key])
	return f
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	case float64:
		return b != 0
	default:
		return false
	}
}

// toText renders a scalar for display. Nested objects resolve to their name
// field when they have one.
func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case map[string]any:
		for _, key := range []string{"supplierName", "itemName", "name"} {
			if s, ok := t[key].(string); ok {
				return s
			}
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

func textOr(n node, key, fallback string) string {
	if s := toText(n[key]); s != "" {
		return s
	}
	return fallback
}

// groupSum accumulates values per label in first-seen order.
type groupSum struct {
	labels []string
	index  map[string]int
	values []float64
}

func newGroupSum() *groupSum {
	return &groupSum{index: map[string]int{}}
}

func (g *groupSum) add(label string, v float64) {
	i, ok := g.index[label]
	if !ok {
		i = len(g.labels)
		g.index[label] = i
		g.labels = append(g.labels, label)
		g.values = append(g.values, 0)
	}
	g.values[i] += v
}

var palette = []string{"#FF6384", "#36A2EB", "#FFCE56", "#4BC0C0", "#9966FF", "#FF9F40", "#C9CBCF"}

func paletteFor(n int) response.Colors {
	out := make(response.Colors, n)
	for i := range out {
		out[i] = palette[i%len(palette)]
	}
	return out
}
