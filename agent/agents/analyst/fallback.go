package analyst

import (
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// parseToolCall recovers a tool call that the model wrote into its text
// instead of the tool_calls field, e.g. {"name": "query_inventory",
// "parameters": {...}}. Only names in known are accepted; an empty known set
// accepts any name.
func parseToolCall(content string, known map[string]struct{}) (schema.ToolCall, bool) {
	for i := strings.IndexByte(content, '{'); i >= 0; {
		var obj map[string]any
		if err := json.NewDecoder(strings.NewReader(content[i:])).Decode(&obj); err == nil {
			if call, ok := toolCallFrom(obj, known); ok {
				return call, true
			}
		}
		next := strings.IndexByte(content[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return schema.ToolCall{}, false
}

func toolCallFrom(obj map[string]any, known map[string]struct{}) (schema.ToolCall, bool) {
	name, _ := obj["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return schema.ToolCall{}, false
	}
	if len(known) > 0 {
		if _, ok := known[name]; !ok {
			return schema.ToolCall{}, false
		}
	}

	args := "{}"
	for _, key := range []string{"parameters", "args", "arguments"} {
		if raw, ok := encodeArgs(obj[key]); ok {
			args = raw
			break
		}
	}

	return schema.ToolCall{
		ID:   newCallID(),
		Type: "function",
		Function: schema.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}, true
}

// encodeArgs accepts an object or a string holding a JSON object.
func encodeArgs(v any) (string, bool) {
	switch a := v.(type) {
	case map[string]any:
		raw, err := json.Marshal(a)
		if err != nil {
			return "", false
		}
		return string(raw), true
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(a), &decoded); err != nil {
			return "", false
		}
		return a, true
	default:
		return "", false
	}
}
