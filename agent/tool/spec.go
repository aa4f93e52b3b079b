package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// argSpec describes one tool argument. The same table feeds the model-facing
// ParameterInfo and the JSON Schema used to check the model's arguments.
type argSpec struct {
	Name     string
	Type     schema.DataType
	Desc     string
	Required bool
	Enum     []string
	Minimum  *float64
	Maximum  *float64
}

type toolSpec struct {
	Name string
	Desc string
	Args []argSpec
}

func bound(v float64) *float64 { return &v }

func (s toolSpec) info() *schema.ToolInfo {
	info := &schema.ToolInfo{Name: s.Name, Desc: s.Desc}
	if len(s.Args) == 0 {
		return info
	}
	params := make(map[string]*schema.ParameterInfo, len(s.Args))
	for _, a := range s.Args {
		params[a.Name] = &schema.ParameterInfo{
			Type:     a.Type,
			Desc:     a.Desc,
			Required: a.Required,
			Enum:     a.Enum,
		}
	}
	info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	return info
}

func (s toolSpec) jsonSchema() map[string]any {
	props := make(map[string]any, len(s.Args))
	required := make([]any, 0, len(s.Args))
	for _, a := range s.Args {
		prop := map[string]any{"type": string(a.Type)}
		if len(a.Enum) > 0 {
			enum := make([]any, 0, len(a.Enum))
			for _, e := range a.Enum {
				enum = append(enum, e)
			}
			prop["enum"] = enum
		}
		if a.Minimum != nil {
			prop["minimum"] = *a.Minimum
		}
		if a.Maximum != nil {
			prop["maximum"] = *a.Maximum
		}
		props[a.Name] = prop
		if a.Required {
			required = append(required, a.Name)
		}
	}
	doc := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func (s toolSpec) compile() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	url := s.Name + ".json"
	if err := c.AddResource(url, s.jsonSchema()); err != nil {
		return nil, fmt.Errorf("add schema for %s: %w", s.Name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", s.Name, err)
	}
	return sch, nil
}

// validateArgs checks args against sch. Args are round-tripped through JSON
// first so Go ints and typed values compare the way decoded JSON does.
func validateArgs(sch *jsonschema.Schema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("invalid arguments: %s", flattenValidation(err))
	}
	return nil
}

// flattenValidation folds the multi-line validation report onto one line.
func flattenValidation(err error) string {
	lines := strings.Split(err.Error(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "-"))
		if l == "" || strings.HasPrefix(l, "jsonschema validation failed") {
			continue
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return strings.TrimSpace(err.Error())
	}
	return strings.Join(out, "; ")
}
