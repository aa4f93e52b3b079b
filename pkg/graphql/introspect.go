package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const introspectionQuery = `query {
  __schema {
    queryType {
      fields {
        name
        description
        args { name type { name kind ofType { name kind ofType { name kind } } } }
        type { name kind ofType { name kind ofType { name kind } } }
      }
    }
  }
}`

type typeRef struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	OfType *typeRef `json:"ofType"`
}

func (t *typeRef) String() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case "NON_NULL":
		return t.OfType.String() + "!"
	case "LIST":
		return "[" + t.OfType.String() + "]"
	default:
		return t.Name
	}
}

type Arg struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Field struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Args        []Arg  `json:"args,omitempty"`
	Type        string `json:"type"`
}

// Schema is the root query surface of the backend.
type Schema struct {
	Queries []Field `json:"queries"`
}

// Summary renders one line per root field, e.g. allInventory(itemName: String): InventoryNodeConnection.
func (s Schema) Summary() string {
	var b strings.Builder
	for _, f := range s.Queries {
		b.WriteString(f.Name)
		if len(f.Args) > 0 {
			args := make([]string, 0, len(f.Args))
			for _, a := range f.Args {
				args = append(args, a.Name+": "+a.Type)
			}
			b.WriteString("(" + strings.Join(args, ", ") + ")")
		}
		b.WriteString(": " + f.Type)
		if f.Description != "" {
			b.WriteString("  # " + f.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Client) Introspect(ctx context.Context) (Schema, error) {
	result, err := c.Execute(ctx, introspectionQuery, nil)
	if err != nil {
		return Schema{}, err
	}
	if msgs := result.ErrorMessages(); len(msgs) > 0 {
		return Schema{}, fmt.Errorf("%w: introspection: %s", ErrRequest, strings.Join(msgs, "; "))
	}

	raw, err := json.Marshal(result.Data())
	if err != nil {
		return Schema{}, fmt.Errorf("%w: re-encode introspection: %v", ErrRequest, err)
	}

	var parsed struct {
		Schema struct {
			QueryType struct {
				Fields []struct {
					Name        string   `json:"name"`
					Description string   `json:"description"`
					Type        *typeRef `json:"type"`
					Args        []struct {
						Name string   `json:"name"`
						Type *typeRef `json:"type"`
					} `json:"args"`
				} `json:"fields"`
			} `json:"queryType"`
		} `json:"__schema"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Schema{}, fmt.Errorf("%w: decode introspection: %v", ErrRequest, err)
	}

	schema := Schema{}
	for _, f := range parsed.Schema.QueryType.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		field := Field{Name: f.Name, Description: strings.TrimSpace(f.Description), Type: f.Type.String()}
		for _, a := range f.Args {
			field.Args = append(field.Args, Arg{Name: a.Name, Type: a.Type.String()})
		}
		schema.Queries = append(schema.Queries, field)
	}
	sort.Slice(schema.Queries, func(i, j int) bool {
		return schema.Queries[i].Name < schema.Queries[j].Name
	})
	return schema, nil
}
