package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type userEmailKey struct{}

// WithUserEmail scopes every structured query built under ctx to email.
func WithUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userEmailKey{}, strings.TrimSpace(email))
}

func UserEmail(ctx context.Context) string {
	email, _ := ctx.Value(userEmailKey{}).(string)
	return email
}

const (
	inventoryFields = `id itemName description type quantity quantityUnit costPrice sellingPrice minQuantity isActive autoReorder supplier { supplierName } lastRestockDate`
	supplierFields  = `id supplierName contactPerson supplierEmail supplierPhone`
	salesFields     = `id salesUid saleDate quantitySold revenue revenuePerUnit weatherTemperature weatherCondition wasOnSale promotionType discountPercentage customerFlow flowStudents flowFamily flowAdults prodId { itemName category costPrice sellingPrice } holidays { edges { node { name date } } }`
	reportFields    = `name totalRevenue totalQuantity date`
)

var (
	writeOperation = regexp.MustCompile(`(?i)^\s*(mutation|subscription)\b`)
	isoDate        = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// rejectWrites refuses documents whose operation is a mutation or
// subscription. Only the leading operation keyword is inspected.
func rejectWrites(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is required")
	}
	if writeOperation.MatchString(query) {
		return fmt.Errorf("only read queries are allowed")
	}
	return nil
}

// gqlQuery assembles a single-root query. Free-text string arguments travel as
// variables so quotes inside them survive; everything else is inlined.
type gqlQuery struct {
	root   string
	fields string
	conn   bool
	params []string
	args   []string
	vars   map[string]any
}

func newQuery(root, fields string, conn bool) *gqlQuery {
	return &gqlQuery{root: root, fields: fields, conn: conn, vars: map[string]any{}}
}

func (q *gqlQuery) text(name, value string) *gqlQuery {
	value = strings.TrimSpace(value)
	if value == "" {
		return q
	}
	q.params = append(q.params, fmt.Sprintf("$%s: String", name))
	q.args = append(q.args, fmt.Sprintf("%s: $%s", name, name))
	q.vars[name] = value
	return q
}

func (q *gqlQuery) literal(name string, value any) *gqlQuery {
	raw, err := json.Marshal(value)
	if err != nil {
		return q
	}
	q.args = append(q.args, fmt.Sprintf("%s: %s", name, raw))
	return q
}

func (q *gqlQuery) scope(ctx context.Context) *gqlQuery {
	return q.text("userEmail", UserEmail(ctx))
}

func (q *gqlQuery) build() (string, map[string]any) {
	var b strings.Builder
	b.WriteString("query")
	if len(q.params) > 0 {
		b.WriteString("(" + strings.Join(q.params, ", ") + ")")
	}
	b.WriteString(" { " + q.root)
	if len(q.args) > 0 {
		b.WriteString("(" + strings.Join(q.args, ", ") + ")")
	}
	if q.conn {
		b.WriteString(" { edges { node { " + q.fields + " } } } }")
	} else {
		b.WriteString(" { " + q.fields + " } }")
	}
	if len(q.vars) == 0 {
		return b.String(), nil
	}
	return b.String(), q.vars
}

func inventoryQuery(ctx context.Context, args map[string]any) (string, map[string]any) {
	q := newQuery("allInventory", inventoryFields, true).
		text("itemName", stringArg(args, "item_name")).
		text("type", stringArg(args, "type")).
		text("supplierName", stringArg(args, "supplier_name"))
	if v, ok := numberArg(args, "min_price"); ok {
		q.literal("minPrice", v)
	}
	if v, ok := numberArg(args, "max_price"); ok {
		q.literal("maxPrice", v)
	}
	if v, ok := numberArg(args, "max_quantity"); ok {
		q.literal("maxQuantity", v)
	}
	if v, ok := args["is_active"].(bool); ok {
		q.literal("isActive", v)
	}
	if n, ok := intArg(args, "limit"); ok {
		q.literal("first", n)
	}
	return q.scope(ctx).build()
}

func suppliersQuery(ctx context.Context, args map[string]any) (string, map[string]any) {
	return newQuery("allSuppliers", supplierFields, true).
		text("supplierName", stringArg(args, "supplier_name")).
		scope(ctx).
		build()
}

func salesQuery(ctx context.Context, args map[string]any) (string, map[string]any, error) {
	from, to := stringArg(args, "date_from"), stringArg(args, "date_to")
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if !isoDate.MatchString(d) {
			return "", nil, fmt.Errorf("dates must be YYYY-MM-DD, got %q", d)
		}
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return "", nil, fmt.Errorf("invalid date %q", d)
		}
	}
	if from != "" && to != "" && from > to {
		return "", nil, fmt.Errorf("date_from %s is after date_to %s", from, to)
	}

	if stringArg(args, "mode") == "report" {
		groupBy := stringArg(args, "group_by")
		if groupBy == "" {
			groupBy = "product"
		}
		q := newQuery("salesReport", reportFields, false).literal("groupBy", groupBy)
		if from != "" {
			q.literal("dateFrom", from)
		}
		if to != "" {
			q.literal("dateTo", to)
		}
		query, vars := q.scope(ctx).build()
		return query, vars, nil
	}

	q := newQuery("allSales", salesFields, true).
		text("productName", stringArg(args, "product_name")).
		text("weatherCondition", stringArg(args, "weather_condition"))
	if v, ok := args["was_on_sale"].(bool); ok {
		q.literal("wasOnSale", v)
	}
	if from != "" {
		q.literal("saleDateAfter", from)
	}
	if to != "" {
		q.literal("saleDateBefore", to)
	}
	q.literal("orderBy", "-saleDate")
	if n, ok := intArg(args, "limit"); ok {
		q.literal("first", n)
	}
	query, vars := q.scope(ctx).build()
	return query, vars, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func numberArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func intArg(args map[string]any, key string) (int, bool) {
	f, ok := numberArg(args, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}
