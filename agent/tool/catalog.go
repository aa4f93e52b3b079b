package tool

import "github.com/cloudwego/eino/schema"

const (
	ToolIntrospectSchema = "introspect_schema"
	ToolQueryGraphQL     = "query_graphql"
	ToolQueryInventory   = "query_inventory"
	ToolQuerySuppliers   = "query_suppliers"
	ToolQuerySales       = "query_sales"
	ToolPredictSales     = "predict_sales"
	ToolTrainModel       = "train_model"
)

const (
	defaultPredictDays = 7
	maxPredictDays     = 90
	maxListLimit       = 500
)

var catalog = []toolSpec{
	{
		Name: ToolIntrospectSchema,
		Desc: "List the root queries of the business GraphQL API with their arguments. Use it before writing a raw query.",
	},
	{
		Name: ToolQueryGraphQL,
		Desc: "Run a read-only GraphQL query against the business API. Use single quotes for string values. Mutations are rejected.",
		Args: []argSpec{
			{Name: "query", Type: schema.String, Desc: "The GraphQL query document", Required: true},
		},
	},
	{
		Name: ToolQueryInventory,
		Desc: "Look up inventory items with their stock, prices and supplier.",
		Args: []argSpec{
			{Name: "item_name", Type: schema.String, Desc: "Item name or part of it"},
			{Name: "type", Type: schema.String, Desc: "Item type, e.g. product or material"},
			{Name: "supplier_name", Type: schema.String, Desc: "Supplier name"},
			{Name: "min_price", Type: schema.Number, Desc: "Minimum selling price", Minimum: bound(0)},
			{Name: "max_price", Type: schema.Number, Desc: "Maximum selling price", Minimum: bound(0)},
			{Name: "max_quantity", Type: schema.Number, Desc: "Only items with at most this quantity in stock", Minimum: bound(0)},
			{Name: "is_active", Type: schema.Boolean, Desc: "Only active or inactive items"},
			{Name: "limit", Type: schema.Integer, Desc: "Maximum number of items", Minimum: bound(1), Maximum: bound(maxListLimit)},
		},
	},
	{
		Name: ToolQuerySuppliers,
		Desc: "List suppliers with their contact details.",
		Args: []argSpec{
			{Name: "supplier_name", Type: schema.String, Desc: "Supplier name or part of it"},
		},
	},
	{
		Name: ToolQuerySales,
		Desc: "Fetch sales records, or an aggregated sales report grouped by product or date.",
		Args: []argSpec{
			{Name: "mode", Type: schema.String, Desc: "list returns individual sales, report returns totals", Enum: []string{"list", "report"}},
			{Name: "group_by", Type: schema.String, Desc: "Report grouping", Enum: []string{"product", "date"}},
			{Name: "product_name", Type: schema.String, Desc: "Product name"},
			{Name: "weather_condition", Type: schema.String, Desc: "Weather condition, e.g. Sunny"},
			{Name: "was_on_sale", Type: schema.Boolean, Desc: "Only promotional or regular sales"},
			{Name: "date_from", Type: schema.String, Desc: "First day, YYYY-MM-DD"},
			{Name: "date_to", Type: schema.String, Desc: "Last day, YYYY-MM-DD"},
			{Name: "limit", Type: schema.Integer, Desc: "Maximum number of sales", Minimum: bound(1), Maximum: bound(maxListLimit)},
		},
	},
	{
		Name: ToolPredictSales,
		Desc: "Forecast daily sales of one product with the trained model.",
		Args: []argSpec{
			{Name: "item_name", Type: schema.String, Desc: "Product name as stored in inventory", Required: true},
			{Name: "days", Type: schema.Integer, Desc: "Number of days to forecast, default 7", Minimum: bound(1), Maximum: bound(maxPredictDays)},
		},
	},
	{
		Name: ToolTrainModel,
		Desc: "Retrain the sales forecasting model on all recorded sales.",
	},
}

// Infos returns the tool descriptions offered to the model.
func Infos() []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, s.info())
	}
	return out
}
