package formatter

import "strings"

// Intent is the closed set of query categories the formatter can project.
type Intent string

const (
	IntentInventoryList         Intent = "inventory.list"
	IntentInventoryMetrics      Intent = "inventory.metrics"
	IntentInventoryChartByType  Intent = "inventory.chart.by_type"
	IntentInventoryChartByPrice Intent = "inventory.chart.by_price"
	IntentInventoryStockLevels  Intent = "inventory.chart.stock_levels"
	IntentInventoryLowStock     Intent = "inventory.low_stock"
	IntentInventoryBrief        Intent = "inventory.brief"
	IntentInventoryDetail       Intent = "inventory.detail"
	IntentSupplierList          Intent = "supplier.list"
	IntentSalesList             Intent = "sales.list"
	IntentSalesMetrics          Intent = "sales.metrics"
	IntentSalesChartByDate      Intent = "sales.chart.by_date"
	IntentSalesChartByWeather   Intent = "sales.chart.by_weather"
	IntentSalesChartByPromotion Intent = "sales.chart.by_promotion"
	IntentSalesReport           Intent = "sales.report"
	IntentForecastPrediction    Intent = "forecast.prediction"
	IntentConversation          Intent = "conversation"
)

var allIntents = []Intent{
	IntentInventoryList,
	IntentInventoryMetrics,
	IntentInventoryChartByType,
	IntentInventoryChartByPrice,
	IntentInventoryStockLevels,
	IntentInventoryLowStock,
	IntentInventoryBrief,
	IntentInventoryDetail,
	IntentSupplierList,
	IntentSalesList,
	IntentSalesMetrics,
	IntentSalesChartByDate,
	IntentSalesChartByWeather,
	IntentSalesChartByPromotion,
	IntentSalesReport,
	IntentForecastPrediction,
	IntentConversation,
}

func Intents() []Intent {
	return append([]Intent(nil), allIntents...)
}

func ParseIntent(s string) (Intent, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	for _, in := range allIntents {
		if string(in) == s {
			return in, true
		}
	}
	return "", false
}

var (
	inventoryMetricWords = []string{"total", "count", "how many", "sum", "average"}
	inventoryChartWords  = []string{"compare", "distribution", "by type", "by category", "breakdown", "chart", "graph"}
	lowStockWords        = []string{"low stock", "low in stock", "running low", "out of stock", "reorder", "restock"}
	salesMetricWords     = []string{"total", "sum", "average", "metrics", "revenue", "how much"}
	salesChartWords      = []string{"trend", "chart", "graph", "plot", "over time", "by date", "by weather", "by promotion", "distribution"}
)

// Classify picks an intent from the root field present in raw and keyword
// patterns in the user query. Results it cannot place are conversation.
func Classify(query string, raw Result) Intent {
	q := strings.ToLower(query)

	if isPrediction(raw) {
		return IntentForecastPrediction
	}

	data, ok := raw["data"].(map[string]any)
	if !ok {
		return IntentConversation
	}

	if conn, ok := data["allInventory"]; ok {
		items, _ := nodes(conn)
		return classifyInventory(q, items)
	}
	if _, ok := data["allSuppliers"]; ok {
		return IntentSupplierList
	}
	if _, ok := data["allSales"]; ok {
		return classifySales(q)
	}
	if _, ok := data["salesReport"]; ok {
		return IntentSalesReport
	}
	return IntentConversation
}

// briefFields is the most fields a node may carry for a multi-item result to
// render as a list rather than a table.
const briefFields = 3

func classifyInventory(q string, items []node) Intent {
	switch {
	case containsAny(q, inventoryMetricWords):
		return IntentInventoryMetrics
	case containsAny(q, inventoryChartWords):
		switch {
		case containsAny(q, []string{"by type", "by category", "distribution"}):
			return IntentInventoryChartByType
		case containsAny(q, []string{"price", "cost"}):
			return IntentInventoryChartByPrice
		case containsAny(q, []string{"stock", "quantity"}):
			return IntentInventoryStockLevels
		default:
			return IntentInventoryChartByType
		}
	case containsAny(q, lowStockWords):
		return IntentInventoryLowStock
	case len(items) == 1:
		return IntentInventoryDetail
	case len(items) > 1 && len(items[0]) <= briefFields:
		return IntentInventoryBrief
	default:
		return IntentInventoryList
	}
}

func classifySales(q string) Intent {
	switch {
	case containsAny(q, salesMetricWords):
		return IntentSalesMetrics
	case containsAny(q, salesChartWords):
		switch {
		case strings.Contains(q, "weather"):
			return IntentSalesChartByWeather
		case strings.Contains(q, "promotion"):
			return IntentSalesChartByPromotion
		default:
			return IntentSalesChartByDate
		}
	default:
		return IntentSalesList
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
