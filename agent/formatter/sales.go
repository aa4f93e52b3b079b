package formatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tanpawarit/bizai-insight/agent/response"
)

func salesTable(raw Result) (string, *response.FormattedData) {
	items, total := rootNodes(raw, "allSales")
	if len(items) == 0 {
		return "No sales records found.", nil
	}

	table := buildTable(items, total)
	title := fmt.Sprintf("Sales Records (%d records)", table.TotalCount)
	answer := fmt.Sprintf("Found %d sales records.", table.TotalCount)
	return answer, response.NewFormattedData(table, tableMetadata(title, len(table.Rows)))
}

func salesMetrics(raw Result) (string, *response.FormattedData) {
	items, _ := rootNodes(raw, "allSales")
	if len(items) == 0 {
		return "No sales records found.", nil
	}

	var revenue, qty float64
	promo := 0
	for _, item := range items {
		revenue += floatOf(item, "revenue")
		qty += floatOf(item, "quantitySold")
		if p := promotionOf(item); p != "None" {
			promo++
		}
	}
	avg := revenue / float64(len(items))

	metrics := &response.MetricsData{Metrics: []response.Metric{
		response.NewMetric("Total Revenue", revenue, response.FormatCurrency, "💰"),
		response.NewMetric("Total Quantity Sold", qty, response.FormatNumber, "📦"),
		response.NewMetric("Average Sale Value", avg, response.FormatCurrency, "📊"),
		response.NewMetric("Sales Count", float64(len(items)), response.FormatNumber, "🧾"),
		response.NewMetric("Promotional Sales", float64(promo), response.FormatNumber, "🏷️"),
	}}

	answer := fmt.Sprintf("You made %s across %d sales.", response.FormatCurrencyValue(revenue), len(items))
	return answer, response.NewFormattedData(metrics, response.Metadata{"title": "Sales Metrics", "layout": "grid"})
}

func promotionOf(item node) string {
	p := strings.TrimSpace(toText(item["promotionType"]))
	if p == "" || strings.EqualFold(p, "none") {
		return "None"
	}
	return p
}

func salesChartByWeather(raw Result) (string, *response.FormattedData) {
	items, _ := rootNodes(raw, "allSales")
	if len(items) == 0 {
		return "No sales records found.", nil
	}

	groups := newGroupSum()
	for _, item := range items {
		groups.add(textOr(item, "weatherCondition", "Unknown"), floatOf(item, "revenue"))
	}

	chart := &response.ChartData{
		ChartType: response.ChartBar,
		Labels:    groups.labels,
		Datasets: []response.Dataset{{
			Label:           "Revenue by Weather",
			Data:            groups.values,
			BackgroundColor: response.Colors{"#36A2EB"},
		}},
	}
	return "Here is your revenue by weather condition.",
		response.NewFormattedData(chart, response.Metadata{"title": "Revenue by Weather Condition"})
}

func salesChartByPromotion(raw Result) (string, *response.FormattedData) {
	items, _ := rootNodes(raw, "allSales")
	if len(items) == 0 {
		return "No sales records found.", nil
	}

	groups := newGroupSum()
	for _, item := range items {
		groups.add(promotionOf(item), floatOf(item, "revenue"))
	}

	chart := &response.ChartData{
		ChartType: response.ChartPie,
		Labels:    groups.labels,
		Datasets: []response.Dataset{{
			Label:           "Revenue by Promotion",
			Data:            groups.values,
			BackgroundColor: paletteFor(len(groups.labels)),
		}},
	}
	return "Here is your revenue by promotion type.",
		response.NewFormattedData(chart, response.Metadata{"title": "Revenue by Promotion Type"})
}

// salesChartByDate sums revenue per day in date order. Trend lines render as
// bars since the envelope only carries pie and bar charts.
func salesChartByDate(raw Result) (string, *response.FormattedData) {
	items, _ := rootNodes(raw, "allSales")
	if len(items) == 0 {
		return "No sales records found.", nil
	}

	sorted := append([]node(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return toText(sorted[i]["saleDate"]) < toText(sorted[j]["saleDate"])
	})

	groups := newGroupSum()
	for _, item := range sorted {
		groups.add(textOr(item, "saleDate", "Unknown"), floatOf(item, "revenue"))
	}

	chart := &response.ChartData{
		ChartType: response.ChartBar,
		Labels:    groups.labels,
		Datasets: []response.Dataset{{
			Label:           "Revenue",
			Data:            groups.values,
			BackgroundColor: response.Colors{"#4BC0C0"},
		}},
	}
	return fmt.Sprintf("Here is your revenue across %d days.", len(groups.labels)),
		response.NewFormattedData(chart, response.Metadata{"title": "Revenue Trend"})
}

func salesReport(raw Result) (string, *response.FormattedData) {
	rows, _ := rootNodes(raw, "salesReport")
	if len(rows) == 0 {
		return "No sales data available for report.", nil
	}

	first := rows[0]
	labels := make([]string, 0, len(rows))
	revenue := make([]float64, 0, len(rows))

	if _, byProduct := first["name"]; byProduct {
		qty := make([]float64, 0, len(rows))
		for _, r := range rows {
			labels = append(labels, textOr(r, "name", "Unknown"))
			revenue = append(revenue, floatOf(r, "totalRevenue"))
			qty = append(qty, floatOf(r, "totalQuantity"))
		}
		chart := &response.ChartData{
			ChartType: response.ChartBar,
			Labels:    labels,
			Datasets: []response.Dataset{
				{Label: "Total Revenue", Data: revenue, BackgroundColor: response.Colors{"#36A2EB"}},
				{Label: "Quantity Sold", Data: qty, BackgroundColor: response.Colors{"#FF6384"}},
			},
		}
		return fmt.Sprintf("Here are sales for %d products.", len(labels)),
			response.NewFormattedData(chart, response.Metadata{"title": "Sales Report by Product"})
	}

	if _, byDate := first["date"]; byDate {
		for _, r := range rows {
			labels = append(labels, textOr(r, "date", ""))
			revenue = append(revenue, floatOf(r, "totalRevenue"))
		}
		chart := &response.ChartData{
			ChartType: response.ChartBar,
			Labels:    labels,
			Datasets: []response.Dataset{
				{Label: "Total Revenue", Data: revenue, BackgroundColor: response.Colors{"#4BC0C0"}},
			},
		}
		return fmt.Sprintf("Here is your revenue across %d days.", len(labels)),
			response.NewFormattedData(chart, response.Metadata{"title": "Sales Trend"})
	}

	return DefaultAnswer, nil
}
