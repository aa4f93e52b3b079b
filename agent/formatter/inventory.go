package formatter

import (
	"fmt"
	"sort"

	"github.com/tanpawarit/bizai-insight/agent/response"
)

// Column order is fixed so tables do not depend on map iteration.
var tableColumns = []response.Column{
	{Key: "id", Label: "ID", Type: "text", Width: "80px"},
	{Key: "salesUid", Label: "Sale ID", Type: "text", Width: "100px"},
	{Key: "saleDate", Label: "Date", Type: "date", Width: "100px", Sortable: true},
	{Key: "itemName", Label: "Item Name", Type: "text", Width: "200px", Sortable: true},
	{Key: "prodId", Label: "Product", Type: "text", Width: "200px", Sortable: true},
	{Key: "quantity", Label: "Quantity", Type: "number", Width: "100px", Sortable: true},
	{Key: "quantityUnit", Label: "Unit", Type: "text", Width: "80px"},
	{Key: "type", Label: "Type", Type: "text", Width: "120px", Filterable: true},
	{Key: "supplier", Label: "Supplier", Type: "text", Width: "150px", Filterable: true},
	{Key: "costPrice", Label: "Cost", Type: "currency", Width: "100px", Sortable: true},
	{Key: "sellingPrice", Label: "Price", Type: "currency", Width: "100px", Sortable: true},
	{Key: "minQuantity", Label: "Min Qty", Type: "number", Width: "90px"},
	{Key: "isActive", Label: "Active", Type: "boolean", Width: "80px"},
	{Key: "lastRestockDate", Label: "Last Restock", Type: "date", Width: "120px"},
	{Key: "quantitySold", Label: "Qty Sold", Type: "number", Width: "80px", Sortable: true},
	{Key: "revenue", Label: "Revenue", Type: "currency", Width: "100px", Sortable: true},
	{Key: "weatherCondition", Label: "Weather", Type: "text", Width: "100px"},
	{Key: "promotionType", Label: "Promotion", Type: "text", Width: "120px"},
}

func buildTable(items []node, total int) *response.TableData {
	sample := items[0]
	columns := make([]response.Column, 0, len(tableColumns))
	for _, c := range tableColumns {
		if _, ok := sample[c.Key]; ok {
			columns = append(columns, c)
		}
	}

	if total < len(items) {
		total = len(items)
	}
	if len(items) > MaxRows {
		items = items[:MaxRows]
	}

	rows := make([]response.Row, 0, len(items))
	for _, item := range items {
		row := make(response.Row, len(columns))
		for _, c := range columns {
			row[c.Key] = cellFor(c.Type, item[c.Key])
		}
		rows = append(rows, row)
	}

	return &response.TableData{Columns: columns, Rows: rows, TotalCount: total}
}

func cellFor(colType string, v any) response.Cell {
	switch colType {
	case "currency":
		if f, ok := toFloat(v); ok {
			return response.Cell{Value: f, Formatted: response.FormatCurrencyValue(f)}
		}
	case "number":
		if f, ok := toFloat(v); ok {
			return response.Cell{Value: f, Formatted: response.FormatNumberValue(f)}
		}
	case "boolean":
		b := truthy(v)
		mark := "✗"
		if b {
			mark = "✓"
		}
		return response.Cell{Value: b, Formatted: mark}
	}

	text := toText(v)
	if _, nested := v.(map[string]any); nested {
		return response.Cell{Value: text, Formatted: text}
	}
	return response.Cell{Value: v, Formatted: text}
}

func tableMetadata(title string, rows int) response.Metadata {
	return response.Metadata{
		"title":      title,
		"searchable": true,
		"sortable":   true,
		"exportable": true,
		"pagination": map[string]any{"enabled": rows > 10, "page_size": 10},
	}
}

func inventoryTable(raw Result) (string, *response.FormattedData) {
	items, total := rootNodes(raw, "allInventory")
	if len(items) == 0 {
		return "No inventory items found.", nil
	}

	table := buildTable(items, total)
	title := fmt.Sprintf("Inventory Items (%d items)", table.TotalCount)
	answer := fmt.Sprintf("Found %d inventory items.", table.TotalCount)
	return answer, response.NewFormattedData(table, tableMetadata(title, len(table.Rows)))
}

func inventoryMetrics(raw Result) (string, *response.FormattedData) {
	items, _ := rootNodes(raw, "allInventory")
	if len(items) == 0 {
		return "No inventory items found.", nil
	}

	var totalValue, priceSum float64
	var lowStock, outOfStock, priced int
	for _, item := range items {
		qty := floatOf(item, "quantity")
		price := floatOf(item, "sellingPrice")
		totalValue += price * qty
		if qty < floatOf(item, "minQuantity") {
			lowStock++
		}
		if qty == 0 {
			outOfStock++
		}
		if price != 0 {
			priceSum += price
			priced++
		}
	}
	avgPrice := 0.0
	if priced > 0 {
		avgPrice = priceSum / float64(priced)
	}

	low := response.NewMetric("Low Stock Items", float64(lowStock), response.FormatNumber, "⚠️")
	low.Color = statusColor(lowStock, "warning")
	out := response.NewMetric("Out of Stock", float64(outOfStock), response.FormatNumber, "🚫")
	out.Color = statusColor(outOfStock, "danger")

	metrics := &response.MetricsData{Metrics: []response.Metric{
		response.NewMetric("Total Items", float64(len(items)), response.FormatNumber, "📦"),
		response.NewMetric("Total Inventory Value", totalValue, response.FormatCurrency, "💰"),
		low,
		out,
		response.NewMetric("Average Price", avgPrice, response.FormatCurrency, "📊"),
	}}

	answer := fmt.Sprintf("You have %d items worth %s in stock.", len(items), response.FormatCurrencyValue(totalValue))
	return answer, response.NewFormattedData(metrics, response.Metadata{"title": "Inventory Metrics", "layout": "grid"})
}

func statusColor(count int, bad string) string {
	if count > 0 {
		return bad
	}
	return "success"
}

func inventoryChartByType(raw Result) (string, *response.FormattedData) {
	items, _ := rootNodes(raw, "allInventory")
	if len(items) == 0 {
		return "No inventory items found.", nil
	}

	counts := newGroupSum()
	for _, item := range items {
		counts.add(textOr(item, "type", "Unknown"), 1)
	}

	chart := &response.ChartData{
		ChartType: response.ChartPie,
		Labels:    counts.labels,
		Datasets: []response.Dataset{{
			Label:           "Items by Type",
			Data:            counts.values,
			BackgroundColor: paletteFor(len(counts.labels)),
		}},
	}
	meta := response.Metadata{
		"title":       "Inventory Distribution by Type",
		"description": fmt.Sprintf("Showing %d items across %d categories", len(items), len(counts.labels)),
	}
	answer := fmt.Sprintf("Your %d items span %d categories.", len(items), len(counts.labels))
	return answer, response.NewFormattedData(chart, meta)
}

func inventoryChartByPrice(raw Result) (string, *response.FormattedData) {
	items, _ := rootNodes(raw, "allInventory")
	if len(items) == 0 {
		return "No inventory items found.", nil
	}

	sorted := append([]node(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return floatOf(sorted[i], "sellingPrice") > floatOf(sorted[j], "sellingPrice")
	})
	if len(sorted) > 10 {
		sorted = sorted[:10]
	}

	labels := make([]string, 0, len(sorted))
	prices := make([]float64, 0, len(sorted))
	for _, item := range sorted {
		labels = append(labels, textOr(item, "itemName", "Unknown"))
		prices = append(prices, floatOf(item, "sellingPrice"))
	}

	chart := &response.ChartData{
		ChartType: response.ChartBar,
		Labels:    labels,
		Datasets: []response.Dataset{{
			Label:           "Selling Price",
			Data:            prices,
			BackgroundColor: response.Colors{"#36A2EB"},
		}},
	}
	meta := response.Metadata{"title": "Top 10 Items by Price", "yAxisLabel": "Price ($)"}
	return fmt.Sprintf("%s is your highest priced item.", labels[0]), response.NewFormattedData(chart, meta)
}

func inventoryStockLevels(raw Result) (string, *response.FormattedData) {
	items, _ := rootNodes(raw, "allInventory")
	if len(items) == 0 {
		return "No inventory items found.", nil
	}

	sorted := append([]node(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return floatOf(sorted[i], "quantity") < floatOf(sorted[j], "quantity")
	})
	if len(sorted) > 15 {
		sorted = sorted[:15]
	}

	labels := make([]string, 0, len(sorted))
	current := make([]float64, 0, len(sorted))
	minimum := make([]float64, 0, len(sorted))
	for _, item := range sorted {
		labels = append(labels, textOr(item, "itemName", "Unknown"))
		current = append(current, floatOf(item, "quantity"))
		minimum = append(minimum, floatOf(item, "minQuantity"))
	}

	chart := &response.ChartData{
		ChartType: response.ChartBar,
		Labels:    labels,
		Datasets: []response.Dataset{
			{Label: "Current Stock", Data: current, BackgroundColor: response.Colors{"#FF6384"}},
			{Label: "Min Stock", Data: minimum, BackgroundColor: response.Colors{"#FFCE56"}},
		},
	}
	meta := response.Metadata{
		"title":      fmt.Sprintf("Stock Levels (Lowest %d Items)", len(labels)),
		"yAxisLabel": "Quantity",
	}
	return fmt.Sprintf("%s has the lowest stock.", labels[0]), response.NewFormattedData(chart, meta)
}

func stockStatus(item node) string {
	status := "active"
	if v, ok := item["isActive"]; ok && !truthy(v) {
		status = "inactive"
	}
	qty := floatOf(item, "quantity")
	switch {
	case qty == 0:
		status = "out_of_stock"
	case qty < floatOf(item, "minQuantity"):
		status = "low_stock"
	}
	return status
}

func quantityText(item node, key string) string {
	return fmt.Sprintf("%s %s", response.FormatNumberValue(floatOf(item, key)), textOr(item, "quantityUnit", "units"))
}

func inventoryLowStock(raw Result) (string, *response.FormattedData) {
	items, _ := rootNodes(raw, "allInventory")
	if len(items) == 0 {
		return "Good news: no items are running low.", nil
	}
	listItems, attention := inventoryListItems(items)
	answer := fmt.Sprintf("%d of %d items are low or out of stock.", attention, len(listItems))
	return answer, inventoryListData(listItems)
}

func inventoryBrief(raw Result) (string, *response.FormattedData) {
	items, _ := rootNodes(raw, "allInventory")
	if len(items) == 0 {
		return "No inventory items found.", nil
	}
	listItems, _ := inventoryListItems(items)
	return fmt.Sprintf("Found %d inventory items.", len(listItems)), inventoryListData(listItems)
}

// inventoryListItems also counts the items that are low or out of stock.
func inventoryListItems(items []node) ([]response.ListItem, int) {
	listItems := make([]response.ListItem, 0, len(items))
	attention := 0
	for _, item := range items {
		details := []string{}
		if t := toText(item["type"]); t != "" {
			details = append(details, "Type: "+t)
		}
		if s := toText(item["supplier"]); s != "" {
			details = append(details, "Supplier: "+s)
		}
		if price, ok := toFloat(item["sellingPrice"]); ok && price != 0 {
			details = append(details, "Price: "+response.FormatCurrencyValue(price))
		}

		status := stockStatus(item)
		if status == "low_stock" || status == "out_of_stock" {
			attention++
		}

		listItems = append(listItems, response.ListItem{
			ID:       toText(item["id"]),
			Title:    textOr(item, "itemName", "Unknown Item"),
			Subtitle: quantityText(item, "quantity"),
			Details:  details,
			Status:   status,
			Icon:     "📦",
		})
	}
	return listItems, attention
}

func inventoryListData(listItems []response.ListItem) *response.FormattedData {
	meta := response.Metadata{
		"title":  fmt.Sprintf("Inventory Items (%d)", len(listItems)),
		"layout": "vertical",
	}
	return response.NewFormattedData(&response.ListData{Items: listItems}, meta)
}

func inventoryDetail(raw Result) (string, *response.FormattedData) {
	items, _ := rootNodes(raw, "allInventory")
	if len(items) == 0 {
		return "No inventory items found.", nil
	}
	item := items[0]
	name := textOr(item, "itemName", "Item Details")

	description := textOr(item, "itemDescription", textOr(item, "description", "N/A"))
	autoReorder := "No"
	if truthy(item["autoReorder"]) {
		autoReorder = "Yes"
	}

	sections := []response.Section{
		{
			Title: "Basic Information",
			Fields: []response.Field{
				{Label: "Item Name", Value: textOr(item, "itemName", "N/A")},
				{Label: "Type", Value: textOr(item, "type", "N/A")},
				{Label: "Description", Value: description},
			},
		},
		{
			Title: "Stock Information",
			Fields: []response.Field{
				{Label: "Current Quantity", Value: quantityText(item, "quantity")},
				{Label: "Minimum Quantity", Value: quantityText(item, "minQuantity")},
				{Label: "Auto Reorder", Value: autoReorder},
			},
		},
	}

	cost := floatOf(item, "costPrice")
	price := floatOf(item, "sellingPrice")
	if cost != 0 || price != 0 {
		pricing := response.Section{
			Title: "Pricing",
			Fields: []response.Field{
				{Label: "Cost Price", Value: response.FormatCurrencyValue(cost)},
				{Label: "Selling Price", Value: response.FormatCurrencyValue(price)},
			},
		}
		if cost != 0 && price != 0 {
			margin := price - cost
			pct := 0.0
			if cost > 0 {
				pct = margin / cost * 100
			}
			pricing.Fields = append(pricing.Fields, response.Field{
				Label: "Margin",
				Value: fmt.Sprintf("%s (%.1f%%)", response.FormatCurrencyValue(margin), pct),
			})
		}
		sections = append(sections, pricing)
	}

	if supplier := toText(item["supplier"]); supplier != "" {
		sections = append(sections, response.Section{
			Title: "Supplier",
			Fields: []response.Field{
				{Label: "Supplier Name", Value: supplier},
				{Label: "Last Restock", Value: textOr(item, "lastRestockDate", "N/A")},
			},
		})
	}

	status := "inactive"
	if truthy(item["isActive"]) {
		status = "active"
	}
	meta := response.Metadata{"item_id": toText(item["id"]), "status": status}
	return fmt.Sprintf("Here are the details for %s.", name), response.NewFormattedData(&response.CardData{Title: name, Sections: sections}, meta)
}
