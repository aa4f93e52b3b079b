package formatter

import (
	"fmt"

	"github.com/tanpawarit/bizai-insight/agent/response"
)

// prediction renders a forecast payload of the shape
// {type:"prediction", product, current_inventory, forecast:[{date, predictions:[...]}], disclaimer}.
// Only the first prediction of each day is charted.
func prediction(raw Result) (string, *response.FormattedData) {
	product := toText(raw["product"])
	if product == "" {
		product = "Unknown Product"
	}

	days, _ := raw["forecast"].([]any)
	labels := make([]string, 0, len(days))
	amounts := make([]float64, 0, len(days))
	quantities := make([]float64, 0, len(days))
	for _, d := range days {
		day, ok := d.(map[string]any)
		if !ok {
			continue
		}
		preds, _ := day["predictions"].([]any)
		if len(preds) == 0 {
			continue
		}
		pred, ok := preds[0].(map[string]any)
		if !ok {
			continue
		}
		labels = append(labels, toText(day["date"]))
		amounts = append(amounts, floatOf(pred, "sales_amount"))
		quantities = append(quantities, floatOf(pred, "sales_quantity"))
	}
	if len(labels) == 0 {
		return fmt.Sprintf("No forecast is available for %s yet.", product), nil
	}

	chart := &response.ChartData{
		ChartType: response.ChartBar,
		Labels:    labels,
		Datasets: []response.Dataset{
			{Label: "Predicted Revenue ($)", Data: amounts, BackgroundColor: response.Colors{"#8884d8"}},
			{Label: "Predicted Quantity", Data: quantities, BackgroundColor: response.Colors{"#82ca9d"}},
		},
	}

	meta := response.Metadata{
		"title":    "Sales Prediction: " + product,
		"subtitle": fmt.Sprintf("Next %d Days", len(labels)),
	}
	if disclaimer := toText(raw["disclaimer"]); disclaimer != "" {
		meta["disclaimer"] = disclaimer
	}
	if inv, ok := toFloat(raw["current_inventory"]); ok {
		meta["current_inventory"] = inv
	}

	var total float64
	for _, a := range amounts {
		total += a
	}
	answer := fmt.Sprintf("%s is expected to bring in about %s over the next %d days.", product, response.FormatCurrencyValue(total), len(labels))
	return answer, response.NewFormattedData(chart, meta)
}
