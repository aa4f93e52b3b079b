package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tanpawarit/bizai-insight/forecast/client"
	"github.com/tanpawarit/bizai-insight/forecast/model"
	"github.com/tanpawarit/bizai-insight/forecast/service"
	graphqlx "github.com/tanpawarit/bizai-insight/pkg/graphql"
)

const predictionDisclaimer = "Forecasts are estimates based on past sales and may differ from actual results."

// PredictionResult is what predict_sales hands back to the model and the
// response formatter.
type PredictionResult struct {
	Type             string                `json:"type"`
	Product          string                `json:"product"`
	CurrentInventory float64               `json:"current_inventory"`
	Forecast         []service.DayForecast `json:"forecast"`
	Disclaimer       string                `json:"disclaimer"`
}

type TrainResult struct {
	Status       string  `json:"status"`
	Message      string  `json:"message"`
	Records      int     `json:"records"`
	Products     int     `json:"products"`
	ModelVersion string  `json:"model_version,omitempty"`
	MessageID    string  `json:"message_id,omitempty"`
	Accuracy     float64 `json:"accuracy,omitempty"`
}

type inventoryItem struct {
	Name     string
	Quantity float64
}

func (g *Gateway) predictSales(ctx context.Context, args map[string]any) (any, error) {
	if g.forecaster == nil {
		return nil, errors.New("sales forecasting is not configured")
	}
	name := stringArg(args, "item_name")
	if name == "" {
		return nil, errors.New("item_name is required")
	}
	days := defaultPredictDays
	if n, ok := intArg(args, "days"); ok {
		days = n
	}

	item, err := g.findItem(ctx, name)
	if err != nil {
		return nil, err
	}

	now := g.now()
	begin := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := begin.AddDate(0, 0, days-1)
	resp, err := g.forecaster.PredictFast(ctx, service.PredictFastRequest{
		BusinessID: g.businessID,
		ItemIDs:    []string{item.Name},
		Horizon: service.Horizon{
			BeginDate: begin.Format(model.DateLayout),
			EndDate:   end.Format(model.DateLayout),
		},
	})
	if errors.Is(err, client.ErrModelNotFound) {
		return nil, errors.New("no forecast model has been trained yet, ask to train the model first")
	}
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	return PredictionResult{
		Type:             "prediction",
		Product:          item.Name,
		CurrentInventory: item.Quantity,
		Forecast:         resp.Forecast,
		Disclaimer:       predictionDisclaimer,
	}, nil
}

// findItem resolves name against inventory. An exact, case-insensitive match
// wins over the first partial one.
func (g *Gateway) findItem(ctx context.Context, name string) (inventoryItem, error) {
	query, vars := newQuery("allInventory", "id itemName quantity", true).
		text("itemName", name).
		scope(ctx).
		build()
	result, err := g.graph.Execute(ctx, query, vars)
	if err != nil {
		return inventoryItem{}, fmt.Errorf("could not look up product %q: %w", name, err)
	}
	if msgs := result.ErrorMessages(); len(msgs) > 0 {
		return inventoryItem{}, fmt.Errorf("could not look up product %q: %s", name, strings.Join(msgs, "; "))
	}

	items := connectionNodes(result, "allInventory")
	if len(items) == 0 {
		return inventoryItem{}, fmt.Errorf("product %q not found", name)
	}
	pick := items[0]
	for _, it := range items {
		if n, _ := it["itemName"].(string); strings.EqualFold(n, name) {
			pick = it
			break
		}
	}
	out := inventoryItem{}
	out.Name, _ = pick["itemName"].(string)
	out.Quantity, _ = numberArg(pick, "quantity")
	if out.Name == "" {
		out.Name = name
	}
	return out, nil
}

func (g *Gateway) trainModel(ctx context.Context, _ map[string]any) (any, error) {
	if g.retrainer == nil {
		return nil, errors.New("model training is not configured")
	}

	query, vars := newQuery("allSales", salesFields, true).scope(ctx).build()
	result, err := g.graph.Execute(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("could not load sales history: %w", err)
	}
	if msgs := result.ErrorMessages(); len(msgs) > 0 {
		return nil, fmt.Errorf("could not load sales history: %s", strings.Join(msgs, "; "))
	}

	records := salesToRecords(connectionNodes(result, "allSales"))
	if len(records) == 0 {
		return nil, errors.New("no sales data available to train on")
	}

	receipt, err := g.retrainer.SubmitRetrain(ctx, service.RetrainRequest{
		BusinessID: g.businessID,
		Data:       records,
	})
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	out := TrainResult{
		Status:    receipt.Status,
		Records:   len(records),
		Products:  len(model.ProductIDs(records)),
		MessageID: receipt.MessageID,
	}
	switch {
	case receipt.Result != nil:
		out.ModelVersion = receipt.Result.ModelVersion
		out.Accuracy = receipt.Result.Metrics.Accuracy
		out.Message = fmt.Sprintf("Model trained on %d daily records, version %s.", len(records), out.ModelVersion)
	default:
		out.Message = fmt.Sprintf("Training on %d daily records has been queued.", len(records))
	}
	return out, nil
}

// salesToRecords turns sales nodes into one record per product and day.
// Several sales on the same day are summed; flags and weather come from the
// first sale seen.
func salesToRecords(nodes []map[string]any) []model.DailyRecord {
	type key struct{ date, product string }
	index := map[key]int{}
	var out []model.DailyRecord

	for _, n := range nodes {
		date, _ := n["saleDate"].(string)
		if len(date) > len(model.DateLayout) {
			date = date[:len(model.DateLayout)]
		}
		product := ""
		if prod, ok := n["prodId"].(map[string]any); ok {
			product, _ = prod["itemName"].(string)
		}
		if date == "" || product == "" {
			continue
		}

		units, _ := numberArg(n, "quantitySold")
		revenue, _ := numberArg(n, "revenue")
		flow, _ := numberArg(n, "customerFlow")
		students, _ := numberArg(n, "flowStudents")
		families, _ := numberArg(n, "flowFamily")
		seniors, _ := numberArg(n, "flowAdults")

		k := key{date, product}
		if i, ok := index[k]; ok {
			r := &out[i]
			r.UnitsSold += units
			r.Revenue += revenue
			r.CustomerFlow += flow
			r.FlowStudents += students
			r.FlowFamilies += families
			r.FlowSeniors += seniors
			continue
		}

		temp, _ := numberArg(n, "weatherTemperature")
		discount, _ := numberArg(n, "discountPercentage")
		weather, _ := n["weatherCondition"].(string)
		onSale, _ := n["wasOnSale"].(bool)
		open := model.Flag(true)

		index[k] = len(out)
		out = append(out, model.DailyRecord{
			Date:               date,
			ProductID:          product,
			UnitsSold:          units,
			Revenue:            revenue,
			CustomerFlow:       flow,
			WeatherTemp:        temp,
			WeatherCondition:   weather,
			HolidayName:        holidayNames(n["holidays"]),
			IsStoreOpen:        &open,
			IsOnSale:           model.Flag(onSale),
			DiscountPercentage: discount,
			FlowStudents:       students,
			FlowFamilies:       families,
			FlowSeniors:        seniors,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func holidayNames(v any) string {
	var names []string
	for _, h := range nodesOf(v) {
		if name, _ := h["name"].(string); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func connectionNodes(result graphqlx.Result, root string) []map[string]any {
	return nodesOf(result.Data()[root])
}

func nodesOf(conn any) []map[string]any {
	c, ok := conn.(map[string]any)
	if !ok {
		return nil
	}
	edges, _ := c["edges"].([]any)
	out := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		edge, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if n, ok := edge["node"].(map[string]any); ok {
			out = append(out, n)
		}
	}
	return out
}
