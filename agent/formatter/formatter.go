// Package formatter projects raw GraphQL and tool results into the typed
// display payloads of the response envelope.
package formatter

import (
	"strings"

	"github.com/tanpawarit/bizai-insight/agent/response"
)

const (
	// MaxRows caps table rows; total_count still reports the full count.
	MaxRows = 100

	DefaultAnswer  = "Here is what I found."
	GenericAnswer  = "I found some data but could not prepare a detailed view of it."
	FailureAnswer  = "I couldn't get that information right now."
	graphQLFailure = "GraphQL query failed: "
)

type projector func(raw Result) (string, *response.FormattedData)

var projectors = map[Intent]projector{
	IntentInventoryList:         inventoryTable,
	IntentInventoryMetrics:      inventoryMetrics,
	IntentInventoryChartByType:  inventoryChartByType,
	IntentInventoryChartByPrice: inventoryChartByPrice,
	IntentInventoryStockLevels:  inventoryStockLevels,
	IntentInventoryLowStock:     inventoryLowStock,
	IntentInventoryBrief:        inventoryBrief,
	IntentInventoryDetail:       inventoryDetail,
	IntentSupplierList:          supplierTable,
	IntentSalesList:             salesTable,
	IntentSalesMetrics:          salesMetrics,
	IntentSalesChartByDate:      salesChartByDate,
	IntentSalesChartByWeather:   salesChartByWeather,
	IntentSalesChartByPromotion: salesChartByPromotion,
	IntentSalesReport:           salesReport,
	IntentForecastPrediction:    prediction,
}

// Format converts raw into an envelope for intent. It never panics and always
// returns an envelope that passes Validate. Logs are left empty for the caller.
func Format(intent Intent, raw Result) (env response.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			env = response.Text(GenericAnswer, nil)
		}
	}()

	if msg, ok := upstreamError(raw); ok {
		return response.Failure(FailureAnswer, msg, nil)
	}

	project, ok := projectors[intent]
	if !ok {
		return response.Text(plainAnswer(raw), nil)
	}

	answer, data := project(raw)
	if strings.TrimSpace(answer) == "" {
		answer = DefaultAnswer
	}
	if data == nil {
		return response.Text(answer, nil)
	}

	env = response.Success(answer, nil, data)
	if err := env.Validate(); err != nil {
		return response.Text(GenericAnswer, nil)
	}
	return env
}

// ClassifyAndFormat is the one-call path used by the agent.
func ClassifyAndFormat(query string, raw Result) (Intent, response.Envelope) {
	intent := Classify(query, raw)
	return intent, Format(intent, raw)
}

// upstreamError extracts GraphQL "errors" or a tool-level "error" string.
func upstreamError(raw Result) (string, bool) {
	if msgs := errorMessages(raw["errors"]); len(msgs) > 0 {
		return graphQLFailure + strings.Join(msgs, "; "), true
	}

	msg, _ := raw["error"].(string)
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", false
	}
	if details := errorMessages(raw["details"]); len(details) > 0 {
		return graphQLFailure + strings.Join(details, "; "), true
	}
	return msg, true
}

func errorMessages(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		var msg string
		switch t := e.(type) {
		case map[string]any:
			msg, _ = t["message"].(string)
		case string:
			msg = t
		}
		if msg = strings.TrimSpace(msg); msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

func plainAnswer(raw Result) string {
	for _, key := range []string{"message", "answer"} {
		if s, ok := raw[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return DefaultAnswer
}
