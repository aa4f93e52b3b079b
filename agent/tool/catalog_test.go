package tool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
	"github.com/tanpawarit/bizai-insight/forecast/client"
	"github.com/tanpawarit/bizai-insight/forecast/model"
	"github.com/tanpawarit/bizai-insight/forecast/service"
	graphqlx "github.com/tanpawarit/bizai-insight/pkg/graphql"
)

type graphCall struct {
	query string
	vars  map[string]any
}

type fakeGraph struct {
	mu      sync.Mutex
	calls   []graphCall
	results map[string]graphqlx.Result
	err     error
	schema  graphqlx.Schema
}

func (f *fakeGraph) Execute(_ context.Context, query string, vars map[string]any) (graphqlx.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, graphCall{query: query, vars: vars})
	if f.err != nil {
		return nil, f.err
	}
	for root, res := range f.results {
		if strings.Contains(query, root) {
			return res, nil
		}
	}
	return graphqlx.Result{"data": map[string]any{}}, nil
}

func (f *fakeGraph) Introspect(context.Context) (graphqlx.Schema, error) {
	return f.schema, nil
}

func (f *fakeGraph) last() graphCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeForecaster struct {
	req  service.PredictFastRequest
	resp service.PredictResponse
	err  error
}

func (f *fakeForecaster) PredictFast(_ context.Context, req service.PredictFastRequest) (service.PredictResponse, error) {
	f.req = req
	return f.resp, f.err
}

type fakeRetrainer struct {
	req     service.RetrainRequest
	receipt client.RetrainReceipt
}

func (f *fakeRetrainer) SubmitRetrain(_ context.Context, req service.RetrainRequest) (client.RetrainReceipt, error) {
	f.req = req
	return f.receipt, nil
}

func connection(nodes ...map[string]any) map[string]any {
	edges := make([]any, 0, len(nodes))
	for _, n := range nodes {
		edges = append(edges, map[string]any{"node": n})
	}
	return map[string]any{"edges": edges}
}

func newTestGateway(t *testing.T, graph *fakeGraph, opts ...Option) *Gateway {
	t.Helper()
	g, err := NewGateway(graph, opts...)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	return g
}

func runOne(t *testing.T, g *Gateway, ctx context.Context, tool string, args map[string]any) contractx.ToolResult {
	t.Helper()
	out, err := g.Execute(ctx, []contractx.ToolRequest{{ID: "call_1", Tool: tool, Args: args}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].ID != "call_1" || out[0].Tool != tool {
		t.Fatalf("unexpected result identity: %+v", out[0])
	}
	return out[0]
}

func TestToolsListsCatalogInOrder(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, &fakeGraph{})
	want := []string{
		ToolIntrospectSchema, ToolQueryGraphQL, ToolQueryInventory, ToolQuerySuppliers,
		ToolQuerySales, ToolPredictSales, ToolTrainModel,
	}
	infos := g.Tools()
	if len(infos) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(infos))
	}
	for i, name := range want {
		if infos[i].Name != name {
			t.Fatalf("tool %d = %s, want %s", i, infos[i].Name, name)
		}
		if infos[i].Desc == "" {
			t.Fatalf("tool %s has no description", name)
		}
	}
	if len(Infos()) != len(want) {
		t.Fatalf("Infos() returned %d tools", len(Infos()))
	}
}

func TestNewGatewayRequiresGraphQL(t *testing.T) {
	t.Parallel()

	if _, err := NewGateway(nil); err == nil {
		t.Fatal("expected error for nil graphql client")
	}
}

func TestExecuteUnknownToolIsToolError(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, &fakeGraph{})
	out := runOne(t, g, context.Background(), "math.evaluate", nil)
	if out.OK() {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(out.Error, "unknown tool") {
		t.Fatalf("unexpected error: %s", out.Error)
	}
}

func TestExecuteRejectsInvalidArguments(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		tool string
		args map[string]any
	}{
		{name: "missing required", tool: ToolPredictSales, args: map[string]any{"days": 3}},
		{name: "above maximum", tool: ToolPredictSales, args: map[string]any{"item_name": "Coffee", "days": 120}},
		{name: "wrong type", tool: ToolQueryInventory, args: map[string]any{"min_price": "cheap"}},
		{name: "outside enum", tool: ToolQuerySales, args: map[string]any{"mode": "pivot"}},
		{name: "missing query", tool: ToolQueryGraphQL, args: nil},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			graph := &fakeGraph{}
			g := newTestGateway(t, graph)
			out := runOne(t, g, context.Background(), tc.tool, tc.args)
			if !strings.HasPrefix(out.Error, "invalid arguments") {
				t.Fatalf("expected invalid arguments error, got %q", out.Error)
			}
			if len(graph.calls) != 0 {
				t.Fatalf("backend must not be called, got %d calls", len(graph.calls))
			}
		})
	}
}

func TestExecuteReportsMalformedArguments(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{}
	g := newTestGateway(t, graph)
	out, err := g.Execute(context.Background(), []contractx.ToolRequest{
		{ID: "call_1", Tool: ToolQueryInventory, ArgsError: "unexpected end of JSON input"},
		{ID: "call_2", Tool: ToolQuerySuppliers},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].Error != "invalid arguments: unexpected end of JSON input" {
		t.Fatalf("unexpected error: %q", out[0].Error)
	}
	if !out[1].OK() {
		t.Fatalf("second call should still run, got %q", out[1].Error)
	}
	if len(graph.calls) != 1 {
		t.Fatalf("expected only the valid call to reach the backend, got %d calls", len(graph.calls))
	}
}

func TestQueryGraphQLRejectsMutations(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{}
	g := newTestGateway(t, graph)
	out := runOne(t, g, context.Background(), ToolQueryGraphQL, map[string]any{
		"query": "  mutation { deleteInventory(id: 1) { ok } }",
	})
	if out.OK() || !strings.Contains(out.Error, "read queries") {
		t.Fatalf("expected read-only error, got %+v", out)
	}
	if len(graph.calls) != 0 {
		t.Fatal("mutation must not reach the backend")
	}
}

func TestQueryGraphQLPassesThroughResult(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{results: map[string]graphqlx.Result{
		"allSuppliers": {"data": map[string]any{"allSuppliers": connection(map[string]any{"supplierName": "Acme"})}},
	}}
	g := newTestGateway(t, graph)
	out := runOne(t, g, context.Background(), ToolQueryGraphQL, map[string]any{
		"query": "query { allSuppliers { edges { node { supplierName } } } }",
	})
	if !out.OK() {
		t.Fatalf("unexpected tool error: %s", out.Error)
	}
	if _, ok := out.Result.(graphqlx.Result); !ok {
		t.Fatalf("unexpected result type: %T", out.Result)
	}
}

func TestGraphQLErrorsAreReportedWithBody(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{results: map[string]graphqlx.Result{
		"allInventory": {"errors": []any{map[string]any{"message": "Cannot query field 'foo'"}}},
	}}
	g := newTestGateway(t, graph)
	out := runOne(t, g, context.Background(), ToolQueryInventory, nil)
	if out.Error != "GraphQL error: Cannot query field 'foo'" {
		t.Fatalf("unexpected error: %q", out.Error)
	}
	if out.Result == nil {
		t.Fatal("result body must be kept for formatting")
	}
}

func TestQueryInventoryBuildsScopedQuery(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{}
	g := newTestGateway(t, graph)
	ctx := WithUserEmail(context.Background(), "owner@shop.test")
	out := runOne(t, g, ctx, ToolQueryInventory, map[string]any{
		"item_name":    "Farmer's Rice",
		"max_quantity": 10,
		"is_active":    true,
		"limit":        5,
	})
	if !out.OK() {
		t.Fatalf("unexpected tool error: %s", out.Error)
	}

	call := graph.last()
	for _, want := range []string{
		"query($itemName: String, $userEmail: String)",
		"allInventory(itemName: $itemName, maxQuantity: 10, isActive: true, first: 5, userEmail: $userEmail)",
		"edges { node { id itemName",
	} {
		if !strings.Contains(call.query, want) {
			t.Fatalf("query %q does not contain %q", call.query, want)
		}
	}
	if call.vars["itemName"] != "Farmer's Rice" {
		t.Fatalf("unexpected itemName variable: %v", call.vars["itemName"])
	}
	if call.vars["userEmail"] != "owner@shop.test" {
		t.Fatalf("unexpected userEmail variable: %v", call.vars["userEmail"])
	}
}

func TestQuerySuppliersWithoutFiltersHasNoVariables(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{}
	g := newTestGateway(t, graph)
	runOne(t, g, context.Background(), ToolQuerySuppliers, nil)

	call := graph.last()
	if call.query != "query { allSuppliers { edges { node { "+supplierFields+" } } } }" {
		t.Fatalf("unexpected query: %s", call.query)
	}
	if call.vars != nil {
		t.Fatalf("expected no variables, got %v", call.vars)
	}
}

func TestQuerySalesReportAndList(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{}
	g := newTestGateway(t, graph)

	runOne(t, g, context.Background(), ToolQuerySales, map[string]any{
		"mode":      "report",
		"group_by":  "date",
		"date_from": "2025-01-01",
		"date_to":   "2025-01-31",
	})
	report := graph.last().query
	if !strings.Contains(report, `salesReport(groupBy: "date", dateFrom: "2025-01-01", dateTo: "2025-01-31")`) {
		t.Fatalf("unexpected report query: %s", report)
	}
	if strings.Contains(report, "edges") {
		t.Fatalf("report is not a connection: %s", report)
	}

	runOne(t, g, context.Background(), ToolQuerySales, map[string]any{
		"product_name": "Coffee",
		"was_on_sale":  false,
	})
	list := graph.last()
	if !strings.Contains(list.query, `allSales(productName: $productName, wasOnSale: false, orderBy: "-saleDate")`) {
		t.Fatalf("unexpected list query: %s", list.query)
	}
	if list.vars["productName"] != "Coffee" {
		t.Fatalf("unexpected variables: %v", list.vars)
	}
}

func TestQuerySalesRejectsBadDates(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, &fakeGraph{})
	for _, args := range []map[string]any{
		{"date_from": "01/02/2025"},
		{"date_from": "2025-02-30"},
		{"date_from": "2025-03-01", "date_to": "2025-02-01"},
	} {
		out := runOne(t, g, context.Background(), ToolQuerySales, args)
		if out.OK() {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestIntrospectReturnsSummary(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{schema: graphqlx.Schema{Queries: []graphqlx.Field{
		{Name: "allInventory", Type: "InventoryNodeConnection", Args: []graphqlx.Arg{{Name: "itemName", Type: "String"}}},
	}}}
	g := newTestGateway(t, graph)
	out := runOne(t, g, context.Background(), ToolIntrospectSchema, nil)
	result, ok := out.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type: %T", out.Result)
	}
	if result["schema"] != "allInventory(itemName: String): InventoryNodeConnection" {
		t.Fatalf("unexpected summary: %v", result["schema"])
	}
}

func TestPredictSalesResolvesProductAndForecasts(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{results: map[string]graphqlx.Result{
		"allInventory": {"data": map[string]any{"allInventory": connection(
			map[string]any{"id": "1", "itemName": "Coffee Beans", "quantity": 3.0},
			map[string]any{"id": "2", "itemName": "Coffee", "quantity": 12.0},
		)}},
	}}
	fc := &fakeForecaster{resp: service.PredictResponse{
		BusinessID: "biz_042",
		Forecast: []service.DayForecast{{
			Date:        "2025-06-01",
			Predictions: []model.Prediction{{ItemID: "Coffee", SalesAmount: 40, SalesQuantity: 8, ConfidenceScore: 90}},
		}},
	}}
	now := time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)
	g := newTestGateway(t, graph,
		WithForecaster(fc),
		WithBusinessID("biz_042"),
		WithClock(func() time.Time { return now }),
	)

	out := runOne(t, g, context.Background(), ToolPredictSales, map[string]any{"item_name": "coffee", "days": 3})
	if !out.OK() {
		t.Fatalf("unexpected tool error: %s", out.Error)
	}
	pred, ok := out.Result.(PredictionResult)
	if !ok {
		t.Fatalf("unexpected result type: %T", out.Result)
	}
	if pred.Type != "prediction" || pred.Product != "Coffee" || pred.CurrentInventory != 12 {
		t.Fatalf("unexpected prediction: %+v", pred)
	}
	if len(pred.Forecast) != 1 || pred.Disclaimer == "" {
		t.Fatalf("unexpected forecast payload: %+v", pred)
	}

	if fc.req.BusinessID != "biz_042" {
		t.Fatalf("unexpected business id: %s", fc.req.BusinessID)
	}
	if len(fc.req.ItemIDs) != 1 || fc.req.ItemIDs[0] != "Coffee" {
		t.Fatalf("unexpected item ids: %v", fc.req.ItemIDs)
	}
	if fc.req.BeginDate != "2025-06-01" || fc.req.EndDate != "2025-06-03" {
		t.Fatalf("unexpected horizon: %s..%s", fc.req.BeginDate, fc.req.EndDate)
	}
}

func TestPredictSalesErrors(t *testing.T) {
	t.Parallel()

	t.Run("unknown product", func(t *testing.T) {
		t.Parallel()
		graph := &fakeGraph{results: map[string]graphqlx.Result{
			"allInventory": {"data": map[string]any{"allInventory": connection()}},
		}}
		g := newTestGateway(t, graph, WithForecaster(&fakeForecaster{}))
		out := runOne(t, g, context.Background(), ToolPredictSales, map[string]any{"item_name": "Tea"})
		if out.Error != `product "Tea" not found` {
			t.Fatalf("unexpected error: %q", out.Error)
		}
	})

	t.Run("no trained model", func(t *testing.T) {
		t.Parallel()
		graph := &fakeGraph{results: map[string]graphqlx.Result{
			"allInventory": {"data": map[string]any{"allInventory": connection(map[string]any{"itemName": "Tea"})}},
		}}
		fc := &fakeForecaster{err: &client.APIError{Status: 404, Message: "Model not found"}}
		g := newTestGateway(t, graph, WithForecaster(fc))
		out := runOne(t, g, context.Background(), ToolPredictSales, map[string]any{"item_name": "Tea"})
		if !strings.Contains(out.Error, "no forecast model has been trained") {
			t.Fatalf("unexpected error: %q", out.Error)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		g := newTestGateway(t, &fakeGraph{})
		out := runOne(t, g, context.Background(), ToolPredictSales, map[string]any{"item_name": "Tea"})
		if out.OK() {
			t.Fatal("expected error without forecaster")
		}
	})
}

func TestTrainModelSubmitsDailyRecords(t *testing.T) {
	t.Parallel()

	sale := func(date, product string, qty, revenue float64) map[string]any {
		return map[string]any{
			"saleDate":         date,
			"quantitySold":     qty,
			"revenue":          revenue,
			"weatherCondition": "Sunny",
			"flowFamily":       2.0,
			"flowAdults":       1.0,
			"prodId":           map[string]any{"itemName": product},
			"holidays":         connection(map[string]any{"name": "New Year"}),
		}
	}
	graph := &fakeGraph{results: map[string]graphqlx.Result{
		"allSales": {"data": map[string]any{"allSales": connection(
			sale("2025-01-02", "Coffee", 3, 30),
			sale("2025-01-01", "Coffee", 1, 10),
			sale("2025-01-01", "Coffee", 2, 20),
			sale("2025-01-01", "Tea", 4, 16),
			map[string]any{"saleDate": "2025-01-01"},
		)}},
	}}
	rt := &fakeRetrainer{receipt: client.RetrainReceipt{Status: client.StatusQueued, MessageID: "msg_1"}}
	g := newTestGateway(t, graph, WithRetrainer(rt), WithBusinessID("biz_7"))

	out := runOne(t, g, context.Background(), ToolTrainModel, nil)
	if !out.OK() {
		t.Fatalf("unexpected tool error: %s", out.Error)
	}
	res, ok := out.Result.(TrainResult)
	if !ok {
		t.Fatalf("unexpected result type: %T", out.Result)
	}
	if res.Status != client.StatusQueued || res.MessageID != "msg_1" || res.Records != 3 || res.Products != 2 {
		t.Fatalf("unexpected train result: %+v", res)
	}

	if rt.req.BusinessID != "biz_7" {
		t.Fatalf("unexpected business id: %s", rt.req.BusinessID)
	}
	if err := model.Validate(rt.req.Data); err != nil {
		t.Fatalf("submitted records are invalid: %v", err)
	}
	first := rt.req.Data[0]
	if first.Date != "2025-01-01" || first.ProductID != "Coffee" || first.UnitsSold != 3 || first.Revenue != 30 {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if first.FlowFamilies != 4 || first.FlowSeniors != 2 || first.HolidayName != "New Year" {
		t.Fatalf("unexpected mapped fields: %+v", first)
	}
	if rt.req.Data[2].Date != "2025-01-02" {
		t.Fatalf("records must be date ordered: %+v", rt.req.Data)
	}
}

func TestTrainModelWithoutSales(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, &fakeGraph{}, WithRetrainer(&fakeRetrainer{}))
	out := runOne(t, g, context.Background(), ToolTrainModel, nil)
	if out.Error != "no sales data available to train on" {
		t.Fatalf("unexpected error: %q", out.Error)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, &fakeGraph{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Execute(ctx, []contractx.ToolRequest{{Tool: ToolQuerySuppliers}})
	if !errors.Is(err, contractx.ErrToolInvoke) {
		t.Fatalf("expected ErrToolInvoke, got %v", err)
	}
}

func TestExecuteTransportErrorIsToolError(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, &fakeGraph{err: errors.New("connection refused")})
	out := runOne(t, g, context.Background(), ToolQuerySuppliers, nil)
	if out.Error != "connection refused" {
		t.Fatalf("unexpected error: %q", out.Error)
	}
}
