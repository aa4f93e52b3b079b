package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
	"github.com/tanpawarit/bizai-insight/agent/formatter"
	"github.com/tanpawarit/bizai-insight/agent/response"
	statex "github.com/tanpawarit/bizai-insight/agent/state"
	toolx "github.com/tanpawarit/bizai-insight/agent/tool"
	graphqlx "github.com/tanpawarit/bizai-insight/pkg/graphql"
)

type fakeAnalyst struct {
	responses []contractx.AnalystResponse
	err       error
	calls     int
	lastReqs  []contractx.AnalystRequest
}

func (f *fakeAnalyst) Step(ctx context.Context, req contractx.AnalystRequest) (contractx.AnalystResponse, error) {
	f.calls++
	f.lastReqs = append(f.lastReqs, contractx.AnalystRequest{
		Messages:  append([]*schema.Message(nil), req.Messages...),
		SessionID: req.SessionID,
		Now:       req.Now,
	})
	if f.err != nil {
		return contractx.AnalystResponse{}, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	if idx < 0 {
		return contractx.AnalystResponse{}, fmt.Errorf("no analyst response left at call=%d", f.calls)
	}
	return f.responses[idx], nil
}

type fakeTools struct {
	results []contractx.ToolResult
	err     error
	calls   [][]contractx.ToolRequest
	emails  []string
}

func (f *fakeTools) Tools() []*schema.ToolInfo { return toolx.Infos() }

func (f *fakeTools) Execute(ctx context.Context, reqs []contractx.ToolRequest) ([]contractx.ToolResult, error) {
	f.calls = append(f.calls, append([]contractx.ToolRequest(nil), reqs...))
	f.emails = append(f.emails, toolx.UserEmail(ctx))
	if f.err != nil {
		return nil, f.err
	}
	out := make([]contractx.ToolResult, 0, len(reqs))
	for i, req := range reqs {
		res := f.results[i%len(f.results)]
		res.ID = req.ID
		out = append(out, res)
	}
	return out, nil
}

type failingAppendStore struct {
	statex.Store
}

func (failingAppendStore) Append(context.Context, string, ...statex.Message) error {
	return errors.New("redis unavailable")
}

func toolTurn(id, tool string, args map[string]any) contractx.AnalystResponse {
	return contractx.AnalystResponse{
		Message: schema.AssistantMessage("", []schema.ToolCall{{
			ID:       id,
			Type:     "function",
			Function: schema.FunctionCall{Name: tool, Arguments: "{}"},
		}}),
		ToolRequests: []contractx.ToolRequest{{ID: id, Tool: tool, Args: args}},
	}
}

func answerTurn(answer string) contractx.AnalystResponse {
	return contractx.AnalystResponse{
		Message: schema.AssistantMessage(answer, nil),
		Answer:  answer,
	}
}

func inventoryResult() map[string]any {
	return map[string]any{"data": map[string]any{"allInventory": map[string]any{"edges": []any{
		map[string]any{"node": map[string]any{"id": "1", "itemName": "Coffee", "quantity": 12.0, "sellingPrice": 4.5}},
		map[string]any{"node": map[string]any{"id": "2", "itemName": "Tea", "quantity": 3.0, "sellingPrice": 2.0}},
	}}}}
}

func newTestAgent(t *testing.T, store statex.Store, analyst contractx.Analyst, tools contractx.ToolGateway, cfg Config) *Agent {
	t.Helper()
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	a, err := New(store, analyst, tools, cfg, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestHandleMessageInvalidInput(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t, statex.NewMemoryStore(), &fakeAnalyst{}, &fakeTools{}, Config{})

	_, err := a.HandleMessage(context.Background(), "   ", "hello")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	_, err = a.HandleMessage(context.Background(), "s1", "    ")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeAnalyst{}, &fakeTools{}, Config{}); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := New(statex.NewMemoryStore(), nil, &fakeTools{}, Config{}); err == nil {
		t.Fatal("expected error for nil analyst")
	}
	if _, err := New(statex.NewMemoryStore(), &fakeAnalyst{}, nil, Config{}); err == nil {
		t.Fatal("expected error for nil tools")
	}
}

func TestHandleMessageNoToolPath(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	analyst := &fakeAnalyst{responses: []contractx.AnalystResponse{answerTurn("Hi! Ask me about your inventory.")}}
	tools := &fakeTools{}
	a := newTestAgent(t, store, analyst, tools, Config{})

	env, err := a.HandleMessage(context.Background(), "session-1", "hello")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if env.Status != response.StatusSuccess || env.Answer != "Hi! Ask me about your inventory." {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.FormattedData != nil {
		t.Fatalf("expected text-only envelope, got %+v", env.FormattedData)
	}
	if analyst.calls != 1 || len(tools.calls) != 0 {
		t.Fatalf("unexpected calls: analyst=%d tools=%d", analyst.calls, len(tools.calls))
	}

	conv, err := store.Load(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != statex.RoleUser || conv.Messages[1].Content != env.Answer {
		t.Fatalf("unexpected stored messages: %+v", conv.Messages)
	}
}

func TestHandleMessageToolPathFormatsData(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	analyst := &fakeAnalyst{responses: []contractx.AnalystResponse{
		toolTurn("call_1", toolx.ToolQueryInventory, nil),
		answerTurn("You have 2 items in stock."),
	}}
	tools := &fakeTools{results: []contractx.ToolResult{{Tool: toolx.ToolQueryInventory, Result: inventoryResult()}}}
	a := newTestAgent(t, store, analyst, tools, Config{MaxTurns: 3})

	env, err := a.HandleMessage(context.Background(), "session-2", "list my inventory")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if env.Answer != "You have 2 items in stock." {
		t.Fatalf("unexpected answer: %q", env.Answer)
	}
	if env.FormattedData == nil || env.FormattedData.DisplayType() != response.DisplayTable {
		t.Fatalf("expected table data, got %+v", env.FormattedData)
	}
	if len(env.Logs) != 1 || env.Logs[0] != "tool=query_inventory status=ok" {
		t.Fatalf("unexpected logs: %v", env.Logs)
	}

	second := analyst.lastReqs[1].Messages
	last := second[len(second)-1]
	if last.Role != schema.Tool || last.ToolCallID != "call_1" {
		t.Fatalf("expected tool reply for call_1, got %+v", last)
	}
	if !strings.Contains(last.Content, "allInventory") {
		t.Fatalf("tool reply must carry the result, got %q", last.Content)
	}

	conv, err := store.Load(context.Background(), "session-2")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if conv.Messages[1].FormattedData == nil {
		t.Fatal("stored reply must keep formatted data")
	}
}

func TestHandleMessageUsesLastDisplayableResult(t *testing.T) {
	t.Parallel()

	prediction := map[string]any{
		"type":              "prediction",
		"product":           "Coffee",
		"current_inventory": 12.0,
		"forecast": []any{map[string]any{
			"date":        "2025-05-01",
			"predictions": []any{map[string]any{"item_id": "Coffee", "sales_amount": 40.0, "sales_quantity": 8.0}},
		}},
	}
	analyst := &fakeAnalyst{responses: []contractx.AnalystResponse{
		toolTurn("call_1", toolx.ToolQueryInventory, nil),
		toolTurn("call_2", toolx.ToolPredictSales, map[string]any{"item_name": "Coffee"}),
		toolTurn("call_3", toolx.ToolQuerySuppliers, nil),
		answerTurn("Coffee should sell about 8 units tomorrow."),
	}}
	tools := &sequencedTools{results: [][]contractx.ToolResult{
		{{Tool: toolx.ToolQueryInventory, Result: inventoryResult()}},
		{{Tool: toolx.ToolPredictSales, Result: prediction}},
		{{Tool: toolx.ToolQuerySuppliers, Error: "GraphQL error: boom", Result: map[string]any{"data": nil}}},
	}}
	a := newTestAgent(t, statex.NewMemoryStore(), analyst, tools, Config{MaxTurns: 3})

	env, err := a.HandleMessage(context.Background(), "session-3", "forecast coffee")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if env.FormattedData == nil || env.FormattedData.DisplayType() != response.DisplayChart {
		t.Fatalf("expected prediction chart, got %+v", env.FormattedData)
	}
	want := []string{
		"tool=query_inventory status=ok",
		"tool=predict_sales status=ok",
		"tool=query_suppliers status=error",
	}
	if strings.Join(env.Logs, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected logs: %v", env.Logs)
	}
}

type sequencedTools struct {
	results [][]contractx.ToolResult
	calls   int
}

func (s *sequencedTools) Tools() []*schema.ToolInfo { return nil }

func (s *sequencedTools) Execute(_ context.Context, reqs []contractx.ToolRequest) ([]contractx.ToolResult, error) {
	out := append([]contractx.ToolResult(nil), s.results[s.calls]...)
	s.calls++
	for i := range out {
		out[i].ID = reqs[i].ID
	}
	return out, nil
}

type fakeGraph struct {
	result graphqlx.Result
	calls  []string
}

func (f *fakeGraph) Execute(_ context.Context, query string, _ map[string]any) (graphqlx.Result, error) {
	f.calls = append(f.calls, query)
	return f.result, nil
}

func (f *fakeGraph) Introspect(context.Context) (graphqlx.Schema, error) {
	return graphqlx.Schema{}, nil
}

func newGateway(t *testing.T, graph toolx.GraphQL) *toolx.Gateway {
	t.Helper()
	g, err := toolx.NewGateway(graph)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	return g
}

func TestHandleMessageGraphQLErrorBecomesErrorEnvelope(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{result: graphqlx.Result{
		"errors": []any{map[string]any{"message": "Cannot query field 'invalidField'"}},
	}}
	analyst := &fakeAnalyst{responses: []contractx.AnalystResponse{
		toolTurn("call_1", toolx.ToolQueryGraphQL, map[string]any{"query": "{ invalidField }"}),
		answerTurn("That field does not exist in the business API."),
	}}
	a := newTestAgent(t, statex.NewMemoryStore(), analyst, newGateway(t, graph), Config{MaxTurns: 3})

	env, err := a.HandleMessage(context.Background(), "session-gql", "show me invalidField")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if env.Status != response.StatusError {
		t.Fatalf("expected error status, got %+v", env)
	}
	if env.Error != "GraphQL query failed: Cannot query field 'invalidField'" {
		t.Fatalf("unexpected error: %q", env.Error)
	}
	if env.FormattedData != nil {
		t.Fatalf("error envelope must not carry data, got %+v", env.FormattedData)
	}
	if len(graph.calls) != 1 || graph.calls[0] != "{ invalidField }" {
		t.Fatalf("unexpected graphql calls: %v", graph.calls)
	}
	if len(env.Logs) != 1 || env.Logs[0] != "tool=query_graphql status=error" {
		t.Fatalf("unexpected logs: %v", env.Logs)
	}
}

func TestHandleMessageRecoversFromMalformedToolArgs(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{result: graphqlx.Result{"data": map[string]any{}}}
	badTurn := contractx.AnalystResponse{
		Message: schema.AssistantMessage("", []schema.ToolCall{{
			ID:       "call_bad",
			Type:     "function",
			Function: schema.FunctionCall{Name: toolx.ToolQueryInventory, Arguments: "{bad"},
		}}),
		ToolRequests: []contractx.ToolRequest{{
			ID:        "call_bad",
			Tool:      toolx.ToolQueryInventory,
			ArgsError: "invalid character 'b' looking for beginning of object key string",
		}},
	}
	analyst := &fakeAnalyst{responses: []contractx.AnalystResponse{
		badTurn,
		answerTurn("Sorry, could you rephrase that?"),
	}}
	a := newTestAgent(t, statex.NewMemoryStore(), analyst, newGateway(t, graph), Config{MaxTurns: 3})

	env, err := a.HandleMessage(context.Background(), "session-args", "list my inventory")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if env.Status != response.StatusSuccess || env.Answer != "Sorry, could you rephrase that?" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if len(graph.calls) != 0 {
		t.Fatalf("backend must not be called, got %v", graph.calls)
	}
	if analyst.calls != 2 {
		t.Fatalf("expected a second model turn, got %d", analyst.calls)
	}

	msgs := analyst.lastReqs[1].Messages
	last := msgs[len(msgs)-1]
	if last.Role != schema.Tool || last.ToolCallID != "call_bad" || !strings.Contains(last.Content, "invalid arguments") {
		t.Fatalf("expected tool error fed back to the model, got %+v", last)
	}
}

func TestHandleMessageTurnLimit(t *testing.T) {
	t.Parallel()

	analyst := &fakeAnalyst{responses: []contractx.AnalystResponse{
		toolTurn("call_x", toolx.ToolQuerySuppliers, nil),
	}}
	tools := &fakeTools{results: []contractx.ToolResult{{Tool: toolx.ToolQuerySuppliers, Error: "unknown"}}}
	a := newTestAgent(t, statex.NewMemoryStore(), analyst, tools, Config{MaxTurns: 2})

	env, err := a.HandleMessage(context.Background(), "session-4", "who supplies tea?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if analyst.calls != 3 {
		t.Fatalf("expected 2 tool turns plus one final turn, got %d", analyst.calls)
	}
	if len(tools.calls) != 2 {
		t.Fatalf("expected 2 tool executions, got %d", len(tools.calls))
	}
	if env.Answer != formatter.DefaultAnswer {
		t.Fatalf("unexpected answer: %q", env.Answer)
	}
	if got := env.Logs[len(env.Logs)-1]; got != "turn limit reached after 2 turns" {
		t.Fatalf("unexpected last log: %q", got)
	}
}

func TestHandleMessageHistoryWindow(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		err := store.Append(context.Background(), "session-5",
			statex.UserMessage(fmt.Sprintf("question %d", i), base),
			statex.AssistantMessage(fmt.Sprintf("answer %d", i), nil, base),
		)
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	analyst := &fakeAnalyst{responses: []contractx.AnalystResponse{answerTurn("ok")}}
	a := newTestAgent(t, store, analyst, &fakeTools{}, Config{})
	if _, err := a.HandleMessage(context.Background(), "session-5", "latest question"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	msgs := analyst.lastReqs[0].Messages
	if len(msgs) != 19 {
		t.Fatalf("expected 19 messages besides the system prompt, got %d", len(msgs))
	}
	if msgs[0].Content != "question 6" {
		t.Fatalf("unexpected oldest message: %q", msgs[0].Content)
	}
	if msgs[18].Role != schema.User || msgs[18].Content != "latest question" {
		t.Fatalf("unexpected newest message: %+v", msgs[18])
	}
}

func TestHandleMessageScopesToolsToEmailSession(t *testing.T) {
	t.Parallel()

	analyst := &fakeAnalyst{responses: []contractx.AnalystResponse{
		toolTurn("call_1", toolx.ToolQueryInventory, nil),
		answerTurn("done"),
	}}
	tools := &fakeTools{results: []contractx.ToolResult{{Tool: toolx.ToolQueryInventory, Result: inventoryResult()}}}
	a := newTestAgent(t, statex.NewMemoryStore(), analyst, tools, Config{})

	if _, err := a.HandleMessage(context.Background(), "owner@shop.test", "list inventory"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if tools.emails[0] != "owner@shop.test" {
		t.Fatalf("unexpected scope: %q", tools.emails[0])
	}
	if analyst.lastReqs[0].SessionID != "owner@shop.test" {
		t.Fatalf("unexpected session id: %q", analyst.lastReqs[0].SessionID)
	}
}

func TestHandleMessagePropagatesAnalystError(t *testing.T) {
	t.Parallel()

	analyst := &fakeAnalyst{err: fmt.Errorf("%w: provider down", contractx.ErrModelInvoke)}
	a := newTestAgent(t, statex.NewMemoryStore(), analyst, &fakeTools{}, Config{})

	_, err := a.HandleMessage(context.Background(), "session-6", "hello")
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
}

func TestHandleMessageSurvivesHistoryWriteFailure(t *testing.T) {
	t.Parallel()

	store := failingAppendStore{Store: statex.NewMemoryStore()}
	analyst := &fakeAnalyst{responses: []contractx.AnalystResponse{answerTurn("still here")}}
	a := newTestAgent(t, store, analyst, &fakeTools{}, Config{})

	env, err := a.HandleMessage(context.Background(), "session-7", "hello")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if env.Answer != "still here" {
		t.Fatalf("unexpected answer: %q", env.Answer)
	}
	if len(env.Logs) != 1 || env.Logs[0] != "history not saved" {
		t.Fatalf("unexpected logs: %v", env.Logs)
	}
}

func TestHistoryAndClear(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	analyst := &fakeAnalyst{responses: []contractx.AnalystResponse{answerTurn("hello back")}}
	a := newTestAgent(t, store, analyst, &fakeTools{}, Config{})

	conv, err := a.History(context.Background(), "session-8")
	if err != nil || len(conv.Messages) != 0 {
		t.Fatalf("History() = %+v, %v", conv, err)
	}

	if _, err := a.HandleMessage(context.Background(), "session-8", "hello"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	conv, err = a.History(context.Background(), "session-8")
	if err != nil || len(conv.Messages) != 2 {
		t.Fatalf("History() = %+v, %v", conv, err)
	}

	if err := a.ClearHistory(context.Background(), "session-8"); err != nil {
		t.Fatalf("ClearHistory() error = %v", err)
	}
	conv, err = a.History(context.Background(), "session-8")
	if err != nil || len(conv.Messages) != 0 {
		t.Fatalf("History() after clear = %+v, %v", conv, err)
	}
}
