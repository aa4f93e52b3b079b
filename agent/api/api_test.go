package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
	"github.com/tanpawarit/bizai-insight/agent/response"
	statex "github.com/tanpawarit/bizai-insight/agent/state"
	graphqlx "github.com/tanpawarit/bizai-insight/pkg/graphql"
)

var testTime = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeChat struct {
	env      response.Envelope
	err      error
	store    *statex.MemoryStore
	sessions []string
	tokens   []string
}

func (f *fakeChat) HandleMessage(ctx context.Context, sessionID, query string) (response.Envelope, error) {
	f.sessions = append(f.sessions, sessionID)
	f.tokens = append(f.tokens, graphqlx.TokenFrom(ctx))
	if f.err != nil {
		return response.Envelope{}, f.err
	}
	return f.env, nil
}

func (f *fakeChat) History(ctx context.Context, sessionID string) (*statex.Conversation, error) {
	conv, err := f.store.Load(ctx, sessionID)
	if errors.Is(err, statex.ErrConversationNotFound) {
		return statex.NewConversation(sessionID), nil
	}
	return conv, err
}

func (f *fakeChat) ClearHistory(ctx context.Context, sessionID string) error {
	f.sessions = append(f.sessions, sessionID)
	return f.store.Clear(ctx, sessionID)
}

type fakeGraph struct {
	result    graphqlx.Result
	err       error
	lastQuery string
	lastVars  map[string]any
}

func (f *fakeGraph) Execute(_ context.Context, query string, vars map[string]any) (graphqlx.Result, error) {
	f.lastQuery, f.lastVars = query, vars
	return f.result, f.err
}

func (f *fakeGraph) Introspect(context.Context) (graphqlx.Schema, error) {
	if f.err != nil {
		return graphqlx.Schema{}, f.err
	}
	return graphqlx.Schema{}, nil
}

type fakeProber struct{ err error }

func (f fakeProber) Probe(context.Context) error { return f.err }

func newServer(t *testing.T, chat *fakeChat, graph *fakeGraph, prober Prober) *httptest.Server {
	t.Helper()
	if chat.store == nil {
		chat.store = statex.NewMemoryStore()
	}
	srv := httptest.NewServer(NewHandler(chat, graph, prober).Routes(zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, contentType, body string, header http.Header) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestChatReturnsEnvelope(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{env: response.Text("You have 3 items.", []string{"tool=query_inventory status=ok"})}
	srv := newServer(t, chat, &fakeGraph{}, nil)

	resp, out := do(t, http.MethodPost, srv.URL+"/chat", "application/json", `{"query":"how many items?","session_id":"s-1"}`,
		http.Header{"Authorization": []string{"Bearer secret-token"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "You have 3 items.", out["answer"])
	assert.Equal(t, []any{"tool=query_inventory status=ok"}, out["logs"])
	assert.Equal(t, []string{"s-1"}, chat.sessions)
	assert.Equal(t, []string{"secret-token"}, chat.tokens)
}

func TestChatDefaultsSession(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{env: response.Text("hi", nil)}
	srv := newServer(t, chat, &fakeGraph{}, nil)

	resp, _ := do(t, http.MethodPost, srv.URL+"/chat", "application/json; charset=utf-8", `{"query":"hello"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{defaultSessionID}, chat.sessions)
}

func TestChatRejectsBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		errMsg      string
	}{
		{name: "not json", contentType: "text/plain", body: "hello", status: http.StatusUnsupportedMediaType, errMsg: "Content-Type must be application/json"},
		{name: "broken json", contentType: "application/json", body: "{", status: http.StatusBadRequest, errMsg: "invalid JSON body"},
		{name: "missing query", contentType: "application/json", body: `{"session_id":"s"}`, status: http.StatusBadRequest, errMsg: "Missing 'query' field"},
		{name: "blank query", contentType: "application/json", body: `{"query":"   "}`, status: http.StatusBadRequest, errMsg: "Missing 'query' field"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			chat := &fakeChat{}
			srv := newServer(t, chat, &fakeGraph{}, nil)
			resp, out := do(t, http.MethodPost, srv.URL+"/chat", tt.contentType, tt.body, nil)
			require.Equal(t, tt.status, resp.StatusCode, out)
			assert.Equal(t, "error", out["status"])
			assert.Equal(t, tt.errMsg, out["error"])
			assert.NotEmpty(t, out["answer"])
			assert.NotContains(t, out, "formatted_data")
			assert.Empty(t, chat.sessions)
		})
	}
}

func TestChatFailureBecomesErrorEnvelope(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{err: fmt.Errorf("%w: provider status 502", contractx.ErrModelInvoke)}
	srv := newServer(t, chat, &fakeGraph{}, nil)

	resp, out := do(t, http.MethodPost, srv.URL+"/chat", "application/json", `{"query":"hello"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, chatFailureAnswer, out["answer"])
	assert.Equal(t, "the language model is unavailable", out["error"])
	assert.Equal(t, []any{}, out["logs"])
}

func TestHistoryAndClear(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{store: statex.NewMemoryStore()}
	require.NoError(t, chat.store.Append(context.Background(), "s-2",
		statex.UserMessage("hello", testTime),
		statex.AssistantMessage("hi there", nil, testTime),
	))
	srv := newServer(t, chat, &fakeGraph{}, nil)

	resp, out := do(t, http.MethodGet, srv.URL+"/history?session_id=s-2", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "s-2", out["session_id"])
	msgs := out["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi there", msgs[1].(map[string]any)["content"])

	resp, out = do(t, http.MethodPost, srv.URL+"/clear_history", "application/json", `{"session_id":"s-2"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "History cleared for session s-2", out["message"])

	_, out = do(t, http.MethodGet, srv.URL+"/history?session_id=s-2", "", "", nil)
	assert.Empty(t, out["messages"])
}

func TestClearHistoryWithoutBodyUsesDefault(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{}
	srv := newServer(t, chat, &fakeGraph{}, nil)

	resp, out := do(t, http.MethodPost, srv.URL+"/clear_history", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, []string{defaultSessionID}, chat.sessions)
}

func TestDebugPassesQueryThrough(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{result: graphqlx.Result{"data": map[string]any{"allSuppliers": map[string]any{"edges": []any{}}}}}
	srv := newServer(t, &fakeChat{}, graph, nil)

	body, err := json.Marshal(map[string]any{"query": "{ allSuppliers { edges { node { id } } } }", "variables": map[string]any{"first": 2}})
	require.NoError(t, err)
	resp, out := do(t, http.MethodPost, srv.URL+"/debug", "application/json", string(body), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out, "data")
	assert.Equal(t, "{ allSuppliers { edges { node { id } } } }", graph.lastQuery)
	assert.Equal(t, float64(2), graph.lastVars["first"])

	resp, out = do(t, http.MethodPost, srv.URL+"/debug", "application/json", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing 'query' field", out["error"])
}

func TestDebugUpstreamFailure(t *testing.T) {
	t.Parallel()

	graph := &fakeGraph{err: fmt.Errorf("%w: connection refused", graphqlx.ErrRequest)}
	srv := newServer(t, &fakeChat{}, graph, nil)

	resp, out := do(t, http.MethodPost, srv.URL+"/debug", "application/json", `{"query":"{ a }"}`, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, out["error"], "connection refused")

	resp, _ = do(t, http.MethodGet, srv.URL+"/introspect", "", "", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestUnencodableResponseBecomesErrorEnvelope(t *testing.T) {
	t.Parallel()

	metrics := &response.MetricsData{Metrics: []response.Metric{response.NewMetric("Average Price", math.NaN(), response.FormatCurrency, "")}}
	chat := &fakeChat{env: response.Success("Here you go.", nil, response.NewFormattedData(metrics, nil))}
	graph := &fakeGraph{result: graphqlx.Result{"data": map[string]any{"ratio": math.Inf(1)}}}
	srv := newServer(t, chat, graph, nil)

	resp, out := do(t, http.MethodPost, srv.URL+"/chat", "application/json", `{"query":"average price?"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "response could not be encoded", out["error"])
	assert.NotContains(t, out, "formatted_data")

	resp, out = do(t, http.MethodPost, srv.URL+"/debug", "application/json", `{"query":"{ ratio }"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "error", out["status"])
}

func TestIntrospect(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &fakeChat{}, &fakeGraph{}, nil)
	resp, out := do(t, http.MethodGet, srv.URL+"/introspect", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out, "schema")
}

func TestInfoAndProbes(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &fakeChat{}, &fakeGraph{}, fakeProber{})
	resp, out := do(t, http.MethodGet, srv.URL+"/", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "online", out["status"])
	assert.NotEmpty(t, out["examples"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/readyz", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newServer(t, &fakeChat{}, &fakeGraph{}, fakeProber{err: errors.New("401")})
	resp, out = do(t, http.MethodGet, down.URL+"/readyz", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "model provider unavailable", out["error"])
}

func TestRecoversFromPanics(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &fakeChat{}, nil, nil)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/introspect", bytes.NewReader(nil))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
