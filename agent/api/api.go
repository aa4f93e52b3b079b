package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
	"github.com/tanpawarit/bizai-insight/agent/response"
	statex "github.com/tanpawarit/bizai-insight/agent/state"
	graphqlx "github.com/tanpawarit/bizai-insight/pkg/graphql"
	logx "github.com/tanpawarit/bizai-insight/pkg/logger"
)

const (
	maxBodyBytes     = 1 << 20
	defaultSessionID = "default"

	chatFailureAnswer = "I apologize, but I encountered an error processing your request."
)

var examples = []string{
	"Show me all inventory items",
	"Search for items named 'widget'",
	"What items are low in stock?",
	"List all suppliers",
	"Show me sales trends for last month",
	"What is the total revenue?",
	"Show sales on sunny days",
	"Predict sales of Coffee for the next 7 days",
	"Train the sales forecasting model",
}

type Config struct {
	Addr string `envconfig:"ADDR" split_words:"true" default:":5000"`
}

// Chat is the conversation surface of the orchestrator.
type Chat interface {
	HandleMessage(ctx context.Context, sessionID, query string) (response.Envelope, error)
	History(ctx context.Context, sessionID string) (*statex.Conversation, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

type GraphQL interface {
	Execute(ctx context.Context, query string, variables map[string]any) (graphqlx.Result, error)
	Introspect(ctx context.Context) (graphqlx.Schema, error)
}

// Prober reports whether the model provider is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

type Handler struct {
	chat   Chat
	graph  GraphQL
	prober Prober
}

func NewHandler(chat Chat, graph GraphQL, prober Prober) *Handler {
	return &Handler{chat: chat, graph: graph, prober: prober}
}

func (h *Handler) Routes(logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logx.Middleware(logger))
	r.Use(forwardToken)

	r.Get("/", h.info)
	r.Post("/chat", h.handleChat)
	r.Get("/history", h.history)
	r.Post("/clear_history", h.clearHistory)
	r.Post("/debug", h.debug)
	r.Get("/introspect", h.introspect)
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	return r
}

// forwardToken hands the caller's bearer token to GraphQL calls made while
// serving the request.
func forwardToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && strings.TrimSpace(token) != "" {
			r = r.WithContext(graphqlx.WithToken(r.Context(), strings.TrimSpace(token)))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "online",
		"endpoints": map[string]string{
			"/":              "GET - This info",
			"/chat":          `POST - Ask questions (JSON: {"query": "your question", "session_id": "optional"})`,
			"/history":       "GET - Conversation history (?session_id=)",
			"/clear_history": `POST - Clear a conversation (JSON: {"session_id": "..."})`,
			"/debug":         `POST - Run a raw GraphQL query (JSON: {"query": "...", "variables": {}})`,
			"/introspect":    "GET - GraphQL schema summary",
		},
		"examples": examples,
	})
}

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeJSON(w, http.StatusUnsupportedMediaType, response.Failure(chatFailureAnswer, "Content-Type must be application/json", nil))
		return
	}
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response.Failure(chatFailureAnswer, "invalid JSON body", nil))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, response.Failure(chatFailureAnswer, "Missing 'query' field", nil))
		return
	}

	env, err := h.chat.HandleMessage(r.Context(), sessionOrDefault(req.SessionID), req.Query)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("session_id", req.SessionID).Msg("chat request failed")
		writeJSON(w, http.StatusOK, response.Failure(chatFailureAnswer, chatError(err), nil))
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// chatError keeps provider and transport details out of the envelope.
func chatError(err error) string {
	switch {
	case errors.Is(err, contractx.ErrModelInvoke):
		return "the language model is unavailable"
	case errors.Is(err, contractx.ErrSchemaViolation):
		return "the reply could not be built"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "the request timed out"
	default:
		return "internal error"
	}
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionOrDefault(r.URL.Query().Get("session_id"))
	conv, err := h.chat.History(r.Context(), sessionID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("session_id", sessionID).Msg("load history failed")
		writeError(w, http.StatusInternalServerError, "could not load history")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) clearHistory(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if isJSON(r) {
		// An empty or broken body clears the default session.
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	}
	sessionID := sessionOrDefault(req.SessionID)
	if err := h.chat.ClearHistory(r.Context(), sessionID); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("session_id", sessionID).Msg("clear history failed")
		writeError(w, http.StatusInternalServerError, "could not clear history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "History cleared for session " + sessionID,
	})
}

type debugRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func (h *Handler) debug(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	var req debugRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Missing 'query' field")
		return
	}

	result, err := h.graph.Execute(r.Context(), req.Query, req.Variables)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("debug query failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) introspect(w http.ResponseWriter, r *http.Request) {
	sch, err := h.graph.Introspect(r.Context())
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("introspection failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"schema": sch.Summary()})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.prober == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if err := h.prober.Probe(r.Context()); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("model provider not ready")
		writeError(w, http.StatusServiceUnavailable, "model provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func sessionOrDefault(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return defaultSessionID
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON encodes before writing the status so a value that cannot be
// encoded, such as a NaN metric, becomes an error envelope instead of an
// empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		raw, _ = json.Marshal(response.Failure(chatFailureAnswer, "response could not be encoded", nil))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(raw, '\n'))
}
