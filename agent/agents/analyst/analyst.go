package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
	llmx "github.com/tanpawarit/bizai-insight/agent/llm"
	promptx "github.com/tanpawarit/bizai-insight/agent/prompt"
)

// ProcessingMessage replaces the content of a turn whose tool call had to be
// recovered from plain text.
const ProcessingMessage = "I am processing your request..."

var _ contractx.Analyst = (*Analyst)(nil)

type Analyst struct {
	runner compose.Runnable[map[string]any, *schema.Message]
	known  map[string]struct{}
	now    func() time.Time
}

// New binds tools to chatModel and compiles the analyst graph around
// systemPrompt.
func New(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	tools []*schema.ToolInfo,
) (*Analyst, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, contractx.ErrPromptMissing
	}

	toolModel, err := chatModel.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("%w: bind analyst tools: %v", contractx.ErrModelInvoke, err)
	}
	runner, err := compileAnalystGraph(ctx, toolModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	known := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			continue
		}
		known[t.Name] = struct{}{}
	}
	return &Analyst{runner: runner, known: known, now: time.Now}, nil
}

// NewFromConfig builds the provider model from cfg and the embedded analyst
// prompt.
func NewFromConfig(ctx context.Context, cfg llmx.Config, tools []*schema.ToolInfo) (*Analyst, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	modelCfg := cfg.Analyst()
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create analyst model: %v", contractx.ErrModelInvoke, err)
	}
	return New(ctx, chatModel, promptx.LoadPromptSet().Analyst, tools)
}

func (a *Analyst) Step(ctx context.Context, req contractx.AnalystRequest) (contractx.AnalystResponse, error) {
	if len(req.Messages) == 0 {
		return contractx.AnalystResponse{}, fmt.Errorf("%w: analyst needs at least one message", contractx.ErrValidation)
	}
	now := req.Now
	if now.IsZero() {
		now = a.now()
	}

	vars := promptx.AnalystVariables(req.SessionID, now)
	vars[historyKey] = req.Messages

	msg, err := a.runner.Invoke(ctx, vars)
	if err != nil {
		return contractx.AnalystResponse{}, fmt.Errorf("%w: analyst invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.AnalystResponse{}, fmt.Errorf("%w: empty analyst response", contractx.ErrSchemaViolation)
	}

	out := *msg
	out.Role = schema.Assistant
	out.ToolCalls = withCallIDs(out.ToolCalls)

	if len(out.ToolCalls) == 0 {
		if call, ok := parseToolCall(out.Content, a.known); ok {
			out.ToolCalls = []schema.ToolCall{call}
			out.Content = ProcessingMessage
		}
	}

	reqs, err := toToolRequests(out.ToolCalls)
	if err != nil {
		return contractx.AnalystResponse{}, err
	}

	resp := contractx.AnalystResponse{Message: &out, ToolRequests: reqs}
	if len(reqs) == 0 {
		resp.Answer = CleanAnswer(out.Content)
	}
	return resp, nil
}

func withCallIDs(calls []schema.ToolCall) []schema.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]schema.ToolCall, len(calls))
	copy(out, calls)
	for i := range out {
		if strings.TrimSpace(out[i].ID) == "" {
			out[i].ID = newCallID()
		}
		if out[i].Type == "" {
			out[i].Type = "function"
		}
	}
	return out
}

func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func toToolRequests(calls []schema.ToolCall) ([]contractx.ToolRequest, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		tool := strings.TrimSpace(call.Function.Name)
		if tool == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}

		req := contractx.ToolRequest{ID: call.ID, Tool: tool, Args: map[string]any{}}
		if rawArgs := strings.TrimSpace(call.Function.Arguments); rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &req.Args); err != nil {
				req.Args = nil
				req.ArgsError = fmt.Sprintf("arguments are not a JSON object: %v", err)
			}
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
