package orchestratornode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
	"github.com/tanpawarit/bizai-insight/agent/formatter"
	toolx "github.com/tanpawarit/bizai-insight/agent/tool"
)

// maxToolContent caps what a single tool result feeds back to the model.
const maxToolContent = 16000

// Limiter gates model turns; *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// RunTools alternates model turns and tool executions until the model answers
// or maxTurns turns have used tools. In the latter case one more turn is
// spent asking for the answer.
func RunTools(
	ctx context.Context,
	in *GraphState,
	analyst contractx.Analyst,
	tools contractx.ToolGateway,
	limiter Limiter,
	maxTurns int,
) (*GraphState, error) {
	if in == nil || len(in.Messages) == 0 {
		return nil, fmt.Errorf("%w: graph state has no messages", contractx.ErrValidation)
	}
	if maxTurns < 1 {
		maxTurns = 1
	}
	if strings.Contains(in.SessionID, "@") {
		ctx = toolx.WithUserEmail(ctx, in.SessionID)
	}
	logger := zerolog.Ctx(ctx)

	for turn := 1; turn <= maxTurns+1; turn++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: wait for model turn: %v", contractx.ErrModelInvoke, err)
			}
		}

		resp, err := analyst.Step(ctx, contractx.AnalystRequest{
			Messages:  in.Messages,
			SessionID: in.SessionID,
			Now:       in.Now,
		})
		if err != nil {
			return nil, err
		}
		if resp.Message != nil {
			in.Messages = append(in.Messages, resp.Message)
		}

		if len(resp.ToolRequests) == 0 {
			in.Answer = resp.Answer
			return in, nil
		}
		if turn > maxTurns {
			logger.Warn().Str("session_id", in.SessionID).Int("turns", maxTurns).Msg("tool turn limit reached without an answer")
			in.logf(fmt.Sprintf("turn limit reached after %d turns", maxTurns))
			return in, nil
		}

		results, err := tools.Execute(ctx, resp.ToolRequests)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			status := "ok"
			if !res.OK() {
				status = "error"
			}
			in.logf(fmt.Sprintf("tool=%s status=%s", res.Tool, status))
			logger.Info().Str("session_id", in.SessionID).Str("tool", res.Tool).Str("status", status).Msg("tool executed")

			in.Messages = append(in.Messages, schema.ToolMessage(toolContent(res), res.ID))
			if data, ok := displayable(res); ok {
				in.ToolData = data
			}
		}
		in.Messages = trimHistory(in.Messages)
	}
	return in, nil
}

func toolContent(res contractx.ToolResult) string {
	payload := res.Result
	if !res.OK() {
		payload = map[string]any{"error": res.Error}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	if len(raw) > maxToolContent {
		return string(raw[:maxToolContent]) + "...(truncated)"
	}
	return string(raw)
}

// displayable returns the result as a decoded tree when it carries GraphQL
// data, GraphQL errors or a forecast, the only results worth rendering.
func displayable(res contractx.ToolResult) (formatter.Result, bool) {
	if res.Result == nil {
		return nil, false
	}
	raw, err := json.Marshal(res.Result)
	if err != nil {
		return nil, false
	}
	var out formatter.Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	if t, _ := out["type"].(string); t == "prediction" {
		return out, true
	}
	if data, ok := out["data"]; ok && data != nil {
		return out, true
	}
	if errs, ok := out["errors"].([]any); ok && len(errs) > 0 {
		return out, true
	}
	return nil, false
}
