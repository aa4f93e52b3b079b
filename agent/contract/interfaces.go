package contract

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// Analyst is the LLM step: given the conversation so far it either answers or
// asks for tools.
type Analyst interface {
	Step(ctx context.Context, req AnalystRequest) (AnalystResponse, error)
}

type ToolGateway interface {
	Tools() []*schema.ToolInfo
	Execute(ctx context.Context, reqs []ToolRequest) ([]ToolResult, error)
}
