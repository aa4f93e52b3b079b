package contract

import (
	"time"

	"github.com/cloudwego/eino/schema"
)

type AnalystRequest struct {
	// Messages excludes the system prompt; the analyst renders it.
	Messages  []*schema.Message `json:"messages"`
	SessionID string            `json:"session_id"`
	Now       time.Time         `json:"now"`
}

type AnalystResponse struct {
	Message      *schema.Message `json:"message"`
	Answer       string          `json:"answer"`
	ToolRequests []ToolRequest   `json:"tool_requests,omitempty"`
}

type ToolRequest struct {
	ID   string         `json:"id,omitempty"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
	// ArgsError is set when the model's arguments were not valid JSON; the
	// gateway reports it back as the call's result.
	ArgsError string `json:"args_error,omitempty"`
}

type ToolResult struct {
	ID     string `json:"id,omitempty"`
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (r ToolResult) OK() bool { return r.Error == "" }
