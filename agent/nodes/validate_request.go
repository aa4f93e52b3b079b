package orchestratornode

import (
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/bizai-insight/agent/formatter"
	"github.com/tanpawarit/bizai-insight/agent/response"
	statex "github.com/tanpawarit/bizai-insight/agent/state"
)

var (
	ErrInvalidMessage = errors.New("query is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

type GraphInput struct {
	SessionID string
	Query     string
}

type GraphOutput struct {
	Envelope response.Envelope
	Intent   formatter.Intent
}

type GraphState struct {
	SessionID string
	Query     string
	Now       time.Time

	Conversation *statex.Conversation
	// Messages is what the model sees, without the system prompt.
	Messages []*schema.Message
	Logs     []string

	Answer   string
	ToolData formatter.Result
	Intent   formatter.Intent
	Envelope response.Envelope
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		Query:     query,
		Now:       nowFn().UTC(),
	}, nil
}

func (s *GraphState) logf(entry string) {
	s.Logs = append(s.Logs, entry)
}
