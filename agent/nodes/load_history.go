package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
	statex "github.com/tanpawarit/bizai-insight/agent/state"
)

// HistoryLimit bounds the prompt to the system message plus the most recent
// HistoryLimit-1 messages.
const HistoryLimit = 20

func LoadHistory(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	conv, err := store.Load(ctx, in.SessionID)
	switch {
	case errors.Is(err, statex.ErrConversationNotFound):
		conv = statex.NewConversation(in.SessionID)
	case err != nil:
		return nil, fmt.Errorf("load history: %w", err)
	}
	in.Conversation = conv

	msgs := make([]*schema.Message, 0, HistoryLimit)
	for _, m := range conv.Tail(HistoryLimit - 2) {
		switch m.Role {
		case statex.RoleUser:
			msgs = append(msgs, schema.UserMessage(m.Content))
		case statex.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		}
	}
	in.Messages = append(msgs, schema.UserMessage(in.Query))
	return in, nil
}

// trimHistory keeps the latest HistoryLimit-1 messages without starting on an
// orphaned tool reply. The current question is always kept in front.
func trimHistory(msgs []*schema.Message) []*schema.Message {
	limit := HistoryLimit - 1
	if len(msgs) <= limit {
		return msgs
	}
	start := len(msgs) - limit
	question := lastUserIndex(msgs)
	pinned := question >= 0 && question < start
	if pinned {
		start++
	}
	for start < len(msgs) && msgs[start].Role == schema.Tool {
		start++
	}
	if !pinned {
		return msgs[start:]
	}
	out := make([]*schema.Message, 0, len(msgs)-start+1)
	out = append(out, msgs[question])
	return append(out, msgs[start:]...)
}

func lastUserIndex(msgs []*schema.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == schema.User {
			return i
		}
	}
	return -1
}
