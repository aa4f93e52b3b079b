package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
	statex "github.com/tanpawarit/bizai-insight/agent/state"
)

// SaveHistory appends the user turn and the reply. A store failure is logged
// and does not fail the request; the reply is already computed.
func SaveHistory(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	user := statex.UserMessage(in.Query, in.Now)
	reply := statex.AssistantMessage(in.Envelope.Answer, in.Envelope.FormattedData, in.Now)
	if err := store.Append(ctx, in.SessionID, user, reply); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("session_id", in.SessionID).Msg("save chat history failed")
		in.logf("history not saved")
		return in, nil
	}
	if in.Conversation != nil {
		in.Conversation.Messages = append(in.Conversation.Messages, user, reply)
	}
	return in, nil
}
