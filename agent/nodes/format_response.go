package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
	"github.com/tanpawarit/bizai-insight/agent/formatter"
	"github.com/tanpawarit/bizai-insight/agent/response"
)

// FormatResponse renders the last displayable tool result. The model's answer
// replaces the formatter's stock sentence when there is one.
func FormatResponse(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if in.ToolData == nil {
		answer := in.Answer
		if answer == "" {
			answer = formatter.DefaultAnswer
		}
		in.Intent = formatter.IntentConversation
		in.Envelope = response.Text(answer, nil)
		return in, nil
	}

	intent, env := formatter.ClassifyAndFormat(in.Query, in.ToolData)
	in.Intent = intent
	if env.Status == response.StatusSuccess {
		env = env.WithAnswer(in.Answer)
	}
	in.Envelope = env
	return in, nil
}
