package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if err := in.Envelope.Validate(); err != nil {
		return GraphOutput{}, fmt.Errorf("%w: reply envelope: %v", contractx.ErrSchemaViolation, err)
	}
	return GraphOutput{
		Envelope: in.Envelope.WithLogs(in.Logs),
		Intent:   in.Intent,
	}, nil
}
