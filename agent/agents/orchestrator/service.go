package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"golang.org/x/time/rate"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
	nodex "github.com/tanpawarit/bizai-insight/agent/nodes"
	"github.com/tanpawarit/bizai-insight/agent/response"
	statex "github.com/tanpawarit/bizai-insight/agent/state"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

type Config struct {
	MaxTurns int
	// RequestsPerSec <= 0 disables the limiter.
	RequestsPerSec float64
	Burst          int
}

type Agent struct {
	store   statex.Store
	analyst contractx.Analyst
	tools   contractx.ToolGateway
	limiter nodex.Limiter

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	maxTurns int
	now      func() time.Time
}

type Option func(*Agent)

func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

func New(
	store statex.Store,
	analyst contractx.Analyst,
	tools contractx.ToolGateway,
	cfg Config,
	opts ...Option,
) (*Agent, error) {
	if store == nil {
		return nil, errors.New("history store is required")
	}
	if analyst == nil {
		return nil, errors.New("analyst is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 3
	}

	a := &Agent{
		store:    store,
		analyst:  analyst,
		tools:    tools,
		maxTurns: maxTurns,
		now:      time.Now,
	}
	if cfg.RequestsPerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	graphRunner, err := a.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	a.graphRunner = graphRunner

	return a, nil
}

// HandleMessage answers query within sessionID's conversation. Errors are
// returned as is; the HTTP layer turns them into error envelopes.
func (a *Agent) HandleMessage(ctx context.Context, sessionID string, query string) (response.Envelope, error) {
	out, err := a.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Query:     query,
	})
	if err != nil {
		return response.Envelope{}, err
	}
	return out.Envelope, nil
}

func (a *Agent) History(ctx context.Context, sessionID string) (*statex.Conversation, error) {
	conv, err := a.store.Load(ctx, sessionID)
	if errors.Is(err, statex.ErrConversationNotFound) {
		return statex.NewConversation(sessionID), nil
	}
	return conv, err
}

func (a *Agent) ClearHistory(ctx context.Context, sessionID string) error {
	return a.store.Clear(ctx, sessionID)
}
