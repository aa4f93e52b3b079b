package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contractx "github.com/tanpawarit/bizai-insight/agent/contract"
	"github.com/tanpawarit/bizai-insight/forecast/client"
	"github.com/tanpawarit/bizai-insight/forecast/service"
	graphqlx "github.com/tanpawarit/bizai-insight/pkg/graphql"
)

// GraphQL is the part of the business API the tools need.
type GraphQL interface {
	Execute(ctx context.Context, query string, variables map[string]any) (graphqlx.Result, error)
	Introspect(ctx context.Context) (graphqlx.Schema, error)
}

type Forecaster interface {
	PredictFast(ctx context.Context, req service.PredictFastRequest) (service.PredictResponse, error)
}

var _ contractx.ToolGateway = (*Gateway)(nil)

type handler func(ctx context.Context, args map[string]any) (any, error)

type Gateway struct {
	graph      GraphQL
	forecaster Forecaster
	retrainer  client.Retrainer
	businessID string
	now        func() time.Time
	tracer     trace.Tracer

	infos    []*schema.ToolInfo
	schemas  map[string]*jsonschema.Schema
	handlers map[string]handler
}

type Option func(*Gateway)

func WithForecaster(f Forecaster) Option {
	return func(g *Gateway) { g.forecaster = f }
}

func WithRetrainer(r client.Retrainer) Option {
	return func(g *Gateway) { g.retrainer = r }
}

func WithBusinessID(id string) Option {
	return func(g *Gateway) {
		if id = strings.TrimSpace(id); id != "" {
			g.businessID = id
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

func NewGateway(graph GraphQL, opts ...Option) (*Gateway, error) {
	if graph == nil {
		return nil, errors.New("graphql client is required")
	}
	g := &Gateway{
		graph:      graph,
		businessID: "biz_001",
		now:        time.Now,
		tracer:     otel.Tracer("github.com/tanpawarit/bizai-insight/agent/tool"),
		schemas:    make(map[string]*jsonschema.Schema, len(catalog)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	g.handlers = map[string]handler{
		ToolIntrospectSchema: g.introspect,
		ToolQueryGraphQL:     g.queryGraphQL,
		ToolQueryInventory:   g.queryInventory,
		ToolQuerySuppliers:   g.querySuppliers,
		ToolQuerySales:       g.querySales,
		ToolPredictSales:     g.predictSales,
		ToolTrainModel:       g.trainModel,
	}
	for _, spec := range catalog {
		sch, err := spec.compile()
		if err != nil {
			return nil, err
		}
		g.schemas[spec.Name] = sch
		g.infos = append(g.infos, spec.info())
	}
	return g, nil
}

func (g *Gateway) Tools() []*schema.ToolInfo {
	return g.infos
}

// Execute runs reqs in order. Failures of a single tool come back as a
// ToolResult error; only a cancelled context is returned as a Go error.
func (g *Gateway) Execute(ctx context.Context, reqs []contractx.ToolRequest) ([]contractx.ToolResult, error) {
	out := make([]contractx.ToolResult, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("%w: %v", contractx.ErrToolInvoke, err)
		}
		out = append(out, g.run(ctx, req))
	}
	return out, nil
}

func (g *Gateway) run(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	ctx, span := g.tracer.Start(ctx, "tool."+req.Tool, trace.WithAttributes(
		attribute.String("tool.name", req.Tool),
		attribute.String("tool.call_id", req.ID),
	))
	defer span.End()

	res := contractx.ToolResult{ID: req.ID, Tool: req.Tool}
	fail := func(msg string) contractx.ToolResult {
		res.Error = msg
		span.SetStatus(codes.Error, msg)
		return res
	}

	h, ok := g.handlers[req.Tool]
	if !ok {
		return fail(fmt.Sprintf("unknown tool %q", req.Tool))
	}
	if req.ArgsError != "" {
		return fail("invalid arguments: " + req.ArgsError)
	}
	if err := validateArgs(g.schemas[req.Tool], req.Args); err != nil {
		return fail(err.Error())
	}

	result, err := h(ctx, req.Args)
	res.Result = result
	if err != nil {
		span.RecordError(err)
		return fail(err.Error())
	}
	if gql, ok := result.(graphqlx.Result); ok {
		if msgs := gql.ErrorMessages(); len(msgs) > 0 {
			return fail("GraphQL error: " + strings.Join(msgs, "; "))
		}
	}
	return res
}

func (g *Gateway) introspect(ctx context.Context, _ map[string]any) (any, error) {
	sch, err := g.graph.Introspect(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"schema": sch.Summary()}, nil
}

func (g *Gateway) queryGraphQL(ctx context.Context, args map[string]any) (any, error) {
	query := stringArg(args, "query")
	if err := rejectWrites(query); err != nil {
		return nil, err
	}
	return g.execute(ctx, query, nil)
}

func (g *Gateway) queryInventory(ctx context.Context, args map[string]any) (any, error) {
	query, vars := inventoryQuery(ctx, args)
	return g.execute(ctx, query, vars)
}

func (g *Gateway) querySuppliers(ctx context.Context, args map[string]any) (any, error) {
	query, vars := suppliersQuery(ctx, args)
	return g.execute(ctx, query, vars)
}

func (g *Gateway) querySales(ctx context.Context, args map[string]any) (any, error) {
	query, vars, err := salesQuery(ctx, args)
	if err != nil {
		return nil, err
	}
	return g.execute(ctx, query, vars)
}

// execute keeps a GraphQL result typed so run can surface its errors while
// still handing the body to the formatter.
func (g *Gateway) execute(ctx context.Context, query string, vars map[string]any) (any, error) {
	result, err := g.graph.Execute(ctx, query, vars)
	if err != nil {
		return nil, err
	}
	return result, nil
}
