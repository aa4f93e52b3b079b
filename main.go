package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tanpawarit/bizai-insight/agent/agents/analyst"
	"github.com/tanpawarit/bizai-insight/agent/agents/orchestrator"
	chatapi "github.com/tanpawarit/bizai-insight/agent/api"
	llmx "github.com/tanpawarit/bizai-insight/agent/llm"
	statex "github.com/tanpawarit/bizai-insight/agent/state"
	toolx "github.com/tanpawarit/bizai-insight/agent/tool"
	forecastapi "github.com/tanpawarit/bizai-insight/forecast/api"
	"github.com/tanpawarit/bizai-insight/forecast/client"
	"github.com/tanpawarit/bizai-insight/forecast/service"
	"github.com/tanpawarit/bizai-insight/forecast/store"
	configx "github.com/tanpawarit/bizai-insight/pkg/config"
	graphqlx "github.com/tanpawarit/bizai-insight/pkg/graphql"
	_ "github.com/tanpawarit/bizai-insight/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/bizai-insight/pkg/openrouter"
	qstashx "github.com/tanpawarit/bizai-insight/pkg/qstash"
)

const shutdownTimeout = 10 * time.Second

type AppConfig struct {
	Service    string        `envconfig:"SERVICE" default:"chat"`
	HistoryTTL time.Duration `envconfig:"HISTORY_TTL" default:"168h"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("APP")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch strings.ToLower(strings.TrimSpace(appCfg.Service)) {
	case "chat", "":
		err = runChat(ctx, *appCfg)
	case "forecast":
		err = runForecast(ctx)
	default:
		err = fmt.Errorf("unknown APP_SERVICE %q, want chat or forecast", appCfg.Service)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("service stopped")
	}
}

func runChat(ctx context.Context, appCfg AppConfig) error {
	apiCfg := configx.MustNew[chatapi.Config]("CHAT")
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	graphCfg := configx.MustNew[graphqlx.Config]("GRAPHQL")
	forecastCfg := configx.MustNew[client.Config]("FORECAST")

	graph, err := graphqlx.NewClient(*graphCfg)
	if err != nil {
		return fmt.Errorf("graphql client: %w", err)
	}

	history, closeHistory, err := openHistoryStore(appCfg.HistoryTTL)
	if err != nil {
		return err
	}
	defer closeHistory()

	forecasts, err := client.New(*forecastCfg)
	if err != nil {
		return err
	}
	retrainer, err := newRetrainer(forecasts, *forecastCfg)
	if err != nil {
		return err
	}

	gateway, err := toolx.NewGateway(graph,
		toolx.WithForecaster(forecasts),
		toolx.WithRetrainer(retrainer),
		toolx.WithBusinessID(forecastCfg.BusinessID),
	)
	if err != nil {
		return fmt.Errorf("tool gateway: %w", err)
	}

	analystAgent, err := analyst.NewFromConfig(ctx, *llmCfg, gateway.Tools())
	if err != nil {
		return fmt.Errorf("analyst: %w", err)
	}

	agent, err := orchestrator.New(history, analystAgent, gateway, orchestrator.Config{
		MaxTurns:       llmCfg.MaxTurns,
		RequestsPerSec: llmCfg.RequestsPerSec,
		Burst:          llmCfg.Burst,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	prober := openrouterx.NewProber(llmCfg.Analyst())
	handler := chatapi.NewHandler(agent, graph, prober).Routes(log.Logger.With().Str("service", "chat").Logger())
	return serve(ctx, apiCfg.Addr, handler)
}

// openHistoryStore prefers Upstash REST, then a Redis server, then memory.
func openHistoryStore(ttl time.Duration) (statex.Store, func(), error) {
	noop := func() {}
	opts := []statex.StoreOption{statex.WithTTL(ttl)}

	upstashCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	if upstashCfg.Enabled() {
		st, err := statex.NewUpstashRedisStore(*upstashCfg, opts...)
		if err != nil {
			return nil, noop, fmt.Errorf("upstash history store: %w", err)
		}
		log.Info().Msg("chat history in upstash redis")
		return st, noop, nil
	}

	redisCfg := configx.MustNew[statex.RedisConfig]("REDIS")
	if redisCfg.Enabled() {
		redisOpts, err := redisCfg.Options()
		if err != nil {
			return nil, noop, err
		}
		rdb := redis.NewClient(redisOpts)
		st, err := statex.NewRedisStore(rdb, opts...)
		if err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("redis history store: %w", err)
		}
		log.Info().Str("addr", redisOpts.Addr).Msg("chat history in redis")
		return st, func() { _ = rdb.Close() }, nil
	}

	log.Warn().Msg("no redis configured, chat history kept in memory")
	return statex.NewMemoryStore(opts...), noop, nil
}

// newRetrainer queues retrains through QStash when both a token and a
// delivery URL are set, otherwise calls the forecast service directly.
func newRetrainer(direct *client.Client, cfg client.Config) (client.Retrainer, error) {
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
	if !qstashCfg.Enabled() || strings.TrimSpace(cfg.RetrainURL) == "" {
		return direct, nil
	}
	qc, err := qstashx.NewClient(*qstashCfg)
	if err != nil {
		return nil, fmt.Errorf("qstash client: %w", err)
	}
	log.Info().Str("destination", cfg.RetrainURL).Msg("retrains queued through qstash")
	return client.NewDispatcher(qc, cfg.RetrainURL)
}

func runForecast(ctx context.Context) error {
	apiCfg := configx.MustNew[forecastapi.Config]("FORECAST")
	pgCfg := configx.MustNew[store.PostgresConfig]("DATABASE")
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")

	var artifacts store.Store = store.NewMemoryStore()
	if pgCfg.Enabled() {
		pg, err := store.OpenPostgres(*pgCfg)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate artifact table: %w", err)
		}
		artifacts = pg
		log.Info().Msg("forecast artifacts in postgres")
	} else {
		log.Warn().Msg("DATABASE_DSN not set, forecast artifacts kept in memory")
	}

	svc := service.New(artifacts)
	verifier := qstashx.NewVerifier(qstashCfg.CurrentSigningKey, qstashCfg.NextSigningKey)
	handler := forecastapi.NewHandler(svc, verifier, *apiCfg).Routes(log.Logger.With().Str("service", "forecast").Logger())
	return serve(ctx, apiCfg.Addr, handler)
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
