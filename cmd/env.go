package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"

	"github.com/sells-group/leadgen-cli/internal/dispatch"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/store"
	anthropicpkg "github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/hunter"
	"github.com/sells-group/leadgen-cli/pkg/scrapingdog"
	"github.com/sells-group/leadgen-cli/pkg/tomba"
)

// env bundles the wired store, dispatcher, and controller for a command.
type env struct {
	Store      store.Store
	Registry   *dispatch.Registry
	Dispatcher dispatch.Dispatcher
	Controller *pipeline.Controller

	pool     *dispatch.PoolDispatcher
	temporal client.Client
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres", "":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv wires the full controller environment: store, provider clients,
// event registry, and the configured dispatcher.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	scraper := scrapingdog.NewClient(cfg.Scrapingdog.Key,
		scrapingdog.WithBaseURL(cfg.Scrapingdog.BaseURL))
	analyzer := anthropicpkg.NewAnalyzer(
		anthropicpkg.NewClient(cfg.Anthropic.Key),
		cfg.Anthropic.PrescreenModel,
		cfg.Anthropic.GradeModel,
		cfg.Anthropic.MaxTokens,
	)

	var hunterClient hunter.Client
	if cfg.Hunter.Key != "" {
		hunterClient = hunter.NewClient(cfg.Hunter.Key, hunter.WithBaseURL(cfg.Hunter.BaseURL))
	}
	var tombaClient tomba.Client
	if cfg.Tomba.Key != "" {
		tombaClient = tomba.NewClient(cfg.Tomba.Key, cfg.Tomba.Secret, tomba.WithBaseURL(cfg.Tomba.BaseURL))
	}

	registry := dispatch.NewRegistry()
	e := &env{Store: st, Registry: registry}

	switch cfg.Dispatch.Mode {
	case "temporal":
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Dispatch.TemporalHostPort,
			Namespace: cfg.Dispatch.TemporalNamespace,
		})
		if err != nil {
			st.Close()
			return nil, eris.Wrap(err, "dial temporal")
		}
		e.temporal = tc
		e.Dispatcher = dispatch.NewTemporalDispatcher(tc, cfg.Dispatch.TaskQueue)
	case "inproc", "":
		retry := resilience.DefaultRetryConfig()
		retry.MaxAttempts = cfg.Dispatch.MaxAttempts
		pool := dispatch.NewPoolDispatcher(registry, cfg.Dispatch.Workers, retry)
		pool.Start(ctx)
		e.pool = pool
		e.Dispatcher = pool
	default:
		st.Close()
		return nil, eris.Errorf("unknown dispatch mode %q", cfg.Dispatch.Mode)
	}

	e.Controller = pipeline.New(pipeline.Config{
		ResumeBatchSize:      cfg.Pipeline.ResumeBatchSize,
		PrescreenConcurrency: cfg.Pipeline.PrescreenConcurrency,
		StaleAfter:           time.Duration(cfg.Pipeline.StaleAfterMinutes) * time.Minute,
	}, st, e.Dispatcher, scraper, analyzer, hunterClient, tombaClient)
	e.Controller.Register(registry)

	return e, nil
}

// Close drains the in-process dispatcher before closing connections, so
// queued events finish their handlers.
func (e *env) Close() {
	if e.pool != nil {
		e.pool.Stop()
	}
	if e.temporal != nil {
		e.temporal.Close()
	}
	_ = e.Store.Close()
}
