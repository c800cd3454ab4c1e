package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-cli/internal/extract"
	"github.com/sells-group/quote-cli/internal/pipeline"
	"github.com/sells-group/quote-cli/internal/quote"
	"github.com/sells-group/quote-cli/internal/store"
	anthropicpkg "github.com/sells-group/quote-cli/pkg/anthropic"
)

// appEnv holds the initialized store and collaborators shared by the
// serve/sync/quote/inbox/worker commands.
type appEnv struct {
	Store    store.Store
	Resolver *quote.Resolver
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store and the quotation resolver. Callers should
// defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	return &appEnv{
		Store:    st,
		Resolver: quote.NewResolver(st),
	}, nil
}

// initProcessor builds the email pipeline on top of an appEnv. Requires
// Anthropic credentials.
func initProcessor(env *appEnv) (*pipeline.Processor, error) {
	if err := cfg.Validate("extract"); err != nil {
		return nil, err
	}
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	return &pipeline.Processor{
		Store:      env.Store,
		Classifier: extract.NewExtractor(client, cfg.Anthropic),
		Previewer:  env.Resolver,
	}, nil
}
