package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/agenthands/dsstrack/internal/config"
	"github.com/agenthands/dsstrack/internal/core"
	"github.com/agenthands/dsstrack/internal/driver"
	"github.com/agenthands/dsstrack/internal/embedding"
	"github.com/agenthands/dsstrack/internal/logger"
	"github.com/agenthands/dsstrack/internal/session"
)

// App holds the wired service and whatever must be closed on shutdown.
type App struct {
	Log     *logger.Logger
	Cfg     *config.Config
	Store   *session.Store
	Gateway *embedding.Gateway
	Service *core.Service

	closers []func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Log: log, Cfg: cfg}

	persister, err := a.wirePersister(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Store = session.NewStore(cfg.Session.IdleTTL.Std(), persister, log.With("component", "session"))

	a.Gateway = embedding.NewGateway(a.wireEmbedder(ctx), cfg.Embedding, log.With("component", "embedding"))

	a.Service = core.NewService(a.Store, a.Gateway, core.Options{
		Separator:        cfg.Analysis.Separator,
		DefaultThreshold: cfg.Analysis.DefaultThreshold,
		PreviewRows:      cfg.Server.PreviewRows,
		MaxRows:          cfg.Server.MaxRows,
	}, log.With("component", "service"))

	return a, nil
}

// An embedder that cannot be built leaves the service running; analyze then
// fails with ErrEmbeddingUnavailable until the configuration is fixed.
func (a *App) wireEmbedder(ctx context.Context) embedding.Embedder {
	e, err := embedding.NewEmbedder(ctx, a.Cfg.Embedding, a.Log)
	if err != nil {
		a.Log.Error("embedding provider unavailable", "provider", a.Cfg.Embedding.Provider, "error", err)
		return nil
	}
	if c, ok := e.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}
	a.Log.Info("embedding provider ready", "provider", a.Cfg.Embedding.Provider, "model", a.Cfg.Embedding.Model)
	return e
}

func (a *App) wirePersister(ctx context.Context) (session.Persister, error) {
	switch a.Cfg.Store.Backend {
	case "", config.BackendMemory:
		return nil, nil

	case config.BackendRedis:
		rdb, err := session.NewRedisClient(ctx, a.Cfg.Store.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		a.Log.Info("sessions persisted to redis", "addr", a.Cfg.Store.Redis.Addr)
		return session.NewRedisPersister(rdb, a.Cfg.Store.Redis.KeyPrefix, a.Cfg.Session.IdleTTL.Std()), nil

	case config.BackendNeo4j:
		m := a.Cfg.Store.Memgraph
		d, err := driver.NewMemgraphDriver(ctx, m.URI, m.User, m.Password, a.Log)
		if err != nil {
			return nil, fmt.Errorf("init graph database: %w", err)
		}
		a.closers = append(a.closers, d.Close)
		if err := d.BuildIndices(ctx); err != nil {
			return nil, err
		}
		return session.NewGraphPersister(d), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", a.Cfg.Store.Backend)
	}
}

// Close releases clients in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
