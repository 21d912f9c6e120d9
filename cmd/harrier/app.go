package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/opensource-finance/harrier/internal/alerts"
	"github.com/opensource-finance/harrier/internal/batch"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/catalog"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/model"
	"github.com/opensource-finance/harrier/internal/reporting"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
)

// app holds the components shared by the commands. Closers run in reverse
// order of construction.
type app struct {
	cfg     *domain.Config
	repo    *repository.SQLRepository
	engine  *rules.Engine
	catalog *catalog.Catalog
	cache   domain.Cache
	bus     domain.EventBus
	closers []func() error
}

// openApp connects the store and builds the rule catalog. Cache and bus
// are opened on demand.
func openApp(cfg *domain.Config) (*app, error) {
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	engine, err := rules.NewEngine(cfg.Engine.Workers, cfg.Engine.RuleTimeout)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize rule engine: %w", err)
	}

	return &app{
		cfg:     cfg,
		repo:    repo,
		engine:  engine,
		catalog: catalog.New(repo, catalog.WithCheck(engine.ValidateRule)),
		closers: []func() error{repo.Close},
	}, nil
}

func (a *app) openCache() error {
	c, err := cache.New(a.cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	a.cache = c
	a.closers = append(a.closers, c.Close)
	slog.Info("cache initialized", "type", a.cfg.Cache.Type)
	return nil
}

func (a *app) openBus() error {
	b, err := bus.New(a.cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	a.bus = b
	a.closers = append(a.closers, b.Close)
	slog.Info("event bus initialized", "type", a.cfg.EventBus.Type)
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// seedCatalog upserts the configured rule file, or the built-in rules when
// no file is configured and the store holds none.
func (a *app) seedCatalog(ctx context.Context) error {
	if path := a.cfg.Catalog.SeedFile; path != "" {
		list, err := catalog.LoadFile(path)
		if err != nil {
			return err
		}
		return a.catalog.Seed(ctx, list)
	}

	existing, err := a.catalog.List(ctx, true)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		slog.Info("rule catalog loaded", "rules", len(existing))
		return nil
	}
	defaults, err := catalog.Defaults()
	if err != nil {
		return err
	}
	return a.catalog.Seed(ctx, defaults)
}

// runner assembles a batch runner. The cache and bus are used when open.
func (a *app) runner() (*batch.Runner, error) {
	scorer, err := model.New(a.cfg.Model, a.cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model scorer: %w", err)
	}
	gen := alerts.NewGenerator(a.repo, a.bus, a.cfg.Engine.AlertDedupe)

	return batch.NewRunner(a.catalog, a.repo, a.engine, gen,
		batch.WithScorer(scorer),
		batch.WithBus(a.bus),
		batch.WithWorkers(a.cfg.Engine.Workers),
	), nil
}

func (a *app) reports() *reporting.Service {
	return reporting.NewService(a.repo, a.cfg.Engine.HistoryLimit)
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
