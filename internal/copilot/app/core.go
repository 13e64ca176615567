package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parallels/devops-copilot/internal/copilot/config"
	"github.com/parallels/devops-copilot/internal/copilot/conversation"
	"github.com/parallels/devops-copilot/internal/copilot/inventory"
	"github.com/parallels/devops-copilot/internal/copilot/inventory/docker"
	"github.com/parallels/devops-copilot/internal/copilot/inventory/registry"
	"github.com/parallels/devops-copilot/internal/copilot/llm"
	"github.com/parallels/devops-copilot/internal/copilot/memory"
	"github.com/parallels/devops-copilot/internal/copilot/metrics"
	"github.com/parallels/devops-copilot/internal/copilot/nlp"
	"github.com/parallels/devops-copilot/internal/copilot/operations"
	"github.com/parallels/devops-copilot/internal/copilot/store"
)

// Backend is the local machine host: inventory, control and manifest pulls.
type Backend interface {
	inventory.MachineSource
	inventory.Controller
	inventory.Puller
}

// CoreConfig holds what both the daemon and the CLI need to build the
// conversation pipeline.
type CoreConfig struct {
	DatabasePath string
	// RegistryPath is the provider registry YAML file. A missing file means no
	// remote providers.
	RegistryPath string

	LLM llm.Config
	// Engine replaces the OpenAI-compatible engine built from LLM.
	Engine llm.Engine

	// Backend replaces the Docker backend.
	Backend Backend
	// ManagedOnly limits the Docker backend to containers the copilot created.
	ManagedOnly bool

	// RateLimit is the number of turns a sender may start per RateWindow.
	// Zero disables the limiter.
	RateLimit  int
	RateWindow time.Duration

	HistoryExchanges int
	MaxParallel      int
	Memory           memory.TrackerConfig
}

// Core is the wired pipeline.
type Core struct {
	Store    *store.Store
	Config   config.Store
	Registry *registry.Registry
	Backend  Backend
	Engine   llm.Engine
	Memory   *memory.Tracker
	Metrics  *metrics.Metrics
	Handlers *operations.Handlers
	Handler  *conversation.Handler
}

// BuildCore opens the database and wires every component. progress receives
// notes from long-running operations; it may be nil.
func BuildCore(cfg CoreConfig, progress operations.Progress) (*Core, error) {
	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	configStore := config.New(db)

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: load registry: %w", err)
	}

	backend := cfg.Backend
	if backend == nil {
		backend, err = docker.New(docker.Options{ManagedOnly: cfg.ManagedOnly})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
	}

	engine := cfg.Engine
	if engine == nil {
		llmCfg := cfg.LLM
		llmCfg.Overrides = func(ctx context.Context) (string, string) {
			return config.StringOr(ctx, configStore, config.KeyModel, ""),
				config.StringOr(ctx, configStore, config.KeyEndpoint, "")
		}
		engine = llm.NewOpenAI(llmCfg)
	}

	exchanges := config.IntOr(context.Background(), configStore, config.KeyHistoryExchanges, cfg.HistoryExchanges)
	if exchanges <= 0 {
		exchanges = nlp.DefaultHistoryExchanges
	}

	m := metrics.New()
	inv := inventory.Combine(backend, reg)
	resolver := nlp.NewResolver(engine)
	resolver.Metrics = m
	handlers := &operations.Handlers{
		Inventory:        inv,
		Control:          backend,
		Puller:           backend,
		Resolver:         resolver,
		Progress:         progress,
		Engine:           engine,
		Metrics:          m,
		HistoryExchanges: exchanges,
		MaxParallel:      cfg.MaxParallel,
	}

	var limiter *llm.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = llm.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	}
	tracker := memory.NewTracker(cfg.Memory)

	handler := conversation.NewHandler(conversation.Config{
		Extractor:  nlp.NewExtractor(engine, exchanges),
		Router:     conversation.NewRouter(handlers),
		Aggregator: &conversation.Aggregator{Engine: engine, Metrics: m},
		Inventory:  inv,
		Memory:     tracker,
		Limiter:    limiter,
		Audit:      db,
		Log:        db,
		Metrics:    m,
	})

	slog.Info("app: pipeline ready",
		"registry", reg.Path(),
		"history_exchanges", exchanges,
		"rate_limit", cfg.RateLimit)

	return &Core{
		Store:    db,
		Config:   configStore,
		Registry: reg,
		Backend:  backend,
		Engine:   engine,
		Memory:   tracker,
		Metrics:  m,
		Handlers: handlers,
		Handler:  handler,
	}, nil
}

// MachineCount reports the number of local machines, for /status.
func (c *Core) MachineCount(ctx context.Context) (int, error) {
	ms, err := c.Backend.Machines(ctx)
	if err != nil {
		return 0, err
	}
	return len(ms), nil
}

// ActiveConversations reports live conversation buffers, for /status.
func (c *Core) ActiveConversations() int {
	return c.Memory.Active()
}

// Close releases the database.
func (c *Core) Close() error {
	return c.Store.Close()
}
