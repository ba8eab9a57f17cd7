// Package cli wires settings into a running assistant and drives it from
// the terminal.
//
// Information Hiding:
// - Provider construction from settings
// - Which collaborators get registered, and when
// - Storage lifetime

package cli

import (
	"fmt"
	"log/slog"

	"github.com/richinex/cinematic/agent"
	"github.com/richinex/cinematic/chat"
	"github.com/richinex/cinematic/config"
	"github.com/richinex/cinematic/dispatch"
	"github.com/richinex/cinematic/llm"
	"github.com/richinex/cinematic/media"
	"github.com/richinex/cinematic/memory"
	"github.com/richinex/cinematic/observe"
	"github.com/richinex/cinematic/prompt"
	"github.com/richinex/cinematic/search"
	"github.com/richinex/cinematic/storage"
)

// Options holds wiring overrides.
type Options struct {
	Metrics *observe.Metrics
	Logger  *slog.Logger
	// Provider and Helper replace the configured models when set.
	Provider llm.Provider
	Helper   llm.Provider
}

// App is a fully wired assistant.
type App struct {
	Settings config.Settings
	Chat     *chat.Service
	Agent    *agent.Agent
	Registry *dispatch.Registry
	store    storage.Storage
}

// NewApp builds every collaborator enabled in settings.
func NewApp(settings config.Settings, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	primary, err := resolveProvider(opts.Provider, settings.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}
	helper, err := resolveProvider(opts.Helper, settings.HelperLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create helper provider: %w", err)
	}
	mainLLM := llm.NewMetered(primary, "agent", metrics).WithLogger(logger)
	helperLLM := llm.NewMetered(helper, "helper", metrics).WithLogger(logger)

	store, err := storage.Open(settings.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	registry, err := buildRegistry(settings, helperLLM, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	dispatcher := dispatch.New(registry,
		dispatch.WithWorkers(settings.Agent.DispatchWorkers),
		dispatch.WithExecConfig(dispatch.ExecConfig{
			CallTimeout: settings.Agent.CallTimeout,
			Retries:     uint32(settings.Agent.Retries),
			BaseDelay:   dispatch.DefaultExecConfig().BaseDelay,
			MaxDelay:    dispatch.DefaultExecConfig().MaxDelay,
		}),
		dispatch.WithMetrics(metrics),
		dispatch.WithLogger(logger),
	)

	cfg := agent.NewBuilder().
		MaxDepth(settings.Agent.MaxDepth).
		ContextTokens(settings.Agent.ContextTokens).
		Streaming(settings.LLM.Streaming).
		FlushInterval(settings.Agent.FlushInterval).
		Build()
	a := agent.New(cfg, mainLLM, dispatcher).WithLogger(logger).WithMetrics(metrics)

	selector := prompt.NewSelector(nil, helperLLM).WithLogger(logger)
	service := chat.NewService(a, store, selector).
		WithWindow(settings.Agent.HistoryWindow).
		WithLogger(logger)

	logger.Info("assistant ready",
		"model", mainLLM.Model(),
		"helper_model", helperLLM.Model(),
		"commands", len(registry.Names()),
		"storage", settings.Storage.Path)

	return &App{
		Settings: settings,
		Chat:     service,
		Agent:    a,
		Registry: registry,
		store:    store,
	}, nil
}

// Close releases storage.
func (a *App) Close() error {
	return a.store.Close()
}

func resolveProvider(override llm.Provider, cfg config.LLMConfig) (llm.Provider, error) {
	if override != nil {
		return override, nil
	}
	return createProvider(cfg)
}

// createProvider builds a model provider from one llm section.
func createProvider(cfg config.LLMConfig) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(cfg.Provider)
	if err != nil {
		return nil, err
	}

	return providerType.
		Model(cfg.Model).
		BaseURL(cfg.BaseURL).
		MaxTokens(cfg.MaxTokens).
		Temperature(float32(cfg.Temperature)).
		APIKey(apiKey)
}

// buildRegistry registers memory operations always, and media and web
// search operations when their servers are configured.
func buildRegistry(settings config.Settings, helper llm.Provider, store storage.MemoryStorage, logger *slog.Logger) (*dispatch.Registry, error) {
	registry := dispatch.NewRegistry()

	mem := memory.NewService(store, helper).WithLogger(logger)
	if err := registry.RegisterAll(mem.Operations()...); err != nil {
		return nil, err
	}

	servers := []struct {
		kind media.Kind
		cfg  config.MediaServer
	}{
		{media.KindMovie, settings.Radarr},
		{media.KindSeries, settings.Sonarr},
	}
	for _, srv := range servers {
		if !srv.cfg.Enabled() {
			logger.Debug("media server not configured", "kind", srv.kind)
			continue
		}
		client := media.NewClient(srv.kind, media.ClientConfig{
			URL:        srv.cfg.URL,
			APIKey:     srv.cfg.APIKey,
			AuthUser:   srv.cfg.AuthUser,
			AuthPass:   srv.cfg.AuthPass,
			RootFolder: srv.cfg.RootFolder,
		})
		svc := media.NewService(client, helper).WithLogger(logger)
		if err := registry.RegisterAll(svc.Operations()...); err != nil {
			return nil, err
		}
	}

	if searcher := buildSearch(settings.Search); searcher != nil {
		answerer := search.NewAnswerer(searcher, search.NewFetcher(), helper).
			WithMaxResults(settings.Search.MaxResults).
			WithLogger(logger)
		if err := registry.Register(answerer.Operation()); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// buildSearch registers every configured backend and routes to the one
// selected in settings. It returns nil when that backend is unusable.
func buildSearch(cfg config.SearchConfig) *search.Manager {
	if !cfg.Enabled() {
		return nil
	}
	manager := search.NewManager(cfg.Provider)
	if cfg.Brave.APIKey != "" {
		manager.Register(search.NewBrave(cfg.Brave.APIKey))
	}
	if cfg.SearXNG.URL != "" {
		manager.Register(search.NewSearXNG(cfg.SearXNG.URL))
	}
	return manager
}
