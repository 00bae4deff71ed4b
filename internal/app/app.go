package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/hllvc/llmproxy/internal/credentials"
	"github.com/hllvc/llmproxy/internal/hooks"
	"github.com/hllvc/llmproxy/internal/observability"
	"github.com/hllvc/llmproxy/internal/plugin"
	"github.com/hllvc/llmproxy/internal/proxy"
	"github.com/hllvc/llmproxy/internal/providers/claudeapi"
	"github.com/hllvc/llmproxy/internal/scheduler"

	// Registered via their own init(), so importing them is enough to make
	// them available to plugin.Resolve/Registry.Load.
	_ "github.com/hllvc/llmproxy/internal/providers/codex"
)

// App orchestrates the lifecycle of the proxy server and the shared
// services its plugins are wired against: the plugin registry, the
// scheduler, and the observability pipeline.
type App struct {
	cfg *Config

	proxy     *proxy.Proxy
	registry  *plugin.Registry
	scheduler *scheduler.Scheduler

	obsShutdown observability.Shutdown
}

// New builds every shared service, loads the plugin registry, and wires the
// root HTTP router from the loaded plugins' Routers. No network listener is
// opened until Start.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tracer, obsShutdown, err := observability.Instrument(context.Background(), observability.Config{
		ServiceName:  cfg.Observability.ServiceName,
		Level:        cfg.LogLevel,
		LogFormat:    observability.LogFormat(cfg.LogFormat),
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
		OTLPInsecure: cfg.Observability.OTLPInsecure,
		OTLPProtocol: cfg.Observability.OTLPProtocol,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability: %w", err)
	}

	hooksRegistry := hooks.NewRegistry()

	taskRegistry := scheduler.NewTaskRegistry()
	sched := scheduler.New(
		taskRegistry,
		cfg.Scheduler.MaxConcurrentTasks,
		cfg.Scheduler.GracefulShutdownTimeout,
		scheduler.WithLogger(slog.Default()),
	)

	credManagers, err := newCredentialManagers(cfg.Auth)
	if err != nil {
		_ = obsShutdown(context.Background())
		return nil, fmt.Errorf("failed to create credential managers: %w", err)
	}

	manifests, err := plugin.Resolve(plugin.Config{
		PluginDirs:       cfg.Plugins.Dirs,
		EnabledPlugins:   cfg.Plugins.Enabled,
		DisabledPlugins:  cfg.Plugins.Disabled,
		PerPluginEnabled: cfg.Plugins.PerPluginEnabled,
	})
	if err != nil {
		_ = obsShutdown(context.Background())
		return nil, fmt.Errorf("failed to resolve plugin manifests: %w", err)
	}

	registry := plugin.NewRegistry()
	ctxTemplate := plugin.PluginContext{
		Hooks:       hooksRegistry,
		Scheduler:   sched,
		Credentials: credManagers,
		Tracer:      tracer,
	}
	rawConfig := perPluginRawConfig(cfg)
	if err := registry.Load(ctxTemplate, manifests, rawConfig); err != nil {
		_ = obsShutdown(context.Background())
		return nil, fmt.Errorf("failed to load plugins: %w", err)
	}

	if err := wireHooksAndTasks(context.Background(), registry, hooksRegistry, sched); err != nil {
		_ = obsShutdown(context.Background())
		return nil, fmt.Errorf("failed to wire plugin hooks/tasks: %w", err)
	}

	proxyServer, err := proxy.New(registry, slog.Default())
	if err != nil {
		_ = obsShutdown(context.Background())
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:         cfg,
		proxy:       proxyServer,
		registry:    registry,
		scheduler:   sched,
		obsShutdown: obsShutdown,
	}, nil
}

// newCredentialManagers builds the provider name -> credentials.Manager map
// handed to every loaded plugin via PluginContext.Credentials. Only
// claude_api owns OAuth-backed credentials today; codex authenticates with
// a static API key configured directly in its plugin RawConfig.
func newCredentialManagers(cfg AuthConfig) (map[string]*credentials.Manager, error) {
	store, err := cfg.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	return map[string]*credentials.Manager{
		claudeapi.Name: claudeapi.NewCredentialsManager(store),
	}, nil
}

// perPluginRawConfig merges the configured upstream base URL into
// claude_api's config block (so existing Upstream.BaseURL deployments keep
// working unchanged) and layers cfg.Plugins.Config on top, per plugin name.
func perPluginRawConfig(cfg *Config) map[string]map[string]any {
	out := map[string]map[string]any{
		claudeapi.Name: {"base_url": cfg.Upstream.BaseURL},
	}
	for name, block := range cfg.Plugins.Config {
		merged := map[string]any{}
		for k, v := range out[name] {
			merged[k] = v
		}
		for k, v := range block {
			merged[k] = v
		}
		out[name] = merged
	}
	return out
}

// wireHooksAndTasks registers every loaded plugin's declared hooks and
// scheduled tasks into the shared registries, after Load so a plugin's own
// Factory has already had the chance to register any task types it defines
// into ctx.Scheduler's TaskRegistry.
func wireHooksAndTasks(ctx context.Context, registry *plugin.Registry, hooksRegistry *hooks.Registry, sched *scheduler.Scheduler) error {
	for _, name := range registry.List() {
		rt := registry.Get(name)
		if rt == nil {
			continue
		}
		for _, hr := range rt.Hooks {
			hooksRegistry.Register(hr.Event, hr.Priority, hr.Hook)
		}
		for _, tr := range rt.Tasks {
			if err := sched.AddTask(ctx, tr.Name, tr.TaskType, tr.IntervalSeconds, tr.Enabled); err != nil {
				return fmt.Errorf("plugin %q: register task %q: %w", name, tr.Name, err)
			}
		}
	}
	return nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	if err := a.scheduler.Start(gCtx); err != nil {
		return fmt.Errorf("scheduler startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.scheduler.Stop)

	slog.InfoContext(gCtx, "starting proxy server", "address", address)
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)
	shutdownFuncs = append(shutdownFuncs, a.obsShutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
