package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hllvc/llmproxy/internal/plugin"
)

// Proxy is the HTTP front door: a chi router built from every loaded
// plugin's contributed Routers, wrapped in recovery/logging middleware.
type Proxy struct {
	mux    *chi.Mux
	server *http.Server
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// DefaultTransport returns a new http.Transport configured for upstream API
// requirements. Clones http.DefaultTransport and adds ResponseHeaderTimeout
// to prevent indefinite hangs. Returns a fresh instance on each call to
// prevent accidental mutation between provider plugins.
func DefaultTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = 30 * time.Second
	return t
}

// New builds the root router by mounting every loaded plugin's Routers
// under their declared prefix.
func New(registry *plugin.Registry, logger *slog.Logger) (*Proxy, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(Recovery, Logging(logger))

	for _, name := range registry.List() {
		rt := registry.Get(name)
		if rt == nil {
			continue
		}
		for _, router := range rt.Routers {
			prefix := router.Prefix()
			logger.Info("mounting plugin route", "plugin", name, "prefix", prefix)
			r.Route(prefix, router.Mount)
		}
	}

	return &Proxy{mux: r}, nil
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // allows long SSE streams
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	if err := p.server.Shutdown(ctx); err != nil {
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
