// Package app assembles the narrative pipeline service: storage, the
// orchestrator, the block renderer, and the HTTP control surface.
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/courtline/courtline/internal/api/httpapi"
	"github.com/courtline/courtline/internal/pipeline"
	"github.com/courtline/courtline/internal/platform/metrics"
	"github.com/courtline/courtline/internal/platform/timeouts"
	"github.com/courtline/courtline/internal/publish"
	"github.com/courtline/courtline/internal/render"
	"github.com/courtline/courtline/internal/storage/sqlite"
)

// Config holds the service configuration. Values come from the environment;
// flags may override them at the command layer.
type Config struct {
	HTTPAddr string `env:"COURTLINE_HTTP_ADDR" envDefault:"localhost:8080"`
	DBPath   string `env:"COURTLINE_DB_PATH" envDefault:"courtline.db"`

	// When the API key is empty the service falls back to the offline
	// deterministic generator, which keeps local runs self-contained.
	OpenAIAPIKey       string `env:"COURTLINE_OPENAI_API_KEY"`
	OpenAIModel        string `env:"COURTLINE_OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIResponsesURL string `env:"COURTLINE_OPENAI_RESPONSES_URL"`
}

// App owns the wired service and its HTTP server.
type App struct {
	store        *sqlite.Store
	orchestrator *pipeline.Orchestrator
	httpServer   *http.Server
	httpAddr     string
}

// New wires the service from configuration.
func New(cfg Config) (*App, error) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		return nil, stderrors.New("database path is required")
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	m := metrics.New()
	generator := newGenerator(cfg)
	orchestrator := pipeline.New(pipeline.Config{
		Runs:      store,
		Stages:    store,
		Traces:    store,
		Renderer:  render.NewRenderer(generator, m),
		Publisher: publish.New(store, m),
		Metrics:   m,
	})

	api := httpapi.New(httpapi.Config{
		Orchestrator: orchestrator,
		Runs:         store,
		Stages:       store,
		Versions:     store,
		Metrics:      m,
		Health:       store,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &App{
		store:        store,
		orchestrator: orchestrator,
		httpServer:   httpServer,
		httpAddr:     cfg.HTTPAddr,
	}, nil
}

func newGenerator(cfg Config) render.Generator {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		log.Printf("app: no generation API key, using the offline generator")
		return render.NewStaticGenerator()
	}
	return render.NewOpenAIGenerator(render.OpenAIConfig{
		ResponsesURL: cfg.OpenAIResponsesURL,
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.OpenAIModel,
	})
}

// Orchestrator exposes the pipeline for in-process callers such as the seed
// command.
func (a *App) Orchestrator() *pipeline.Orchestrator {
	return a.orchestrator
}

// ListenAndServe runs the HTTP server until the context ends. On
// cancellation, in-flight requests are drained within the shutdown timeout.
func (a *App) ListenAndServe(ctx context.Context) error {
	if a == nil {
		return stderrors.New("app is nil")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("app: listening on %s", a.httpAddr)
		if err := a.httpServer.ListenAndServe(); !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close releases the storage handle.
func (a *App) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.Close()
}
