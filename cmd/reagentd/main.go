// Command reagentd runs the ReAct agent service: an authenticated WebSocket
// endpoint backed by a SQLite store, with optional pgvector knowledge search.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/reagent-ai/reagent/config"
	"github.com/reagent-ai/reagent/hub"
	"github.com/reagent-ai/reagent/logging"
	"github.com/reagent-ai/reagent/model/openai"
	"github.com/reagent-ai/reagent/rag"
	"github.com/reagent-ai/reagent/server"
	"github.com/reagent-ai/reagent/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("reagentd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(logging.DefaultLoggerConfig()).WithComponent("reagentd")

	st, err := store.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	registry := hub.NewRegistry(func(o *hub.Options) { o.Logger = logger })
	defer registry.Close()

	defaultAgent := store.AgentConfig{
		ID:            "default",
		Name:          "Assistant",
		Type:          "react",
		Provider:      cfg.Provider,
		Model:         cfg.Model,
		MaxIterations: cfg.MaxIterations,
		Enabled:       true,
	}

	srv := server.New(st, registry, func(o *server.Options) {
		o.AuthToken = cfg.AuthToken
		o.DefaultAgent = defaultAgent
		o.MaxIterations = cfg.MaxIterations
		o.RunTimeout = cfg.RunTimeout
		o.APIKeys = map[string]string{
			"openai":    cfg.OpenAIAPIKey,
			"anthropic": cfg.AnthropicAPIKey,
		}
		o.Logger = logger
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RAG.Enabled() {
		if err := wireKnowledgeSearch(ctx, cfg, srv, logger); err != nil {
			return fmt.Errorf("wiring knowledge search: %w", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	srv.Routes(e)

	go func() {
		logger.Info("server.listening", "addr", cfg.Addr)
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server.start.failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// wireKnowledgeSearch connects the pgvector retrieval engine and registers
// the knowledge_search tool for all agents.
func wireKnowledgeSearch(ctx context.Context, cfg *config.Config, srv *server.Server, logger logging.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.RAG.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}

	embedder := openai.NewEmbedder(func(o *openai.EmbedderOptions) {
		o.Model = cfg.RAG.EmbeddingModel
	})

	engine := rag.NewPGEngine(pool, embedder, func(o *rag.PGOptions) {
		o.Dimensions = cfg.RAG.Dimensions
		o.Logger = logger
	})
	if err := engine.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("preparing schema: %w", err)
	}

	return srv.RegisterLocalTool(ctx, rag.NewSearchTool(engine))
}
