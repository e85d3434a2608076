// Planfold - AI Planning Workflow Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/planfold/planfold/internal/analysis"
	"github.com/planfold/planfold/internal/api"
	"github.com/planfold/planfold/internal/config"
	"github.com/planfold/planfold/internal/memory"
	"github.com/planfold/planfold/internal/middleware"
	"github.com/planfold/planfold/internal/orchestrator"
	"github.com/planfold/planfold/internal/reasoning"
	"github.com/planfold/planfold/internal/schema"
	"github.com/planfold/planfold/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "strategy", cfg.Strategy, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	archiver := memory.NewStoreArchiver(repo, cfg.Memory.ArchiveQueueSize, logger)
	defer archiver.Close()

	invoker, err := reasoning.NewClient(reasoning.Config{
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		BaseURL:        cfg.LLM.BaseURL,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		RequestTimeout: cfg.LLM.RequestTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize reasoning client", "error", err)
		os.Exit(1)
	}

	// The org connector is optional: without it the team strategy plans
	// against standard CRM objects only.
	var connector schema.Connector
	if cfg.Org.APIURL != "" {
		connector = schema.NewRESTConnector(cfg.Org.APIURL, cfg.Org.APIToken, 30*time.Second)
		slog.Info("Org schema connector enabled", "url", cfg.Org.APIURL)
	} else {
		slog.Info("Org schema connector disabled (ORG_API_URL not set)")
	}

	prompts, err := loadPrompts(cfg.PromptsPath)
	if err != nil {
		slog.Error("Failed to load prompt pack", "error", err)
		os.Exit(1)
	}

	team := analysis.NewTeamStrategy(invoker, prompts, connector, logger)
	singlePass := analysis.NewSinglePassStrategy(invoker, prompts)
	selector := analysis.NewSelector(logger, team, singlePass)

	hub := orchestrator.NewHub(cfg.SSE.QueueSize, logger)
	orch := orchestrator.New(orchestrator.Config{
		MaxMessages: cfg.Memory.MaxMessages,
		MaxBytes:    cfg.Memory.MaxBytes,
		Hint:        analysis.Hint(cfg.Strategy),
	}, selector, invoker, prompts, hub, repo, archiver, logger)

	handler := api.NewHandler(orch, repo, cfg, logger)
	defer handler.Close()

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(corsOrigins(cfg)))

	handler.RegisterRoutes(r)

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func loadPrompts(path string) (*analysis.Prompts, error) {
	if path == "" {
		return analysis.DefaultPrompts()
	}
	return analysis.LoadPrompts(path)
}

func corsOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL != "" {
		return []string{cfg.FrontendURL}
	}
	return []string{"*"}
}
