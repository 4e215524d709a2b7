package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ihubanov/sift"
	"github.com/ihubanov/sift/internal/config"
	"github.com/ihubanov/sift/observer"
	"github.com/ihubanov/sift/provider/openaicompat"
	"github.com/ihubanov/sift/store/postgres"
	"github.com/ihubanov/sift/store/sqlite"
	"github.com/ihubanov/sift/tools/bio"
	"github.com/ihubanov/sift/tools/breach"
	"github.com/ihubanov/sift/tools/pyexec"
	"github.com/ihubanov/sift/tools/scrape"
	"github.com/ihubanov/sift/tools/search"
)

const (
	investigationCharter = "You are an investigator. Use web search, page scraping, and breach lookups to gather verifiable facts about the subject. Cite sources and never invent data."
	profileCharter       = "You are a profile keeper. Maintain accurate remembered facts about the user: save new facts, remove stale ones, and keep entries short."
	computeCharter       = "You are a computation assistant. Solve math and data problems by writing and running Python code in the sandbox. Print your results."
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load(os.Getenv("SIFT_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if cfg.LLM.APIKey == "" {
		return errors.New("SIFT_LLM_API_KEY is required")
	}

	// Provider
	var provider sift.Provider = openaicompat.New(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)

	// Observability
	var inst *observer.Instruments
	var tracer sift.Tracer
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			return fmt.Errorf("observer init: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
		provider = observer.WrapProvider(provider, inst)
		tracer = observer.NewTracer()
	}

	// Store
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	// Tools
	bioTool := bio.New(store)
	catalog, err := buildCatalog(cfg, bioTool, inst, logger)
	if err != nil {
		return err
	}

	loop, err := sift.NewLoop(sift.LoopConfig{
		Provider:    provider,
		Catalog:     catalog,
		MaxCalls:    cfg.Loop.MaxToolCalls,
		Temperature: cfg.LLM.Temperature,
		Logger:      logger,
		Tracer:      tracer,
	})
	if err != nil {
		return err
	}

	server, err := sift.NewServer(sift.ServerConfig{
		Loop:       loop,
		Model:      cfg.LLM.Model,
		BasePrompt: loadPrompt(cfg.Server.PromptPath, logger),
		IgnoreList: loadIgnoreList(cfg.Server, logger),
		Bio:        bioTool,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "model", cfg.LLM.Model, "tools", catalog.Names())
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(sctx)
}

// openStore picks the bio store backend from config.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (sift.BioStore, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		return postgres.New(pool), nil
	case "", "sqlite":
		return sqlite.New(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// buildCatalog registers capability groups and every configured tool.
func buildCatalog(cfg config.Config, bioTool *bio.Tool, inst *observer.Instruments, logger *slog.Logger) (*sift.Catalog, error) {
	catalog := sift.NewCatalog()
	catalog.AddGroup("investigation", investigationCharter)
	catalog.AddGroup("profile", profileCharter)
	catalog.AddGroup("compute", computeCharter)

	register := func(group string, h sift.Handler) error {
		if inst != nil {
			h = observer.WrapHandler(h, inst)
		}
		return catalog.Register(group, h)
	}

	if cfg.Search.BraveAPIKey != "" {
		if err := register("investigation", search.New(cfg.Search.BraveAPIKey)); err != nil {
			return nil, err
		}
	}
	if err := register("investigation", scrape.New()); err != nil {
		return nil, err
	}
	if cfg.Breach.APIKey != "" {
		if err := register("investigation", breach.New(cfg.Breach.APIKey)); err != nil {
			return nil, err
		}
	}
	if err := register("profile", bioTool); err != nil {
		return nil, err
	}
	if cfg.Sandbox.Enabled {
		py, err := pyexec.New(
			pyexec.WithImage(cfg.Sandbox.Image),
			pyexec.WithMemoryLimit(cfg.Sandbox.MemoryMB<<20),
			pyexec.WithCPULimit(cfg.Sandbox.CPUs),
			pyexec.WithTimeout(time.Duration(cfg.Sandbox.TimeoutSecs)*time.Second),
		)
		if err != nil {
			logger.Warn("sandbox unavailable, run_python disabled", "error", err)
		} else if err := register("compute", py); err != nil {
			return nil, err
		}
	}

	return catalog, nil
}

// loadPrompt reads the system prompt file, creating it with a default on
// first run so operators have something to edit.
func loadPrompt(path string, logger *slog.Logger) string {
	const fallback = "You are a helpful assistant."
	if path == "" {
		path = "system_prompt.txt"
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := os.WriteFile(path, []byte(fallback+"\n"), 0o644); werr != nil {
			logger.Warn("could not create prompt file", "path", path, "error", werr)
		}
		return fallback
	}
	if err != nil {
		logger.Warn("could not read prompt file", "path", path, "error", err)
		return fallback
	}
	if prompt := strings.TrimSpace(string(data)); prompt != "" {
		return prompt
	}
	return fallback
}

// loadIgnoreList merges inline config entries with a newline-separated file.
func loadIgnoreList(cfg config.ServerConfig, logger *slog.Logger) []string {
	list := append([]string(nil), cfg.IgnoreList...)
	if cfg.IgnoreListPath == "" {
		return list
	}
	data, err := os.ReadFile(cfg.IgnoreListPath)
	if err != nil {
		logger.Warn("could not read ignore list", "path", cfg.IgnoreListPath, "error", err)
		return list
	}
	for _, line := range strings.Split(string(data), "\n") {
		if entry := strings.TrimSpace(line); entry != "" {
			list = append(list, entry)
		}
	}
	return list
}
