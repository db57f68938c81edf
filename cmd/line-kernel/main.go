// line-kernel is the production-line analytics agent daemon: an HTTP API
// over a phased LLM pipeline with tool access to live line data.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/lineOS/internal/adapters/duckdb"
	"github.com/manthysbr/lineOS/internal/adapters/llm"
	"github.com/manthysbr/lineOS/internal/adapters/prompthub"
	"github.com/manthysbr/lineOS/internal/config"
	"github.com/manthysbr/lineOS/internal/core/domain"
	"github.com/manthysbr/lineOS/internal/core/services"
	"github.com/manthysbr/lineOS/internal/simulator"
	"github.com/manthysbr/lineOS/pkg/kernel"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("kernel exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPath := envOr("LINE_DB_PATH", "lineos.db")
	addr := envOr("LINE_ADDR", ":8080")
	promptDir := envOr("LINE_PROMPT_DIR", "prompts")

	repo, err := duckdb.NewRepository(dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	secret, err := config.NewSecretKey()
	if err != nil {
		return err
	}
	settings, err := config.NewSettingsStore(logger, repo, secret)
	if err != nil {
		return err
	}

	hub := prompthub.New(promptDir)
	if err := hub.Seed(); err != nil {
		return err
	}

	cfg := settings.GetConfig()

	provider := &swappableProvider{}
	provider.swap(llm.NewOpenAIProvider(cfg.LLM))
	settings.OnChange(func(updated *domain.AppConfig) {
		provider.swap(llm.NewOpenAIProvider(updated.LLM))
		logger.Info("llm provider reloaded", "model", updated.LLM.Model)
	})

	bus := services.NewEventBus(logger)
	tracer := services.NewTraceCollector(logger, bus, repo)

	line := simulator.New(time.Now().UnixNano())
	registry := domain.NewToolRegistry()
	if err := services.RegisterProductionTools(registry, line); err != nil {
		return err
	}
	runner := services.NewToolRunner(registry, tracer, logger)

	memory := services.NewMemoryStore(repo, provider, hub, cfg.Agent, logger)
	pipeline := services.NewPipeline(provider, hub, runner, tracer, logger)
	synth := services.NewSynthesizer(provider, hub, tracer, logger)
	agent := services.NewAgentService(pipeline, synth, memory, tracer, bus, cfg.Agent, logger)

	server := kernel.NewServer(logger, agent, bus, tracer, settings, repo, registry)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("kernel listening", "addr", addr, "db", dbPath, "tools", len(registry.Names()))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// swappableProvider lets settings updates replace the LLM backend without
// restarting in-flight pipelines.
type swappableProvider struct {
	current atomic.Pointer[llm.OpenAIProvider]
}

func (p *swappableProvider) swap(next *llm.OpenAIProvider) {
	p.current.Store(next)
}

func (p *swappableProvider) Complete(ctx context.Context, messages []domain.ChatMessage, maxTokens int) (string, error) {
	return p.current.Load().Complete(ctx, messages, maxTokens)
}

func (p *swappableProvider) Stream(ctx context.Context, messages []domain.ChatMessage, maxTokens int, onDelta func(string)) (string, error) {
	return p.current.Load().Stream(ctx, messages, maxTokens, onDelta)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
