// Package main runs loomd, the conversation orchestration daemon. It wires
// the configured provider, strategy, tool registry, and storage into an HTTP
// server that streams run events to callers as JSON Lines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/loomlabs/loom/pkg/config"
	"github.com/loomlabs/loom/pkg/conversation"
	"github.com/loomlabs/loom/pkg/llm"
	"github.com/loomlabs/loom/pkg/llm/anthropic"
	"github.com/loomlabs/loom/pkg/llm/openai"
	"github.com/loomlabs/loom/pkg/logging"
	"github.com/loomlabs/loom/pkg/orchestrator"
	"github.com/loomlabs/loom/pkg/strategy"
	"github.com/loomlabs/loom/pkg/tools"
	"github.com/loomlabs/loom/pkg/tools/toolkit"
)

const version = "0.1.0"

const defaultSystemPrompt = `You are a helpful assistant. Use the available tools when they help you
answer accurately, and call the finalize tool once you have gathered
everything needed for a complete answer.`

func main() {
	configPath := flag.String("config", "", "Path to configuration file (YAML)")
	addr := flag.String("addr", "", "Listen address override")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("loomd v%s\n", version)
		return
	}

	// Populate the environment from .env when present.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "loomd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, addrOverride string) error {
	logger, err := logging.NewLogger("loomd")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	if configPath == "" {
		configPath, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}

	storage, closeStorage, err := buildStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	manager := conversation.NewManager(storage,
		conversation.WithWindowSize(cfg.WindowSize),
		conversation.WithManagerLogger(logger),
	)

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{toolkit.NewCalculator(), toolkit.NewClock()} {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name(), err)
		}
	}

	strat, err := buildStrategy(cfg, provider, logger)
	if err != nil {
		return err
	}

	orch := orchestrator.New(strat, provider, registry, manager,
		orchestrator.WithMaxIterations(cfg.MaxIterations),
		orchestrator.WithSystemPrompt(defaultSystemPrompt),
		orchestrator.WithFinalizeConfig(requestConfig(cfg)),
		orchestrator.WithOrchestratorLogger(logger),
	)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newServer(orch, manager, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("loomd listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildStorage(cfg *config.Config) (conversation.Storage, func(), error) {
	switch cfg.Storage.Backend {
	case config.StorageSQLite:
		store, err := conversation.NewSQLiteStorage(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return conversation.NewMemoryStorage(), func() {}, nil
	}
}

func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		var opts []anthropic.ProviderOption
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		return anthropic.NewProvider("", opts...)
	default:
		var opts []openai.ProviderOption
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		return openai.NewProvider("", opts...)
	}
}

func buildStrategy(cfg *config.Config, provider llm.Provider, logger *logging.Logger) (strategy.Strategy, error) {
	reqCfg := requestConfig(cfg)

	switch cfg.Strategy {
	case config.StrategyHybrid:
		plannerCfg := reqCfg
		if cfg.PlannerModel != "" {
			plannerCfg.Model = cfg.PlannerModel
		}
		return strategy.NewHybrid(provider, provider,
			strategy.WithPlannerConfig(plannerCfg),
			strategy.WithExecutorConfig(reqCfg),
			strategy.WithHybridLogger(logger),
		), nil
	default:
		return strategy.NewSingleModel(provider,
			strategy.WithRequestConfig(reqCfg),
			strategy.WithLogger(logger),
		), nil
	}
}

func requestConfig(cfg *config.Config) llm.RequestConfig {
	return llm.RequestConfig{
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		MaxTokens:       cfg.MaxTokens,
		ReasoningBudget: cfg.ReasoningBudget,
	}
}
