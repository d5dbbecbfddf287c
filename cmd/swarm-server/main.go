package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/copp1723/swarm-sub001/internal/config"
	"github.com/copp1723/swarm-sub001/internal/engine"
	"github.com/copp1723/swarm-sub001/internal/llm"
	"github.com/copp1723/swarm-sub001/internal/logging"
	"github.com/copp1723/swarm-sub001/internal/notify"
	"github.com/copp1723/swarm-sub001/internal/server"
	"github.com/copp1723/swarm-sub001/internal/store"
	"github.com/copp1723/swarm-sub001/internal/tools"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "swarm-server",
		Short: "Multi-agent task orchestration server",
		Long: "swarm-server dispatches natural-language tasks to named LLM agent personas, " +
			"coordinates their turn-taking, routes agent-to-agent requests and reports " +
			"progress over websockets.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./swarm.yaml)")
	return cmd
}

func runServer(configPath string) error {
	logger := logging.NewComponentLogger("Main")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger.Info("=== Server Configuration ===")
	logger.Info("Listen: %s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("LLM base URL: %s", cfg.LLM.BaseURL)
	logger.Info("Summary model: %s", cfg.LLM.SummaryModel)
	logger.Info("Base directory: %s", cfg.Engine.BaseDirectory)
	logger.Info("Store backend: %s", cfg.Store.Backend)
	logger.Info("============================")

	taskStore, closeStore, err := buildStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	broadcaster := notify.NewBroadcaster(logging.NewComponentLogger("Broadcaster"))

	resolver := llm.NewResolver(llm.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		Headers:    cfg.LLM.Headers,
	})

	registry := tools.NewDefaultRegistry(logging.NewComponentLogger("Tools"))
	logger.Info("Tools: %s", strings.Join(registry.Names(), ", "))

	eng, err := engine.New(engine.Deps{
		Resolver:          resolver,
		Store:             taskStore,
		Notifier:          broadcaster,
		Tools:             registry,
		Logger:            logging.NewEngineLogger("Engine"),
		Metrics:           engine.DefaultMetrics(),
		BaseDirectory:     cfg.Engine.BaseDirectory,
		SummaryModel:      cfg.LLM.SummaryModel,
		MaxParallelAgents: cfg.Engine.MaxParallelAgents,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	srv, err := server.New(cfg.Server, server.Deps{
		Engine:      eng,
		Store:       taskStore,
		Broadcaster: broadcaster,
		Logger:      logging.NewComponentLogger("Server"),
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("Received %s, shutting down...", sig)
	}

	return srv.Stop()
}

func buildStore(cfg config.StoreConfig) (store.Store, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := store.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}
