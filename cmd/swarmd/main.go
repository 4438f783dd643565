// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command swarmd is the composition root: it loads configuration, builds
// the LLM Client, Embedding Provider, RAG Store, Tool Host, Agent Runner,
// and Swarm Coordinator, and serves them behind a thin HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swarmhive/swarmd/config"
	"github.com/swarmhive/swarmd/pkg/agent"
	"github.com/swarmhive/swarmd/pkg/coordinator"
	"github.com/swarmhive/swarmd/pkg/embedder"
	"github.com/swarmhive/swarmd/pkg/llmclient"
	"github.com/swarmhive/swarmd/pkg/logger"
	"github.com/swarmhive/swarmd/pkg/observability"
	"github.com/swarmhive/swarmd/pkg/ragstore"
	"github.com/swarmhive/swarmd/pkg/server"
	"github.com/swarmhive/swarmd/pkg/toolhost"
	"github.com/swarmhive/swarmd/pkg/toolhost/cmdtool"
	"github.com/swarmhive/swarmd/pkg/toolhost/dbtool"
	"github.com/swarmhive/swarmd/pkg/toolhost/filetool"
	"github.com/swarmhive/swarmd/pkg/toolhost/imagetool"
	"github.com/swarmhive/swarmd/pkg/toolhost/knowledgetool"
	"github.com/swarmhive/swarmd/pkg/toolhost/mcptool"
	"github.com/swarmhive/swarmd/pkg/toolhost/webtool"
	"github.com/swarmhive/swarmd/pkg/vector"

	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "swarmd.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "swarmd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if err := config.LoadEnvFiles(); err != nil {
		return fmt.Errorf("loading .env files: %w", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logOutput := os.Stdout
	if cfg.Logging.Output == "stderr" {
		logOutput = os.Stderr
	}
	logger.Init(parseLevel(cfg.Logging.Level), logOutput, cfg.Logging.Format)
	log := logger.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, err := observability.NewTracer(ctx, &cfg.Observability.Tracing)
	if err != nil {
		return fmt.Errorf("building tracer: %w", err)
	}
	metrics, err := observability.NewMetrics(&cfg.Observability.Metrics)
	if err != nil {
		return fmt.Errorf("building metrics: %w", err)
	}

	llm := buildLLMClient(*cfg, tracer, metrics)

	embed, err := buildEmbedder(*cfg, log)
	if err != nil {
		return fmt.Errorf("building embedder: %w", err)
	}

	vectors, err := vector.NewProvider(&cfg.RAG.Vector)
	if err != nil {
		return fmt.Errorf("building vector provider: %w", err)
	}

	rag := ragstore.New(cfg.RAG.DefaultCollection, embed, vectors)
	rag.Open(embed.Dimension())

	tools, err := buildToolHost(ctx, *cfg, rag)
	if err != nil {
		return fmt.Errorf("building tool host: %w", err)
	}

	agentCfg := agent.Config{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
	}
	agents := agent.NewRunner(llm, tools, agentCfg, tracer, metrics)

	coordCfg := coordinator.Config{
		Model:              cfg.Coordinator.Model,
		Temperature:        cfg.Coordinator.Temperature,
		TopP:               cfg.Coordinator.TopP,
		MaxAgents:          cfg.Coordinator.MaxAgents,
		PlanRepairAttempts: cfg.Coordinator.PlanRepairAttempts,
		AgentMaxTurns:      cfg.AgentDefaults.MaxTurns,
		AgentMaxTokens:     cfg.AgentDefaults.MaxTokens,
	}
	if coordCfg.Model == "" {
		coordCfg.Model = cfg.LLM.Model
	}
	coord := coordinator.New(llm, agents, coordCfg, tracer, metrics)

	srv := server.New(llm, coord, tools, rag, tracer, metrics, log)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("swarmd listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLLMClient(cfg config.Config, tracer *observability.Tracer, metrics *observability.Metrics) *llmclient.Client {
	var backend llmclient.Backend
	switch cfg.LLM.Backend {
	case "openai":
		backend = llmclient.NewOpenAIBackend(llmclient.OpenAIConfig{
			BaseURL:    cfg.LLM.OpenAI.BaseURL,
			APIKey:     cfg.LLM.OpenAI.APIKey,
			MaxRetries: cfg.LLM.OpenAI.MaxRetries,
		})
	default:
		backend = llmclient.NewOllamaBackend(llmclient.OllamaConfig{
			BaseURL:    cfg.LLM.Ollama.BaseURL,
			MaxRetries: cfg.LLM.Ollama.MaxRetries,
		})
	}

	return llmclient.New(backend, llmclient.Config{
		MaxRetries:              cfg.LLM.Resilience.MaxRetries,
		BaseDelay:               cfg.LLM.Resilience.BaseDelay,
		MaxDelay:                cfg.LLM.Resilience.MaxDelay,
		BreakerFailureThreshold: cfg.LLM.Resilience.BreakerFailureThreshold,
		BreakerSuccessThreshold: cfg.LLM.Resilience.BreakerSuccessThreshold,
		BreakerCooldown:         cfg.LLM.Resilience.BreakerCooldown,
		RateLimit:               rate.Limit(cfg.LLM.Resilience.RateLimit),
		RateBurst:               cfg.LLM.Resilience.RateBurst,
		Concurrency:             cfg.LLM.Resilience.Concurrency,
	}, tracer, metrics)
}

func buildEmbedderBackend(cfg config.EmbedderBackendConfig) embedder.Provider {
	switch cfg.Backend {
	case "openai":
		return embedder.NewOpenAI(embedder.OpenAIConfig{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKey:     cfg.OpenAI.APIKey,
			Model:      cfg.Model,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
	default:
		return embedder.NewOllama(embedder.OllamaConfig{
			BaseURL:    cfg.Ollama.BaseURL,
			Model:      cfg.Model,
			MaxRetries: cfg.Ollama.MaxRetries,
		})
	}
}

func buildEmbedder(cfg config.Config, log *slog.Logger) (embedder.Provider, error) {
	primary := buildEmbedderBackend(cfg.Embedder.Primary)
	if cfg.Embedder.Fallback == nil {
		return primary, nil
	}
	secondary := buildEmbedderBackend(*cfg.Embedder.Fallback)
	return embedder.WithFallback(primary, secondary, log), nil
}

func buildToolHost(ctx context.Context, cfg config.Config, rag *ragstore.Store) (*toolhost.Host, error) {
	host := toolhost.NewHost()

	register := func(def toolhost.Definition, err error) error {
		if err != nil {
			return err
		}
		return host.Register(def)
	}

	if p := cfg.Tools.FilesystemRead; p != nil {
		fileCfg := filetool.Config{AllowedRoots: p.AllowedRoots, MaxReadBytes: p.MaxReadBytes}
		if err := register(filetool.NewReadFile(fileCfg)); err != nil {
			return nil, err
		}
		if err := register(filetool.NewListDirectory(fileCfg)); err != nil {
			return nil, err
		}
	}
	if p := cfg.Tools.FilesystemWrite; p != nil {
		if err := register(filetool.NewWriteFile(filetool.Config{AllowedRoots: p.AllowedRoots, WriteQuota: p.WriteQuota})); err != nil {
			return nil, err
		}
	}
	if p := cfg.Tools.Database; p != nil {
		if err := register(dbtool.NewQueryDatabase(dbtool.Config{
			Driver:    p.Driver,
			DSN:       p.DSN,
			MaxRows:   p.MaxRows,
			QueryTime: p.QueryTime,
		})); err != nil {
			return nil, err
		}
	}
	if p := cfg.Tools.CodeExecution; p != nil {
		if err := register(cmdtool.NewRunCommand(cmdtool.Config{
			CommandAllowlist: p.CommandAllowlist,
			WallClock:        p.WallClock,
			OutputCap:        p.OutputCap,
		})); err != nil {
			return nil, err
		}
	}
	if p := cfg.Tools.Web; p != nil {
		if err := register(webtool.NewWebRequest(webtool.Config{
			Timeout:         p.RequestTimeout,
			MaxResponseSize: p.ResponseCap,
		})); err != nil {
			return nil, err
		}
	}
	if p := cfg.Tools.ImageGeneration; p != nil {
		backend, err := buildImageBackend(*p)
		if err != nil {
			return nil, err
		}
		if err := register(imagetool.NewGenerateImage(imagetool.Config{
			MaxImages: p.MaxImages,
			MaxBytes:  p.MaxBytes,
		}, backend)); err != nil {
			return nil, err
		}
	}

	if rag != nil {
		if err := register(knowledgetool.NewRAGSearch(rag)); err != nil {
			return nil, err
		}
		if err := register(knowledgetool.NewRAGAdd(rag)); err != nil {
			return nil, err
		}
	}

	for _, srv := range cfg.Tools.MCPServers {
		client, err := mcptool.Connect(ctx, mcptool.Config{
			Name:        srv.Name,
			Command:     srv.Command,
			Args:        srv.Args,
			Env:         srv.Env,
			Filter:      srv.Filter,
			CallTimeout: srv.CallTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to mcp server %q: %w", srv.Name, err)
		}
		defs, err := client.Discover(ctx)
		if err != nil {
			return nil, fmt.Errorf("discovering tools from mcp server %q: %w", srv.Name, err)
		}
		for _, def := range defs {
			if err := host.Register(def); err != nil {
				return nil, fmt.Errorf("registering tool %q from mcp server %q: %w", def.Name, srv.Name, err)
			}
		}
	}

	return host, nil
}

func buildImageBackend(p config.ImageGenerationPolicy) (imagetool.Backend, error) {
	switch p.Backend {
	case "http":
		if p.HTTP == nil {
			return nil, fmt.Errorf("image_generation: http backend requires http config")
		}
		return imagetool.NewHTTPBackend(imagetool.HTTPBackendConfig{
			BaseURL:    p.HTTP.BaseURL,
			APIKey:     p.HTTP.APIKey,
			MaxRetries: p.HTTP.MaxRetries,
			Timeout:    p.HTTP.Timeout,
		}), nil
	default:
		return imagetool.StubBackend{}, nil
	}
}
