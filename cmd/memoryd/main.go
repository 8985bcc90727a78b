// Command memoryd runs the session memory orchestrator: it wires concrete
// Postgres/Qdrant/Redis/Kafka/ClickHouse backends to the session store,
// router, retriever, assembler, scheduler, and archiver, and serves the
// gateway's three operations over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"memoryd/internal/archiver"
	"memoryd/internal/archivelog"
	"memoryd/internal/assembler"
	"memoryd/internal/config"
	"memoryd/internal/dedupe"
	"memoryd/internal/embedding"
	"memoryd/internal/gateway"
	"memoryd/internal/httpapi"
	"memoryd/internal/llmservice"
	"memoryd/internal/observability"
	"memoryd/internal/retriever"
	"memoryd/internal/router"
	"memoryd/internal/scheduler"
	"memoryd/internal/sessionstore"
	"memoryd/internal/store"
	"memoryd/internal/tokencount"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("memoryd")
	}
}

func run() error {
	cfg, err := config.Load("memoryd.yaml")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel)

	baseCtx := context.Background()

	shutdown, err := observability.InitOTel(baseCtx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	pool, err := store.OpenPostgresPool(baseCtx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("open postgres pool: %w", err)
	}
	defer pool.Close()

	pgStore := store.NewPostgresStore(pool)
	if err := pgStore.Init(baseCtx); err != nil {
		return fmt.Errorf("init postgres schema: %w", err)
	}
	persist := store.WithRetry(pgStore)

	httpClient := observability.NewHTTPClient(&http.Client{Timeout: 30 * time.Second})

	embedSvc := embedding.WithRetry(embedding.NewHTTPService(httpClient, cfg.Embedding.Host, cfg.Embedding.APIKey, cfg.Embedding.Model))

	mirror, err := embedding.NewQdrantMirror(baseCtx, cfg.Qdrant.DSN, cfg.Qdrant.Collection, cfg.Qdrant.Dimensions)
	if err != nil {
		log.Warn().Err(err).Msg("qdrant mirror init failed, continuing without insight vector mirror")
		mirror = nil
	}
	if mirror != nil {
		defer func() {
			if err := mirror.Close(); err != nil {
				log.Warn().Err(err).Msg("qdrant mirror close failed")
			}
		}()
	}

	provider, err := llmservice.NewProvider(cfg.LLM.Provider, apiKeyFor(cfg.LLM), cfg.LLM.BaseURL, cfg.LLM.Model)
	if err != nil {
		return fmt.Errorf("construct llm provider: %w", err)
	}
	llmSvc := llmservice.WithRetry(provider)

	dedupeStore, err := dedupe.New(cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		log.Warn().Err(err).Msg("redis dedupe init failed, continuing without cross-instance idempotency")
		dedupeStore = nil
	}
	if dedupeStore != nil {
		defer func() {
			if err := dedupeStore.Close(); err != nil {
				log.Warn().Err(err).Msg("redis dedupe close failed")
			}
		}()
	}

	publisher, err := archivelog.NewPublisher(cfg.Kafka)
	if err != nil {
		log.Warn().Err(err).Msg("kafka archive publisher init failed, continuing without it")
		publisher = nil
	}
	if publisher != nil {
		defer publisher.Close()
	}

	sink, err := archivelog.NewSink(baseCtx, cfg.Obs.ClickHouse)
	if err != nil {
		log.Warn().Err(err).Msg("clickhouse archive sink init failed, continuing without it")
		sink = nil
	}
	if sink != nil {
		defer func() {
			if err := sink.Close(); err != nil {
				log.Warn().Err(err).Msg("clickhouse archive sink close failed")
			}
		}()
	}

	counter := tokencount.New()
	sessions := sessionstore.New(persist, counter)
	arch := archiver.New(persist, llmSvc).WithArchiveLog(publisher, sink)
	sched := scheduler.New(sessions, arch)
	rtr := router.New(llmSvc, cfg.Memory.MaxThreads, cfg.Memory.MaxRawMessages)
	retr := retriever.New(persist, embedSvc, llmSvc).WithMirror(mirror)
	asm := assembler.New(counter)

	gwCfg := gateway.Config{
		WindowTokens:       cfg.Memory.WindowTokens,
		InsertBudgetTokens: cfg.Memory.InsertBudgetTokens,
		MaxThreads:         cfg.Memory.MaxThreads,
		MaxRawMessages:     cfg.Memory.MaxRawMessages,
	}
	gw := gateway.New(persist, sessions, counter, rtr, retr, asm, sched, gwCfg).WithDedupe(dedupeStore)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: httpapi.NewServer(gw),
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("memoryd listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	log.Info().Msg("memoryd stopped")
	return nil
}

func apiKeyFor(llm config.LLMConfig) string {
	if llm.Provider == "anthropic" {
		return llm.AnthropicAPIKey
	}
	return llm.OpenAIAPIKey
}
