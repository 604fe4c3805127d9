package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tapsafe/chlorine-data-service/internal/acquire"
	"github.com/tapsafe/chlorine-data-service/internal/adapter/docextract"
	"github.com/tapsafe/chlorine-data-service/internal/adapter/httpapi"
	kafkaadapter "github.com/tapsafe/chlorine-data-service/internal/adapter/kafka"
	"github.com/tapsafe/chlorine-data-service/internal/adapter/postgres"
	"github.com/tapsafe/chlorine-data-service/internal/adapter/websearch"
	"github.com/tapsafe/chlorine-data-service/internal/audit"
	"github.com/tapsafe/chlorine-data-service/internal/config"
	"github.com/tapsafe/chlorine-data-service/internal/observability"
	"github.com/tapsafe/chlorine-data-service/internal/resolve"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	resolver := resolve.New(store, logger, metrics)

	searcher := websearch.NewClient(cfg.SearchAPIKey, cfg.SearchBaseURL, cfg.SearchTimeout, logger)
	if cfg.SearchEnabled {
		logger.Info("document search enabled", "base_url", cfg.SearchBaseURL, "timeout", cfg.SearchTimeout)
	} else {
		logger.Warn("document search running without an API key; acquisition will serve cache only")
	}
	extractor := docextract.NewClient(cfg.ExtractBaseURL, cfg.ExtractTimeout, logger)

	// LLM extraction runs first when enabled; regex strategies are the fallback.
	var strategies []acquire.Extractor
	if cfg.LLMEnabled {
		strategies = append(strategies, docextract.NewLLMExtractor(cfg.AnthropicAPIKey, cfg.LLMModel, logger))
		logger.Info("llm extraction enabled", "model", cfg.LLMModel)
		metrics.LLMEnabled.Set(1)
	} else {
		logger.Info("llm extraction disabled")
	}
	strategies = append(strategies,
		acquire.NewLabeledAverageExtractor(),
		acquire.NewLabeledValueExtractor(),
		acquire.NewCompoundNameExtractor(),
		acquire.NewRangeMeanExtractor(),
	)

	orchestrator := acquire.New(store, searcher, []acquire.TextExtractor{extractor}, strategies, logger, metrics, acquire.Options{
		MaxCandidateDocs: cfg.MaxCandidateDocs,
		MaxReadingAge:    cfg.MaxReadingAge,
	})

	// Findings publishing is optional; without Kafka the audit reports stay
	// HTTP/CLI only.
	var publisher audit.FindingsPublisher
	var findingsWriter *kafkaadapter.FindingsWriter
	if cfg.KafkaEnabled {
		findingsWriter = kafkaadapter.NewFindingsWriter(cfg, logger)
		publisher = findingsWriter
		logger.Info("audit findings publishing enabled", "topic", cfg.KafkaFindingsTopic)
	}
	auditor := audit.New(store, publisher, logger, metrics)

	srv := httpapi.NewServer(cfg.HTTPAddr, resolver, orchestrator, auditor, store, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if findingsWriter != nil {
		if err := findingsWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
