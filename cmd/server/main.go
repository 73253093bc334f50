// Package main provides the entry point for the research assistant service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/scholarsynth/research-assistant-service/internal/chunker"
	"github.com/scholarsynth/research-assistant-service/internal/config"
	"github.com/scholarsynth/research-assistant-service/internal/database"
	"github.com/scholarsynth/research-assistant-service/internal/events"
	"github.com/scholarsynth/research-assistant-service/internal/ingest"
	"github.com/scholarsynth/research-assistant-service/internal/llm"
	"github.com/scholarsynth/research-assistant-service/internal/observability"
	"github.com/scholarsynth/research-assistant-service/internal/papersources/arxiv"
	"github.com/scholarsynth/research-assistant-service/internal/pdf"
	"github.com/scholarsynth/research-assistant-service/internal/repository"
	"github.com/scholarsynth/research-assistant-service/internal/scheduler"
	httpserver "github.com/scholarsynth/research-assistant-service/internal/server/http"
	"github.com/scholarsynth/research-assistant-service/internal/synthesis"
	"github.com/scholarsynth/research-assistant-service/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger.Info().Msg("research-assistant-service starting")

	metrics := observability.NewMetrics("researchai")

	// Graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	documentRepo := repository.NewPgDocumentRepository(db)
	reviewRepo := repository.NewPgReviewRepository(db)

	// Qdrant vector store.
	vectors, err := vectorstore.NewClient(vectorstore.Config{
		Address:        cfg.Qdrant.Address,
		CollectionName: cfg.Qdrant.CollectionName,
		VectorSize:     cfg.Qdrant.VectorSize,
	})
	if err != nil {
		return fmt.Errorf("create vector store client: %w", err)
	}
	defer vectors.Close()

	if err := vectors.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure vector collection: %w", err)
	}
	logger.Info().Str("collection", cfg.Qdrant.CollectionName).Msg("vector store ready")

	// Lifecycle event publisher.
	var publisher events.Publisher = events.NewNoopPublisher()
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewKafkaPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
		defer func() {
			if closeErr := kafkaPublisher.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close event publisher")
			}
		}()
		publisher = kafkaPublisher
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher enabled")
	}

	// LLM client and embedder.
	llmClient, err := llm.NewClient(llm.FactoryConfig{
		Provider:    cfg.LLM.Provider,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.OpenAI.Model,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.LLM.Anthropic.APIKey,
			Model:   cfg.LLM.Anthropic.Model,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		},
		Ollama: llm.OllamaConfig{
			BaseURL: cfg.LLM.Ollama.BaseURL,
			Model:   cfg.LLM.Ollama.Model,
		},
	})
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	logger.Info().Str("provider", llmClient.Provider()).Str("model", llmClient.Model()).Msg("LLM client ready")

	embedder, err := llm.NewEmbedder(llm.EmbedderFactoryConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		Ollama: llm.OllamaConfig{
			BaseURL: cfg.LLM.Ollama.BaseURL,
		},
	})
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}

	semanticChunker := chunker.New(embedder, chunker.Options{
		SimilarityThreshold:  cfg.Chunking.SimilarityThreshold,
		SentenceOverlap:      cfg.Chunking.SentenceOverlap,
		MaxSentenceChars:     cfg.Chunking.MaxSentenceChars,
		FallbackChunkSize:    cfg.Chunking.FallbackChunkSize,
		FallbackChunkOverlap: cfg.Chunking.FallbackChunkOverlap,
	})

	// PDF tooling and paper source.
	extractor := pdf.NewTikaExtractor(pdf.TikaConfig{
		Address: cfg.PDF.TikaAddress,
		Timeout: cfg.PDF.ExtractTimeout,
	})
	downloader := pdf.NewDownloader(pdf.DownloaderConfig{
		Timeout: cfg.PDF.DownloadTimeout,
		MaxSize: cfg.PDF.MaxDownloadBytes,
	})
	paperSource := arxiv.New(arxiv.Config{
		BaseURL:    cfg.ArXiv.BaseURL,
		Timeout:    cfg.ArXiv.Timeout,
		RateLimit:  cfg.ArXiv.RateLimit,
		MaxResults: cfg.ArXiv.MaxResults,
	})

	pipeline := ingest.NewPipeline(ingest.Options{
		DB:        db,
		Documents: documentRepo,
		Extractor: extractor,
		LLMClient: llmClient,
		Embedder:  embedder,
		Chunker:   semanticChunker,
		Vectors:   vectors,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logger,
	})

	orchestrator := synthesis.NewOrchestrator(llmClient, metrics, logger)

	reviewScheduler := scheduler.New(scheduler.Options{
		Config: scheduler.Config{
			CandidatePoolSize: cfg.Review.CandidatePoolSize,
			MaxPapers:         cfg.Review.MaxPapers,
			BatchSize:         cfg.Review.BatchSize,
			BatchCooldown:     cfg.Review.BatchCooldown,
		},
		Reviews:    reviewRepo,
		Documents:  documentRepo,
		Source:     paperSource,
		Downloader: downloader,
		Ingester:   pipeline,
		Synth:      orchestrator,
		LLMClient:  llmClient,
		Publisher:  publisher,
		Metrics:    metrics,
		Logger:     logger,
	})

	// Jobs left mid-flight by a previous process cannot resume; fail them
	// before accepting new work.
	if err := reviewScheduler.SweepStale(ctx); err != nil {
		return fmt.Errorf("sweep stale reviews: %w", err)
	}

	httpSrv := httpserver.NewServer(httpserver.Options{
		Config: httpserver.Config{
			Address:         cfg.Server.HTTPAddress(),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		},
		Documents: documentRepo,
		Reviews:   reviewRepo,
		Ingester:  pipeline,
		Runner:    reviewScheduler,
		Embedder:  embedder,
		Vectors:   vectors,
		DB:        db,
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().Str("http_address", cfg.Server.HTTPAddress()).Msg("research-assistant-service is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down research-assistant-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("research-assistant-service shutdown complete")
	return nil
}
