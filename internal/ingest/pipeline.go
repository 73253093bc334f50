// Package ingest implements the document ingestion pipeline: text extraction,
// structured-data and citation extraction, semantic chunking, and persistence
// of chunk rows and embedding vectors.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/scholarsynth/research-assistant-service/internal/chunker"
	"github.com/scholarsynth/research-assistant-service/internal/database"
	"github.com/scholarsynth/research-assistant-service/internal/domain"
	"github.com/scholarsynth/research-assistant-service/internal/events"
	"github.com/scholarsynth/research-assistant-service/internal/llm"
	"github.com/scholarsynth/research-assistant-service/internal/observability"
	"github.com/scholarsynth/research-assistant-service/internal/pdf"
	"github.com/scholarsynth/research-assistant-service/internal/repository"
	"github.com/scholarsynth/research-assistant-service/internal/vectorstore"
)

// txRunner runs a function inside a database transaction. *database.DB
// satisfies it.
type txRunner interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

var _ txRunner = (*database.DB)(nil)

// Pipeline processes uploaded documents end to end.
type Pipeline struct {
	db        txRunner
	docs      repository.DocumentRepository
	extractor pdf.TextExtractor
	llmClient llm.Client
	embedder  llm.Embedder
	chunker   *chunker.Chunker
	vectors   vectorstore.VectorStore
	publisher events.Publisher
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// Options bundles the pipeline's collaborators.
type Options struct {
	DB        txRunner
	Documents repository.DocumentRepository
	Extractor pdf.TextExtractor
	LLMClient llm.Client
	Embedder  llm.Embedder
	Chunker   *chunker.Chunker
	Vectors   vectorstore.VectorStore
	Publisher events.Publisher
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
}

// NewPipeline creates a document ingestion pipeline.
func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{
		db:        opts.DB,
		docs:      opts.Documents,
		extractor: opts.Extractor,
		llmClient: opts.LLMClient,
		embedder:  opts.Embedder,
		chunker:   opts.Chunker,
		vectors:   opts.Vectors,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With().Str("component", "ingest_pipeline").Logger(),
	}
}

// Ingest fully processes an uploaded document: extraction, structured data,
// citations, semantic chunks with embedding vectors. On success the document
// is marked completed and becomes interactive (eligible for chunk queries).
func (p *Pipeline) Ingest(ctx context.Context, documentID uuid.UUID, content []byte) error {
	return p.run(ctx, documentID, content, true)
}

// IngestForReview is the lite variant used by the review scheduler. It still
// extracts structured data and citations but skips chunk embedding, and the
// document stays non-interactive.
func (p *Pipeline) IngestForReview(ctx context.Context, documentID uuid.UUID, content []byte) error {
	return p.run(ctx, documentID, content, false)
}

func (p *Pipeline) run(ctx context.Context, documentID uuid.UUID, content []byte, interactive bool) error {
	start := time.Now()

	doc, err := p.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	logger := observability.WithDocumentContext(p.logger, documentID.String(), doc.Filename)

	if err := p.docs.UpdateStatus(ctx, documentID, domain.DocumentStatusProcessing, ""); err != nil {
		return err
	}

	logger.Info().Bool("interactive", interactive).Int("size_bytes", len(content)).
		Msg("starting document ingestion")

	if err := p.process(ctx, logger, doc, content, interactive); err != nil {
		p.markFailed(ctx, logger, doc, err)
		return err
	}

	if err := p.docs.UpdateStatus(ctx, documentID, domain.DocumentStatusCompleted, ""); err != nil {
		return err
	}

	p.metrics.DocumentsIngested.Inc()
	p.metrics.IngestionDuration.Observe(time.Since(start).Seconds())
	p.publishEvent(ctx, logger, domain.EventTypeDocumentCompleted, doc, domain.DocumentStatusCompleted, "")

	logger.Info().Dur("elapsed", time.Since(start)).Msg("document ingestion completed")
	return nil
}

func (p *Pipeline) process(ctx context.Context, logger zerolog.Logger, doc *domain.Document, content []byte, interactive bool) error {
	text, err := p.extractor.ExtractText(ctx, content)
	if err != nil {
		return fmt.Errorf("text extraction failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: extracted text is empty", domain.ErrEmptyDocument)
	}

	// Structured-data failures are not fatal: the document remains useful for
	// chunk queries, it just cannot serve as a synthesis source. The error is
	// recorded on the document so the review gather step can exclude it.
	structured, err := llm.ExtractStructuredData(ctx, p.llmClient, text)
	if err != nil {
		logger.Warn().Err(err).Msg("structured-data extraction failed")
		structured = &domain.StructuredData{Error: err.Error()}
	}

	citations := p.extractCitations(ctx, logger, doc.ID, text)

	var chunkRows []*domain.TextChunk
	var points []vectorstore.ChunkPoint
	if interactive {
		chunkRows, points, err = p.buildChunks(ctx, doc.ID, text)
		if err != nil {
			return err
		}
	}

	err = p.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		txDocs := p.docs.WithTx(tx)
		if err := txDocs.SetStructuredData(ctx, doc.ID, structured); err != nil {
			return err
		}
		if err := txDocs.CreateCitations(ctx, citations); err != nil {
			return err
		}
		if !interactive {
			return nil
		}
		if err := txDocs.CreateChunks(ctx, chunkRows); err != nil {
			return err
		}
		if err := txDocs.SetInteractive(ctx, doc.ID, true); err != nil {
			return err
		}
		// Upserting inside the transaction keeps the chunk rows and their
		// vectors consistent: a Qdrant failure rolls the rows back, and an
		// orphaned vector from a later rollback is overwritten on retry
		// because points are keyed by chunk UUID.
		return p.vectors.UpsertChunks(ctx, points)
	})
	if err != nil {
		return err
	}

	p.metrics.CitationsExtracted.Add(float64(len(citations)))
	if interactive {
		p.metrics.ChunksCreated.Add(float64(len(chunkRows)))
		p.metrics.ChunksPerDocument.Observe(float64(len(chunkRows)))
	}
	return nil
}

// extractCitations locates the references section and parses it via the LLM.
// Documents without a recognizable references heading yield no citations, and
// a failed parse is logged and skipped rather than failing the ingestion.
func (p *Pipeline) extractCitations(ctx context.Context, logger zerolog.Logger, documentID uuid.UUID, text string) []*domain.Citation {
	section, found := referencesSection(text)
	if !found {
		logger.Debug().Msg("no references heading found, skipping citation extraction")
		return nil
	}

	infos, err := llm.ExtractCitations(ctx, p.llmClient, section)
	if err != nil {
		logger.Warn().Err(err).Msg("citation extraction failed")
		return nil
	}

	now := time.Now().UTC()
	citations := make([]*domain.Citation, 0, len(infos))
	for _, info := range infos {
		citations = append(citations, &domain.Citation{
			ID:         uuid.New(),
			DocumentID: documentID,
			Title:      info.Title,
			Authors:    info.Authors,
			Year:       info.Year,
			CreatedAt:  now,
		})
	}
	return citations
}

// buildChunks splits the text into semantic chunks and embeds each chunk for
// vector storage.
func (p *Pipeline) buildChunks(ctx context.Context, documentID uuid.UUID, text string) ([]*domain.TextChunk, []vectorstore.ChunkPoint, error) {
	chunks, err := p.chunker.Chunk(ctx, text)
	if err != nil {
		return nil, nil, fmt.Errorf("chunking failed: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, nil, fmt.Errorf("chunk embedding failed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	p.metrics.EmbeddingRequestsTotal.WithLabelValues(p.embedder.Provider()).Inc()

	now := time.Now().UTC()
	rows := make([]*domain.TextChunk, 0, len(chunks))
	points := make([]vectorstore.ChunkPoint, 0, len(chunks))
	for i, chunkText := range chunks {
		chunkID := uuid.New()
		rows = append(rows, &domain.TextChunk{
			ID:         chunkID,
			DocumentID: documentID,
			Ordinal:    i,
			Text:       chunkText,
			CreatedAt:  now,
		})
		points = append(points, vectorstore.ChunkPoint{
			ChunkID:    chunkID,
			DocumentID: documentID,
			Ordinal:    i,
			Embedding:  vectors[i],
		})
	}
	return rows, points, nil
}

func (p *Pipeline) markFailed(ctx context.Context, logger zerolog.Logger, doc *domain.Document, cause error) {
	logger.Error().Err(cause).Msg("document ingestion failed")
	p.metrics.DocumentsFailed.Inc()

	if err := p.docs.UpdateStatus(ctx, doc.ID, domain.DocumentStatusFailed, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("failed to mark document as failed")
	}
	p.publishEvent(ctx, logger, domain.EventTypeDocumentFailed, doc, domain.DocumentStatusFailed, cause.Error())
}

func (p *Pipeline) publishEvent(ctx context.Context, logger zerolog.Logger, eventType string, doc *domain.Document, status domain.DocumentStatus, errMsg string) {
	event, err := domain.NewLifecycleEvent(eventType, domain.AggregateTypeDocument, doc.ID, domain.DocumentEventPayload{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     status,
		Error:      errMsg,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to build lifecycle event")
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish lifecycle event")
	}
}
