// Package scheduler runs literature review jobs through their state machine:
// search, batched summarization with inter-batch cooldown, and synthesis.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholarsynth/research-assistant-service/internal/domain"
	"github.com/scholarsynth/research-assistant-service/internal/events"
	"github.com/scholarsynth/research-assistant-service/internal/llm"
	"github.com/scholarsynth/research-assistant-service/internal/observability"
	"github.com/scholarsynth/research-assistant-service/internal/papersources"
	"github.com/scholarsynth/research-assistant-service/internal/pdf"
	"github.com/scholarsynth/research-assistant-service/internal/repository"
)

// Ingester is the slice of the ingestion pipeline the scheduler needs.
type Ingester interface {
	IngestForReview(ctx context.Context, documentID uuid.UUID, content []byte) error
}

// Synthesizer produces the final review text from gathered summaries.
type Synthesizer interface {
	Synthesize(ctx context.Context, topic string, summaries []domain.SourceSummary) (string, error)
}

// Downloader fetches a paper's PDF bytes.
type Downloader interface {
	Download(ctx context.Context, url string) (*pdf.DownloadResult, error)
}

var _ Downloader = (*pdf.Downloader)(nil)

// Config holds scheduler tuning parameters. BatchSize and BatchCooldown are
// provider-specific rate limit accommodations, not algorithmic constants.
type Config struct {
	// CandidatePoolSize is how many papers to fetch from search before filtering.
	CandidatePoolSize int
	// MaxPapers is the target number of papers after LLM relevance filtering.
	MaxPapers int
	// BatchSize is the number of papers processed concurrently per batch.
	BatchSize int
	// BatchCooldown is the mandatory pause between batches. It never runs
	// after the final batch.
	BatchCooldown time.Duration
}

// Scheduler executes literature review jobs.
type Scheduler struct {
	cfg        Config
	reviews    repository.ReviewRepository
	documents  repository.DocumentRepository
	source     papersources.PaperSource
	downloader Downloader
	ingester   Ingester
	synth      Synthesizer
	llmClient  llm.Client
	publisher  events.Publisher
	metrics    *observability.Metrics
	logger     zerolog.Logger

	// sleep is replaceable in tests so cooldowns do not wait in real time.
	sleep func(ctx context.Context, d time.Duration) error
}

// Options bundles the scheduler's collaborators.
type Options struct {
	Config     Config
	Reviews    repository.ReviewRepository
	Documents  repository.DocumentRepository
	Source     papersources.PaperSource
	Downloader Downloader
	Ingester   Ingester
	Synth      Synthesizer
	LLMClient  llm.Client
	Publisher  events.Publisher
	Metrics    *observability.Metrics
	Logger     zerolog.Logger
}

// New creates a review scheduler.
func New(opts Options) *Scheduler {
	cfg := opts.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.MaxPapers <= 0 {
		cfg.MaxPapers = 5
	}
	if cfg.CandidatePoolSize < cfg.MaxPapers {
		cfg.CandidatePoolSize = cfg.MaxPapers * 4
	}
	if cfg.BatchCooldown <= 0 {
		cfg.BatchCooldown = 60 * time.Second
	}

	return &Scheduler{
		cfg:        cfg,
		reviews:    opts.Reviews,
		documents:  opts.Documents,
		source:     opts.Source,
		downloader: opts.Downloader,
		ingester:   opts.Ingester,
		synth:      opts.Synth,
		llmClient:  opts.LLMClient,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With().Str("component", "review_scheduler").Logger(),
		sleep:      sleepContext,
	}
}

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SweepStale force-fails every job left in a non-terminal, non-pending state
// by a previous process. In-memory task state (open downloads, goroutines) is
// lost on restart, so mid-flight jobs cannot be resumed.
func (s *Scheduler) SweepStale(ctx context.Context) error {
	count, err := s.reviews.FailStale(ctx, "review interrupted by service restart")
	if err != nil {
		return fmt.Errorf("startup sweep failed: %w", err)
	}
	if count > 0 {
		s.metrics.ReviewsSwept.Add(float64(count))
		s.logger.Warn().Int64("count", count).Msg("swept stale review jobs to failed")
	}
	return nil
}

// Run executes a review job to a terminal state. Any error is converted to a
// FAILED status with the error message as the stored result; documents
// created along the way are never rolled back.
func (s *Scheduler) Run(ctx context.Context, reviewID uuid.UUID) {
	start := time.Now()

	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		s.logger.Error().Err(err).Str("review_id", reviewID.String()).Msg("failed to load review job")
		return
	}
	logger := observability.WithReviewContext(s.logger, review.ID.String(), review.Topic)

	s.metrics.ReviewsStarted.Inc()
	s.publishEvent(ctx, logger, domain.EventTypeReviewStarted, review, domain.ReviewStatusSearching, "")

	result, err := s.execute(ctx, logger, review)
	if err != nil {
		logger.Error().Err(err).Msg("review job failed")
		s.metrics.ReviewsFailed.Inc()
		if failErr := s.reviews.Fail(ctx, review.ID, err.Error()); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to mark review as failed")
		}
		s.publishEvent(ctx, logger, domain.EventTypeReviewFailed, review, domain.ReviewStatusFailed, err.Error())
		return
	}

	if err := s.reviews.Complete(ctx, review.ID, result); err != nil {
		logger.Error().Err(err).Msg("failed to store completed review")
		return
	}

	s.metrics.ReviewsCompleted.Inc()
	s.metrics.ReviewDuration.Observe(time.Since(start).Seconds())
	s.publishEvent(ctx, logger, domain.EventTypeReviewCompleted, review, domain.ReviewStatusCompleted, "")
	logger.Info().Dur("elapsed", time.Since(start)).Msg("review job completed")
}

func (s *Scheduler) execute(ctx context.Context, logger zerolog.Logger, review *domain.LiteratureReview) (string, error) {
	papers, err := s.search(ctx, logger, review)
	if err != nil {
		return "", err
	}

	processed, err := s.summarize(ctx, logger, review, papers)
	if err != nil {
		return "", err
	}

	summaries, err := s.gather(ctx, logger, processed)
	if err != nil {
		return "", err
	}

	if err := s.reviews.UpdateStatus(ctx, review.ID, domain.ReviewStatusSynthesizing); err != nil {
		return "", err
	}
	return s.synth.Synthesize(ctx, review.Topic, summaries)
}

// search fetches the candidate pool and narrows it with the LLM relevance
// filter. Filter titles that match no candidate are dropped; matching is
// exact on the title string as given to the filter.
func (s *Scheduler) search(ctx context.Context, logger zerolog.Logger, review *domain.LiteratureReview) ([]domain.PaperRef, error) {
	if err := s.reviews.UpdateStatus(ctx, review.ID, domain.ReviewStatusSearching); err != nil {
		return nil, err
	}

	candidates, err := s.source.Search(ctx, papersources.SearchParams{
		Query:      review.Topic,
		MaxResults: s.cfg.CandidatePoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("paper search failed: %w", err)
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoSearchResults
	}
	logger.Info().Int("candidates", len(candidates)).Str("source", s.source.Name()).
		Msg("fetched candidate papers")

	titles, err := llm.FilterRelevantPapers(ctx, s.llmClient, review.Topic, candidates, s.cfg.MaxPapers)
	if err != nil {
		return nil, err
	}

	byTitle := make(map[string]domain.PaperRef, len(candidates))
	for _, p := range candidates {
		byTitle[p.Title] = p
	}

	selected := make([]domain.PaperRef, 0, len(titles))
	for _, title := range titles {
		if p, ok := byTitle[title]; ok {
			selected = append(selected, p)
		} else {
			logger.Warn().Str("title", title).Msg("relevance filter returned unknown title")
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("relevance filter matched no candidate papers")
	}
	if len(selected) > s.cfg.MaxPapers {
		selected = selected[:s.cfg.MaxPapers]
	}

	logger.Info().Int("selected", len(selected)).Msg("selected papers for review")
	return selected, nil
}

// processedPaper tracks one selected paper through summarization.
type processedPaper struct {
	paper      domain.PaperRef
	documentID uuid.UUID
	err        error
}

// summarize downloads and lite-ingests the selected papers in fixed-size
// batches. Papers within a batch run concurrently; the cooldown runs strictly
// between batches and never after the last one. Individual paper failures are
// recorded, not fatal.
func (s *Scheduler) summarize(ctx context.Context, logger zerolog.Logger, review *domain.LiteratureReview, papers []domain.PaperRef) ([]*processedPaper, error) {
	if err := s.reviews.UpdateStatus(ctx, review.ID, domain.ReviewStatusSummarizing); err != nil {
		return nil, err
	}

	processed := make([]*processedPaper, len(papers))
	for i, p := range papers {
		processed[i] = &processedPaper{paper: p}
	}

	for batchStart := 0; batchStart < len(processed); batchStart += s.cfg.BatchSize {
		if batchStart > 0 {
			s.metrics.BatchCooldowns.Inc()
			logger.Info().Dur("cooldown", s.cfg.BatchCooldown).Msg("cooling down before next batch")
			if err := s.sleep(ctx, s.cfg.BatchCooldown); err != nil {
				return nil, err
			}
		}

		batchEnd := batchStart + s.cfg.BatchSize
		if batchEnd > len(processed) {
			batchEnd = len(processed)
		}

		var wg sync.WaitGroup
		for _, item := range processed[batchStart:batchEnd] {
			wg.Add(1)
			go func(item *processedPaper) {
				defer wg.Done()
				item.documentID, item.err = s.processPaper(ctx, review, item.paper)
				if item.err != nil {
					logger.Warn().Err(item.err).Str("title", item.paper.Title).Msg("paper processing failed")
				}
			}(item)
		}
		wg.Wait()
	}

	return processed, nil
}

// processPaper downloads one paper and runs lite ingestion on a fresh
// document record owned by the review's owner.
func (s *Scheduler) processPaper(ctx context.Context, review *domain.LiteratureReview, paper domain.PaperRef) (uuid.UUID, error) {
	result, err := s.downloader.Download(ctx, paper.PDFURL)
	if err != nil {
		return uuid.Nil, fmt.Errorf("download failed: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:         uuid.New(),
		OwnerID:    review.OwnerID,
		Filename:   paper.Title + ".pdf",
		Status:     domain.DocumentStatusPending,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create document record: %w", err)
	}

	if err := s.ingester.IngestForReview(ctx, doc.ID, result.Content); err != nil {
		return doc.ID, err
	}
	return doc.ID, nil
}

// gather re-fetches each processed document and keeps only completed ones
// with usable structured data, paired with their search-time citation
// metadata. Zero usable summaries fails the job.
func (s *Scheduler) gather(ctx context.Context, logger zerolog.Logger, processed []*processedPaper) ([]domain.SourceSummary, error) {
	summaries := make([]domain.SourceSummary, 0, len(processed))
	for _, item := range processed {
		if item.err != nil || item.documentID == uuid.Nil {
			continue
		}

		// Re-fetch rather than trusting in-memory state: the pipeline mutated
		// the document record after the batch task was dispatched.
		doc, err := s.documents.GetByID(ctx, item.documentID)
		if err != nil {
			logger.Warn().Err(err).Str("document_id", item.documentID.String()).
				Msg("failed to re-fetch processed document")
			continue
		}
		if doc.Status != domain.DocumentStatusCompleted || !doc.StructuredData.Usable() {
			logger.Debug().Str("document_id", doc.ID.String()).Str("status", string(doc.Status)).
				Msg("excluding document from synthesis")
			continue
		}

		summaries = append(summaries, domain.SourceSummary{
			Filename:   doc.Filename,
			Structured: *doc.StructuredData,
			Citation: domain.CitationInfo{
				Title:   item.paper.Title,
				Authors: item.paper.Authors,
				Year:    item.paper.Year,
			},
		})
	}

	if len(summaries) == 0 {
		return nil, domain.ErrNoUsableSummaries
	}
	logger.Info().Int("summaries", len(summaries)).Msg("gathered usable summaries")
	return summaries, nil
}

func (s *Scheduler) publishEvent(ctx context.Context, logger zerolog.Logger, eventType string, review *domain.LiteratureReview, status domain.ReviewStatus, errMsg string) {
	event, err := domain.NewLifecycleEvent(eventType, domain.AggregateTypeReview, review.ID, domain.ReviewEventPayload{
		ReviewID: review.ID,
		Topic:    review.Topic,
		Status:   status,
		Error:    errMsg,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to build lifecycle event")
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish lifecycle event")
	}
}
