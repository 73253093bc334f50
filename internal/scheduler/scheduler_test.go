package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarsynth/research-assistant-service/internal/database"
	"github.com/scholarsynth/research-assistant-service/internal/domain"
	"github.com/scholarsynth/research-assistant-service/internal/llm"
	"github.com/scholarsynth/research-assistant-service/internal/observability"
	"github.com/scholarsynth/research-assistant-service/internal/papersources"
	"github.com/scholarsynth/research-assistant-service/internal/pdf"
	"github.com/scholarsynth/research-assistant-service/internal/repository"
)

// Shared across tests because promauto registers with the global registry.
var testMetrics = observability.NewMetrics("scheduler_test")

type fakeReviews struct {
	mu            sync.Mutex
	reviews       map[uuid.UUID]*domain.LiteratureReview
	statusHistory []domain.ReviewStatus
	result        string
	failReason    string
	staleReason   string
	staleCount    int64
}

func newFakeReviews(review *domain.LiteratureReview) *fakeReviews {
	return &fakeReviews{reviews: map[uuid.UUID]*domain.LiteratureReview{review.ID: review}}
}

func (f *fakeReviews) Create(_ context.Context, review *domain.LiteratureReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews[review.ID] = review
	return nil
}

func (f *fakeReviews) GetByID(_ context.Context, id uuid.UUID) (*domain.LiteratureReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	review, ok := f.reviews[id]
	if !ok {
		return nil, domain.NewNotFoundError("literature review", id.String())
	}
	return review, nil
}

func (f *fakeReviews) ListByOwner(_ context.Context, _ string) ([]*domain.LiteratureReview, error) {
	return nil, nil
}

func (f *fakeReviews) UpdateStatus(_ context.Context, id uuid.UUID, status domain.ReviewStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusHistory = append(f.statusHistory, status)
	f.reviews[id].Status = status
	return nil
}

func (f *fakeReviews) Complete(_ context.Context, id uuid.UUID, result string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusHistory = append(f.statusHistory, domain.ReviewStatusCompleted)
	f.reviews[id].Status = domain.ReviewStatusCompleted
	f.result = result
	return nil
}

func (f *fakeReviews) Fail(_ context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusHistory = append(f.statusHistory, domain.ReviewStatusFailed)
	f.reviews[id].Status = domain.ReviewStatusFailed
	f.failReason = reason
	return nil
}

func (f *fakeReviews) FailStale(_ context.Context, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleReason = reason
	return f.staleCount, nil
}

type fakeDocs struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*domain.Document
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: make(map[uuid.UUID]*domain.Document)}
}

func (f *fakeDocs) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocs) GetByID(_ context.Context, id uuid.UUID) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.NewNotFoundError("document", id.String())
	}
	return doc, nil
}

func (f *fakeDocs) ListByOwner(_ context.Context, _ string) ([]*domain.Document, error) {
	return nil, nil
}

func (f *fakeDocs) UpdateStatus(_ context.Context, id uuid.UUID, status domain.DocumentStatus, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id].Status = status
	f.docs[id].ErrorMessage = errorMessage
	return nil
}

func (f *fakeDocs) SetStructuredData(_ context.Context, id uuid.UUID, data *domain.StructuredData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id].StructuredData = data
	return nil
}

func (f *fakeDocs) SetInteractive(_ context.Context, id uuid.UUID, interactive bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id].Interactive = interactive
	return nil
}

func (f *fakeDocs) CreateChunks(_ context.Context, _ []*domain.TextChunk) error     { return nil }
func (f *fakeDocs) ListChunks(_ context.Context, _ uuid.UUID) ([]*domain.TextChunk, error) {
	return nil, nil
}
func (f *fakeDocs) GetChunksByIDs(_ context.Context, _ []uuid.UUID) ([]*domain.TextChunk, error) {
	return nil, nil
}
func (f *fakeDocs) CreateCitations(_ context.Context, _ []*domain.Citation) error { return nil }
func (f *fakeDocs) ListCitations(_ context.Context, _ uuid.UUID) ([]*domain.Citation, error) {
	return nil, nil
}
func (f *fakeDocs) Delete(_ context.Context, _ uuid.UUID) error          { return nil }
func (f *fakeDocs) WithTx(_ database.DBTX) repository.DocumentRepository { return f }

func (f *fakeDocs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

type fakeSource struct {
	papers []domain.PaperRef
	err    error
}

func (f *fakeSource) Search(_ context.Context, _ papersources.SearchParams) ([]domain.PaperRef, error) {
	return f.papers, f.err
}

func (f *fakeSource) Name() string { return "fake" }

type fakeDownloader struct {
	failURLs map[string]bool
}

func (f *fakeDownloader) Download(_ context.Context, url string) (*pdf.DownloadResult, error) {
	if f.failURLs[url] {
		return nil, errors.New("download refused")
	}
	return &pdf.DownloadResult{Content: []byte("%PDF-" + url), SizeBytes: 5}, nil
}

// fakeIngester marks documents completed with usable structured data, or
// failed for configured filenames. It records the cooldown count observed at
// each call so tests can verify batch boundaries.
type fakeIngester struct {
	mu         sync.Mutex
	docs       *fakeDocs
	failNames  map[string]bool
	sleeps     *sleepRecorder
	sleepsSeen []int
}

func (f *fakeIngester) IngestForReview(ctx context.Context, documentID uuid.UUID, _ []byte) error {
	f.mu.Lock()
	f.sleepsSeen = append(f.sleepsSeen, f.sleeps.count())
	f.mu.Unlock()

	doc, err := f.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if f.failNames[doc.Filename] {
		_ = f.docs.UpdateStatus(ctx, documentID, domain.DocumentStatusFailed, "ingestion failed")
		return errors.New("ingestion failed")
	}
	_ = f.docs.SetStructuredData(ctx, documentID, &domain.StructuredData{
		KeyFindings: "findings for " + doc.Filename,
	})
	return f.docs.UpdateStatus(ctx, documentID, domain.DocumentStatusCompleted, "")
}

type fakeSynth struct {
	mu        sync.Mutex
	summaries []domain.SourceSummary
	result    string
	err       error
}

func (f *fakeSynth) Synthesize(_ context.Context, _ string, summaries []domain.SourceSummary) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = summaries
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

type filterLLM struct {
	titles []string
	err    error
}

func (f *filterLLM) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	payload, _ := json.Marshal(map[string][]string{"titles": f.titles})
	return &llm.Response{Text: string(payload)}, nil
}

func (f *filterLLM) Provider() string { return "stub" }
func (f *filterLLM) Model() string    { return "stub-model" }

type noopPublisher struct{}

func (noopPublisher) Publish(_ context.Context, _ *domain.LifecycleEvent) error { return nil }
func (noopPublisher) Close() error                                              { return nil }

type sleepRecorder struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations = append(r.durations, d)
	return nil
}

func (r *sleepRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.durations)
}

func makePapers(n int) []domain.PaperRef {
	papers := make([]domain.PaperRef, 0, n)
	for i := 0; i < n; i++ {
		papers = append(papers, domain.PaperRef{
			Title:   fmt.Sprintf("Paper %02d", i+1),
			Authors: []string{fmt.Sprintf("Author %d", i+1)},
			Summary: "an abstract",
			PDFURL:  fmt.Sprintf("http://arxiv.org/pdf/2301.%05d", i+1),
			Year:    2020 + i%4,
		})
	}
	return papers
}

func titlesOf(papers []domain.PaperRef) []string {
	titles := make([]string, len(papers))
	for i, p := range papers {
		titles[i] = p.Title
	}
	return titles
}

type fixture struct {
	scheduler *Scheduler
	reviews   *fakeReviews
	docs      *fakeDocs
	ingester  *fakeIngester
	synth     *fakeSynth
	sleeps    *sleepRecorder
	review    *domain.LiteratureReview
}

func newFixture(t *testing.T, papers []domain.PaperRef, selected []string, cfg Config) *fixture {
	t.Helper()

	review := &domain.LiteratureReview{
		ID:      uuid.New(),
		OwnerID: "user-1",
		Topic:   "semantic chunking",
		Status:  domain.ReviewStatusPending,
	}
	reviews := newFakeReviews(review)
	docs := newFakeDocs()
	sleeps := &sleepRecorder{}
	ingester := &fakeIngester{docs: docs, sleeps: sleeps, failNames: map[string]bool{}}
	synth := &fakeSynth{result: "# Literature Review"}

	s := New(Options{
		Config:     cfg,
		Reviews:    reviews,
		Documents:  docs,
		Source:     &fakeSource{papers: papers},
		Downloader: &fakeDownloader{failURLs: map[string]bool{}},
		Ingester:   ingester,
		Synth:      synth,
		LLMClient:  &filterLLM{titles: selected},
		Publisher:  noopPublisher{},
		Metrics:    testMetrics,
		Logger:     zerolog.Nop(),
	})
	s.sleep = sleeps.sleep

	return &fixture{
		scheduler: s, reviews: reviews, docs: docs,
		ingester: ingester, synth: synth, sleeps: sleeps, review: review,
	}
}

func TestScheduler_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path walks the full state machine", func(t *testing.T) {
		papers := makePapers(3)
		fx := newFixture(t, papers, titlesOf(papers), Config{BatchSize: 5, MaxPapers: 3, CandidatePoolSize: 20})

		fx.scheduler.Run(ctx, fx.review.ID)

		assert.Equal(t, []domain.ReviewStatus{
			domain.ReviewStatusSearching,
			domain.ReviewStatusSummarizing,
			domain.ReviewStatusSynthesizing,
			domain.ReviewStatusCompleted,
		}, fx.reviews.statusHistory)
		assert.Equal(t, "# Literature Review", fx.reviews.result)

		// One batch of three papers, no cooldown.
		assert.Zero(t, fx.sleeps.count())

		// Summaries carry search-time citation metadata, in selection order.
		require.Len(t, fx.synth.summaries, 3)
		for i, s := range fx.synth.summaries {
			assert.Equal(t, papers[i].Title, s.Citation.Title)
			assert.Equal(t, papers[i].Authors, s.Citation.Authors)
			assert.Equal(t, papers[i].Year, s.Citation.Year)
			assert.NotEmpty(t, s.Structured.KeyFindings)
		}
	})

	t.Run("cooldown runs between batches and never after the last", func(t *testing.T) {
		papers := makePapers(12)
		cooldown := 60 * time.Second
		fx := newFixture(t, papers, titlesOf(papers), Config{
			BatchSize: 5, MaxPapers: 12, CandidatePoolSize: 20, BatchCooldown: cooldown,
		})

		fx.scheduler.Run(ctx, fx.review.ID)

		require.Equal(t, domain.ReviewStatusCompleted, fx.review.Status)

		// 12 papers in batches of 5 -> 3 batches -> exactly 2 cooldowns.
		require.Len(t, fx.sleeps.durations, 2)
		for _, d := range fx.sleeps.durations {
			assert.Equal(t, cooldown, d)
		}

		// Papers in batch k were all processed after exactly k cooldowns.
		require.Len(t, fx.ingester.sleepsSeen, 12)
		counts := map[int]int{}
		for _, seen := range fx.ingester.sleepsSeen {
			counts[seen]++
		}
		assert.Equal(t, map[int]int{0: 5, 1: 5, 2: 2}, counts)
	})

	t.Run("zero search results fails the job", func(t *testing.T) {
		fx := newFixture(t, nil, nil, Config{BatchSize: 5, MaxPapers: 3, CandidatePoolSize: 20})

		fx.scheduler.Run(ctx, fx.review.ID)

		assert.Equal(t, domain.ReviewStatusFailed, fx.review.Status)
		assert.Contains(t, fx.reviews.failReason, domain.ErrNoSearchResults.Error())
	})

	t.Run("filter titles matching no candidate fail the job", func(t *testing.T) {
		papers := makePapers(3)
		fx := newFixture(t, papers, []string{"A Hallucinated Title"}, Config{BatchSize: 5, MaxPapers: 3, CandidatePoolSize: 20})

		fx.scheduler.Run(ctx, fx.review.ID)

		assert.Equal(t, domain.ReviewStatusFailed, fx.review.Status)
		assert.Contains(t, fx.reviews.failReason, "matched no candidate papers")
	})

	t.Run("individual paper failures are tolerated", func(t *testing.T) {
		papers := makePapers(3)
		fx := newFixture(t, papers, titlesOf(papers), Config{BatchSize: 5, MaxPapers: 3, CandidatePoolSize: 20})
		fx.ingester.failNames[papers[1].Title+".pdf"] = true

		fx.scheduler.Run(ctx, fx.review.ID)

		assert.Equal(t, domain.ReviewStatusCompleted, fx.review.Status)
		require.Len(t, fx.synth.summaries, 2)
		assert.Equal(t, papers[0].Title, fx.synth.summaries[0].Citation.Title)
		assert.Equal(t, papers[2].Title, fx.synth.summaries[1].Citation.Title)
	})

	t.Run("zero usable summaries fails with the canonical message", func(t *testing.T) {
		papers := makePapers(2)
		fx := newFixture(t, papers, titlesOf(papers), Config{BatchSize: 5, MaxPapers: 2, CandidatePoolSize: 20})
		for _, p := range papers {
			fx.ingester.failNames[p.Title+".pdf"] = true
		}

		fx.scheduler.Run(ctx, fx.review.ID)

		assert.Equal(t, domain.ReviewStatusFailed, fx.review.Status)
		assert.Equal(t, "no papers could be processed", fx.reviews.failReason)
	})

	t.Run("synthesis failure fails the job but keeps documents", func(t *testing.T) {
		papers := makePapers(2)
		fx := newFixture(t, papers, titlesOf(papers), Config{BatchSize: 5, MaxPapers: 2, CandidatePoolSize: 20})
		fx.synth.err = domain.ErrNoThemes

		fx.scheduler.Run(ctx, fx.review.ID)

		assert.Equal(t, domain.ReviewStatusFailed, fx.review.Status)
		assert.Contains(t, fx.reviews.failReason, domain.ErrNoThemes.Error())

		// Documents created during summarization are never rolled back.
		assert.Equal(t, 2, fx.docs.count())
	})

	t.Run("selection is truncated to max papers", func(t *testing.T) {
		papers := makePapers(6)
		fx := newFixture(t, papers, titlesOf(papers), Config{BatchSize: 10, MaxPapers: 4, CandidatePoolSize: 20})

		fx.scheduler.Run(ctx, fx.review.ID)

		assert.Equal(t, domain.ReviewStatusCompleted, fx.review.Status)
		assert.Len(t, fx.synth.summaries, 4)
	})
}

func TestScheduler_SweepStale(t *testing.T) {
	ctx := context.Background()

	review := &domain.LiteratureReview{ID: uuid.New(), Topic: "t"}
	reviews := newFakeReviews(review)
	reviews.staleCount = 2

	s := New(Options{
		Config:    Config{BatchSize: 5, MaxPapers: 3, CandidatePoolSize: 20},
		Reviews:   reviews,
		Publisher: noopPublisher{},
		Metrics:   testMetrics,
		Logger:    zerolog.Nop(),
	})

	require.NoError(t, s.SweepStale(ctx))
	assert.True(t, strings.Contains(reviews.staleReason, "restart"))
}
