package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the research assistant service.
// Metrics are organized by subsystem: documents, chunking, reviews, and LLM
// operations. All counters and histograms are registered via promauto for
// automatic registration with the default Prometheus registry.
type Metrics struct {
	// DocumentsIngested counts documents that completed ingestion successfully.
	DocumentsIngested prometheus.Counter

	// DocumentsFailed counts documents whose ingestion failed.
	DocumentsFailed prometheus.Counter

	// IngestionDuration observes end-to-end document ingestion duration in seconds.
	IngestionDuration prometheus.Histogram

	// ChunksCreated counts text chunks produced across all documents.
	ChunksCreated prometheus.Counter

	// ChunksPerDocument observes the distribution of chunk counts per document.
	ChunksPerDocument prometheus.Histogram

	// CitationsExtracted counts citation records persisted across all documents.
	CitationsExtracted prometheus.Counter

	// ReviewsStarted counts literature review jobs dispatched.
	ReviewsStarted prometheus.Counter

	// ReviewsCompleted counts review jobs that finished successfully.
	ReviewsCompleted prometheus.Counter

	// ReviewsFailed counts review jobs that ended in failure.
	ReviewsFailed prometheus.Counter

	// ReviewsSwept counts jobs force-failed by the startup sweep.
	ReviewsSwept prometheus.Counter

	// ReviewDuration observes the end-to-end duration of review jobs in seconds.
	ReviewDuration prometheus.Histogram

	// BatchCooldowns counts inter-batch cooldown waits during summarization.
	BatchCooldowns prometheus.Counter

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation and model.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by operation.
	LLMRequestDuration *prometheus.HistogramVec

	// EmbeddingRequestsTotal counts embedding API requests, labeled by provider.
	EmbeddingRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		DocumentsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Total number of documents ingested successfully",
		}),
		DocumentsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_failed_total",
			Help:      "Total number of documents whose ingestion failed",
		}),
		IngestionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "End-to-end document ingestion duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		ChunksCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_created_total",
			Help:      "Total number of text chunks produced",
		}),
		ChunksPerDocument: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunks_per_document",
			Help:      "Distribution of chunk counts per document",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		CitationsExtracted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citations_extracted_total",
			Help:      "Total number of citation records persisted",
		}),
		ReviewsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_started_total",
			Help:      "Total number of literature review jobs started",
		}),
		ReviewsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_completed_total",
			Help:      "Total number of literature review jobs completed successfully",
		}),
		ReviewsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_failed_total",
			Help:      "Total number of literature review jobs that failed",
		}),
		ReviewsSwept: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_swept_total",
			Help:      "Total number of review jobs force-failed by the startup sweep",
		}),
		ReviewDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "review_duration_seconds",
			Help:      "End-to-end literature review duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		BatchCooldowns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_cooldowns_total",
			Help:      "Total number of inter-batch cooldown waits during summarization",
		}),
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM API requests",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM API requests",
		}, []string{"operation", "model"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM API request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"operation"}),
		EmbeddingRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding API requests",
		}, []string{"provider"}),
	}
}
