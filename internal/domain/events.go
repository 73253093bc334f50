package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for lifecycle events published to Kafka.
const (
	EventTypeDocumentCompleted = "document.completed"
	EventTypeDocumentFailed    = "document.failed"
	EventTypeReviewStarted     = "review.started"
	EventTypeReviewCompleted   = "review.completed"
	EventTypeReviewFailed      = "review.failed"
)

// Aggregate type constants for lifecycle events.
const (
	AggregateTypeDocument = "document"
	AggregateTypeReview   = "literature_review"
)

// LifecycleEvent is a domain event describing a document or review state change.
type LifecycleEvent struct {
	EventID       string          `json:"event_id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewLifecycleEvent creates a lifecycle event with a serialized payload.
func NewLifecycleEvent(eventType, aggregateType string, aggregateID uuid.UUID, payload interface{}) (*LifecycleEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &LifecycleEvent{
		EventID:       uuid.New().String(),
		AggregateID:   aggregateID.String(),
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payloadBytes,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// DocumentEventPayload is the payload for document lifecycle events.
type DocumentEventPayload struct {
	DocumentID uuid.UUID      `json:"document_id"`
	Filename   string         `json:"filename"`
	Status     DocumentStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
}

// ReviewEventPayload is the payload for review lifecycle events.
type ReviewEventPayload struct {
	ReviewID uuid.UUID    `json:"review_id"`
	Topic    string       `json:"topic"`
	Status   ReviewStatus `json:"status"`
	Error    string       `json:"error,omitempty"`
}
