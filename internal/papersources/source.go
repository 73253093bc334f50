// Package papersources provides clients for searching academic paper databases.
//
// Each academic database implements the PaperSource interface, allowing the
// review scheduler to search for candidate papers with a unified API.
package papersources

import (
	"context"

	"github.com/scholarsynth/research-assistant-service/internal/domain"
)

// SearchParams defines the parameters for searching academic papers.
type SearchParams struct {
	// Query is the search query string (required).
	Query string

	// MaxResults limits the number of papers returned in a single request.
	// A value of 0 uses the source's default limit.
	MaxResults int

	// Offset specifies the starting position for paginated results.
	Offset int
}

// PaperSource defines the interface that all paper source clients implement.
//
// Implementations should:
//   - Respect context cancellation
//   - Apply rate limiting as needed
//   - Transform source-specific responses to domain.PaperRef
//   - Include appropriate error wrapping with source context
type PaperSource interface {
	// Search queries the paper source for papers matching the given parameters.
	Search(ctx context.Context, params SearchParams) ([]domain.PaperRef, error)

	// Name returns a human-readable name for this paper source.
	Name() string
}
