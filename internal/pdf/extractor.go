package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrExtractionFailed is returned when the extraction server rejects the document.
var ErrExtractionFailed = errors.New("pdf: text extraction failed")

// TextExtractor extracts plain text from PDF bytes.
type TextExtractor interface {
	ExtractText(ctx context.Context, content []byte) (string, error)
}

// TikaExtractor extracts text from PDFs via an Apache Tika server's /tika
// endpoint. Tika handles malformed scholarly PDFs better than most native
// parsers, at the cost of a network hop.
type TikaExtractor struct {
	httpClient *http.Client
	address    string
}

// TikaConfig holds Tika extractor configuration.
type TikaConfig struct {
	// Address is the Tika server base URL (e.g. http://localhost:9998).
	Address string
	// Timeout is the per-extraction timeout. Default: 120 seconds.
	Timeout time.Duration
}

// NewTikaExtractor creates an extractor backed by an Apache Tika server.
func NewTikaExtractor(cfg TikaConfig) *TikaExtractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &TikaExtractor{
		httpClient: &http.Client{Timeout: timeout},
		address:    cfg.Address,
	}
}

// ExtractText sends the PDF bytes to the Tika server and returns the plain
// text. An empty result is returned as-is; callers decide whether an empty
// document is an error.
func (e *TikaExtractor) ExtractText(ctx context.Context, content []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.address+"/tika", bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("pdf: failed to create extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Accept", "text/plain")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 200<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrExtractionFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrExtractionFailed, resp.StatusCode, truncateBody(body))
	}

	return string(body), nil
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
