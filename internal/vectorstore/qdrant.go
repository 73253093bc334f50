// Package vectorstore provides a Qdrant-backed store for chunk embedding
// vectors. Chunk text and ordinals live in Postgres; only the vectors and a
// small payload for attribution live in Qdrant, keyed by chunk UUID.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
)

// Config holds the configuration for connecting to a Qdrant instance.
type Config struct {
	// Address is the host:port of the Qdrant gRPC endpoint (e.g. "localhost:6334").
	Address string
	// CollectionName is the Qdrant collection to use (e.g. "chunk_embeddings").
	CollectionName string
	// VectorSize is the dimensionality of the embedding vectors (e.g. 384 for all-MiniLM).
	VectorSize uint64
}

// Validate checks that all required Config fields are set.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("vectorstore config: address is required")
	}
	if c.CollectionName == "" {
		return fmt.Errorf("vectorstore config: collection name is required")
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("vectorstore config: vector size must be > 0")
	}
	return nil
}

// ChunkPoint represents one chunk's embedding vector to be stored.
type ChunkPoint struct {
	// ChunkID is the chunk's unique identifier, used as the Qdrant point ID.
	ChunkID uuid.UUID
	// DocumentID is the owning document, stored in the point payload.
	DocumentID uuid.UUID
	// Ordinal is the chunk's position within the document.
	Ordinal int
	// Embedding is the dense vector representation of the chunk text.
	Embedding []float32
}

// SearchResult represents a single result from a vector similarity search.
type SearchResult struct {
	// ChunkID is the unique identifier of the matched chunk.
	ChunkID uuid.UUID
	// DocumentID is the owning document from the point payload.
	DocumentID uuid.UUID
	// Score is the cosine similarity score (higher is more similar).
	Score float32
}

// VectorStore defines the interface for chunk vector storage and retrieval.
type VectorStore interface {
	// EnsureCollection creates the collection if it does not already exist.
	EnsureCollection(ctx context.Context) error
	// UpsertChunks inserts or updates a batch of chunk embeddings.
	UpsertChunks(ctx context.Context, points []ChunkPoint) error
	// Search finds the topK most similar chunks to the query vector.
	Search(ctx context.Context, vector []float32, topK uint64) ([]SearchResult, error)
	// SearchDocument finds the topK most similar chunks within one document.
	SearchDocument(ctx context.Context, documentID uuid.UUID, vector []float32, topK uint64) ([]SearchResult, error)
	// DeleteDocument removes all points belonging to a document.
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error
	// Close releases the underlying gRPC connection.
	Close() error
}

// Compile-time check that Client implements VectorStore.
var _ VectorStore = (*Client)(nil)

// Client is a Qdrant vector store client that implements VectorStore via gRPC.
type Client struct {
	client         *pb.Client
	collectionName string
	vectorSize     uint64
}

// NewClient creates a new Qdrant client by dialing the configured gRPC address.
// The connection uses insecure credentials, suitable for internal network deployments.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	host, port, err := parseAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: invalid address %q: %w", cfg.Address, err)
	}

	qdrantClient, err := pb.NewClient(&pb.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: failed to create client: %w", err)
	}

	return &Client{
		client:         qdrantClient,
		collectionName: cfg.CollectionName,
		vectorSize:     cfg.VectorSize,
	}, nil
}

// EnsureCollection checks whether the configured collection exists and creates
// it with cosine distance if it does not.
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.client.CollectionExists(ctx, c.collectionName)
	if err != nil {
		return fmt.Errorf("vectorstore: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = c.client.CreateCollection(ctx, &pb.CreateCollection{
		CollectionName: c.collectionName,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     c.vectorSize,
			Distance: pb.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: failed to create collection %q: %w", c.collectionName, err)
	}

	return nil
}

// UpsertChunks inserts or updates a batch of chunk embedding points. Chunk
// UUIDs are used as Qdrant point IDs, making the operation idempotent.
func (c *Client) UpsertChunks(ctx context.Context, points []ChunkPoint) error {
	if len(points) == 0 {
		return nil
	}

	pbPoints := make([]*pb.PointStruct, 0, len(points))
	for _, point := range points {
		pbPoints = append(pbPoints, &pb.PointStruct{
			Id:      pb.NewIDUUID(point.ChunkID.String()),
			Vectors: pb.NewVectors(point.Embedding...),
			Payload: pb.NewValueMap(map[string]any{
				"document_id": point.DocumentID.String(),
				"ordinal":     int64(point.Ordinal),
			}),
		})
	}

	wait := true
	_, err := c.client.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: c.collectionName,
		Wait:           &wait,
		Points:         pbPoints,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: failed to upsert %d points: %w", len(points), err)
	}

	return nil
}

// Search performs a nearest-neighbor vector search returning up to topK
// results ordered by cosine similarity (descending).
func (c *Client) Search(ctx context.Context, vector []float32, topK uint64) ([]SearchResult, error) {
	withPayload := pb.NewWithPayload(true)
	scored, err := c.client.Query(ctx, &pb.QueryPoints{
		CollectionName: c.collectionName,
		Query:          pb.NewQueryDense(vector),
		Limit:          &topK,
		WithPayload:    withPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search failed: %w", err)
	}

	return collectResults(scored)
}

// SearchDocument performs a nearest-neighbor search restricted to the points
// of a single document via a payload filter.
func (c *Client) SearchDocument(ctx context.Context, documentID uuid.UUID, vector []float32, topK uint64) ([]SearchResult, error) {
	withPayload := pb.NewWithPayload(true)
	scored, err := c.client.Query(ctx, &pb.QueryPoints{
		CollectionName: c.collectionName,
		Query:          pb.NewQueryDense(vector),
		Limit:          &topK,
		WithPayload:    withPayload,
		Filter: &pb.Filter{
			Must: []*pb.Condition{
				pb.NewMatch("document_id", documentID.String()),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: document search failed: %w", err)
	}

	return collectResults(scored)
}

// collectResults maps scored Qdrant points to SearchResults, skipping points
// without a UUID identifier.
func collectResults(scored []*pb.ScoredPoint) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(scored))
	for _, sp := range scored {
		if sp.Id == nil {
			continue
		}
		uuidStr := sp.Id.GetUuid()
		if uuidStr == "" {
			continue
		}
		chunkID, err := uuid.Parse(uuidStr)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: invalid UUID in search result %q: %w", uuidStr, err)
		}

		result := SearchResult{
			ChunkID: chunkID,
			Score:   sp.Score,
		}
		if docVal, ok := sp.Payload["document_id"]; ok {
			if docID, err := uuid.Parse(docVal.GetStringValue()); err == nil {
				result.DocumentID = docID
			}
		}
		results = append(results, result)
	}

	return results, nil
}

// DeleteDocument removes all points whose payload references the document.
func (c *Client) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	wait := true
	_, err := c.client.Delete(ctx, &pb.DeletePoints{
		CollectionName: c.collectionName,
		Wait:           &wait,
		Points: pb.NewPointsSelectorFilter(&pb.Filter{
			Must: []*pb.Condition{
				pb.NewMatch("document_id", documentID.String()),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: failed to delete points for document %s: %w", documentID, err)
	}
	return nil
}

// Close releases the gRPC connection to Qdrant.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// parseAddress splits an address string of the form "host:port" into its components.
func parseAddress(addr string) (string, int, error) {
	host, portStr, err := splitHostPort(addr)
	if err != nil {
		return "", 0, err
	}

	port, err := parsePort(portStr)
	if err != nil {
		return "", 0, err
	}

	return host, port, nil
}

// splitHostPort splits an address into host and port strings on the last
// colon, which also handles bracketed IPv6 addresses.
func splitHostPort(addr string) (string, string, error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("missing port in address %q", addr)
}

// parsePort converts a port string to an integer.
func parsePort(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty port")
	}
	var port int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid port %q", s)
		}
		port = port*10 + int(c-'0')
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}
