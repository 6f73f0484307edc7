package types

import (
	"context"

	"github.com/xhad/newsagent/internal/models"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorStore interface {
	Store(ctx context.Context, chunks []models.EmbeddedChunk) (StoreResult, error)
	Query(ctx context.Context, embedding []float32, filter QueryFilter) ([]models.SearchResult, error)
	Count(ctx context.Context) (int64, error)
	Close()
}

// StoreResult reports what an upsert batch did.
type StoreResult struct {
	Stored     int
	Duplicates int
	Skipped    int
}

type QueryFilter struct {
	Limit         int
	Source        string
	Date          string
	URL           string
	MinSimilarity float64
}

// Chunker splits documents into chunks.
type Chunker interface {
	Process(docs []models.Document) ([]models.Chunk, ChunkStats)
}

type ChunkStats struct {
	Processed int
	Skipped   int
	Chunks    int
}
