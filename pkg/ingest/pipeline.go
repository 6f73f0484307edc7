// Package ingest loads cleaned documents and runs them through chunking,
// embedding and storage.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/internal/types"
	"github.com/xhad/newsagent/pkg/dedup"
)

type Pipeline struct {
	Chunker  types.Chunker
	Embedder types.Embedder
	Store    types.VectorStore

	// Dedup drops near-duplicate documents before chunking when set.
	Dedup *dedup.Deduplicator

	BatchSize  int
	OnProgress func(done, total int)
}

type Summary struct {
	Documents          int           `json:"documents"`
	DocumentsSkipped   int           `json:"documents_skipped"`
	DocumentDuplicates int           `json:"document_duplicates"`
	Chunks             int           `json:"chunks"`
	ChunksStored       int           `json:"chunks_stored"`
	ChunkDuplicates    int           `json:"chunk_duplicates"`
	ChunksSkipped      int           `json:"chunks_skipped"`
	Duration           time.Duration `json:"duration"`
}

// Run ingests docs. A failing batch stops the run; the summary reports what
// was stored before it.
func (p *Pipeline) Run(ctx context.Context, docs []models.Document) (Summary, error) {
	start := time.Now()
	sum := Summary{Documents: len(docs)}

	if p.Dedup != nil {
		res := p.Dedup.Deduplicate(docs)
		docs = res.Unique
		sum.DocumentDuplicates = res.Stats.Duplicate
	}

	chunks, stats := p.Chunker.Process(docs)
	sum.DocumentsSkipped = stats.Skipped
	sum.Chunks = len(chunks)

	size := p.BatchSize
	if size <= 0 {
		size = 20
	}

	for from := 0; from < len(chunks); from += size {
		if err := ctx.Err(); err != nil {
			sum.Duration = time.Since(start)
			return sum, err
		}
		to := min(from+size, len(chunks))
		batch := chunks[from:to]

		res, err := p.storeBatch(ctx, batch)
		sum.ChunksStored += res.Stored
		sum.ChunkDuplicates += res.Duplicates
		sum.ChunksSkipped += res.Skipped
		if err != nil {
			sum.Duration = time.Since(start)
			return sum, fmt.Errorf("failed to ingest chunks %d-%d: %w", from, to, err)
		}

		if p.OnProgress != nil {
			p.OnProgress(to, len(chunks))
		}
	}

	sum.Duration = time.Since(start)
	logger.Info("ingested %d documents: %d chunks stored, %d duplicate ids, %d skipped in %s",
		sum.Documents, sum.ChunksStored, sum.ChunkDuplicates, sum.ChunksSkipped, sum.Duration.Round(time.Millisecond))
	return sum, nil
}

func (p *Pipeline) storeBatch(ctx context.Context, batch []models.Chunk) (types.StoreResult, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := p.Embedder.CreateEmbedding(ctx, texts)
	if err != nil {
		return types.StoreResult{}, fmt.Errorf("failed to embed: %w", err)
	}
	if len(vectors) != len(batch) {
		return types.StoreResult{}, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
	}

	embedded := make([]models.EmbeddedChunk, len(batch))
	for i, c := range batch {
		embedded[i] = models.EmbeddedChunk{Chunk: c, Embedding: vectors[i]}
	}

	res, err := p.Store.Store(ctx, embedded)
	if err != nil {
		return res, fmt.Errorf("failed to store: %w", err)
	}
	return res, nil
}
