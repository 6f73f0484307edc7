package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/internal/types"
	"github.com/xhad/newsagent/pkg/config"
)

var (
	ErrBadIdentifier = errors.New("invalid sql identifier")
	identifierRe     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

type VectorStoreConfig struct {
	ConnString   string
	TableName    string
	VectorDim    int
	BatchSize    int
	SearchLimit  int
	TextLanguage string // text search configuration used by keyword search
}

type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

var _ types.VectorStore = (*VectorStore)(nil)

func withDefaults(config VectorStoreConfig) (VectorStoreConfig, error) {
	if config.TableName == "" {
		config.TableName = "news_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = 5
	}
	if config.TextLanguage == "" {
		config.TextLanguage = "spanish"
	}
	for _, id := range []string{config.TableName, config.TextLanguage} {
		if !identifierRe.MatchString(id) {
			return config, fmt.Errorf("%w: %q", ErrBadIdentifier, id)
		}
	}
	return config, nil
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	config, err := withDefaults(config)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func FromConfig(ctx context.Context, c config.DatabaseConfig) (*VectorStore, error) {
	return NewWithConfig(ctx, VectorStoreConfig{
		ConnString: c.URL,
		TableName:  c.TableName,
		VectorDim:  c.VectorDim,
		BatchSize:  c.BatchSize,
	})
}

func (vs *VectorStore) Config() VectorStoreConfig {
	return vs.config
}

func schemaStatements(config VectorStoreConfig) []string {
	t := config.TableName
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			chunk_id TEXT NOT NULL UNIQUE,
			document_id TEXT,
			text TEXT NOT NULL,
			source TEXT,
			url TEXT,
			title TEXT,
			date TEXT,
			metadata JSONB,
			embedding vector(%d),
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`, t, config.VectorDim),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)", t, t),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_date_idx ON %s (date)", t, t),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_metadata_idx ON %s USING GIN (metadata)", t, t),
		fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`, t, t),
	}
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	for _, stmt := range schemaStatements(vs.config) {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	logger.Debug("table %s ready", vs.config.TableName)
	return nil
}

// prepareBatch drops chunks that cannot be stored and collapses repeated
// chunk IDs. The last occurrence of an ID wins but keeps the position of
// the first.
func prepareBatch(chunks []models.EmbeddedChunk, dim int) ([]models.EmbeddedChunk, types.StoreResult) {
	var res types.StoreResult
	index := make(map[string]int, len(chunks))
	out := make([]models.EmbeddedChunk, 0, len(chunks))

	for _, c := range chunks {
		switch {
		case c.ChunkID == "":
			logger.Warn("chunk without id skipped")
			res.Skipped++
			continue
		case strings.TrimSpace(c.Text) == "":
			logger.Warn("chunk %s has no text, skipped", c.ChunkID)
			res.Skipped++
			continue
		case dim > 0 && len(c.Embedding) != dim:
			logger.Warn("chunk %s has a %d dimensional embedding, expected %d", c.ChunkID, len(c.Embedding), dim)
			res.Skipped++
			continue
		}

		if i, ok := index[c.ChunkID]; ok {
			logger.Warn("duplicate chunk id %s in batch, keeping the last occurrence", c.ChunkID)
			out[i] = c
			res.Duplicates++
			continue
		}
		index[c.ChunkID] = len(out)
		out = append(out, c)
	}
	return out, res
}

// Store upserts chunks keyed by chunk ID.
func (vs *VectorStore) Store(ctx context.Context, chunks []models.EmbeddedChunk) (types.StoreResult, error) {
	unique, res := prepareBatch(chunks, vs.config.VectorDim)

	for start := 0; start < len(unique); start += vs.config.BatchSize {
		end := min(start+vs.config.BatchSize, len(unique))
		if err := vs.upsert(ctx, unique[start:end]); err != nil {
			return res, err
		}
		res.Stored += end - start
	}

	if res.Duplicates > 0 {
		logger.Warn("%d chunks had repeated ids, only the last occurrence of each was stored", res.Duplicates)
	}
	return res, nil
}

func (vs *VectorStore) upsertSQL() string {
	return fmt.Sprintf(`
		INSERT INTO %s (chunk_id, document_id, text, source, url, title, date, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			text = EXCLUDED.text,
			source = EXCLUDED.source,
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			date = EXCLUDED.date,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = CURRENT_TIMESTAMP`,
		vs.config.TableName)
}

func (vs *VectorStore) upsert(ctx context.Context, chunks []models.EmbeddedChunk) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := vs.upsertSQL()
	batch := &pgx.Batch{}
	for _, c := range chunks {
		m := c.Metadata
		batch.Queue(stmt,
			c.ChunkID,
			m.SourceID,
			sanitizeUTF8(c.Text),
			m.Source,
			m.URL,
			sanitizeUTF8(m.Title),
			m.Date,
			m.AsMap(),
			pgvector.NewVector(c.Embedding),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for _, c := range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to upsert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query returns the chunks closest to embedding by cosine similarity.
func (vs *VectorStore) Query(ctx context.Context, embedding []float32, filter types.QueryFilter) ([]models.SearchResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = vs.config.SearchLimit
	}
	query, args := semanticSQL(vs.config.TableName, pgvector.NewVector(embedding), filter)
	return vs.search(ctx, query, args, func(r *models.SearchResult, score float64) {
		r.Similarity = score
		r.Score = score
	})
}

// KeywordSearch ranks chunks by full text match against keywords.
func (vs *VectorStore) KeywordSearch(ctx context.Context, keywords string, filter types.QueryFilter) ([]models.SearchResult, error) {
	if strings.TrimSpace(keywords) == "" {
		return []models.SearchResult{}, nil
	}
	if filter.Limit <= 0 {
		filter.Limit = vs.config.SearchLimit
	}
	query, args := keywordSQL(vs.config.TableName, vs.config.TextLanguage, keywords, filter)
	return vs.search(ctx, query, args, func(r *models.SearchResult, score float64) {
		r.Score = score
	})
}

// HybridSearch blends vector and keyword rankings.
func (vs *VectorStore) HybridSearch(ctx context.Context, query string, embedding []float32, weights HybridWeights, filter types.QueryFilter) ([]models.SearchResult, error) {
	wv, wk, err := weights.normalized()
	if err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = vs.config.SearchLimit
	}
	limit := filter.Limit
	filter.Limit = limit * 2

	vector, err := vs.Query(ctx, embedding, filter)
	if err != nil {
		return nil, err
	}
	filter.MinSimilarity = 0
	keyword, err := vs.KeywordSearch(ctx, query, filter)
	if err != nil {
		return nil, err
	}
	return mergeHybrid(vector, keyword, wv, wk, limit), nil
}

func (vs *VectorStore) search(ctx context.Context, query string, args []any, setScore func(*models.SearchResult, float64)) ([]models.SearchResult, error) {
	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	results := []models.SearchResult{}
	for rows.Next() {
		var (
			r     models.SearchResult
			score float64
		)
		if err := rows.Scan(&r.ChunkID, &r.Text, &r.Source, &r.URL, &r.Title, &r.Date, &r.Metadata, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		setScore(&r, score)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return results, nil
}

func (vs *VectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := vs.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", vs.config.TableName)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// DatabaseInfo describes the server backing the store.
type DatabaseInfo struct {
	Version       string `json:"version"`
	VectorVersion string `json:"vector_version"`
	Table         string `json:"table"`
	Chunks        int64  `json:"chunks"`
}

func (vs *VectorStore) Info(ctx context.Context) (DatabaseInfo, error) {
	info := DatabaseInfo{Table: vs.config.TableName}
	if err := vs.pool.QueryRow(ctx, "SELECT version()").Scan(&info.Version); err != nil {
		return info, fmt.Errorf("failed to read server version: %w", err)
	}
	err := vs.pool.QueryRow(ctx, "SELECT extversion FROM pg_extension WHERE extname = 'vector'").Scan(&info.VectorVersion)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return info, fmt.Errorf("failed to read pgvector version: %w", err)
	}
	n, err := vs.Count(ctx)
	if err != nil {
		return info, err
	}
	info.Chunks = n
	return info, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// sanitizeUTF8 drops invalid byte sequences, which postgres rejects.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
