package models

// ChunkMetadata is the provenance attached to every chunk.
type ChunkMetadata struct {
	Source         string   `json:"source"`
	URL            string   `json:"url"`
	Title          string   `json:"title"`
	Date           string   `json:"date"`
	ProcessingDate string   `json:"processing_date"`
	SourceID       string   `json:"source_id"`
	Relevance      *float64 `json:"relevance,omitempty"`
	ImageID        string   `json:"image_id,omitempty"`
	ChunkIndex     int      `json:"chunk_index"`
	TotalChunks    int      `json:"total_chunks"`
	ChunkID        string   `json:"chunk_id"`
}

// AsMap renders the metadata for a JSONB column.
func (m ChunkMetadata) AsMap() map[string]interface{} {
	out := map[string]interface{}{
		"source":          m.Source,
		"url":             m.URL,
		"title":           m.Title,
		"date":            m.Date,
		"processing_date": m.ProcessingDate,
		"source_id":       m.SourceID,
		"chunk_index":     m.ChunkIndex,
		"total_chunks":    m.TotalChunks,
		"chunk_id":        m.ChunkID,
	}
	if m.Relevance != nil {
		out["relevance"] = *m.Relevance
	}
	if m.ImageID != "" {
		out["image_id"] = m.ImageID
	}
	return out
}

type Chunk struct {
	ChunkID     string        `json:"chunk_id"`
	Text        string        `json:"text"`
	ChunkIndex  int           `json:"chunk_index"`
	TotalChunks int           `json:"total_chunks"`
	Metadata    ChunkMetadata `json:"metadata"`
}

type EmbeddedChunk struct {
	Chunk
	Embedding []float32
}

// SearchResult is a stored chunk returned by a search. Score is the
// combined rank of a hybrid search and equals Similarity otherwise.
type SearchResult struct {
	ChunkID    string                 `json:"chunk_id"`
	Text       string                 `json:"text"`
	Source     string                 `json:"source"`
	URL        string                 `json:"url"`
	Title      string                 `json:"title"`
	Date       string                 `json:"date"`
	Metadata   map[string]interface{} `json:"metadata"`
	Similarity float64                `json:"similarity"`
	Score      float64                `json:"score"`
}
