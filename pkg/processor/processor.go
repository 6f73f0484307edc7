package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/internal/types"
	"github.com/xhad/newsagent/pkg/config"
)

// DateLayout is the DDMMYYYY layout used for document dates.
const DateLayout = "02012006"

type ProcessorConfig struct {
	ChunkSize     int
	ChunkOverlap  *int // nil means the default, zero or negative disables overlap
	Separators    []string
	KeepSeparator *bool
	DefaultDate   string

	// Now and Suffix are injectable for tests. Suffix returns the random
	// tail of a chunk id.
	Now    func() time.Time
	Suffix func() string
}

type Processor struct {
	config ProcessorConfig
}

var _ types.Chunker = (*Processor)(nil)

func NewWithConfig(config ProcessorConfig) *Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 2000
	}
	overlap := 500
	if config.ChunkOverlap != nil {
		overlap = max(*config.ChunkOverlap, 0)
	}
	if overlap >= config.ChunkSize {
		clamped := config.ChunkSize / 4
		logger.Warn("chunk overlap %d not below chunk size %d, using %d", overlap, config.ChunkSize, clamped)
		overlap = clamped
	}
	config.ChunkOverlap = &overlap

	seps := make([]string, 0, len(config.Separators))
	for _, s := range config.Separators {
		if s != "" {
			seps = append(seps, s)
		}
	}
	if len(config.Separators) == 0 {
		seps = []string{"\n\n", "\n", ". ", " "}
	}
	config.Separators = seps

	if config.KeepSeparator == nil {
		keep := true
		config.KeepSeparator = &keep
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Suffix == nil {
		config.Suffix = func() string { return uuid.New().String()[:8] }
	}
	if config.DefaultDate == "" {
		config.DefaultDate = config.Now().Format(DateLayout)
	}

	return &Processor{config: config}
}

// FromChunking maps the file configuration onto a ProcessorConfig.
func FromChunking(c config.ChunkingConfig) ProcessorConfig {
	return ProcessorConfig{
		ChunkSize:     c.ChunkSizeChars,
		ChunkOverlap:  c.ChunkOverlapChars,
		Separators:    c.Separators,
		KeepSeparator: c.KeepSeparator,
		DefaultDate:   c.DefaultDate,
	}
}

// NewFromConfigFile builds a Processor from a chunking config file. A file
// that is missing, unparseable or invalid is an error.
func NewFromConfigFile(path string) (*Processor, error) {
	c, err := config.LoadChunking(path)
	if err != nil {
		return nil, err
	}
	if verrs := c.Validate(); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return nil, fmt.Errorf("invalid chunking config: %w", errors.Join(errs...))
	}
	return NewWithConfig(FromChunking(c)), nil
}

func (p *Processor) Config() ProcessorConfig {
	return p.config
}

// SetDefaultDate changes the date used for documents without one. Callers
// switch it between batches, never during Process.
func (p *Processor) SetDefaultDate(date string) {
	p.config.DefaultDate = date
}

// Process chunks every document. Documents with blank text are skipped and
// counted.
func (p *Processor) Process(docs []models.Document) ([]models.Chunk, types.ChunkStats) {
	var chunks []models.Chunk
	var stats types.ChunkStats

	for _, doc := range docs {
		docChunks := p.chunkDocument(doc)
		if len(docChunks) == 0 {
			logger.Debug("skipping empty document %q", doc.SourceID())
			stats.Skipped++
			continue
		}
		chunks = append(chunks, docChunks...)
		stats.Processed++
	}
	stats.Chunks = len(chunks)

	logger.Info("chunked %d documents into %d chunks, %d skipped", stats.Processed, stats.Chunks, stats.Skipped)
	return chunks, stats
}

// ChunkText chunks a single string. meta may carry the same keys as a
// cleaned document; source defaults to "text".
func (p *Processor) ChunkText(text string, meta map[string]interface{}) []models.Chunk {
	doc := documentFromMap(meta)
	doc.Text = text
	if doc.Source == "" {
		doc.Source = models.SourceText
	}
	return p.chunkDocument(doc)
}

func (p *Processor) chunkDocument(doc models.Document) []models.Chunk {
	if doc.IsEmpty() {
		return nil
	}

	texts := p.SplitText(doc.Text)
	if len(texts) == 0 {
		return nil
	}

	now := p.config.Now()
	base := p.baseMetadata(doc, now)
	total := len(texts)

	chunks := make([]models.Chunk, 0, total)
	for i, text := range texts {
		id := fmt.Sprintf("%s_%d_%d_%s", base.Source, now.Unix(), i, p.config.Suffix())

		meta := base
		meta.ChunkIndex = i
		meta.TotalChunks = total
		meta.ChunkID = id

		chunks = append(chunks, models.Chunk{
			ChunkID:     id,
			Text:        text,
			ChunkIndex:  i,
			TotalChunks: total,
			Metadata:    meta,
		})
	}
	return chunks
}

func (p *Processor) baseMetadata(doc models.Document, now time.Time) models.ChunkMetadata {
	meta := models.ChunkMetadata{
		Source:         doc.SourceLabel(),
		URL:            doc.URL,
		Title:          doc.Title,
		Date:           doc.DateValue(),
		ProcessingDate: now.Format(time.RFC3339),
		SourceID:       doc.SourceID(),
	}
	if meta.Date == "" {
		meta.Date = p.config.DefaultDate
	}

	switch meta.Source {
	case models.SourceHTML:
		relevance := 0.0
		if doc.Relevance != nil {
			relevance = *doc.Relevance
		}
		meta.Relevance = &relevance
	case models.SourceImage:
		meta.ImageID = doc.ImageID
	}
	return meta
}

func documentFromMap(meta map[string]interface{}) models.Document {
	str := func(key string) string {
		if v, ok := meta[key]; ok && v != nil {
			if s, ok := v.(string); ok {
				return s
			}
			return fmt.Sprint(v)
		}
		return ""
	}

	doc := models.Document{
		Source:  str("source"),
		URL:     str("url"),
		Title:   str("title"),
		Fecha:   str("fecha"),
		Date:    str("date"),
		ImageID: str("image_id"),
		ID:      str("id"),
	}

	switch v := meta["relevance"].(type) {
	case float64:
		doc.Relevance = &v
	case float32:
		f := float64(v)
		doc.Relevance = &f
	case int:
		f := float64(v)
		doc.Relevance = &f
	}
	return doc
}
