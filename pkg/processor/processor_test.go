package processor_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/pkg/processor"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func overlap(n int) *int { return &n }

func newTestProcessor(config processor.ProcessorConfig) *processor.Processor {
	n := 0
	config.Now = func() time.Time { return fixedNow }
	config.Suffix = func() string {
		n++
		return fmt.Sprintf("%08x", n)
	}
	return processor.NewWithConfig(config)
}

func TestLongRunWithoutSeparators(t *testing.T) {
	p := newTestProcessor(processor.ProcessorConfig{ChunkSize: 2000, ChunkOverlap: overlap(500)})

	chunks, stats := p.Process([]models.Document{
		{Text: strings.Repeat("A", 2500), Source: "html"},
	})

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, len(chunks), stats.Chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 2000)
	}

	first, second := chunks[0].Text, chunks[1].Text
	require.GreaterOrEqual(t, len(second), 500)
	assert.Equal(t, first[len(first)-500:], second[:500])
}

func TestDefaults(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})
	cfg := p.Config()

	assert.Equal(t, 2000, cfg.ChunkSize)
	assert.Equal(t, 500, *cfg.ChunkOverlap)
	assert.Equal(t, []string{"\n\n", "\n", ". ", " "}, cfg.Separators)
	assert.True(t, *cfg.KeepSeparator)
	assert.Len(t, cfg.DefaultDate, 8)
}

func TestOverlapClamped(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 100, ChunkOverlap: overlap(100)})
	assert.Equal(t, 25, *p.Config().ChunkOverlap)

	p = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 100, ChunkOverlap: overlap(-1)})
	assert.Equal(t, 0, *p.Config().ChunkOverlap)
}

func TestEmptyDocumentsSkipped(t *testing.T) {
	p := newTestProcessor(processor.ProcessorConfig{})

	chunks, stats := p.Process([]models.Document{
		{Text: ""},
		{Text: "   \n\t  "},
		{Text: "Sunass supervisa la calidad del agua.", Source: "html"},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, "Sunass supervisa la calidad del agua.", chunks[0].Text)
}

func TestChunkMetadata(t *testing.T) {
	relevance := 0.7
	p := newTestProcessor(processor.ProcessorConfig{
		ChunkSize:    60,
		ChunkOverlap: overlap(10),
		DefaultDate:  "01012024",
	})

	text := strings.Repeat("La empresa prestadora anuncio cortes de agua. ", 6)
	chunks, _ := p.Process([]models.Document{
		{Text: text, Source: "html", URL: "https://news.test/a", Title: "Cortes", Relevance: &relevance},
	})

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, len(chunks), c.TotalChunks)
		assert.Equal(t, fmt.Sprintf("html_%d_%d_%08x", fixedNow.Unix(), i, i+1), c.ChunkID)

		m := c.Metadata
		assert.Equal(t, "html", m.Source)
		assert.Equal(t, "https://news.test/a", m.URL)
		assert.Equal(t, "Cortes", m.Title)
		assert.Equal(t, "01012024", m.Date)
		assert.Equal(t, "https://news.test/a", m.SourceID)
		assert.Equal(t, fixedNow.Format(time.RFC3339), m.ProcessingDate)
		require.NotNil(t, m.Relevance)
		assert.Equal(t, 0.7, *m.Relevance)
		assert.Empty(t, m.ImageID)
		assert.Equal(t, c.ChunkID, m.ChunkID)
		assert.Equal(t, c.ChunkIndex, m.ChunkIndex)
		assert.Equal(t, c.TotalChunks, m.TotalChunks)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 60)
	}
}

func TestSourceSpecificMetadata(t *testing.T) {
	p := newTestProcessor(processor.ProcessorConfig{DefaultDate: "01012024"})

	chunks, _ := p.Process([]models.Document{
		{Text: "Foto del reservorio", Source: "image", ImageID: "img-7", ID: "99", Fecha: "05032024"},
		{Text: "Comunicado oficial", Source: "html"},
		{Text: "Post en redes", ID: "post-1"},
	})
	require.Len(t, chunks, 3)

	img := chunks[0].Metadata
	assert.Equal(t, "img-7", img.ImageID)
	assert.Equal(t, "img-7", img.SourceID)
	assert.Equal(t, "05032024", img.Date)
	assert.Nil(t, img.Relevance)

	html := chunks[1].Metadata
	require.NotNil(t, html.Relevance)
	assert.Equal(t, 0.0, *html.Relevance)

	unknown := chunks[2].Metadata
	assert.Equal(t, "unknown", unknown.Source)
	assert.Equal(t, "post-1", unknown.SourceID)
	assert.True(t, strings.HasPrefix(chunks[2].ChunkID, "unknown_"))
}

func TestChunkText(t *testing.T) {
	p := newTestProcessor(processor.ProcessorConfig{DefaultDate: "02022024"})

	chunks := p.ChunkText("Texto suelto para indexar.", map[string]interface{}{"title": "Nota", "id": 12})
	require.Len(t, chunks, 1)
	assert.Equal(t, "text", chunks[0].Metadata.Source)
	assert.Equal(t, "Nota", chunks[0].Metadata.Title)
	assert.Equal(t, "12", chunks[0].Metadata.SourceID)
	assert.Equal(t, "02022024", chunks[0].Metadata.Date)

	chunks = p.ChunkText("Imagen", map[string]interface{}{"source": "image", "image_id": "abc"})
	require.Len(t, chunks, 1)
	assert.Equal(t, "abc", chunks[0].Metadata.ImageID)

	assert.Empty(t, p.ChunkText("  ", nil))
}

func TestChunkIDsUnique(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 20, ChunkOverlap: overlap(5)})

	chunks := p.ChunkText(strings.Repeat("palabra ", 50), map[string]interface{}{"source": "html"})
	seen := make(map[string]bool)
	for _, c := range chunks {
		assert.False(t, seen[c.ChunkID], c.ChunkID)
		seen[c.ChunkID] = true
	}
}

func TestSplitText(t *testing.T) {
	keep := true
	drop := false

	tests := []struct {
		name   string
		config processor.ProcessorConfig
		text   string
		want   []string
	}{
		{
			name:   "fits in one chunk",
			config: processor.ProcessorConfig{ChunkSize: 100, ChunkOverlap: overlap(10)},
			text:   "short text. with separators\n\nhere",
			want:   []string{"short text. with separators\n\nhere"},
		},
		{
			name:   "keep separator",
			config: processor.ProcessorConfig{ChunkSize: 9, ChunkOverlap: overlap(-1), Separators: []string{" "}, KeepSeparator: &keep},
			text:   "aaaa bbbb cccc",
			want:   []string{"aaaa bbbb", " cccc"},
		},
		{
			name:   "drop separator",
			config: processor.ProcessorConfig{ChunkSize: 9, ChunkOverlap: overlap(-1), Separators: []string{" "}, KeepSeparator: &drop},
			text:   "aaaa bbbb cccc",
			want:   []string{"aaaa bbbb", "cccc"},
		},
		{
			name:   "overlap at piece boundaries",
			config: processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: overlap(5), Separators: []string{" "}},
			text:   "aaaa bbbb cccc dddd",
			want:   []string{"aaaa bbbb", " bbbb cccc", " cccc dddd"},
		},
		{
			name:   "falls through separator priority",
			config: processor.ProcessorConfig{ChunkSize: 30, ChunkOverlap: overlap(-1)},
			text:   "Short para.\n\nThis is sentence one. This is sentence two.",
			want:   []string{"Short para.\n", "\nThis is sentence one", ". This is sentence two."},
		},
		{
			name:   "hard slices multibyte runes",
			config: processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: overlap(5), Separators: []string{"\n"}},
			text:   strings.Repeat("ñ", 25),
			want: []string{
				strings.Repeat("ñ", 10),
				strings.Repeat("ñ", 10),
				strings.Repeat("ñ", 10),
				strings.Repeat("ñ", 10),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := processor.NewWithConfig(tt.config)
			assert.Equal(t, tt.want, p.SplitText(tt.text))
		})
	}
}

func TestNewFromConfigFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "chunking.yaml")
	require.NoError(t, os.WriteFile(good, []byte("chunking:\n  chunk_size_chars: 300\n  chunk_overlap_chars: 50\n  keep_separator: false\n"), 0644))

	p, err := processor.NewFromConfigFile(good)
	require.NoError(t, err)
	assert.Equal(t, 300, p.Config().ChunkSize)
	assert.Equal(t, 50, *p.Config().ChunkOverlap)
	assert.False(t, *p.Config().KeepSeparator)

	_, err = processor.NewFromConfigFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = processor.NewFromConfigFile("")
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("chunk_size_chars: 100\nchunk_overlap_chars: 100\n"), 0644))
	_, err = processor.NewFromConfigFile(invalid)
	assert.ErrorContains(t, err, "chunk_overlap_chars")
}

func TestZeroOverlapFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunking.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size_chars: 1000\nchunk_overlap_chars: 0\n"), 0644))

	p, err := processor.NewFromConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, *p.Config().ChunkOverlap)

	text := strings.Repeat("x", 2500)
	chunks := p.ChunkText(text, nil)
	require.Len(t, chunks, 3)

	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c.Text)
	}
	assert.Equal(t, text, joined.String())

	p = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 1000, ChunkOverlap: overlap(0)})
	assert.Len(t, p.ChunkText(text, nil), 3)
}
