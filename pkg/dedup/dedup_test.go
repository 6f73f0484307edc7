package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/pkg/config"
)

const base = "La Sunass supervisa el servicio de agua en Lima"

func TestSimilarity(t *testing.T) {
	d := New()

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", base, base, 1},
		{"case and whitespace", base, "  la SUNASS supervisa\n el servicio de agua en   lima ", 1},
		{"one extra rune", base, base + ".", 94.0 / 95.0},
		{"blank", base, "   ", 0},
		{"both empty", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, d.Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSimilarityTruncates(t *testing.T) {
	d := NewWithConfig(DeduplicatorConfig{MaxRunes: 10})
	assert.Equal(t, 1.0, d.Similarity("abcdefghij tail one", "ABCDEFGHIJ other tail"))
}

func TestDeduplicatePerCategoryThresholds(t *testing.T) {
	docs := []models.Document{
		{Text: base, Source: models.SourceHTML, URL: "https://a.example/1"},
		{Text: base + ".", Source: models.SourceHTML, URL: "https://a.example/2"},
		{Text: base, Source: models.SourceImage, ImageID: "img-1"},
		{Text: base + ".", Source: models.SourceImage, ImageID: "img-2"},
		{Text: "Corte de agua programado en Arequipa", Source: models.SourceHTML, URL: "https://a.example/3"},
	}

	res := New().Deduplicate(docs)

	require.Len(t, res.Unique, 4)
	assert.Equal(t, "https://a.example/1", res.Unique[0].URL)
	assert.Equal(t, "img-1", res.Unique[1].ImageID)
	assert.Equal(t, "img-2", res.Unique[2].ImageID)
	assert.Equal(t, "https://a.example/3", res.Unique[3].URL)

	require.Len(t, res.Duplicates, 1)
	dup := res.Duplicates[0]
	assert.Equal(t, "https://a.example/2", dup.Document.URL)
	assert.Equal(t, "https://a.example/1", dup.Original.URL)
	assert.Equal(t, "html", dup.Category)
	assert.Equal(t, 0.90, dup.Threshold)
	assert.InDelta(t, 94.0/95.0, dup.Similarity, 1e-9)

	assert.Equal(t, Stats{Total: 5, Unique: 4, Duplicate: 1}, res.Stats)
	assert.Equal(t, 20.0, res.Stats.Percentage())
}

func TestDeduplicateKeepsBlankDocuments(t *testing.T) {
	docs := []models.Document{
		{Text: "", Source: models.SourceSocial},
		{Text: " ", Source: models.SourceSocial},
	}

	res := New().Deduplicate(docs)
	assert.Len(t, res.Unique, 2)
	assert.Empty(t, res.Duplicates)
}

func TestDeduplicateEmpty(t *testing.T) {
	res := New().Deduplicate(nil)
	assert.NotNil(t, res.Unique)
	assert.NotNil(t, res.Duplicates)
	assert.Equal(t, Stats{}, res.Stats)
	assert.Equal(t, 0.0, res.Stats.Percentage())
}

func TestCategory(t *testing.T) {
	assert.Equal(t, "image", Category(models.Document{Source: "image"}))
	assert.Equal(t, "social", Category(models.Document{Source: "facebook"}))
	assert.Equal(t, "html", Category(models.Document{Source: "html"}))
	assert.Equal(t, "other", Category(models.Document{Source: "pdf"}))
	assert.Equal(t, "other", Category(models.Document{}))
}

func TestFromConfig(t *testing.T) {
	d := FromConfig(config.DedupConfig{
		Thresholds:       map[string]float64{"html": 0.5, "social": 0},
		DefaultThreshold: 0.7,
	})

	assert.Equal(t, 0.5, d.Threshold("html"))
	assert.Equal(t, 0.85, d.Threshold("social"))
	assert.Equal(t, 0.99, d.Threshold("image"))
	assert.Equal(t, 0.7, d.Threshold("video"))

	assert.Equal(t, DefaultThreshold, New().Threshold("video"))
}
