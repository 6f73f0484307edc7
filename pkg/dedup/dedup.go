// Package dedup drops near-duplicate documents before they are chunked.
//
// Documents are compared only against earlier documents of the same
// category, using a Ratcliff/Obershelp ratio over their normalized text.
// Each category has its own threshold: images must be practically identical
// while social posts are matched more loosely.
package dedup

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/pkg/config"
)

const (
	DefaultThreshold = 0.88
	DefaultMaxRunes  = 5000
)

var defaultThresholds = map[string]float64{
	string(models.CategoryImage):  0.99,
	string(models.CategorySocial): 0.85,
	string(models.CategoryHTML):   0.90,
	string(models.CategoryOther):  0.85,
}

type DeduplicatorConfig struct {
	Thresholds       map[string]float64
	DefaultThreshold float64
	MaxRunes         int
}

type Deduplicator struct {
	config DeduplicatorConfig
}

// Duplicate records a dropped document and the kept document it matched.
type Duplicate struct {
	Document   models.Document `json:"document"`
	Original   models.Document `json:"original"`
	Category   string          `json:"category"`
	Similarity float64         `json:"similarity"`
	Threshold  float64         `json:"threshold"`
}

type Stats struct {
	Total     int `json:"total"`
	Unique    int `json:"unique"`
	Duplicate int `json:"duplicate"`
}

// Percentage is the share of duplicates, rounded to two decimals.
func (s Stats) Percentage() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(int(float64(s.Duplicate)/float64(s.Total)*10000+0.5)) / 100
}

type Result struct {
	Unique     []models.Document `json:"unique"`
	Duplicates []Duplicate       `json:"duplicates"`
	Stats      Stats             `json:"stats"`
}

func New() *Deduplicator {
	return NewWithConfig(DeduplicatorConfig{})
}

func NewWithConfig(cfg DeduplicatorConfig) *Deduplicator {
	thresholds := make(map[string]float64, len(defaultThresholds))
	for k, v := range defaultThresholds {
		thresholds[k] = v
	}
	for k, v := range cfg.Thresholds {
		if v > 0 {
			thresholds[k] = v
		}
	}
	cfg.Thresholds = thresholds
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = DefaultThreshold
	}
	if cfg.MaxRunes <= 0 {
		cfg.MaxRunes = DefaultMaxRunes
	}
	return &Deduplicator{config: cfg}
}

// FromConfig builds a Deduplicator from the dedup section of the config file.
func FromConfig(c config.DedupConfig) *Deduplicator {
	return NewWithConfig(DeduplicatorConfig{
		Thresholds:       c.Thresholds,
		DefaultThreshold: c.DefaultThreshold,
	})
}

// Threshold returns the similarity at or above which two documents of the
// category are considered duplicates.
func (d *Deduplicator) Threshold(category string) float64 {
	if t, ok := d.config.Thresholds[category]; ok {
		return t
	}
	return d.config.DefaultThreshold
}

// Category maps a document source onto the link categories.
func Category(doc models.Document) string {
	switch doc.Source {
	case models.SourceImage:
		return string(models.CategoryImage)
	case models.SourceSocial, "facebook":
		return string(models.CategorySocial)
	case models.SourceHTML:
		return string(models.CategoryHTML)
	default:
		return string(models.CategoryOther)
	}
}

// Similarity returns the ratio between the normalized forms of a and b, or
// 0 when either is blank.
func (d *Deduplicator) Similarity(a, b string) float64 {
	return ratio(d.normalize(a), d.normalize(b))
}

func (d *Deduplicator) normalize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	runes := []rune(strings.Join(fields, " "))
	if len(runes) > d.config.MaxRunes {
		runes = runes[:d.config.MaxRunes]
	}
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}

func ratio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return difflib.NewMatcher(a, b).Ratio()
}

type kept struct {
	doc  models.Document
	norm []string
	key  string
}

// Deduplicate keeps the first occurrence of every group of similar
// documents. Order of the unique documents follows the input.
func (d *Deduplicator) Deduplicate(docs []models.Document) Result {
	res := Result{
		Unique:     []models.Document{},
		Duplicates: []Duplicate{},
	}
	res.Stats.Total = len(docs)
	if len(docs) == 0 {
		return res
	}

	seen := make(map[string][]kept)
	for _, doc := range docs {
		cat := Category(doc)
		threshold := d.Threshold(cat)
		norm := d.normalize(doc.Text)
		key := strings.Join(norm, "")

		dup := false
		for _, k := range seen[cat] {
			sim := 0.0
			if key != "" && key == k.key {
				sim = 1
			} else if len(norm) > 0 && len(k.norm) > 0 {
				m := difflib.NewMatcher(norm, k.norm)
				if m.RealQuickRatio() < threshold || m.QuickRatio() < threshold {
					continue
				}
				sim = m.Ratio()
			}
			if sim >= threshold {
				logger.Debug("duplicate %s document %q (similarity %.4f, threshold %.2f)", cat, doc.SourceID(), sim, threshold)
				res.Duplicates = append(res.Duplicates, Duplicate{
					Document:   doc,
					Original:   k.doc,
					Category:   cat,
					Similarity: sim,
					Threshold:  threshold,
				})
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[cat] = append(seen[cat], kept{doc: doc, norm: norm, key: key})
		res.Unique = append(res.Unique, doc)
	}

	res.Stats.Unique = len(res.Unique)
	res.Stats.Duplicate = len(res.Duplicates)
	logger.Info("duplicate analysis: %d total, %d unique, %d duplicates (%.2f%%)",
		res.Stats.Total, res.Stats.Unique, res.Stats.Duplicate, res.Stats.Percentage())
	return res
}
