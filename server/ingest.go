package server

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/internal/types"
	"github.com/xhad/newsagent/pkg/classifier"
	"github.com/xhad/newsagent/pkg/dedup"
	"github.com/xhad/newsagent/pkg/ingest"
	"github.com/xhad/newsagent/pkg/llm"
	"github.com/xhad/newsagent/pkg/processor"
	"github.com/xhad/newsagent/pkg/scraper"
)

// Ingest carries what /procesar_pdf/ needs to go past link extraction:
// scrape the html and social links, transcribe the images, then chunk,
// embed and store the documents. Images and Dedup are optional.
type Ingest struct {
	Scraper  *scraper.Scraper
	Images   *llm.ImageExtractor
	Chunking processor.ProcessorConfig
	Embedder types.Embedder
	Store    types.VectorStore
	Dedup    *dedup.Deduplicator

	BatchSize int
}

// ingestResult is what a full run adds to the process response.
type ingestResult struct {
	documents []models.Document
	failures  int
	summary   ingest.Summary
}

var bulletinName = regexp.MustCompile(`^\d{8}$`)

// runIngest turns the classified links of one bulletin into stored
// chunks, reporting progress from 65 to 95.
func (s *Server) runIngest(ctx context.Context, name string, req ProcessRequest, buckets classifier.Result) (ingestResult, error) {
	var out ingestResult
	ing := s.config.Ingest

	html, err := ing.Scraper.ScrapeLinks(ctx, buckets.Buckets[models.CategoryHTML])
	if err != nil {
		return out, err
	}
	posts, err := ing.Scraper.ScrapePosts(ctx, buckets.Buckets[models.CategorySocial])
	if err != nil {
		return out, err
	}
	out.documents = append(out.documents, html.Documents...)
	out.documents = append(out.documents, posts.Documents...)
	out.failures = len(html.Failures) + len(posts.Failures)
	s.tracker.set(name, 75, StatusProcessing, "")

	if ing.Images != nil {
		images := ing.Images.With(req.Prompt, req.BatchSize, time.Duration(req.PauseSeconds)*time.Second)
		res, err := images.ExtractLinks(ctx, buckets.Buckets[models.CategoryImage])
		if err != nil {
			return out, err
		}
		out.documents = append(out.documents, res.Documents...)
		out.failures += len(res.Failures)
	} else if n := len(buckets.Buckets[models.CategoryImage]); n > 0 {
		logger.Warn("image extraction is not configured, skipping %d image links", n)
	}
	s.tracker.set(name, 85, StatusProcessing, "")

	chunker := processor.NewWithConfig(ing.Chunking)
	if bulletinName.MatchString(name) {
		chunker.SetDefaultDate(name)
		for i := range out.documents {
			if out.documents[i].Fecha == "" {
				out.documents[i].Fecha = name
			}
		}
	}

	batch := ing.BatchSize
	if req.BatchSize > 0 {
		batch = req.BatchSize
	}
	pipeline := &ingest.Pipeline{
		Chunker:   chunker,
		Embedder:  ing.Embedder,
		Store:     ing.Store,
		Dedup:     ing.Dedup,
		BatchSize: batch,
	}
	out.summary, err = pipeline.Run(ctx, out.documents)
	if err != nil {
		return out, fmt.Errorf("failed to ingest %s: %w", name, err)
	}
	s.tracker.set(name, 95, StatusProcessing, "")
	return out, nil
}
