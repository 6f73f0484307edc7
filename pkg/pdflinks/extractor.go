// Package pdflinks pulls URI links out of PDF files together with the text
// printed around each link.
package pdflinks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
)

var ErrNotPDF = errors.New("not a pdf file")

type ExtractorConfig struct {
	HorizontalMargin float64
	VerticalMargin   float64
	// Strict runs a structural validation pass before extraction and
	// rejects files that fail it.
	Strict bool
}

type Extractor struct {
	config ExtractorConfig
}

func NewWithConfig(config ExtractorConfig) *Extractor {
	if config.HorizontalMargin == 0 {
		config.HorizontalMargin = DefaultHorizontalMargin
	}
	if config.VerticalMargin == 0 {
		config.VerticalMargin = DefaultVerticalMargin
	}
	return &Extractor{config: config}
}

func New() *Extractor {
	return NewWithConfig(ExtractorConfig{})
}

// ExtractLinks returns one record per URI link in the document at path.
// Problems with the file are logged and give an empty result.
func ExtractLinks(path string) []models.LinkRecord {
	return New().ExtractLinks(path)
}

func (e *Extractor) ExtractLinks(path string) []models.LinkRecord {
	links, err := e.Extract(path)
	if err != nil {
		logger.Error("failed to extract links from %s: %v", path, err)
		return []models.LinkRecord{}
	}
	return links
}

// Extract is ExtractLinks with the failure returned instead of logged.
// Page level problems are still logged and the page skipped.
func (e *Extractor) Extract(path string) ([]models.LinkRecord, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	if e.config.Strict {
		if err := Validate(path); err != nil {
			return nil, err
		}
	}
	return e.extract(path)
}

func checkPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return ErrNotPDF
	}
	return nil
}

func (e *Extractor) extract(path string) (links []models.LinkRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.Warn("failed to close %s: %v", path, cerr)
		}
	}()

	links = []models.LinkRecord{}
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		pageLinks, err := e.pageLinks(r.Page(i), i)
		if err != nil {
			logger.Warn("skipping page %d of %s: %v", i, path, err)
			continue
		}
		links = append(links, pageLinks...)
	}

	logger.Info("extracted %d links from %d pages of %s", len(links), pages, filepath.Base(path))
	return links, nil
}

func (e *Extractor) pageLinks(page pdf.Page, num int) (links []models.LinkRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			links, err = nil, fmt.Errorf("malformed page: %v", r)
		}
	}()

	if page.V.IsNull() {
		return nil, nil
	}
	annots := page.V.Key("Annots")
	if annots.Len() == 0 {
		return nil, nil
	}

	view := newPDFPage(page)
	for i := 0; i < annots.Len(); i++ {
		annot := annots.Index(i)
		uri, ok := linkURI(annot)
		if !ok {
			continue
		}

		link := models.LinkRecord{URL: uri, Page: num}
		if box, ok := annotationBox(annot, view); ok {
			link.Box = &box
			text, err := ContextFor(view, box, e.config.HorizontalMargin, e.config.VerticalMargin)
			if err != nil {
				logger.Warn("no context for %s on page %d: %v", uri, num, err)
			}
			link.Context = text
		}
		links = append(links, link)
	}
	return links, nil
}

// linkURI returns the target of a URI link annotation. Internal
// destinations and mailto targets are not links for our purposes.
func linkURI(annot pdf.Value) (string, bool) {
	if annot.Key("Subtype").Name() != "Link" {
		return "", false
	}
	action := annot.Key("A")
	if action.Key("S").Name() != "URI" {
		return "", false
	}
	uri := strings.TrimSpace(action.Key("URI").RawString())
	if uri == "" || strings.HasPrefix(strings.ToLower(uri), "mailto:") {
		return "", false
	}
	return uri, true
}

// annotationBox resolves the link area from Rect, falling back to the hull
// of QuadPoints.
func annotationBox(annot pdf.Value, view *pdfPage) (models.BoundingBox, bool) {
	if r, ok := rect(annot.Key("Rect")); ok {
		return view.toPage(r), true
	}
	if r, ok := quadHull(annot.Key("QuadPoints")); ok {
		return view.toPage(r), true
	}
	return models.BoundingBox{}, false
}
