package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
)

var ErrUnknownFormat = errors.New("expected a document list or an object with a content list")

var cleanFileDate = regexp.MustCompile(`rag_clean_(\d{8})`)

// DateFromFilename extracts the DDMMYYYY date of a rag_clean_<date>.json
// file.
func DateFromFilename(path string) (string, bool) {
	m := cleanFileDate.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// LoadResult holds the valid documents of a file and how many were dropped.
type LoadResult struct {
	Documents []models.Document
	Invalid   int
}

func LoadDocuments(path string) (LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	res, err := ReadDocuments(f)
	if err != nil {
		return res, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return res, nil
}

// ReadDocuments accepts either {"content": [...]} or a bare list.
func ReadDocuments(r io.Reader) (LoadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return LoadResult{}, err
	}
	data = bytes.TrimSpace(data)

	var docs []models.Document
	switch {
	case len(data) == 0:
		return LoadResult{}, ErrUnknownFormat
	case data[0] == '[':
		if err := json.Unmarshal(data, &docs); err != nil {
			return LoadResult{}, fmt.Errorf("failed to parse documents: %w", err)
		}
	case data[0] == '{':
		var wrapped struct {
			Content *[]models.Document `json:"content"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return LoadResult{}, fmt.Errorf("failed to parse documents: %w", err)
		}
		if wrapped.Content == nil {
			return LoadResult{}, ErrUnknownFormat
		}
		docs = *wrapped.Content
	default:
		return LoadResult{}, ErrUnknownFormat
	}

	res := LoadResult{Documents: make([]models.Document, 0, len(docs))}
	for i, doc := range docs {
		if err := doc.Validate(); err != nil {
			logger.Debug("dropping document %d (%s): %v", i, doc.SourceID(), err)
			res.Invalid++
			continue
		}
		res.Documents = append(res.Documents, doc)
	}
	return res, nil
}
