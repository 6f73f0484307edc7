package models

import (
	"errors"
	"fmt"
	"strings"
)

// Source labels used by the scrapers upstream.
const (
	SourceHTML    = "html"
	SourceImage   = "image"
	SourceSocial  = "social"
	SourcePDF     = "pdf"
	SourceText    = "text"
	SourceUnknown = "unknown"
)

var ErrEmptyText = errors.New("document has no text")

// Document is a cleaned record ready for chunking. JSON tags follow the
// keys written by the cleaning step.
type Document struct {
	Text      string   `json:"text"`
	Source    string   `json:"source,omitempty"`
	URL       string   `json:"url,omitempty"`
	Title     string   `json:"title,omitempty"`
	Fecha     string   `json:"fecha,omitempty"`
	Date      string   `json:"date,omitempty"`
	ImageID   string   `json:"image_id,omitempty"`
	ID        string   `json:"id,omitempty"`
	Relevance *float64 `json:"relevance,omitempty"`
}

// IsEmpty reports whether the document has no text worth chunking.
func (d Document) IsEmpty() bool {
	return strings.TrimSpace(d.Text) == ""
}

// SourceLabel returns the source or "unknown".
func (d Document) SourceLabel() string {
	if d.Source == "" {
		return SourceUnknown
	}
	return d.Source
}

// DateValue prefers fecha over date.
func (d Document) DateValue() string {
	if d.Fecha != "" {
		return d.Fecha
	}
	return d.Date
}

// SourceID is the first non-empty of image id, id and url.
func (d Document) SourceID() string {
	for _, v := range []string{d.ImageID, d.ID, d.URL} {
		if v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the per-source fields. Empty text is reported with
// ErrEmptyText so callers can count it as a skip rather than a failure.
func (d Document) Validate() error {
	if d.IsEmpty() {
		return ErrEmptyText
	}
	if d.Relevance != nil && (*d.Relevance < 0 || *d.Relevance > 1) {
		return fmt.Errorf("relevance %.2f out of range [0,1]", *d.Relevance)
	}
	if d.Source == SourceImage && d.ImageID == "" && d.URL == "" {
		return errors.New("image document needs image_id or url")
	}
	return nil
}
