package models

import (
	"fmt"
	"strconv"
	"strings"
)

type Category string

const (
	CategoryImage  Category = "image"
	CategorySocial Category = "social"
	CategoryHTML   Category = "html"
	CategoryOther  Category = "other"
)

// Categories lists every category in priority order.
func Categories() []Category {
	return []Category{CategoryImage, CategorySocial, CategoryHTML, CategoryOther}
}

// BoundingBox is a rectangle in page coordinates with the origin at the
// top-left corner and y growing downward.
type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

func (b BoundingBox) Width() float64  { return b.X1 - b.X0 }
func (b BoundingBox) Height() float64 { return b.Y1 - b.Y0 }

// IsEmpty reports a non-positive width or height.
func (b BoundingBox) IsEmpty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

func (b BoundingBox) Expand(h, v float64) BoundingBox {
	return BoundingBox{X0: b.X0 - h, Y0: b.Y0 - v, X1: b.X1 + h, Y1: b.Y1 + v}
}

func (b BoundingBox) Intersect(o BoundingBox) BoundingBox {
	return BoundingBox{
		X0: max(b.X0, o.X0),
		Y0: max(b.Y0, o.Y0),
		X1: min(b.X1, o.X1),
		Y1: min(b.Y1, o.Y1),
	}
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(x, y float64) bool {
	return x >= b.X0 && x <= b.X1 && y >= b.Y0 && y <= b.Y1
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%s, %s, %s, %s)", ftoa(b.X0), ftoa(b.Y0), ftoa(b.X1), ftoa(b.Y1))
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseBoundingBox reads the "(x0, y0, x1, y1)" form written by String.
func ParseBoundingBox(s string) (BoundingBox, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("invalid bounding box %q", s)
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("invalid bounding box %q: %w", s, err)
		}
		vals[i] = v
	}
	return BoundingBox{X0: vals[0], Y0: vals[1], X1: vals[2], Y1: vals[3]}, nil
}

// LinkRecord is a hyperlink found in a source document. Page is 1-based
// and zero when the link did not come from a PDF.
type LinkRecord struct {
	URL     string       `json:"url"`
	Page    int          `json:"page,omitempty"`
	Box     *BoundingBox `json:"bounding_box,omitempty"`
	Context string       `json:"context"`
}
