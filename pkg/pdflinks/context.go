package pdflinks

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xhad/newsagent/internal/logger"
	"github.com/xhad/newsagent/internal/models"
)

const (
	DefaultHorizontalMargin = 30.0
	DefaultVerticalMargin   = 10.0
)

var ErrBadRegion = errors.New("malformed link region")

// Glyph is a positioned piece of text, usually a single character, in
// top-left page coordinates.
type Glyph struct {
	Box  models.BoundingBox
	Text string
}

// Page is the view of a document page the context extractor needs.
type Page interface {
	Bounds() models.BoundingBox
	Glyphs() ([]Glyph, error)
}

// ExtractContext returns the text around box on page using the default
// margins. Failures are logged and yield "".
func ExtractContext(page Page, box models.BoundingBox) string {
	text, err := ContextFor(page, box, DefaultHorizontalMargin, DefaultVerticalMargin)
	if err != nil {
		logger.Warn("context extraction failed for region %s: %v", box, err)
		return ""
	}
	return text
}

// ContextFor expands box by the margins, clips it to the page and returns
// the text inside in reading order with whitespace collapsed. An empty
// clipped region gives "" and no error.
func ContextFor(page Page, box models.BoundingBox, h, v float64) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("panic reading page text: %v", r)
		}
	}()

	if !finite(box) {
		return "", ErrBadRegion
	}

	region := box.Expand(h, v).Intersect(page.Bounds())
	if region.IsEmpty() {
		return "", nil
	}

	glyphs, err := page.Glyphs()
	if err != nil {
		return "", err
	}
	return textIn(glyphs, region), nil
}

func finite(b models.BoundingBox) bool {
	for _, f := range []float64{b.X0, b.Y0, b.X1, b.Y1} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// textIn keeps glyphs whose centre lies in region and orders them top to
// bottom, then left to right.
func textIn(glyphs []Glyph, region models.BoundingBox) string {
	var sel []Glyph
	for _, g := range glyphs {
		cx := (g.Box.X0 + g.Box.X1) / 2
		cy := (g.Box.Y0 + g.Box.Y1) / 2
		if region.Contains(cx, cy) {
			sel = append(sel, g)
		}
	}
	if len(sel) == 0 {
		return ""
	}

	sort.SliceStable(sel, func(i, j int) bool { return sel[i].Box.Y1 < sel[j].Box.Y1 })

	var lines [][]Glyph
	for _, g := range sel {
		if n := len(lines); n > 0 {
			base := lines[n-1][0]
			if math.Abs(g.Box.Y1-base.Box.Y1) <= lineTolerance(base) {
				lines[n-1] = append(lines[n-1], g)
				continue
			}
		}
		lines = append(lines, []Glyph{g})
	}

	var b strings.Builder
	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].Box.X0 < line[j].Box.X0 })
		for i, g := range line {
			if i > 0 {
				prev := line[i-1]
				if g.Box.X0-prev.Box.X1 > 0.25*prev.Box.Height() {
					b.WriteByte(' ')
				}
			}
			b.WriteString(g.Text)
		}
		b.WriteByte(' ')
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func lineTolerance(g Glyph) float64 {
	return math.Max(1, g.Box.Height()/2)
}
