package pdflinks

import (
	"fmt"
	"math"

	"github.com/ledongthuc/pdf"

	"github.com/xhad/newsagent/internal/models"
)

var letter = [4]float64{0, 0, 612, 792}

// pdfPage adapts a ledongthuc/pdf page to Page. PDF user space has its
// origin at the bottom-left; everything handed out here is flipped so the
// origin is the top-left corner of the visible box.
type pdfPage struct {
	page   pdf.Page
	box    [4]float64
	glyphs []Glyph
	err    error
	loaded bool
}

func newPDFPage(p pdf.Page) *pdfPage {
	box, ok := inheritedBox(p.V, "CropBox")
	if !ok {
		box, ok = inheritedBox(p.V, "MediaBox")
	}
	if !ok {
		box = letter
	}
	return &pdfPage{page: p, box: box}
}

func (p *pdfPage) Bounds() models.BoundingBox {
	return models.BoundingBox{X0: 0, Y0: 0, X1: p.box[2] - p.box[0], Y1: p.box[3] - p.box[1]}
}

// toPage converts a PDF rectangle to top-left page coordinates.
func (p *pdfPage) toPage(r [4]float64) models.BoundingBox {
	return models.BoundingBox{
		X0: r[0] - p.box[0],
		Y0: p.box[3] - r[3],
		X1: r[2] - p.box[0],
		Y1: p.box[3] - r[1],
	}
}

func (p *pdfPage) Glyphs() ([]Glyph, error) {
	if p.loaded {
		return p.glyphs, p.err
	}
	p.loaded = true
	p.glyphs, p.err = p.readGlyphs()
	return p.glyphs, p.err
}

func (p *pdfPage) readGlyphs() (glyphs []Glyph, err error) {
	defer func() {
		if r := recover(); r != nil {
			glyphs, err = nil, fmt.Errorf("failed to decode page content: %v", r)
		}
	}()

	for _, t := range p.page.Content().Text {
		size := t.FontSize
		if size <= 0 {
			size = 1
		}
		glyphs = append(glyphs, Glyph{
			Box:  p.toPage([4]float64{t.X, t.Y, t.X + t.W, t.Y + size}),
			Text: t.S,
		})
	}
	return glyphs, nil
}

// inheritedBox looks key up on the page and then its Parent chain.
func inheritedBox(v pdf.Value, key string) ([4]float64, bool) {
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		if r, ok := rect(v.Key(key)); ok {
			return r, true
		}
		v = v.Key("Parent")
	}
	return [4]float64{}, false
}

// rect reads a four number array, normalised so that r[0] <= r[2] and
// r[1] <= r[3].
func rect(v pdf.Value) ([4]float64, bool) {
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return [4]float64{}, false
	}
	var r [4]float64
	for i := 0; i < 4; i++ {
		f, ok := number(v.Index(i))
		if !ok {
			return [4]float64{}, false
		}
		r[i] = f
	}
	return [4]float64{
		math.Min(r[0], r[2]), math.Min(r[1], r[3]),
		math.Max(r[0], r[2]), math.Max(r[1], r[3]),
	}, true
}

// quadHull returns the bounding rectangle of a QuadPoints array.
func quadHull(v pdf.Value) ([4]float64, bool) {
	n := v.Len()
	if v.Kind() != pdf.Array || n < 8 || n%8 != 0 {
		return [4]float64{}, false
	}
	r := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for i := 0; i < n; i += 2 {
		x, okx := number(v.Index(i))
		y, oky := number(v.Index(i + 1))
		if !okx || !oky {
			return [4]float64{}, false
		}
		r[0], r[2] = math.Min(r[0], x), math.Max(r[2], x)
		r[1], r[3] = math.Min(r[1], y), math.Max(r[3], y)
	}
	return r, true
}

func number(v pdf.Value) (float64, bool) {
	switch v.Kind() {
	case pdf.Integer, pdf.Real:
		return v.Float64(), true
	}
	return 0, false
}
