package processor

import (
	"strings"
	"unicode/utf8"
)

// span is a byte range of the source text with its rune offsets.
type span struct {
	start, end   int
	rstart, rend int
}

// splitter cuts text into pieces no longer than size runes, trying each
// separator in priority order, and merges the pieces back into windows.
type splitter struct {
	size      int
	overlap   int
	seps      []string
	keepSep   bool
	text      string
	pieces    []span
	lastByte  int
	lastRunes int
}

func (sp *splitter) runeLen(s, e int) int {
	return utf8.RuneCountInString(sp.text[s:e])
}

func (sp *splitter) emit(s, e int) {
	rstart := sp.lastRunes + sp.runeLen(sp.lastByte, s)
	rend := rstart + sp.runeLen(s, e)
	sp.pieces = append(sp.pieces, span{start: s, end: e, rstart: rstart, rend: rend})
	sp.lastByte, sp.lastRunes = e, rend
}

func (sp *splitter) split(s, e int, seps []string) {
	if sp.runeLen(s, e) <= sp.size {
		sp.emit(s, e)
		return
	}

	for i, sep := range seps {
		if !strings.Contains(sp.text[s:e], sep) {
			continue
		}
		rest := seps[i+1:]
		for _, part := range sp.parts(s, e, sep) {
			sp.split(part[0], part[1], rest)
		}
		return
	}

	sp.hardSlice(s, e)
}

// parts splits [s,e) on sep. With keepSep the separator opens the part
// that follows it; otherwise it belongs to no part, so separators that fall
// between two windows (or before the first) are not in any chunk. Empty
// parts are dropped.
func (sp *splitter) parts(s, e int, sep string) [][2]int {
	var out [][2]int
	segment := sp.text[s:e]
	start, cursor := 0, 0
	for {
		idx := strings.Index(segment[cursor:], sep)
		if idx < 0 {
			break
		}
		cut := cursor + idx
		if cut > start {
			out = append(out, [2]int{s + start, s + cut})
		}
		if sp.keepSep {
			start = cut
		} else {
			start = cut + len(sep)
		}
		cursor = cut + len(sep)
	}
	if len(segment) > start {
		out = append(out, [2]int{s + start, e})
	}
	return out
}

// hardSlice cuts [s,e) on a grid of gcd(size, overlap) runes so that the
// sliding windows built by merge line up with the slice boundaries.
func (sp *splitter) hardSlice(s, e int) {
	unit := gcd(sp.size, sp.overlap)
	pos := s
	for pos < e {
		end := pos
		for n := 0; n < unit && end < e; n++ {
			_, w := utf8.DecodeRuneInString(sp.text[end:])
			end += w
		}
		sp.emit(pos, end)
		pos = end
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a <= 0 {
		return 1
	}
	return a
}

// merge packs consecutive pieces into windows of at most size runes. Each
// window after the first starts with the trailing pieces of the previous
// one that fit in overlap runes.
func (sp *splitter) merge() []span {
	var windows []span
	pieces := sp.pieces
	lo := 0
	for hi := 0; hi < len(pieces); hi++ {
		p := pieces[hi]
		if hi > lo && p.rend-pieces[lo].rstart > sp.size {
			windows = append(windows, window(pieces[lo:hi]))
			for lo < hi && (pieces[hi-1].rend-pieces[lo].rstart > sp.overlap || p.rend-pieces[lo].rstart > sp.size) {
				lo++
			}
		}
	}
	if lo < len(pieces) {
		windows = append(windows, window(pieces[lo:]))
	}
	return windows
}

func window(pieces []span) span {
	first, last := pieces[0], pieces[len(pieces)-1]
	return span{start: first.start, end: last.end, rstart: first.rstart, rend: last.rend}
}

// splitSpans returns the chunk windows of text in order. With keepSep the
// windows cover text from 0 to len(text) and concatenating them minus the
// overlaps rebuilds it; without keepSep the uncovered gaps hold only
// separators.
func (p *Processor) splitSpans(text string) []span {
	sp := &splitter{
		size:    p.config.ChunkSize,
		overlap: *p.config.ChunkOverlap,
		seps:    p.config.Separators,
		keepSep: *p.config.KeepSeparator,
		text:    text,
	}
	sp.split(0, len(text), sp.seps)
	return sp.merge()
}

// SplitText returns the chunk texts for text without building metadata.
// Blank text yields no chunks. Whitespace-only windows inside a non-blank
// text are kept so the chunks still rebuild the text.
func (p *Processor) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	spans := p.splitSpans(text)
	out := make([]string, 0, len(spans))
	for _, w := range spans {
		out = append(out, text[w.start:w.end])
	}
	return out
}
