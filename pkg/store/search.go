package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xhad/newsagent/internal/models"
	"github.com/xhad/newsagent/internal/types"
)

var ErrBadWeights = errors.New("hybrid weights must sum to more than zero")

const selectColumns = `chunk_id, text, COALESCE(source, ''), COALESCE(url, ''), COALESCE(title, ''), COALESCE(date, ''), COALESCE(metadata, '{}'::jsonb)`

// HybridWeights sets how much vector and keyword ranks count. Both zero
// means 0.7 and 0.3.
type HybridWeights struct {
	Vector  float64
	Keyword float64
}

func (w HybridWeights) normalized() (float64, float64, error) {
	if w.Vector == 0 && w.Keyword == 0 {
		return 0.7, 0.3, nil
	}
	total := w.Vector + w.Keyword
	if total <= 0 || w.Vector < 0 || w.Keyword < 0 {
		return 0, 0, ErrBadWeights
	}
	return w.Vector / total, w.Keyword / total, nil
}

// filterClauses appends the equality filters to args and returns the
// matching predicates.
func filterClauses(f types.QueryFilter, args []any) ([]string, []any) {
	var clauses []string
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("source", f.Source)
	add("date", f.Date)
	add("url", f.URL)
	return clauses, args
}

func semanticSQL(table string, embedding any, f types.QueryFilter) (string, []any) {
	args := []any{embedding}
	clauses, args := filterClauses(f, args)
	if f.MinSimilarity > 0 {
		args = append(args, f.MinSimilarity)
		clauses = append(clauses, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", len(args)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, 1 - (embedding <=> $1) AS similarity FROM %s", selectColumns, table)
	if len(clauses) > 0 {
		b.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	args = append(args, f.Limit)
	fmt.Fprintf(&b, " ORDER BY embedding <=> $1 LIMIT $%d", len(args))
	return b.String(), args
}

func keywordSQL(table, language, keywords string, f types.QueryFilter) (string, []any) {
	args := []any{keywords}
	query := fmt.Sprintf("plainto_tsquery('%s', $1)", language)
	doc := fmt.Sprintf("to_tsvector('%s', text)", language)

	clauses, args := filterClauses(f, args)
	clauses = append([]string{query + " @@ " + doc}, clauses...)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, ts_rank(%s, %s)::float8 AS rank FROM %s", selectColumns, doc, query, table)
	b.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	args = append(args, f.Limit)
	fmt.Fprintf(&b, " ORDER BY rank DESC LIMIT $%d", len(args))
	return b.String(), args
}

func scoresByID(results []models.SearchResult) map[string]float64 {
	scores := make(map[string]float64, len(results))
	best := 0.0
	for _, r := range results {
		scores[r.ChunkID] = r.Score
		best = max(best, r.Score)
	}
	if best <= 0 {
		best = 1
	}
	for id, s := range scores {
		scores[id] = s / best
	}
	return scores
}

// mergeHybrid max-normalizes both rankings, combines them with the weights
// and keeps the best limit results. Ties keep vector results first.
func mergeHybrid(vector, keyword []models.SearchResult, wv, wk float64, limit int) []models.SearchResult {
	vs := scoresByID(vector)
	ks := scoresByID(keyword)

	seen := make(map[string]bool)
	merged := []models.SearchResult{}
	for _, r := range append(append([]models.SearchResult{}, vector...), keyword...) {
		if seen[r.ChunkID] {
			continue
		}
		seen[r.ChunkID] = true
		r.Score = vs[r.ChunkID]*wv + ks[r.ChunkID]*wk
		merged = append(merged, r)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
